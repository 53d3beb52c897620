// Package cli implements the vectab command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/USDAForestService/gdalraster-sub000/internal/config"
	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/store/sqlstore"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

// run executes the command line args and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := newRootCmd(stdout)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == OutputJSON {
			errObj := map[string]any{"error": err.Error()}
			if kind := errorKind(err); kind != "" {
				errObj["kind"] = kind
			}
			_ = PrintJSON(stdout, errObj)
		} else {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorKind classifies domain errors for JSON error output.
func errorKind(err error) string {
	var (
		schemaErr   *domain.SchemaError
		validErr    *domain.ValidationError
		geomErr     *domain.GeometryParseError
		storeErr    *domain.StoreError
		notFoundErr *domain.NotFoundError
		conflictErr *domain.ConflictError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &validErr):
		return "validation"
	case errors.As(err, &geomErr):
		return "geometry"
	case errors.As(err, &notFoundErr):
		return "not_found"
	case errors.As(err, &conflictErr):
		return "conflict"
	case errors.As(err, &storeErr):
		return "store"
	}
	return ""
}

// app carries the configuration resolved in PersistentPreRunE to the
// subcommands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	output string
	quiet  bool

	// geomFormatSet is true when VECTAB_GEOM_FORMAT or the profile chose
	// the geometry format.
	geomFormatSet bool
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var (
		store    string
		driver   string
		output   string
		profile  string
		logLevel string
	)
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "vectab",
		Short:         "Vector feature table tool",
		Long:          "Read, write and export vector feature layers held in SQLite or DuckDB stores.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			// Config file is optional.
			var p Profile
			if uc, err := LoadUserConfig(); err == nil {
				if p, err = uc.ActiveProfile(profile); err != nil {
					return err
				}
			} else if profile != "" {
				return fmt.Errorf("profile %q requested but %w", profile, err)
			}

			// Apply precedence: flag > env > profile > default
			flags := cmd.Flags()
			driver = resolve(flags, "driver", "VECTAB_DRIVER", p.Driver, config.DriverSQLite)
			if driver != config.DriverSQLite && driver != config.DriverDuckDB {
				return fmt.Errorf("unsupported driver %q: use 'sqlite' or 'duckdb'", driver)
			}
			defaultStore := "vectab.sqlite"
			if driver == config.DriverDuckDB {
				defaultStore = "vectab.duckdb"
			}
			store = resolve(flags, "store", "VECTAB_STORE", p.Store, defaultStore)
			output = resolve(flags, "output", "VECTAB_OUTPUT", p.Output, defaultOutput(stdout))
			logLevel = resolve(flags, "log-level", "LOG_LEVEL", p.LogLevel, "warn")
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			a.geomFormatSet = os.Getenv("VECTAB_GEOM_FORMAT") != ""
			if !a.geomFormatSet && p.GeomFormat != "" {
				if cfg.GeomFormat, err = parseGeomFormat(p.GeomFormat); err != nil {
					return err
				}
				a.geomFormatSet = true
			}

			cfg.Driver = driver
			cfg.StorePath = store
			cfg.LogLevel = logLevel
			a.cfg = cfg
			a.output = output
			a.logger = newLogger(cmd.ErrOrStderr(), cfg)
			for _, w := range cfg.Warnings {
				a.logger.Warn(w)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&store, "store", "s", "", "Path of the feature store (default vectab.sqlite)")
	pf.StringVar(&driver, "driver", config.DriverSQLite, "Store driver (sqlite, duckdb)")
	pf.StringVarP(&output, "output", "o", "", "Output format (table, json, csv); table on a terminal, json otherwise")
	pf.StringVarP(&profile, "profile", "p", "", "Config profile to use")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Only output identifiers and counts")

	rootCmd.AddCommand(newLayersCmd(a))
	rootCmd.AddCommand(newInfoCmd(a))
	rootCmd.AddCommand(newCreateLayerCmd(a))
	rootCmd.AddCommand(newFetchCmd(a))
	rootCmd.AddCommand(newGetCmd(a))
	rootCmd.AddCommand(newLoadCmd(a))
	rootCmd.AddCommand(newDeleteCmd(a))
	rootCmd.AddCommand(newCopyCmd(a))
	rootCmd.AddCommand(newExportCmd(a))
	rootCmd.AddCommand(newDomainsCmd(a))
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

// resolve picks the flag value when set, then the environment, then the
// profile, then def.
func resolve(flags *pflag.FlagSet, name, envKey, profileVal, def string) string {
	if flags.Changed(name) {
		v, _ := flags.GetString(name)
		return v
	}
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if profileVal != "" {
		return profileVal
	}
	return def
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openDataset opens the configured store.
func (a *app) openDataset(ctx context.Context) (*sqlstore.Dataset, error) {
	opts := sqlstore.Options{PageSize: a.cfg.PageSize, Logger: a.logger}
	if a.cfg.Driver == config.DriverDuckDB {
		return sqlstore.OpenDuckDB(ctx, a.cfg.StorePath, opts)
	}
	return sqlstore.OpenSQLite(a.cfg.StorePath, opts)
}

// openLayer opens the named layer of ds with the configured layer options.
func (a *app) openLayer(ctx context.Context, ds *sqlstore.Dataset, name string) (*vector.Layer, error) {
	store, err := ds.OpenLayer(ctx, name)
	if err != nil {
		return nil, err
	}
	return vector.Open(ctx, store, a.cfg.VectorConfig(a.logger.With("layer", name)))
}

// withLayer opens the store and the named layer, runs fn and closes the
// store.
func (a *app) withLayer(ctx context.Context, name string, fn func(*vector.Layer) error) (err error) {
	ds, err := a.openDataset(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := ds.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close store: %w", cerr)
		}
	}()
	l, err := a.openLayer(ctx, ds, name)
	if err != nil {
		return err
	}
	return fn(l)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == OutputJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{
					"version": version,
					"commit":  commit,
				})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "vectab version %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
}
