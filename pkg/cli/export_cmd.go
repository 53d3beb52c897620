package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/USDAForestService/gdalraster-sub000/internal/sink"
	"github.com/USDAForestService/gdalraster-sub000/internal/store/sqlstore"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

// exportDest returns the destination of one layer. With several layers, or
// a destination ending in "/", dest is a prefix and each layer is written to
// <dest>/<layer>.arrow.
func exportDest(dest, layer string, multi bool) string {
	if !multi && !strings.HasSuffix(dest, "/") {
		return dest
	}
	return strings.TrimRight(dest, "/") + "/" + layer + ".arrow"
}

type exportResult struct {
	Layer       string `json:"layer"`
	Destination string `json:"destination"`
	Rows        int64  `json:"rows"`
}

type exportOptions struct {
	where    string
	stream   vector.StreamOptions
	parallel int
}

// exportLayer streams one layer to its destination as Arrow IPC.
func (a *app) exportLayer(ctx context.Context, ds *sqlstore.Dataset, name, dest string, opts exportOptions) (res exportResult, err error) {
	res = exportResult{Layer: name, Destination: dest}
	l, err := a.openLayer(ctx, ds, name)
	if err != nil {
		return res, err
	}
	if opts.where != "" {
		if err := l.SetAttributeFilter(ctx, opts.where); err != nil {
			return res, err
		}
	}

	stream, err := l.OpenStream(ctx, opts.stream)
	if err != nil {
		return res, err
	}
	defer stream.Release()

	w, err := sink.Open(ctx, dest, a.cfg.Credentials())
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := w.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	res.Rows, err = sink.WriteStream(ctx, w, stream)
	if err != nil {
		return res, fmt.Errorf("export %s: %w", name, err)
	}
	a.logger.Info("layer exported", "layer", name, "destination", dest, "rows", res.Rows, "stream", stream.ID)
	return res, nil
}

func newExportCmd(a *app) *cobra.Command {
	var (
		opts  exportOptions
		noFID bool
	)
	cmd := &cobra.Command{
		Use:   "export <destination> <layer>...",
		Short: "Export layers as Arrow IPC streams",
		Long: `Export layers as Arrow IPC streams to a local path, s3://bucket/key,
gs://bucket/key or az://container/blob. With several layers, or a destination
ending in "/", each layer is written to <destination>/<layer>.arrow.

Cloud credentials come from S3_KEY_ID, S3_SECRET, S3_ENDPOINT, S3_REGION,
GCS_KEY_FILE, AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY.`,
		Example: `  vectab export plots.arrow plots
  vectab export s3://lake/exports/ plots stands --parallel 2`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			dest, layers := args[0], args[1:]
			if _, err := sink.ParseURI(exportDest(dest, layers[0], len(layers) > 1)); err != nil {
				return err
			}
			opts.stream.IncludeFID = !noFID

			ctx := cmd.Context()
			ds, err := a.openDataset(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := ds.Close(); err == nil && cerr != nil {
					err = cerr
				}
			}()

			results := make([]exportResult, len(layers))
			g, gctx := errgroup.WithContext(ctx)
			g.SetLimit(max(opts.parallel, 1))
			for i, name := range layers {
				target := exportDest(dest, name, len(layers) > 1)
				g.Go(func() error {
					res, err := a.exportLayer(gctx, ds, name, target, opts)
					if err != nil {
						return err
					}
					results[i] = res
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.quiet {
				for _, r := range results {
					fmt.Fprintln(out, r.Destination)
				}
				return nil
			}
			if a.output == OutputJSON {
				return PrintJSON(out, results)
			}
			rows := make([][]string, len(results))
			for i, r := range results {
				rows[i] = []string{r.Layer, r.Destination, fmt.Sprint(r.Rows)}
			}
			if a.output == OutputCSV {
				return PrintCSV(out, []string{"layer", "destination", "rows"}, rows)
			}
			PrintTable(out, []string{"layer", "destination", "rows"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.where, "where", "", "Attribute filter applied to every layer")
	cmd.Flags().IntVar(&opts.stream.BatchSize, "batch-size", 0, "Rows per record batch (default store batch size)")
	cmd.Flags().BoolVar(&noFID, "no-fid", false, "Omit the FID column")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 4, "Layers exported at once")
	return cmd
}
