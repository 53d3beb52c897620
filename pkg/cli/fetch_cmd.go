package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/geometry"
	"github.com/USDAForestService/gdalraster-sub000/internal/table"
	"github.com/USDAForestService/gdalraster-sub000/internal/typecatalog"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

func parseGeomFormat(name string) (domain.GeomFormat, error) {
	f := typecatalog.GeomFormatFromName(name)
	if f == domain.FormatUnknown {
		return f, fmt.Errorf("unknown geometry format %q", name)
	}
	return f, nil
}

// parseBBox parses "minx,miny,maxx,maxy".
func parseBBox(s string) ([4]float64, error) {
	var out [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return out, fmt.Errorf("invalid --bbox %q: want minx,miny,maxx,maxy", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return out, fmt.Errorf("invalid --bbox %q: %w", s, err)
		}
		out[i] = v
	}
	return out, nil
}

// readFlags are the geometry encoding flags shared by fetch and get.
type readFlags struct {
	format    string
	byteOrder string
	multi     bool
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "Geometry format: NONE, WKB, WKB_ISO, WKT, WKT_ISO, SUMMARY, TYPE_NAME, BBOX (default WKT, or VECTAB_GEOM_FORMAT)")
	cmd.Flags().StringVar(&f.byteOrder, "byte-order", "LSB", "WKB byte order (LSB, MSB)")
	cmd.Flags().BoolVar(&f.multi, "promote-to-multi", false, "Promote single geometries to their multi types")
}

// options resolves the read options: the flag, then the configured format,
// then WKT.
func (f *readFlags) options(cmd *cobra.Command, a *app) (vector.ReadOptions, error) {
	opts := a.cfg.ReadOptions()
	switch {
	case cmd.Flags().Changed("format"):
		format, err := parseGeomFormat(f.format)
		if err != nil {
			return opts, err
		}
		opts.Format = format
	case !a.geomFormatSet:
		opts.Format = domain.FormatWKT
	}
	opts.ByteOrder = geometry.ParseByteOrder(f.byteOrder)
	opts.PromoteToMulti = f.multi
	return opts, nil
}

func newFetchCmd(a *app) *cobra.Command {
	var (
		n      int64
		skip   int64
		where  string
		bbox   string
		fields []string
		rf     readFlags
	)
	cmd := &cobra.Command{
		Use:   "fetch <layer>",
		Short: "Read features into a table",
		Example: `  vectab fetch plots -n 10 --where "trees > 5" --format WKT
  vectab fetch plots --bbox 0,0,10,10 --fields name,trees -o csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := rf.options(cmd, a)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withLayer(ctx, args[0], func(l *vector.Layer) error {
				if where != "" {
					if err := l.SetAttributeFilter(ctx, where); err != nil {
						return err
					}
				}
				if bbox != "" {
					b, err := parseBBox(bbox)
					if err != nil {
						return err
					}
					if err := l.SetSpatialFilterRect(b[0], b[1], b[2], b[3]); err != nil {
						return err
					}
				}
				if len(fields) > 0 {
					if err := l.SetSelectedFields(ctx, fields); err != nil {
						return err
					}
				}

				count := n
				if skip > 0 {
					if err := l.SetNextByIndex(ctx, skip); err != nil {
						return err
					}
					if count == vector.FetchAll {
						count = vector.FetchUnspecified
					}
				}

				tbl, err := l.Fetch(ctx, count, opts)
				if err != nil {
					return err
				}
				for _, w := range tbl.Warnings {
					a.logger.Warn("fetch warning", "layer", l.Name(), "error", w)
				}
				if a.quiet {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), tbl.Len())
					return err
				}
				return printFeatures(cmd.OutOrStdout(), a.output, tbl)
			})
		},
	}
	cmd.Flags().Int64VarP(&n, "limit", "n", vector.FetchAll, "Maximum number of features (-1 for all)")
	cmd.Flags().Int64Var(&skip, "skip", 0, "Zero-based index of the first feature to read")
	cmd.Flags().StringVar(&where, "where", "", "Attribute filter (SQL WHERE expression)")
	cmd.Flags().StringVar(&bbox, "bbox", "", "Spatial filter rectangle minx,miny,maxx,maxy")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Attribute fields to read (default all)")
	rf.register(cmd)
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var rf readFlags
	cmd := &cobra.Command{
		Use:   "get <layer> <fid>",
		Short: "Read one feature by FID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fid, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid fid %q: %w", args[1], err)
			}
			opts, err := rf.options(cmd, a)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return a.withLayer(ctx, args[0], func(l *vector.Layer) error {
				rec, err := l.GetFeature(ctx, fid, opts)
				if err != nil {
					return err
				}
				if rec == nil {
					return domain.ErrNotFound("feature %d not found in layer %q", fid, l.Name())
				}
				return printRecord(cmd, a.output, rec)
			})
		},
	}
	rf.register(cmd)
	return cmd
}

func printRecord(cmd *cobra.Command, format string, rec *table.Record) error {
	out := cmd.OutOrStdout()
	m := make(map[string]any, len(rec.Names))
	for i, n := range rec.Names {
		m[n] = cellValue(rec.Kinds[i], rec.Values[i])
	}
	if format == OutputJSON {
		return PrintJSON(out, m)
	}
	PrintDetail(out, m)
	return nil
}
