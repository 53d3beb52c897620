package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/USDAForestService/gdalraster-sub000/internal/domain"
	"github.com/USDAForestService/gdalraster-sub000/internal/vector"
)

// readRows decodes a JSON array of objects. Numbers are kept as
// json.Number so 64-bit integers survive.
func readRows(r io.Reader) ([]vector.Row, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	rows := make([]vector.Row, len(raw))
	for i, m := range raw {
		rows[i] = vector.Row(m)
	}
	return rows, nil
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// coerceRow converts JSON strings to the Go values the encoder expects for
// date, date-time and binary fields. Other values pass through unchanged.
func coerceRow(s *domain.LayerSchema, row vector.Row, rowIndex int) error {
	for k, v := range row {
		str, ok := v.(string)
		if !ok {
			continue
		}
		i := s.FieldIndex(k)
		if i < 0 {
			continue
		}
		f := s.Fields[i]
		switch f.Type {
		case domain.FieldTypeDate:
			t, err := time.Parse(time.DateOnly, str)
			if err != nil {
				return domain.ErrFieldValidation(f.Name, rowIndex, "field %q: invalid date %q", f.Name, str)
			}
			row[k] = t
		case domain.FieldTypeDateTime:
			t, err := parseDateTime(str)
			if err != nil {
				return domain.ErrFieldValidation(f.Name, rowIndex, "field %q: invalid date-time %q", f.Name, str)
			}
			row[k] = t
		case domain.FieldTypeBinary:
			b, err := base64.StdEncoding.DecodeString(str)
			if err != nil {
				return domain.ErrFieldValidation(f.Name, rowIndex, "field %q: binary values must be base64", f.Name)
			}
			row[k] = b
		}
	}
	return nil
}

func parseDateTime(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("open rows: %w", err)
	}
	return f, nil
}

type loadResult struct {
	Rows      int     `json:"rows"`
	Succeeded int     `json:"succeeded"`
	Failed    []int   `json:"failed"`
	FIDs      []int64 `json:"fids,omitempty"`
}

func newLoadCmd(a *app) *cobra.Command {
	var (
		upsert bool
		update bool
		inTx   bool
	)
	cmd := &cobra.Command{
		Use:   "load <layer> <rows.json|->",
		Short: "Write features from a JSON array of objects",
		Long: `Write features from a JSON array of objects keyed by field name.
Geometries are WKT strings, dates use YYYY-MM-DD, date-times RFC 3339 and
binary values base64. A "FID" key sets the feature identifier.

Rows that fail validation or are rejected by the store are reported and
skipped; the remaining rows are still written.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if upsert && update {
				return fmt.Errorf("--upsert and --update are mutually exclusive")
			}
			in, err := openInput(cmd, args[1])
			if err != nil {
				return err
			}
			rows, err := readRows(in)
			_ = in.Close()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			return a.withLayer(ctx, args[0], func(l *vector.Layer) (err error) {
				if inTx {
					if err := l.StartTransaction(ctx); err != nil {
						return err
					}
					defer func() {
						if err != nil {
							if rerr := l.RollbackTransaction(ctx); rerr != nil {
								a.logger.Error("rollback failed", "layer", l.Name(), "error", rerr)
							}
							return
						}
						err = l.CommitTransaction(ctx)
					}()
				}

				res, err := writeRows(cmd, a, l, rows, upsert, update)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if a.quiet {
					_, err := fmt.Fprintln(out, res.Succeeded)
					return err
				}
				if a.output == OutputJSON {
					return PrintJSON(out, res)
				}
				fmt.Fprintf(out, "%d of %d rows written to %s\n", res.Succeeded, res.Rows, l.Name())
				if len(res.Failed) > 0 {
					fmt.Fprintf(out, "failed rows: %s\n", formatValue(res.Failed))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&upsert, "upsert", false, "Insert or replace rows by FID")
	cmd.Flags().BoolVar(&update, "update", false, "Update existing rows by FID; unset fields keep their values")
	cmd.Flags().BoolVar(&inTx, "transaction", false, "Write all rows in one transaction")
	return cmd
}

func writeRows(cmd *cobra.Command, a *app, l *vector.Layer, rows []vector.Row, upsert, update bool) (*loadResult, error) {
	ctx := cmd.Context()
	schema := l.Schema()
	res := &loadResult{Rows: len(rows), Failed: []int{}}

	ok := make([]bool, len(rows))
	pending := make([]vector.Row, 0, len(rows))
	index := make([]int, 0, len(rows))
	for i, row := range rows {
		if err := coerceRow(schema, row, i); err != nil {
			a.logger.Warn("row rejected", "layer", l.Name(), "row", i, "error", err)
			continue
		}
		pending = append(pending, row)
		index = append(index, i)
	}

	switch {
	case upsert || update:
		for j, row := range pending {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			var (
				written bool
				err     error
			)
			if upsert {
				written, err = l.UpsertFeature(ctx, row)
			} else {
				written, err = l.SetFeature(ctx, row)
			}
			if err != nil {
				a.logger.Warn("row failed", "layer", l.Name(), "row", index[j], "error", err)
				continue
			}
			ok[index[j]] = written
		}
	case len(pending) == 1:
		written, err := l.CreateFeature(ctx, pending[0])
		if err != nil {
			a.logger.Warn("row failed", "layer", l.Name(), "row", index[0], "error", err)
		} else if written {
			ok[index[0]] = true
			res.FIDs = []int64{l.LastWriteFID()}
		}
	default:
		status, err := l.BatchCreate(ctx, pending, vector.WriteOptions{})
		if err != nil {
			return nil, err
		}
		for j, written := range status {
			ok[index[j]] = written
		}
	}

	for i, written := range ok {
		if written {
			res.Succeeded++
		} else {
			res.Failed = append(res.Failed, i)
		}
	}
	return res, nil
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <layer> <fid>...",
		Short: "Delete features by FID",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fids := make([]int64, 0, len(args)-1)
			for _, s := range args[1:] {
				fid, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid fid %q: %w", s, err)
				}
				fids = append(fids, fid)
			}
			ctx := cmd.Context()
			return a.withLayer(ctx, args[0], func(l *vector.Layer) error {
				deleted := 0
				for _, fid := range fids {
					if _, err := l.DeleteFeature(ctx, fid); err != nil {
						return fmt.Errorf("delete feature %d: %w", fid, err)
					}
					deleted++
				}
				if !a.quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %d features from %s\n", deleted, l.Name())
				}
				return nil
			})
		},
	}
}

// copyRows re-reads src as WKB and writes every row into dst.
func copyRows(cmd *cobra.Command, a *app, src, dst *vector.Layer) (int, int, error) {
	ctx := cmd.Context()
	tbl, err := src.Fetch(ctx, vector.FetchAll, vector.DefaultReadOptions())
	if err != nil {
		return 0, 0, err
	}
	status, err := dst.BatchCreateTable(ctx, tbl, vector.WriteOptions{})
	if err != nil {
		return 0, 0, err
	}
	n := 0
	for _, ok := range status {
		if ok {
			n++
		}
	}
	a.logger.Info("layer copied", "from", src.Name(), "to", dst.Name(), "rows", len(status), "written", n)
	return n, len(status), nil
}

func newCopyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src-layer> <dst-layer>",
		Short: "Append every feature of one layer to another",
		Long: `Append every feature of one layer to another existing layer. Fields are
matched by name; the destination assigns new FIDs.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
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
			src, err := a.openLayer(ctx, ds, args[0])
			if err != nil {
				return err
			}
			dst, err := a.openLayer(ctx, ds, args[1])
			if err != nil {
				return err
			}
			written, total, err := copyRows(cmd, a, src, dst)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.output == OutputJSON {
				return PrintJSON(out, map[string]int{"rows": total, "written": written})
			}
			_, err = fmt.Fprintf(out, "%d of %d features copied from %s to %s\n", written, total, src.Name(), dst.Name())
			return err
		},
	}
}
