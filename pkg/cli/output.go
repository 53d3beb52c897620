package cli

import (
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/USDAForestService/gdalraster-sub000/internal/table"
)

// Output formats accepted by --output.
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputCSV   = "csv"
)

func validateOutputFormat(output string) error {
	switch output {
	case OutputTable, OutputJSON, OutputCSV:
		return nil
	}
	return fmt.Errorf("unsupported output format %q: use 'table', 'json' or 'csv'", output)
}

// defaultOutput is table for an interactive terminal and json otherwise.
func defaultOutput(w io.Writer) string {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return OutputTable
	}
	return OutputJSON
}

// getOutputFormat returns the effective output format from the root command's persistent flags.
func getOutputFormat(cmd *cobra.Command) string {
	v, _ := cmd.Root().PersistentFlags().GetString("output")
	return v
}

// PrintJSON writes v as indented JSON followed by a newline.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintTable writes upper-cased headers and rows as aligned columns
// separated by two spaces. Nothing is written without columns.
func PrintTable(w io.Writer, columns []string, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			if len(row[i]) > widths[i] {
				widths[i] = len(row[i])
			}
		}
	}

	writeLine := func(cells []string) {
		var b strings.Builder
		for i := range columns {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i == len(columns)-1 {
				b.WriteString(cell)
				break
			}
			fmt.Fprintf(&b, "%-*s  ", widths[i], cell)
		}
		_, _ = fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = strings.ToUpper(c)
	}
	writeLine(header)
	for _, row := range rows {
		writeLine(row)
	}
}

// PrintCSV writes a header line followed by rows.
func PrintCSV(w io.Writer, columns []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

// PrintDetail writes one "key: value" line per field, sorted by key.
func PrintDetail(w io.Writer, fields map[string]any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(w, "%s: %s\n", k, formatValue(fields[k]))
	}
}

// formatValue renders a generic value for table and detail output.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return hex.EncodeToString(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case fmt.Stringer:
		return x.String()
	case map[string]any, []any, []string, []int, []int32, []int64, []float64, []bool:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

// cellValue converts a table cell to a presentation value: dates and
// date-times become strings, everything else passes through.
func cellValue(kind table.Kind, v any) any {
	if v == nil {
		return nil
	}
	switch kind {
	case table.KindDate:
		if days, ok := v.(int32); ok {
			return time.Unix(int64(days)*86400, 0).UTC().Format(time.DateOnly)
		}
	case table.KindDateTime:
		if sec, ok := v.(float64); ok {
			whole := int64(sec)
			nsec := int64((sec - float64(whole)) * 1e9)
			return time.Unix(whole, nsec).UTC().Format(time.RFC3339Nano)
		}
	}
	return v
}

// tableRecords returns the rows of tbl as name to value maps.
func tableRecords(tbl *table.Table) []map[string]any {
	out := make([]map[string]any, tbl.Len())
	for i := range out {
		rec := tbl.Record(i)
		m := make(map[string]any, len(rec.Names))
		for j, n := range rec.Names {
			m[n] = cellValue(rec.Kinds[j], rec.Values[j])
		}
		out[i] = m
	}
	return out
}

// tableStrings returns the rows of tbl rendered as strings.
func tableStrings(tbl *table.Table) ([]string, [][]string) {
	rows := make([][]string, tbl.Len())
	for i := range rows {
		rec := tbl.Record(i)
		row := make([]string, len(rec.Values))
		for j, v := range rec.Values {
			row[j] = formatValue(cellValue(rec.Kinds[j], v))
		}
		rows[i] = row
	}
	return tbl.Names(), rows
}

// printFeatures writes a fetched table in the selected output format.
func printFeatures(w io.Writer, format string, tbl *table.Table) error {
	switch format {
	case OutputJSON:
		return PrintJSON(w, tableRecords(tbl))
	case OutputCSV:
		names, rows := tableStrings(tbl)
		return PrintCSV(w, names, rows)
	default:
		names, rows := tableStrings(tbl)
		PrintTable(w, names, rows)
		return nil
	}
}
