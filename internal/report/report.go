// Package report renders run summaries: one comparison table per expansion
// limit followed by the column means.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/signalnine/expandbench/internal/compare"
	"github.com/signalnine/expandbench/internal/runner"
)

const (
	FormatTable    = "table"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
	FormatCSV      = "csv"
)

const testFileColumn = "test_file"

type Options struct {
	Format    string
	UseColors bool
	Precision int
}

func Write(w io.Writer, s *runner.Summary, opts Options) error {
	if opts.Precision <= 0 {
		opts.Precision = 4
	}
	switch opts.Format {
	case FormatMarkdown:
		return writeMarkdown(w, s, opts)
	case FormatJSON:
		return writeJSON(w, s)
	case FormatCSV:
		for _, limit := range s.Limits {
			if err := WriteCSV(w, s.Table(limit)); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeTables(w, s, opts)
	}
}

func header(t *compare.Table) []string {
	return append([]string{testFileColumn}, t.Columns()...)
}

func cellText(r compare.Row, col string, precision int) string {
	c, ok := r.Cell(col)
	if !ok {
		return ""
	}
	if c.Numeric {
		return fmt.Sprintf("%.*f", precision, c.Delta)
	}
	return c.Text
}

func writeTables(w io.Writer, s *runner.Summary, opts Options) error {
	var red, green, yellow func(...any) string
	if opts.UseColors {
		red = color.New(color.FgRed).SprintFunc()
		green = color.New(color.FgGreen).SprintFunc()
		yellow = color.New(color.FgYellow).SprintFunc()
	} else {
		red, green, yellow = fmt.Sprint, fmt.Sprint, fmt.Sprint
	}

	for i, limit := range s.Limits {
		t := s.Table(limit)
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Expansion limit %d (%d files)\n", limit, t.Len())
		if t.Len() == 0 {
			fmt.Fprintln(w, "No comparable results")
			continue
		}

		table := tablewriter.NewWriter(w)
		table.Header(header(t))
		table.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})
		var data [][]string
		for _, r := range t.Rows() {
			row := []string{r.TestFile}
			for _, col := range t.Columns() {
				c, ok := r.Cell(col)
				switch {
				case !ok:
					row = append(row, "")
				case !c.Numeric:
					row = append(row, c.Text)
				case c.Delta > 0:
					row = append(row, red(fmt.Sprintf("+%.*f", opts.Precision, c.Delta)))
				case c.Delta < 0:
					row = append(row, green(fmt.Sprintf("%.*f", opts.Precision, c.Delta)))
				default:
					row = append(row, yellow(fmt.Sprintf("%.*f", opts.Precision, 0.0)))
				}
			}
			data = append(data, row)
		}
		if err := table.Bulk(data); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
		writeMeans(w, t, opts.Precision)
	}
	writeOutcomes(w, s)
	return nil
}

func writeMeans(w io.Writer, t *compare.Table, precision int) {
	means := t.Means()
	if len(means) == 0 {
		return
	}
	parts := make([]string, len(means))
	for i, m := range means {
		parts[i] = fmt.Sprintf("%s=%.*f", m.Column, precision, m.Value)
	}
	fmt.Fprintf(w, "Means: %s\n", strings.Join(parts, ", "))
}

func writeOutcomes(w io.Writer, s *runner.Summary) {
	var parts []string
	for _, o := range runner.Outcomes {
		if n := s.Outcomes[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", o, n))
		}
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "Outcomes: %s\n", strings.Join(parts, ", "))
	}
}

func writeMarkdown(w io.Writer, s *runner.Summary, opts Options) error {
	for i, limit := range s.Limits {
		t := s.Table(limit)
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "### Expansion limit %d\n\n", limit)
		if t.Len() == 0 {
			fmt.Fprintln(w, "No comparable results.")
			continue
		}
		cols := header(t)
		fmt.Fprintf(w, "| %s |\n", strings.Join(cols, " | "))
		fmt.Fprintf(w, "|%s\n", strings.Repeat("---|", len(cols)))
		for _, r := range t.Rows() {
			cells := []string{r.TestFile}
			for _, col := range t.Columns() {
				cells = append(cells, cellText(r, col, opts.Precision))
			}
			fmt.Fprintf(w, "| %s |\n", strings.Join(cells, " | "))
		}
		if means := t.Means(); len(means) > 0 {
			fmt.Fprintln(w)
			for _, m := range means {
				fmt.Fprintf(w, "- mean %s: %.*f\n", m.Column, opts.Precision, m.Value)
			}
		}
	}
	return nil
}

type jsonTable struct {
	Limit int                `json:"limit"`
	Rows  []map[string]any   `json:"rows"`
	Means map[string]float64 `json:"means"`
}

type jsonSummary struct {
	Files    int            `json:"files"`
	Outcomes map[string]int `json:"outcomes"`
	Tables   []jsonTable    `json:"tables"`
}

func writeJSON(w io.Writer, s *runner.Summary) error {
	out := jsonSummary{Files: s.Files, Outcomes: s.OutcomeCounts(), Tables: []jsonTable{}}
	for _, limit := range s.Limits {
		t := s.Table(limit)
		jt := jsonTable{Limit: limit, Rows: []map[string]any{}, Means: map[string]float64{}}
		for _, r := range t.Rows() {
			row := map[string]any{testFileColumn: r.TestFile}
			for i, k := range r.Keys {
				c := r.Cells[i]
				if c.Numeric {
					row[k] = c.Delta
				} else {
					row[k] = c.Text
				}
			}
			jt.Rows = append(jt.Rows, row)
		}
		for _, m := range t.Means() {
			jt.Means[m.Column] = m.Value
		}
		out.Tables = append(out.Tables, jt)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// WriteCSV writes t with full-precision numeric cells, one row per test file.
func WriteCSV(w io.Writer, t *compare.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header(t)); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	for _, r := range t.Rows() {
		rec := []string{r.TestFile}
		for _, col := range t.Columns() {
			if c, ok := r.Cell(col); ok {
				rec = append(rec, c.String())
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("writing csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
