// Package compare diffs a proposed metrics record against its baseline and
// accumulates the resulting rows into a summary table.
package compare

import (
	"strconv"

	"github.com/signalnine/expandbench/internal/result"
)

const (
	Same            = "same"
	MissingBaseline = "Not found in baseline"
)

// Cell is one compared metric: a numeric delta when both sides parse as
// numbers, otherwise a string.
type Cell struct {
	Numeric bool
	Delta   float64
	Text    string
}

func NumberCell(delta float64) Cell { return Cell{Numeric: true, Delta: delta} }

func TextCell(s string) Cell { return Cell{Text: s} }

func (c Cell) String() string {
	if c.Numeric {
		return strconv.FormatFloat(c.Delta, 'f', -1, 64)
	}
	return c.Text
}

// Row holds the cells for one test file, in the key order of the proposed
// record.
type Row struct {
	TestFile string
	Keys     []string
	Cells    []Cell
}

func (r Row) Cell(key string) (Cell, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Cells[i], true
		}
	}
	return Cell{}, false
}

// Compare builds the row for testFile. Keys present only in the baseline
// are ignored.
func Compare(proposed, baseline result.Record, testFile string) Row {
	row := Row{
		TestFile: testFile,
		Keys:     make([]string, 0, len(proposed)),
		Cells:    make([]Cell, 0, len(proposed)),
	}
	for _, e := range proposed {
		row.Keys = append(row.Keys, e.Key)
		row.Cells = append(row.Cells, compareValue(e.Value, baseline, e.Key))
	}
	return row
}

func compareValue(pv string, baseline result.Record, key string) Cell {
	bv, ok := baseline.Get(key)
	if !ok {
		return TextCell(MissingBaseline)
	}
	pf, perr := strconv.ParseFloat(pv, 64)
	bf, berr := strconv.ParseFloat(bv, 64)
	if perr == nil && berr == nil {
		return NumberCell(pf - bf)
	}
	if pv == bv {
		return TextCell(Same)
	}
	return TextCell(pv)
}
