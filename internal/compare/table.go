package compare

// Table accumulates comparison rows. The zero value is ready to use.
type Table struct {
	rows    []Row
	columns []string
	seen    map[string]struct{}
}

type Mean struct {
	Column string
	Value  float64
}

func (t *Table) Add(r Row) {
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	for _, k := range r.Keys {
		if _, ok := t.seen[k]; ok {
			continue
		}
		t.seen[k] = struct{}{}
		t.columns = append(t.columns, k)
	}
	t.rows = append(t.rows, r)
}

func (t *Table) Rows() []Row { return t.rows }

// Columns lists every key seen so far in first-seen order.
func (t *Table) Columns() []string { return t.columns }

func (t *Table) Len() int { return len(t.rows) }

// Means averages each column whose cells are numeric in every row that has
// the column. Columns with any string cell are left out.
func (t *Table) Means() []Mean {
	var means []Mean
	for _, col := range t.columns {
		var sum float64
		n := 0
		numeric := true
		for _, r := range t.rows {
			c, ok := r.Cell(col)
			if !ok {
				continue
			}
			if !c.Numeric {
				numeric = false
				break
			}
			sum += c.Delta
			n++
		}
		if numeric && n > 0 {
			means = append(means, Mean{Column: col, Value: sum / float64(n)})
		}
	}
	return means
}
