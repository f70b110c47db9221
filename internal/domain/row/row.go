package row

// Cell is one named column value inside a Row.
type Cell struct {
	Name  string
	Value Value
}

// Row is an ordered list of cells read from a tabular source.
type Row struct {
	// Position is the 0-based data row number within the run.
	Position int
	Cells    []Cell
}

// New builds a row from parallel header and value slices.
// Missing trailing values are Absent.
func New(position int, headers []string, values []Value) Row {
	cells := make([]Cell, len(headers))
	for i, h := range headers {
		cells[i].Name = h
		if i < len(values) {
			cells[i].Value = values[i]
		}
	}
	return Row{Position: position, Cells: cells}
}

// Get returns the value of the first cell named name.
func (r Row) Get(name string) (Value, bool) {
	for _, c := range r.Cells {
		if c.Name == name {
			return c.Value, true
		}
	}
	return Absent(), false
}
