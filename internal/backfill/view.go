package backfill

import (
	"context"
	"errors"

	"polarlab/api/internal/measure"
	"polarlab/api/internal/store"
)

// CellState tells a renderer what to show in a grid cell.
type CellState string

const (
	CellValue CellState = "value"
	CellError CellState = "error"
	// CellPending marks a missing result that backfill can still produce.
	CellPending CellState = "pending"
	// CellUnresolvable marks a column whose name does not parse.
	CellUnresolvable CellState = "unresolvable"
	// CellEmpty is a stored result with neither value nor error.
	CellEmpty CellState = "empty"
)

type Cell struct {
	State CellState `json:"state"`
	Value *float64  `json:"value,omitempty"`
	Error string    `json:"error,omitempty"`
}

type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Row struct {
	Measure string `json:"measure"`
	Cells   []Cell `json:"cells"`
}

// View is a table rendered as measures (rows) by distributions (columns).
type View struct {
	TableID string   `json:"tableId"`
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// Render builds the grid for tableID from st. Member ids that no longer
// resolve are left out.
func Render(st store.State, tableID string) (View, error) {
	table, ok := st.Table(tableID)
	if !ok {
		return View{}, store.ErrTableNotFound
	}
	dists := st.TableDistributions(tableID)

	v := View{TableID: table.ID, Name: table.Name, Columns: make([]Column, len(dists)), Rows: []Row{}}
	for i, d := range dists {
		v.Columns[i] = Column{ID: d.ID, Name: d.Name}
	}
	if len(dists) == 0 {
		return v, nil
	}

	for _, name := range table.MeasureOrder {
		_, parseErr := measure.Parse(name)
		row := Row{Measure: name, Cells: make([]Cell, len(dists))}
		for i, d := range dists {
			row.Cells[i] = cellFor(d, name, parseErr == nil)
		}
		v.Rows = append(v.Rows, row)
	}
	return v, nil
}

func cellFor(d store.Distribution, name string, resolvable bool) Cell {
	r, ok := d.Result(name)
	if !ok {
		if resolvable {
			return Cell{State: CellPending}
		}
		return Cell{State: CellUnresolvable}
	}
	switch r.Status() {
	case measure.StatusError:
		return Cell{State: CellError, Error: r.Error}
	case measure.StatusValue:
		v := *r.Value
		return Cell{State: CellValue, Value: &v}
	default:
		return Cell{State: CellEmpty}
	}
}

// View backfills the table and renders it afterwards.
func (c *Coordinator) View(ctx context.Context, tableID string) (View, Report, error) {
	report, err := c.Backfill(ctx, tableID)
	if err != nil && !errors.Is(err, ErrNoComputer) {
		return View{}, report, err
	}
	v, err := Render(c.store.Snapshot(), tableID)
	return v, report, err
}
