package store

import (
	"errors"
	"fmt"

	"polarlab/api/internal/measure"
)

var (
	ErrTableNotFound        = errors.New("store: table not found")
	ErrDistributionNotFound = errors.New("store: distribution not found")
	ErrReadOnlyTable        = errors.New("store: default table membership is read-only")
	ErrIndexOutOfRange      = errors.New("store: index out of range")
)

// State is one immutable snapshot of the workspace. Transitions never modify
// the receiver; they return a new State sharing whatever did not change.
// Callers must treat every slice and map reachable from a State as
// read-only.
type State struct {
	ActiveMeasures []measure.Config         `json:"activeMeasures"`
	Distributions  map[string]Distribution `json:"distributions"`
	Tables         []Table                 `json:"tables"`
}

// Distribution returns the distribution stored under id.
func (s State) Distribution(id string) (Distribution, bool) {
	d, ok := s.Distributions[id]
	return d, ok
}

// Table returns the table with the given id.
func (s State) Table(id string) (Table, bool) {
	if i := s.tableIndex(id); i >= 0 {
		return s.Tables[i], true
	}
	return Table{}, false
}

// TableDistributions resolves a table's members in table order, skipping
// ids with no stored distribution.
func (s State) TableDistributions(id string) []Distribution {
	t, ok := s.Table(id)
	if !ok {
		return nil
	}
	out := make([]Distribution, 0, len(t.DistributionIDs))
	for _, distID := range t.DistributionIDs {
		if d, ok := s.Distributions[distID]; ok {
			out = append(out, d)
		}
	}
	return out
}

func (s State) tableIndex(id string) int {
	for i, t := range s.Tables {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// withTable returns a copy of s with Tables[i] replaced.
func (s State) withTable(i int, t Table) State {
	tables := make([]Table, len(s.Tables))
	copy(tables, s.Tables)
	tables[i] = t
	s.Tables = tables
	return s
}

// SetActiveMeasures replaces the calculator's measure set.
func (s State) SetActiveMeasures(configs []measure.Config) State {
	active := make([]measure.Config, len(configs))
	for i, cfg := range configs {
		active[i] = cfg.Clone()
	}
	s.ActiveMeasures = active
	return s
}

// SaveDistribution upserts d by id.
func (s State) SaveDistribution(d Distribution) State {
	dists := make(map[string]Distribution, len(s.Distributions)+1)
	for id, existing := range s.Distributions {
		dists[id] = existing
	}
	dists[d.ID] = d.Clone()
	s.Distributions = dists
	return s
}

// AddTable appends t, which is expected to carry a fresh id.
func (s State) AddTable(t Table) State {
	tables := make([]Table, 0, len(s.Tables)+1)
	tables = append(tables, s.Tables...)
	tables = append(tables, t.Clone())
	s.Tables = tables
	return s
}

// RemoveTable drops the table with the given id. The default table is never
// removed and distributions are left alone.
func (s State) RemoveTable(id string) State {
	if id == DefaultTableID {
		return s
	}
	i := s.tableIndex(id)
	if i < 0 {
		return s
	}
	tables := make([]Table, 0, len(s.Tables)-1)
	tables = append(tables, s.Tables[:i]...)
	tables = append(tables, s.Tables[i+1:]...)
	s.Tables = tables
	return s
}

// AddToTable appends distID to the table along with any of the
// distribution's measure names the table lacks, in the distribution's own
// order. It reports false, leaving s unchanged, when the table is missing,
// is the default table, or already holds distID.
func (s State) AddToTable(tableID, distID string) (State, bool) {
	i := s.tableIndex(tableID)
	if i < 0 || tableID == DefaultTableID {
		return s, false
	}
	t := s.Tables[i]
	if t.Contains(distID) {
		return s, false
	}
	next := t.Clone()
	next.DistributionIDs = append(next.DistributionIDs, distID)
	if d, ok := s.Distributions[distID]; ok {
		next.MeasureOrder = appendMissing(next.MeasureOrder, d.MeasureNames())
	}
	return s.withTable(i, next), true
}

// RemoveFromTable drops distID from the table's members. MeasureOrder is
// kept as is, even when a column no longer has any member with a value.
func (s State) RemoveFromTable(tableID, distID string) (State, error) {
	if tableID == DefaultTableID {
		return s, ErrReadOnlyTable
	}
	i := s.tableIndex(tableID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	t := s.Tables[i]
	if !t.Contains(distID) {
		return s, nil
	}
	next := t.Clone()
	ids := next.DistributionIDs[:0]
	for _, id := range next.DistributionIDs {
		if id != distID {
			ids = append(ids, id)
		}
	}
	next.DistributionIDs = ids
	return s.withTable(i, next), nil
}

// AddMeasureNames appends the names the table does not have yet, keeping
// their input order.
func (s State) AddMeasureNames(tableID string, names []string) (State, error) {
	i := s.tableIndex(tableID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	t := s.Tables[i]
	merged := appendMissing(append([]string{}, t.MeasureOrder...), names)
	if len(merged) == len(t.MeasureOrder) {
		return s, nil
	}
	next := t.Clone()
	next.MeasureOrder = merged
	return s.withTable(i, next), nil
}

// ReorderMeasure moves the column at from to position to. Indices outside
// MeasureOrder leave s unchanged and return ErrIndexOutOfRange.
func (s State) ReorderMeasure(tableID string, from, to int) (State, error) {
	i := s.tableIndex(tableID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	order, err := move(s.Tables[i].MeasureOrder, from, to)
	if err != nil {
		return s, err
	}
	next := s.Tables[i].Clone()
	next.MeasureOrder = order
	return s.withTable(i, next), nil
}

// ReorderDistribution moves the member at from to position to. Indices
// outside DistributionIDs leave s unchanged and return ErrIndexOutOfRange.
func (s State) ReorderDistribution(tableID string, from, to int) (State, error) {
	i := s.tableIndex(tableID)
	if i < 0 {
		return s, fmt.Errorf("%w: %s", ErrTableNotFound, tableID)
	}
	ids, err := move(s.Tables[i].DistributionIDs, from, to)
	if err != nil {
		return s, err
	}
	next := s.Tables[i].Clone()
	next.DistributionIDs = ids
	return s.withTable(i, next), nil
}

// move removes the element at from and reinserts it at to, on a copy.
func move[T any](items []T, from, to int) ([]T, error) {
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return nil, fmt.Errorf("%w: move %d -> %d in %d items", ErrIndexOutOfRange, from, to, len(items))
	}
	out := make([]T, 0, len(items))
	out = append(out, items[:from]...)
	out = append(out, items[from+1:]...)
	item := items[from]
	out = append(out[:to], append([]T{item}, out[to:]...)...)
	return out, nil
}

func appendMissing(existing, names []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(names))
	for _, n := range existing {
		seen[n] = struct{}{}
	}
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		existing = append(existing, n)
	}
	return existing
}
