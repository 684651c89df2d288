// Package store owns the workspace: distributions, comparison tables and the
// active measure set. State transitions are pure functions over immutable
// snapshots; Store serializes them and notifies listeners after each commit.
package store

import (
	"sync"

	"go.uber.org/zap"

	"polarlab/api/internal/measure"
	"polarlab/api/internal/util"
)

// Listener observes committed snapshots. Listeners run while the store is
// locked, in commit order, and must not call back into the Store.
type Listener func(State)

// Store is the single writer of workspace state.
type Store struct {
	mu        sync.Mutex
	state     State
	listeners []Listener
	newID     func() string
	logger    *zap.Logger
}

// New creates a Store holding initial.
func New(initial State, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{state: initial, newID: util.NewUUID, logger: logger.Named("store")}
}

// Subscribe registers fn for every subsequent commit.
func (s *Store) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn to the current state and commits the result unless fn
// fails. It is the building block for multi-step operations that must be
// atomic with respect to other mutations.
func (s *Store) Update(fn func(State) (State, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.state)
	if err != nil {
		return err
	}
	s.commit(next)
	return nil
}

func (s *Store) commit(next State) {
	s.state = next
	for _, fn := range s.listeners {
		fn(next)
	}
}

// SetActiveMeasures replaces the calculator's measure set.
func (s *Store) SetActiveMeasures(configs []measure.Config) {
	_ = s.Update(func(st State) (State, error) {
		return st.SetActiveMeasures(configs), nil
	})
}

// SaveDistribution upserts d by id.
func (s *Store) SaveDistribution(d Distribution) {
	_ = s.Update(func(st State) (State, error) {
		return st.SaveDistribution(d), nil
	})
	s.logger.Debug("distribution saved", zap.String("id", d.ID), zap.Int("measures", len(d.Measures)))
}

// AddTable creates an empty table named name under a fresh id.
func (s *Store) AddTable(name string) Table {
	id := s.newID()
	t := Table{ID: id, Name: name, DistributionIDs: []string{}, MeasureOrder: []string{}}
	_ = s.Update(func(st State) (State, error) {
		return st.AddTable(t), nil
	})
	s.logger.Info("table added", zap.String("id", id), zap.String("name", name))
	return t
}

// RemoveTable deletes a table. The default table is kept.
func (s *Store) RemoveTable(id string) {
	_ = s.Update(func(st State) (State, error) {
		return st.RemoveTable(id), nil
	})
}

// AddToTable adds distID to the table and reports whether anything changed.
func (s *Store) AddToTable(tableID, distID string) bool {
	var added bool
	_ = s.Update(func(st State) (State, error) {
		next, ok := st.AddToTable(tableID, distID)
		added = ok
		return next, nil
	})
	return added
}

// RemoveFromTable removes distID from the table's members.
func (s *Store) RemoveFromTable(tableID, distID string) error {
	return s.Update(func(st State) (State, error) {
		return st.RemoveFromTable(tableID, distID)
	})
}

// AddMeasureNames appends the names the table does not have yet.
func (s *Store) AddMeasureNames(tableID string, names []string) error {
	return s.Update(func(st State) (State, error) {
		return st.AddMeasureNames(tableID, names)
	})
}

// ReorderMeasure moves a column within the table.
func (s *Store) ReorderMeasure(tableID string, from, to int) error {
	return s.Update(func(st State) (State, error) {
		return st.ReorderMeasure(tableID, from, to)
	})
}

// ReorderDistribution moves a member within the table.
func (s *Store) ReorderDistribution(tableID string, from, to int) error {
	return s.Update(func(st State) (State, error) {
		return st.ReorderDistribution(tableID, from, to)
	})
}
