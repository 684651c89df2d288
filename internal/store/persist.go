package store

import "polarlab/api/internal/measure"

// Snapshot is the persisted form of the workspace. It carries user data only;
// built-in distributions and the default table are never stored.
type Snapshot struct {
	ActiveMeasures []measure.Config         `json:"activeMeasures"`
	Distributions  map[string]Distribution `json:"distributions"`
	Tables         []Table                 `json:"tables"`
}

// Partialize extracts what must be persisted from s: every distribution
// outside the built-in set, every table but the default one, and the active
// measures in full.
func Partialize(s State, defaults Defaults) Snapshot {
	out := Snapshot{
		ActiveMeasures: append([]measure.Config{}, s.ActiveMeasures...),
		Distributions:  make(map[string]Distribution),
		Tables:         make([]Table, 0, len(s.Tables)),
	}
	for id, d := range s.Distributions {
		if defaults.IsDefaultDistribution(id) {
			continue
		}
		out.Distributions[id] = d
	}
	for _, t := range s.Tables {
		if t.ID == DefaultTableID {
			continue
		}
		out.Tables = append(out.Tables, t)
	}
	return out
}

// Merge rebuilds a full State from a persisted snapshot and freshly generated
// defaults. Built-in distributions come first and user entries win on id
// collision; the default table always leads the table list and any copy of
// it found in the snapshot is ignored. A nil snapshot yields the defaults.
func Merge(snapshot *Snapshot, defaults Defaults) State {
	var persisted Snapshot
	if snapshot != nil {
		persisted = *snapshot
	}

	dists := make(map[string]Distribution, len(defaults.Distributions)+len(persisted.Distributions))
	for id, d := range defaults.Distributions {
		dists[id] = d.Clone()
	}
	for id, d := range persisted.Distributions {
		if d.ID == "" {
			d.ID = id
		}
		dists[id] = d.Clone()
	}

	tables := make([]Table, 0, len(persisted.Tables)+1)
	tables = append(tables, defaults.Table.Clone())
	for _, t := range persisted.Tables {
		if t.ID == DefaultTableID {
			continue
		}
		tables = append(tables, t.Clone())
	}

	active := defaults.ActiveMeasures
	if persisted.ActiveMeasures != nil {
		active = persisted.ActiveMeasures
	}

	return State{Distributions: dists, Tables: tables}.SetActiveMeasures(active)
}
