package store

import "polarlab/api/internal/measure"

// DefaultTableID identifies the built-in reference table. It is always
// present and its membership cannot be changed.
const DefaultTableID = "default"

const defaultTableName = "Reference distributions"

// Defaults is the built-in content shipped with the application. It is
// regenerated on every load so that reference data can change between
// releases without being frozen into stored user state.
type Defaults struct {
	Distributions  map[string]Distribution
	Table          Table
	ActiveMeasures []measure.Config
}

var builtins = []struct {
	id      string
	name    string
	weights []float64
}{
	{"builtin-uniform", "Uniform", []float64{0.2, 0.2, 0.2, 0.2, 0.2}},
	{"builtin-consensus", "Consensus", []float64{0, 0, 1, 0, 0}},
	{"builtin-polarized", "Full polarization", []float64{0.5, 0, 0, 0, 0.5}},
	{"builtin-split", "Moderate split", []float64{0.25, 0.25, 0, 0.25, 0.25}},
	{"builtin-three-camps", "Three camps", []float64{1.0 / 3, 0, 1.0 / 3, 0, 1.0 / 3}},
	{"builtin-skewed", "Skewed", []float64{0.4, 0.3, 0.2, 0.1, 0}},
}

// BuiltinDefaults returns a fresh copy of the built-in content.
func BuiltinDefaults() Defaults {
	dists := make(map[string]Distribution, len(builtins))
	ids := make([]string, 0, len(builtins))
	for _, b := range builtins {
		dists[b.id] = NewDistribution(b.id, b.name, b.weights, nil)
		ids = append(ids, b.id)
	}
	active := measure.DefaultActive()
	return Defaults{
		Distributions: dists,
		Table: Table{
			ID:              DefaultTableID,
			Name:            defaultTableName,
			DistributionIDs: ids,
			MeasureOrder:    measure.Names(active),
		},
		ActiveMeasures: active,
	}
}

// IsDefaultDistribution reports whether id belongs to the built-in set.
func (d Defaults) IsDefaultDistribution(id string) bool {
	_, ok := d.Distributions[id]
	return ok
}

// State returns the workspace as it looks before any user data is merged in.
func (d Defaults) State() State {
	return Merge(nil, d)
}
