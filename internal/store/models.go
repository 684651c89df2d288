package store

import "polarlab/api/internal/measure"

// Distribution is a weighted point-mass profile on [0,1] together with the
// measure results computed for it. Only Measures changes after creation.
type Distribution struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	X        []float64        `json:"x"`
	Weights  []float64        `json:"weights"`
	Measures []measure.Result `json:"measures"`
}

// Table is an ordered selection of distributions with an ordered set of
// measure columns. Distributions are referenced by id only.
type Table struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DistributionIDs []string `json:"distributionIds"`
	MeasureOrder    []string `json:"measureOrder"`
}

// GenerateX returns n evenly spaced coordinates over [0,1], or the single
// midpoint 0.5 when n is 1. Distributions are compared by their x values, so
// every caller must go through this function.
func GenerateX(n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n == 1 {
		return []float64{0.5}
	}
	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i) / float64(n-1)
	}
	return x
}

// NewDistribution builds a distribution over len(weights) generated points.
func NewDistribution(id, name string, weights []float64, measures []measure.Result) Distribution {
	return Distribution{
		ID:       id,
		Name:     name,
		X:        GenerateX(len(weights)),
		Weights:  append([]float64{}, weights...),
		Measures: append([]measure.Result{}, measures...),
	}
}

// SameShape reports whether d and other have element-wise equal x and
// weights. This is the identity used when merging saves; ids and names are
// ignored.
func (d Distribution) SameShape(other Distribution) bool {
	return floatsEqual(d.X, other.X) && floatsEqual(d.Weights, other.Weights)
}

func floatsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MeasureNames returns the names of d's results in stored order.
func (d Distribution) MeasureNames() []string {
	names := make([]string, len(d.Measures))
	for i, m := range d.Measures {
		names[i] = m.Name
	}
	return names
}

// Result looks up the result stored under name.
func (d Distribution) Result(name string) (measure.Result, bool) {
	for _, m := range d.Measures {
		if m.Name == name {
			return m, true
		}
	}
	return measure.Result{}, false
}

// HasMeasure reports whether d carries a result named name.
func (d Distribution) HasMeasure(name string) bool {
	_, ok := d.Result(name)
	return ok
}

// WithMeasures returns a copy of d with results merged in: an existing entry
// with the same name is replaced in place, new names are appended.
func (d Distribution) WithMeasures(results []measure.Result) Distribution {
	out := d.Clone()
	index := make(map[string]int, len(out.Measures))
	for i, m := range out.Measures {
		index[m.Name] = i
	}
	for _, r := range results {
		if i, ok := index[r.Name]; ok {
			out.Measures[i] = r
			continue
		}
		index[r.Name] = len(out.Measures)
		out.Measures = append(out.Measures, r)
	}
	return out
}

// WithMissingMeasures returns a copy of d extended by the results whose
// names d does not have yet, plus those names in input order. Existing
// results are never overwritten.
func (d Distribution) WithMissingMeasures(results []measure.Result) (Distribution, []string) {
	out := d.Clone()
	seen := make(map[string]struct{}, len(out.Measures))
	for _, m := range out.Measures {
		seen[m.Name] = struct{}{}
	}
	var added []string
	for _, r := range results {
		if _, ok := seen[r.Name]; ok {
			continue
		}
		seen[r.Name] = struct{}{}
		out.Measures = append(out.Measures, r)
		added = append(added, r.Name)
	}
	return out, added
}

// Clone returns a deep copy of d.
func (d Distribution) Clone() Distribution {
	out := d
	out.X = append([]float64{}, d.X...)
	out.Weights = append([]float64{}, d.Weights...)
	out.Measures = append([]measure.Result{}, d.Measures...)
	return out
}

// Contains reports whether distID is a member of t.
func (t Table) Contains(distID string) bool {
	for _, id := range t.DistributionIDs {
		if id == distID {
			return true
		}
	}
	return false
}

// HasMeasure reports whether name is one of t's columns.
func (t Table) HasMeasure(name string) bool {
	for _, n := range t.MeasureOrder {
		if n == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	out := t
	out.DistributionIDs = append([]string{}, t.DistributionIDs...)
	out.MeasureOrder = append([]string{}, t.MeasureOrder...)
	return out
}
