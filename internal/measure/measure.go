// Package measure defines polarization measure configurations, their results,
// and the canonical naming scheme that doubles as a measure column's identity.
package measure

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Kind identifies one of the measures the computation service knows.
type Kind string

const (
	KindEstebanRay     Kind = "EstebanRay"
	KindBiPol          Kind = "BiPol"
	KindMECNormalized  Kind = "MECNormalized"
	KindMEC            Kind = "MEC"
	KindGeneralizedMEC Kind = "GeneralizedMEC"
	KindEMD            Kind = "EMD"
	KindShannon        Kind = "Shannon"
	KindVanDerEijk     Kind = "VanDerEijk"
	KindExperts        Kind = "Experts"
	KindGeneralizedER  Kind = "GeneralizedER"
)

// Tolerance is used when comparing numeric parameters.
const Tolerance = 1e-9

var (
	ErrUnknownKind      = errors.New("measure: unknown kind")
	ErrInvalidParam     = errors.New("measure: invalid parameter")
	ErrUnrecognizedName = errors.New("measure: unrecognized measure name")
)

// Params holds named parameter values. Values are float64 or string.
type Params map[string]any

// Config is an immutable measure configuration.
type Config struct {
	Type   Kind   `json:"type"`
	Params Params `json:"params"`
}

// Float returns the numeric parameter key, or fallback when it is absent or
// not numeric.
func (p Params) Float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// String returns the string parameter key, or fallback.
func (p Params) String(key, fallback string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return fallback
}

func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Clone returns a copy that shares no map with c.
func (c Config) Clone() Config {
	return Config{Type: c.Type, Params: c.Params.clone()}
}

// Equal compares two configurations structurally. Numeric parameters are
// compared within Tolerance.
func (c Config) Equal(other Config) bool {
	if c.Type != other.Type || len(c.Params) != len(other.Params) {
		return false
	}
	for key, v := range c.Params {
		ov, ok := other.Params[key]
		if !ok {
			return false
		}
		if !paramEqual(v, ov) {
			return false
		}
	}
	return true
}

func paramEqual(a, b any) bool {
	as, aIsString := a.(string)
	bs, bIsString := b.(string)
	if aIsString || bIsString {
		return aIsString && bIsString && as == bs
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	return math.Abs(af-bf) <= Tolerance
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// Validate checks c against the registry: the kind must be known, every
// parameter must be declared, numeric parameters must be finite and
// non-negative and string parameters must come from the declared options.
func (c Config) Validate() error {
	spec, ok := Lookup(c.Type)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Type)
	}
	declared := make(map[string]ParamSpec, len(spec.Params))
	for _, p := range spec.Params {
		declared[p.Key] = p
	}
	keys := make([]string, 0, len(c.Params))
	for key := range c.Params {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		p, ok := declared[key]
		if !ok {
			return fmt.Errorf("%w: %s does not take %q", ErrInvalidParam, c.Type, key)
		}
		value := c.Params[key]
		if p.IsString() {
			s, ok := value.(string)
			if !ok || !p.allows(s) {
				return fmt.Errorf("%w: %s.%s=%v", ErrInvalidParam, c.Type, key, value)
			}
			continue
		}
		f, ok := toFloat(value)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return fmt.Errorf("%w: %s.%s=%v", ErrInvalidParam, c.Type, key, value)
		}
	}
	return nil
}

// Result is the outcome of computing one measure. Exactly one of Value and
// Error is expected to be set; both absent is tolerated.
type Result struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	Error string   `json:"error,omitempty"`
}

// ResultStatus classifies a Result for rendering.
type ResultStatus string

const (
	StatusValue ResultStatus = "value"
	StatusError ResultStatus = "error"
	StatusEmpty ResultStatus = "empty"
)

// Status reports which field of r is meaningful. An error wins over a value.
func (r Result) Status() ResultStatus {
	if r.Error != "" {
		return StatusError
	}
	if r.Value != nil {
		return StatusValue
	}
	return StatusEmpty
}

// NewValue returns a result holding v.
func NewValue(name string, v float64) Result {
	return Result{Name: name, Value: &v}
}

// NewError returns a result holding a computation error.
func NewError(name, message string) Result {
	return Result{Name: name, Error: message}
}
