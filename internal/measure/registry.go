package measure

// ParamSpec declares one parameter of a measure kind.
type ParamSpec struct {
	Key     string   `json:"key"`
	Label   string   `json:"label"`
	Default any      `json:"default"`
	Options []string `json:"options,omitempty"`
}

// IsString reports whether the parameter takes a value from Options.
func (p ParamSpec) IsString() bool {
	_, ok := p.Default.(string)
	return ok
}

func (p ParamSpec) allows(value string) bool {
	for _, option := range p.Options {
		if option == value {
			return true
		}
	}
	return false
}

// KindSpec describes one registered measure kind.
type KindSpec struct {
	Type   Kind        `json:"type"`
	Label  string      `json:"label"`
	Params []ParamSpec `json:"params"`
}

// AlienationFunctions are the alienation choices the service understands.
var AlienationFunctions = []string{
	"d",
	"d^2",
	"d^3",
	"d+d^2",
	"d+2d^2",
	"exp(d)-1",
	"exp(2d)-1",
}

func alienationParam() ParamSpec {
	return ParamSpec{
		Key:     "alienation",
		Label:   "alienation",
		Default: "d",
		Options: append([]string(nil), AlienationFunctions...),
	}
}

// Registry returns every measure kind in display order. The returned slice
// is freshly built and may be modified by the caller.
func Registry() []KindSpec {
	return []KindSpec{
		{
			Type:   KindEstebanRay,
			Label:  "Esteban-Ray",
			Params: []ParamSpec{{Key: "alpha", Label: "alpha", Default: 0.8}},
		},
		{Type: KindBiPol, Label: "BiPol", Params: []ParamSpec{}},
		{
			Type:  KindMECNormalized,
			Label: "MEC Normalized",
			Params: []ParamSpec{
				{Key: "alpha", Label: "alpha", Default: 2.0},
				{Key: "beta", Label: "beta", Default: 1.15},
			},
		},
		{
			Type:  KindMEC,
			Label: "MEC",
			Params: []ParamSpec{
				{Key: "alpha", Label: "alpha", Default: 2.0},
				{Key: "beta", Label: "beta", Default: 1.15},
			},
		},
		{
			Type:  KindGeneralizedMEC,
			Label: "Generalized MEC",
			Params: []ParamSpec{
				{Key: "alpha", Label: "alpha", Default: 2.0},
				alienationParam(),
			},
		},
		{Type: KindEMD, Label: "EMD", Params: []ParamSpec{}},
		{Type: KindShannon, Label: "Shannon", Params: []ParamSpec{}},
		{Type: KindVanDerEijk, Label: "Van der Eijk", Params: []ParamSpec{}},
		{Type: KindExperts, Label: "Experts (5-cat)", Params: []ParamSpec{}},
		{
			Type:  KindGeneralizedER,
			Label: "Generalized ER",
			Params: []ParamSpec{
				{Key: "alpha", Label: "alpha", Default: 0.8},
				alienationParam(),
			},
		},
	}
}

// Lookup returns the registry entry for kind.
func Lookup(kind Kind) (KindSpec, bool) {
	for _, spec := range Registry() {
		if spec.Type == kind {
			return spec, true
		}
	}
	return KindSpec{}, false
}

// DefaultConfig returns kind configured with every registry default.
func DefaultConfig(kind Kind) (Config, bool) {
	spec, ok := Lookup(kind)
	if !ok {
		return Config{}, false
	}
	params := make(Params, len(spec.Params))
	for _, p := range spec.Params {
		params[p.Key] = p.Default
	}
	return Config{Type: kind, Params: params}, true
}

// DefaultActive is the measure set a fresh calculator starts with.
func DefaultActive() []Config {
	return []Config{
		{Type: KindEstebanRay, Params: Params{"alpha": 0.8}},
		{Type: KindBiPol, Params: Params{}},
		{Type: KindMECNormalized, Params: Params{"alpha": 2.0, "beta": 1.15}},
		{Type: KindEMD, Params: Params{}},
		{Type: KindShannon, Params: Params{}},
		{Type: KindVanDerEijk, Params: Params{}},
		{Type: KindExperts, Params: Params{}},
	}
}
