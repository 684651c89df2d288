package measure

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Name returns the canonical display name of cfg. Missing parameters fall
// back to the registry defaults for the kind. Unknown kinds are rendered as
// the bare kind string.
func Name(cfg Config) string {
	p := cfg.Params
	switch cfg.Type {
	case KindEstebanRay:
		return fmt.Sprintf("ER(%s)", formatNumber(p.Float("alpha", 0.8)))
	case KindBiPol, KindEMD, KindShannon, KindVanDerEijk, KindExperts:
		return string(cfg.Type)
	case KindMECNormalized:
		return fmt.Sprintf("MEC(%s,%s)N", formatNumber(p.Float("alpha", 2)), formatNumber(p.Float("beta", 1.15)))
	case KindMEC:
		return fmt.Sprintf("MEC(%s,%s)", formatNumber(p.Float("alpha", 2)), formatNumber(p.Float("beta", 1.15)))
	case KindGeneralizedMEC:
		return fmt.Sprintf("GMEC(%s,%s)", formatNumber(p.Float("alpha", 2)), p.String("alienation", "d"))
	case KindGeneralizedER:
		return fmt.Sprintf("GER(%s,%s)", formatNumber(p.Float("alpha", 0.8)), p.String("alienation", "d"))
	default:
		return string(cfg.Type)
	}
}

// Names maps Name over configs.
func Names(configs []Config) []string {
	out := make([]string, len(configs))
	for i, cfg := range configs {
		out[i] = Name(cfg)
	}
	return out
}

// formatNumber prints the shortest decimal that parses back to v, so 2
// prints as "2" and 1.15 as "1.15".
func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseNumber(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// parseRule turns the submatches of pattern into a configuration. A rule
// whose build func reports false is treated as not matching.
type parseRule struct {
	pattern *regexp.Regexp
	build   func(m []string) (Config, bool)
}

// parseRules is ordered; the first rule that matches wins. Several spellings
// overlap (MEC(a,b) against MEC(a,f), ER(a) against ER(a,f)) and the order
// here decides them.
var parseRules = []parseRule{
	{
		pattern: regexp.MustCompile(`^(BiPol|EMD|Shannon|VanDerEijk|Experts)$`),
		build: func(m []string) (Config, bool) {
			return Config{Type: Kind(m[1]), Params: Params{}}, true
		},
	},
	{
		pattern: regexp.MustCompile(`^MEC\(([^,]+),([^)]+)\)N$`),
		build: func(m []string) (Config, bool) {
			alpha, ok := parseNumber(m[1])
			if !ok {
				return Config{}, false
			}
			beta, ok := parseNumber(m[2])
			if !ok {
				return Config{}, false
			}
			return Config{Type: KindMECNormalized, Params: Params{"alpha": alpha, "beta": beta}}, true
		},
	},
	{
		pattern: regexp.MustCompile(`^MEC\(([^,]+),(.+)\)$`),
		build: func(m []string) (Config, bool) {
			alpha, ok := parseNumber(m[1])
			if !ok {
				return Config{}, false
			}
			beta, ok := parseNumber(m[2])
			if !ok {
				return Config{}, false
			}
			return Config{Type: KindMEC, Params: Params{"alpha": alpha, "beta": beta}}, true
		},
	},
	{
		// Benchmark spelling of the generalized MEC: a non-numeric second argument.
		pattern: regexp.MustCompile(`^MEC\(([^,]+),(.+)\)$`),
		build: func(m []string) (Config, bool) {
			if _, numeric := parseNumber(m[2]); numeric {
				return Config{}, false
			}
			return generalized(KindGeneralizedMEC, m)
		},
	},
	{
		pattern: regexp.MustCompile(`^GMEC\(([^,]+),(.+)\)$`),
		build: func(m []string) (Config, bool) {
			return generalized(KindGeneralizedMEC, m)
		},
	},
	{
		pattern: regexp.MustCompile(`^GER\(([^,]+),(.+)\)$`),
		build: func(m []string) (Config, bool) {
			return generalized(KindGeneralizedER, m)
		},
	},
	{
		// Benchmark spelling of the generalized ER; only the comma tells it
		// apart from the plain Esteban-Ray form below.
		pattern: regexp.MustCompile(`^ER\(([^,]+),(.+)\)$`),
		build: func(m []string) (Config, bool) {
			return generalized(KindGeneralizedER, m)
		},
	},
	{
		pattern: regexp.MustCompile(`^ER\(([^,)]+)\)$`),
		build: func(m []string) (Config, bool) {
			alpha, ok := parseNumber(m[1])
			if !ok {
				return Config{}, false
			}
			return Config{Type: KindEstebanRay, Params: Params{"alpha": alpha}}, true
		},
	},
}

func generalized(kind Kind, m []string) (Config, bool) {
	alpha, ok := parseNumber(m[1])
	if !ok {
		return Config{}, false
	}
	return Config{Type: kind, Params: Params{"alpha": alpha, "alienation": m[2]}}, true
}

// Parse recovers the configuration behind a canonical or benchmark-style
// measure name. Names that no rule accepts return ErrUnrecognizedName; such
// names are plain labels that cannot be recomputed.
func Parse(name string) (Config, error) {
	for _, rule := range parseRules {
		m := rule.pattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		if cfg, ok := rule.build(m); ok {
			return cfg, nil
		}
	}
	return Config{}, fmt.Errorf("%w: %q", ErrUnrecognizedName, name)
}
