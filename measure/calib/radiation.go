package calib

import "fmt"

// RadiationKind discriminates reference lines.
type RadiationKind int

const (
	RadiationGamma RadiationKind = iota
	RadiationXRay
	RadiationBeta
)

// String returns the kind name.
func (k RadiationKind) String() string {
	switch k {
	case RadiationGamma:
		return "gamma"
	case RadiationXRay:
		return "x-ray"
	case RadiationBeta:
		return "beta"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Radiation is a reference emission line. Energy is in the calibration
// units, Intensity is the relative emission probability. For beta
// emitters Energy holds the endpoint energy.
type Radiation struct {
	Kind      RadiationKind `yaml:"kind" json:"kind"`
	Energy    float64       `yaml:"energy" json:"energy"`
	Intensity float64       `yaml:"intensity" json:"intensity"`
	Label     string        `yaml:"label,omitempty" json:"label,omitempty"`
}

// Lines filters lines by kind. No kinds means all lines.
func Lines(lines []Radiation, kinds ...RadiationKind) []Radiation {
	if len(kinds) == 0 {
		return append([]Radiation(nil), lines...)
	}
	var out []Radiation
	for _, l := range lines {
		for _, k := range kinds {
			if l.Kind == k {
				out = append(out, l)
				break
			}
		}
	}
	return out
}

// Energies returns the energies of lines in order.
func Energies(lines []Radiation) []float64 {
	out := make([]float64, len(lines))
	for i, l := range lines {
		out[i] = l.Energy
	}
	return out
}

// MatchLines pairs observed energies with the photon lines (gamma and
// x-ray) in lines that lie within tol. Beta endpoints never form peaks and
// are skipped. Reference indices in the result refer to lines.
func MatchLines(energies []float64, lines []Radiation, tol float64) []Pair {
	var (
		refs []float64
		idx  []int
	)
	for i, l := range lines {
		if l.Kind == RadiationBeta {
			continue
		}
		refs = append(refs, l.Energy)
		idx = append(idx, i)
	}
	pairs := PairNearest(energies, refs, tol)
	for i := range pairs {
		pairs[i].Reference = idx[pairs[i].Reference]
	}
	return pairs
}

// MarshalText implements encoding.TextMarshaler.
func (k RadiationKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RadiationKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "gamma", "":
		*k = RadiationGamma
	case "x-ray", "xray":
		*k = RadiationXRay
	case "beta":
		*k = RadiationBeta
	default:
		return fmt.Errorf("calib: unknown radiation kind %q", b)
	}
	return nil
}
