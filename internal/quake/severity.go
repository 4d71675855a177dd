package quake

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags which scale a Severity is expressed on.
type Kind int

const (
	// KindIntensity is the JMA ordinal shindo scale.
	KindIntensity Kind = iota + 1
	// KindMagnitude is the CEA numeric intensity estimate.
	KindMagnitude
)

func (k Kind) String() string {
	switch k {
	case KindIntensity:
		return "intensity"
	case KindMagnitude:
		return "magnitude"
	default:
		return "unknown"
	}
}

// Intensity is a position on the JMA seismic intensity scale, lowest first.
type Intensity int

const (
	Intensity0 Intensity = iota
	Intensity1
	Intensity2
	Intensity3
	Intensity4
	Intensity5Lower
	Intensity5Upper
	Intensity6Lower
	Intensity6Upper
	Intensity7
)

// intensityLabels holds the canonical label for each Intensity, indexed by ordinal.
var intensityLabels = [...]string{"0", "1", "2", "3", "4", "5弱", "5強", "6弱", "6強", "7"}

// intensityAliases maps alternative spellings seen in feeds and configs.
var intensityAliases = map[string]Intensity{
	"5-":      Intensity5Lower,
	"5+":      Intensity5Upper,
	"6-":      Intensity6Lower,
	"6+":      Intensity6Upper,
	"5强":      Intensity5Upper, // simplified Chinese 强
	"6强":      Intensity6Upper,
	"5lower":  Intensity5Lower,
	"5upper":  Intensity5Upper,
	"6lower":  Intensity6Lower,
	"6upper":  Intensity6Upper,
	"5 lower": Intensity5Lower,
	"5 upper": Intensity5Upper,
	"6 lower": Intensity6Lower,
	"6 upper": Intensity6Upper,
}

// String returns the canonical JMA label, e.g. "5強".
func (i Intensity) String() string {
	if i < Intensity0 || i > Intensity7 {
		return fmt.Sprintf("Intensity(%d)", int(i))
	}
	return intensityLabels[i]
}

// ParseIntensity maps a label onto the JMA scale. Surrounding whitespace is
// ignored; "5" and "6" alone are rejected because they are ambiguous.
func ParseIntensity(s string) (Intensity, error) {
	s = strings.TrimSpace(s)
	for i, label := range intensityLabels {
		if s == label {
			return Intensity(i), nil
		}
	}
	if i, ok := intensityAliases[strings.ToLower(s)]; ok {
		return i, nil
	}
	return 0, fmt.Errorf("unknown JMA intensity %q", s)
}

// Severity is either an Intensity or a numeric magnitude, never both.
// The zero value has no kind and never qualifies.
type Severity struct {
	kind      Kind
	intensity Intensity
	magnitude float64
}

// IntensitySeverity wraps a JMA intensity.
func IntensitySeverity(i Intensity) Severity {
	return Severity{kind: KindIntensity, intensity: i}
}

// MagnitudeSeverity wraps a CEA intensity estimate.
func MagnitudeSeverity(v float64) Severity {
	return Severity{kind: KindMagnitude, magnitude: v}
}

func (s Severity) Kind() Kind { return s.kind }

// Intensity returns the JMA intensity and true when s is KindIntensity.
func (s Severity) Intensity() (Intensity, bool) {
	return s.intensity, s.kind == KindIntensity
}

// Magnitude returns the numeric value and true when s is KindMagnitude.
func (s Severity) Magnitude() (float64, bool) {
	return s.magnitude, s.kind == KindMagnitude
}

func (s Severity) IsZero() bool { return s.kind == 0 }

// Label renders the severity the way it appears in notifications.
func (s Severity) Label() string {
	switch s.kind {
	case KindIntensity:
		return s.intensity.String()
	case KindMagnitude:
		return strconv.FormatFloat(s.magnitude, 'f', -1, 64)
	default:
		return ""
	}
}

func (s Severity) String() string { return s.Label() }

// ParseThreshold parses a configured threshold on the scale used by src.
func ParseThreshold(src Source, s string) (Severity, error) {
	switch src.Kind() {
	case KindIntensity:
		i, err := ParseIntensity(s)
		if err != nil {
			return Severity{}, err
		}
		return IntensitySeverity(i), nil
	case KindMagnitude:
		v, err := parseMagnitude(s)
		if err != nil {
			return Severity{}, err
		}
		if v <= 0 {
			return Severity{}, fmt.Errorf("%s threshold must be > 0, got %v", src, v)
		}
		return MagnitudeSeverity(v), nil
	default:
		return Severity{}, fmt.Errorf("unknown source %q", src)
	}
}

// parseMagnitude parses a finite, non-negative float.
func parseMagnitude(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid intensity value %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("invalid intensity value %q", s)
	}
	return v, nil
}
