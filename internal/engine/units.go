package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnconvertible is returned when a quantity cannot be expressed in the
// requested unit without estimating (activity units to mass, for example).
var ErrUnconvertible = errors.New("engine: unit not convertible")

// massScale expresses each mass unit in micrograms.
var massScale = map[string]float64{
	"g":   1e6,
	"mg":  1e3,
	"mcg": 1,
	"µg":  1,
	"μg":  1,
	"ug":  1,
}

// nonMassUnits are recognised but never converted to mass.
var nonMassUnits = map[string]bool{
	"iu":      true,
	"ml":      true,
	"drop":    true,
	"drops":   true,
	"capsule": true,
	"tablet":  true,
	"scoop":   true,
}

// NormalizeUnit lowercases and trims a unit string.
func NormalizeUnit(unit string) string {
	return strings.ToLower(strings.TrimSpace(unit))
}

// IsMassUnit reports whether unit belongs to the g/mg/mcg lattice.
func IsMassUnit(unit string) bool {
	_, ok := massScale[NormalizeUnit(unit)]
	return ok
}

// IsKnownUnit reports whether unit is a mass unit or a recognised
// non-convertible unit.
func IsKnownUnit(unit string) bool {
	u := NormalizeUnit(unit)
	return massScale[u] > 0 || nonMassUnits[u]
}

// Convert expresses amount in toUnit. Identical units always convert.
// Conversions are exact powers of 1000
// within the mass lattice; anything touching a non-mass unit fails with
// ErrUnconvertible rather than returning an estimate.
func Convert(amount float64, fromUnit, toUnit string) (float64, error) {
	if u := NormalizeUnit(fromUnit); u != "" && u == NormalizeUnit(toUnit) {
		return amount, nil
	}
	from, okFrom := massScale[NormalizeUnit(fromUnit)]
	to, okTo := massScale[NormalizeUnit(toUnit)]
	if !okFrom || !okTo {
		return 0, fmt.Errorf("%w: %q to %q", ErrUnconvertible, fromUnit, toUnit)
	}
	switch {
	case from == to:
		return amount, nil
	case from > to:
		return amount * (from / to), nil
	default:
		return amount / (to / from), nil
	}
}

// ToMilligrams is Convert(amount, unit, "mg").
func ToMilligrams(amount float64, unit string) (float64, error) {
	return Convert(amount, unit, "mg")
}
