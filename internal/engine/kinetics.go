package engine

import (
	"math"
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

const (
	// DefaultPeakMinutes is used when a compound has no explicit time to peak.
	DefaultPeakMinutes = 60.0

	// DefaultHalfLifeMinutes is used when a compound has no explicit half-life.
	DefaultHalfLifeMinutes = 240.0

	// PeakPlateauMinutes is how long a dose reports PhasePeak after reaching it.
	PeakPlateauMinutes = 30.0

	// PeakConcentration is the relative concentration of one dose at peak.
	PeakConcentration = 100.0

	// StackedConcentrationCap bounds the sum of repeated doses of one compound.
	StackedConcentrationCap = 150.0

	// ClearedThreshold is the relative concentration below which a dose is
	// reported as cleared and contributes nothing.
	ClearedThreshold = 1.0
)

// KineticParams parameterizes the single-dose concentration curve.
type KineticParams struct {
	PeakMinutes     float64
	HalfLifeMinutes float64
}

// DoseLevel is the state of one dose at one instant.
type DoseLevel struct {
	Concentration float64
	Phase         types.Phase
}

// ParamsFor returns the kinetic parameters of a supplement, substituting the
// defaults for anything missing or non-positive. The model type is not read:
// saturable compounds follow the same first-order curve.
func ParamsFor(k *types.Kinetics) KineticParams {
	p := KineticParams{PeakMinutes: DefaultPeakMinutes, HalfLifeMinutes: DefaultHalfLifeMinutes}
	if k == nil {
		return p
	}
	if k.PeakMinutes > 0 {
		p.PeakMinutes = k.PeakMinutes
	}
	if k.HalfLifeMinutes > 0 {
		p.HalfLifeMinutes = k.HalfLifeMinutes
	}
	return p
}

// Simulate returns the relative concentration and phase of a single dose
// elapsedMinutes after ingestion.
//
// Before peak the curve is a linear ramp 100*t/peak. From peak on it decays
// as 100*e^(-k*(t-peak)) with k = ln2/halfLife, floored to zero (cleared)
// once it drops under ClearedThreshold.
func Simulate(p KineticParams, elapsedMinutes float64) DoseLevel {
	if elapsedMinutes < 0 {
		return DoseLevel{Concentration: 0, Phase: types.PhaseAbsorbing}
	}
	if elapsedMinutes < p.PeakMinutes {
		return DoseLevel{
			Concentration: PeakConcentration * elapsedMinutes / p.PeakMinutes,
			Phase:         types.PhaseAbsorbing,
		}
	}

	sincePeak := elapsedMinutes - p.PeakMinutes
	k := math.Ln2 / p.HalfLifeMinutes
	c := PeakConcentration * math.Exp(-k*sincePeak)
	if c < ClearedThreshold {
		return DoseLevel{Concentration: 0, Phase: types.PhaseCleared}
	}
	if sincePeak < PeakPlateauMinutes {
		return DoseLevel{Concentration: c, Phase: types.PhasePeak}
	}
	return DoseLevel{Concentration: c, Phase: types.PhaseEliminating}
}

// ClearanceMinutes is the time after ingestion at which a dose reaches
// ClearedThreshold.
func ClearanceMinutes(p KineticParams) float64 {
	return p.PeakMinutes + p.HalfLifeMinutes*math.Log2(PeakConcentration/ClearedThreshold)
}

// StackConcentrations sums per-dose concentrations and caps the result at
// StackedConcentrationCap.
func StackConcentrations(levels ...float64) float64 {
	total := 0.0
	for _, c := range levels {
		total += c
	}
	return math.Min(total, StackedConcentrationCap)
}

// compoundLevelAt sums every dose of one compound at instant at. doses must
// be ordered newest first; the returned phase is that of the newest dose
// already taken.
func compoundLevelAt(p KineticParams, doses []types.LogEntry, at time.Time) (float64, types.Phase, bool) {
	total := 0.0
	var phase types.Phase
	taken := false
	for _, d := range doses {
		elapsed := at.Sub(d.LoggedAt).Minutes()
		if elapsed < 0 {
			continue
		}
		lvl := Simulate(p, elapsed)
		if !taken {
			phase = lvl.Phase
			taken = true
		}
		total += lvl.Concentration
	}
	if !taken {
		return 0, "", false
	}
	return math.Min(total, StackedConcentrationCap), phase, true
}
