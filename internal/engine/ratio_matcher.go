package engine

import "github.com/scrypster/stacksense/pkg/types"

const (
	// RatioTolerance widens every ratio band by 15% on each side so minor
	// dosing variance around a boundary does not make warnings flicker.
	RatioTolerance = 0.15

	// boundaryEpsilon keeps the widened bounds inclusive under float rounding.
	boundaryEpsilon = 1e-9
)

// ToleranceBounds returns the inclusive band [min*(1-tol), max*(1+tol)].
func ToleranceBounds(minRatio, maxRatio float64) (lo, hi float64) {
	return minRatio * (1 - RatioTolerance), maxRatio * (1 + RatioTolerance)
}

// RatioOutOfBand reports whether ratio violates the widened band.
func RatioOutOfBand(ratio, minRatio, maxRatio float64) bool {
	lo, hi := ToleranceBounds(minRatio, maxRatio)
	return ratio < lo-boundaryEpsilon || ratio > hi+boundaryEpsilon
}

// MatchRatios evaluates every ratio rule against the latest dose of each
// supplement in logs. Rules that apply but cannot be evaluated honestly are
// returned as gaps instead of warnings. A pair gets a gap only when no rule
// for it could be evaluated.
func MatchRatios(logs []types.LogEntry, snap *types.RuleSnapshot) ([]types.RatioWarning, []types.RatioEvaluationGap) {
	return matchRatios(LatestDose(logs), snap)
}

func matchRatios(latest map[string]types.LogEntry, snap *types.RuleSnapshot) ([]types.RatioWarning, []types.RatioEvaluationGap) {
	warnings := make([]types.RatioWarning, 0)
	gaps := make([]types.RatioEvaluationGap, 0)
	if snap == nil {
		return warnings, gaps
	}

	seen := make(map[string]bool)
	pending := make(map[string]types.RatioEvaluationGap)
	var pendingOrder []string
	for _, rule := range snap.Ratios {
		if !rule.Severity.Valid() || rule.MaxRatio < rule.MinRatio || rule.SourceID == rule.TargetID {
			continue
		}
		src, okSrc := latest[rule.SourceID]
		tgt, okTgt := latest[rule.TargetID]
		if !okSrc || !okTgt {
			continue
		}

		key := PairKey(rule.SourceID, rule.TargetID)
		if seen[key] {
			continue
		}

		gap := func(reason types.GapReason) {
			if _, ok := pending[key]; ok {
				return
			}
			pending[key] = types.RatioEvaluationGap{
				RuleID:   rule.ID,
				PairKey:  key,
				SourceID: rule.SourceID,
				TargetID: rule.TargetID,
				Reason:   reason,
			}
			pendingOrder = append(pendingOrder, key)
		}

		ep, ok := resolveEndpoints(snap, rule.RuleEndpoints)
		if !ok {
			gap(types.GapUnresolvedSupplement)
			continue
		}

		srcMg, errSrc := elementalMilligrams(snap, src)
		tgtMg, errTgt := elementalMilligrams(snap, tgt)
		if errSrc != nil || errTgt != nil {
			gap(types.GapUnitUnconvertible)
			continue
		}
		if tgtMg <= 0 {
			gap(types.GapZeroTargetDose)
			continue
		}

		seen[key] = true
		ratio := srcMg / tgtMg
		if !RatioOutOfBand(ratio, rule.MinRatio, rule.MaxRatio) {
			continue
		}

		warnings = append(warnings, types.RatioWarning{
			RuleID:       rule.ID,
			PairKey:      key,
			SourceID:     ep.SourceID,
			SourceName:   ep.SourceName,
			TargetID:     ep.TargetID,
			TargetName:   ep.TargetName,
			CurrentRatio: round1(ratio),
			MinRatio:     rule.MinRatio,
			MaxRatio:     rule.MaxRatio,
			OptimalRatio: rule.OptimalRatio,
			SourceDosage: src.Dosage,
			SourceUnit:   src.Unit,
			TargetDosage: tgt.Dosage,
			TargetUnit:   tgt.Unit,
			Severity:     rule.Severity,
			Message:      rule.Message,
		})
	}

	for _, key := range pendingOrder {
		if !seen[key] {
			gaps = append(gaps, pending[key])
		}
	}

	sortBySeverity(warnings,
		func(w types.RatioWarning) types.Severity { return w.Severity },
		func(w types.RatioWarning) string { return w.PairKey })
	return warnings, gaps
}

// elementalMilligrams converts a dose to milligrams of the elemental compound.
func elementalMilligrams(snap *types.RuleSnapshot, dose types.LogEntry) (float64, error) {
	mg, err := ToMilligrams(dose.Dosage, dose.Unit)
	if err != nil {
		return 0, err
	}
	if sup, ok := snap.Supplement(dose.SupplementID); ok && sup.ElementalFactor > 0 {
		mg *= sup.ElementalFactor
	}
	return mg, nil
}
