package engine

import "github.com/scrypster/stacksense/pkg/types"

// MatchTimings checks every timing rule against the closest approach of the
// two supplements' doses in logs. At most one warning is produced per
// unordered pair.
func MatchTimings(logs []types.LogEntry, snap *types.RuleSnapshot) []types.TimingWarning {
	return matchTimings(newDoseSet(logs), snap)
}

func matchTimings(day *doseSet, snap *types.RuleSnapshot) []types.TimingWarning {
	out := make([]types.TimingWarning, 0)
	if snap == nil {
		return out
	}

	seen := make(map[string]bool)
	for _, rule := range snap.Timings {
		if !rule.Severity.Valid() || rule.MinHoursApart <= 0 {
			continue
		}
		src, tgt, gap, ok := ClosestPair(day.doses(rule.SourceID), day.doses(rule.TargetID))
		if !ok {
			continue
		}
		hours := gap.Hours()
		if hours >= rule.MinHoursApart {
			continue
		}
		ep, ok := resolveEndpoints(snap, rule.RuleEndpoints)
		if !ok {
			continue
		}
		key := PairKey(ep.SourceID, ep.TargetID)
		if seen[key] {
			continue
		}
		seen[key] = true

		out = append(out, types.TimingWarning{
			RuleID:           rule.ID,
			PairKey:          key,
			SourceID:         ep.SourceID,
			SourceName:       ep.SourceName,
			TargetID:         ep.TargetID,
			TargetName:       ep.TargetName,
			ActualHoursApart: round1(hours),
			MinHoursApart:    round1(rule.MinHoursApart),
			SourceLoggedAt:   src.LoggedAt,
			TargetLoggedAt:   tgt.LoggedAt,
			Severity:         rule.Severity,
			Reason:           rule.Reason,
		})
	}

	sortBySeverity(out,
		func(w types.TimingWarning) types.Severity { return w.Severity },
		func(w types.TimingWarning) string { return w.PairKey })
	return out
}
