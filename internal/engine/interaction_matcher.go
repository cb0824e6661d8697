package engine

import "github.com/scrypster/stacksense/pkg/types"

// MatchInteractions returns one warning per interaction rule whose two
// endpoints both appear in logs. Matching is presence-only; dose and time of
// day are ignored. Rules naming the same pair collapse to one warning.
func MatchInteractions(logs []types.LogEntry, snap *types.RuleSnapshot) []types.InteractionWarning {
	return matchInteractions(newDoseSet(logs), snap)
}

func matchInteractions(day *doseSet, snap *types.RuleSnapshot) []types.InteractionWarning {
	out := make([]types.InteractionWarning, 0)
	if snap == nil {
		return out
	}

	seen := make(map[string]bool)
	for _, rule := range snap.Interactions {
		if !rule.Type.Valid() || !rule.Severity.Valid() {
			continue
		}
		if !day.has(rule.SourceID) || !day.has(rule.TargetID) {
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

		out = append(out, types.InteractionWarning{
			RuleID:     rule.ID,
			PairKey:    key,
			SourceID:   ep.SourceID,
			SourceName: ep.SourceName,
			TargetID:   ep.TargetID,
			TargetName: ep.TargetName,
			Type:       rule.Type,
			Severity:   rule.Severity,
			Mechanism:  rule.Mechanism,
			Suggestion: rule.Suggestion,
		})
	}

	sortBySeverity(out,
		func(w types.InteractionWarning) types.Severity { return w.Severity },
		func(w types.InteractionWarning) string { return w.PairKey })
	return out
}
