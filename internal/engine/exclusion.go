package engine

import (
	"math"
	"sort"
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

// ExclusionZones returns, for every timing rule whose source supplement has
// been taken, the window during which the target must still be avoided. The
// window ends minHoursApart after the latest source dose; windows that have
// already ended are dropped. The soonest-expiring zone comes first.
func ExclusionZones(logs []types.LogEntry, snap *types.RuleSnapshot, now time.Time) []types.ExclusionZone {
	return exclusionZones(newDoseSet(logs), snap, now)
}

func exclusionZones(taken *doseSet, snap *types.RuleSnapshot, now time.Time) []types.ExclusionZone {
	out := make([]types.ExclusionZone, 0)
	if snap == nil {
		return out
	}

	for _, rule := range snap.Timings {
		if !rule.Severity.Valid() || rule.MinHoursApart <= 0 {
			continue
		}
		doses := taken.doses(rule.SourceID)
		if len(doses) == 0 {
			continue
		}
		ep, ok := resolveEndpoints(snap, rule.RuleEndpoints)
		if !ok {
			continue
		}

		latest := doses[0].LoggedAt
		endsAt := latest.Add(time.Duration(rule.MinHoursApart * float64(time.Hour)))
		if !endsAt.After(now) {
			continue
		}

		out = append(out, types.ExclusionZone{
			RuleID:           rule.ID,
			PairKey:          PairKey(ep.SourceID, ep.TargetID),
			SupplementID:     ep.SourceID,
			SupplementName:   ep.SourceName,
			BlockedID:        ep.TargetID,
			BlockedName:      ep.TargetName,
			StartsAt:         latest,
			EndsAt:           endsAt,
			MinutesRemaining: int(math.Ceil(endsAt.Sub(now).Minutes())),
			Severity:         rule.Severity,
			Reason:           rule.Reason,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EndsAt.Equal(out[j].EndsAt) {
			return out[i].EndsAt.Before(out[j].EndsAt)
		}
		if out[i].PairKey != out[j].PairKey {
			return out[i].PairKey < out[j].PairKey
		}
		return out[i].RuleID < out[j].RuleID
	})
	return out
}

// Optimizations returns the synergies realized by logs: synergy-typed
// interaction rules with both endpoints present, one per unordered pair.
func Optimizations(logs []types.LogEntry, snap *types.RuleSnapshot) []types.Optimization {
	return optimizations(newDoseSet(logs), snap)
}

func optimizations(day *doseSet, snap *types.RuleSnapshot) []types.Optimization {
	out := make([]types.Optimization, 0)
	if snap == nil {
		return out
	}

	seen := make(map[string]bool)
	for _, rule := range snap.Interactions {
		if rule.Type != types.InteractionSynergy {
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

		out = append(out, types.Optimization{
			RuleID:        rule.ID,
			PairKey:       key,
			SuggestionKey: SuggestionKey(rule.Type, ep.SourceID, ep.TargetID),
			SourceID:      ep.SourceID,
			SourceName:    ep.SourceName,
			TargetID:      ep.TargetID,
			TargetName:    ep.TargetName,
			Mechanism:     rule.Mechanism,
			Suggestion:    rule.Suggestion,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].PairKey < out[j].PairKey })
	return out
}
