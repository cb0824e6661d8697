package engine

import (
	"sort"

	"github.com/scrypster/stacksense/pkg/types"
)

// SafetyHeadroom sums the day's doses per safety category in the unit of the
// category's limit. Doses that cannot be expressed in that unit are skipped,
// not estimated. Categories with a non-positive limit do not apply. The most
// consumed category comes first.
func SafetyHeadroom(logs []types.LogEntry, snap *types.RuleSnapshot) []types.SafetyHeadroom {
	out := make([]types.SafetyHeadroom, 0)
	if snap == nil || len(snap.SafetyLimits) == 0 {
		return out
	}

	for category, limit := range snap.SafetyLimits {
		if limit.Limit <= 0 {
			continue
		}
		current := 0.0
		for _, l := range logs {
			if categoryOf(snap, l) != category {
				continue
			}
			amount, err := Convert(l.Dosage, l.Unit, limit.Unit)
			if err != nil {
				continue
			}
			current += amount
		}
		out = append(out, types.SafetyHeadroom{
			Category:    category,
			Current:     current,
			Limit:       limit.Limit,
			Unit:        limit.Unit,
			PercentUsed: round1(current / limit.Limit * 100),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].PercentUsed != out[j].PercentUsed {
			return out[i].PercentUsed > out[j].PercentUsed
		}
		return out[i].Category < out[j].Category
	})
	return out
}

func categoryOf(snap *types.RuleSnapshot, l types.LogEntry) string {
	if sup, ok := snap.Supplement(l.SupplementID); ok && sup.Category != "" {
		return sup.Category
	}
	return l.SupplementCategory
}
