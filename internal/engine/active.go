package engine

import (
	"sort"
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

// ActiveCompounds returns every supplement whose summed concentration at now
// is above zero. Repeated doses are stacked and capped. A dose logged exactly
// at now has not started absorbing and does not count.
func ActiveCompounds(logs []types.LogEntry, snap *types.RuleSnapshot, now time.Time) []types.ActiveCompound {
	return activeCompounds(newDoseSet(logs), snap, now)
}

func activeCompounds(taken *doseSet, snap *types.RuleSnapshot, now time.Time) []types.ActiveCompound {
	out := make([]types.ActiveCompound, 0)
	for _, id := range taken.order {
		doses := taken.doses(id)
		p := paramsForSupplement(snap, id)
		c, phase, ok := compoundLevelAt(p, doses, now)
		if !ok || phase == types.PhaseCleared || c <= 0 {
			continue
		}

		// doses is newest first, but a dose logged after now is not taken yet.
		var last time.Time
		count := 0
		for _, d := range doses {
			if d.LoggedAt.After(now) {
				continue
			}
			if count == 0 {
				last = d.LoggedAt
			}
			count++
		}

		out = append(out, types.ActiveCompound{
			SupplementID:  id,
			Name:          supplementName(snap, id, doses),
			Concentration: round1(c),
			Phase:         phase,
			DoseCount:     count,
			LastDoseAt:    last,
			PeakAt:        last.Add(minutes(p.PeakMinutes)),
			ClearsAt:      last.Add(minutes(ClearanceMinutes(p))),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Concentration != out[j].Concentration {
			return out[i].Concentration > out[j].Concentration
		}
		return out[i].SupplementID < out[j].SupplementID
	})
	return out
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}
