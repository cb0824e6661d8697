package engine

import (
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

const (
	// TimelineLookback is how far before now the timeline starts.
	TimelineLookback = 24 * time.Hour

	// TimelineLookahead is how far past now the timeline projects.
	TimelineLookahead = 4 * time.Hour

	// TimelineStep is the sampling interval.
	TimelineStep = 15 * time.Minute
)

// BuildTimeline samples every compound's stacked concentration from
// TimelineLookback before now to TimelineLookahead after it. Old doses are
// not filtered out up front; the simulator zeroes them once cleared.
func BuildTimeline(logs []types.LogEntry, snap *types.RuleSnapshot, now time.Time) []types.TimelinePoint {
	return buildTimeline(newDoseSet(logs), snap, now)
}

func buildTimeline(taken *doseSet, snap *types.RuleSnapshot, now time.Time) []types.TimelinePoint {
	out := make([]types.TimelinePoint, 0)
	if len(taken.logs) == 0 {
		return out
	}

	params := make(map[string]KineticParams, len(taken.order))
	for _, id := range taken.order {
		params[id] = paramsForSupplement(snap, id)
	}

	start := now.Add(-TimelineLookback)
	end := now.Add(TimelineLookahead)
	for at := start; !at.After(end); at = at.Add(TimelineStep) {
		point := types.TimelinePoint{
			MinutesFromStart: int(at.Sub(start) / time.Minute),
			Timestamp:        at,
			Concentrations:   make(map[string]float64),
		}
		for _, id := range taken.order {
			c, _, ok := compoundLevelAt(params[id], taken.doses(id), at)
			if ok && c > 0 {
				point.Concentrations[id] = round1(c)
			}
		}
		out = append(out, point)
	}
	return out
}

func paramsForSupplement(snap *types.RuleSnapshot, id string) KineticParams {
	sup, _ := snap.Supplement(id)
	return ParamsFor(sup.Kinetics)
}
