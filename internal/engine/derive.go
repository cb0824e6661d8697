// Package engine derives a user's biological state from their intake logs and
// the rule base: interaction, ratio and timing warnings, per-compound
// concentration curves, exclusion zones, a bio-score and safety headroom.
//
// Everything here is a pure function of (logs, rules, now). The package does
// no I/O and holds no state; authoritative and speculative callers both go
// through DeriveState.
package engine

import (
	"sync"
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

// DeriveOptions tunes a derivation without changing the algorithm.
type DeriveOptions struct {
	// Location defines the calendar day used for same-day evaluation.
	// Nil means now.Location().
	Location *time.Location
}

// DeriveState computes the full snapshot for logs under snap at now.
func DeriveState(logs []types.LogEntry, snap *types.RuleSnapshot, now time.Time) *types.Snapshot {
	return DeriveStateWithOptions(logs, snap, now, DeriveOptions{})
}

// DeriveStateWithOptions is DeriveState with an explicit day location.
//
// Doses logged after now are ignored. Presence-based evaluation (interaction,
// ratio and timing warnings, optimizations, safety headroom) uses the doses
// taken on now's calendar day; kinetics (active compounds, exclusion zones,
// the timeline) use every dose taken.
func DeriveStateWithOptions(logs []types.LogEntry, snap *types.RuleSnapshot, now time.Time, opts DeriveOptions) *types.Snapshot {
	if snap == nil {
		snap = &types.RuleSnapshot{}
	}

	taken := make([]types.LogEntry, 0, len(logs))
	for _, l := range logs {
		if !l.LoggedAt.After(now) {
			taken = append(taken, l)
		}
	}
	dayLogs := DayLogs(taken, now, opts.Location)

	takenSet := newDoseSet(taken)
	daySet := newDoseSet(dayLogs)

	// The matchers share nothing mutable; results are merged in the fixed
	// order timing, ratio, interaction.
	var (
		timing       []types.TimingWarning
		ratios       []types.RatioWarning
		gaps         []types.RatioEvaluationGap
		interactions []types.InteractionWarning
		wg           sync.WaitGroup
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		timing = matchTimings(daySet, snap)
	}()
	go func() {
		defer wg.Done()
		ratios, gaps = matchRatios(LatestDose(dayLogs), snap)
	}()
	go func() {
		defer wg.Done()
		interactions = matchInteractions(daySet, snap)
	}()
	wg.Wait()

	active := activeCompounds(takenSet, snap, now)
	zones := exclusionZones(takenSet, snap, now)
	opt := optimizations(daySet, snap)

	return &types.Snapshot{
		RulesVersion:        snap.Version,
		TimingWarnings:      timing,
		RatioWarnings:       ratios,
		RatioEvaluationGaps: gaps,
		Interactions:        interactions,
		BiologicalState: types.BiologicalState{
			ActiveCompounds: active,
			ExclusionZones:  zones,
			Optimizations:   opt,
			BioScore:        BioScore(zones, opt, len(active)),
			CalculatedAt:    now,
		},
		TimelineData:   buildTimeline(takenSet, snap, now),
		SafetyHeadroom: SafetyHeadroom(daySet.logs, snap),
	}
}

// DayLogs returns the logs that fall on now's calendar day in loc and are
// not after now. A nil loc means now.Location().
func DayLogs(logs []types.LogEntry, now time.Time, loc *time.Location) []types.LogEntry {
	if loc == nil {
		loc = now.Location()
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	out := make([]types.LogEntry, 0, len(logs))
	for _, l := range logs {
		if l.LoggedAt.Before(start) || l.LoggedAt.After(now) {
			continue
		}
		out = append(out, l)
	}
	return out
}
