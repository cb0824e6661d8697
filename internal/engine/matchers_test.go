package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/stacksense/pkg/types"
)

func TestMatchInteractions_FiresOnlyWhenBothPresent(t *testing.T) {
	snap := testSnapshot()
	snap.Interactions = []types.InteractionRule{
		{ID: "i1", RuleEndpoints: ends("zinc", "copper"), Type: types.InteractionCompetition, Severity: types.SeverityMedium, Mechanism: "share DMT1", Suggestion: "split them"},
	}

	got := MatchInteractions([]types.LogEntry{dose("1", "zinc", 50, "mg", at(9, 0))}, snap)
	assert.Empty(t, got)

	got = MatchInteractions([]types.LogEntry{
		dose("1", "zinc", 50, "mg", at(9, 0)),
		dose("2", "copper", 1, "mg", at(21, 0)),
	}, snap)
	require.Len(t, got, 1)
	assert.Equal(t, "Zinc", got[0].SourceName)
	assert.Equal(t, "Copper", got[0].TargetName)
	assert.Equal(t, "share DMT1", got[0].Mechanism)
	assert.Equal(t, "split them", got[0].Suggestion)
	assert.Equal(t, "copper|zinc", got[0].PairKey)
}

func TestMatchInteractions_SymmetricRulesCollapse(t *testing.T) {
	logs := []types.LogEntry{
		dose("1", "zinc", 50, "mg", at(9, 0)),
		dose("2", "copper", 1, "mg", at(9, 0)),
	}

	forward := testSnapshot()
	forward.Interactions = []types.InteractionRule{
		{ID: "i1", RuleEndpoints: ends("zinc", "copper"), Type: types.InteractionCompetition, Severity: types.SeverityMedium},
	}
	backward := testSnapshot()
	backward.Interactions = []types.InteractionRule{
		{ID: "i2", RuleEndpoints: ends("copper", "zinc"), Type: types.InteractionCompetition, Severity: types.SeverityMedium},
	}
	both := testSnapshot()
	both.Interactions = append(forward.Interactions, backward.Interactions...)

	assert.Len(t, MatchInteractions(logs, forward), 1)
	assert.Len(t, MatchInteractions(logs, backward), 1)
	assert.Len(t, MatchInteractions(logs, both), 1)
}

func TestMatchInteractions_SkipsUnresolvedAndMalformedRules(t *testing.T) {
	snap := testSnapshot()
	snap.Interactions = []types.InteractionRule{
		{ID: "dangling", RuleEndpoints: ends("zinc", "ghost"), Type: types.InteractionInhibition, Severity: types.SeverityLow},
		{ID: "bad-type", RuleEndpoints: ends("zinc", "copper"), Type: "antagonism", Severity: types.SeverityLow},
		{ID: "ok", RuleEndpoints: ends("iron", "calcium"), Type: types.InteractionInhibition, Severity: types.SeverityCritical},
	}
	logs := []types.LogEntry{
		dose("1", "zinc", 50, "mg", at(9, 0)),
		dose("2", "ghost", 1, "mg", at(9, 0)),
		dose("3", "copper", 1, "mg", at(9, 0)),
		dose("4", "iron", 18, "mg", at(9, 0)),
		dose("5", "calcium", 500, "mg", at(9, 0)),
	}

	got := MatchInteractions(logs, snap)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].RuleID)
}

func TestMatchInteractions_DenormalizedNamesWin(t *testing.T) {
	snap := &types.RuleSnapshot{
		Interactions: []types.InteractionRule{{
			ID:            "i1",
			RuleEndpoints: types.RuleEndpoints{SourceID: "a", SourceName: "Alpha", TargetID: "b", TargetName: "Beta"},
			Type:          types.InteractionSynergy,
			Severity:      types.SeverityLow,
		}},
	}
	got := MatchInteractions([]types.LogEntry{
		dose("1", "a", 1, "mg", at(9, 0)),
		dose("2", "b", 1, "mg", at(9, 0)),
	}, snap)
	require.Len(t, got, 1)
	assert.Equal(t, "Alpha", got[0].SourceName)
}

func TestMatchInteractions_OrdersBySeverity(t *testing.T) {
	snap := testSnapshot()
	snap.Interactions = []types.InteractionRule{
		{ID: "low", RuleEndpoints: ends("vitamin-d", "vitamin-k"), Type: types.InteractionSynergy, Severity: types.SeverityLow},
		{ID: "crit", RuleEndpoints: ends("iron", "calcium"), Type: types.InteractionInhibition, Severity: types.SeverityCritical},
	}
	got := MatchInteractions([]types.LogEntry{
		dose("1", "vitamin-d", 50, "mcg", at(9, 0)),
		dose("2", "vitamin-k", 100, "mcg", at(9, 0)),
		dose("3", "iron", 18, "mg", at(9, 0)),
		dose("4", "calcium", 500, "mg", at(9, 0)),
	}, snap)
	require.Len(t, got, 2)
	assert.Equal(t, "crit", got[0].RuleID)
	assert.Equal(t, "low", got[1].RuleID)
}

func zincCopperRatio(minR, maxR float64) *types.RuleSnapshot {
	snap := testSnapshot()
	snap.Ratios = []types.RatioRule{{
		ID:            "zn-cu",
		RuleEndpoints: ends("zinc", "copper"),
		MinRatio:      minR,
		MaxRatio:      maxR,
		OptimalRatio:  10,
		Severity:      types.SeverityMedium,
		Message:       "keep zinc:copper balanced",
	}}
	return snap
}

func TestMatchRatios_ZincCopperScenario(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	logs := []types.LogEntry{
		dose("1", "zinc", 50, "mg", at(12, 0)),
		dose("2", "copper", 1, "mg", at(10, 30)),
	}

	warnings, gaps := MatchRatios(logs, snap)
	assert.Empty(t, gaps)
	require.Len(t, warnings, 1)
	w := warnings[0]
	assert.Equal(t, 50.0, w.CurrentRatio)
	assert.Equal(t, types.SeverityMedium, w.Severity)
	assert.Equal(t, 8.0, w.MinRatio)
	assert.Equal(t, 15.0, w.MaxRatio)
	assert.Equal(t, 10.0, w.OptimalRatio)
	assert.Equal(t, 50.0, w.SourceDosage)
	assert.Equal(t, "mg", w.SourceUnit)
	assert.Equal(t, 1.0, w.TargetDosage)
	assert.Equal(t, "keep zinc:copper balanced", w.Message)
}

func TestMatchRatios_ToleranceBoundary(t *testing.T) {
	snap := zincCopperRatio(8, 12)

	inclusive := []types.LogEntry{
		dose("1", "zinc", 6.8, "mg", at(9, 0)),
		dose("2", "copper", 1, "mg", at(9, 0)),
	}
	warnings, _ := MatchRatios(inclusive, snap)
	assert.Empty(t, warnings, "6.8 sits on the widened lower bound")

	below := []types.LogEntry{
		dose("1", "zinc", 6.79, "mg", at(9, 0)),
		dose("2", "copper", 1, "mg", at(9, 0)),
	}
	warnings, _ = MatchRatios(below, snap)
	require.Len(t, warnings, 1)
	assert.Equal(t, 6.8, warnings[0].CurrentRatio)

	upper := []types.LogEntry{
		dose("1", "zinc", 13.8, "mg", at(9, 0)),
		dose("2", "copper", 1, "mg", at(9, 0)),
	}
	warnings, _ = MatchRatios(upper, snap)
	assert.Empty(t, warnings, "13.8 sits on the widened upper bound")
}

func TestMatchRatios_UsesLatestDose(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	logs := []types.LogEntry{
		dose("1", "zinc", 50, "mg", at(8, 0)),
		dose("2", "zinc", 10, "mg", at(13, 0)),
		dose("3", "copper", 1, "mg", at(9, 0)),
	}
	warnings, gaps := MatchRatios(logs, snap)
	assert.Empty(t, gaps)
	assert.Empty(t, warnings, "only the 10 mg dose counts, 10:1 is in band")
}

func TestMatchRatios_UnitMismatchIsAGap(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	logs := []types.LogEntry{
		dose("1", "zinc", 50, "mg", at(9, 0)),
		dose("2", "copper", 1000, "IU", at(9, 0)),
	}
	warnings, gaps := MatchRatios(logs, snap)
	assert.Empty(t, warnings)
	require.Len(t, gaps, 1)
	assert.Equal(t, types.GapUnitUnconvertible, gaps[0].Reason)
	assert.Equal(t, "zn-cu", gaps[0].RuleID)
}

func TestMatchRatios_ZeroTargetIsAGap(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	logs := []types.LogEntry{
		dose("1", "zinc", 50, "mg", at(9, 0)),
		dose("2", "copper", 0, "mg", at(9, 0)),
	}
	warnings, gaps := MatchRatios(logs, snap)
	assert.Empty(t, warnings)
	require.Len(t, gaps, 1)
	assert.Equal(t, types.GapZeroTargetDose, gaps[0].Reason)
}

func TestMatchRatios_MissingEndpointDoesNotApply(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	warnings, gaps := MatchRatios([]types.LogEntry{dose("1", "zinc", 50, "mg", at(9, 0))}, snap)
	assert.Empty(t, warnings)
	assert.Empty(t, gaps)
}

func TestMatchRatios_ResolvableRuleWinsOverUnresolvedMirror(t *testing.T) {
	snap := testSnapshot()
	snap.Ratios = []types.RatioRule{
		{ID: "unnamed", RuleEndpoints: ends("zinc", "mystery"), MinRatio: 8, MaxRatio: 15, Severity: types.SeverityMedium},
		{ID: "named", RuleEndpoints: types.RuleEndpoints{SourceID: "mystery", SourceName: "Mystery Mineral", TargetID: "zinc"}, MinRatio: 8, MaxRatio: 15, Severity: types.SeverityMedium},
	}
	logs := []types.LogEntry{
		dose("1", "mystery", 50, "mg", at(9, 0)),
		dose("2", "zinc", 1, "mg", at(9, 0)),
	}

	warnings, gaps := MatchRatios(logs, snap)
	assert.Empty(t, gaps)
	require.Len(t, warnings, 1)
	assert.Equal(t, "named", warnings[0].RuleID)
	assert.Equal(t, "Mystery Mineral", warnings[0].SourceName)

	// Alone, the unresolvable rule still reports exactly one gap.
	snap.Ratios = snap.Ratios[:1]
	warnings, gaps = MatchRatios(logs, snap)
	assert.Empty(t, warnings)
	require.Len(t, gaps, 1)
	assert.Equal(t, types.GapUnresolvedSupplement, gaps[0].Reason)
}

func TestMatchRatios_ElementalFactor(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	zinc := snap.Supplements["zinc"]
	zinc.ElementalFactor = 0.14
	snap.Supplements["zinc"] = zinc

	// 100 mg zinc gluconate is 14 mg elemental zinc: 14:1 is in band.
	warnings, _ := MatchRatios([]types.LogEntry{
		dose("1", "zinc", 100, "mg", at(9, 0)),
		dose("2", "copper", 1, "mg", at(9, 0)),
	}, snap)
	assert.Empty(t, warnings)
}

func TestMatchRatios_ConvertsUnits(t *testing.T) {
	snap := zincCopperRatio(8, 15)
	warnings, gaps := MatchRatios([]types.LogEntry{
		dose("1", "zinc", 0.01, "g", at(9, 0)),
		dose("2", "copper", 1000, "mcg", at(9, 0)),
	}, snap)
	assert.Empty(t, gaps)
	assert.Empty(t, warnings)
}

func ironCalciumTiming(minHours float64) types.TimingRule {
	return types.TimingRule{
		ID:            "fe-ca",
		RuleEndpoints: ends("iron", "calcium"),
		MinHoursApart: minHours,
		Severity:      types.SeverityMedium,
		Reason:        "calcium blocks iron absorption",
	}
}

func TestMatchTimings_Scenario(t *testing.T) {
	snap := testSnapshot()
	snap.Timings = []types.TimingRule{ironCalciumTiming(6)}

	got := MatchTimings([]types.LogEntry{
		dose("1", "iron", 18, "mg", at(9, 0)),
		dose("2", "calcium", 500, "mg", at(9, 30)),
	}, snap)
	require.Len(t, got, 1)
	assert.Equal(t, 0.5, got[0].ActualHoursApart)
	assert.Equal(t, 6.0, got[0].MinHoursApart)
	assert.Equal(t, at(9, 0), got[0].SourceLoggedAt)
	assert.Equal(t, at(9, 30), got[0].TargetLoggedAt)
	assert.Equal(t, "calcium blocks iron absorption", got[0].Reason)
}

func TestMatchTimings_ClosestApproach(t *testing.T) {
	snap := testSnapshot()
	snap.Timings = []types.TimingRule{ironCalciumTiming(2)}

	got := MatchTimings([]types.LogEntry{
		dose("1", "iron", 18, "mg", at(7, 0)),
		dose("2", "iron", 18, "mg", at(15, 0)),
		dose("3", "calcium", 500, "mg", at(11, 0)),
		dose("4", "calcium", 500, "mg", at(16, 30)),
	}, snap)
	require.Len(t, got, 1)
	assert.Equal(t, 1.5, got[0].ActualHoursApart)
	assert.Equal(t, at(15, 0), got[0].SourceLoggedAt)
	assert.Equal(t, at(16, 30), got[0].TargetLoggedAt)
}

func TestMatchTimings_StrictlyLessThan(t *testing.T) {
	snap := testSnapshot()
	snap.Timings = []types.TimingRule{ironCalciumTiming(2)}

	got := MatchTimings([]types.LogEntry{
		dose("1", "iron", 18, "mg", at(9, 0)),
		dose("2", "calcium", 500, "mg", at(11, 0)),
	}, snap)
	assert.Empty(t, got)
}

func TestMatchTimings_OppositeDirectionsCollapse(t *testing.T) {
	snap := testSnapshot()
	reverse := ironCalciumTiming(4)
	reverse.ID = "ca-fe"
	reverse.RuleEndpoints = ends("calcium", "iron")
	snap.Timings = []types.TimingRule{ironCalciumTiming(6), reverse}

	got := MatchTimings([]types.LogEntry{
		dose("1", "iron", 18, "mg", at(9, 0)),
		dose("2", "calcium", 500, "mg", at(10, 0)),
	}, snap)
	require.Len(t, got, 1)
	assert.Equal(t, "fe-ca", got[0].RuleID)
}

func TestLatestDoseAndClosestPair(t *testing.T) {
	latest := LatestDose([]types.LogEntry{
		dose("1", "zinc", 10, "mg", at(8, 0)),
		dose("2", "zinc", 20, "mg", at(10, 0)),
		dose("3", "copper", 1, "mg", at(9, 0)),
	})
	assert.Equal(t, 20.0, latest["zinc"].Dosage)
	assert.Equal(t, 1.0, latest["copper"].Dosage)

	_, _, _, ok := ClosestPair(nil, []types.LogEntry{dose("1", "zinc", 1, "mg", at(8, 0))})
	assert.False(t, ok)
}

func TestPairKey(t *testing.T) {
	assert.Equal(t, PairKey("b", "a"), PairKey("a", "b"))
	assert.Equal(t, "a|b", PairKey("b", "a"))
	assert.Equal(t, "synergy:a|b", SuggestionKey(types.InteractionSynergy, "b", "a"))
}
