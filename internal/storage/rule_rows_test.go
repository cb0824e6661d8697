package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/stacksense/pkg/types"
)

func sampleSnapshot() *types.RuleSnapshot {
	return &types.RuleSnapshot{
		Version: "abc123",
		Supplements: map[string]types.Supplement{
			"zinc":   {ID: "zinc", Name: "Zinc", Category: "mineral", ElementalFactor: 0.2},
			"copper": {ID: "copper", Name: "Copper", Category: "mineral", Kinetics: &types.Kinetics{Type: types.KineticsFirstOrder, PeakMinutes: 90, HalfLifeMinutes: 300}},
		},
		Interactions: []types.InteractionRule{
			{ID: "i2", RuleEndpoints: types.RuleEndpoints{SourceID: "zinc", TargetID: "copper"}, Type: types.InteractionCompetition, Severity: types.SeverityMedium},
			{ID: "i1", RuleEndpoints: types.RuleEndpoints{SourceID: "copper", TargetID: "zinc"}, Type: types.InteractionSynergy, Severity: types.SeverityLow, Suggestion: "pair"},
		},
		Ratios: []types.RatioRule{
			{ID: "r1", RuleEndpoints: types.RuleEndpoints{SourceID: "zinc", TargetID: "copper"}, MinRatio: 8, MaxRatio: 15, OptimalRatio: 10, Severity: types.SeverityMedium},
		},
		Timings: []types.TimingRule{
			{ID: "t1", RuleEndpoints: types.RuleEndpoints{SourceID: "zinc", TargetID: "copper"}, MinHoursApart: 2, Severity: types.SeverityCritical, Reason: "absorption"},
		},
		SafetyLimits: types.SafetyLimits{"mineral": {Limit: 100, Unit: "mg"}},
	}
}

func TestFlattenAndAssembleRoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	got, err := AssembleSnapshot(snap.Version, FlattenSupplements(snap), FlattenRules(snap), snap.SafetyLimits)
	require.NoError(t, err)

	assert.Equal(t, snap, got)
}

func TestAssembleSnapshotOrdersByPosition(t *testing.T) {
	rows := FlattenRules(sampleSnapshot())
	// reverse the row order; position must restore declaration order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	got, err := AssembleSnapshot("", nil, rows, nil)
	require.NoError(t, err)

	require.Len(t, got.Interactions, 2)
	assert.Equal(t, "i2", got.Interactions[0].ID)
	assert.Equal(t, "i1", got.Interactions[1].ID)
	assert.NotNil(t, got.SafetyLimits)
}

func TestAssembleSnapshotRejectsUnknownKind(t *testing.T) {
	_, err := AssembleSnapshot("", nil, []RuleRow{{ID: "x", Kind: "bogus"}}, nil)
	assert.Error(t, err)
}

func TestFlattenSupplementsKinetics(t *testing.T) {
	rows := FlattenSupplements(sampleSnapshot())
	require.Len(t, rows, 2)
	assert.Equal(t, "copper", rows[0].ID)
	assert.True(t, rows[0].HasKinetics)
	assert.False(t, rows[1].HasKinetics)
}

func TestLogQueryNormalize(t *testing.T) {
	q := LogQuery{}
	assert.ErrorIs(t, q.Normalize(), ErrInvalidInput)

	q = LogQuery{UserID: "u"}
	require.NoError(t, q.Normalize())
	assert.Equal(t, MaxLogQueryLimit, q.Limit)

	q = LogQuery{UserID: "u", Limit: 10}
	require.NoError(t, q.Normalize())
	assert.Equal(t, 10, q.Limit)
}
