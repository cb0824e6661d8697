package engine

import (
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

// at returns 2024-06-10 hh:mm UTC.
func at(hh, mm int) time.Time {
	return time.Date(2024, time.June, 10, hh, mm, 0, 0, time.UTC)
}

func dose(id, supplementID string, amount float64, unit string, loggedAt time.Time) types.LogEntry {
	return types.LogEntry{
		ID:           id,
		SupplementID: supplementID,
		Dosage:       amount,
		Unit:         unit,
		LoggedAt:     loggedAt,
	}
}

func ends(src, tgt string) types.RuleEndpoints {
	return types.RuleEndpoints{SourceID: src, TargetID: tgt}
}

// testSnapshot is a small rule base shared by the engine tests.
func testSnapshot() *types.RuleSnapshot {
	return &types.RuleSnapshot{
		Version: "test",
		Supplements: map[string]types.Supplement{
			"zinc":      {ID: "zinc", Name: "Zinc", Category: "mineral"},
			"copper":    {ID: "copper", Name: "Copper", Category: "mineral"},
			"iron":      {ID: "iron", Name: "Iron", Category: "mineral"},
			"calcium":   {ID: "calcium", Name: "Calcium", Category: "mineral"},
			"vitamin-c": {ID: "vitamin-c", Name: "Vitamin C", Category: "vitamin"},
			"vitamin-d": {ID: "vitamin-d", Name: "Vitamin D3", Category: "vitamin"},
			"vitamin-k": {ID: "vitamin-k", Name: "Vitamin K2", Category: "vitamin"},
		},
	}
}
