package types

import "time"

// InteractionWarning is emitted when both endpoints of an interaction rule
// are present in the evaluated day.
type InteractionWarning struct {
	RuleID     string          `json:"rule_id"`
	PairKey    string          `json:"pair_key"`
	SourceID   string          `json:"source_id"`
	SourceName string          `json:"source_name"`
	TargetID   string          `json:"target_id"`
	TargetName string          `json:"target_name"`
	Type       InteractionType `json:"type"`
	Severity   Severity        `json:"severity"`
	Mechanism  string          `json:"mechanism,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// RatioWarning is emitted when the observed elemental ratio falls outside the
// tolerance-expanded band of a ratio rule.
type RatioWarning struct {
	RuleID       string   `json:"rule_id"`
	PairKey      string   `json:"pair_key"`
	SourceID     string   `json:"source_id"`
	SourceName   string   `json:"source_name"`
	TargetID     string   `json:"target_id"`
	TargetName   string   `json:"target_name"`
	CurrentRatio float64  `json:"current_ratio"`
	MinRatio     float64  `json:"min_ratio"`
	MaxRatio     float64  `json:"max_ratio"`
	OptimalRatio float64  `json:"optimal_ratio"`
	SourceDosage float64  `json:"source_dosage"`
	SourceUnit   string   `json:"source_unit"`
	TargetDosage float64  `json:"target_dosage"`
	TargetUnit   string   `json:"target_unit"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message,omitempty"`
}

// RatioEvaluationGap records a ratio rule that applied but could not be
// evaluated honestly.
type RatioEvaluationGap struct {
	RuleID   string    `json:"rule_id"`
	PairKey  string    `json:"pair_key"`
	SourceID string    `json:"source_id"`
	TargetID string    `json:"target_id"`
	Reason   GapReason `json:"reason"`
}

// TimingWarning is emitted when the closest pair of doses of two compounds is
// nearer than a timing rule allows.
type TimingWarning struct {
	RuleID           string    `json:"rule_id"`
	PairKey          string    `json:"pair_key"`
	SourceID         string    `json:"source_id"`
	SourceName       string    `json:"source_name"`
	TargetID         string    `json:"target_id"`
	TargetName       string    `json:"target_name"`
	ActualHoursApart float64   `json:"actual_hours_apart"`
	MinHoursApart    float64   `json:"min_hours_apart"`
	SourceLoggedAt   time.Time `json:"source_logged_at"`
	TargetLoggedAt   time.Time `json:"target_logged_at"`
	Severity         Severity  `json:"severity"`
	Reason           string    `json:"reason,omitempty"`
}

// ActiveCompound is a supplement whose summed concentration at the
// evaluation instant is above zero.
type ActiveCompound struct {
	SupplementID  string    `json:"supplement_id"`
	Name          string    `json:"name"`
	Concentration float64   `json:"concentration"`
	Phase         Phase     `json:"phase"`
	DoseCount     int       `json:"dose_count"`
	LastDoseAt    time.Time `json:"last_dose_at"`
	PeakAt        time.Time `json:"peak_at"`
	ClearsAt      time.Time `json:"clears_at"`
}

// ExclusionZone is a forward-looking window during which taking the blocked
// supplement would still violate a timing rule.
type ExclusionZone struct {
	RuleID           string    `json:"rule_id"`
	PairKey          string    `json:"pair_key"`
	SupplementID     string    `json:"supplement_id"`
	SupplementName   string    `json:"supplement_name"`
	BlockedID        string    `json:"blocked_id"`
	BlockedName      string    `json:"blocked_name"`
	StartsAt         time.Time `json:"starts_at"`
	EndsAt           time.Time `json:"ends_at"`
	MinutesRemaining int       `json:"minutes_remaining"`
	Severity         Severity  `json:"severity"`
	Reason           string    `json:"reason,omitempty"`
}

// Optimization is a synergy currently realized by the day's intake.
type Optimization struct {
	RuleID        string `json:"rule_id"`
	PairKey       string `json:"pair_key"`
	SuggestionKey string `json:"suggestion_key"`
	SourceID      string `json:"source_id"`
	SourceName    string `json:"source_name"`
	TargetID      string `json:"target_id"`
	TargetName    string `json:"target_name"`
	Mechanism     string `json:"mechanism,omitempty"`
	Suggestion    string `json:"suggestion,omitempty"`
}

// BiologicalState is the ephemeral per-evaluation view of the user's body.
type BiologicalState struct {
	ActiveCompounds []ActiveCompound `json:"active_compounds"`
	ExclusionZones  []ExclusionZone  `json:"exclusion_zones"`
	Optimizations   []Optimization   `json:"optimizations"`
	BioScore        int              `json:"bio_score"`
	CalculatedAt    time.Time        `json:"calculated_at"`
}

// TimelinePoint is one sample of the concentration time series.
type TimelinePoint struct {
	MinutesFromStart int                `json:"minutes_from_start"`
	Timestamp        time.Time          `json:"timestamp"`
	Concentrations   map[string]float64 `json:"concentrations"`
}

// SafetyHeadroom reports how much of a category's daily limit is consumed.
type SafetyHeadroom struct {
	Category    string  `json:"category"`
	Current     float64 `json:"current"`
	Limit       float64 `json:"limit"`
	Unit        string  `json:"unit"`
	PercentUsed float64 `json:"percent_used"`
}

// Snapshot is the complete derived state for one evaluation instant.
type Snapshot struct {
	RulesVersion        string               `json:"rules_version,omitempty"`
	Interactions        []InteractionWarning `json:"interactions"`
	RatioWarnings       []RatioWarning       `json:"ratio_warnings"`
	RatioEvaluationGaps []RatioEvaluationGap `json:"ratio_evaluation_gaps"`
	TimingWarnings      []TimingWarning      `json:"timing_warnings"`
	BiologicalState     BiologicalState      `json:"biological_state"`
	TimelineData        []TimelinePoint      `json:"timeline_data"`
	SafetyHeadroom      []SafetyHeadroom     `json:"safety_headroom"`
}
