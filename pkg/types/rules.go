package types

// Rule is implemented by the three rule variants. Code that must treat every
// variant switches on the concrete type.
type Rule interface {
	RuleID() string
	Kind() RuleKind
	Endpoints() RuleEndpoints
}

// RuleEndpoints names the two supplements a rule relates, with the
// denormalized display names the data layer attaches.
type RuleEndpoints struct {
	SourceID   string `json:"source_id"`
	SourceName string `json:"source_name,omitempty"`
	TargetID   string `json:"target_id"`
	TargetName string `json:"target_name,omitempty"`
}

// InteractionRule declares a synergy, inhibition or competition between two
// compounds, independent of dose and timing.
type InteractionRule struct {
	ID string `json:"id"`
	RuleEndpoints
	Type       InteractionType `json:"type"`
	Severity   Severity        `json:"severity"`
	Mechanism  string          `json:"mechanism,omitempty"`
	Suggestion string          `json:"suggestion,omitempty"`
}

// RatioRule declares the elemental-mass band source:target should stay in.
type RatioRule struct {
	ID string `json:"id"`
	RuleEndpoints
	MinRatio     float64  `json:"min_ratio"`
	MaxRatio     float64  `json:"max_ratio"`
	OptimalRatio float64  `json:"optimal_ratio"`
	Severity     Severity `json:"severity"`
	Message      string   `json:"message,omitempty"`
}

// TimingRule declares the minimum separation between doses of two compounds.
type TimingRule struct {
	ID string `json:"id"`
	RuleEndpoints
	MinHoursApart float64  `json:"min_hours_apart"`
	Severity      Severity `json:"severity"`
	Reason        string   `json:"reason,omitempty"`
}

func (r InteractionRule) RuleID() string           { return r.ID }
func (r InteractionRule) Kind() RuleKind           { return RuleKindInteraction }
func (r InteractionRule) Endpoints() RuleEndpoints { return r.RuleEndpoints }

func (r RatioRule) RuleID() string           { return r.ID }
func (r RatioRule) Kind() RuleKind           { return RuleKindRatio }
func (r RatioRule) Endpoints() RuleEndpoints { return r.RuleEndpoints }

func (r TimingRule) RuleID() string           { return r.ID }
func (r TimingRule) Kind() RuleKind           { return RuleKindTiming }
func (r TimingRule) Endpoints() RuleEndpoints { return r.RuleEndpoints }

// SafetyLimit is the daily ceiling for one safety category.
type SafetyLimit struct {
	Limit float64 `json:"limit"`
	Unit  string  `json:"unit"`
}

// SafetyLimits maps a safety category to its limit.
type SafetyLimits map[string]SafetyLimit

// RuleSnapshot is the immutable rule base handed to the engine for one
// evaluation. Version identifies the content it was built from.
type RuleSnapshot struct {
	Version      string                `json:"version,omitempty"`
	Supplements  map[string]Supplement `json:"supplements"`
	Interactions []InteractionRule     `json:"interactions"`
	Ratios       []RatioRule           `json:"ratios"`
	Timings      []TimingRule          `json:"timings"`
	SafetyLimits SafetyLimits          `json:"safety_limits"`
}

// Rules returns every rule in the snapshot in a fixed order: interactions,
// ratios, timings.
func (s *RuleSnapshot) Rules() []Rule {
	if s == nil {
		return nil
	}
	out := make([]Rule, 0, len(s.Interactions)+len(s.Ratios)+len(s.Timings))
	for _, r := range s.Interactions {
		out = append(out, r)
	}
	for _, r := range s.Ratios {
		out = append(out, r)
	}
	for _, r := range s.Timings {
		out = append(out, r)
	}
	return out
}

// Supplement looks up a supplement by id.
func (s *RuleSnapshot) Supplement(id string) (Supplement, bool) {
	if s == nil || s.Supplements == nil {
		return Supplement{}, false
	}
	sup, ok := s.Supplements[id]
	return sup, ok
}
