// Package types defines the core data structures for the stacksense supplement
// tracker: intake logs, supplement metadata, the rule base, and the derived
// snapshot produced by the engine.
package types

// Severity ranks how serious a rule violation is.
type Severity string

// Severity constants
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities so that critical sorts first. Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// InteractionType classifies the relationship declared by an interaction rule.
type InteractionType string

// Interaction type constants
const (
	InteractionSynergy     InteractionType = "synergy"
	InteractionInhibition  InteractionType = "inhibition"
	InteractionCompetition InteractionType = "competition"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionSynergy, InteractionInhibition, InteractionCompetition:
		return true
	}
	return false
}

// KineticsType selects the absorption/elimination model for a compound.
type KineticsType string

// Kinetics type constants
const (
	KineticsFirstOrder KineticsType = "first_order"
	KineticsSaturable  KineticsType = "saturable"
)

// Valid reports whether k is a known kinetics type. Empty is valid and means
// first-order.
func (k KineticsType) Valid() bool {
	switch k {
	case "", KineticsFirstOrder, KineticsSaturable:
		return true
	}
	return false
}

// Phase describes where a dose sits on its concentration curve.
type Phase string

// Kinetic phase constants
const (
	PhaseAbsorbing   Phase = "absorbing"
	PhasePeak        Phase = "peak"
	PhaseEliminating Phase = "eliminating"
	PhaseCleared     Phase = "cleared"
)

// RuleKind tags the three rule variants.
type RuleKind string

// Rule kind constants
const (
	RuleKindInteraction RuleKind = "interaction"
	RuleKindRatio       RuleKind = "ratio"
	RuleKindTiming      RuleKind = "timing"
)

// GapReason explains why a ratio rule could not be evaluated.
type GapReason string

// Ratio evaluation gap reasons
const (
	GapUnitUnconvertible    GapReason = "unit_unconvertible"
	GapZeroTargetDose       GapReason = "zero_target_dose"
	GapUnresolvedSupplement GapReason = "unresolved_supplement"
)
