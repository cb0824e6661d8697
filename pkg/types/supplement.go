package types

import "time"

// LogEntry is an immutable record of one intake event. The supplement display
// fields are denormalized copies taken when the log was written.
type LogEntry struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id,omitempty"`
	SupplementID       string    `json:"supplement_id"`
	Dosage             float64   `json:"dosage"`
	Unit               string    `json:"unit"`
	LoggedAt           time.Time `json:"logged_at"`
	SupplementName     string    `json:"supplement_name,omitempty"`
	SupplementCategory string    `json:"supplement_category,omitempty"`
}

// Kinetics holds the absorption/elimination parameters of a compound.
// Zero values fall back to engine defaults.
type Kinetics struct {
	Type            KineticsType `json:"type,omitempty"`
	PeakMinutes     float64      `json:"peak_minutes,omitempty"`
	HalfLifeMinutes float64      `json:"half_life_minutes,omitempty"`
}

// Supplement is the static metadata for one compound.
type Supplement struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Category string    `json:"category,omitempty"`
	Kinetics *Kinetics `json:"kinetics,omitempty"`

	// ElementalFactor is the elemental mass fraction of a dose (zinc gluconate
	// is roughly 0.14 zinc). Zero means 1.
	ElementalFactor float64 `json:"elemental_factor,omitempty"`

	// Bioavailability is the absorbed fraction, carried for display.
	Bioavailability float64 `json:"bioavailability,omitempty"`
}
