package engine

import "github.com/scrypster/stacksense/pkg/types"

const (
	// MaxBioScore is the starting point of the fold.
	MaxBioScore = 100

	// NeutralBioScore is reported when nothing is active.
	NeutralBioScore = 50

	criticalZonePenalty = 50
	mediumZonePenalty   = 25
	lowZonePenalty      = 15

	// SynergyBonus is added per realized synergy, up to MaxSynergyBonus.
	SynergyBonus    = 5
	MaxSynergyBonus = 20
)

// ZonePenalty returns the score deduction for one exclusion zone.
func ZonePenalty(s types.Severity) int {
	switch s {
	case types.SeverityCritical:
		return criticalZonePenalty
	case types.SeverityMedium:
		return mediumZonePenalty
	case types.SeverityLow:
		return lowZonePenalty
	default:
		return 0
	}
}

// BioScore folds exclusion zones and realized synergies into a 0-100 score.
func BioScore(zones []types.ExclusionZone, opts []types.Optimization, activeCompounds int) int {
	if activeCompounds == 0 {
		return NeutralBioScore
	}

	score := MaxBioScore
	for _, z := range zones {
		score -= ZonePenalty(z.Severity)
	}

	bonus := SynergyBonus * len(opts)
	if bonus > MaxSynergyBonus {
		bonus = MaxSynergyBonus
	}
	score += bonus

	switch {
	case score < 0:
		return 0
	case score > MaxBioScore:
		return MaxBioScore
	default:
		return score
	}
}
