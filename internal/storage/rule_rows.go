package storage

import (
	"fmt"
	"sort"

	"github.com/scrypster/stacksense/pkg/types"
)

// RuleRow is the flat, single-table form of a rule shared by the SQL
// backends. Columns that do not apply to a variant are left zero.
type RuleRow struct {
	ID       string
	Kind     types.RuleKind
	Position int

	SourceID   string
	SourceName string
	TargetID   string
	TargetName string
	Severity   string

	InteractionType string
	Mechanism       string
	Suggestion      string

	MinRatio     float64
	MaxRatio     float64
	OptimalRatio float64
	Message      string

	MinHoursApart float64
	Reason        string
}

// SupplementRow is the flat form of a supplement. HasKinetics distinguishes
// "no kinetics declared" from an all-zero declaration.
type SupplementRow struct {
	ID              string
	Name            string
	Category        string
	HasKinetics     bool
	KineticsType    string
	PeakMinutes     float64
	HalfLifeMinutes float64
	ElementalFactor float64
	Bioavailability float64
}

// FlattenRules converts every rule in snap to rows. Position preserves the
// declaration order within each kind.
func FlattenRules(snap *types.RuleSnapshot) []RuleRow {
	if snap == nil {
		return nil
	}
	rows := make([]RuleRow, 0, len(snap.Interactions)+len(snap.Ratios)+len(snap.Timings))
	for i, r := range snap.Interactions {
		rows = append(rows, RuleRow{
			ID: r.ID, Kind: types.RuleKindInteraction, Position: i,
			SourceID: r.SourceID, SourceName: r.SourceName, TargetID: r.TargetID, TargetName: r.TargetName,
			Severity:        string(r.Severity),
			InteractionType: string(r.Type),
			Mechanism:       r.Mechanism,
			Suggestion:      r.Suggestion,
		})
	}
	for i, r := range snap.Ratios {
		rows = append(rows, RuleRow{
			ID: r.ID, Kind: types.RuleKindRatio, Position: i,
			SourceID: r.SourceID, SourceName: r.SourceName, TargetID: r.TargetID, TargetName: r.TargetName,
			Severity:     string(r.Severity),
			MinRatio:     r.MinRatio,
			MaxRatio:     r.MaxRatio,
			OptimalRatio: r.OptimalRatio,
			Message:      r.Message,
		})
	}
	for i, r := range snap.Timings {
		rows = append(rows, RuleRow{
			ID: r.ID, Kind: types.RuleKindTiming, Position: i,
			SourceID: r.SourceID, SourceName: r.SourceName, TargetID: r.TargetID, TargetName: r.TargetName,
			Severity:      string(r.Severity),
			MinHoursApart: r.MinHoursApart,
			Reason:        r.Reason,
		})
	}
	return rows
}

// FlattenSupplements converts the supplement catalogue to rows sorted by id.
func FlattenSupplements(snap *types.RuleSnapshot) []SupplementRow {
	if snap == nil {
		return nil
	}
	rows := make([]SupplementRow, 0, len(snap.Supplements))
	for id, s := range snap.Supplements {
		row := SupplementRow{
			ID:              id,
			Name:            s.Name,
			Category:        s.Category,
			ElementalFactor: s.ElementalFactor,
			Bioavailability: s.Bioavailability,
		}
		if s.Kinetics != nil {
			row.HasKinetics = true
			row.KineticsType = string(s.Kinetics.Type)
			row.PeakMinutes = s.Kinetics.PeakMinutes
			row.HalfLifeMinutes = s.Kinetics.HalfLifeMinutes
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// AssembleSnapshot rebuilds a snapshot from stored rows. Rules are ordered
// by Position within their kind.
func AssembleSnapshot(version string, sups []SupplementRow, rules []RuleRow, limits types.SafetyLimits) (*types.RuleSnapshot, error) {
	snap := &types.RuleSnapshot{
		Version:      version,
		Supplements:  make(map[string]types.Supplement, len(sups)),
		Interactions: []types.InteractionRule{},
		Ratios:       []types.RatioRule{},
		Timings:      []types.TimingRule{},
		SafetyLimits: limits,
	}
	if snap.SafetyLimits == nil {
		snap.SafetyLimits = types.SafetyLimits{}
	}

	for _, row := range sups {
		sup := types.Supplement{
			ID:              row.ID,
			Name:            row.Name,
			Category:        row.Category,
			ElementalFactor: row.ElementalFactor,
			Bioavailability: row.Bioavailability,
		}
		if row.HasKinetics {
			sup.Kinetics = &types.Kinetics{
				Type:            types.KineticsType(row.KineticsType),
				PeakMinutes:     row.PeakMinutes,
				HalfLifeMinutes: row.HalfLifeMinutes,
			}
		}
		snap.Supplements[row.ID] = sup
	}

	ordered := make([]RuleRow, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Kind != ordered[j].Kind {
			return ordered[i].Kind < ordered[j].Kind
		}
		return ordered[i].Position < ordered[j].Position
	})

	for _, row := range ordered {
		ends := types.RuleEndpoints{
			SourceID: row.SourceID, SourceName: row.SourceName,
			TargetID: row.TargetID, TargetName: row.TargetName,
		}
		switch row.Kind {
		case types.RuleKindInteraction:
			snap.Interactions = append(snap.Interactions, types.InteractionRule{
				ID:            row.ID,
				RuleEndpoints: ends,
				Type:          types.InteractionType(row.InteractionType),
				Severity:      types.Severity(row.Severity),
				Mechanism:     row.Mechanism,
				Suggestion:    row.Suggestion,
			})
		case types.RuleKindRatio:
			snap.Ratios = append(snap.Ratios, types.RatioRule{
				ID:            row.ID,
				RuleEndpoints: ends,
				MinRatio:      row.MinRatio,
				MaxRatio:      row.MaxRatio,
				OptimalRatio:  row.OptimalRatio,
				Severity:      types.Severity(row.Severity),
				Message:       row.Message,
			})
		case types.RuleKindTiming:
			snap.Timings = append(snap.Timings, types.TimingRule{
				ID:            row.ID,
				RuleEndpoints: ends,
				MinHoursApart: row.MinHoursApart,
				Severity:      types.Severity(row.Severity),
				Reason:        row.Reason,
			})
		default:
			return nil, fmt.Errorf("storage: rule %q has unknown kind %q", row.ID, row.Kind)
		}
	}
	return snap, nil
}
