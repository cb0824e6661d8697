// Package rules loads the supplement rule base from a YAML or TOML rule
// pack, validates it, and watches the pack file for edits.
package rules

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/scrypster/stacksense/internal/engine"
	"github.com/scrypster/stacksense/pkg/types"
)

// ErrInvalidPack wraps every validation failure of a rule pack.
var ErrInvalidPack = errors.New("rules: invalid rule pack")

// Pack is a parsed and validated rule pack.
type Pack struct {
	// Path is the file the pack was read from; empty for in-memory packs.
	Path string

	// DeclaredVersion is the free-form version string inside the file.
	DeclaredVersion string

	// Snapshot is the rule base the engine consumes. Its Version is a
	// fingerprint of the file content.
	Snapshot *types.RuleSnapshot

	// Warnings lists problems that do not invalidate the pack, such as rules
	// referencing supplements the pack does not define. The engine skips
	// those rules at evaluation time.
	Warnings []string
}

type packDoc struct {
	Version      string                 `yaml:"version" toml:"version"`
	Supplements  []supplementDoc        `yaml:"supplements" toml:"supplements"`
	Interactions []interactionDoc       `yaml:"interactions" toml:"interactions"`
	Ratios       []ratioDoc             `yaml:"ratios" toml:"ratios"`
	Timings      []timingDoc            `yaml:"timings" toml:"timings"`
	SafetyLimits map[string]safetyLimit `yaml:"safety_limits" toml:"safety_limits"`
}

type kineticsDoc struct {
	Type            string  `yaml:"type" toml:"type"`
	PeakMinutes     float64 `yaml:"peak_minutes" toml:"peak_minutes"`
	HalfLifeMinutes float64 `yaml:"half_life_minutes" toml:"half_life_minutes"`
}

type supplementDoc struct {
	ID              string       `yaml:"id" toml:"id"`
	Name            string       `yaml:"name" toml:"name"`
	Category        string       `yaml:"category" toml:"category"`
	Kinetics        *kineticsDoc `yaml:"kinetics" toml:"kinetics"`
	ElementalFactor float64      `yaml:"elemental_factor" toml:"elemental_factor"`
	Bioavailability float64      `yaml:"bioavailability" toml:"bioavailability"`
}

type interactionDoc struct {
	ID         string `yaml:"id" toml:"id"`
	Source     string `yaml:"source" toml:"source"`
	Target     string `yaml:"target" toml:"target"`
	Type       string `yaml:"type" toml:"type"`
	Severity   string `yaml:"severity" toml:"severity"`
	Mechanism  string `yaml:"mechanism" toml:"mechanism"`
	Suggestion string `yaml:"suggestion" toml:"suggestion"`
}

type ratioDoc struct {
	ID       string  `yaml:"id" toml:"id"`
	Source   string  `yaml:"source" toml:"source"`
	Target   string  `yaml:"target" toml:"target"`
	Min      float64 `yaml:"min" toml:"min"`
	Max      float64 `yaml:"max" toml:"max"`
	Optimal  float64 `yaml:"optimal" toml:"optimal"`
	Severity string  `yaml:"severity" toml:"severity"`
	Message  string  `yaml:"message" toml:"message"`
}

type timingDoc struct {
	ID            string  `yaml:"id" toml:"id"`
	Source        string  `yaml:"source" toml:"source"`
	Target        string  `yaml:"target" toml:"target"`
	MinHoursApart float64 `yaml:"min_hours_apart" toml:"min_hours_apart"`
	Severity      string  `yaml:"severity" toml:"severity"`
	Reason        string  `yaml:"reason" toml:"reason"`
}

type safetyLimit struct {
	Limit float64 `yaml:"limit" toml:"limit"`
	Unit  string  `yaml:"unit" toml:"unit"`
}

// Format is a rule pack encoding.
type Format string

// Supported pack encodings.
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor picks the encoding from a file extension; anything other than
// .toml is read as YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadPack reads and validates the rule pack at path.
func LoadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: failed to read pack %s: %w", path, err)
	}
	pack, err := ParsePackFormat(data, FormatFor(path))
	if err != nil {
		return nil, err
	}
	pack.Path = path
	return pack, nil
}

// ParsePack parses and validates rule pack YAML.
func ParsePack(data []byte) (*Pack, error) {
	return ParsePackFormat(data, FormatYAML)
}

// ParsePackFormat parses and validates a rule pack in the given encoding.
func ParsePackFormat(data []byte, format Format) (*Pack, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: pack is empty", ErrInvalidPack)
	}

	var doc packDoc
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	case FormatTOML:
		err = toml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidPack, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPack, err)
	}

	seen := make(map[string]bool, len(doc.Supplements))
	for _, s := range doc.Supplements {
		if seen[s.ID] {
			return nil, fmt.Errorf("%w: supplement %q defined twice", ErrInvalidPack, s.ID)
		}
		seen[s.ID] = true
	}

	snap := doc.snapshot()
	snap.Version = Fingerprint(data)

	warnings, err := Validate(snap)
	if err != nil {
		return nil, err
	}
	return &Pack{
		DeclaredVersion: doc.Version,
		Snapshot:        snap,
		Warnings:        warnings,
	}, nil
}

// Fingerprint is the content hash used as RuleSnapshot.Version.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

func (d *packDoc) snapshot() *types.RuleSnapshot {
	snap := &types.RuleSnapshot{
		Supplements:  make(map[string]types.Supplement, len(d.Supplements)),
		Interactions: make([]types.InteractionRule, 0, len(d.Interactions)),
		Ratios:       make([]types.RatioRule, 0, len(d.Ratios)),
		Timings:      make([]types.TimingRule, 0, len(d.Timings)),
		SafetyLimits: make(types.SafetyLimits, len(d.SafetyLimits)),
	}

	for _, s := range d.Supplements {
		sup := types.Supplement{
			ID:              s.ID,
			Name:            s.Name,
			Category:        s.Category,
			ElementalFactor: s.ElementalFactor,
			Bioavailability: s.Bioavailability,
		}
		if s.Kinetics != nil {
			sup.Kinetics = &types.Kinetics{
				Type:            types.KineticsType(s.Kinetics.Type),
				PeakMinutes:     s.Kinetics.PeakMinutes,
				HalfLifeMinutes: s.Kinetics.HalfLifeMinutes,
			}
		}
		snap.Supplements[s.ID] = sup
	}

	endpoints := func(src, tgt string) types.RuleEndpoints {
		ep := types.RuleEndpoints{SourceID: src, TargetID: tgt}
		if s, ok := snap.Supplements[src]; ok {
			ep.SourceName = s.Name
		}
		if s, ok := snap.Supplements[tgt]; ok {
			ep.TargetName = s.Name
		}
		return ep
	}

	for _, r := range d.Interactions {
		snap.Interactions = append(snap.Interactions, types.InteractionRule{
			ID:            r.ID,
			RuleEndpoints: endpoints(r.Source, r.Target),
			Type:          types.InteractionType(r.Type),
			Severity:      types.Severity(r.Severity),
			Mechanism:     r.Mechanism,
			Suggestion:    r.Suggestion,
		})
	}
	for _, r := range d.Ratios {
		snap.Ratios = append(snap.Ratios, types.RatioRule{
			ID:            r.ID,
			RuleEndpoints: endpoints(r.Source, r.Target),
			MinRatio:      r.Min,
			MaxRatio:      r.Max,
			OptimalRatio:  r.Optimal,
			Severity:      types.Severity(r.Severity),
			Message:       r.Message,
		})
	}
	for _, r := range d.Timings {
		snap.Timings = append(snap.Timings, types.TimingRule{
			ID:            r.ID,
			RuleEndpoints: endpoints(r.Source, r.Target),
			MinHoursApart: r.MinHoursApart,
			Severity:      types.Severity(r.Severity),
			Reason:        r.Reason,
		})
	}
	for category, l := range d.SafetyLimits {
		snap.SafetyLimits[category] = types.SafetyLimit{Limit: l.Limit, Unit: l.Unit}
	}
	return snap
}

// Validate checks a rule snapshot. Structural problems (unknown enums,
// duplicate ids, impossible bands) are returned joined under ErrInvalidPack.
// Dangling supplement references are returned as warnings.
func Validate(snap *types.RuleSnapshot) ([]string, error) {
	var problems []error
	var warnings []string

	for id, s := range snap.Supplements {
		if id == "" {
			problems = append(problems, errors.New("supplement with empty id"))
			continue
		}
		if s.Name == "" {
			problems = append(problems, fmt.Errorf("supplement %q: name is required", id))
		}
		if s.Kinetics != nil {
			if !s.Kinetics.Type.Valid() {
				problems = append(problems, fmt.Errorf("supplement %q: unknown kinetics type %q", id, s.Kinetics.Type))
			}
			if s.Kinetics.PeakMinutes < 0 || s.Kinetics.HalfLifeMinutes < 0 {
				problems = append(problems, fmt.Errorf("supplement %q: kinetics must not be negative", id))
			}
		}
		if s.ElementalFactor < 0 || s.ElementalFactor > 1 {
			problems = append(problems, fmt.Errorf("supplement %q: elemental_factor must be within [0,1]", id))
		}
	}

	ids := make(map[string]bool)
	for _, rule := range snap.Rules() {
		id := rule.RuleID()
		ep := rule.Endpoints()
		if id == "" {
			problems = append(problems, fmt.Errorf("%s rule %s->%s: id is required", rule.Kind(), ep.SourceID, ep.TargetID))
		} else if ids[id] {
			problems = append(problems, fmt.Errorf("rule %q: duplicate id", id))
		}
		ids[id] = true

		if ep.SourceID == "" || ep.TargetID == "" {
			problems = append(problems, fmt.Errorf("rule %q: source and target are required", id))
		} else if ep.SourceID == ep.TargetID {
			problems = append(problems, fmt.Errorf("rule %q: source and target must differ", id))
		}
		for _, ref := range []string{ep.SourceID, ep.TargetID} {
			if ref == "" {
				continue
			}
			if _, ok := snap.Supplements[ref]; !ok {
				warnings = append(warnings, fmt.Sprintf("rule %q references unknown supplement %q", id, ref))
			}
		}

		switch r := rule.(type) {
		case types.InteractionRule:
			if !r.Type.Valid() {
				problems = append(problems, fmt.Errorf("rule %q: unknown interaction type %q", id, r.Type))
			}
			if !r.Severity.Valid() {
				problems = append(problems, fmt.Errorf("rule %q: unknown severity %q", id, r.Severity))
			}
		case types.RatioRule:
			if !r.Severity.Valid() {
				problems = append(problems, fmt.Errorf("rule %q: unknown severity %q", id, r.Severity))
			}
			if r.MinRatio < 0 || r.MaxRatio <= 0 || r.MinRatio > r.MaxRatio {
				problems = append(problems, fmt.Errorf("rule %q: ratio band [%g, %g] is invalid", id, r.MinRatio, r.MaxRatio))
			}
		case types.TimingRule:
			if !r.Severity.Valid() {
				problems = append(problems, fmt.Errorf("rule %q: unknown severity %q", id, r.Severity))
			}
			if r.MinHoursApart <= 0 {
				problems = append(problems, fmt.Errorf("rule %q: min_hours_apart must be positive", id))
			}
		default:
			problems = append(problems, fmt.Errorf("rule %q: unsupported rule kind %T", id, rule))
		}
	}

	for category, l := range snap.SafetyLimits {
		if l.Limit <= 0 {
			problems = append(problems, fmt.Errorf("safety limit %q: limit must be positive", category))
		}
		if !engine.IsKnownUnit(l.Unit) {
			problems = append(problems, fmt.Errorf("safety limit %q: unknown unit %q", category, l.Unit))
		}
	}

	sort.Strings(warnings)
	if len(problems) > 0 {
		sortErrors(problems)
		return warnings, fmt.Errorf("%w: %w", ErrInvalidPack, errors.Join(problems...))
	}
	return warnings, nil
}

// sortErrors orders errors by message so map iteration cannot reorder them.
func sortErrors(errs []error) {
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
}
