package engine

import (
	"math"
	"sort"
	"time"

	"github.com/scrypster/stacksense/pkg/types"
)

// doseSet indexes a set of logs by supplement, newest first.
type doseSet struct {
	logs         []types.LogEntry
	bySupplement map[string][]types.LogEntry
	order        []string
}

func newDoseSet(logs []types.LogEntry) *doseSet {
	sorted := make([]types.LogEntry, len(logs))
	copy(sorted, logs)
	sortNewestFirst(sorted)

	ds := &doseSet{
		logs:         sorted,
		bySupplement: make(map[string][]types.LogEntry),
	}
	for _, l := range sorted {
		if _, ok := ds.bySupplement[l.SupplementID]; !ok {
			ds.order = append(ds.order, l.SupplementID)
		}
		ds.bySupplement[l.SupplementID] = append(ds.bySupplement[l.SupplementID], l)
	}
	sort.Strings(ds.order)
	return ds
}

func (d *doseSet) has(supplementID string) bool {
	return len(d.bySupplement[supplementID]) > 0
}

func (d *doseSet) doses(supplementID string) []types.LogEntry {
	return d.bySupplement[supplementID]
}

// sortNewestFirst orders logs by LoggedAt descending; ties fall back to id
// descending so the order never depends on input order.
func sortNewestFirst(logs []types.LogEntry) {
	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].LoggedAt.Equal(logs[j].LoggedAt) {
			return logs[i].LoggedAt.After(logs[j].LoggedAt)
		}
		return logs[i].ID > logs[j].ID
	})
}

// LatestDose implements the "latest wins" policy: when a supplement was
// logged several times, only its most recent dose counts toward ratios.
func LatestDose(logs []types.LogEntry) map[string]types.LogEntry {
	sorted := make([]types.LogEntry, len(logs))
	copy(sorted, logs)
	sortNewestFirst(sorted)

	latest := make(map[string]types.LogEntry)
	for _, l := range sorted {
		if _, ok := latest[l.SupplementID]; !ok {
			latest[l.SupplementID] = l
		}
	}
	return latest
}

// ClosestPair implements the "closest approach" policy: of every pairing of
// one log from a with one from b, it returns the pair nearest in time.
// ok is false when either side is empty.
func ClosestPair(a, b []types.LogEntry) (x, y types.LogEntry, gap time.Duration, ok bool) {
	best := time.Duration(math.MaxInt64)
	for _, la := range a {
		for _, lb := range b {
			d := la.LoggedAt.Sub(lb.LoggedAt)
			if d < 0 {
				d = -d
			}
			if d < best {
				best, x, y, ok = d, la, lb, true
			}
		}
	}
	return x, y, best, ok
}

// PairKey is the canonical unordered key for two supplement ids, so a rule
// stated as (A,B) or (B,A) maps to the same key.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// SuggestionKey is the stable key external collaborators use to track
// dismissal of an optimization.
func SuggestionKey(kind types.InteractionType, a, b string) string {
	return string(kind) + ":" + PairKey(a, b)
}

// resolveEndpoints fills in display names from the snapshot when the rule
// carries none. ok is false when an endpoint cannot be named at all.
func resolveEndpoints(snap *types.RuleSnapshot, ep types.RuleEndpoints) (types.RuleEndpoints, bool) {
	if ep.SourceID == "" || ep.TargetID == "" || ep.SourceID == ep.TargetID {
		return ep, false
	}
	if ep.SourceName == "" {
		sup, ok := snap.Supplement(ep.SourceID)
		if !ok || sup.Name == "" {
			return ep, false
		}
		ep.SourceName = sup.Name
	}
	if ep.TargetName == "" {
		sup, ok := snap.Supplement(ep.TargetID)
		if !ok || sup.Name == "" {
			return ep, false
		}
		ep.TargetName = sup.Name
	}
	return ep, true
}

// supplementName picks the best display name for a supplement.
func supplementName(snap *types.RuleSnapshot, id string, doses []types.LogEntry) string {
	if sup, ok := snap.Supplement(id); ok && sup.Name != "" {
		return sup.Name
	}
	for _, d := range doses {
		if d.SupplementName != "" {
			return d.SupplementName
		}
	}
	return id
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// sortBySeverity orders items critical first, then by key.
func sortBySeverity[T any](items []T, severity func(T) types.Severity, key func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := severity(items[i]).Rank(), severity(items[j]).Rank()
		if ri != rj {
			return ri > rj
		}
		return key(items[i]) < key(items[j])
	})
}
