// Package cache memoizes derived snapshots.
//
// A snapshot is a pure function of (user, logs, rules, now, location), so the
// cache key covers every one of those inputs and entries never need explicit
// invalidation. Capacity is bounded with oldest-first eviction and each entry
// expires after a TTL.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"math"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/scrypster/stacksense/pkg/types"
)

const (
	// DefaultSize is used when New is given a non-positive size.
	DefaultSize = 256

	// DefaultTTL is used when New is given a non-positive TTL.
	DefaultTTL = 5 * time.Minute
)

// Stats reports cache effectiveness.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// SnapshotCache is safe for concurrent use. Cached snapshots are shared
// between callers and must be treated as read-only.
type SnapshotCache struct {
	entries *expirable.LRU[string, *types.Snapshot]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New creates a cache holding at most size snapshots for ttl each.
func New(size int, ttl time.Duration) *SnapshotCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SnapshotCache{entries: expirable.NewLRU[string, *types.Snapshot](size, nil, ttl)}
}

// Get returns the cached snapshot for key. Reads go through Peek so a hit
// does not refresh recency and eviction stays in insertion order.
func (c *SnapshotCache) Get(key string) (*types.Snapshot, bool) {
	snap, ok := c.entries.Peek(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return snap, ok
}

// Add stores snap under key, evicting the oldest entry if full.
func (c *SnapshotCache) Add(key string, snap *types.Snapshot) {
	c.entries.Add(key, snap)
}

// GetOrCompute returns the cached snapshot for key, computing and storing
// it on a miss. Concurrent misses on the same key may compute twice; the
// results are identical.
func (c *SnapshotCache) GetOrCompute(key string, compute func() *types.Snapshot) *types.Snapshot {
	if snap, ok := c.Get(key); ok {
		return snap
	}
	snap := compute()
	c.Add(key, snap)
	return snap
}

// Purge drops every entry.
func (c *SnapshotCache) Purge() {
	c.entries.Purge()
}

// Stats returns hit/miss counters and the current size.
func (c *SnapshotCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Size:   c.entries.Len(),
	}
}

// Key fingerprints every input of a derivation.
func Key(userID string, logs []types.LogEntry, rules *types.RuleSnapshot, now time.Time, loc *time.Location) string {
	h := sha256.New()
	writeString(h, userID)
	if rules != nil {
		writeString(h, rules.Version)
	} else {
		writeString(h, "")
	}
	writeInt(h, now.UnixNano())
	if loc == nil {
		loc = now.Location()
	}
	writeString(h, loc.String())

	writeInt(h, int64(len(logs)))
	for _, l := range logs {
		writeString(h, l.ID)
		writeString(h, l.SupplementID)
		writeInt(h, int64(math.Float64bits(l.Dosage)))
		writeString(h, l.Unit)
		writeInt(h, l.LoggedAt.UnixNano())
		writeString(h, l.SupplementName)
		writeString(h, l.SupplementCategory)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// writeString is length-prefixed so adjacent fields cannot run together.
func writeString(h hash.Hash, s string) {
	writeInt(h, int64(len(s)))
	h.Write([]byte(s))
}

func writeInt(h hash.Hash, v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	h.Write(buf[:])
}
