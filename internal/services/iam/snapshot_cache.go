package iam

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/quicklinkpay/admin-iam/internal/rbac"
	"github.com/quicklinkpay/admin-iam/internal/telemetry"
)

// SnapshotCache holds recently built AuthContexts for UI permission gating.
//
// Entries expire after the TTL and are dropped eagerly on role and principal
// mutations. The cache is eventually consistent and never authoritative:
// enforcement re-reads storage on every decision.
type SnapshotCache struct {
	lru     *expirable.LRU[string, rbac.AuthContext]
	metrics *telemetry.Metrics
}

// NewSnapshotCache creates a cache bounded to size entries living at most ttl.
func NewSnapshotCache(size int, ttl time.Duration, metrics *telemetry.Metrics) (*SnapshotCache, error) {
	if size <= 0 {
		return nil, errors.New("snapshot cache size must be positive")
	}
	if ttl <= 0 {
		return nil, errors.New("snapshot cache ttl must be positive")
	}
	return &SnapshotCache{
		lru:     expirable.NewLRU[string, rbac.AuthContext](size, nil, ttl),
		metrics: metrics,
	}, nil
}

// Get returns the cached snapshot of principalID.
func (c *SnapshotCache) Get(principalID string) (rbac.AuthContext, bool) {
	ac, ok := c.lru.Get(principalID)
	c.metrics.RecordCacheLookup(ok)
	return ac, ok
}

// Add stores a snapshot.
func (c *SnapshotCache) Add(principalID string, ac rbac.AuthContext) {
	c.lru.Add(principalID, ac)
}

// Invalidate drops the snapshots of the given principals.
func (c *SnapshotCache) Invalidate(principalIDs ...string) {
	for _, id := range principalIDs {
		if id != "" {
			c.lru.Remove(id)
		}
	}
}

// Purge drops every snapshot. Role mutations affect an unknown set of principals.
func (c *SnapshotCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *SnapshotCache) Len() int {
	return c.lru.Len()
}
