package telemetry

import (
	"sort"
	"sync"
)

// LatestCache holds the most recent snapshot per device.
type LatestCache struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

// NewLatestCache creates an empty cache.
func NewLatestCache() *LatestCache {
	return &LatestCache{snapshots: make(map[string]Snapshot)}
}

// Update stores s unless a newer snapshot for the same device is already held.
// It reports whether s was stored.
func (c *LatestCache) Update(s Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.snapshots[s.DeviceID]; ok && prev.ReceivedAt.After(s.ReceivedAt) {
		return false
	}
	c.snapshots[s.DeviceID] = s
	return true
}

// Get returns the latest snapshot for deviceID.
func (c *LatestCache) Get(deviceID string) (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.snapshots[deviceID]
	return s, ok
}

// DeviceIDs returns every device that has reported, sorted.
func (c *LatestCache) DeviceIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.snapshots))
	for id := range c.snapshots {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Len returns the number of devices held.
func (c *LatestCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.snapshots)
}
