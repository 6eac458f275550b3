// Package status exposes the daemon's latest cycle over HTTP for debugging.
// The cycle loop publishes immutable snapshots to a Board; the server only
// ever reads from it.
package status

import (
	"sync"
	"time"

	"github.com/banshee-data/ratemeter/internal/rate"
	"github.com/banshee-data/ratemeter/internal/slot"
	"github.com/banshee-data/ratemeter/internal/version"
	"github.com/banshee-data/ratemeter/internal/window"
)

// Snapshot is the state after one cycle that produced rates.
type Snapshot struct {
	InstanceID string    `json:"instance_id"`
	Version    string    `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
	Cycles     uint64    `json:"cycles"`
	Misses     uint64    `json:"misses"`
	Samples    int       `json:"samples"`
	Distance   float64   `json:"distance"`

	Short    rate.Estimate `json:"short"`
	Mid      rate.Estimate `json:"mid"`
	Long     rate.Estimate `json:"long"`
	Smoothed float64       `json:"smoothed"`

	// Encoded are the values computed this cycle. Slots listed in
	// FailedSlots were not written and still hold their previous value.
	Encoded     slot.Encoded `json:"encoded"`
	FailedSlots []string     `json:"failed_slots,omitempty"`

	// Window is the buffer contents, oldest first. Readers must not modify it.
	Window []window.Sample `json:"-"`
}

// Board holds the most recent Snapshot.
type Board struct {
	mu         sync.RWMutex
	instanceID string
	latest     Snapshot
	ok         bool
}

// NewBoard creates an empty Board stamping snapshots with instanceID.
func NewBoard(instanceID string) *Board {
	return &Board{instanceID: instanceID}
}

// InstanceID returns the identifier stamped on every snapshot.
func (b *Board) InstanceID() string { return b.instanceID }

// Publish replaces the current snapshot.
func (b *Board) Publish(s Snapshot) {
	s.InstanceID = b.instanceID
	s.Version = version.Version
	b.mu.Lock()
	defer b.mu.Unlock()
	b.latest = s
	b.ok = true
}

// Latest returns the current snapshot, or false before the first Publish.
func (b *Board) Latest() (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.ok
}
