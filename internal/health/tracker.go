// Package health maintains rolling per-provider health state.
package health

import (
	"math"
	"sync"
	"time"

	"github.com/newthinker/feedd/internal/core"
)

// DefaultFailureThreshold is the number of consecutive failures after
// which a provider is marked unhealthy. A single transient failure
// never flips a provider on its own.
const DefaultFailureThreshold = 3

// entry holds the mutable state for one provider. Each entry carries
// its own lock so outcome reports for different providers never
// contend with each other.
type entry struct {
	mu    sync.Mutex
	state core.ProviderHealth
}

// Tracker records fetch outcomes and answers health queries. Providers
// are fixed at construction time; entries are updated for the lifetime
// of the process, never removed.
type Tracker struct {
	entries   map[core.ProviderID]*entry
	order     []core.ProviderID
	threshold int
	now       func() time.Time
}

// New creates a tracker for the given providers. All providers start
// healthy (optimistic cold-start default). A threshold < 1 falls back
// to DefaultFailureThreshold.
func New(providers []core.ProviderID, threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultFailureThreshold
	}

	t := &Tracker{
		entries:   make(map[core.ProviderID]*entry, len(providers)),
		order:     append([]core.ProviderID(nil), providers...),
		threshold: threshold,
		now:       time.Now,
	}
	for _, id := range providers {
		t.entries[id] = &entry{
			state: core.ProviderHealth{
				ProviderID: id,
				Healthy:    true,
			},
		}
	}
	return t
}

// RecordSuccess marks a successful fetch for the provider. Health is
// restored on the very first success regardless of prior error count.
func (t *Tracker) RecordSuccess(id core.ProviderID) {
	e, ok := t.entries[id]
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ConsecutiveErrors = 0
	e.state.Healthy = true
	e.state.LastError = ""
	e.state.LastCheckedAt = t.now()
}

// RecordFailure marks a failed fetch for the provider. The provider
// turns unhealthy once consecutive failures reach the threshold.
func (t *Tracker) RecordFailure(id core.ProviderID, cause error) {
	e, ok := t.entries[id]
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.ConsecutiveErrors++
	if e.state.ConsecutiveErrors >= t.threshold {
		e.state.Healthy = false
	}
	if cause != nil {
		e.state.LastError = cause.Error()
	}
	e.state.LastCheckedAt = t.now()
}

// Health returns the current state for one provider. The zero value is
// returned for unknown providers.
func (t *Tracker) Health(id core.ProviderID) core.ProviderHealth {
	e, ok := t.entries[id]
	if !ok {
		return core.ProviderHealth{ProviderID: id}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a copy of all provider states.
func (t *Tracker) Snapshot() map[core.ProviderID]core.ProviderHealth {
	out := make(map[core.ProviderID]core.ProviderHealth, len(t.entries))
	for id, e := range t.entries {
		e.mu.Lock()
		out[id] = e.state
		e.mu.Unlock()
	}
	return out
}

// AggregateScore returns the percentage of providers currently
// healthy, rounded to the nearest integer. Zero providers scores 0.
func (t *Tracker) AggregateScore() int {
	total := len(t.entries)
	if total == 0 {
		return 0
	}

	healthy := 0
	for _, e := range t.entries {
		e.mu.Lock()
		if e.state.Healthy {
			healthy++
		}
		e.mu.Unlock()
	}
	return int(math.Round(100 * float64(healthy) / float64(total)))
}

// Providers returns the tracked provider ids in registration order.
func (t *Tracker) Providers() []core.ProviderID {
	return append([]core.ProviderID(nil), t.order...)
}
