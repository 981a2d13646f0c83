// Package selector decides the order in which providers are tried.
package selector

import "github.com/newthinker/feedd/internal/core"

// Selector applies a static priority order gated by health. Priority is
// fixed at startup to keep failover behavior predictable and auditable;
// health only filters eligibility, it never reorders the list.
type Selector struct {
	priority []core.ProviderID
}

// New creates a selector with the given priority order (most preferred
// first).
func New(priority []core.ProviderID) *Selector {
	return &Selector{priority: append([]core.ProviderID(nil), priority...)}
}

// Ordered returns healthy providers in priority order. When every
// provider is unhealthy it returns the full priority list so the
// caller can still attempt a recovery fetch.
func (s *Selector) Ordered(health map[core.ProviderID]core.ProviderHealth) []core.ProviderID {
	out := make([]core.ProviderID, 0, len(s.priority))
	for _, id := range s.priority {
		if h, ok := health[id]; ok && h.Healthy {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return append([]core.ProviderID(nil), s.priority...)
	}
	return out
}

// Priority returns the configured priority list.
func (s *Selector) Priority() []core.ProviderID {
	return append([]core.ProviderID(nil), s.priority...)
}
