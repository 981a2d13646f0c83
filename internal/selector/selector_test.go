package selector

import (
	"errors"
	"testing"

	"github.com/newthinker/feedd/internal/core"
	"github.com/newthinker/feedd/internal/health"
	"github.com/stretchr/testify/assert"
)

func healthMap(healthy map[core.ProviderID]bool) map[core.ProviderID]core.ProviderHealth {
	out := make(map[core.ProviderID]core.ProviderHealth, len(healthy))
	for id, h := range healthy {
		out[id] = core.ProviderHealth{ProviderID: id, Healthy: h}
	}
	return out
}

func TestSelector_AllHealthy(t *testing.T) {
	s := New([]core.ProviderID{"binance", "coincap", "coingecko"})

	got := s.Ordered(healthMap(map[core.ProviderID]bool{
		"binance": true, "coincap": true, "coingecko": true,
	}))

	assert.Equal(t, []core.ProviderID{"binance", "coincap", "coingecko"}, got)
}

func TestSelector_UnhealthyFilteredNotReordered(t *testing.T) {
	s := New([]core.ProviderID{"binance", "coincap", "coingecko"})

	got := s.Ordered(healthMap(map[core.ProviderID]bool{
		"binance": false, "coincap": true, "coingecko": true,
	}))

	assert.Equal(t, []core.ProviderID{"coincap", "coingecko"}, got)
}

func TestSelector_AllUnhealthyReturnsFullList(t *testing.T) {
	s := New([]core.ProviderID{"binance", "coincap", "coingecko"})

	got := s.Ordered(healthMap(map[core.ProviderID]bool{
		"binance": false, "coincap": false, "coingecko": false,
	}))

	// Degraded-but-try-everything: recovery fetches must still happen.
	assert.Equal(t, []core.ProviderID{"binance", "coincap", "coingecko"}, got)
}

func TestSelector_UnknownHealthTreatedUnhealthy(t *testing.T) {
	s := New([]core.ProviderID{"binance", "coincap"})

	got := s.Ordered(healthMap(map[core.ProviderID]bool{"coincap": true}))

	assert.Equal(t, []core.ProviderID{"coincap"}, got)
}

// Demotion scenario: after three consecutive failures the first
// provider must stop leading the order.
func TestSelector_DemotesAfterThreshold(t *testing.T) {
	tr := health.New([]core.ProviderID{"p1", "p2", "p3"}, 3)
	s := New([]core.ProviderID{"p1", "p2", "p3"})

	for i := 0; i < 3; i++ {
		assert.Equal(t, core.ProviderID("p1"), s.Ordered(tr.Snapshot())[0],
			"p1 stays first until the threshold is crossed")
		tr.RecordFailure("p1", errors.New("down"))
	}

	got := s.Ordered(tr.Snapshot())
	assert.Equal(t, []core.ProviderID{"p2", "p3"}, got,
		"4th attempt must no longer start with p1")
}

func TestSelector_PureFunction(t *testing.T) {
	s := New([]core.ProviderID{"binance", "coincap"})
	h := healthMap(map[core.ProviderID]bool{"binance": true, "coincap": false})

	first := s.Ordered(h)
	second := s.Ordered(h)

	assert.Equal(t, first, second, "same input must yield same output")
}
