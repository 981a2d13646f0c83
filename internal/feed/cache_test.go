package feed

import (
	"testing"
	"time"

	"github.com/newthinker/feedd/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(n int) core.Snapshot {
	return core.Snapshot{
		PerAsset: map[string]core.PriceRecord{
			"bitcoin": {AssetID: "bitcoin", PriceUSD: float64(n)},
		},
		ActiveProvider: "binance",
		HealthScore:    100,
		Sources:        map[core.ProviderID]core.ProviderHealth{},
		RefreshedAt:    time.Unix(int64(n), 0),
	}
}

func TestCache_InitialState(t *testing.T) {
	c := NewCache(4)

	got := c.Get()
	assert.True(t, got.Stale, "initial snapshot is stale")
	assert.Empty(t, got.PerAsset)
	assert.Equal(t, core.ProviderID(""), got.ActiveProvider)
}

func TestCache_GetNeverReturnsMutableHandle(t *testing.T) {
	c := NewCache(4)
	c.Publish(snapshotAt(1))

	got := c.Get()
	got.PerAsset["bitcoin"] = core.PriceRecord{AssetID: "bitcoin", PriceUSD: -1}

	assert.Equal(t, 1.0, c.Get().PerAsset["bitcoin"].PriceUSD,
		"mutating a returned snapshot must not affect the cache")
}

func TestCache_GetIdempotent(t *testing.T) {
	c := NewCache(4)
	c.Publish(snapshotAt(7))

	first := c.Get()
	second := c.Get()
	assert.Equal(t, first, second, "repeated reads without a refresh are identical")
}

func TestCache_SubscriberGetsCurrentImmediately(t *testing.T) {
	c := NewCache(4)
	c.Publish(snapshotAt(3))

	sub := c.Subscribe()
	defer sub.Close()

	select {
	case got := <-sub.C:
		assert.Equal(t, 3.0, got.PerAsset["bitcoin"].PriceUSD)
	case <-time.After(time.Second):
		t.Fatal("late subscriber should receive the current snapshot immediately")
	}
}

func TestCache_SubscribersObservePublicationOrder(t *testing.T) {
	c := NewCache(8)

	early := c.Subscribe()
	defer early.Close()
	c.Publish(snapshotAt(1))

	late := c.Subscribe()
	defer late.Close()
	c.Publish(snapshotAt(2))
	c.Publish(snapshotAt(3))

	// early sees: initial empty, 1, 2, 3.
	drainOne := func(sub *Subscription) core.Snapshot {
		select {
		case s := <-sub.C:
			return s
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
			return core.Snapshot{}
		}
	}

	assert.True(t, drainOne(early).Stale, "first delivery is the initial state")
	for _, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, drainOne(early).PerAsset["bitcoin"].PriceUSD)
	}

	// late sees: 1 (current at subscribe time), 2, 3 — same order.
	for _, want := range []float64{1, 2, 3} {
		assert.Equal(t, want, drainOne(late).PerAsset["bitcoin"].PriceUSD)
	}
}

func TestCache_SlowSubscriberDropsOldest(t *testing.T) {
	c := NewCache(2)

	sub := c.Subscribe()
	defer sub.Close()

	// Queue: [initial]. Publish three more without reading; capacity 2
	// forces the oldest entries out.
	c.Publish(snapshotAt(1))
	c.Publish(snapshotAt(2))
	c.Publish(snapshotAt(3))

	got := make([]core.Snapshot, 0, 2)
	for len(got) < 2 {
		select {
		case s := <-sub.C:
			got = append(got, s)
		case <-time.After(time.Second):
			t.Fatal("expected two queued snapshots")
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, 2.0, got[0].PerAsset["bitcoin"].PriceUSD, "oldest entries dropped")
	assert.Equal(t, 3.0, got[1].PerAsset["bitcoin"].PriceUSD, "newest entry retained")

	select {
	case s := <-sub.C:
		t.Fatalf("queue should be empty, got %+v", s)
	default:
	}
}

func TestCache_PublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	c := NewCache(1)

	sub := c.Subscribe() // never read
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			c.Publish(snapshotAt(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestCache_UnsubscribeClosesChannel(t *testing.T) {
	c := NewCache(4)

	sub := c.Subscribe()
	assert.Equal(t, 1, c.SubscriberCount())

	sub.Close()
	assert.Equal(t, 0, c.SubscriberCount())

	// Drain the initial snapshot, then expect a closed channel.
	for {
		if _, ok := <-sub.C; !ok {
			return
		}
	}
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := NewCache(4)
	sub := c.Subscribe()
	sub.Close()
	sub.Close() // must not panic
}
