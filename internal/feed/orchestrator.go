// Package feed drives periodic refresh cycles across providers and
// publishes merged snapshots.
package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/newthinker/feedd/internal/core"
	"github.com/newthinker/feedd/internal/health"
	"github.com/newthinker/feedd/internal/logger"
	"github.com/newthinker/feedd/internal/metrics"
	"github.com/newthinker/feedd/internal/provider"
	"github.com/newthinker/feedd/internal/selector"
	"github.com/newthinker/feedd/internal/storage/archive"
	"go.uber.org/zap"
)

// Config holds refresh loop settings.
type Config struct {
	RefreshInterval   time.Duration
	CycleDeadline     time.Duration
	ProviderTimeout   time.Duration
	RateLimitCooldown time.Duration
	Assets            []string
}

// DefaultConfig returns the standard refresh settings for the given
// asset set.
func DefaultConfig(assets []string) Config {
	return Config{
		RefreshInterval:   30 * time.Second,
		CycleDeadline:     20 * time.Second,
		ProviderTimeout:   8 * time.Second,
		RateLimitCooldown: 5 * time.Minute,
		Assets:            assets,
	}
}

// Dependencies holds the collaborators the orchestrator drives.
type Dependencies struct {
	Adapters []provider.Adapter
	Tracker  *health.Tracker
	Selector *selector.Selector
	Cache    *Cache
	Archive  archive.Storage   // optional
	Metrics  *metrics.Registry // optional
}

// Orchestrator runs refresh cycles: it asks the selector for the
// provider order, tries each provider for the assets still missing,
// feeds outcomes to the health tracker and publishes the merged result
// to the cache. Provider failures are recovered locally; a cycle-wide
// outage only marks the retained snapshot stale.
type Orchestrator struct {
	cfg      Config
	adapters map[core.ProviderID]provider.Adapter
	tracker  *health.Tracker
	selector *selector.Selector
	cache    *Cache
	archive  archive.Storage
	metrics  *metrics.Registry
	logger   *zap.Logger
	now      func() time.Time

	// cycleMu enforces single-flight refresh cycles.
	cycleMu sync.Mutex

	cooldownMu sync.Mutex
	cooldowns  map[core.ProviderID]time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// New creates an orchestrator. Adapter order in deps defines nothing;
// priority comes from the selector.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(deps.Adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter required")
	}
	if deps.Tracker == nil || deps.Selector == nil || deps.Cache == nil {
		return nil, fmt.Errorf("tracker, selector and cache are required")
	}
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("at least one asset required")
	}

	adapters := make(map[core.ProviderID]provider.Adapter, len(deps.Adapters))
	for _, a := range deps.Adapters {
		adapters[a.Name()] = a
	}

	return &Orchestrator{
		cfg:       cfg,
		adapters:  adapters,
		tracker:   deps.Tracker,
		selector:  deps.Selector,
		cache:     deps.Cache,
		archive:   deps.Archive,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       time.Now,
		cooldowns: make(map[core.ProviderID]time.Time),
	}, nil
}

// Start runs refresh cycles until ctx is cancelled or Stop is called.
// An initial cycle runs immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already running")
	}
	o.running = true

	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	o.logger.Info("feed starting",
		zap.Int("assets", len(o.cfg.Assets)),
		zap.Duration("interval", o.cfg.RefreshInterval),
	)

	o.RunCycle(ctx)

	ticker := time.NewTicker(o.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("feed shutting down")
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
			return ctx.Err()
		case <-ticker.C:
			o.RunCycle(ctx)
		}
	}
}

// Stop cancels the refresh loop.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// RunCycle drives one refresh cycle to completion and returns the
// published snapshot. If a cycle is already in flight the call returns
// the current snapshot without starting a second one.
func (o *Orchestrator) RunCycle(ctx context.Context) core.Snapshot {
	if !o.cycleMu.TryLock() {
		return o.cache.Get()
	}
	defer o.cycleMu.Unlock()

	start := o.now()
	cycleCtx, cancel := context.WithTimeout(ctx, o.cfg.CycleDeadline)
	defer cancel()

	missing := make(map[string]struct{}, len(o.cfg.Assets))
	for _, id := range o.cfg.Assets {
		missing[id] = struct{}{}
	}

	fresh := make(map[string]core.PriceRecord)
	var active core.ProviderID

	for _, id := range o.selector.Ordered(o.tracker.Snapshot()) {
		if len(missing) == 0 {
			break
		}
		if cycleCtx.Err() != nil {
			// Deadline hit: publish what was merged so far.
			o.logger.Warn("cycle deadline exceeded",
				zap.Int("assets_missing", len(missing)))
			break
		}
		if o.inCooldown(id) {
			o.logger.Debug("provider in rate-limit cooldown, skipping",
				zap.String("provider", string(id)))
			continue
		}

		adapter, ok := o.adapters[id]
		if !ok {
			continue
		}

		records, err := o.fetchFrom(cycleCtx, adapter, keys(missing))
		if err != nil {
			o.tracker.RecordFailure(id, err)
			o.recordAttempt(id, err)
			if errors.Is(err, core.ErrProviderRateLimited) {
				o.startCooldown(id)
			}
			o.logFailure(id, err)
			continue
		}
		if len(records) == 0 {
			// Provider covers none of the requested assets; neither a
			// success nor a failure for health purposes.
			continue
		}

		o.tracker.RecordSuccess(id)
		o.recordAttempt(id, nil)
		if active == "" {
			active = id
		}
		for _, r := range records {
			if _, want := missing[r.AssetID]; !want || !r.IsValid() {
				continue
			}
			fresh[r.AssetID] = r
			delete(missing, r.AssetID)
		}
	}

	snap := o.buildSnapshot(fresh, active)
	o.cache.Publish(snap)
	o.archiveSnapshot(snap)
	o.publishMetrics(snap, o.now().Sub(start))

	o.logger.Info("refresh cycle complete",
		zap.Int("fresh", len(fresh)),
		zap.Int("missing", len(missing)),
		zap.String("active_provider", string(snap.ActiveProvider)),
		zap.Bool("stale", snap.Stale),
		zap.Int("health_score", snap.HealthScore),
	)
	return snap
}

// fetchFrom calls one adapter with the per-provider timeout.
func (o *Orchestrator) fetchFrom(ctx context.Context, a provider.Adapter, assetIDs []string) ([]core.PriceRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()
	return a.FetchPrices(callCtx, assetIDs)
}

// buildSnapshot merges fresh records with retained previous ones. A
// cycle with zero coverage republishes the prior data marked stale
// rather than erasing it.
func (o *Orchestrator) buildSnapshot(fresh map[string]core.PriceRecord, active core.ProviderID) core.Snapshot {
	prev := o.cache.Get()
	sources := o.tracker.Snapshot()
	score := o.tracker.AggregateScore()

	if len(fresh) == 0 {
		prev.Sources = sources
		prev.HealthScore = score
		prev.Stale = true
		return prev
	}

	perAsset := make(map[string]core.PriceRecord, len(o.cfg.Assets))
	for _, id := range o.cfg.Assets {
		if r, ok := prev.PerAsset[id]; ok {
			perAsset[id] = r
		}
	}
	for id, r := range fresh {
		perAsset[id] = r
	}

	return core.Snapshot{
		PerAsset:       perAsset,
		ActiveProvider: active,
		HealthScore:    score,
		Sources:        sources,
		Stale:          false,
		RefreshedAt:    o.now(),
	}
}

func (o *Orchestrator) inCooldown(id core.ProviderID) bool {
	o.cooldownMu.Lock()
	defer o.cooldownMu.Unlock()
	until, ok := o.cooldowns[id]
	return ok && o.now().Before(until)
}

func (o *Orchestrator) startCooldown(id core.ProviderID) {
	o.cooldownMu.Lock()
	defer o.cooldownMu.Unlock()
	o.cooldowns[id] = o.now().Add(o.cfg.RateLimitCooldown)
}

// logFailure logs malformed responses distinctly: they indicate an
// upstream contract change, not transient unavailability.
func (o *Orchestrator) logFailure(id core.ProviderID, err error) {
	log := logger.ForProvider(o.logger, string(id))
	switch {
	case errors.Is(err, core.ErrProviderMalformed):
		log.Warn("provider response malformed", zap.Error(err))
	case errors.Is(err, core.ErrProviderRateLimited):
		log.Info("provider rate limited, cooling down",
			zap.Duration("cooldown", o.cfg.RateLimitCooldown))
	default:
		log.Debug("provider fetch failed", zap.Error(err))
	}
}

func (o *Orchestrator) recordAttempt(id core.ProviderID, err error) {
	if o.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(err, core.ErrProviderRateLimited):
		outcome = "rate_limited"
	case errors.Is(err, core.ErrProviderMalformed):
		outcome = "malformed"
	case err != nil:
		outcome = "network_error"
	}
	o.metrics.RecordFetchAttempt(string(id), outcome)
}

func (o *Orchestrator) publishMetrics(snap core.Snapshot, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordRefreshCycle(elapsed.Seconds())
	for id, h := range snap.Sources {
		o.metrics.SetProviderHealthy(string(id), h.Healthy)
	}
	o.metrics.SetHealthScore(snap.HealthScore)
	o.metrics.SetSnapshotState(snap.Stale, len(snap.PerAsset))
	o.metrics.SetSubscribers(o.cache.SubscriberCount())
}

// archiveSnapshot writes the published snapshot to cold storage.
// Archival is best-effort: failures are logged, never propagated.
func (o *Orchestrator) archiveSnapshot(snap core.Snapshot) {
	if o.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := archive.WriteSnapshot(ctx, o.archive, snap); err != nil {
			o.logger.Warn("snapshot archive failed", zap.Error(err))
		}
	}()
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
