package core

import "time"

// ProviderID identifies one upstream price source (e.g., "binance").
type ProviderID string

// PriceRecord is a normalized price observation for a single asset.
// Records are immutable; each refresh cycle produces a fresh set.
type PriceRecord struct {
	AssetID          string    `json:"asset_id"`
	PriceUSD         float64   `json:"price_usd"`
	Change24hPercent float64   `json:"change_24h_percent"`
	ObservedAt       time.Time `json:"observed_at"`
}

// IsValid checks if the record has required fields
func (r PriceRecord) IsValid() bool {
	return r.AssetID != "" && r.PriceUSD > 0
}

// ProviderHealth is the rolling health state of one provider.
type ProviderHealth struct {
	ProviderID        ProviderID `json:"provider_id"`
	Healthy           bool       `json:"healthy"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	LastCheckedAt     time.Time  `json:"last_checked_at"`
	LastError         string     `json:"last_error,omitempty"`
}

// Snapshot is the merged, servable view of all tracked assets plus
// source health. Replaced wholesale at the end of each refresh cycle;
// treated as immutable once published.
type Snapshot struct {
	PerAsset       map[string]PriceRecord        `json:"per_asset"`
	ActiveProvider ProviderID                    `json:"active_provider"`
	HealthScore    int                           `json:"health_score"`
	Sources        map[ProviderID]ProviderHealth `json:"sources"`
	Stale          bool                          `json:"stale"`
	RefreshedAt    time.Time                     `json:"refreshed_at"`
}

// EmptySnapshot returns the well-defined initial state served before
// the first refresh cycle completes.
func EmptySnapshot() Snapshot {
	return Snapshot{
		PerAsset: map[string]PriceRecord{},
		Sources:  map[ProviderID]ProviderHealth{},
		Stale:    true,
	}
}

// Clone returns a deep copy so callers never hold a mutable handle
// into published state.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.PerAsset = make(map[string]PriceRecord, len(s.PerAsset))
	for k, v := range s.PerAsset {
		out.PerAsset[k] = v
	}
	out.Sources = make(map[ProviderID]ProviderHealth, len(s.Sources))
	for k, v := range s.Sources {
		out.Sources[k] = v
	}
	return out
}
