package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/newthinker/feedd/internal/core"
)

const baseURL = "https://api.coingecko.com/api/v3"

// CoinGecko implements the provider Adapter for the CoinGecko
// /simple/price endpoint. Canonical asset ids are CoinGecko coin ids,
// so requests pass through unmapped.
type CoinGecko struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// Options configures the adapter.
type Options struct {
	BaseURL string
	APIKey  string
}

// New creates a new CoinGecko adapter
func New(opts Options) *CoinGecko {
	u := opts.BaseURL
	if u == "" {
		u = baseURL
	}
	return &CoinGecko{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: u,
		apiKey:  opts.APIKey,
	}
}

func (c *CoinGecko) Name() core.ProviderID {
	return "coingecko"
}

// FetchPrices fetches usd prices plus 24h change for all requested ids
// in one call.
func (c *CoinGecko) FetchPrices(ctx context.Context, assetIDs []string) ([]core.PriceRecord, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd&include_24hr_change=true&include_last_updated_at=true",
		c.baseURL, url.QueryEscape(strings.Join(assetIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, core.WrapError(core.ErrProviderRateLimited,
			fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.WrapError(core.ErrProviderNetwork,
			fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var body map[string]coinPrice
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, core.WrapError(core.ErrProviderMalformed, err)
	}

	now := time.Now()
	records := make([]core.PriceRecord, 0, len(assetIDs))
	for _, id := range assetIDs {
		p, ok := body[id]
		if !ok || p.USD <= 0 {
			continue
		}

		at := now
		if p.LastUpdatedAt > 0 {
			at = time.Unix(p.LastUpdatedAt, 0)
		}
		records = append(records, core.PriceRecord{
			AssetID:          id,
			PriceUSD:         p.USD,
			Change24hPercent: p.USD24hChange,
			ObservedAt:       at,
		})
	}

	if len(records) == 0 {
		return nil, core.WrapError(core.ErrProviderMalformed,
			fmt.Errorf("no parsable coins in response"))
	}
	return records, nil
}

// CoinGecko API response types
type coinPrice struct {
	USD           float64 `json:"usd"`
	USD24hChange  float64 `json:"usd_24h_change"`
	LastUpdatedAt int64   `json:"last_updated_at"`
}
