package coincap

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/feedd/internal/core"
)

const baseURL = "https://api.coincap.io/v2"

// CoinCap implements the provider Adapter for the CoinCap REST API.
// CoinCap uses the same canonical asset ids this service tracks
// ("bitcoin", "ethereum"), so no mapping table is needed.
type CoinCap struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// Options configures the adapter.
type Options struct {
	BaseURL string
	APIKey  string
}

// New creates a new CoinCap adapter
func New(opts Options) *CoinCap {
	u := opts.BaseURL
	if u == "" {
		u = baseURL
	}
	return &CoinCap{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: u,
		apiKey:  opts.APIKey,
	}
}

func (c *CoinCap) Name() core.ProviderID {
	return "coincap"
}

// FetchPrices fetches all requested assets with a single /assets call.
func (c *CoinCap) FetchPrices(ctx context.Context, assetIDs []string) ([]core.PriceRecord, error) {
	if len(assetIDs) == 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/assets?ids=%s",
		c.baseURL, url.QueryEscape(strings.Join(assetIDs, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderNetwork, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
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

	var body assetsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, core.WrapError(core.ErrProviderMalformed, err)
	}

	requested := make(map[string]struct{}, len(assetIDs))
	for _, id := range assetIDs {
		requested[id] = struct{}{}
	}

	observed := time.Now()
	if body.Timestamp > 0 {
		observed = time.UnixMilli(body.Timestamp)
	}

	records := make([]core.PriceRecord, 0, len(body.Data))
	for _, a := range body.Data {
		if _, ok := requested[a.ID]; !ok {
			continue
		}
		price, err := strconv.ParseFloat(a.PriceUSD, 64)
		if err != nil || price <= 0 {
			continue
		}
		change, _ := strconv.ParseFloat(a.ChangePercent24Hr, 64)

		records = append(records, core.PriceRecord{
			AssetID:          a.ID,
			PriceUSD:         price,
			Change24hPercent: change,
			ObservedAt:       observed,
		})
	}

	if len(records) == 0 {
		return nil, core.WrapError(core.ErrProviderMalformed,
			fmt.Errorf("no parsable assets in response"))
	}
	return records, nil
}

// CoinCap API response types
type assetsResponse struct {
	Data      []asset `json:"data"`
	Timestamp int64   `json:"timestamp"`
}

type asset struct {
	ID                string `json:"id"`
	PriceUSD          string `json:"priceUsd"`
	ChangePercent24Hr string `json:"changePercent24Hr"`
}
