package binance

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

const baseURL = "https://api.binance.com"

// Canonical asset id to Binance spot symbol mapping. Assets without a
// mapping are simply not requested; the orchestrator forwards them to
// the next provider.
var assetToSymbol = map[string]string{
	"bitcoin":      "BTCUSDT",
	"ethereum":     "ETHUSDT",
	"binancecoin":  "BNBUSDT",
	"solana":       "SOLUSDT",
	"ripple":       "XRPUSDT",
	"dogecoin":     "DOGEUSDT",
	"cardano":      "ADAUSDT",
	"avalanche-2":  "AVAXUSDT",
	"polkadot":     "DOTUSDT",
	"chainlink":    "LINKUSDT",
	"uniswap":      "UNIUSDT",
	"cosmos":       "ATOMUSDT",
	"litecoin":     "LTCUSDT",
	"stellar":      "XLMUSDT",
	"near":         "NEARUSDT",
	"aave":         "AAVEUSDT",
	"arbitrum":     "ARBUSDT",
	"optimism":     "OPUSDT",
	"the-sandbox":  "SANDUSDT",
	"decentraland": "MANAUSDT",
}

// Binance implements the provider Adapter for the Binance spot API
type Binance struct {
	client  *http.Client
	baseURL string
}

// Options configures the adapter.
type Options struct {
	BaseURL string
}

// New creates a new Binance adapter
func New(opts Options) *Binance {
	u := opts.BaseURL
	if u == "" {
		u = baseURL
	}
	return &Binance{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: u,
	}
}

func (b *Binance) Name() core.ProviderID {
	return "binance"
}

// FetchPrices fetches 24hr tickers for the mapped assets in one batch
// request and normalizes them to canonical records.
func (b *Binance) FetchPrices(ctx context.Context, assetIDs []string) ([]core.PriceRecord, error) {
	symbols := make([]string, 0, len(assetIDs))
	symbolToAsset := make(map[string]string, len(assetIDs))
	for _, id := range assetIDs {
		sym, ok := assetToSymbol[id]
		if !ok {
			continue
		}
		symbols = append(symbols, strconv.Quote(sym))
		symbolToAsset[sym] = id
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	reqURL := fmt.Sprintf("%s/api/v3/ticker/24hr?symbols=%s",
		b.baseURL, url.QueryEscape("["+strings.Join(symbols, ",")+"]"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
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

	var tickers []ticker24hr
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, core.WrapError(core.ErrProviderMalformed, err)
	}

	observed := time.Now()
	records := make([]core.PriceRecord, 0, len(tickers))
	for _, tk := range tickers {
		assetID, ok := symbolToAsset[tk.Symbol]
		if !ok {
			continue
		}

		price, err := strconv.ParseFloat(tk.LastPrice, 64)
		if err != nil || price <= 0 {
			// Skip the asset rather than fail the batch.
			continue
		}
		change, _ := strconv.ParseFloat(tk.PriceChangePercent, 64)

		at := observed
		if tk.CloseTime > 0 {
			at = time.UnixMilli(tk.CloseTime)
		}
		records = append(records, core.PriceRecord{
			AssetID:          assetID,
			PriceUSD:         price,
			Change24hPercent: change,
			ObservedAt:       at,
		})
	}

	if len(records) == 0 {
		return nil, core.WrapError(core.ErrProviderMalformed,
			fmt.Errorf("no parsable tickers in response"))
	}
	return records, nil
}

// Binance API response types
type ticker24hr struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	CloseTime          int64  `json:"closeTime"`
}
