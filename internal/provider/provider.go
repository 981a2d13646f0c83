// Package provider defines the adapter contract for upstream price
// sources and a factory for the built-in adapters.
package provider

import (
	"context"
	"fmt"

	"github.com/newthinker/feedd/internal/core"
	"github.com/newthinker/feedd/internal/provider/binance"
	"github.com/newthinker/feedd/internal/provider/coincap"
	"github.com/newthinker/feedd/internal/provider/coingecko"
)

// Adapter normalizes one upstream source into canonical price records.
type Adapter interface {
	// Name returns the provider identifier (e.g., "binance", "coincap")
	Name() core.ProviderID

	// FetchPrices fetches current prices for the given canonical asset
	// ids (e.g., "bitcoin"). Partial coverage is success: the result
	// may cover fewer assets than requested. The caller owns the
	// timeout via ctx. Failures are classified as one of the
	// core provider errors; adapters never panic on unexpected
	// response shapes.
	FetchPrices(ctx context.Context, assetIDs []string) ([]core.PriceRecord, error)
}

// Options configures a single adapter instance.
type Options struct {
	BaseURL string // empty means the provider's public endpoint
	APIKey  string
}

// New constructs a built-in adapter by name.
func New(name string, opts Options) (Adapter, error) {
	switch name {
	case "binance":
		return binance.New(binance.Options{BaseURL: opts.BaseURL}), nil
	case "coincap":
		return coincap.New(coincap.Options{BaseURL: opts.BaseURL, APIKey: opts.APIKey}), nil
	case "coingecko":
		return coingecko.New(coingecko.Options{BaseURL: opts.BaseURL, APIKey: opts.APIKey}), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}
