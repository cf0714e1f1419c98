// Package feed provides market price data. The concrete implementation
// speaks the CoinGecko API; callers depend on the PriceFeed interface
// so tests can substitute a fake.
package feed

import "context"

// Quote is one coin's current market snapshot.
type Quote struct {
	ID        string
	Symbol    string
	PriceUSD  float64
	Change24h float64
}

// PriceFeed resolves human symbols to feed identifiers and fetches
// prices for many coins in one call.
type PriceFeed interface {
	// ResolveSymbol maps a ticker symbol (BTC) to the feed's coin ID
	// (bitcoin). An unknown symbol returns empty with nil error.
	ResolveSymbol(ctx context.Context, symbol string) (string, error)

	// BatchPrice fetches quotes for the given coin IDs in one request.
	// IDs the feed does not know are absent from the result.
	BatchPrice(ctx context.Context, ids []string) (map[string]Quote, error)
}

// Scanner surfaces coins the market is currently moving into, for the
// early-opportunity scan.
type Scanner interface {
	// Trending returns the feed's current trending coins with quotes,
	// most searched first.
	Trending(ctx context.Context) ([]Quote, error)
}
