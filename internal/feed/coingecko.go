package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/obolbot/obol/internal/httpkit"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// CoinGecko is a PriceFeed over the CoinGecko v3 API. A demo API key
// is optional; without one the public rate limits apply.
type CoinGecko struct {
	baseURL    string
	apiKey     string
	cache      *SymbolCache
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCoinGecko creates the feed client. An empty baseURL selects the
// public endpoint.
func NewCoinGecko(baseURL, apiKey string, cache *SymbolCache, logger *slog.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if cache == nil {
		cache = NewSymbolCache(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CoinGecko{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		cache:      cache,
		logger:     logger.With("component", "coingecko"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(httpkit.DefaultTimeout)),
	}
}

func (c *CoinGecko) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	u := c.baseURL + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ResolveSymbol implements [PriceFeed]. The cache is consulted first;
// a miss falls through to the search endpoint and the top hit is
// learned for next time.
func (c *CoinGecko) ResolveSymbol(ctx context.Context, symbol string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	if sym == "" {
		return "", nil
	}
	if id, ok := c.cache.Get(sym); ok {
		return id, nil
	}

	var result struct {
		Coins []struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
		} `json:"coins"`
	}
	params := url.Values{"query": {sym}}
	if err := c.get(ctx, "/search", params, &result); err != nil {
		return "", fmt.Errorf("search %s: %w", sym, err)
	}
	if len(result.Coins) == 0 {
		c.logger.Debug("symbol not found", "symbol", sym)
		return "", nil
	}

	id := result.Coins[0].ID
	c.cache.Put(sym, id)
	return id, nil
}

// BatchPrice implements [PriceFeed]. One request covers all IDs.
func (c *CoinGecko) BatchPrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	if len(ids) == 0 {
		return map[string]Quote{}, nil
	}

	params := url.Values{
		"ids":                 {strings.Join(ids, ",")},
		"vs_currencies":       {"usd"},
		"include_24hr_change": {"true"},
	}
	var raw map[string]struct {
		USD          float64 `json:"usd"`
		USD24hChange float64 `json:"usd_24h_change"`
	}
	if err := c.get(ctx, "/simple/price", params, &raw); err != nil {
		return nil, fmt.Errorf("batch price: %w", err)
	}

	quotes := make(map[string]Quote, len(raw))
	for id, v := range raw {
		quotes[id] = Quote{ID: id, PriceUSD: v.USD, Change24h: v.USD24hChange}
	}
	return quotes, nil
}

// Trending implements [Scanner] over the trending-search endpoint,
// which ranks coins by recent search interest.
func (c *CoinGecko) Trending(ctx context.Context) ([]Quote, error) {
	var result struct {
		Coins []struct {
			Item struct {
				ID     string `json:"id"`
				Symbol string `json:"symbol"`
				Data   struct {
					Price     float64 `json:"price"`
					Change24h struct {
						USD float64 `json:"usd"`
					} `json:"price_change_percentage_24h"`
				} `json:"data"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := c.get(ctx, "/search/trending", nil, &result); err != nil {
		return nil, fmt.Errorf("trending: %w", err)
	}

	quotes := make([]Quote, 0, len(result.Coins))
	for _, coin := range result.Coins {
		quotes = append(quotes, Quote{
			ID:        coin.Item.ID,
			Symbol:    strings.ToUpper(coin.Item.Symbol),
			PriceUSD:  coin.Item.Data.Price,
			Change24h: coin.Item.Data.Change24h.USD,
		})
	}
	return quotes, nil
}
