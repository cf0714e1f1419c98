// Package billing answers whether a user's subscription is currently
// paid for. The bot never processes payments itself; it asks the
// billing service and reconciles stored entitlements against the
// answer.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/obolbot/obol/internal/httpkit"
)

// Status is the oracle's view of one subscription.
type Status struct {
	Active      bool
	Tier        string
	NextRenewal time.Time
}

// Oracle reports the authoritative subscription state for a user.
type Oracle interface {
	Status(ctx context.Context, userID int64) (Status, error)
}

// HTTPOracle queries a billing service over HTTP.
type HTTPOracle struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPOracle creates the billing client.
func NewHTTPOracle(baseURL, token string, logger *slog.Logger) *HTTPOracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPOracle{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger.With("component", "billing"),
		httpClient: httpkit.NewClient(httpkit.WithTimeout(httpkit.DefaultTimeout)),
	}
}

// Status implements [Oracle].
func (o *HTTPOracle) Status(ctx context.Context, userID int64) (Status, error) {
	endpoint := fmt.Sprintf("%s/v1/subscriptions/%d", o.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Status{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.token != "" {
		req.Header.Set("Authorization", "Bearer "+o.token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("billing request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	// An unknown user simply has no subscription.
	if resp.StatusCode == http.StatusNotFound {
		return Status{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("billing API error %d", resp.StatusCode)
	}

	var out struct {
		Active      bool   `json:"active"`
		Tier        string `json:"tier"`
		NextRenewal string `json:"next_renewal"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Status{}, fmt.Errorf("decode billing response: %w", err)
	}

	st := Status{Active: out.Active, Tier: out.Tier}
	if out.NextRenewal != "" {
		st.NextRenewal, _ = time.Parse(time.RFC3339, out.NextRenewal)
	}
	return st, nil
}
