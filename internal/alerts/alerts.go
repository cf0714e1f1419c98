// Package alerts polls market prices against user-defined thresholds
// and delivers at-most-once notifications. The ACTIVE -> TRIGGERED
// transition is claimed in the store with a compare-and-swap before
// anything is sent, so two concurrent pollers can never both deliver
// the same alert.
package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/obolbot/obol/internal/bot"
	"github.com/obolbot/obol/internal/feed"
	"github.com/obolbot/obol/internal/notify"
	"github.com/obolbot/obol/internal/store"
)

// DefaultPollInterval is the fixed cadence between evaluation cycles.
const DefaultPollInterval = 60 * time.Second

// Engine is the background alert poller.
type Engine struct {
	store    *store.Store
	feed     feed.PriceFeed
	sink     notify.Sink
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates the alert engine. A non-positive interval selects the
// default poll cadence.
func New(st *store.Store, pf feed.PriceFeed, sink notify.Sink, interval time.Duration, logger *slog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    st,
		feed:     pf,
		sink:     sink,
		interval: interval,
		logger:   logger.With("component", "alerts"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the poll loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("alert engine started", "interval", e.interval)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.RunCycle(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and waits for an in-flight cycle to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Info("alert engine stopped")
}

// RunCycle evaluates every active alert once: load, resolve the
// distinct symbol set, fetch all prices in one batch, then claim and
// deliver each crossed threshold.
func (e *Engine) RunCycle(ctx context.Context) {
	alerts, err := e.store.ActiveAlerts()
	if err != nil {
		e.logger.Error("load alerts failed", "error", err)
		return
	}
	if len(alerts) == 0 {
		return
	}

	prices, err := e.fetchPrices(ctx, alerts)
	if err != nil {
		e.logger.Error("price fetch failed", "error", err)
		return
	}

	var fired int
	for _, a := range alerts {
		price, ok := prices[a.Symbol]
		if !ok {
			continue
		}
		if !crossed(a, price) {
			continue
		}
		if e.fire(ctx, a, price) {
			fired++
		}
	}

	e.logger.Debug("alert cycle finished", "alerts", len(alerts), "fired", fired)
}

// fetchPrices resolves the distinct symbols of the alert set and
// returns current prices keyed by symbol.
func (e *Engine) fetchPrices(ctx context.Context, alerts []*store.Alert) (map[string]float64, error) {
	idBySymbol := make(map[string]string)
	for _, a := range alerts {
		if _, seen := idBySymbol[a.Symbol]; seen {
			continue
		}
		id, err := e.feed.ResolveSymbol(ctx, a.Symbol)
		if err != nil {
			return nil, err
		}
		if id == "" {
			e.logger.Warn("alert symbol unresolvable", "symbol", a.Symbol)
			continue
		}
		idBySymbol[a.Symbol] = id
	}
	if len(idBySymbol) == 0 {
		return map[string]float64{}, nil
	}

	ids := make([]string, 0, len(idBySymbol))
	for _, id := range idBySymbol {
		ids = append(ids, id)
	}
	quotes, err := e.feed.BatchPrice(ctx, ids)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(idBySymbol))
	for sym, id := range idBySymbol {
		if q, ok := quotes[id]; ok {
			prices[sym] = q.PriceUSD
		}
	}
	return prices, nil
}

// crossed reports whether the price satisfies the alert's threshold.
// Both directions include the boundary itself.
func crossed(a *store.Alert, price float64) bool {
	switch a.Direction {
	case store.DirectionBelow:
		return price <= a.TargetPrice
	default:
		return price >= a.TargetPrice
	}
}

// fire claims the trigger transition and delivers the notification.
// Losing the claim means another poller (or a concurrent delete) got
// there first; delivery failure after a won claim is logged and the
// alert stays triggered rather than re-arming.
func (e *Engine) fire(ctx context.Context, a *store.Alert, price float64) bool {
	won, err := e.store.TriggerAlert(a.ID)
	if err != nil {
		e.logger.Error("trigger claim failed", "alert", a.ID, "error", err)
		return false
	}
	if !won {
		return false
	}

	lang := "en"
	if u, err := e.store.GetOrCreateUser(a.UserID, "", ""); err == nil {
		lang = u.Language
	}

	text := bot.Msg(lang, "alert_fired", a.Symbol, a.TargetPrice, price)
	if err := e.sink.Send(ctx, a.UserID, text); err != nil {
		e.logger.Error("delivery failed", "alert", a.ID, "user", a.UserID, "error", err)
		return true
	}

	e.logger.Info("alert delivered",
		"alert", a.ID,
		"user", a.UserID,
		"symbol", a.Symbol,
		"target", a.TargetPrice,
		"price", price,
	)
	return true
}
