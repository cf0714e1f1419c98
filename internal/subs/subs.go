// Package subs reconciles stored entitlements against the billing
// oracle on a daily cadence. Transitions drive channel membership:
// lapsing revokes access, (re)activation restores it. Notifications go
// out only on a transition, never on steady state.
package subs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obolbot/obol/internal/billing"
	"github.com/obolbot/obol/internal/bot"
	"github.com/obolbot/obol/internal/notify"
	"github.com/obolbot/obol/internal/store"
)

const (
	// DefaultCheckInterval is the reconciliation cadence.
	DefaultCheckInterval = 24 * time.Hour

	// maxConcurrent bounds the per-user fan-out so a large subscriber
	// base cannot stampede the billing service.
	maxConcurrent = 4
)

// Monitor is the background subscription reconciler.
type Monitor struct {
	store    *store.Store
	oracle   billing.Oracle
	sink     notify.Sink
	members  notify.Memberships
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates the monitor. A non-positive interval selects the daily
// default.
func New(st *store.Store, oracle billing.Oracle, sink notify.Sink, members notify.Memberships, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		store:    st,
		oracle:   oracle,
		sink:     sink,
		members:  members,
		interval: interval,
		logger:   logger.With("component", "subs"),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the reconciliation loop. Calling Start on a running
// monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.logger.Info("subscription monitor started", "interval", m.interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.RunCycle(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight cycle.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("subscription monitor stopped")
}

// RunCycle reconciles every stored entitlement once, with bounded
// concurrency. Per-user failures are logged and never abort the batch.
func (m *Monitor) RunCycle(ctx context.Context) {
	ents, err := m.store.Entitlements()
	if err != nil {
		m.logger.Error("load entitlements failed", "error", err)
		return
	}
	if len(ents) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)
	for _, e := range ents {
		e := e
		g.Go(func() error {
			m.reconcile(gctx, e)
			return nil
		})
	}
	g.Wait()

	m.logger.Debug("subscription cycle finished", "entitlements", len(ents))
}

func (m *Monitor) reconcile(ctx context.Context, e *store.Entitlement) {
	status, err := m.oracle.Status(ctx, e.UserID)
	if err != nil {
		m.logger.Warn("billing status failed", "user", e.UserID, "error", err)
		return
	}

	switch {
	case status.Active && !e.Active:
		m.activate(ctx, e, status)
	case !status.Active && e.Active:
		m.deactivate(ctx, e)
	case status.Active:
		// Steady state: refresh tier and renewal silently.
		e.Tier = tierOf(status)
		e.NextRenewal = status.NextRenewal
		if err := m.store.UpsertEntitlement(e); err != nil {
			m.logger.Warn("refresh entitlement failed", "user", e.UserID, "error", err)
		}
	}
}

func (m *Monitor) activate(ctx context.Context, e *store.Entitlement, status billing.Status) {
	e.Active = true
	e.Tier = tierOf(status)
	e.NextRenewal = status.NextRenewal
	if err := m.store.UpsertEntitlement(e); err != nil {
		m.logger.Error("activate entitlement failed", "user", e.UserID, "error", err)
		return
	}

	if err := m.members.Grant(ctx, e.UserID); err != nil {
		m.logger.Warn("membership grant failed", "user", e.UserID, "error", err)
	}
	m.notifyTransition(ctx, e.UserID, "sub_granted")
	m.logger.Info("subscription activated", "user", e.UserID, "tier", e.Tier)
}

func (m *Monitor) deactivate(ctx context.Context, e *store.Entitlement) {
	e.Active = false
	if err := m.store.UpsertEntitlement(e); err != nil {
		m.logger.Error("deactivate entitlement failed", "user", e.UserID, "error", err)
		return
	}

	if err := m.members.Revoke(ctx, e.UserID); err != nil {
		m.logger.Warn("membership revoke failed", "user", e.UserID, "error", err)
	}
	m.notifyTransition(ctx, e.UserID, "sub_revoked")
	m.logger.Info("subscription lapsed", "user", e.UserID)
}

func (m *Monitor) notifyTransition(ctx context.Context, userID int64, key string) {
	lang := "en"
	if u, err := m.store.GetOrCreateUser(userID, "", ""); err == nil {
		lang = u.Language
	}
	if err := m.sink.Send(ctx, userID, bot.Msg(lang, key)); err != nil {
		m.logger.Warn("transition notice failed", "user", userID, "error", err)
	}
}

func tierOf(status billing.Status) store.Tier {
	if status.Tier == string(store.TierPremium) {
		return store.TierPremium
	}
	return store.TierBasic
}
