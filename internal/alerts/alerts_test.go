package alerts

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/obolbot/obol/internal/feed"
	"github.com/obolbot/obol/internal/store"
	_ "modernc.org/sqlite"
)

type fakeFeed struct {
	symbols map[string]string
	prices  map[string]float64
}

func (f *fakeFeed) ResolveSymbol(ctx context.Context, symbol string) (string, error) {
	return f.symbols[strings.ToUpper(strings.TrimSpace(symbol))], nil
}

func (f *fakeFeed) BatchPrice(ctx context.Context, ids []string) (map[string]feed.Quote, error) {
	out := make(map[string]feed.Quote)
	for _, id := range ids {
		if p, ok := f.prices[id]; ok {
			out[id] = feed.Quote{ID: id, PriceUSD: p}
		}
	}
	return out, nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeSink) Send(ctx context.Context, userID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func setupEngine(t *testing.T, ff *fakeFeed, sink *fakeSink) (*Engine, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return New(st, ff, sink, time.Hour, nil), st
}

func btcFeed(price float64) *fakeFeed {
	return &fakeFeed{
		symbols: map[string]string{"BTC": "bitcoin"},
		prices:  map[string]float64{"bitcoin": price},
	}
}

func TestThresholdBoundaries(t *testing.T) {
	tests := []struct {
		name  string
		dir   store.Direction
		price float64
		fires bool
	}{
		{"above at boundary", store.DirectionAbove, 100, true},
		{"above beyond", store.DirectionAbove, 150, true},
		{"above short", store.DirectionAbove, 99, false},
		{"below at boundary", store.DirectionBelow, 100, true},
		{"below beyond", store.DirectionBelow, 50, true},
		{"below short", store.DirectionBelow, 101, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			e, st := setupEngine(t, btcFeed(tt.price), sink)

			a := &store.Alert{UserID: 1, Symbol: "BTC", TargetPrice: 100, Direction: tt.dir}
			if err := st.CreateAlert(a); err != nil {
				t.Fatal(err)
			}

			e.RunCycle(context.Background())

			if fired := sink.count() == 1; fired != tt.fires {
				t.Errorf("fired = %v, want %v (price %v, %s 100)", fired, tt.fires, tt.price, tt.dir)
			}
		})
	}
}

func TestAtMostOnceAcrossCycles(t *testing.T) {
	sink := &fakeSink{}
	e, st := setupEngine(t, btcFeed(150), sink)

	a := &store.Alert{UserID: 1, Symbol: "BTC", TargetPrice: 100, Direction: store.DirectionAbove}
	if err := st.CreateAlert(a); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		e.RunCycle(context.Background())
	}

	if sink.count() != 1 {
		t.Errorf("deliveries = %d, want exactly 1 across repeated cycles", sink.count())
	}

	active, err := st.ActiveAlerts()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("triggered alert still active: %+v", active)
	}
}

func TestDeliveryFailureDoesNotRearm(t *testing.T) {
	sink := &fakeSink{err: errors.New("telegram down")}
	e, st := setupEngine(t, btcFeed(150), sink)

	a := &store.Alert{UserID: 1, Symbol: "BTC", TargetPrice: 100, Direction: store.DirectionAbove}
	if err := st.CreateAlert(a); err != nil {
		t.Fatal(err)
	}

	e.RunCycle(context.Background())

	// The claim happened before delivery: the alert is spent even
	// though the notification was lost.
	active, err := st.ActiveAlerts()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Error("alert re-armed after delivery failure")
	}

	// Later cycles with a healthy sink must not resend.
	sink.err = nil
	e.RunCycle(context.Background())
	if sink.count() != 0 {
		t.Errorf("deliveries = %d after failed-delivery claim, want 0", sink.count())
	}
}

func TestUncrossedAlertSurvives(t *testing.T) {
	sink := &fakeSink{}
	e, st := setupEngine(t, btcFeed(90), sink)

	a := &store.Alert{UserID: 1, Symbol: "BTC", TargetPrice: 100, Direction: store.DirectionAbove}
	if err := st.CreateAlert(a); err != nil {
		t.Fatal(err)
	}

	e.RunCycle(context.Background())

	active, err := st.ActiveAlerts()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Errorf("uncrossed alert missing: %+v", active)
	}
}

func TestUnresolvableSymbolSkipped(t *testing.T) {
	sink := &fakeSink{}
	ff := &fakeFeed{symbols: map[string]string{}, prices: map[string]float64{}}
	e, st := setupEngine(t, ff, sink)

	a := &store.Alert{UserID: 1, Symbol: "ZZZZZ", TargetPrice: 1, Direction: store.DirectionAbove}
	if err := st.CreateAlert(a); err != nil {
		t.Fatal(err)
	}

	e.RunCycle(context.Background())

	if sink.count() != 0 {
		t.Error("alert with unknown symbol fired")
	}
	active, _ := st.ActiveAlerts()
	if len(active) != 1 {
		t.Error("alert with unknown symbol consumed")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	sink := &fakeSink{}
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	st, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}

	e := New(st, btcFeed(150), sink, 10*time.Millisecond, nil)
	a := &store.Alert{UserID: 1, Symbol: "BTC", TargetPrice: 100, Direction: store.DirectionAbove}
	if err := st.CreateAlert(a); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	e.Start(ctx)
	e.Start(ctx) // second start is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	e.Stop()
	e.Stop() // second stop is a no-op

	if sink.count() != 1 {
		t.Errorf("deliveries = %d, want 1 from the poll loop", sink.count())
	}
}
