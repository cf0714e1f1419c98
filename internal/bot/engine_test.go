package bot

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/obolbot/obol/internal/convo"
	"github.com/obolbot/obol/internal/feed"
	"github.com/obolbot/obol/internal/intent"
	"github.com/obolbot/obol/internal/llm"
	"github.com/obolbot/obol/internal/store"
	_ "modernc.org/sqlite"
)

// scriptedProvider answers classification and extraction prompts from
// a script and counts every call, so tests can assert that blocked
// requests never reach a provider.
type scriptedProvider struct {
	calls   atomic.Int32
	respond func(prompt string) (string, error)
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Infer(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	s.calls.Add(1)
	return s.respond(prompt)
}

// fakeFeed serves symbol lookups and quotes from fixed maps.
type fakeFeed struct {
	symbols map[string]string
	quotes  map[string]feed.Quote
}

func (f *fakeFeed) ResolveSymbol(ctx context.Context, symbol string) (string, error) {
	return f.symbols[strings.ToUpper(strings.TrimSpace(symbol))], nil
}

func (f *fakeFeed) BatchPrice(ctx context.Context, ids []string) (map[string]feed.Quote, error) {
	out := make(map[string]feed.Quote)
	for _, id := range ids {
		if q, ok := f.quotes[id]; ok {
			out[id] = q
		}
	}
	return out, nil
}

// fakeScanner serves a fixed trending list.
type fakeScanner struct {
	quotes []feed.Quote
}

func (f *fakeScanner) Trending(ctx context.Context) ([]feed.Quote, error) {
	return f.quotes, nil
}

func trendingFeed() *fakeScanner {
	return &fakeScanner{quotes: []feed.Quote{
		{ID: "solana", Symbol: "SOL", PriceUSD: 200, Change24h: 11.2},
		{ID: "sui", Symbol: "SUI", PriceUSD: 3.4, Change24h: 7.9},
	}}
}

func marketFeed() *fakeFeed {
	return &fakeFeed{
		symbols: map[string]string{"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana"},
		quotes: map[string]feed.Quote{
			"bitcoin":  {ID: "bitcoin", PriceUSD: 117000, Change24h: 2.1},
			"ethereum": {ID: "ethereum", PriceUSD: 4100, Change24h: -0.8},
			"solana":   {ID: "solana", PriceUSD: 200, Change24h: 1.5},
		},
	}
}

type testEnv struct {
	engine   *Engine
	store    *store.Store
	provider *scriptedProvider
}

func setupEngine(t *testing.T, respond func(prompt string) (string, error), ceiling int) *testEnv {
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

	var providers []llm.Provider
	provider := &scriptedProvider{respond: respond}
	if respond != nil {
		providers = append(providers, provider)
	}
	pool := llm.NewPool(nil, providers...)

	handlers := NewHandlers(st, marketFeed(), trendingFeed(), pool, 5, nil)
	registry, err := NewDefaultRegistry(handlers)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	engine := NewEngine(
		st,
		NewRateLimiter(st, ceiling),
		convo.NewSessionTracker(st, nil),
		convo.NewResolver(),
		intent.NewClassifier(pool, nil),
		intent.NewExtractor(pool, nil),
		registry,
		nil,
	)
	return &testEnv{engine: engine, store: st, provider: provider}
}

// respondCryptoInfo scripts the two pipeline prompts for a price
// question about BTC.
func respondCryptoInfo(prompt string) (string, error) {
	if strings.Contains(prompt, "routing brain") {
		return "CRYPTO_INFO", nil
	}
	return "symbols:BTC", nil
}

func TestHandleEndToEndCryptoInfo(t *testing.T) {
	env := setupEngine(t, respondCryptoInfo, 20)

	reply := env.engine.Handle(context.Background(), Utterance{
		UserID: 1, Username: "alice", Text: "what's the price of btc?",
	})

	if !strings.Contains(reply, "*BTC*") || !strings.Contains(reply, "117000") {
		t.Errorf("reply = %q, want BTC price line", reply)
	}

	// The turn trail: user turn classified and timed, assistant reply
	// appended, topic set from the first intent.
	dialog, err := env.store.CurrentDialog(1)
	if err != nil {
		t.Fatal(err)
	}
	if dialog == nil {
		t.Fatal("no open dialog after turn")
	}
	if dialog.Topic != "CRYPTO_INFO" {
		t.Errorf("topic = %q, want CRYPTO_INFO", dialog.Topic)
	}

	turns, err := env.store.RecentTurns(dialog.ID, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 2 {
		t.Fatalf("turns = %d, want user + assistant", len(turns))
	}
	var userTurn *store.Turn
	for _, tr := range turns {
		if tr.Role == store.RoleUser {
			userTurn = tr
		}
	}
	if userTurn == nil {
		t.Fatal("user turn missing")
	}
	if userTurn.Intent != "CRYPTO_INFO" || userTurn.Entities != "symbols:BTC" || userTurn.Failed {
		t.Errorf("user turn = %+v", userTurn)
	}
}

func TestHandleRateLimitBeforeClassification(t *testing.T) {
	env := setupEngine(t, respondCryptoInfo, 3)

	// Fill today's window directly.
	d, err := env.store.OpenDialog(2)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := env.store.AppendTurn(&store.Turn{DialogID: d.ID, UserID: 2, Role: store.RoleUser, Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	reply := env.engine.Handle(context.Background(), Utterance{UserID: 2, Text: "price of btc"})

	if reply != Msg("en", "rate_limited") {
		t.Errorf("reply = %q, want rate-limited message", reply)
	}
	if n := env.provider.calls.Load(); n != 0 {
		t.Errorf("provider calls = %d, want 0 for a blocked request", n)
	}
}

func TestHandleSubscriberBypassesLimit(t *testing.T) {
	env := setupEngine(t, respondCryptoInfo, 1)

	if err := env.store.UpsertEntitlement(&store.Entitlement{UserID: 3, Active: true, Tier: store.TierPremium}); err != nil {
		t.Fatal(err)
	}
	d, err := env.store.OpenDialog(3)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := env.store.AppendTurn(&store.Turn{DialogID: d.ID, UserID: 3, Role: store.RoleUser, Text: "x"}); err != nil {
			t.Fatal(err)
		}
	}

	reply := env.engine.Handle(context.Background(), Utterance{UserID: 3, Text: "price of btc"})
	if reply == Msg("en", "rate_limited") {
		t.Error("subscriber was rate limited")
	}
}

func TestHandleUnconfiguredProviders(t *testing.T) {
	env := setupEngine(t, nil, 20)

	reply := env.engine.Handle(context.Background(), Utterance{UserID: 4, Text: "price of btc"})
	if reply != Msg("en", "ai_unconfigured") {
		t.Errorf("reply = %q, want unconfigured message", reply)
	}
}

func TestHandleTransientProviderFailure(t *testing.T) {
	env := setupEngine(t, func(string) (string, error) {
		return "", context.DeadlineExceeded
	}, 20)

	reply := env.engine.Handle(context.Background(), Utterance{UserID: 5, Text: "price of btc"})
	if reply != Msg("en", "ai_transient") {
		t.Errorf("reply = %q, want transient message", reply)
	}
}

func TestHandleExtractedValueMatchingSentinelText(t *testing.T) {
	// A value that happens to equal a sentinel string but arrives under
	// the intent's own key is user data, not an extraction failure, and
	// must reach the handler.
	env := setupEngine(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "routing brain") {
			return "CRYPTO_INFO", nil
		}
		return "symbols:" + intent.SentinelTransient, nil
	}, 20)

	reply := env.engine.Handle(context.Background(), Utterance{UserID: 10, Text: "price of AI_API_HTTP_ERROR"})
	if reply == Msg("en", "ai_transient") {
		t.Fatal("keyed payload misrouted as transient-failure sentinel")
	}
}

func TestHandlePronounResolution(t *testing.T) {
	respond := func(prompt string) (string, error) {
		if strings.Contains(prompt, "routing brain") {
			return "CRYPTO_INFO", nil
		}
		// The follow-up question has no explicit symbol to extract.
		if strings.Contains(prompt, "price of it") {
			return "payload:", nil
		}
		return "symbols:ETH", nil
	}
	env := setupEngine(t, respond, 20)
	ctx := context.Background()

	first := env.engine.Handle(ctx, Utterance{UserID: 6, Text: "price of eth"})
	if !strings.Contains(first, "*ETH*") {
		t.Fatalf("first reply = %q, want ETH line", first)
	}

	second := env.engine.Handle(ctx, Utterance{UserID: 6, Text: "and the price of it now?"})
	if !strings.Contains(second, "*ETH*") || !strings.Contains(second, "4100") {
		t.Errorf("follow-up reply = %q, want ETH resolved from history", second)
	}
}

func TestHandleUnsupportedIntent(t *testing.T) {
	env := setupEngine(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "routing brain") {
			return "bogus nonsense", nil
		}
		return "payload:", nil
	}, 20)

	reply := env.engine.Handle(context.Background(), Utterance{UserID: 7, Text: "fly me to the moon"})
	if reply != Msg("en", "didnt_understand") {
		t.Errorf("reply = %q, want catch-all message", reply)
	}
}

func TestHandleTopicSetOnce(t *testing.T) {
	var tag atomic.Value
	tag.Store("CRYPTO_INFO")
	env := setupEngine(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "routing brain") {
			return tag.Load().(string), nil
		}
		return "payload:", nil
	}, 20)
	ctx := context.Background()

	env.engine.Handle(ctx, Utterance{UserID: 8, Text: "price of btc"})
	tag.Store("BOT_HELP")
	env.engine.Handle(ctx, Utterance{UserID: 8, Text: "what can you do?"})

	d, err := env.store.CurrentDialog(8)
	if err != nil {
		t.Fatal(err)
	}
	if d.Topic != "CRYPTO_INFO" {
		t.Errorf("topic = %q, want first intent to stick", d.Topic)
	}
}

func TestHandleHintAfterTenMessages(t *testing.T) {
	env := setupEngine(t, func(prompt string) (string, error) {
		if strings.Contains(prompt, "routing brain") {
			return "BOT_HELP", nil
		}
		return "payload:", nil
	}, 100)
	ctx := context.Background()

	now := time.Now()
	var hinted int
	for i := 0; i < 10; i++ {
		reply := env.engine.Handle(ctx, Utterance{UserID: 9, Text: "help", At: now})
		if strings.Contains(reply, Msg("en", "hint")) {
			hinted++
		}
	}
	if hinted != 1 {
		t.Errorf("hints in 10 messages = %d, want exactly 1", hinted)
	}
}
