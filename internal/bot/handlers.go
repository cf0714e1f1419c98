package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/obolbot/obol/internal/feed"
	"github.com/obolbot/obol/internal/llm"
	"github.com/obolbot/obol/internal/store"
)

const (
	chatTimeout   = 30 * time.Second
	chatMaxTokens = 512
	chatHistory   = 8
)

// Handlers owns the per-intent reply logic. Every handler shares the
// store, the price feed and the provider pool.
type Handlers struct {
	store     *store.Store
	feed      feed.PriceFeed
	scanner   feed.Scanner
	pool      *llm.Pool
	logger    *slog.Logger
	freeSlots int
}

// NewHandlers wires the handler set. scanner may be nil when the feed
// has no trending surface; the pre-market scan then reports quiet.
func NewHandlers(st *store.Store, pf feed.PriceFeed, scanner feed.Scanner, pool *llm.Pool, freeSlots int, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if freeSlots <= 0 {
		freeSlots = 5
	}
	return &Handlers{store: st, feed: pf, scanner: scanner, pool: pool, freeSlots: freeSlots, logger: logger.With("component", "handlers")}
}

// symPair is one resolved symbol in request order.
type symPair struct {
	symbol string
	id     string
}

// resolveMany maps symbols to feed IDs, splitting resolved pairs from
// unknowns. Symbols the feed cannot place are reported, not fatal.
// Request order is preserved.
func (h *Handlers) resolveMany(ctx context.Context, symbols []string) (pairs []symPair, missing []string, err error) {
	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if sym == "" {
			continue
		}
		id, rerr := h.feed.ResolveSymbol(ctx, sym)
		if rerr != nil {
			return nil, nil, rerr
		}
		if id == "" {
			missing = append(missing, sym)
			continue
		}
		pairs = append(pairs, symPair{symbol: sym, id: id})
	}
	return pairs, missing, nil
}

// CryptoInfo prices every symbol in the payload with one batch call.
func (h *Handlers) CryptoInfo(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	raw := req.Payload.Value
	if strings.TrimSpace(raw) == "" {
		return Msg(lang, "didnt_understand"), nil
	}

	pairs, missing, err := h.resolveMany(ctx, strings.Split(raw, ","))
	if err != nil {
		return "", fmt.Errorf("resolve symbols: %w", err)
	}
	if len(pairs) == 0 {
		return Msg(lang, "crypto_not_found", raw), nil
	}

	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		ids = append(ids, p.id)
	}
	quotes, err := h.feed.BatchPrice(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("batch price: %w", err)
	}

	var b strings.Builder
	for _, p := range pairs {
		q, ok := quotes[p.id]
		if !ok {
			missing = append(missing, p.symbol)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(Msg(lang, "crypto_line", p.symbol, q.PriceUSD, q.Change24h))
	}
	if len(missing) > 0 {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(Msg(lang, "crypto_missing", strings.Join(missing, ", ")))
	}
	if b.Len() == 0 {
		return Msg(lang, "crypto_not_found", raw), nil
	}
	return b.String(), nil
}

// parseAlertData splits SYMBOL:PRICE[:DIRECTION]. Direction defaults
// to above; the price keeps whatever the extractor captured, minus
// grouping noise.
func parseAlertData(raw string) (symbol string, price float64, dir store.Direction, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 {
		return "", 0, "", false
	}
	symbol = strings.ToUpper(strings.TrimSpace(parts[0]))
	cleaned := strings.NewReplacer(" ", "", ",", "", "$", "", "€", "").Replace(parts[1])
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || symbol == "" || price <= 0 {
		return "", 0, "", false
	}

	dir = store.DirectionAbove
	if len(parts) >= 3 && strings.EqualFold(strings.TrimSpace(parts[2]), string(store.DirectionBelow)) {
		dir = store.DirectionBelow
	}
	return symbol, price, dir, true
}

// SetupAlert validates and persists a new price alert.
func (h *Handlers) SetupAlert(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	symbol, price, dir, ok := parseAlertData(req.Payload.Value)
	if !ok {
		return Msg(lang, "alert_invalid"), nil
	}

	id, err := h.feed.ResolveSymbol(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", symbol, err)
	}
	if id == "" {
		return Msg(lang, "alert_unknown_coin", symbol), nil
	}

	a := &store.Alert{UserID: req.User.ID, Symbol: symbol, TargetPrice: price, Direction: dir}
	if err := h.store.CreateAlert(a); err != nil {
		return "", fmt.Errorf("create alert: %w", err)
	}
	return Msg(lang, "alert_created", symbol, dir, price), nil
}

// ManageAlerts lists active alerts or deletes them by symbol.
func (h *Handlers) ManageAlerts(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	action := strings.TrimSpace(req.Payload.Value)

	if sym, found := strings.CutPrefix(action, "delete:"); found {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		n, err := h.store.DeleteAlertsBySymbol(req.User.ID, sym)
		if err != nil {
			return "", fmt.Errorf("delete alerts: %w", err)
		}
		if n == 0 {
			return Msg(lang, "alerts_none_sym", sym), nil
		}
		return Msg(lang, "alerts_deleted", n, sym), nil
	}

	alerts, err := h.store.UserAlerts(req.User.ID)
	if err != nil {
		return "", fmt.Errorf("list alerts: %w", err)
	}
	if len(alerts) == 0 {
		return Msg(lang, "alerts_none"), nil
	}

	var b strings.Builder
	b.WriteString(Msg(lang, "alerts_header"))
	for _, a := range alerts {
		b.WriteByte('\n')
		b.WriteString(Msg(lang, "alerts_line", a.Symbol, a.Direction, a.TargetPrice))
	}
	return b.String(), nil
}

// TrackCoin adds a coin to the portfolio, enforcing the free-tier slot
// ceiling for users without an entitlement.
func (h *Handlers) TrackCoin(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	sym := strings.ToUpper(strings.TrimSpace(req.Payload.Value))
	if sym == "" {
		return Msg(lang, "didnt_understand"), nil
	}

	id, err := h.feed.ResolveSymbol(ctx, sym)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", sym, err)
	}
	if id == "" {
		return Msg(lang, "track_unknown", sym), nil
	}

	subscribed, err := h.store.HasActiveEntitlement(req.User.ID)
	if err != nil {
		return "", fmt.Errorf("check entitlement: %w", err)
	}
	if !subscribed {
		n, err := h.store.CountPortfolio(req.User.ID)
		if err != nil {
			return "", fmt.Errorf("count portfolio: %w", err)
		}
		if n >= h.freeSlots {
			return Msg(lang, "track_limit", h.freeSlots), nil
		}
	}

	if err := h.store.AddPortfolio(req.User.ID, sym); err != nil {
		return "", fmt.Errorf("add portfolio: %w", err)
	}
	return Msg(lang, "track_added", sym), nil
}

// UntrackCoin removes a coin from the portfolio.
func (h *Handlers) UntrackCoin(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	sym := strings.ToUpper(strings.TrimSpace(req.Payload.Value))
	if sym == "" {
		return Msg(lang, "didnt_understand"), nil
	}

	removed, err := h.store.RemovePortfolio(req.User.ID, sym)
	if err != nil {
		return "", fmt.Errorf("remove portfolio: %w", err)
	}
	if !removed {
		return Msg(lang, "track_not_tracked", sym), nil
	}
	return Msg(lang, "track_removed", sym), nil
}

// PortfolioSummary prices every tracked coin in one batch call.
func (h *Handlers) PortfolioSummary(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	entries, err := h.store.Portfolio(req.User.ID)
	if err != nil {
		return "", fmt.Errorf("load portfolio: %w", err)
	}
	if len(entries) == 0 {
		return Msg(lang, "portfolio_empty"), nil
	}

	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}
	pairs, missing, err := h.resolveMany(ctx, symbols)
	if err != nil {
		return "", fmt.Errorf("resolve portfolio: %w", err)
	}

	quotes := map[string]feed.Quote{}
	if len(pairs) > 0 {
		ids := make([]string, 0, len(pairs))
		for _, p := range pairs {
			ids = append(ids, p.id)
		}
		quotes, err = h.feed.BatchPrice(ctx, ids)
		if err != nil {
			return "", fmt.Errorf("price portfolio: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString(Msg(lang, "portfolio_header"))
	for _, p := range pairs {
		q, ok := quotes[p.id]
		if !ok {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(Msg(lang, "crypto_line", p.symbol, q.PriceUSD, q.Change24h))
	}
	if len(missing) > 0 {
		b.WriteString("\n\n")
		b.WriteString(Msg(lang, "crypto_missing", strings.Join(missing, ", ")))
	}
	return b.String(), nil
}

// GeneralChat answers free-form messages with a history-aware prompt,
// racing both providers for latency.
func (h *Handlers) GeneralChat(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()

	var history []*store.Turn
	if req.Dialog != nil {
		var err error
		history, err = h.store.RecentTurns(req.Dialog.ID, "", chatHistory)
		if err != nil {
			return "", fmt.Errorf("load history: %w", err)
		}
	}

	reply, err := h.pool.Race(ctx, chatPrompt(lang, req.Text, history), llm.Options{
		MaxTokens:   chatMaxTokens,
		Temperature: 0.7,
		Timeout:     chatTimeout,
	})
	if err != nil {
		h.logger.Warn("chat degraded to canned reply", "error", err)
		return Msg(lang, "chat_fallback"), nil
	}
	return reply, nil
}

func chatPrompt(lang, text string, history []*store.Turn) string {
	var b strings.Builder
	b.WriteString("You are a friendly, knowledgeable crypto-market assistant. ")
	b.WriteString("Answer briefly and concretely. Emphasize ticker symbols like *BTC*.\n")
	if lang == "ru" {
		b.WriteString("Answer in Russian.\n")
	}
	if len(history) > 0 {
		b.WriteString("\nRecent conversation, oldest first:\n")
		for i := len(history) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "%s: %s\n", history[i].Role, history[i].Text)
		}
	}
	fmt.Fprintf(&b, "\nuser: %s\nassistant:", text)
	return b.String()
}

// TokenAnalysis reports price and 24h movement for one token.
func (h *Handlers) TokenAnalysis(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	topic := strings.TrimSpace(req.Payload.Value)
	if topic == "" {
		topic = req.Text
	}

	id, err := h.feed.ResolveSymbol(ctx, topic)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", topic, err)
	}
	if id == "" {
		return Msg(lang, "crypto_not_found", topic), nil
	}

	quotes, err := h.feed.BatchPrice(ctx, []string{id})
	if err != nil {
		return "", fmt.Errorf("price %s: %w", id, err)
	}
	q, ok := quotes[id]
	if !ok {
		return Msg(lang, "crypto_not_found", topic), nil
	}
	return Msg(lang, "analysis_line", strings.ToUpper(topic), q.PriceUSD, q.Change24h), nil
}

// EduLesson explains a crypto concept, degrading to a canned reply
// when the providers are down.
func (h *Handlers) EduLesson(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	topic := strings.TrimSpace(req.Payload.Value)
	if topic == "" {
		topic = req.Text
	}

	var b strings.Builder
	b.WriteString("You are a crypto educator. Explain the following concept in a short, plain paragraph a beginner can follow.\n")
	if lang == "ru" {
		b.WriteString("Answer in Russian.\n")
	}
	fmt.Fprintf(&b, "Concept: %s\n", topic)

	reply, err := h.pool.Fallback(ctx, b.String(), llm.Options{
		MaxTokens:   chatMaxTokens,
		Temperature: 0.3,
		Timeout:     chatTimeout,
	})
	if err != nil {
		return Msg(lang, "edu_fallback", topic), nil
	}
	return reply, nil
}

// WhereToBuy names venues listing the token.
func (h *Handlers) WhereToBuy(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	sym := strings.ToUpper(strings.TrimSpace(req.Payload.Value))
	if sym == "" {
		return Msg(lang, "didnt_understand"), nil
	}

	id, err := h.feed.ResolveSymbol(ctx, sym)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", sym, err)
	}
	if id == "" {
		return Msg(lang, "track_unknown", sym), nil
	}
	return Msg(lang, "where_to_buy", sym), nil
}

// PremarketScan lists the feed's trending coins for subscribers.
func (h *Handlers) PremarketScan(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	subscribed, err := h.store.HasActiveEntitlement(req.User.ID)
	if err != nil {
		return "", fmt.Errorf("check entitlement: %w", err)
	}
	if !subscribed {
		return Msg(lang, "premarket_gated"), nil
	}
	if h.scanner == nil {
		return Msg(lang, "premarket_empty"), nil
	}

	quotes, err := h.scanner.Trending(ctx)
	if err != nil {
		return "", fmt.Errorf("trending scan: %w", err)
	}
	if len(quotes) == 0 {
		return Msg(lang, "premarket_empty"), nil
	}

	var b strings.Builder
	b.WriteString(Msg(lang, "premarket_header"))
	for _, q := range quotes {
		b.WriteByte('\n')
		b.WriteString(Msg(lang, "crypto_line", q.Symbol, q.PriceUSD, q.Change24h))
	}
	return b.String(), nil
}

// ChangeLanguage switches the user's reply language.
func (h *Handlers) ChangeLanguage(ctx context.Context, req *Request) (string, error) {
	lang := strings.ToLower(strings.TrimSpace(req.Payload.Value))
	switch lang {
	case "en", "ru":
	default:
		return Msg(req.Lang(), "lang_invalid"), nil
	}
	if err := h.store.SetUserLanguage(req.User.ID, lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	req.User.Language = lang
	return Msg(lang, "lang_set"), nil
}

// Subscription reports entitlement status and renewal date.
func (h *Handlers) Subscription(ctx context.Context, req *Request) (string, error) {
	lang := req.Lang()
	e, err := h.store.Entitlement(req.User.ID)
	if err != nil {
		return "", fmt.Errorf("load entitlement: %w", err)
	}
	if e == nil || !e.Active {
		return Msg(lang, "sub_none"), nil
	}

	renewal := "-"
	if !e.NextRenewal.IsZero() {
		renewal = e.NextRenewal.Format("2006-01-02")
	}
	return Msg(lang, "sub_active", e.Tier, renewal), nil
}

// BotHelp summarizes capabilities.
func (h *Handlers) BotHelp(ctx context.Context, req *Request) (string, error) {
	return Msg(req.Lang(), "help"), nil
}

// Unsupported is the catch-all for unclassifiable requests.
func (h *Handlers) Unsupported(ctx context.Context, req *Request) (string, error) {
	return Msg(req.Lang(), "didnt_understand"), nil
}
