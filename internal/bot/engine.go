// Package bot wires the conversation pipeline: rate limiting, session
// tracking, intent classification, entity extraction, pronoun
// resolution and handler dispatch.
package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/obolbot/obol/internal/convo"
	"github.com/obolbot/obol/internal/intent"
	"github.com/obolbot/obol/internal/store"
)

// Utterance is one inbound user message.
type Utterance struct {
	UserID   int64
	Username string
	Language string
	Text     string
	At       time.Time
}

// Engine runs the full turn pipeline. It always produces a reply: any
// stage failure degrades to a localized error message and the turn is
// recorded with its error flag set.
type Engine struct {
	store      *store.Store
	limiter    *RateLimiter
	sessions   *convo.SessionTracker
	resolver   *convo.Resolver
	classifier *intent.Classifier
	extractor  *intent.Extractor
	registry   *Registry
	logger     *slog.Logger
}

// NewEngine assembles the pipeline.
func NewEngine(
	st *store.Store,
	limiter *RateLimiter,
	sessions *convo.SessionTracker,
	resolver *convo.Resolver,
	classifier *intent.Classifier,
	extractor *intent.Extractor,
	registry *Registry,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      st,
		limiter:    limiter,
		sessions:   sessions,
		resolver:   resolver,
		classifier: classifier,
		extractor:  extractor,
		registry:   registry,
		logger:     logger.With("component", "engine"),
	}
}

// NewDefaultRegistry binds every taxonomy tag to its handler and
// validates totality.
func NewDefaultRegistry(h *Handlers) (*Registry, error) {
	r := NewRegistry(h.Unsupported)
	r.Register(intent.IntentGeneralChat, h.GeneralChat)
	r.Register(intent.IntentCryptoInfo, h.CryptoInfo)
	r.Register(intent.IntentTokenAnalysis, h.TokenAnalysis)
	r.Register(intent.IntentWhereToBuy, h.WhereToBuy)
	r.Register(intent.IntentPremarketScan, h.PremarketScan)
	r.Register(intent.IntentEduLesson, h.EduLesson)
	r.Register(intent.IntentSetupAlert, h.SetupAlert)
	r.Register(intent.IntentManageAlerts, h.ManageAlerts)
	r.Register(intent.IntentTrackCoin, h.TrackCoin)
	r.Register(intent.IntentUntrackCoin, h.UntrackCoin)
	r.Register(intent.IntentPortfolioSummary, h.PortfolioSummary)
	r.Register(intent.IntentSubscription, h.Subscription)
	r.Register(intent.IntentBotHelp, h.BotHelp)
	r.Register(intent.IntentChangeLanguage, h.ChangeLanguage)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Handle processes one utterance end to end and returns the reply.
func (e *Engine) Handle(ctx context.Context, u Utterance) string {
	now := u.At
	if now.IsZero() {
		now = time.Now()
	}
	start := time.Now()

	lang := u.Language
	if lang == "" {
		lang = "en"
	}

	user, err := e.store.GetOrCreateUser(u.UserID, u.Username, u.Language)
	if err != nil {
		e.logger.Error("load user failed", "user", u.UserID, "error", err)
		return Msg(lang, "generic_error")
	}
	lang = user.Language

	// The limiter runs before anything that could cost an inference
	// call.
	allowed, err := e.limiter.Allow(user.ID, now)
	if err != nil {
		e.logger.Error("rate limit check failed", "user", user.ID, "error", err)
		return Msg(lang, "generic_error")
	}
	if !allowed {
		e.logger.Info("rate limited", "user", user.ID)
		return Msg(lang, "rate_limited")
	}

	dialog, opened, err := e.sessions.Touch(user.ID, now)
	if err != nil {
		e.logger.Error("session touch failed", "user", user.ID, "error", err)
		return Msg(lang, "generic_error")
	}
	if opened {
		e.logger.Debug("opened dialog", "user", user.ID, "dialog", dialog.ID)
	}

	userTurn := &store.Turn{
		DialogID:  dialog.ID,
		UserID:    user.ID,
		Role:      store.RoleUser,
		Text:      u.Text,
		CreatedAt: now,
	}
	if err := e.store.AppendTurn(userTurn); err != nil {
		e.logger.Error("append turn failed", "user", user.ID, "error", err)
		return Msg(lang, "generic_error")
	}

	it := e.classifier.Classify(ctx, u.Text)
	if err := e.sessions.SetTopicOnce(dialog.ID, it.String()); err != nil {
		e.logger.Warn("set topic failed", "dialog", dialog.ID, "error", err)
	}

	payload := e.extractor.Extract(ctx, it, u.Text)

	var reply string
	failed := false
	if payload.Sentinel() {
		switch payload.Value {
		case intent.SentinelUnconfigured:
			reply = Msg(lang, "ai_unconfigured")
		default:
			reply = Msg(lang, "ai_transient")
		}
	} else {
		payload = e.resolveReference(it, u.Text, dialog.ID, payload)

		req := &Request{
			User:    user,
			Dialog:  dialog,
			Text:    u.Text,
			Intent:  it,
			Payload: payload,
			Now:     now,
		}
		reply, err = e.registry.Dispatch(ctx, req)
		if err != nil {
			e.logger.Error("handler failed", "intent", it, "user", user.ID, "error", err)
			reply = Msg(lang, "generic_error")
			failed = true
		}
	}

	userTurn.Intent = it.String()
	userTurn.Entities = payload.Key + ":" + payload.Value
	userTurn.DurationMS = time.Since(start).Milliseconds()
	userTurn.Failed = failed
	if err := e.store.UpdateTurn(userTurn); err != nil {
		e.logger.Warn("update turn failed", "turn", userTurn.ID, "error", err)
	}

	assistantTurn := &store.Turn{
		DialogID: dialog.ID,
		UserID:   user.ID,
		Role:     store.RoleAssistant,
		Text:     reply,
		Intent:   it.String(),
	}
	if err := e.store.AppendTurn(assistantTurn); err != nil {
		e.logger.Warn("append reply failed", "dialog", dialog.ID, "error", err)
	}

	if show, err := e.sessions.MaybeHint(dialog, now); err != nil {
		e.logger.Warn("hint state failed", "dialog", dialog.ID, "error", err)
	} else if show {
		reply += "\n\n" + Msg(lang, "hint")
	}

	return reply
}

// resolveReference substitutes the most recently discussed ticker for
// a pronoun. Only the referential intents with a pronoun in the text
// trigger a history scan.
func (e *Engine) resolveReference(it intent.Intent, text, dialogID string, payload intent.Payload) intent.Payload {
	if !e.resolver.Applies(it, text) {
		return payload
	}
	history, err := e.store.RecentTurns(dialogID, store.RoleAssistant, e.resolver.HistoryDepth())
	if err != nil {
		e.logger.Warn("history load failed", "dialog", dialogID, "error", err)
		return payload
	}
	if sym := e.resolver.Resolve(it, text, history); sym != "" {
		e.logger.Debug("pronoun resolved", "intent", it, "symbol", sym)
		payload.Value = sym
	}
	return payload
}
