package intent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/obolbot/obol/internal/llm"
)

const (
	extractTimeout   = 15 * time.Second
	extractMaxTokens = 128
)

// Sentinel payloads returned under [DefaultKey] when extraction is
// unavailable. Handlers turn them into distinguishable user replies.
const (
	// SentinelUnconfigured means no inference provider is configured at
	// all; a permanent condition until the operator adds a key.
	SentinelUnconfigured = "AI_SERVICE_UNCONFIGURED"

	// SentinelTransient means every configured provider failed on this
	// call; retrying later may succeed.
	SentinelTransient = "AI_API_HTTP_ERROR"
)

// Payload is the single key/value pair extracted from an utterance.
// Value preserves the raw captured text; numeric normalization is a
// handler concern.
type Payload struct {
	Key   string
	Value string
}

// Sentinel reports whether the payload carries an extraction-failure
// sentinel rather than user data.
func (p Payload) Sentinel() bool {
	return p.Key == DefaultKey &&
		(p.Value == SentinelUnconfigured || p.Value == SentinelTransient)
}

// Extractor pulls one structured key/value pair out of an utterance
// whose intent is already known.
type Extractor struct {
	pool   *llm.Pool
	logger *slog.Logger
}

// NewExtractor creates an extractor over the given provider pool.
func NewExtractor(pool *llm.Pool, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{pool: pool, logger: logger.With("component", "extractor")}
}

// Extract runs the per-intent instruction prompt through the ordered
// provider fallback and parses the first key:value line of the answer.
// Extraction never fails hard: an unreachable provider stack yields a
// sentinel payload instead.
func (e *Extractor) Extract(ctx context.Context, it Intent, utterance string) Payload {
	raw, err := e.pool.Fallback(ctx, extractPrompt(it, utterance), llm.Options{
		MaxTokens: extractMaxTokens,
		Timeout:   extractTimeout,
	})
	switch {
	case errors.Is(err, llm.ErrUnconfigured):
		return Payload{Key: DefaultKey, Value: SentinelUnconfigured}
	case err != nil:
		e.logger.Warn("extraction unavailable", "intent", it, "error", err)
		return Payload{Key: DefaultKey, Value: SentinelTransient}
	}

	return parsePayload(it, raw)
}

// parsePayload splits raw model output on the first colon. Output with
// no colon, or with an unexpected key, collapses to the default key so
// handlers see a stable shape.
func parsePayload(it Intent, raw string) Payload {
	line := strings.TrimSpace(raw)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}

	key, value, found := strings.Cut(line, ":")
	if !found {
		return Payload{Key: DefaultKey, Value: ""}
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)

	if r, ok := extractionKeys[it]; ok && key != r.key && key != DefaultKey {
		// The model invented a key; keep the value but fix the shape.
		key = r.key
	}
	return Payload{Key: key, Value: value}
}
