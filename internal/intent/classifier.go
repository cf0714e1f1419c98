package intent

import (
	"context"
	"log/slog"
	"time"

	"github.com/obolbot/obol/internal/llm"
)

const (
	classifyTimeout   = 10 * time.Second
	classifyMaxTokens = 32
)

// Classifier maps an utterance to a taxonomy tag. It never returns an
// error: any provider failure or unrecognized output degrades to
// [IntentUnsupported], and the caller's unsupported handler takes over.
type Classifier struct {
	pool   *llm.Pool
	logger *slog.Logger
}

// NewClassifier creates a classifier over the given provider pool.
func NewClassifier(pool *llm.Pool, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{pool: pool, logger: logger.With("component", "classifier")}
}

// Classify runs the constrained classification prompt through the
// ordered provider fallback and normalizes the answer to a tag.
func (c *Classifier) Classify(ctx context.Context, utterance string) Intent {
	start := time.Now()
	raw, err := c.pool.Fallback(ctx, classifyPrompt(utterance), llm.Options{
		MaxTokens: classifyMaxTokens,
		Timeout:   classifyTimeout,
	})
	if err != nil {
		c.logger.Warn("classification degraded to catch-all", "error", err)
		return IntentUnsupported
	}

	tag := Parse(raw)
	c.logger.Debug("classified utterance",
		"intent", tag,
		"raw", raw,
		"duration", time.Since(start),
	)
	return tag
}
