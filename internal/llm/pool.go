package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Pool combines configured providers under two calling strategies:
//
//   - Race: all providers start concurrently; the first non-empty
//     success wins and the losing in-flight calls are cancelled. Used
//     for latency-sensitive conversational replies.
//   - Fallback: providers are tried one at a time in configured order,
//     stopping at the first success. Used for classification and
//     extraction, where a deterministic provider preference matters.
//
// Both strategies treat individual provider errors as exclusions, never
// as overall failure; only the exhaustion of all providers surfaces as
// [ErrNoResponse].
type Pool struct {
	providers []Provider
	logger    *slog.Logger
}

// NewPool creates a provider pool. Order is the fallback preference
// order. A nil logger falls back to slog.Default.
func NewPool(logger *slog.Logger, providers ...Provider) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{providers: providers, logger: logger}
}

// Size returns the number of configured providers.
func (p *Pool) Size() int { return len(p.providers) }

// raceResult carries one provider's outcome to the selection loop.
type raceResult struct {
	name string
	text string
	err  error
}

// Race runs the prompt against every provider concurrently and returns
// the first non-empty successful response. Losing in-flight calls are
// cancelled as soon as a winner is selected. Every provider call gets
// its own timeout derived from opts.Timeout.
func (p *Pool) Race(ctx context.Context, prompt string, opts Options) (string, error) {
	if len(p.providers) == 0 {
		return "", ErrUnconfigured
	}
	if opts.Timeout <= 0 {
		return "", errMissingTimeout
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so losers never block after the winner is chosen.
	results := make(chan raceResult, len(p.providers))
	for _, prov := range p.providers {
		go func(prov Provider) {
			callCtx, callCancel := context.WithTimeout(raceCtx, opts.Timeout)
			defer callCancel()

			start := time.Now()
			text, err := prov.Infer(callCtx, prompt, opts)
			results <- raceResult{name: prov.Name(), text: text, err: err}
			p.logger.Debug("race provider finished",
				"provider", prov.Name(),
				"duration", time.Since(start),
				"error", err,
			)
		}(prov)
	}

	for range p.providers {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-results:
			if res.err != nil {
				p.logger.Warn("provider excluded from race", "provider", res.name, "error", res.err)
				continue
			}
			if text := strings.TrimSpace(res.text); text != "" {
				return text, nil
			}
		}
	}

	return "", ErrNoResponse
}

// Fallback tries providers sequentially in configured order, returning
// the first non-empty success. There is no cancellation between
// attempts: each provider either finishes or times out before the next
// one starts.
func (p *Pool) Fallback(ctx context.Context, prompt string, opts Options) (string, error) {
	if len(p.providers) == 0 {
		return "", ErrUnconfigured
	}
	if opts.Timeout <= 0 {
		return "", errMissingTimeout
	}

	for _, prov := range p.providers {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		callCtx, callCancel := context.WithTimeout(ctx, opts.Timeout)
		text, err := prov.Infer(callCtx, prompt, opts)
		callCancel()

		if err != nil {
			p.logger.Warn("provider fallback step failed", "provider", prov.Name(), "error", err)
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text, nil
		}
	}

	return "", ErrNoResponse
}
