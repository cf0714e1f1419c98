package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/obolbot/obol/internal/intent"
	"github.com/obolbot/obol/internal/store"
)

// Request carries everything a handler needs for one turn.
type Request struct {
	User    *store.User
	Dialog  *store.Dialog
	Text    string
	Intent  intent.Intent
	Payload intent.Payload
	Now     time.Time
}

// Lang is the user's reply language.
func (r *Request) Lang() string {
	if r.User != nil && r.User.Language != "" {
		return r.User.Language
	}
	return "en"
}

// HandlerFunc produces the reply for one classified request. Errors
// are reserved for failures the engine must surface as a generic
// error reply; "can't do that" outcomes are normal replies.
type HandlerFunc func(ctx context.Context, req *Request) (string, error)

// Registry maps intent tags to handlers. Lookup is case-insensitive;
// tags nothing was registered for fall to the unsupported handler, so
// dispatch never fails on an unknown tag.
type Registry struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

// NewRegistry creates a registry with the given catch-all handler.
func NewRegistry(fallback HandlerFunc) *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		fallback: fallback,
	}
}

// Register binds a handler to an intent tag. Re-registration replaces
// the previous handler.
func (r *Registry) Register(it intent.Intent, h HandlerFunc) {
	r.handlers[strings.ToUpper(string(it))] = h
}

// Validate checks that every taxonomy tag except the catch-all has a
// handler. Run once at startup; a gap is a programming error.
func (r *Registry) Validate() error {
	var missing []string
	for _, it := range intent.All() {
		if it == intent.IntentUnsupported {
			continue
		}
		if _, ok := r.handlers[strings.ToUpper(string(it))]; !ok {
			missing = append(missing, string(it))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("unregistered intents: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Dispatch routes the request to its handler.
func (r *Registry) Dispatch(ctx context.Context, req *Request) (string, error) {
	if h, ok := r.handlers[strings.ToUpper(string(req.Intent))]; ok {
		return h(ctx, req)
	}
	return r.fallback(ctx, req)
}
