// Package convo tracks conversation sessions and resolves pronoun
// references against recent dialog history.
package convo

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/obolbot/obol/internal/store"
)

const (
	// idleWindow is how long a dialog stays joinable after its last
	// turn. A later message closes it and opens a fresh one.
	idleWindow = 30 * time.Minute

	// Hint cooldown: once shown, the usage hint stays silent for this
	// many user messages or this much time, whichever passes first.
	hintEveryMessages = 10
	hintEvery         = 6 * time.Hour
)

// SessionTracker keeps at most one open dialog per user.
type SessionTracker struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSessionTracker creates a tracker over the shared store.
func NewSessionTracker(st *store.Store, logger *slog.Logger) *SessionTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTracker{store: st, logger: logger.With("component", "session")}
}

// Touch returns the dialog the incoming utterance belongs to. An open
// dialog within the idle window is joined; a stale one is closed and
// replaced. The returned flag reports whether a new dialog was opened.
func (s *SessionTracker) Touch(userID int64, now time.Time) (*store.Dialog, bool, error) {
	cur, err := s.store.CurrentDialog(userID)
	if err != nil {
		return nil, false, fmt.Errorf("load dialog: %w", err)
	}

	if cur != nil {
		last := cur.StartedAt
		turns, err := s.store.RecentTurns(cur.ID, "", 1)
		if err != nil {
			return nil, false, fmt.Errorf("load last turn: %w", err)
		}
		if len(turns) > 0 {
			last = turns[0].CreatedAt
		}

		if now.Sub(last) <= idleWindow {
			return cur, false, nil
		}

		if err := s.store.CloseDialog(cur.ID); err != nil {
			return nil, false, fmt.Errorf("close stale dialog: %w", err)
		}
		s.logger.Debug("closed stale dialog", "dialog", cur.ID, "idle", now.Sub(last))
	}

	d, err := s.store.OpenDialog(userID)
	if err != nil {
		return nil, false, fmt.Errorf("open dialog: %w", err)
	}
	return d, true, nil
}

// SetTopicOnce records the dialog topic from the first classified
// intent. Later calls are no-ops.
func (s *SessionTracker) SetTopicOnce(dialogID, topic string) error {
	return s.store.SetDialogTopic(dialogID, topic)
}

// MaybeHint reports whether the usage hint may be shown on this turn
// and updates the dialog's cooldown counters either way. The cooldown
// is scoped to the dialog and dies with it.
func (s *SessionTracker) MaybeHint(d *store.Dialog, now time.Time) (bool, error) {
	d.MsgsSince++

	show := d.MsgsSince >= hintEveryMessages ||
		(!d.LastHintAt.IsZero() && now.Sub(d.LastHintAt) >= hintEvery)
	if show {
		d.HintsShown++
		d.LastHintAt = now
		d.MsgsSince = 0
	}

	if err := s.store.UpdateDialogHints(d.ID, d.HintsShown, d.LastHintAt, d.MsgsSince); err != nil {
		return false, fmt.Errorf("update hint state: %w", err)
	}
	return show, nil
}
