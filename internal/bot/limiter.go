package bot

import (
	"fmt"
	"time"

	"github.com/obolbot/obol/internal/store"
)

// RateLimiter enforces the daily free-message ceiling. Subscribers are
// exempt. The check runs before classification so a blocked request
// never costs an inference call.
type RateLimiter struct {
	store   *store.Store
	ceiling int
}

// NewRateLimiter creates a limiter with the given daily free-turn
// ceiling. A non-positive ceiling disables limiting.
func NewRateLimiter(st *store.Store, ceiling int) *RateLimiter {
	return &RateLimiter{store: st, ceiling: ceiling}
}

// Allow reports whether the user may spend another turn right now.
// The window resets at UTC midnight.
func (l *RateLimiter) Allow(userID int64, now time.Time) (bool, error) {
	if l.ceiling <= 0 {
		return true, nil
	}

	active, err := l.store.HasActiveEntitlement(userID)
	if err != nil {
		return false, fmt.Errorf("check entitlement: %w", err)
	}
	if active {
		return true, nil
	}

	midnight := now.UTC().Truncate(24 * time.Hour)
	n, err := l.store.CountTurnsSince(userID, midnight)
	if err != nil {
		return false, fmt.Errorf("count turns: %w", err)
	}
	return n < l.ceiling, nil
}
