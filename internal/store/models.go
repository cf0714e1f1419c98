package store

import "time"

// Role tags who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Direction is the side of a price threshold an alert watches.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Tier is an entitlement level.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// User is a known conversation participant. Language drives message
// catalog lookup.
type User struct {
	ID        int64
	Username  string
	Language  string
	CreatedAt time.Time
	LastSeen  time.Time
}

// Dialog groups consecutive turns of one user. At most one dialog per
// user is open at a time; the topic is set once, from the first
// classified intent. Hint counters gate the usage-hint cadence and die
// with the dialog.
type Dialog struct {
	ID         string
	UserID     int64
	Topic      string
	Open       bool
	StartedAt  time.Time
	EndedAt    time.Time
	HintsShown int
	LastHintAt time.Time
	MsgsSince  int
}

// Turn is one append-only conversation record.
type Turn struct {
	ID         string
	DialogID   string
	UserID     int64
	Role       Role
	Text       string
	Intent     string
	Entities   string
	DurationMS int64
	Failed     bool
	CreatedAt  time.Time
}

// Alert is a user-defined price threshold. ACTIVE -> TRIGGERED and
// ACTIVE -> deleted are terminal; a triggered alert is never re-armed.
type Alert struct {
	ID          string
	UserID      int64
	Symbol      string
	TargetPrice float64
	Direction   Direction
	Active      bool
	CreatedAt   time.Time
	TriggeredAt time.Time
}

// Entitlement is the stored view of a user's paid subscription,
// written by the monitor and the payment path, read by the limiter and
// the gated handlers.
type Entitlement struct {
	UserID      int64
	Active      bool
	Tier        Tier
	NextRenewal time.Time
	UpdatedAt   time.Time
}

// PortfolioEntry is one tracked coin.
type PortfolioEntry struct {
	UserID  int64
	Symbol  string
	AddedAt time.Time
}
