// Package store persists users, dialogs, turns, alerts, entitlements
// and portfolios in SQLite. Both the conversation path and the
// background engines share one Store; the alert trigger transition is
// guarded with an optimistic compare-and-swap so concurrent writers
// cannot double-fire.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle, running migrations on first use.
// The caller chooses the driver; the Store only speaks database/sql.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'en',
		created_at TEXT NOT NULL,
		last_seen TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dialogs (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		open INTEGER NOT NULL DEFAULT 1,
		started_at TEXT NOT NULL,
		ended_at TEXT,
		hints_shown INTEGER NOT NULL DEFAULT 0,
		last_hint_at TEXT,
		msgs_since_hint INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS turns (
		id TEXT PRIMARY KEY,
		dialog_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		intent TEXT NOT NULL DEFAULT '',
		entities TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		FOREIGN KEY (dialog_id) REFERENCES dialogs(id)
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		target_price REAL NOT NULL,
		direction TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		triggered_at TEXT
	);

	CREATE TABLE IF NOT EXISTS entitlements (
		user_id INTEGER PRIMARY KEY,
		active INTEGER NOT NULL DEFAULT 0,
		tier TEXT NOT NULL DEFAULT 'basic',
		next_renewal TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS portfolio (
		user_id INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		added_at TEXT NOT NULL,
		PRIMARY KEY (user_id, symbol)
	);

	CREATE INDEX IF NOT EXISTS idx_dialogs_user_open ON dialogs(user_id, open);
	CREATE INDEX IF NOT EXISTS idx_turns_dialog ON turns(dialog_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_turns_user_time ON turns(user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active);
	CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// NewID generates a new UUIDv7.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		return uuid.New().String()
	}
	return id.String()
}

// timeFormat is fixed-width (nine fractional digits, always UTC) so
// that the TEXT comparisons in ORDER BY and range queries agree with
// chronological order. RFC3339Nano drops trailing fractional zeros,
// which breaks lexicographic ordering for sub-second timestamps.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

// --- users ---

// GetOrCreateUser returns the stored user, creating it on first
// contact and refreshing username, language and last-seen otherwise.
func (s *Store) GetOrCreateUser(id int64, username, language string) (*User, error) {
	now := time.Now()

	row := s.db.QueryRow(`SELECT id, username, language, created_at, last_seen FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		if language == "" {
			language = "en"
		}
		u = &User{ID: id, Username: username, Language: language, CreatedAt: now, LastSeen: now}
		_, err = s.db.Exec(`
			INSERT INTO users (id, username, language, created_at, last_seen)
			VALUES (?, ?, ?, ?, ?)
		`, id, username, language, formatTime(now), formatTime(now))
		return u, err
	}
	if err != nil {
		return nil, err
	}

	u.LastSeen = now
	if username != "" {
		u.Username = username
	}
	_, err = s.db.Exec(`UPDATE users SET username = ?, last_seen = ? WHERE id = ?`,
		u.Username, formatTime(now), id)
	return u, err
}

// SetUserLanguage updates the user's reply language.
func (s *Store) SetUserLanguage(id int64, language string) error {
	_, err := s.db.Exec(`UPDATE users SET language = ? WHERE id = ?`, language, id)
	return err
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var createdAt, lastSeen string
	if err := row.Scan(&u.ID, &u.Username, &u.Language, &createdAt, &lastSeen); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	u.LastSeen = parseTime(lastSeen)
	return &u, nil
}

// --- dialogs ---

// OpenDialog creates a fresh open dialog for the user.
func (s *Store) OpenDialog(userID int64) (*Dialog, error) {
	d := &Dialog{ID: NewID(), UserID: userID, Open: true, StartedAt: time.Now()}
	_, err := s.db.Exec(`
		INSERT INTO dialogs (id, user_id, open, started_at)
		VALUES (?, ?, 1, ?)
	`, d.ID, d.UserID, formatTime(d.StartedAt))
	return d, err
}

// CurrentDialog returns the user's open dialog, or nil when none is
// open.
func (s *Store) CurrentDialog(userID int64) (*Dialog, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, topic, open, started_at, ended_at, hints_shown, last_hint_at, msgs_since_hint
		FROM dialogs WHERE user_id = ? AND open = 1
		ORDER BY started_at DESC LIMIT 1
	`, userID)

	d, err := scanDialog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

// CloseDialog marks the dialog closed. Closing an already-closed
// dialog is a no-op.
func (s *Store) CloseDialog(id string) error {
	_, err := s.db.Exec(`UPDATE dialogs SET open = 0, ended_at = ? WHERE id = ? AND open = 1`,
		formatTime(time.Now()), id)
	return err
}

// SetDialogTopic records the dialog topic. First write wins: a dialog
// that already has a topic keeps it.
func (s *Store) SetDialogTopic(id, topic string) error {
	_, err := s.db.Exec(`UPDATE dialogs SET topic = ? WHERE id = ? AND topic = ''`, topic, id)
	return err
}

// UpdateDialogHints persists the hint-cooldown counters.
func (s *Store) UpdateDialogHints(id string, hintsShown int, lastHintAt time.Time, msgsSince int) error {
	var last any
	if !lastHintAt.IsZero() {
		last = formatTime(lastHintAt)
	}
	_, err := s.db.Exec(`
		UPDATE dialogs SET hints_shown = ?, last_hint_at = ?, msgs_since_hint = ?
		WHERE id = ?
	`, hintsShown, last, msgsSince, id)
	return err
}

func scanDialog(row *sql.Row) (*Dialog, error) {
	var d Dialog
	var open int
	var startedAt string
	var endedAt, lastHintAt sql.NullString
	err := row.Scan(&d.ID, &d.UserID, &d.Topic, &open, &startedAt, &endedAt, &d.HintsShown, &lastHintAt, &d.MsgsSince)
	if err != nil {
		return nil, err
	}
	d.Open = open == 1
	d.StartedAt = parseTime(startedAt)
	if endedAt.Valid {
		d.EndedAt = parseTime(endedAt.String)
	}
	if lastHintAt.Valid {
		d.LastHintAt = parseTime(lastHintAt.String)
	}
	return &d, nil
}

// --- turns ---

// AppendTurn persists a new turn. ID and timestamp are filled in when
// absent.
func (s *Store) AppendTurn(t *Turn) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	failed := 0
	if t.Failed {
		failed = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO turns (id, dialog_id, user_id, role, text, intent, entities, duration_ms, failed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.DialogID, t.UserID, t.Role, t.Text, t.Intent, t.Entities, t.DurationMS, failed, formatTime(t.CreatedAt))
	return err
}

// UpdateTurn rewrites the mutable outcome fields of a recorded turn.
func (s *Store) UpdateTurn(t *Turn) error {
	failed := 0
	if t.Failed {
		failed = 1
	}
	_, err := s.db.Exec(`
		UPDATE turns SET intent = ?, entities = ?, duration_ms = ?, failed = ?
		WHERE id = ?
	`, t.Intent, t.Entities, t.DurationMS, failed, t.ID)
	return err
}

// RecentTurns returns the newest turns of a dialog, optionally
// filtered by role, newest first.
func (s *Store) RecentTurns(dialogID string, role Role, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, dialog_id, user_id, role, text, intent, entities, duration_ms, failed, created_at
		FROM turns WHERE dialog_id = ?`
	args := []any{dialogID}
	if role != "" {
		query += ` AND role = ?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []*Turn
	for rows.Next() {
		var t Turn
		var failed int
		var createdAt string
		if err := rows.Scan(&t.ID, &t.DialogID, &t.UserID, &t.Role, &t.Text, &t.Intent, &t.Entities, &t.DurationMS, &failed, &createdAt); err != nil {
			return nil, err
		}
		t.Failed = failed == 1
		t.CreatedAt = parseTime(createdAt)
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

// CountTurnsSince counts a user's own turns recorded at or after the
// cutoff. Backs the daily free-tier window.
func (s *Store) CountTurnsSince(userID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM turns
		WHERE user_id = ? AND role = ? AND created_at >= ?
	`, userID, RoleUser, formatTime(since)).Scan(&n)
	return n, err
}
