package store

import (
	"database/sql"
	"time"
)

// CreateAlert persists a new active price alert.
func (s *Store) CreateAlert(a *Alert) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Active = true
	_, err := s.db.Exec(`
		INSERT INTO alerts (id, user_id, symbol, target_price, direction, active, created_at)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`, a.ID, a.UserID, a.Symbol, a.TargetPrice, a.Direction, formatTime(a.CreatedAt))
	return err
}

// ActiveAlerts returns every active alert across all users, oldest
// first. The scheduler evaluates this set each poll cycle.
func (s *Store) ActiveAlerts() ([]*Alert, error) {
	return s.queryAlerts(`
		SELECT id, user_id, symbol, target_price, direction, active, created_at, triggered_at
		FROM alerts WHERE active = 1 ORDER BY created_at ASC
	`)
}

// UserAlerts returns one user's active alerts.
func (s *Store) UserAlerts(userID int64) ([]*Alert, error) {
	return s.queryAlerts(`
		SELECT id, user_id, symbol, target_price, direction, active, created_at, triggered_at
		FROM alerts WHERE user_id = ? AND active = 1 ORDER BY created_at ASC
	`, userID)
}

// DeleteAlertsBySymbol removes a user's active alerts for one symbol
// and reports how many were removed.
func (s *Store) DeleteAlertsBySymbol(userID int64, symbol string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE user_id = ? AND symbol = ? AND active = 1`,
		userID, symbol)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// TriggerAlert claims the ACTIVE -> TRIGGERED transition with a
// compare-and-swap on the active flag. It returns true only for the
// single caller that wins the claim; a second poller, or a concurrent
// delete, sees false and must not deliver.
func (s *Store) TriggerAlert(id string) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE alerts SET active = 0, triggered_at = ?
		WHERE id = ? AND active = 1
	`, formatTime(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *Store) queryAlerts(query string, args ...any) ([]*Alert, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*Alert
	for rows.Next() {
		var a Alert
		var active int
		var createdAt string
		var triggeredAt sql.NullString
		if err := rows.Scan(&a.ID, &a.UserID, &a.Symbol, &a.TargetPrice, &a.Direction, &active, &createdAt, &triggeredAt); err != nil {
			return nil, err
		}
		a.Active = active == 1
		a.CreatedAt = parseTime(createdAt)
		if triggeredAt.Valid {
			a.TriggeredAt = parseTime(triggeredAt.String)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}
