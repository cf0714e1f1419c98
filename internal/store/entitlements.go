package store

import (
	"database/sql"
	"errors"
	"time"
)

// UpsertEntitlement writes the stored subscription state for a user.
func (s *Store) UpsertEntitlement(e *Entitlement) error {
	e.UpdatedAt = time.Now()
	active := 0
	if e.Active {
		active = 1
	}
	if e.Tier == "" {
		e.Tier = TierBasic
	}
	var renewal any
	if !e.NextRenewal.IsZero() {
		renewal = formatTime(e.NextRenewal)
	}
	_, err := s.db.Exec(`
		INSERT INTO entitlements (user_id, active, tier, next_renewal, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			active = excluded.active,
			tier = excluded.tier,
			next_renewal = excluded.next_renewal,
			updated_at = excluded.updated_at
	`, e.UserID, active, e.Tier, renewal, formatTime(e.UpdatedAt))
	return err
}

// Entitlement returns the stored subscription state, or nil when the
// user has never had one.
func (s *Store) Entitlement(userID int64) (*Entitlement, error) {
	row := s.db.QueryRow(`
		SELECT user_id, active, tier, next_renewal, updated_at
		FROM entitlements WHERE user_id = ?
	`, userID)

	e, err := scanEntitlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return e, err
}

// HasActiveEntitlement is the limiter's fast path.
func (s *Store) HasActiveEntitlement(userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM entitlements WHERE user_id = ? AND active = 1`, userID).Scan(&n)
	return n > 0, err
}

// Entitlements returns every stored entitlement row, active or not.
// The subscription monitor reconciles this set against the billing
// oracle.
func (s *Store) Entitlements() ([]*Entitlement, error) {
	return s.queryEntitlements(`
		SELECT user_id, active, tier, next_renewal, updated_at
		FROM entitlements
	`)
}

func (s *Store) queryEntitlements(query string) ([]*Entitlement, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ents []*Entitlement
	for rows.Next() {
		var e Entitlement
		var active int
		var renewal sql.NullString
		var updatedAt string
		if err := rows.Scan(&e.UserID, &active, &e.Tier, &renewal, &updatedAt); err != nil {
			return nil, err
		}
		e.Active = active == 1
		if renewal.Valid {
			e.NextRenewal = parseTime(renewal.String)
		}
		e.UpdatedAt = parseTime(updatedAt)
		ents = append(ents, &e)
	}
	return ents, rows.Err()
}

func scanEntitlement(row *sql.Row) (*Entitlement, error) {
	var e Entitlement
	var active int
	var renewal sql.NullString
	var updatedAt string
	if err := row.Scan(&e.UserID, &active, &e.Tier, &renewal, &updatedAt); err != nil {
		return nil, err
	}
	e.Active = active == 1
	if renewal.Valid {
		e.NextRenewal = parseTime(renewal.String)
	}
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}
