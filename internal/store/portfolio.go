package store

import "time"

// AddPortfolio tracks a coin for the user. Re-adding a tracked coin is
// silently ignored.
func (s *Store) AddPortfolio(userID int64, symbol string) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO portfolio (user_id, symbol, added_at)
		VALUES (?, ?, ?)
	`, userID, symbol, formatTime(time.Now()))
	return err
}

// RemovePortfolio stops tracking a coin and reports whether it was
// tracked.
func (s *Store) RemovePortfolio(userID int64, symbol string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM portfolio WHERE user_id = ? AND symbol = ?`, userID, symbol)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Portfolio returns the user's tracked coins in insertion order.
func (s *Store) Portfolio(userID int64) ([]*PortfolioEntry, error) {
	rows, err := s.db.Query(`
		SELECT user_id, symbol, added_at FROM portfolio
		WHERE user_id = ? ORDER BY added_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*PortfolioEntry
	for rows.Next() {
		var e PortfolioEntry
		var addedAt string
		if err := rows.Scan(&e.UserID, &e.Symbol, &addedAt); err != nil {
			return nil, err
		}
		e.AddedAt = parseTime(addedAt)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// CountPortfolio returns the number of coins the user tracks. The
// free-tier slot ceiling is enforced against this count.
func (s *Store) CountPortfolio(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM portfolio WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}
