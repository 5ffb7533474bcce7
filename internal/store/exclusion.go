package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ExclusionStore records (quest, member, date) slots the user intentionally
// removed so materialization never recreates them. Rows are append-only
// except for age-based cleanup.
type ExclusionStore struct {
	db *sql.DB
}

func NewExclusionStore(db *sql.DB) *ExclusionStore {
	return &ExclusionStore{db: db}
}

// SlotKey identifies one excluded (quest, member, date) slot.
type SlotKey struct {
	QuestID  int64
	MemberID int64
	Date     string // YYYY-MM-DD
}

// Add records an exclusion. Adding an already-present slot is a no-op.
func (s *ExclusionStore) Add(questID, memberID int64, date time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO exclusions (quest_id, member_id, date) VALUES (?, ?, ?)
		 ON CONFLICT (quest_id, member_id, date) DO NOTHING`,
		questID, memberID, date.Format(dateLayout),
	)
	if err != nil {
		return fmt.Errorf("insert exclusion: %w", err)
	}
	return nil
}

func (s *ExclusionStore) Contains(questID, memberID int64, date time.Time) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM exclusions WHERE quest_id = ? AND member_id = ? AND date = ?`,
		questID, memberID, date.Format(dateLayout),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check exclusion: %w", err)
	}
	return n > 0, nil
}

// LoadRange returns the excluded slots with dates in [start, end] as a set,
// so week materialization does one query instead of one per candidate.
func (s *ExclusionStore) LoadRange(start, end time.Time) (map[SlotKey]bool, error) {
	rows, err := s.db.Query(
		`SELECT quest_id, member_id, date FROM exclusions WHERE date >= ? AND date <= ?`,
		start.Format(dateLayout), end.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("load exclusions: %w", err)
	}
	defer rows.Close()

	set := make(map[SlotKey]bool)
	for rows.Next() {
		var key SlotKey
		if err := rows.Scan(&key.QuestID, &key.MemberID, &key.Date); err != nil {
			return nil, fmt.Errorf("scan exclusion: %w", err)
		}
		set[key] = true
	}
	return set, rows.Err()
}

// DeleteOlderThan removes exclusions dated before cutoff and returns the
// number removed. Old slots can never be rematerialized anyway.
func (s *ExclusionStore) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM exclusions WHERE date < ?`, cutoff.Format(dateLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("delete old exclusions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
