package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/calroth/questboard/internal/model"
)

type BonusEventStore struct {
	db *sql.DB
}

func NewBonusEventStore(db *sql.DB) *BonusEventStore {
	return &BonusEventStore{db: db}
}

const bonusCols = `id, title, multiplier, starts_at, ends_at, is_active, created_at`

func scanBonus(scanner interface{ Scan(...any) error }) (*model.BonusEvent, error) {
	var b model.BonusEvent
	err := scanner.Scan(&b.ID, &b.Title, &b.Multiplier, &b.StartsAt, &b.EndsAt, &b.IsActive, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BonusEventStore) Create(title string, multiplier float64, startsAt, endsAt time.Time) (*model.BonusEvent, error) {
	result, err := s.db.Exec(
		`INSERT INTO bonus_events (title, multiplier, starts_at, ends_at) VALUES (?, ?, ?, ?)`,
		title, multiplier, startsAt.UTC(), endsAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert bonus event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+bonusCols+` FROM bonus_events WHERE id = ?`, id)
	b, err := scanBonus(row)
	if err != nil {
		return nil, fmt.Errorf("get bonus event: %w", err)
	}
	return b, nil
}

// ActiveAt returns the events whose window covers t, in creation order.
func (s *BonusEventStore) ActiveAt(t time.Time) ([]model.BonusEvent, error) {
	rows, err := s.db.Query(
		`SELECT `+bonusCols+` FROM bonus_events WHERE is_active = 1 AND starts_at <= ? AND ends_at >= ? ORDER BY id ASC`,
		t.UTC(), t.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list active bonus events: %w", err)
	}
	defer rows.Close()

	var events []model.BonusEvent
	for rows.Next() {
		b, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bonus event: %w", err)
		}
		events = append(events, *b)
	}
	return events, rows.Err()
}

func (s *BonusEventStore) Deactivate(id int64) error {
	_, err := s.db.Exec(`UPDATE bonus_events SET is_active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate bonus event: %w", err)
	}
	return nil
}
