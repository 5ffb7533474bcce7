package store

import (
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/calroth/questboard/internal/model"
)

const dateLayout = "2006-01-02"

type MemberStore struct {
	db *sql.DB
}

func NewMemberStore(db *sql.DB) *MemberStore {
	return &MemberStore{db: db}
}

const memberCols = `id, name, role, pin IS NOT NULL, points_balance, lifetime_earned, current_streak, longest_streak, last_streak_date, is_active, created_at, updated_at`

func scanMember(scanner interface{ Scan(...any) error }) (*model.Member, error) {
	var m model.Member
	var lastStreak sql.NullString

	err := scanner.Scan(
		&m.ID, &m.Name, &m.Role, &m.HasPIN, &m.PointsBalance, &m.LifetimeEarned,
		&m.CurrentStreak, &m.LongestStreak, &lastStreak, &m.IsActive,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastStreak.Valid {
		d, err := time.ParseInLocation(dateLayout, lastStreak.String, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse last_streak_date: %w", err)
		}
		m.LastStreakDate = &d
	}
	return &m, nil
}

func (s *MemberStore) Create(name string, role model.Role) (*model.Member, error) {
	result, err := s.db.Exec(
		`INSERT INTO members (name, role) VALUES (?, ?)`,
		name, role,
	)
	if err != nil {
		return nil, fmt.Errorf("insert member: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *MemberStore) GetByID(id int64) (*model.Member, error) {
	row := s.db.QueryRow(`SELECT `+memberCols+` FROM members WHERE id = ?`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return m, nil
}

func (s *MemberStore) List() ([]model.Member, error) {
	rows, err := s.db.Query(`SELECT ` + memberCols + ` FROM members WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// AddPoints raises both the spendable balance and the lifetime total.
func (s *MemberStore) AddPoints(id int64, amount int) error {
	_, err := s.db.Exec(
		`UPDATE members
		 SET points_balance = points_balance + ?,
		     lifetime_earned = lifetime_earned + ?,
		     updated_at = datetime('now')
		 WHERE id = ?`,
		amount, amount, id,
	)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

// DeductPoints lowers the spendable balance, clamped at zero. Lifetime earned
// is untouched: it gates permanent unlocks and must stay monotonic.
func (s *MemberStore) DeductPoints(id int64, amount int) error {
	_, err := s.db.Exec(
		`UPDATE members
		 SET points_balance = MAX(points_balance - ?, 0),
		     updated_at = datetime('now')
		 WHERE id = ?`,
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("deduct points: %w", err)
	}
	return nil
}

func (s *MemberStore) UpdateStreak(id int64, current, longest int, lastDate time.Time) error {
	_, err := s.db.Exec(
		`UPDATE members
		 SET current_streak = ?, longest_streak = ?, last_streak_date = ?, updated_at = datetime('now')
		 WHERE id = ?`,
		current, longest, lastDate.Format(dateLayout), id,
	)
	if err != nil {
		return fmt.Errorf("update streak: %w", err)
	}
	return nil
}

func (s *MemberStore) SetPIN(id int64, pin string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	_, err = s.db.Exec(
		`UPDATE members SET pin = ?, updated_at = datetime('now') WHERE id = ?`,
		string(hash), id,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

// CheckPIN verifies the PIN for a member. Members with no PIN set always fail.
func (s *MemberStore) CheckPIN(id int64, pin string) (bool, error) {
	var hash sql.NullString
	err := s.db.QueryRow(`SELECT pin FROM members WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get pin: %w", err)
	}
	if !hash.Valid {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(pin)) == nil, nil
}

func (s *MemberStore) Deactivate(id int64) error {
	_, err := s.db.Exec(
		`UPDATE members SET is_active = 0, updated_at = datetime('now') WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deactivate member: %w", err)
	}
	return nil
}
