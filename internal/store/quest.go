package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calroth/questboard/internal/model"
)

type QuestStore struct {
	db *sql.DB
}

func NewQuestStore(db *sql.DB) *QuestStore {
	return &QuestStore{db: db}
}

// --- Weekday set encoding ---

func marshalDays(days []time.Weekday) (any, error) {
	if days == nil {
		return nil, nil
	}
	data, err := json.Marshal(days)
	if err != nil {
		return nil, fmt.Errorf("marshal custom days: %w", err)
	}
	return string(data), nil
}

func unmarshalDays(raw sql.NullString) ([]time.Weekday, error) {
	if !raw.Valid {
		return nil, nil
	}
	var days []time.Weekday
	if err := json.Unmarshal([]byte(raw.String), &days); err != nil {
		return nil, fmt.Errorf("unmarshal custom days: %w", err)
	}
	return days, nil
}

// --- Quest methods ---

const questCols = `id, title, description, points, recurrence, custom_days, requires_photo, is_active, created_at, updated_at`

func scanQuest(scanner interface{ Scan(...any) error }) (*model.Quest, error) {
	var q model.Quest
	var days sql.NullString

	err := scanner.Scan(
		&q.ID, &q.Title, &q.Description, &q.Points, &q.Recurrence, &days,
		&q.RequiresPhoto, &q.IsActive, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	q.CustomDays, err = unmarshalDays(days)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *QuestStore) Create(title, description string, points int, rec model.Recurrence, customDays []time.Weekday, requiresPhoto bool) (*model.Quest, error) {
	days, err := marshalDays(customDays)
	if err != nil {
		return nil, err
	}

	result, err := s.db.Exec(
		`INSERT INTO quests (title, description, points, recurrence, custom_days, requires_photo) VALUES (?, ?, ?, ?, ?, ?)`,
		title, description, points, rec, days, requiresPhoto,
	)
	if err != nil {
		return nil, fmt.Errorf("insert quest: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *QuestStore) GetByID(id int64) (*model.Quest, error) {
	row := s.db.QueryRow(`SELECT `+questCols+` FROM quests WHERE id = ?`, id)
	q, err := scanQuest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quest: %w", err)
	}
	return q, nil
}

func (s *QuestStore) ListActive() ([]model.Quest, error) {
	rows, err := s.db.Query(`SELECT ` + questCols + ` FROM quests WHERE is_active = 1 ORDER BY title ASC`)
	if err != nil {
		return nil, fmt.Errorf("list quests: %w", err)
	}
	defer rows.Close()

	var quests []model.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, *q)
	}
	return quests, rows.Err()
}

// Deactivate soft-deletes a quest; materialization skips inactive quests.
func (s *QuestStore) Deactivate(id int64) error {
	_, err := s.db.Exec(
		`UPDATE quests SET is_active = 0, updated_at = datetime('now') WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("deactivate quest: %w", err)
	}
	return nil
}

// --- Rule methods ---

const ruleCols = `id, quest_id, member_id, recurrence, custom_days, requires_photo, is_active, created_at, updated_at`

func scanRule(scanner interface{ Scan(...any) error }) (*model.QuestRule, error) {
	var r model.QuestRule
	var days sql.NullString

	err := scanner.Scan(
		&r.ID, &r.QuestID, &r.MemberID, &r.Recurrence, &days,
		&r.RequiresPhoto, &r.IsActive, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.CustomDays, err = unmarshalDays(days)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// UpsertRule creates or reactivates the rule for (quest, member) with the
// given schedule. The (quest, member) pair is unique, so reassignment updates
// in place.
func (s *QuestStore) UpsertRule(questID, memberID int64, rec model.Recurrence, customDays []time.Weekday, requiresPhoto bool) (*model.QuestRule, error) {
	days, err := marshalDays(customDays)
	if err != nil {
		return nil, err
	}

	_, err = s.db.Exec(
		`INSERT INTO quest_rules (quest_id, member_id, recurrence, custom_days, requires_photo, is_active)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT (quest_id, member_id) DO UPDATE SET
		   recurrence = excluded.recurrence,
		   custom_days = excluded.custom_days,
		   requires_photo = excluded.requires_photo,
		   is_active = 1,
		   updated_at = datetime('now')`,
		questID, memberID, rec, days, requiresPhoto,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert rule: %w", err)
	}
	return s.GetRule(questID, memberID)
}

// GetRule returns the rule for (quest, member) regardless of active flag, or
// nil when none exists.
func (s *QuestStore) GetRule(questID, memberID int64) (*model.QuestRule, error) {
	row := s.db.QueryRow(
		`SELECT `+ruleCols+` FROM quest_rules WHERE quest_id = ? AND member_id = ?`,
		questID, memberID,
	)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule: %w", err)
	}
	return r, nil
}

// GetActiveRule returns the active rule for (quest, member), or nil.
func (s *QuestStore) GetActiveRule(questID, memberID int64) (*model.QuestRule, error) {
	row := s.db.QueryRow(
		`SELECT `+ruleCols+` FROM quest_rules WHERE quest_id = ? AND member_id = ? AND is_active = 1`,
		questID, memberID,
	)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active rule: %w", err)
	}
	return r, nil
}

func (s *QuestStore) ListActiveRules(questID int64) ([]model.QuestRule, error) {
	rows, err := s.db.Query(
		`SELECT `+ruleCols+` FROM quest_rules WHERE quest_id = ? AND is_active = 1 ORDER BY member_id ASC`,
		questID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	defer rows.Close()

	var rules []model.QuestRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// DeactivateRule soft-deletes the rule for (quest, member) so it is excluded
// from all future materialization.
func (s *QuestStore) DeactivateRule(questID, memberID int64) error {
	_, err := s.db.Exec(
		`UPDATE quest_rules SET is_active = 0, updated_at = datetime('now') WHERE quest_id = ? AND member_id = ?`,
		questID, memberID,
	)
	if err != nil {
		return fmt.Errorf("deactivate rule: %w", err)
	}
	return nil
}
