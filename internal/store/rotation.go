package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/calroth/questboard/internal/model"
)

type RotationStore struct {
	db *sql.DB
}

func NewRotationStore(db *sql.DB) *RotationStore {
	return &RotationStore{db: db}
}

const rotationCols = `id, quest_id, member_ids, cadence, current_index, last_advanced, created_at, updated_at`

func scanRotation(scanner interface{ Scan(...any) error }) (*model.Rotation, error) {
	var r model.Rotation
	var memberIDs string
	var lastAdvanced sql.NullTime

	err := scanner.Scan(
		&r.ID, &r.QuestID, &memberIDs, &r.Cadence, &r.CurrentIndex,
		&lastAdvanced, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(memberIDs), &r.MemberIDs); err != nil {
		return nil, fmt.Errorf("unmarshal member ids: %w", err)
	}
	if lastAdvanced.Valid {
		t := lastAdvanced.Time
		r.LastAdvanced = &t
	}
	return &r, nil
}

// GetByQuest returns the rotation attached to a quest, or nil when the quest
// has none.
func (s *RotationStore) GetByQuest(questID int64) (*model.Rotation, error) {
	row := s.db.QueryRow(`SELECT `+rotationCols+` FROM rotations WHERE quest_id = ?`, questID)
	r, err := scanRotation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rotation: %w", err)
	}
	return r, nil
}

// Save creates or replaces the rotation for a quest. The current index is
// preserved when still in range for the new member list, otherwise reset.
func (s *RotationStore) Save(questID int64, memberIDs []int64, cadence model.Cadence) (*model.Rotation, error) {
	if len(memberIDs) == 0 {
		return nil, fmt.Errorf("save rotation: empty member list")
	}
	ids, err := json.Marshal(memberIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal member ids: %w", err)
	}

	existing, err := s.GetByQuest(questID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		_, err = s.db.Exec(
			`INSERT INTO rotations (quest_id, member_ids, cadence, current_index, last_advanced) VALUES (?, ?, ?, 0, datetime('now'))`,
			questID, string(ids), cadence,
		)
		if err != nil {
			return nil, fmt.Errorf("insert rotation: %w", err)
		}
		return s.GetByQuest(questID)
	}

	index := existing.CurrentIndex
	if index >= len(memberIDs) {
		index = 0
	}
	_, err = s.db.Exec(
		`UPDATE rotations SET member_ids = ?, cadence = ?, current_index = ?, updated_at = datetime('now') WHERE quest_id = ?`,
		string(ids), cadence, index, questID,
	)
	if err != nil {
		return nil, fmt.Errorf("update rotation: %w", err)
	}
	return s.GetByQuest(questID)
}

// UpdateState persists the index and last-advanced timestamp after an
// advancement. Only the commit pass calls this.
func (s *RotationStore) UpdateState(r *model.Rotation) error {
	var lastAdvanced any
	if r.LastAdvanced != nil {
		lastAdvanced = r.LastAdvanced.UTC()
	}
	_, err := s.db.Exec(
		`UPDATE rotations SET current_index = ?, last_advanced = ?, updated_at = datetime('now') WHERE id = ?`,
		r.CurrentIndex, lastAdvanced, r.ID,
	)
	if err != nil {
		return fmt.Errorf("update rotation state: %w", err)
	}
	return nil
}

func (s *RotationStore) Delete(questID int64) error {
	_, err := s.db.Exec(`DELETE FROM rotations WHERE quest_id = ?`, questID)
	if err != nil {
		return fmt.Errorf("delete rotation: %w", err)
	}
	return nil
}
