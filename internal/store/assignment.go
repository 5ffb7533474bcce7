package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/calroth/questboard/internal/model"
)

type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

const assignmentCols = `id, quest_id, member_id, date, status, completed_at, verified_at, verified_by, photo_proof, created_at, updated_at`

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.Assignment, error) {
	var a model.Assignment
	var date string
	var completedAt, verifiedAt sql.NullTime
	var verifiedBy sql.NullInt64
	var photo sql.NullString

	err := scanner.Scan(
		&a.ID, &a.QuestID, &a.MemberID, &date, &a.Status,
		&completedAt, &verifiedAt, &verifiedBy, &photo,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.Date, err = time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("parse assignment date: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		a.CompletedAt = &t
	}
	if verifiedAt.Valid {
		t := verifiedAt.Time
		a.VerifiedAt = &t
	}
	if verifiedBy.Valid {
		a.VerifiedBy = &verifiedBy.Int64
	}
	if photo.Valid {
		a.PhotoProof = photo.String
	}
	return &a, nil
}

// CreateIfMissing inserts a pending assignment for the slot and reports
// whether a row was created. A conflicting row means the slot is already
// materialized, which is success, not an error — materialization must be
// idempotent.
func (s *AssignmentStore) CreateIfMissing(questID, memberID int64, date time.Time) (bool, error) {
	result, err := s.db.Exec(
		`INSERT INTO assignments (quest_id, member_id, date, status) VALUES (?, ?, ?, ?)
		 ON CONFLICT (quest_id, member_id, date) DO NOTHING`,
		questID, memberID, date.Format(dateLayout), model.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("insert assignment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *AssignmentStore) GetByID(id int64) (*model.Assignment, error) {
	row := s.db.QueryRow(`SELECT `+assignmentCols+` FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

// GetForSlot returns the assignment for (quest, member, date), or nil.
func (s *AssignmentStore) GetForSlot(questID, memberID int64, date time.Time) (*model.Assignment, error) {
	row := s.db.QueryRow(
		`SELECT `+assignmentCols+` FROM assignments WHERE quest_id = ? AND member_id = ? AND date = ?`,
		questID, memberID, date.Format(dateLayout),
	)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment for slot: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) ListByDateRange(start, end time.Time) ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM assignments WHERE date >= ? AND date <= ? ORDER BY date ASC, quest_id ASC, member_id ASC`,
		start.Format(dateLayout), end.Format(dateLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments by range: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListForQuest returns every assignment ever materialized for a quest.
func (s *AssignmentStore) ListForQuest(questID int64) ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM assignments WHERE quest_id = ? ORDER BY date ASC, member_id ASC`,
		questID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments for quest: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListFuturePending returns pending assignments for (quest, member) dated on
// or after from, used by "remove this and all future" deletions.
func (s *AssignmentStore) ListFuturePending(questID, memberID int64, from time.Time) ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM assignments
		 WHERE quest_id = ? AND member_id = ? AND date >= ? AND status = ?
		 ORDER BY date ASC`,
		questID, memberID, from.Format(dateLayout), model.StatusPending,
	)
	if err != nil {
		return nil, fmt.Errorf("list future pending: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

func collectAssignments(rows *sql.Rows) ([]model.Assignment, error) {
	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

// HasAnyForRule reports whether (quest, member) has ever materialized an
// assignment on any date. Used to exhaust one-time rules.
func (s *AssignmentStore) HasAnyForRule(questID, memberID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assignments WHERE quest_id = ? AND member_id = ?`,
		questID, memberID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count assignments for rule: %w", err)
	}
	return n > 0, nil
}

// DistinctMemberIDs returns every member that has ever held an assignment for
// the quest. This feeds the legacy fallback for quests without rules.
func (s *AssignmentStore) DistinctMemberIDs(questID int64) ([]int64, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT member_id FROM assignments WHERE quest_id = ? ORDER BY member_id ASC`,
		questID,
	)
	if err != nil {
		return nil, fmt.Errorf("distinct member ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *AssignmentStore) MarkCompleted(id int64, at time.Time, photoProof string) error {
	var photo any
	if photoProof != "" {
		photo = photoProof
	}
	_, err := s.db.Exec(
		`UPDATE assignments SET status = ?, completed_at = ?, photo_proof = ?, updated_at = datetime('now') WHERE id = ?`,
		model.StatusCompleted, at.UTC(), photo, id,
	)
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

func (s *AssignmentStore) MarkVerified(id, verifierID int64, at time.Time) error {
	_, err := s.db.Exec(
		`UPDATE assignments SET status = ?, verified_at = ?, verified_by = ?, updated_at = datetime('now') WHERE id = ?`,
		model.StatusVerified, at.UTC(), verifierID, id,
	)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (s *AssignmentStore) MarkSkipped(id int64) error {
	_, err := s.db.Exec(
		`UPDATE assignments SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		model.StatusSkipped, id,
	)
	if err != nil {
		return fmt.Errorf("mark skipped: %w", err)
	}
	return nil
}

// ResetPending returns an assignment to pending, clearing completion and
// verification stamps. Used by the uncomplete reversal.
func (s *AssignmentStore) ResetPending(id int64) error {
	_, err := s.db.Exec(
		`UPDATE assignments
		 SET status = ?, completed_at = NULL, verified_at = NULL, verified_by = NULL, updated_at = datetime('now')
		 WHERE id = ?`,
		model.StatusPending, id,
	)
	if err != nil {
		return fmt.Errorf("reset pending: %w", err)
	}
	return nil
}

func (s *AssignmentStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
