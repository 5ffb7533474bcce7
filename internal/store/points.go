package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/calroth/questboard/internal/model"
)

// PointStore is the append-only ledger. Reversal deletes the entries
// referencing an assignment instead of writing negative offsets.
type PointStore struct {
	db *sql.DB
}

func NewPointStore(db *sql.DB) *PointStore {
	return &PointStore{db: db}
}

const entryCols = `id, member_id, amount, reason, description, reference_id, created_at`

func scanEntry(scanner interface{ Scan(...any) error }) (*model.PointEntry, error) {
	var e model.PointEntry
	var ref sql.NullInt64

	err := scanner.Scan(&e.ID, &e.MemberID, &e.Amount, &e.Reason, &e.Description, &ref, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		e.ReferenceID = &ref.Int64
	}
	return &e, nil
}

func (s *PointStore) Append(memberID int64, amount int, reason model.PointReason, description string, referenceID *int64) (*model.PointEntry, error) {
	var ref sql.NullInt64
	if referenceID != nil {
		ref = sql.NullInt64{Int64: *referenceID, Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO point_entries (member_id, amount, reason, description, reference_id) VALUES (?, ?, ?, ?, ?)`,
		memberID, amount, reason, description, ref,
	)
	if err != nil {
		return nil, fmt.Errorf("insert point entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(`SELECT `+entryCols+` FROM point_entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if err != nil {
		return nil, fmt.Errorf("get point entry: %w", err)
	}
	return e, nil
}

// ListByReference returns the entries referencing an assignment, restricted
// to the given reasons when any are supplied.
func (s *PointStore) ListByReference(referenceID int64, reasons ...model.PointReason) ([]model.PointEntry, error) {
	query := `SELECT ` + entryCols + ` FROM point_entries WHERE reference_id = ?`
	args := []any{referenceID}
	if len(reasons) > 0 {
		query += ` AND reason IN (?` + strings.Repeat(", ?", len(reasons)-1) + `)`
		for _, r := range reasons {
			args = append(args, r)
		}
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries by reference: %w", err)
	}
	defer rows.Close()

	var entries []model.PointEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan point entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteByReference removes the entries referencing an assignment, restricted
// to the given reasons when any are supplied, and returns the number deleted.
func (s *PointStore) DeleteByReference(referenceID int64, reasons ...model.PointReason) (int64, error) {
	query := `DELETE FROM point_entries WHERE reference_id = ?`
	args := []any{referenceID}
	if len(reasons) > 0 {
		query += ` AND reason IN (?` + strings.Repeat(", ?", len(reasons)-1) + `)`
		for _, r := range reasons {
			args = append(args, r)
		}
	}

	result, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete entries by reference: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// SumForMember totals every ledger entry for a member.
func (s *PointStore) SumForMember(memberID int64) (int, error) {
	var sum int
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM point_entries WHERE member_id = ?`,
		memberID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum entries: %w", err)
	}
	return sum, nil
}
