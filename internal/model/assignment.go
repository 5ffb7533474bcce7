package model

import "time"

type AssignmentStatus string

const (
	StatusPending   AssignmentStatus = "pending"
	StatusCompleted AssignmentStatus = "completed"
	StatusVerified  AssignmentStatus = "verified"
	StatusSkipped   AssignmentStatus = "skipped"
)

// Assignment is a materialized, dated instance of a quest owed by one member.
// The (quest, member, date) triple is unique.
type Assignment struct {
	ID          int64            `json:"id"`
	QuestID     int64            `json:"quest_id"`
	MemberID    int64            `json:"member_id"`
	Date        time.Time        `json:"date"`
	Status      AssignmentStatus `json:"status"`
	CompletedAt *time.Time       `json:"completed_at"`
	VerifiedAt  *time.Time       `json:"verified_at"`
	VerifiedBy  *int64           `json:"verified_by"`
	PhotoProof  string           `json:"photo_proof,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Exclusion marks a (quest, member, date) slot the user intentionally removed
// so materialization never recreates it.
type Exclusion struct {
	ID        int64     `json:"id"`
	QuestID   int64     `json:"quest_id"`
	MemberID  int64     `json:"member_id"`
	Date      time.Time `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}
