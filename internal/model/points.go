package model

import "time"

// PointReason labels why a ledger entry was written.
type PointReason string

const (
	ReasonQuestComplete PointReason = "quest_complete"
	ReasonEventBonus    PointReason = "event_bonus"
	ReasonAdjustment    PointReason = "adjustment"
)

// PointEntry is one append-only ledger record. Reversal deletes the matching
// entries rather than writing negative offsets.
type PointEntry struct {
	ID          int64       `json:"id"`
	MemberID    int64       `json:"member_id"`
	Amount      int         `json:"amount"`
	Reason      PointReason `json:"reason"`
	Description string      `json:"description"`
	ReferenceID *int64      `json:"reference_id"`
	CreatedAt   time.Time   `json:"created_at"`
}
