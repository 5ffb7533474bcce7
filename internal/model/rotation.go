package model

import "time"

// Cadence is the period on which a rotation hands the quest to the next member.
type Cadence string

const (
	CadenceDaily       Cadence = "daily"
	CadenceWeekly      Cadence = "weekly"
	CadenceFortnightly Cadence = "fortnightly"
	CadenceMonthly     Cadence = "monthly"
)

// Rotation is the round-robin state for a quest shared by several members.
// At most one rotation exists per quest. CurrentIndex always satisfies
// 0 <= CurrentIndex < len(MemberIDs).
type Rotation struct {
	ID           int64      `json:"id"`
	QuestID      int64      `json:"quest_id"`
	MemberIDs    []int64    `json:"member_ids"`
	Cadence      Cadence    `json:"cadence"`
	CurrentIndex int        `json:"current_index"`
	LastAdvanced *time.Time `json:"last_advanced"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
