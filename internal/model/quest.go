package model

import "time"

// Recurrence describes how often a quest produces assignments.
type Recurrence string

const (
	RecurrenceOnce        Recurrence = "once"
	RecurrenceDaily       Recurrence = "daily"
	RecurrenceWeekly      Recurrence = "weekly"
	RecurrenceFortnightly Recurrence = "fortnightly"
	RecurrenceCustom      Recurrence = "custom"
)

// Repeats reports whether the recurrence produces more than one occurrence.
func (r Recurrence) Repeats() bool {
	return r != RecurrenceOnce
}

type Quest struct {
	ID            int64          `json:"id"`
	Title         string         `json:"title"`
	Description   string         `json:"description"`
	Points        int            `json:"points"`
	Recurrence    Recurrence     `json:"recurrence"`
	CustomDays    []time.Weekday `json:"custom_days"`
	RequiresPhoto bool           `json:"requires_photo"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// QuestRule is a per-member override of a quest's schedule and proof
// requirement. At most one rule exists per (quest, member); unassignment
// deactivates the rule rather than deleting it.
type QuestRule struct {
	ID            int64          `json:"id"`
	QuestID       int64          `json:"quest_id"`
	MemberID      int64          `json:"member_id"`
	Recurrence    Recurrence     `json:"recurrence"`
	CustomDays    []time.Weekday `json:"custom_days"`
	RequiresPhoto bool           `json:"requires_photo"`
	IsActive      bool           `json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
