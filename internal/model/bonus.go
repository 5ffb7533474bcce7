package model

import "time"

// BonusEvent is a seasonal point-multiplier window. Overlapping active events
// compound multiplicatively at verify time.
type BonusEvent struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Multiplier float64   `json:"multiplier"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
}
