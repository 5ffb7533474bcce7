package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleKid    Role = "kid"
)

type Member struct {
	ID             int64      `json:"id"`
	Name           string     `json:"name"`
	Role           Role       `json:"role"`
	HasPIN         bool       `json:"has_pin"`
	PointsBalance  int        `json:"points_balance"`
	LifetimeEarned int        `json:"lifetime_earned"`
	CurrentStreak  int        `json:"current_streak"`
	LongestStreak  int        `json:"longest_streak"`
	LastStreakDate *time.Time `json:"last_streak_date"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
