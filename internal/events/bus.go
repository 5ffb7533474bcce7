package events

import "sync"

// Event type tags published by the scheduler and lifecycle.
const (
	TypePointsAwarded     = "points_awarded"
	TypeStreakUpdated     = "streak_updated"
	TypeAssignmentChanged = "assignment_changed"
)

// Event is one logical fact emitted by the core for downstream consumers
// (websocket clients, push delivery, future achievement evaluation).
type Event struct {
	Type     string         `json:"type"`
	MemberID int64          `json:"member_id,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

const subscriberBuffer = 32

// Bus is an in-process publish/subscribe fan-out. Publish never blocks: a
// subscriber that falls behind loses events rather than stalling the
// scheduler.
type Bus struct {
	mu   sync.RWMutex
	subs []chan Event
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe returns a channel receiving every subsequent event.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers the event to all subscribers, dropping it for any whose
// buffer is full.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// PointsAwarded publishes a point-award fact.
func (b *Bus) PointsAwarded(memberID int64, amount int, reason string) {
	b.Publish(Event{
		Type:     TypePointsAwarded,
		MemberID: memberID,
		Extra:    map[string]any{"amount": amount, "reason": reason},
	})
}

// StreakUpdated publishes a streak-change fact.
func (b *Bus) StreakUpdated(memberID int64, streak int) {
	b.Publish(Event{
		Type:     TypeStreakUpdated,
		MemberID: memberID,
		Extra:    map[string]any{"streak": streak},
	})
}

// AssignmentChanged publishes an assignment status transition.
func (b *Bus) AssignmentChanged(assignmentID, questID, memberID int64, status string) {
	b.Publish(Event{
		Type:     TypeAssignmentChanged,
		MemberID: memberID,
		Extra:    map[string]any{"assignment_id": assignmentID, "quest_id": questID, "status": status},
	})
}
