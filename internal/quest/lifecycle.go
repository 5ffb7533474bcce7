// Package quest implements the assignment lifecycle: the state machine a
// materialized assignment moves through from pending to completion,
// verification, reversal or skip, together with its point and streak side
// effects.
package quest

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calroth/questboard/internal/events"
	"github.com/calroth/questboard/internal/model"
	"github.com/calroth/questboard/internal/schedule"
	"github.com/calroth/questboard/internal/store"
)

var (
	// ErrNotFound means the assignment (or its quest) does not exist.
	ErrNotFound = errors.New("assignment not found")

	// ErrStateConflict means the transition is not valid from the
	// assignment's current state, or the caller is not the assigned member.
	ErrStateConflict = errors.New("invalid assignment state for this action")

	// ErrProofRequired means the quest demands photo proof and none was
	// attached. Distinct from ErrStateConflict so callers can render a
	// specific message.
	ErrProofRequired = errors.New("photo proof required")
)

// Lifecycle drives assignment state transitions. All operations are short
// sequential store writes; idempotence and uniqueness come from the store's
// constraints, not from in-process locking.
type Lifecycle struct {
	quests      *store.QuestStore
	assignments *store.AssignmentStore
	members     *store.MemberStore
	points      *store.PointStore
	bonuses     *store.BonusEventStore
	exclusions  *store.ExclusionStore
	bus         *events.Bus
	proofDir    string
	logger      *slog.Logger
	now         func() time.Time
}

func NewLifecycle(quests *store.QuestStore, assignments *store.AssignmentStore, members *store.MemberStore, points *store.PointStore, bonuses *store.BonusEventStore, exclusions *store.ExclusionStore, bus *events.Bus, proofDir string, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		quests:      quests,
		assignments: assignments,
		members:     members,
		points:      points,
		bonuses:     bonuses,
		exclusions:  exclusions,
		bus:         bus,
		proofDir:    proofDir,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (l *Lifecycle) SetClock(now func() time.Time) {
	l.now = now
}

// effectiveRequiresPhoto resolves the proof requirement: the member's active
// rule overrides the quest default.
func (l *Lifecycle) effectiveRequiresPhoto(quest *model.Quest, memberID int64) (bool, error) {
	rule, err := l.quests.GetActiveRule(quest.ID, memberID)
	if err != nil {
		return false, err
	}
	if rule != nil {
		return rule.RequiresPhoto, nil
	}
	return quest.RequiresPhoto, nil
}

// Complete moves a pending assignment to completed. Only the assigned member
// may complete, and when the effective schedule requires photo proof a
// non-empty proof is mandatory. No points are awarded until verification.
func (l *Lifecycle) Complete(assignmentID, memberID int64, proof []byte, filename string) (*model.Assignment, error) {
	a, err := l.assignments.GetByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.MemberID != memberID {
		return nil, fmt.Errorf("%w: assignment belongs to another member", ErrStateConflict)
	}
	if a.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: complete requires pending, have %s", ErrStateConflict, a.Status)
	}

	quest, err := l.quests.GetByID(a.QuestID)
	if err != nil {
		return nil, err
	}
	if quest == nil {
		return nil, ErrNotFound
	}

	required, err := l.effectiveRequiresPhoto(quest, memberID)
	if err != nil {
		return nil, err
	}
	if required && len(proof) == 0 {
		return nil, ErrProofRequired
	}

	var proofName string
	if len(proof) > 0 {
		proofName, err = l.saveProof(proof, filename)
		if err != nil {
			return nil, err
		}
	}

	if err := l.assignments.MarkCompleted(a.ID, l.now(), proofName); err != nil {
		return nil, err
	}

	l.bus.AssignmentChanged(a.ID, a.QuestID, a.MemberID, string(model.StatusCompleted))
	l.logger.Info("assignment completed", "assignment_id", a.ID, "member_id", memberID)

	return l.assignments.GetByID(a.ID)
}

func (l *Lifecycle) saveProof(proof []byte, filename string) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".jpg"
	}
	name := uuid.New().String() + ext

	if l.proofDir != "" {
		if err := os.MkdirAll(l.proofDir, 0o755); err != nil {
			return "", fmt.Errorf("create proof dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(l.proofDir, name), proof, 0o644); err != nil {
			return "", fmt.Errorf("write proof: %w", err)
		}
	}
	return name, nil
}

// Verify moves a completed assignment to verified and performs the award
// side effects: one base ledger entry, an optional separately-labeled bonus
// entry when seasonal multipliers are active, the member's balance and
// streak, and exhaustion of one-time rules.
func (l *Lifecycle) Verify(assignmentID, approverID int64) (*model.Assignment, error) {
	a, err := l.assignments.GetByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: verify requires completed, have %s", ErrStateConflict, a.Status)
	}

	quest, err := l.quests.GetByID(a.QuestID)
	if err != nil {
		return nil, err
	}
	if quest == nil {
		return nil, ErrNotFound
	}

	now := l.now()

	active, err := l.bonuses.ActiveAt(now)
	if err != nil {
		return nil, err
	}
	multiplier := 1.0
	titles := make([]string, 0, len(active))
	for _, ev := range active {
		multiplier *= ev.Multiplier
		titles = append(titles, ev.Title)
	}

	base := quest.Points
	total := base
	if _, err := l.points.Append(a.MemberID, base, model.ReasonQuestComplete, "Completed: "+quest.Title, &a.ID); err != nil {
		return nil, err
	}

	if multiplier > 1.0 {
		bonus := int(float64(base)*multiplier) - base
		if bonus > 0 {
			desc := fmt.Sprintf("Event bonus (%s): %s", strings.Join(titles, ", "), quest.Title)
			if _, err := l.points.Append(a.MemberID, bonus, model.ReasonEventBonus, desc, &a.ID); err != nil {
				return nil, err
			}
			total += bonus
		}
	}

	if err := l.members.AddPoints(a.MemberID, total); err != nil {
		return nil, err
	}

	streak, err := l.updateStreak(a.MemberID, now)
	if err != nil {
		return nil, err
	}

	if err := l.exhaustOnceRule(quest, a.MemberID); err != nil {
		return nil, err
	}

	if err := l.assignments.MarkVerified(a.ID, approverID, now); err != nil {
		return nil, err
	}

	l.bus.PointsAwarded(a.MemberID, total, string(model.ReasonQuestComplete))
	l.bus.StreakUpdated(a.MemberID, streak)
	l.bus.AssignmentChanged(a.ID, a.QuestID, a.MemberID, string(model.StatusVerified))
	l.logger.Info("assignment verified",
		"assignment_id", a.ID, "member_id", a.MemberID, "points", total, "streak", streak)

	return l.assignments.GetByID(a.ID)
}

// updateStreak applies the streak rule: a second verification on the same day
// changes nothing, a verification the day after the last one extends the
// streak, anything else restarts it at one.
func (l *Lifecycle) updateStreak(memberID int64, now time.Time) (int, error) {
	member, err := l.members.GetByID(memberID)
	if err != nil {
		return 0, err
	}
	if member == nil {
		return 0, ErrNotFound
	}

	today := schedule.DateOf(now)
	current := member.CurrentStreak

	switch {
	case member.LastStreakDate != nil && schedule.DateOf(*member.LastStreakDate).Equal(today):
		return current, nil
	case member.LastStreakDate != nil && schedule.DaysBetween(*member.LastStreakDate, today) == 1:
		current++
	default:
		current = 1
	}

	longest := member.LongestStreak
	if current > longest {
		longest = current
	}

	if err := l.members.UpdateStreak(memberID, current, longest, today); err != nil {
		return 0, err
	}
	return current, nil
}

// exhaustOnceRule deactivates the rule owning a verified one-time assignment
// so it never refires.
func (l *Lifecycle) exhaustOnceRule(quest *model.Quest, memberID int64) error {
	rule, err := l.quests.GetActiveRule(quest.ID, memberID)
	if err != nil {
		return err
	}
	rec := quest.Recurrence
	if rule != nil {
		rec = rule.Recurrence
	}
	if rec.Repeats() || rule == nil {
		return nil
	}
	return l.quests.DeactivateRule(quest.ID, memberID)
}

// Uncomplete reverses a completed or verified assignment: the award entries
// referencing it are deleted, the balance drops by their sum (clamped at
// zero), and the row returns to pending. Lifetime earned is deliberately
// left alone — it gates permanent unlocks and must stay monotonic.
func (l *Lifecycle) Uncomplete(assignmentID int64) (*model.Assignment, error) {
	a, err := l.assignments.GetByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status != model.StatusCompleted && a.Status != model.StatusVerified {
		return nil, fmt.Errorf("%w: uncomplete requires completed or verified, have %s", ErrStateConflict, a.Status)
	}

	entries, err := l.points.ListByReference(a.ID, model.ReasonQuestComplete, model.ReasonEventBonus)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, e := range entries {
		total += e.Amount
	}

	if _, err := l.points.DeleteByReference(a.ID, model.ReasonQuestComplete, model.ReasonEventBonus); err != nil {
		return nil, err
	}
	if total > 0 {
		if err := l.members.DeductPoints(a.MemberID, total); err != nil {
			return nil, err
		}
	}

	if err := l.assignments.ResetPending(a.ID); err != nil {
		return nil, err
	}

	l.bus.AssignmentChanged(a.ID, a.QuestID, a.MemberID, string(model.StatusPending))
	l.logger.Info("assignment reversed", "assignment_id", a.ID, "points_removed", total)

	return l.assignments.GetByID(a.ID)
}

// Skip moves a pending assignment to skipped. Terminal, no point or streak
// effects.
func (l *Lifecycle) Skip(assignmentID int64) (*model.Assignment, error) {
	a, err := l.assignments.GetByID(assignmentID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: skip requires pending, have %s", ErrStateConflict, a.Status)
	}

	if err := l.assignments.MarkSkipped(a.ID); err != nil {
		return nil, err
	}

	l.bus.AssignmentChanged(a.ID, a.QuestID, a.MemberID, string(model.StatusSkipped))

	return l.assignments.GetByID(a.ID)
}

// Remove deletes an assignment at the user's request. For repeating
// schedules the slot is recorded as an exclusion first so materialization
// never recreates it. With allFuture set, every still-pending assignment for
// the same (quest, member) from this date onward is excluded and removed.
func (l *Lifecycle) Remove(assignmentID int64, allFuture bool) error {
	a, err := l.assignments.GetByID(assignmentID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrNotFound
	}

	quest, err := l.quests.GetByID(a.QuestID)
	if err != nil {
		return err
	}
	if quest == nil {
		return ErrNotFound
	}

	rule, err := l.quests.GetActiveRule(a.QuestID, a.MemberID)
	if err != nil {
		return err
	}
	rec := quest.Recurrence
	if rule != nil {
		rec = rule.Recurrence
	}
	repeating := rec.Repeats()

	if !allFuture {
		if repeating {
			if err := l.exclusions.Add(a.QuestID, a.MemberID, a.Date); err != nil {
				return err
			}
		}
		return l.assignments.Delete(a.ID)
	}

	future, err := l.assignments.ListFuturePending(a.QuestID, a.MemberID, a.Date)
	if err != nil {
		return err
	}
	for _, f := range future {
		if repeating {
			if err := l.exclusions.Add(f.QuestID, f.MemberID, f.Date); err != nil {
				return err
			}
		}
		if err := l.assignments.Delete(f.ID); err != nil {
			return err
		}
	}

	// The target itself may not have been pending; make sure it is gone.
	if a.Status != model.StatusPending {
		if repeating {
			if err := l.exclusions.Add(a.QuestID, a.MemberID, a.Date); err != nil {
				return err
			}
		}
		return l.assignments.Delete(a.ID)
	}
	return nil
}
