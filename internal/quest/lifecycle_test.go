package quest

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calroth/questboard/internal/database"
	"github.com/calroth/questboard/internal/events"
	"github.com/calroth/questboard/internal/model"
	"github.com/calroth/questboard/internal/store"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type lcFixture struct {
	lc          *Lifecycle
	quests      *store.QuestStore
	assignments *store.AssignmentStore
	members     *store.MemberStore
	points      *store.PointStore
	bonuses     *store.BonusEventStore
	exclusions  *store.ExclusionStore
	proofDir    string
	kid         *model.Member
	parent      *model.Member
}

func setupLifecycle(t *testing.T) *lcFixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	f := &lcFixture{
		quests:      store.NewQuestStore(db),
		assignments: store.NewAssignmentStore(db),
		members:     store.NewMemberStore(db),
		points:      store.NewPointStore(db),
		bonuses:     store.NewBonusEventStore(db),
		exclusions:  store.NewExclusionStore(db),
		proofDir:    t.TempDir(),
	}

	f.kid, err = f.members.Create("Kid", model.RoleKid)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	f.parent, err = f.members.Create("Parent", model.RoleParent)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.lc = NewLifecycle(f.quests, f.assignments, f.members, f.points, f.bonuses,
		f.exclusions, events.NewBus(), f.proofDir, logger)
	return f
}

func (f *lcFixture) clockAt(t *testing.T, at time.Time) {
	t.Helper()
	f.lc.SetClock(func() time.Time { return at })
}

// newAssignment creates a quest, a rule and a pending assignment, returning
// the quest and assignment.
func (f *lcFixture) newAssignment(t *testing.T, title string, points int, rec model.Recurrence, day time.Time) (*model.Quest, *model.Assignment) {
	t.Helper()
	q, err := f.quests.Create(title, "", points, rec, nil, false)
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	if _, err := f.quests.UpsertRule(q.ID, f.kid.ID, rec, nil, false); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}
	if _, err := f.assignments.CreateIfMissing(q.ID, f.kid.ID, day); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	a, err := f.assignments.GetForSlot(q.ID, f.kid.ID, day)
	if err != nil || a == nil {
		t.Fatalf("get assignment: %v", err)
	}
	return q, a
}

var today = date(2030, 3, 4)

func TestCompleteTransitionsToCompleted(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today.Add(15*time.Hour))
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	got, err := f.lc.Complete(a.ID, f.kid.ID, nil, "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("completed_at not set")
	}

	// No points until a parent verifies.
	kid, _ := f.members.GetByID(f.kid.ID)
	if kid.PointsBalance != 0 {
		t.Errorf("balance = %d before verification, want 0", kid.PointsBalance)
	}
}

func TestCompleteRejectsWrongMember(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	_, err := f.lc.Complete(a.ID, f.parent.ID, nil, "")
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("err = %v, want ErrStateConflict", err)
	}
}

func TestCompleteRejectsNonPending(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	_, err := f.lc.Complete(a.ID, f.kid.ID, nil, "")
	if !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second complete err = %v, want ErrStateConflict", err)
	}
}

func TestCompleteUnknownAssignment(t *testing.T) {
	f := setupLifecycle(t)
	_, err := f.lc.Complete(9999, f.kid.ID, nil, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCompleteEnforcesPhotoProof(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)

	q, err := f.quests.Create("Clean room", "", 20, model.RecurrenceDaily, nil, true)
	if err != nil {
		t.Fatalf("create quest: %v", err)
	}
	if _, err := f.quests.UpsertRule(q.ID, f.kid.ID, model.RecurrenceDaily, nil, true); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}
	if _, err := f.assignments.CreateIfMissing(q.ID, f.kid.ID, today); err != nil {
		t.Fatalf("create assignment: %v", err)
	}
	a, err := f.assignments.GetForSlot(q.ID, f.kid.ID, today)
	if err != nil || a == nil {
		t.Fatalf("get assignment: %v", err)
	}

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); !errors.Is(err, ErrProofRequired) {
		t.Fatalf("err = %v, want ErrProofRequired", err)
	}

	got, err := f.lc.Complete(a.ID, f.kid.ID, []byte("jpeg bytes"), "room.jpg")
	if err != nil {
		t.Fatalf("complete with proof: %v", err)
	}
	if got.PhotoProof == "" {
		t.Fatal("photo proof name not recorded")
	}
	data, err := os.ReadFile(filepath.Join(f.proofDir, got.PhotoProof))
	if err != nil {
		t.Fatalf("read proof file: %v", err)
	}
	if string(data) != "jpeg bytes" {
		t.Error("proof file contents differ")
	}
}

func TestVerifyAwardsPoints(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today.Add(15*time.Hour))
	q, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := f.lc.Verify(a.ID, f.parent.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Status != model.StatusVerified {
		t.Errorf("status = %s, want verified", got.Status)
	}
	if got.VerifiedBy == nil || *got.VerifiedBy != f.parent.ID {
		t.Errorf("verified_by = %v, want %d", got.VerifiedBy, f.parent.ID)
	}

	kid, _ := f.members.GetByID(f.kid.ID)
	if kid.PointsBalance != q.Points {
		t.Errorf("balance = %d, want %d", kid.PointsBalance, q.Points)
	}
	if kid.LifetimeEarned != q.Points {
		t.Errorf("lifetime = %d, want %d", kid.LifetimeEarned, q.Points)
	}
	if kid.CurrentStreak != 1 {
		t.Errorf("streak = %d, want 1", kid.CurrentStreak)
	}

	entries, err := f.points.ListByReference(a.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("%d ledger entries, want 1", len(entries))
	}
	if entries[0].Amount != q.Points || entries[0].Reason != model.ReasonQuestComplete {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestVerifyRequiresCompleted(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if _, err := f.lc.Verify(a.ID, f.parent.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("verify pending err = %v, want ErrStateConflict", err)
	}
}

func TestVerifyCompoundsBonusMultipliers(t *testing.T) {
	f := setupLifecycle(t)
	now := today.Add(15 * time.Hour)
	f.clockAt(t, now)
	q, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	for _, title := range []string{"Spring Sprint", "Weekend Boost"} {
		if _, err := f.bonuses.Create(title, 1.25, now.Add(-time.Hour), now.Add(time.Hour)); err != nil {
			t.Fatalf("create bonus event: %v", err)
		}
	}

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.lc.Verify(a.ID, f.parent.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// 20 * 1.25 * 1.25 = 31.25, floored to 31: an 11 point bonus on top.
	entries, err := f.points.ListByReference(a.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("%d ledger entries, want 2", len(entries))
	}
	if entries[0].Reason != model.ReasonQuestComplete || entries[0].Amount != q.Points {
		t.Errorf("base entry = %+v", entries[0])
	}
	if entries[1].Reason != model.ReasonEventBonus || entries[1].Amount != 11 {
		t.Errorf("bonus entry = %+v", entries[1])
	}

	kid, _ := f.members.GetByID(f.kid.ID)
	if kid.PointsBalance != 31 {
		t.Errorf("balance = %d, want 31", kid.PointsBalance)
	}
}

func TestVerifyExpiredBonusDoesNotApply(t *testing.T) {
	f := setupLifecycle(t)
	now := today.Add(15 * time.Hour)
	f.clockAt(t, now)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if _, err := f.bonuses.Create("Last week", 2.0, now.Add(-48*time.Hour), now.Add(-24*time.Hour)); err != nil {
		t.Fatalf("create bonus event: %v", err)
	}

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.lc.Verify(a.ID, f.parent.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	kid, _ := f.members.GetByID(f.kid.ID)
	if kid.PointsBalance != 20 {
		t.Errorf("balance = %d, want 20", kid.PointsBalance)
	}
}

func TestVerifyDeactivatesOneTimeRule(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	q, a := f.newAssignment(t, "Organize closet", 30, model.RecurrenceOnce, today)

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.lc.Verify(a.ID, f.parent.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	rule, err := f.quests.GetActiveRule(q.ID, f.kid.ID)
	if err != nil {
		t.Fatalf("get active rule: %v", err)
	}
	if rule != nil {
		t.Error("one-time rule still active after verification")
	}
}

func TestUncompleteReversesAwardExactly(t *testing.T) {
	f := setupLifecycle(t)
	now := today.Add(15 * time.Hour)
	f.clockAt(t, now)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if _, err := f.bonuses.Create("Boost", 1.25, now.Add(-time.Hour), now.Add(time.Hour)); err != nil {
		t.Fatalf("create bonus event: %v", err)
	}

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.lc.Verify(a.ID, f.parent.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	kid, _ := f.members.GetByID(f.kid.ID)
	awarded := kid.PointsBalance
	if awarded != 25 {
		t.Fatalf("awarded = %d, want 25", awarded)
	}

	got, err := f.lc.Uncomplete(a.ID)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.CompletedAt != nil || got.VerifiedAt != nil || got.VerifiedBy != nil {
		t.Error("completion stamps not cleared")
	}

	entries, err := f.points.ListByReference(a.ID)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d ledger entries remain, want 0", len(entries))
	}

	kid, _ = f.members.GetByID(f.kid.ID)
	if kid.PointsBalance != 0 {
		t.Errorf("balance = %d after reversal, want 0", kid.PointsBalance)
	}
	// Lifetime earned stays: it gates unlocks and never goes down.
	if kid.LifetimeEarned != awarded {
		t.Errorf("lifetime = %d, want %d", kid.LifetimeEarned, awarded)
	}
}

func TestUncompleteBeforeVerification(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	got, err := f.lc.Uncomplete(a.ID)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}

	kid, _ := f.members.GetByID(f.kid.ID)
	if kid.PointsBalance != 0 {
		t.Errorf("balance = %d, want 0", kid.PointsBalance)
	}
}

func TestStreakContinuity(t *testing.T) {
	f := setupLifecycle(t)

	verifyOn := func(day time.Time, title string) {
		t.Helper()
		f.clockAt(t, day.Add(18*time.Hour))
		_, a := f.newAssignment(t, title, 10, model.RecurrenceDaily, day)
		if _, err := f.lc.Complete(a.ID, f.kid.ID, nil, ""); err != nil {
			t.Fatalf("complete %s: %v", title, err)
		}
		if _, err := f.lc.Verify(a.ID, f.parent.ID); err != nil {
			t.Fatalf("verify %s: %v", title, err)
		}
	}

	streak := func() (int, int) {
		t.Helper()
		kid, err := f.members.GetByID(f.kid.ID)
		if err != nil {
			t.Fatalf("get member: %v", err)
		}
		return kid.CurrentStreak, kid.LongestStreak
	}

	verifyOn(today, "Day one")
	if cur, _ := streak(); cur != 1 {
		t.Fatalf("streak = %d, want 1", cur)
	}

	// Second verification the same day leaves the streak alone.
	verifyOn(today, "Day one again")
	if cur, _ := streak(); cur != 1 {
		t.Fatalf("streak after same-day verify = %d, want 1", cur)
	}

	verifyOn(today.AddDate(0, 0, 1), "Day two")
	verifyOn(today.AddDate(0, 0, 2), "Day three")
	if cur, _ := streak(); cur != 3 {
		t.Fatalf("streak = %d, want 3", cur)
	}

	// A gap resets to one but the longest streak is kept.
	verifyOn(today.AddDate(0, 0, 5), "After gap")
	cur, longest := streak()
	if cur != 1 {
		t.Errorf("streak after gap = %d, want 1", cur)
	}
	if longest != 3 {
		t.Errorf("longest streak = %d, want 3", longest)
	}
}

func TestSkipOnlyPending(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	_, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	got, err := f.lc.Skip(a.ID)
	if err != nil {
		t.Fatalf("skip: %v", err)
	}
	if got.Status != model.StatusSkipped {
		t.Errorf("status = %s, want skipped", got.Status)
	}

	if _, err := f.lc.Skip(a.ID); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("second skip err = %v, want ErrStateConflict", err)
	}
}

func TestRemoveRecurringWritesExclusion(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	q, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	if err := f.lc.Remove(a.ID, false); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if got, _ := f.assignments.GetByID(a.ID); got != nil {
		t.Error("assignment row survived removal")
	}
	excluded, err := f.exclusions.Contains(q.ID, f.kid.ID, today)
	if err != nil {
		t.Fatalf("check exclusion: %v", err)
	}
	if !excluded {
		t.Error("no exclusion recorded for removed recurring slot")
	}
}

func TestRemoveOneTimeSkipsExclusion(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	q, a := f.newAssignment(t, "Organize closet", 30, model.RecurrenceOnce, today)

	if err := f.lc.Remove(a.ID, false); err != nil {
		t.Fatalf("remove: %v", err)
	}

	excluded, err := f.exclusions.Contains(q.ID, f.kid.ID, today)
	if err != nil {
		t.Fatalf("check exclusion: %v", err)
	}
	if excluded {
		t.Error("exclusion recorded for a one-time slot")
	}
}

func TestRemoveAllFuture(t *testing.T) {
	f := setupLifecycle(t)
	f.clockAt(t, today)
	q, a := f.newAssignment(t, "Dishes", 20, model.RecurrenceDaily, today)

	for i := 1; i <= 3; i++ {
		if _, err := f.assignments.CreateIfMissing(q.ID, f.kid.ID, today.AddDate(0, 0, i)); err != nil {
			t.Fatalf("create future assignment: %v", err)
		}
	}
	// A row behind the removal date is untouched.
	if _, err := f.assignments.CreateIfMissing(q.ID, f.kid.ID, today.AddDate(0, 0, -1)); err != nil {
		t.Fatalf("create past assignment: %v", err)
	}

	if err := f.lc.Remove(a.ID, true); err != nil {
		t.Fatalf("remove all future: %v", err)
	}

	remaining, err := f.assignments.ListForQuest(q.ID)
	if err != nil {
		t.Fatalf("list for quest: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("%d assignments remain, want 1", len(remaining))
	}
	if !remaining[0].Date.Equal(today.AddDate(0, 0, -1)) {
		t.Errorf("surviving row dated %v, want the past one", remaining[0].Date)
	}

	for i := 0; i <= 3; i++ {
		excluded, err := f.exclusions.Contains(q.ID, f.kid.ID, today.AddDate(0, 0, i))
		if err != nil {
			t.Fatalf("check exclusion: %v", err)
		}
		if !excluded {
			t.Errorf("day +%d not excluded", i)
		}
	}
}
