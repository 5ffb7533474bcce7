package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/calroth/questboard/internal/model"
	"github.com/calroth/questboard/internal/store"
)

// ErrQuestNotFound is returned when an operation names an unknown quest.
var ErrQuestNotFound = errors.New("quest not found")

// Materializer turns the quest catalog, rules, rotations and exclusions into
// concrete assignment rows. ProjectWeek is the read-side entry point used by
// calendar views: it creates missing rows but never touches rotation state.
// Commit is the once-daily write-side pass that may advance rotations.
type Materializer struct {
	quests      *store.QuestStore
	rotations   *store.RotationStore
	exclusions  *store.ExclusionStore
	assignments *store.AssignmentStore
	logger      *slog.Logger
	now         func() time.Time
}

func NewMaterializer(quests *store.QuestStore, rotations *store.RotationStore, exclusions *store.ExclusionStore, assignments *store.AssignmentStore, logger *slog.Logger) *Materializer {
	return &Materializer{
		quests:      quests,
		rotations:   rotations,
		exclusions:  exclusions,
		assignments: assignments,
		logger:      logger,
		now:         time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (m *Materializer) SetClock(now func() time.Time) {
	m.now = now
}

// effectiveRules resolves the rules that drive materialization for a quest.
// Explicit active rules always win. A quest without rules falls back to its
// own recurrence applied to the members that historically held assignments,
// or to the rotation's member list when there is no history: the quest's own
// schedule fields act as one implicit rule per member. Synthesized rules are
// recognizable by ID zero.
func (m *Materializer) effectiveRules(quest *model.Quest) ([]model.QuestRule, error) {
	rules, err := m.quests.ListActiveRules(quest.ID)
	if err != nil {
		return nil, err
	}
	if len(rules) > 0 {
		return rules, nil
	}

	memberIDs, err := m.assignments.DistinctMemberIDs(quest.ID)
	if err != nil {
		return nil, err
	}
	if len(memberIDs) == 0 {
		rotation, err := m.rotations.GetByQuest(quest.ID)
		if err != nil {
			return nil, err
		}
		if rotation != nil {
			memberIDs = rotation.MemberIDs
		}
	}

	synthesized := make([]model.QuestRule, 0, len(memberIDs))
	for _, id := range memberIDs {
		synthesized = append(synthesized, model.QuestRule{
			QuestID:       quest.ID,
			MemberID:      id,
			Recurrence:    quest.Recurrence,
			CustomDays:    quest.CustomDays,
			RequiresPhoto: quest.RequiresPhoto,
			IsActive:      true,
		})
	}
	return synthesized, nil
}

// activeWeekdays derives the occurrence days used by daily-cadence rotation
// projection: the union of custom days across repeating rules. Any daily rule
// degrades the set to every calendar day (nil).
func activeWeekdays(rules []model.QuestRule) []time.Weekday {
	seen := make(map[time.Weekday]bool)
	for _, r := range rules {
		switch r.Recurrence {
		case model.RecurrenceDaily:
			return nil
		case model.RecurrenceCustom:
			for _, d := range r.CustomDays {
				seen[d] = true
			}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	days := make([]time.Weekday, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	return days
}

func (m *Materializer) trackerFor(questID int64) (*model.Rotation, *Tracker, error) {
	rotation, err := m.rotations.GetByQuest(questID)
	if err != nil {
		return nil, nil, err
	}
	if rotation == nil {
		return nil, nil, nil
	}
	tracker, err := NewTracker(rotation)
	if err != nil {
		return nil, nil, fmt.Errorf("quest %d: %w", questID, err)
	}
	return rotation, tracker, nil
}

// ProjectWeek materializes missing assignment rows for the seven days
// starting at weekStart. It is idempotent and read-only with respect to
// rotation state, so calendar views may call it any number of times.
func (m *Materializer) ProjectWeek(weekStart time.Time) error {
	weekStart = DateOf(weekStart)
	weekEnd := weekStart.AddDate(0, 0, 6)
	today := DateOf(m.now())

	excluded, err := m.exclusions.LoadRange(weekStart, weekEnd)
	if err != nil {
		return fmt.Errorf("load exclusions: %w", err)
	}

	quests, err := m.quests.ListActive()
	if err != nil {
		return fmt.Errorf("list quests: %w", err)
	}

	for i := range quests {
		if err := m.projectQuestWeek(&quests[i], weekStart, today, excluded); err != nil {
			m.logger.Error("project week", "quest_id", quests[i].ID, "error", err)
		}
	}
	return nil
}

func (m *Materializer) projectQuestWeek(quest *model.Quest, weekStart, today time.Time, excluded map[store.SlotKey]bool) error {
	rules, err := m.effectiveRules(quest)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	_, tracker, err := m.trackerFor(quest.ID)
	if err != nil {
		return err
	}
	active := activeWeekdays(rules)

	for _, rule := range rules {
		// One-time rules materialize through the commit pass only.
		if !rule.Recurrence.Repeats() {
			continue
		}

		for i := 0; i < 7; i++ {
			day := weekStart.AddDate(0, 0, i)

			if !Fires(rule.Recurrence, day, quest.CreatedAt.Weekday(), rule.CustomDays, quest.CreatedAt) {
				continue
			}
			if excluded[store.SlotKey{QuestID: quest.ID, MemberID: rule.MemberID, Date: day.Format("2006-01-02")}] {
				continue
			}
			if tracker != nil && tracker.Project(day, today, active) != rule.MemberID {
				continue
			}
			if _, err := m.assignments.CreateIfMissing(quest.ID, rule.MemberID, day); err != nil {
				return err
			}
		}
	}
	return nil
}

// Commit materializes assignments for a single day and is the only caller
// allowed to advance rotations. A rotation advances at most once per quest
// per pass, and only when some repeating rule actually fires today, so no
// rotation turn is burned on an inactive day. Failures are isolated per
// quest.
func (m *Materializer) Commit(today time.Time) error {
	today = DateOf(today)

	quests, err := m.quests.ListActive()
	if err != nil {
		return fmt.Errorf("list quests: %w", err)
	}

	for i := range quests {
		if err := m.commitQuest(&quests[i], today); err != nil {
			m.logger.Error("commit day", "quest_id", quests[i].ID, "error", err)
		}
	}
	return nil
}

func (m *Materializer) commitQuest(quest *model.Quest, today time.Time) error {
	rules, err := m.effectiveRules(quest)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}

	rotation, tracker, err := m.trackerFor(quest.ID)
	if err != nil {
		return err
	}

	var repeating []model.QuestRule
	for _, rule := range rules {
		if rule.Recurrence.Repeats() {
			repeating = append(repeating, rule)
			continue
		}
		if err := m.commitOnceRule(quest, rule, today); err != nil {
			return err
		}
	}

	firesToday := false
	for _, rule := range repeating {
		if Fires(rule.Recurrence, today, quest.CreatedAt.Weekday(), rule.CustomDays, quest.CreatedAt) {
			firesToday = true
			break
		}
	}

	if tracker != nil && firesToday && tracker.ShouldAdvance(m.now()) {
		tracker.Advance(m.now())
		if err := m.rotations.UpdateState(rotation); err != nil {
			return err
		}
		m.logger.Debug("rotation advanced", "quest_id", quest.ID, "index", rotation.CurrentIndex)
	}

	for _, rule := range repeating {
		if !Fires(rule.Recurrence, today, quest.CreatedAt.Weekday(), rule.CustomDays, quest.CreatedAt) {
			continue
		}
		if tracker != nil && rule.MemberID != tracker.Current() {
			continue
		}
		skip, err := m.exclusions.Contains(quest.ID, rule.MemberID, today)
		if err != nil {
			return err
		}
		if skip {
			continue
		}
		if _, err := m.assignments.CreateIfMissing(quest.ID, rule.MemberID, today); err != nil {
			return err
		}
	}
	return nil
}

// commitOnceRule materializes a one-time rule. A rule that has already
// produced its single assignment is deactivated so it never refires; rotation
// membership does not filter one-time rules.
func (m *Materializer) commitOnceRule(quest *model.Quest, rule model.QuestRule, today time.Time) error {
	produced, err := m.assignments.HasAnyForRule(quest.ID, rule.MemberID)
	if err != nil {
		return err
	}
	if produced {
		if rule.ID != 0 {
			return m.quests.DeactivateRule(quest.ID, rule.MemberID)
		}
		return nil
	}

	skip, err := m.exclusions.Contains(quest.ID, rule.MemberID, today)
	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	_, err = m.assignments.CreateIfMissing(quest.ID, rule.MemberID, today)
	return err
}

// AssignmentSpec describes one member's slot when (re)assigning a quest.
type AssignmentSpec struct {
	MemberID      int64
	Recurrence    model.Recurrence
	CustomDays    []time.Weekday
	RequiresPhoto bool
}

// RotationSpec enables round-robin rotation across the assigned members.
type RotationSpec struct {
	Enabled bool
	Cadence model.Cadence
}

// ApplyAssignment reconciles a quest's rules, rotation and today's
// assignments with the submitted member set. Members absent from specs have
// their rules deactivated and today's still-pending assignments removed.
// Rotation requires at least two members; submitting fewer, or a disabled
// spec, removes any existing rotation.
func (m *Materializer) ApplyAssignment(questID int64, specs []AssignmentSpec, rot *RotationSpec) error {
	quest, err := m.quests.GetByID(questID)
	if err != nil {
		return err
	}
	if quest == nil || !quest.IsActive {
		return ErrQuestNotFound
	}

	today := DateOf(m.now())

	submitted := make(map[int64]bool, len(specs))
	for _, spec := range specs {
		submitted[spec.MemberID] = true
	}

	existing, err := m.quests.ListActiveRules(questID)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if submitted[rule.MemberID] {
			continue
		}
		if err := m.quests.DeactivateRule(questID, rule.MemberID); err != nil {
			return err
		}
		stale, err := m.assignments.GetForSlot(questID, rule.MemberID, today)
		if err != nil {
			return err
		}
		if stale != nil && stale.Status == model.StatusPending {
			if err := m.assignments.Delete(stale.ID); err != nil {
				return err
			}
		}
	}

	rotationActive := rot != nil && rot.Enabled && len(specs) >= 2
	if rotationActive {
		memberIDs := make([]int64, len(specs))
		for i, spec := range specs {
			memberIDs[i] = spec.MemberID
		}
		if _, err := m.rotations.Save(questID, memberIDs, rot.Cadence); err != nil {
			return err
		}
	} else {
		if err := m.rotations.Delete(questID); err != nil {
			return err
		}
	}

	var holder int64
	if rotationActive {
		_, tracker, err := m.trackerFor(questID)
		if err != nil {
			return err
		}
		holder = tracker.Current()
	}

	for _, spec := range specs {
		if _, err := m.quests.UpsertRule(questID, spec.MemberID, spec.Recurrence, spec.CustomDays, spec.RequiresPhoto); err != nil {
			return err
		}

		if !Fires(spec.Recurrence, today, quest.CreatedAt.Weekday(), spec.CustomDays, quest.CreatedAt) {
			continue
		}
		if rotationActive && spec.Recurrence.Repeats() && spec.MemberID != holder {
			continue
		}
		if _, err := m.assignments.CreateIfMissing(questID, spec.MemberID, today); err != nil {
			return err
		}
	}
	return nil
}
