package report

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"campusattend/internal/detection"
	"campusattend/internal/engine"
	"campusattend/internal/notify"
	"campusattend/internal/roster"
)

var testNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

type memRoster struct {
	modules     map[string]*roster.Module
	groups      map[string]*roster.TutorialGroup
	lessons     map[string]*roster.Lesson
	enrollments map[string][]roster.Enrollment
	memberships map[string]*roster.TutorialMembership
}

func newMemRoster() *memRoster {
	return &memRoster{
		modules:     make(map[string]*roster.Module),
		groups:      make(map[string]*roster.TutorialGroup),
		lessons:     make(map[string]*roster.Lesson),
		enrollments: make(map[string][]roster.Enrollment),
		memberships: make(map[string]*roster.TutorialMembership),
	}
}

func (m *memRoster) GetModule(_ context.Context, id string) (*roster.Module, error) {
	return m.modules[id], nil
}

func (m *memRoster) GetTutorialGroup(_ context.Context, id string) (*roster.TutorialGroup, error) {
	return m.groups[id], nil
}

func (m *memRoster) GetLesson(_ context.Context, id string) (*roster.Lesson, error) {
	return m.lessons[id], nil
}

func (m *memRoster) GetLessons(_ context.Context, f roster.LessonFilter) ([]roster.Lesson, error) {
	var res []roster.Lesson
	for _, l := range m.lessons {
		if f.ModuleID != "" && l.ModuleID != f.ModuleID {
			continue
		}
		if f.TutorialGroupID != "" && (l.TutorialGroupID == nil || *l.TutorialGroupID != f.TutorialGroupID) {
			continue
		}
		if !f.From.IsZero() && l.Start.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !l.Start.Before(f.To) {
			continue
		}
		res = append(res, *l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Start.Before(res[j].Start) })
	return res, nil
}

func (m *memRoster) GetEnrollments(_ context.Context, moduleID string) ([]roster.Enrollment, error) {
	return m.enrollments[moduleID], nil
}

func (m *memRoster) GetTutorialMembership(_ context.Context, enrollmentID string) (*roster.TutorialMembership, error) {
	return m.memberships[enrollmentID], nil
}

func (m *memRoster) GetStudent(_ context.Context, id string) (*roster.User, error) {
	return nil, nil
}

type memEvents struct {
	events []detection.Event
}

func (m *memEvents) GetEvents(_ context.Context, studentID, lessonID string) ([]detection.Event, error) {
	var res []detection.Event
	for _, e := range m.events {
		if e.StudentID == studentID && e.LessonID == lessonID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *memEvents) GetLessonEvents(_ context.Context, lessonID string) ([]detection.Event, error) {
	var res []detection.Event
	for _, e := range m.events {
		if e.LessonID == lessonID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *memEvents) InsertEvent(_ context.Context, evt detection.Event) (detection.Event, error) {
	m.events = append(m.events, evt)
	return evt, nil
}

func (m *memEvents) DeleteEvents(_ context.Context, studentID, lessonID string) error {
	kept := m.events[:0]
	for _, e := range m.events {
		if e.StudentID != studentID || e.LessonID != lessonID {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

type memVerdicts struct{}

func (memVerdicts) Upsert(context.Context, engine.Verdict) error { return nil }
func (memVerdicts) Get(context.Context, string, string) (*engine.Verdict, error) {
	return nil, nil
}

type memNotifs struct{}

func (memNotifs) ListUnread(context.Context, string) ([]notify.Notification, error) {
	return nil, nil
}
func (memNotifs) Upsert(_ context.Context, n notify.Notification) (notify.Notification, error) {
	return n, nil
}
func (memNotifs) Delete(context.Context, string) error { return nil }

type compilerFixture struct {
	roster *memRoster
	events *memEvents
	comp   *Compiler
}

func newCompilerFixture() *compilerFixture {
	ros := newMemRoster()
	events := &memEvents{}
	clock := engine.FixedClock{T: testNow}
	eng := engine.New(ros, events, memVerdicts{}, memNotifs{}, clock, zap.NewNop(), engine.Options{})
	return &compilerFixture{
		roster: ros,
		events: events,
		comp:   NewCompiler(eng, ros, clock, zap.NewNop()),
	}
}

// seed builds module m1 with three students, two completed lectures and a
// g1 tutorial holding s01 only. s01 attends everything, s02 is late to the
// first lecture, s03 never shows up.
func (f *compilerFixture) seed() {
	f.roster.modules["m1"] = &roster.Module{ID: "m1", CourseID: "c1", Code: "M1", Name: "Databases"}
	f.roster.groups["g1"] = &roster.TutorialGroup{ID: "g1", AssignmentID: "ta-m1", Name: "g1"}
	for _, sid := range []string{"s01", "s02", "s03"} {
		f.roster.enrollments["m1"] = append(f.roster.enrollments["m1"], roster.Enrollment{
			ID: "enr-" + sid, StudentID: sid, ModuleID: "m1",
		})
	}
	f.roster.memberships["enr-s01"] = &roster.TutorialMembership{
		ID: "mem-s01", EnrollmentID: "enr-s01", TutorialGroupID: "g1",
	}

	groupID := "g1"
	starts := []time.Time{
		testNow.Add(-72 * time.Hour),
		testNow.Add(-48 * time.Hour),
		testNow.Add(-24 * time.Hour),
	}
	f.roster.lessons["l1"] = &roster.Lesson{ID: "l1", AssignmentID: "ta-m1", ModuleID: "m1", Start: starts[0], End: starts[0].Add(time.Hour), Location: "B1.01"}
	f.roster.lessons["l2"] = &roster.Lesson{ID: "l2", AssignmentID: "ta-m1", ModuleID: "m1", Start: starts[1], End: starts[1].Add(time.Hour), Location: "B1.01"}
	f.roster.lessons["t1"] = &roster.Lesson{ID: "t1", AssignmentID: "ta-m1", ModuleID: "m1", TutorialGroupID: &groupID, Start: starts[2], End: starts[2].Add(time.Hour), Location: "B2.07"}

	add := func(sid, lid string, at time.Time) {
		f.events.events = append(f.events.events, detection.Event{
			ID: sid + "-" + lid, StudentID: sid, LessonID: lid, SeenAt: at, Source: detection.SourceCamera,
		})
	}
	add("s01", "l1", starts[0])
	add("s01", "l2", starts[1])
	add("s01", "t1", starts[2])
	add("s02", "l1", starts[0].Add(30*time.Minute))
	add("s02", "l2", starts[1])
}

func TestDetailed(t *testing.T) {
	f := newCompilerFixture()
	f.seed()

	rows, err := f.comp.Detailed(context.Background(), Criteria{ModuleID: "m1"})
	require.NoError(t, err)
	// Two lectures with three students each plus one tutorial with one.
	require.Len(t, rows, 7)

	// Rows come back in lesson-start order, students sorted within a lesson.
	assert.Equal(t, "l1", rows[0].LessonID)
	assert.Equal(t, "s01", rows[0].StudentID)
	assert.Equal(t, engine.StatusPresent, rows[0].Status)
	require.NotNil(t, rows[0].CheckIn)

	assert.Equal(t, engine.StatusLate, rows[1].Status)
	assert.Equal(t, "s02", rows[1].StudentID)

	last := rows[6]
	assert.Equal(t, "t1", last.LessonID)
	assert.Equal(t, "s01", last.StudentID)
	assert.Equal(t, "B2.07", last.Location)
}

func TestDetailedStatusFilter(t *testing.T) {
	f := newCompilerFixture()
	f.seed()

	rows, err := f.comp.Detailed(context.Background(), Criteria{ModuleID: "m1", Status: engine.StatusAbsent})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "s03", r.StudentID)
		assert.Equal(t, engine.StatusAbsent, r.Status)
		assert.Nil(t, r.CheckIn)
	}
}

func TestCompileMatrix(t *testing.T) {
	f := newCompilerFixture()
	f.seed()

	// A status filter on the matrix shape is ignored.
	m, err := f.comp.CompileMatrix(context.Background(), Criteria{ModuleID: "m1", Status: engine.StatusLate})
	require.NoError(t, err)

	require.Len(t, m.Dates, 3)
	assert.True(t, m.Dates[0].Before(m.Dates[1]))
	require.Len(t, m.Rows, 3)

	byStudent := make(map[string]MatrixRow, len(m.Rows))
	for _, r := range m.Rows {
		byStudent[r.StudentID] = r
	}

	assert.Equal(t, []string{"P", "P", "P"}, byStudent["s01"].Cells)
	assert.InDelta(t, 100.0, byStudent["s01"].RatePercent, 0.001)

	// s02 is not in g1, so the tutorial column is a dash and stays out of
	// the percentage's denominator.
	assert.Equal(t, []string{"L", "P", "-"}, byStudent["s02"].Cells)
	assert.InDelta(t, 100.0, byStudent["s02"].RatePercent, 0.001)

	assert.Equal(t, []string{"A", "A", "-"}, byStudent["s03"].Cells)
	assert.InDelta(t, 0.0, byStudent["s03"].RatePercent, 0.001)

	// Rows are sorted by student id.
	assert.Equal(t, "s01", m.Rows[0].StudentID)
	assert.Equal(t, "s03", m.Rows[2].StudentID)
}

func TestCompileDeterministic(t *testing.T) {
	f := newCompilerFixture()
	f.seed()

	first, err := f.comp.Detailed(context.Background(), Criteria{ModuleID: "m1"})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := f.comp.Detailed(context.Background(), Criteria{ModuleID: "m1"})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompileValidation(t *testing.T) {
	f := newCompilerFixture()
	f.seed()

	_, err := f.comp.Detailed(context.Background(), Criteria{})
	assert.ErrorIs(t, err, ErrModuleRequired)

	_, err = f.comp.Detailed(context.Background(), Criteria{
		ModuleID: "m1", From: testNow, To: testNow.Add(-time.Hour),
	})
	assert.ErrorIs(t, err, engine.ErrInvalidRange)

	_, err = f.comp.Detailed(context.Background(), Criteria{
		ModuleID: "m1", From: testNow.Add(24 * time.Hour), To: testNow.Add(48 * time.Hour),
	})
	assert.ErrorIs(t, err, ErrNoLessons)
}

func TestCompileAbortsOnBrokenLesson(t *testing.T) {
	f := newCompilerFixture()
	f.seed()
	f.roster.lessons["bad"] = &roster.Lesson{
		ID: "bad", AssignmentID: "ta-m1", ModuleID: "m1",
		Start: testNow.Add(-12 * time.Hour), End: testNow.Add(-11 * time.Hour),
	}
	delete(f.roster.modules, "m1")

	_, err := f.comp.Detailed(context.Background(), Criteria{ModuleID: "m1"})
	require.Error(t, err)
	assert.True(t, engine.IsIntegrity(err))
}
