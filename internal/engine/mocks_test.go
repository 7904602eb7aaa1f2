package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"campusattend/internal/detection"
	"campusattend/internal/notify"
	"campusattend/internal/roster"
)

// ── Mock RosterStore ──

type mockRoster struct {
	modules     map[string]*roster.Module
	groups      map[string]*roster.TutorialGroup
	lessons     map[string]*roster.Lesson
	enrollments map[string][]roster.Enrollment        // by module id
	memberships map[string]*roster.TutorialMembership // by enrollment id
	students    map[string]*roster.User
}

func newMockRoster() *mockRoster {
	return &mockRoster{
		modules:     make(map[string]*roster.Module),
		groups:      make(map[string]*roster.TutorialGroup),
		lessons:     make(map[string]*roster.Lesson),
		enrollments: make(map[string][]roster.Enrollment),
		memberships: make(map[string]*roster.TutorialMembership),
		students:    make(map[string]*roster.User),
	}
}

func (m *mockRoster) GetModule(_ context.Context, id string) (*roster.Module, error) {
	return m.modules[id], nil
}

func (m *mockRoster) GetTutorialGroup(_ context.Context, id string) (*roster.TutorialGroup, error) {
	return m.groups[id], nil
}

func (m *mockRoster) GetLesson(_ context.Context, id string) (*roster.Lesson, error) {
	return m.lessons[id], nil
}

func (m *mockRoster) GetLessons(_ context.Context, f roster.LessonFilter) ([]roster.Lesson, error) {
	var res []roster.Lesson
	for _, l := range m.lessons {
		if f.ModuleID != "" && l.ModuleID != f.ModuleID {
			continue
		}
		if f.TutorialGroupID != "" && (l.TutorialGroupID == nil || *l.TutorialGroupID != f.TutorialGroupID) {
			continue
		}
		if f.StudentID != "" && !m.enrolled(f.StudentID, l.ModuleID) {
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

func (m *mockRoster) enrolled(studentID, moduleID string) bool {
	for _, e := range m.enrollments[moduleID] {
		if e.StudentID == studentID {
			return true
		}
	}
	return false
}

func (m *mockRoster) GetEnrollments(_ context.Context, moduleID string) ([]roster.Enrollment, error) {
	return m.enrollments[moduleID], nil
}

func (m *mockRoster) GetTutorialMembership(_ context.Context, enrollmentID string) (*roster.TutorialMembership, error) {
	return m.memberships[enrollmentID], nil
}

func (m *mockRoster) GetStudent(_ context.Context, id string) (*roster.User, error) {
	return m.students[id], nil
}

func (m *mockRoster) addModule(id string) {
	m.modules[id] = &roster.Module{ID: id, CourseID: "course-1", Code: id, Name: id}
}

func (m *mockRoster) addStudent(id string, goal *float64) {
	m.students[id] = &roster.User{
		ID:       id,
		Name:     id,
		CampusID: "campus-1",
		Role:     roster.Role{Kind: roster.RoleStudent, Student: &roster.StudentRole{StudentNum: id, Goal: goal}},
	}
}

func (m *mockRoster) enroll(studentID, moduleID string) string {
	enrID := "enr-" + studentID + "-" + moduleID
	m.enrollments[moduleID] = append(m.enrollments[moduleID], roster.Enrollment{
		ID: enrID, StudentID: studentID, ModuleID: moduleID,
	})
	return enrID
}

func (m *mockRoster) assign(enrollmentID, groupID string) {
	m.memberships[enrollmentID] = &roster.TutorialMembership{
		ID: "mem-" + enrollmentID, EnrollmentID: enrollmentID, TutorialGroupID: groupID,
	}
}

// ── Mock DetectionStore ──

type mockEvents struct {
	events []detection.Event
}

func newMockEvents() *mockEvents {
	return &mockEvents{}
}

func (m *mockEvents) GetEvents(_ context.Context, studentID, lessonID string) ([]detection.Event, error) {
	var res []detection.Event
	for _, e := range m.events {
		if e.StudentID == studentID && e.LessonID == lessonID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *mockEvents) GetLessonEvents(_ context.Context, lessonID string) ([]detection.Event, error) {
	var res []detection.Event
	for _, e := range m.events {
		if e.LessonID == lessonID {
			res = append(res, e)
		}
	}
	return res, nil
}

func (m *mockEvents) InsertEvent(_ context.Context, evt detection.Event) (detection.Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	m.events = append(m.events, evt)
	return evt, nil
}

func (m *mockEvents) DeleteEvents(_ context.Context, studentID, lessonID string) error {
	kept := m.events[:0]
	for _, e := range m.events {
		if e.StudentID != studentID || e.LessonID != lessonID {
			kept = append(kept, e)
		}
	}
	m.events = kept
	return nil
}

func (m *mockEvents) add(studentID, lessonID string, seenAt time.Time) {
	m.events = append(m.events, detection.Event{
		ID: uuid.NewString(), StudentID: studentID, LessonID: lessonID,
		SeenAt: seenAt, Source: detection.SourceCamera,
	})
}

// ── Mock VerdictStore ──

type mockVerdicts struct {
	byPair map[string]Verdict
}

func newMockVerdicts() *mockVerdicts {
	return &mockVerdicts{byPair: make(map[string]Verdict)}
}

func (m *mockVerdicts) Upsert(_ context.Context, v Verdict) error {
	m.byPair[v.StudentID+"|"+v.LessonID] = v
	return nil
}

func (m *mockVerdicts) Get(_ context.Context, studentID, lessonID string) (*Verdict, error) {
	if v, ok := m.byPair[studentID+"|"+lessonID]; ok {
		return &v, nil
	}
	return nil, nil
}

// ── Mock NotificationStore ──

type mockNotifs struct {
	notifications []notify.Notification
}

func newMockNotifs() *mockNotifs {
	return &mockNotifs{}
}

func (m *mockNotifs) ListUnread(_ context.Context, studentID string) ([]notify.Notification, error) {
	var res []notify.Notification
	for _, n := range m.notifications {
		if n.StudentID == studentID && !n.Read {
			res = append(res, n)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (m *mockNotifs) Upsert(_ context.Context, n notify.Notification) (notify.Notification, error) {
	for i, existing := range m.notifications {
		if existing.StudentID == n.StudentID && existing.Title == n.Title && !existing.Read {
			n.ID = existing.ID
			m.notifications[i] = n
			return n, nil
		}
	}
	n.ID = uuid.NewString()
	m.notifications = append(m.notifications, n)
	return n, nil
}

func (m *mockNotifs) Delete(_ context.Context, id string) error {
	kept := m.notifications[:0]
	for _, n := range m.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	m.notifications = kept
	return nil
}

// ── Fixture ──

type fixture struct {
	roster   *mockRoster
	events   *mockEvents
	verdicts *mockVerdicts
	notifs   *mockNotifs
	clock    FixedClock
	eng      *Engine
}

// testNow is a fixed mid-quarter instant: every test runs at this moment.
var testNow = time.Date(2024, time.May, 15, 12, 0, 0, 0, time.UTC)

func newFixture(opts Options) *fixture {
	f := &fixture{
		roster:   newMockRoster(),
		events:   newMockEvents(),
		verdicts: newMockVerdicts(),
		notifs:   newMockNotifs(),
		clock:    FixedClock{T: testNow},
	}
	f.eng = New(f.roster, f.events, f.verdicts, f.notifs, f.clock, zap.NewNop(), opts)
	return f
}

// lecture adds a completed lecture lesson for the module, ending before testNow.
func (f *fixture) lecture(id, moduleID string, start time.Time) roster.Lesson {
	l := &roster.Lesson{
		ID: id, AssignmentID: "ta-" + moduleID, ModuleID: moduleID,
		Start: start, End: start.Add(time.Hour), Location: "B1.01",
	}
	f.roster.lessons[id] = l
	return *l
}

// tutorial adds a completed tutorial-scoped lesson for the group.
func (f *fixture) tutorial(id, moduleID, groupID string, start time.Time) roster.Lesson {
	f.roster.groups[groupID] = &roster.TutorialGroup{ID: groupID, AssignmentID: "ta-" + moduleID, Name: groupID}
	l := &roster.Lesson{
		ID: id, AssignmentID: "ta-" + moduleID, ModuleID: moduleID,
		TutorialGroupID: &groupID,
		Start:           start, End: start.Add(time.Hour), Location: "B2.07",
	}
	f.roster.lessons[id] = l
	return *l
}
