package engine

import (
	"context"

	"campusattend/internal/detection"
	"campusattend/internal/notify"
	"campusattend/internal/roster"
)

// RosterStore is the read-only roster surface the engine consumes.
type RosterStore interface {
	GetModule(ctx context.Context, id string) (*roster.Module, error)
	GetTutorialGroup(ctx context.Context, id string) (*roster.TutorialGroup, error)
	GetLesson(ctx context.Context, id string) (*roster.Lesson, error)
	GetLessons(ctx context.Context, f roster.LessonFilter) ([]roster.Lesson, error)
	GetEnrollments(ctx context.Context, moduleID string) ([]roster.Enrollment, error)
	GetTutorialMembership(ctx context.Context, enrollmentID string) (*roster.TutorialMembership, error)
	GetStudent(ctx context.Context, id string) (*roster.User, error)
}

// DetectionStore reads and, for overrides only, rewrites raw detection events.
type DetectionStore interface {
	GetEvents(ctx context.Context, studentID, lessonID string) ([]detection.Event, error)
	GetLessonEvents(ctx context.Context, lessonID string) ([]detection.Event, error)
	InsertEvent(ctx context.Context, evt detection.Event) (detection.Event, error)
	DeleteEvents(ctx context.Context, studentID, lessonID string) error
}

// VerdictStore persists the materialized verdict cache.
type VerdictStore interface {
	Upsert(ctx context.Context, v Verdict) error
	Get(ctx context.Context, studentID, lessonID string) (*Verdict, error)
}

// NotificationStore persists at-risk notifications.
type NotificationStore interface {
	ListUnread(ctx context.Context, studentID string) ([]notify.Notification, error)
	Upsert(ctx context.Context, n notify.Notification) (notify.Notification, error)
	Delete(ctx context.Context, id string) error
}
