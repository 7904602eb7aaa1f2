package detection

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// EventStore is the persistence surface the ingest service needs.
type EventStore interface {
	InsertEvent(ctx context.Context, evt Event) (Event, error)
	RecentEvent(ctx context.Context, studentID, lessonID string, window time.Duration) (*Event, error)
}

// Service records incoming detections with deduplication. A camera that
// fires several times in quick succession produces one stored event per
// window; later sightings of the same pair outside the window are kept
// because first/last-seen derivation wants them.
type Service struct {
	store       EventStore
	dedupWindow time.Duration
	logger      *zap.Logger
}

// NewService creates a service backed by an event store.
func NewService(store EventStore, dedupWindow time.Duration, logger *zap.Logger) *Service {
	if dedupWindow <= 0 {
		dedupWindow = 30 * time.Second
	}
	return &Service{store: store, dedupWindow: dedupWindow, logger: logger}
}

// Record persists a new detection, collapsing rapid duplicates.
func (s *Service) Record(ctx context.Context, studentID, lessonID, snapshotURL string, seenAt time.Time) (Event, error) {
	if studentID == "" || lessonID == "" {
		return Event{}, errors.New("student and lesson required")
	}
	if recent, err := s.store.RecentEvent(ctx, studentID, lessonID, s.dedupWindow); err != nil {
		return Event{}, err
	} else if recent != nil {
		s.logger.Debug("detection collapsed into recent event",
			zap.String("student_id", studentID),
			zap.String("lesson_id", lessonID),
			zap.String("event_id", recent.ID))
		return *recent, nil
	}

	evt := Event{
		StudentID:   studentID,
		LessonID:    lessonID,
		SeenAt:      seenAt,
		Source:      SourceCamera,
		SnapshotURL: snapshotURL,
	}
	return s.store.InsertEvent(ctx, evt)
}
