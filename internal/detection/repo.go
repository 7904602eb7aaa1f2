package detection

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Source identifies where a detection event came from.
const (
	SourceCamera = "camera"
	SourceManual = "manual" // synthetic events written by verdict overrides
)

// Event is one raw sighting of a student at a lesson. Events are append-only;
// several per (student, lesson) pair are normal when a camera triggers twice.
type Event struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	LessonID    string    `json:"lesson_id"`
	SeenAt      time.Time `json:"seen_at"`
	Source      string    `json:"source"`
	SnapshotURL string    `json:"snapshot_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository persists detection events in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertEvent writes a new event.
func (r *Repository) InsertEvent(ctx context.Context, evt Event) (Event, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.SeenAt.IsZero() {
		evt.SeenAt = time.Now().UTC()
	}
	if evt.Source == "" {
		evt.Source = SourceCamera
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO detection_events (id, student_id, lesson_id, seen_at, source, snapshot_url)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, evt.ID, evt.StudentID, evt.LessonID, evt.SeenAt, evt.Source, evt.SnapshotURL)
	if err := row.Scan(&evt.CreatedAt); err != nil {
		return Event{}, err
	}
	return evt, nil
}

// GetEvent returns a single event by id, or nil when absent.
func (r *Repository) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, lesson_id, seen_at, source, snapshot_url, created_at
		FROM detection_events WHERE id = $1
	`, id)
	var evt Event
	if err := row.Scan(&evt.ID, &evt.StudentID, &evt.LessonID, &evt.SeenAt, &evt.Source, &evt.SnapshotURL, &evt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

// GetEvents returns all events for a (student, lesson) pair ordered by time.
func (r *Repository) GetEvents(ctx context.Context, studentID, lessonID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, lesson_id, seen_at, source, snapshot_url, created_at
		FROM detection_events
		WHERE student_id = $1 AND lesson_id = $2
		ORDER BY seen_at
	`, studentID, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.StudentID, &evt.LessonID, &evt.SeenAt, &evt.Source, &evt.SnapshotURL, &evt.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

// GetLessonEvents returns all events for one lesson ordered by student then time.
func (r *Repository) GetLessonEvents(ctx context.Context, lessonID string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, lesson_id, seen_at, source, snapshot_url, created_at
		FROM detection_events
		WHERE lesson_id = $1
		ORDER BY student_id, seen_at
	`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Event
	for rows.Next() {
		var evt Event
		if err := rows.Scan(&evt.ID, &evt.StudentID, &evt.LessonID, &evt.SeenAt, &evt.Source, &evt.SnapshotURL, &evt.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, evt)
	}
	return res, rows.Err()
}

// DeleteEvents removes all events for a (student, lesson) pair. Only the
// verdict override path calls this; camera events are otherwise immutable.
func (r *Repository) DeleteEvents(ctx context.Context, studentID, lessonID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM detection_events WHERE student_id = $1 AND lesson_id = $2
	`, studentID, lessonID)
	return err
}

// RecentEvent returns the pair's newest event inside the window, or nil.
func (r *Repository) RecentEvent(ctx context.Context, studentID, lessonID string, window time.Duration) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, lesson_id, seen_at, source, snapshot_url, created_at
		FROM detection_events
		WHERE student_id = $1 AND lesson_id = $2 AND seen_at >= NOW() - ($3 * interval '1 second')
		ORDER BY seen_at DESC
		LIMIT 1
	`, studentID, lessonID, window.Seconds())
	var evt Event
	if err := row.Scan(&evt.ID, &evt.StudentID, &evt.LessonID, &evt.SeenAt, &evt.Source, &evt.SnapshotURL, &evt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}
