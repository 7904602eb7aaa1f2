package notify

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Notification is one message for a student. At most one unread notification
// per (student, title) may exist at a time; Upsert enforces that by updating
// the live row in place.
type Notification struct {
	ID        string         `json:"id"`
	StudentID string         `json:"student_id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Type      string         `json:"type"`
	Read      bool           `json:"read"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store persists notifications in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListUnread returns the student's unread notifications, newest first.
func (s *Store) ListUnread(ctx context.Context, studentID string) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, title, message, type, read, metadata, created_at
		FROM notifications
		WHERE student_id = $1 AND read = FALSE
		ORDER BY created_at DESC
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

// Upsert updates the unread (student, title) row when one exists, otherwise
// inserts a new notification.
func (s *Store) Upsert(ctx context.Context, n Notification) (Notification, error) {
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return Notification{}, err
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE notifications
		SET message = $3, type = $4, metadata = $5, created_at = $6
		WHERE student_id = $1 AND title = $2 AND read = FALSE
		RETURNING id
	`, n.StudentID, n.Title, n.Message, n.Type, meta, n.CreatedAt)
	switch err := row.Scan(&n.ID); {
	case err == nil:
		return n, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return Notification{}, err
	}

	n.ID = uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, student_id, title, message, type, read, metadata, created_at)
		VALUES ($1,$2,$3,$4,$5,FALSE,$6,$7)
	`, n.ID, n.StudentID, n.Title, n.Message, n.Type, meta, n.CreatedAt)
	if err != nil {
		return Notification{}, err
	}
	return n, nil
}

// Delete removes a notification by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	return err
}

// MarkRead flags a notification as read.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	return err
}

func scanNotification(rows *sql.Rows) (Notification, error) {
	var (
		n    Notification
		meta []byte
	)
	if err := rows.Scan(&n.ID, &n.StudentID, &n.Title, &n.Message, &n.Type, &n.Read, &meta, &n.CreatedAt); err != nil {
		return Notification{}, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return Notification{}, err
		}
	}
	return n, nil
}
