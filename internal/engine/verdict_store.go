package engine

import (
	"context"
	"database/sql"
	"errors"
)

// PGVerdictStore persists the verdict cache in Postgres.
type PGVerdictStore struct {
	db *sql.DB
}

// NewPGVerdictStore creates a store.
func NewPGVerdictStore(db *sql.DB) *PGVerdictStore {
	return &PGVerdictStore{db: db}
}

// Upsert writes the pair's verdict, replacing any previous one.
func (s *PGVerdictStore) Upsert(ctx context.Context, v Verdict) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attendance_verdicts (student_id, lesson_id, status, first_seen, last_seen, remark)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (student_id, lesson_id)
		DO UPDATE SET status = $3, first_seen = $4, last_seen = $5, remark = $6
	`, v.StudentID, v.LessonID, v.Status, v.FirstSeen, v.LastSeen, v.Remark)
	return err
}

// Get returns the cached verdict for a pair, or nil when none exists.
func (s *PGVerdictStore) Get(ctx context.Context, studentID, lessonID string) (*Verdict, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT student_id, lesson_id, status, first_seen, last_seen, remark
		FROM attendance_verdicts
		WHERE student_id = $1 AND lesson_id = $2
	`, studentID, lessonID)
	var v Verdict
	if err := row.Scan(&v.StudentID, &v.LessonID, &v.Status, &v.FirstSeen, &v.LastSeen, &v.Remark); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}
