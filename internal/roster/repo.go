package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository reads roster data from Postgres. Roster entities are owned by
// administrative workflows; this repository never writes them.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetModule returns a module by id, or nil when absent.
func (r *Repository) GetModule(ctx context.Context, id string) (*Module, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, code, name FROM modules WHERE id = $1
	`, id)
	var m Module
	if err := row.Scan(&m.ID, &m.CourseID, &m.Code, &m.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetTutorialGroup returns a tutorial group by id, or nil when absent.
func (r *Repository) GetTutorialGroup(ctx context.Context, id string) (*TutorialGroup, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, assignment_id, name FROM tutorial_groups WHERE id = $1
	`, id)
	var g TutorialGroup
	if err := row.Scan(&g.ID, &g.AssignmentID, &g.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

// GetLesson returns a lesson by id, or nil when absent.
func (r *Repository) GetLesson(ctx context.Context, id string) (*Lesson, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT l.id, l.assignment_id, a.module_id, l.tutorial_group_id, l.starts_at, l.ends_at, l.location
		FROM lessons l
		JOIN teaching_assignments a ON a.id = l.assignment_id
		WHERE l.id = $1
	`, id)
	var l Lesson
	if err := row.Scan(&l.ID, &l.AssignmentID, &l.ModuleID, &l.TutorialGroupID, &l.Start, &l.End, &l.Location); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &l, nil
}

// LessonFilter narrows GetLessons. Zero values are ignored.
type LessonFilter struct {
	ModuleID        string
	CampusID        string
	TutorialGroupID string
	StudentID       string // lessons of modules the student is enrolled in
	From            time.Time
	To              time.Time
}

// GetLessons returns lessons matching the filter, ordered by start time.
func (r *Repository) GetLessons(ctx context.Context, f LessonFilter) ([]Lesson, error) {
	query := `
		SELECT l.id, l.assignment_id, a.module_id, l.tutorial_group_id, l.starts_at, l.ends_at, l.location
		FROM lessons l
		JOIN teaching_assignments a ON a.id = l.assignment_id`
	args := []any{}
	clauses := []string{}
	if f.ModuleID != "" {
		clauses = append(clauses, "a.module_id = $"+itoa(len(args)+1))
		args = append(args, f.ModuleID)
	}
	if f.CampusID != "" {
		query += `
		JOIN modules m ON m.id = a.module_id
		JOIN courses c ON c.id = m.course_id`
		clauses = append(clauses, "c.campus_id = $"+itoa(len(args)+1))
		args = append(args, f.CampusID)
	}
	if f.TutorialGroupID != "" {
		clauses = append(clauses, "l.tutorial_group_id = $"+itoa(len(args)+1))
		args = append(args, f.TutorialGroupID)
	}
	if f.StudentID != "" {
		clauses = append(clauses, "a.module_id IN (SELECT module_id FROM enrollments WHERE student_id = $"+itoa(len(args)+1)+")")
		args = append(args, f.StudentID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "l.starts_at >= $"+itoa(len(args)+1))
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "l.starts_at < $"+itoa(len(args)+1))
		args = append(args, f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + joinClauses(clauses, " AND ")
	}
	query += " ORDER BY l.starts_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Lesson
	for rows.Next() {
		var l Lesson
		if err := rows.Scan(&l.ID, &l.AssignmentID, &l.ModuleID, &l.TutorialGroupID, &l.Start, &l.End, &l.Location); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// GetEnrollments returns all enrollments of a module.
func (r *Repository) GetEnrollments(ctx context.Context, moduleID string) ([]Enrollment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, module_id FROM enrollments WHERE module_id = $1 ORDER BY student_id
	`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Enrollment
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.StudentID, &e.ModuleID); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetTutorialMembership returns the enrollment's group assignment, or nil
// when the student is unassigned.
func (r *Repository) GetTutorialMembership(ctx context.Context, enrollmentID string) (*TutorialMembership, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, enrollment_id, tutorial_group_id FROM tutorial_memberships WHERE enrollment_id = $1
	`, enrollmentID)
	var m TutorialMembership
	if err := row.Scan(&m.ID, &m.EnrollmentID, &m.TutorialGroupID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// GetStudent returns a user with the student role, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, campus_id, student_num, attendance_goal, created_at
		FROM users WHERE id = $1 AND role_kind = 'student'
	`, id)
	var (
		u    User
		num  string
		goal *float64
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.CampusID, &num, &goal, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = Role{Kind: RoleStudent, Student: &StudentRole{StudentNum: num, Goal: goal}}
	return &u, nil
}

// ListStudentIDs returns ids of all student users, optionally scoped to a campus.
func (r *Repository) ListStudentIDs(ctx context.Context, campusID string) ([]string, error) {
	query := `SELECT id FROM users WHERE role_kind = 'student'`
	args := []any{}
	if campusID != "" {
		query += ` AND campus_id = $1`
		args = append(args, campusID)
	}
	query += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func itoa(i int) string { return fmt.Sprintf("%d", i) }

func joinClauses(parts []string, sep string) string {
	if len(parts) == 0 {
		return ""
	}
	out := parts[0]
	for i := 1; i < len(parts); i++ {
		out += sep + parts[i]
	}
	return out
}
