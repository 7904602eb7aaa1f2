package roster

import "time"

// RoleKind tags the role variant attached to a user.
type RoleKind string

const (
	RoleStudent  RoleKind = "student"
	RoleLecturer RoleKind = "lecturer"
	RoleAdmin    RoleKind = "admin"
)

// StudentRole holds student-specific fields.
type StudentRole struct {
	StudentNum string   `json:"student_num"`
	Goal       *float64 `json:"goal,omitempty"` // minimum attendance %, nil = campus default
}

// LecturerRole holds lecturer-specific fields.
type LecturerRole struct {
	Specialty string `json:"specialty"`
}

// AdminRole holds admin-specific fields.
type AdminRole struct {
	Title string `json:"title"`
}

// Role is a tagged variant; exactly one of the pointers matching Kind is set.
type Role struct {
	Kind     RoleKind      `json:"kind"`
	Student  *StudentRole  `json:"student,omitempty"`
	Lecturer *LecturerRole `json:"lecturer,omitempty"`
	Admin    *AdminRole    `json:"admin,omitempty"`
}

// User is a single account record; role-specific data lives in Role.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CampusID  string    `json:"campus_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Campus represents one university site.
type Campus struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	City string `json:"city"`
}

// Course groups modules under one program of study.
type Course struct {
	ID       string `json:"id"`
	CampusID string `json:"campus_id"`
	Name     string `json:"name"`
}

// Module is a taught unit students enroll in.
type Module struct {
	ID       string `json:"id"`
	CourseID string `json:"course_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// TeachingAssignment pairs a lecturer with a module.
type TeachingAssignment struct {
	ID         string `json:"id"`
	LecturerID string `json:"lecturer_id"`
	ModuleID   string `json:"module_id"`
}

// TutorialGroup is a subdivision of a module's enrollment for small-group lessons.
type TutorialGroup struct {
	ID           string `json:"id"`
	AssignmentID string `json:"assignment_id"`
	Name         string `json:"name"`
}

// Lesson is one scheduled class session. A nil TutorialGroupID means a
// lecture open to the whole module enrollment.
type Lesson struct {
	ID              string    `json:"id"`
	AssignmentID    string    `json:"assignment_id"`
	ModuleID        string    `json:"module_id"`
	TutorialGroupID *string   `json:"tutorial_group_id,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	Location        string    `json:"location"`
}

// IsLecture reports whether the lesson is open to the whole module.
func (l Lesson) IsLecture() bool { return l.TutorialGroupID == nil }

// CompletedBy reports whether the lesson ended before now. Ongoing and
// future lessons stay out of rate denominators.
func (l Lesson) CompletedBy(now time.Time) bool { return l.End.Before(now) }

// Enrollment records that a student takes a module.
type Enrollment struct {
	ID        string `json:"id"`
	StudentID string `json:"student_id"`
	ModuleID  string `json:"module_id"`
}

// TutorialMembership assigns an enrollment to at most one tutorial group
// of its module.
type TutorialMembership struct {
	ID              string `json:"id"`
	EnrollmentID    string `json:"enrollment_id"`
	TutorialGroupID string `json:"tutorial_group_id"`
}
