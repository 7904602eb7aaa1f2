package engine

import (
	"context"
	"sort"

	"campusattend/internal/roster"
)

// ExpectedAudience computes the exact set of students expected at a lesson,
// sorted by student id.
//
// A lecture (no tutorial group) expects every student enrolled in the
// lesson's module. A tutorial-scoped lesson expects only the students whose
// membership for that module points at the lesson's group; enrolled students
// with no group assignment are excluded from it. A dangling module or group
// reference is a data-integrity fault, never a silent empty set.
func (e *Engine) ExpectedAudience(ctx context.Context, lesson roster.Lesson) ([]string, error) {
	mod, err := e.roster.GetModule(ctx, lesson.ModuleID)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, &IntegrityError{Entity: "module", ID: lesson.ModuleID}
	}

	enrollments, err := e.roster.GetEnrollments(ctx, lesson.ModuleID)
	if err != nil {
		return nil, err
	}

	if lesson.IsLecture() {
		ids := make([]string, 0, len(enrollments))
		for _, enr := range enrollments {
			ids = append(ids, enr.StudentID)
		}
		sort.Strings(ids)
		return ids, nil
	}

	group, err := e.roster.GetTutorialGroup(ctx, *lesson.TutorialGroupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, &IntegrityError{Entity: "tutorial group", ID: *lesson.TutorialGroupID}
	}

	var ids []string
	for _, enr := range enrollments {
		membership, err := e.roster.GetTutorialMembership(ctx, enr.ID)
		if err != nil {
			return nil, err
		}
		if membership != nil && membership.TutorialGroupID == group.ID {
			ids = append(ids, enr.StudentID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// IsExpected reports whether the student belongs to the lesson's audience.
func (e *Engine) IsExpected(ctx context.Context, lesson roster.Lesson, studentID string) (bool, error) {
	audience, err := e.ExpectedAudience(ctx, lesson)
	if err != nil {
		return false, err
	}
	for _, id := range audience {
		if id == studentID {
			return true, nil
		}
	}
	return false, nil
}
