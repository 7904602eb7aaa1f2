package engine

import (
	"context"

	"campusattend/internal/roster"
)

// Aggregate combines derived verdicts across the given lessons into one
// attendance rate. Expected populations come from the eligibility resolver
// per lesson, never a flat enrollment count, because lecture and tutorial
// audiences differ. Only lessons that ended before the injected clock's now
// enter the denominator; a lesson in progress is neither attended nor not.
//
// The computation is all-or-nothing: any per-lesson failure aborts the whole
// aggregate and no partial rate is returned.
func (e *Engine) Aggregate(ctx context.Context, lessons []roster.Lesson) (Rate, error) {
	now := e.clock.Now()
	expected, counted := 0, 0
	for _, lesson := range lessons {
		if !lesson.CompletedBy(now) {
			continue
		}
		verdicts, err := e.LessonVerdicts(ctx, lesson)
		if err != nil {
			return Rate{}, err
		}
		expected += len(verdicts)
		for _, v := range verdicts {
			if v.Status.Attended() {
				counted++
			}
		}
	}
	return ComputeRate(expected, counted), nil
}

// AggregateModule computes the attendance rate for all of a module's
// completed lessons, optionally bounded by a date range.
func (e *Engine) AggregateModule(ctx context.Context, moduleID string, rng roster.LessonFilter) (Rate, error) {
	if moduleID == "" {
		return Rate{}, &IntegrityError{Entity: "module", ID: moduleID}
	}
	if err := validateRange(rng); err != nil {
		return Rate{}, err
	}
	mod, err := e.roster.GetModule(ctx, moduleID)
	if err != nil {
		return Rate{}, err
	}
	if mod == nil {
		return Rate{}, &IntegrityError{Entity: "module", ID: moduleID}
	}
	rng.ModuleID = moduleID
	lessons, err := e.roster.GetLessons(ctx, rng)
	if err != nil {
		return Rate{}, err
	}
	return e.Aggregate(ctx, lessons)
}

// AggregateCampus computes the attendance rate across all modules of a
// campus, optionally bounded by a date range.
func (e *Engine) AggregateCampus(ctx context.Context, campusID string, rng roster.LessonFilter) (Rate, error) {
	if err := validateRange(rng); err != nil {
		return Rate{}, err
	}
	rng.CampusID = campusID
	lessons, err := e.roster.GetLessons(ctx, rng)
	if err != nil {
		return Rate{}, err
	}
	return e.Aggregate(ctx, lessons)
}

// StudentQuarterRate computes one student's attendance rate over the current
// calendar quarter: completed lessons of their enrolled modules where they
// are in the expected audience. Tutorial lessons of groups the student does
// not belong to stay out of the denominator.
func (e *Engine) StudentQuarterRate(ctx context.Context, studentID string) (Rate, error) {
	from, to := QuarterBounds(e.clock.Now())
	lessons, err := e.roster.GetLessons(ctx, roster.LessonFilter{StudentID: studentID, From: from, To: to})
	if err != nil {
		return Rate{}, err
	}

	now := e.clock.Now()
	expected, counted := 0, 0
	for _, lesson := range lessons {
		if !lesson.CompletedBy(now) {
			continue
		}
		eligible, err := e.IsExpected(ctx, lesson, studentID)
		if err != nil {
			return Rate{}, err
		}
		if !eligible {
			continue
		}
		events, err := e.events.GetEvents(ctx, studentID, lesson.ID)
		if err != nil {
			return Rate{}, err
		}
		expected++
		if Derive(lesson, studentID, events, e.opts.LateThreshold).Status.Attended() {
			counted++
		}
	}
	return ComputeRate(expected, counted), nil
}

func validateRange(rng roster.LessonFilter) error {
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return ErrInvalidRange
	}
	return nil
}
