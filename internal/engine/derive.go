package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/detection"
	"campusattend/internal/metrics"
	"campusattend/internal/roster"
)

// LessonVerdicts derives one verdict per expected student of the lesson,
// ordered by student id. Detections from students outside the audience are
// ignored; they count toward neither expected nor counted.
func (e *Engine) LessonVerdicts(ctx context.Context, lesson roster.Lesson) ([]Verdict, error) {
	audience, err := e.ExpectedAudience(ctx, lesson)
	if err != nil {
		return nil, err
	}

	events, err := e.events.GetLessonEvents(ctx, lesson.ID)
	if err != nil {
		return nil, err
	}
	byStudent := make(map[string][]detection.Event)
	for _, evt := range events {
		byStudent[evt.StudentID] = append(byStudent[evt.StudentID], evt)
	}

	verdicts := make([]Verdict, 0, len(audience))
	for _, sid := range audience {
		verdicts = append(verdicts, Derive(lesson, sid, byStudent[sid], e.opts.LateThreshold))
	}
	return verdicts, nil
}

// DeriveAndCache recomputes the pair's verdict from its detection events and
// upserts it into the verdict store. Called by the worker after each ingested
// detection; safe to re-run at any time.
func (e *Engine) DeriveAndCache(ctx context.Context, studentID, lessonID string) (Verdict, error) {
	lesson, err := e.roster.GetLesson(ctx, lessonID)
	if err != nil {
		return Verdict{}, err
	}
	if lesson == nil {
		return Verdict{}, &IntegrityError{Entity: "lesson", ID: lessonID}
	}

	events, err := e.events.GetEvents(ctx, studentID, lessonID)
	if err != nil {
		return Verdict{}, err
	}
	v := Derive(*lesson, studentID, events, e.opts.LateThreshold)

	key := "verdict:" + studentID + ":" + lessonID
	err = e.withKeyLock(ctx, key, func() error {
		return e.verdicts.Upsert(ctx, v)
	})
	if err != nil {
		return Verdict{}, err
	}
	metrics.VerdictsDerived.WithLabelValues(string(v.Status)).Inc()
	return v, nil
}

// Override forces a verdict for a (student, lesson) pair. The pair's
// detection events are rewritten so a later re-derivation reproduces the
// forced status: absent deletes the pair's events, present inserts a
// synthetic event at lesson start, late replaces the events with one just
// past the threshold. Serialized per pair.
func (e *Engine) Override(ctx context.Context, lessonID, studentID string, status Status, remark string) (Verdict, error) {
	lesson, err := e.roster.GetLesson(ctx, lessonID)
	if err != nil {
		return Verdict{}, err
	}
	if lesson == nil {
		return Verdict{}, &IntegrityError{Entity: "lesson", ID: lessonID}
	}

	var out Verdict
	key := "verdict:" + studentID + ":" + lessonID
	err = e.withKeyLock(ctx, key, func() error {
		switch status {
		case StatusAbsent:
			if err := e.events.DeleteEvents(ctx, studentID, lessonID); err != nil {
				return err
			}
		case StatusPresent:
			if err := e.insertSynthetic(ctx, studentID, lessonID, lesson.Start); err != nil {
				return err
			}
		case StatusLate:
			// Existing on-time events would keep firstSeen before the
			// threshold, so they have to go.
			if err := e.events.DeleteEvents(ctx, studentID, lessonID); err != nil {
				return err
			}
			seenAt := lesson.Start.Add(e.opts.LateThreshold + time.Minute)
			if err := e.insertSynthetic(ctx, studentID, lessonID, seenAt); err != nil {
				return err
			}
		}

		events, err := e.events.GetEvents(ctx, studentID, lessonID)
		if err != nil {
			return err
		}
		out = Derive(*lesson, studentID, events, e.opts.LateThreshold)
		out.Remark = remark
		return e.verdicts.Upsert(ctx, out)
	})
	if err != nil {
		return Verdict{}, err
	}

	e.logger.Info("verdict overridden",
		zap.String("student_id", studentID),
		zap.String("lesson_id", lessonID),
		zap.String("status", string(out.Status)))
	metrics.VerdictsDerived.WithLabelValues(string(out.Status)).Inc()
	return out, nil
}

func (e *Engine) insertSynthetic(ctx context.Context, studentID, lessonID string, seenAt time.Time) error {
	_, err := e.events.InsertEvent(ctx, detection.Event{
		StudentID: studentID,
		LessonID:  lessonID,
		SeenAt:    seenAt,
		Source:    detection.SourceManual,
	})
	return err
}
