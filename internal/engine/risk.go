package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"campusattend/internal/metrics"
	"campusattend/internal/notify"
)

// RiskStatus says whether a student is meeting their attendance goal.
type RiskStatus string

const (
	RiskOnTrack RiskStatus = "on_track"
	RiskAtRisk  RiskStatus = "at_risk"
)

// TitleAtRisk is the notification title risk evaluation dedupes on.
const TitleAtRisk = "AtRisk"

// RiskReport is the outcome of one risk evaluation.
type RiskReport struct {
	StudentID string     `json:"student_id"`
	Status    RiskStatus `json:"status"`
	Rate      Rate       `json:"rate"`
	Goal      float64    `json:"goal"`
}

// EvaluateRisk compares the student's current-quarter rate against their
// goal and, when below it, upserts a deduplicated at-risk notification.
// Running it repeatedly for a still-at-risk student leaves exactly one
// unread notification with the AtRisk title.
func (e *Engine) EvaluateRisk(ctx context.Context, studentID string) (RiskReport, error) {
	student, err := e.roster.GetStudent(ctx, studentID)
	if err != nil {
		return RiskReport{}, err
	}
	if student == nil || student.Role.Student == nil {
		return RiskReport{}, &IntegrityError{Entity: "student", ID: studentID}
	}

	goal := e.opts.DefaultGoal
	if g := student.Role.Student.Goal; g != nil {
		goal = *g
	}

	rate, err := e.StudentQuarterRate(ctx, studentID)
	if err != nil {
		return RiskReport{}, err
	}

	report := RiskReport{StudentID: studentID, Status: RiskOnTrack, Rate: rate, Goal: goal}
	if rate.RatePercent >= goal {
		return report, nil
	}
	report.Status = RiskAtRisk

	if err := e.emitAtRisk(ctx, studentID, rate, goal); err != nil {
		return RiskReport{}, err
	}
	return report, nil
}

// emitAtRisk dedupes unread notifications by title before upserting: only
// the most recently generated survives, older ones are deleted. Serialized
// per (student, title) so two concurrent evaluations can't race each other
// into duplicate alert spam.
func (e *Engine) emitAtRisk(ctx context.Context, studentID string, rate Rate, goal float64) error {
	key := "notify:" + studentID + ":" + TitleAtRisk
	return e.withKeyLock(ctx, key, func() error {
		unread, err := e.notifs.ListUnread(ctx, studentID)
		if err != nil {
			return err
		}
		seen := false
		for _, n := range unread { // newest first
			if n.Title != TitleAtRisk {
				continue
			}
			if !seen {
				seen = true
				continue
			}
			if err := e.notifs.Delete(ctx, n.ID); err != nil {
				return err
			}
		}

		_, err = e.notifs.Upsert(ctx, notify.Notification{
			StudentID: studentID,
			Title:     TitleAtRisk,
			Type:      "attendance_risk",
			Message: fmt.Sprintf("Your attendance is %.1f%%, below your %.0f%% goal for this quarter.",
				rate.RatePercent, goal),
			Metadata: map[string]any{
				"rate":     rate.RatePercent,
				"goal":     goal,
				"expected": rate.Expected,
				"counted":  rate.Counted,
			},
			CreatedAt: e.clock.Now(),
		})
		if err != nil {
			return err
		}

		metrics.NotificationsEmitted.Inc()
		e.logger.Info("at-risk notification emitted",
			zap.String("student_id", studentID),
			zap.Float64("rate", rate.RatePercent),
			zap.Float64("goal", goal))
		return nil
	})
}
