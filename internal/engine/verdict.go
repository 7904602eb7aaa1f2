package engine

import (
	"math"
	"time"

	"campusattend/internal/detection"
	"campusattend/internal/roster"
)

// Status is the derived attendance verdict for one (student, lesson) pair.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusLate || s == StatusAbsent
}

// Letter returns the single-letter form used by matrix reports.
func (s Status) Letter() string {
	switch s {
	case StatusPresent:
		return "P"
	case StatusLate:
		return "L"
	default:
		return "A"
	}
}

// Attended reports whether the status counts toward attendance rates.
func (s Status) Attended() bool { return s == StatusPresent || s == StatusLate }

// Verdict is derived data, recomputable at any time from the lesson and its
// detection events. Downstream consumers persist it as a cache.
type Verdict struct {
	StudentID string     `json:"student_id"`
	LessonID  string     `json:"lesson_id"`
	Status    Status     `json:"status"`
	FirstSeen *time.Time `json:"first_seen,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	Remark    string     `json:"remark,omitempty"`
}

// Derive computes the verdict for one student at one lesson from that pair's
// detection events. Pure: identical inputs yield identical output.
//
// No events means absent. Otherwise first/last seen are the min/max
// timestamps and the student is late iff the first sighting is strictly
// after lesson start plus the threshold: a detection at exactly start+T is
// still present.
func Derive(lesson roster.Lesson, studentID string, events []detection.Event, lateThreshold time.Duration) Verdict {
	v := Verdict{StudentID: studentID, LessonID: lesson.ID, Status: StatusAbsent}
	if len(events) == 0 {
		return v
	}

	first, last := events[0].SeenAt, events[0].SeenAt
	for _, evt := range events[1:] {
		if evt.SeenAt.Before(first) {
			first = evt.SeenAt
		}
		if evt.SeenAt.After(last) {
			last = evt.SeenAt
		}
	}
	v.FirstSeen, v.LastSeen = &first, &last

	if first.After(lesson.Start.Add(lateThreshold)) {
		v.Status = StatusLate
	} else {
		v.Status = StatusPresent
	}
	return v
}

// Rate is an attendance rate over some set of lessons.
type Rate struct {
	Expected    int     `json:"expected"`
	Counted     int     `json:"counted"`
	RatePercent float64 `json:"rate_percent"`
}

// ComputeRate applies the clamp invariant and computes the percentage.
// Counted attendance is capped at the expected population before dividing,
// so a rate can never exceed 100 even when stale verdict rows outnumber the
// current audience. Zero expected yields 0.0, not a division fault.
func ComputeRate(expected, counted int) Rate {
	if counted > expected {
		counted = expected
	}
	r := Rate{Expected: expected, Counted: counted}
	if expected > 0 {
		r.RatePercent = math.Round(float64(counted)/float64(expected)*1000) / 10
	}
	return r
}

// QuarterBounds returns the half-open [start, end) of the calendar quarter
// containing t. Q1 Jan-Mar, Q2 Apr-Jun, Q3 Jul-Sep, Q4 Oct-Dec.
func QuarterBounds(t time.Time) (time.Time, time.Time) {
	q := (int(t.Month()) - 1) / 3
	start := time.Date(t.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, t.Location())
	return start, start.AddDate(0, 3, 0)
}
