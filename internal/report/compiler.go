// Package report assembles tabular attendance rows for export. The compiler
// returns structured rows only; serialization to files lives in the export
// package.
package report

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/engine"
	"campusattend/internal/metrics"
	"campusattend/internal/roster"
)

var (
	// ErrModuleRequired marks criteria without a module.
	ErrModuleRequired = errors.New("report criteria require a module")
	// ErrNoLessons marks a range containing no completed lessons.
	ErrNoLessons = errors.New("no completed lessons in range")
)

// Criteria selects what a report covers. Status filters the detailed shape
// only; the matrix shape always lists full history per student.
type Criteria struct {
	ModuleID        string
	TutorialGroupID string
	From            time.Time
	To              time.Time
	Status          engine.Status
}

// DetailedRow is one (student, lesson) line with its check-in time.
type DetailedRow struct {
	StudentID   string        `json:"student_id"`
	LessonID    string        `json:"lesson_id"`
	LessonStart time.Time     `json:"lesson_start"`
	Location    string        `json:"location"`
	Status      engine.Status `json:"status"`
	CheckIn     *time.Time    `json:"check_in,omitempty"`
}

// MatrixRow is one student's full history: one status letter per lesson
// date, "-" where the student was not expected, plus a trailing percentage.
type MatrixRow struct {
	StudentID   string   `json:"student_id"`
	Cells       []string `json:"cells"`
	RatePercent float64  `json:"rate_percent"`
}

// Matrix is the monthly shape: a lesson-date header plus one row per student.
type Matrix struct {
	Dates []time.Time `json:"dates"`
	Rows  []MatrixRow `json:"rows"`
}

const compileWorkers = 4

// Compiler builds report rows on top of the derivation engine.
type Compiler struct {
	engine *engine.Engine
	roster engine.RosterStore
	clock  engine.Clock
	logger *zap.Logger
}

// NewCompiler creates a compiler.
func NewCompiler(eng *engine.Engine, ros engine.RosterStore, clock engine.Clock, logger *zap.Logger) *Compiler {
	if clock == nil {
		clock = engine.SystemClock{}
	}
	return &Compiler{engine: eng, roster: ros, clock: clock, logger: logger}
}

// lessonVerdicts resolves the criteria to completed lessons and derives each
// lesson's verdicts with a fixed fan-out, then joins the results back in
// lesson-start order. Any per-lesson failure aborts the whole compilation;
// no partial result is ever returned.
func (c *Compiler) lessonVerdicts(ctx context.Context, criteria Criteria) ([]roster.Lesson, [][]engine.Verdict, error) {
	if criteria.ModuleID == "" {
		return nil, nil, ErrModuleRequired
	}
	if !criteria.From.IsZero() && !criteria.To.IsZero() && criteria.To.Before(criteria.From) {
		return nil, nil, engine.ErrInvalidRange
	}

	all, err := c.roster.GetLessons(ctx, roster.LessonFilter{
		ModuleID:        criteria.ModuleID,
		TutorialGroupID: criteria.TutorialGroupID,
		From:            criteria.From,
		To:              criteria.To,
	})
	if err != nil {
		return nil, nil, err
	}

	now := c.clock.Now()
	var lessons []roster.Lesson
	for _, l := range all {
		if l.CompletedBy(now) {
			lessons = append(lessons, l)
		}
	}
	if len(lessons) == 0 {
		return nil, nil, ErrNoLessons
	}
	sort.Slice(lessons, func(i, j int) bool { return lessons[i].Start.Before(lessons[j].Start) })

	results := make([][]engine.Verdict, len(lessons))
	errs := make([]error, len(lessons))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < compileWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = c.engine.LessonVerdicts(ctx, lessons[i])
			}
		}()
	}
	for i := range lessons {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, nil, err
		}
	}
	return lessons, results, nil
}

// Detailed compiles one row per (student, lesson) pair within the computed
// audience, optionally filtered by status.
func (c *Compiler) Detailed(ctx context.Context, criteria Criteria) ([]DetailedRow, error) {
	lessons, verdicts, err := c.lessonVerdicts(ctx, criteria)
	if err != nil {
		return nil, err
	}

	var rows []DetailedRow
	for i, lesson := range lessons {
		for _, v := range verdicts[i] {
			if criteria.Status != "" && v.Status != criteria.Status {
				continue
			}
			rows = append(rows, DetailedRow{
				StudentID:   v.StudentID,
				LessonID:    lesson.ID,
				LessonStart: lesson.Start,
				Location:    lesson.Location,
				Status:      v.Status,
				CheckIn:     v.FirstSeen,
			})
		}
	}

	metrics.ReportRows.WithLabelValues("detailed").Add(float64(len(rows)))
	c.logger.Debug("detailed report compiled",
		zap.String("module_id", criteria.ModuleID),
		zap.Int("rows", len(rows)))
	return rows, nil
}

// CompileMatrix compiles one row per student with one status letter per
// lesson date and a trailing percentage. The status filter does not apply
// here: the matrix always shows full history.
func (c *Compiler) CompileMatrix(ctx context.Context, criteria Criteria) (Matrix, error) {
	criteria.Status = ""
	lessons, verdicts, err := c.lessonVerdicts(ctx, criteria)
	if err != nil {
		return Matrix{}, err
	}

	byStudent := make(map[string]map[string]engine.Verdict) // student -> lesson -> verdict
	for i, lesson := range lessons {
		for _, v := range verdicts[i] {
			if byStudent[v.StudentID] == nil {
				byStudent[v.StudentID] = make(map[string]engine.Verdict)
			}
			byStudent[v.StudentID][lesson.ID] = v
		}
	}

	students := make([]string, 0, len(byStudent))
	for sid := range byStudent {
		students = append(students, sid)
	}
	sort.Strings(students)

	m := Matrix{Dates: make([]time.Time, len(lessons))}
	for i, lesson := range lessons {
		m.Dates[i] = lesson.Start
	}

	for _, sid := range students {
		row := MatrixRow{StudentID: sid, Cells: make([]string, len(lessons))}
		expected, attended := 0, 0
		for i, lesson := range lessons {
			v, ok := byStudent[sid][lesson.ID]
			if !ok {
				// Not in this lesson's audience (another group's tutorial).
				row.Cells[i] = "-"
				continue
			}
			row.Cells[i] = v.Status.Letter()
			expected++
			if v.Status.Attended() {
				attended++
			}
		}
		row.RatePercent = engine.ComputeRate(expected, attended).RatePercent
		m.Rows = append(m.Rows, row)
	}

	metrics.ReportRows.WithLabelValues("matrix").Add(float64(len(m.Rows)))
	return m, nil
}
