package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"campusattend/internal/detection"
	"campusattend/internal/engine"
	"campusattend/internal/export"
	"campusattend/internal/metrics"
	"campusattend/internal/notify"
	"campusattend/internal/queue"
	"campusattend/internal/report"
	"campusattend/internal/roster"
)

// Handler serves the attendance API over the engine and its collaborators.
type Handler struct {
	detections *detection.Service
	eng        *engine.Engine
	compiler   *report.Compiler
	roster     *roster.Repository
	notifs     *notify.Store
	q          queue.Queue
	logger     *zap.Logger
}

// New creates a handler.
func New(det *detection.Service, eng *engine.Engine, compiler *report.Compiler, ros *roster.Repository, notifs *notify.Store, q queue.Queue, logger *zap.Logger) *Handler {
	return &Handler{
		detections: det,
		eng:        eng,
		compiler:   compiler,
		roster:     ros,
		notifs:     notifs,
		q:          q,
		logger:     logger,
	}
}

// Register mounts all routes on the (already authenticated) group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/detections", h.RecordDetection)
	g.GET("/lessons/:id/verdicts", h.LessonVerdicts)
	g.PUT("/lessons/:id/verdicts/:student_id", h.OverrideVerdict)
	g.GET("/modules/:id/rate", h.ModuleRate)
	g.GET("/campuses/:id/rate", h.CampusRate)
	g.GET("/students/:id/risk", h.StudentRisk)
	g.GET("/students/:id/notifications", h.Notifications)
	g.POST("/notifications/:id/read", h.MarkNotificationRead)
	g.GET("/reports/detailed", h.DetailedReport)
	g.GET("/reports/matrix", h.MatrixReport)
}

// ---------- Detections ----------

type detectionRequest struct {
	StudentID   string    `json:"student_id"`
	LessonID    string    `json:"lesson_id" binding:"required"`
	SeenAt      time.Time `json:"seen_at" binding:"required"`
	SnapshotURL string    `json:"snapshot_url"`
}

// RecordDetection ingests one raw sighting and queues it for derivation.
// A sighting without a student id but with a snapshot is queued as a frame
// for the worker to identify first.
func (h *Handler) RecordDetection(c *gin.Context) {
	var req detectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.StudentID == "" {
		if req.SnapshotURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id or snapshot_url required"})
			return
		}
		body, _ := json.Marshal(queue.Frame{
			LessonID:    req.LessonID,
			SnapshotURL: req.SnapshotURL,
			SeenAt:      req.SeenAt,
		})
		if err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeFrame, Body: body}); err != nil {
			h.logger.Error("queue publish failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue unavailable"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"queued": "frame"})
		return
	}

	evt, err := h.detections.Record(c.Request.Context(), req.StudentID, req.LessonID, req.SnapshotURL, req.SeenAt)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	metrics.DetectionsIngested.Inc()

	if err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeDetection, Body: []byte(evt.ID)}); err != nil {
		h.logger.Error("queue publish failed", zap.Error(err))
	}

	c.JSON(http.StatusAccepted, gin.H{"event_id": evt.ID, "seen_at": evt.SeenAt})
}

// ---------- Verdicts ----------

// LessonVerdicts derives the verdict for every expected student of a lesson.
func (h *Handler) LessonVerdicts(c *gin.Context) {
	lesson, ok := h.loadLesson(c)
	if !ok {
		return
	}
	verdicts, err := h.eng.LessonVerdicts(c.Request.Context(), *lesson)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lesson_id": lesson.ID, "verdicts": verdicts})
}

type overrideRequest struct {
	Status engine.Status `json:"status" binding:"required"`
	Remark string        `json:"remark"`
}

// OverrideVerdict lets an operator force a verdict for one pair.
func (h *Handler) OverrideVerdict(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be present, late or absent"})
		return
	}

	v, err := h.eng.Override(c.Request.Context(), c.Param("id"), c.Param("student_id"), req.Status, req.Remark)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// ---------- Rates ----------

// ModuleRate aggregates attendance over a module's completed lessons.
func (h *Handler) ModuleRate(c *gin.Context) {
	rng, ok := h.parseRange(c)
	if !ok {
		return
	}
	rate, err := h.eng.AggregateModule(c.Request.Context(), c.Param("id"), rng)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

// CampusRate aggregates attendance across a campus.
func (h *Handler) CampusRate(c *gin.Context) {
	rng, ok := h.parseRange(c)
	if !ok {
		return
	}
	rate, err := h.eng.AggregateCampus(c.Request.Context(), c.Param("id"), rng)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

// ---------- Risk & notifications ----------

// StudentRisk evaluates the student's current-quarter rate against their goal.
func (h *Handler) StudentRisk(c *gin.Context) {
	report, err := h.eng.EvaluateRisk(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Notifications lists the student's unread notifications.
func (h *Handler) Notifications(c *gin.Context) {
	list, err := h.notifs.ListUnread(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// MarkNotificationRead flags a notification as read.
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	if err := h.notifs.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Reports ----------

// DetailedReport compiles the daily shape; format=xlsx streams a workbook.
func (h *Handler) DetailedReport(c *gin.Context) {
	criteria, ok := h.parseCriteria(c)
	if !ok {
		return
	}
	criteria.Status = engine.Status(c.Query("status"))
	if criteria.Status != "" && !criteria.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status filter"})
		return
	}

	rows, err := h.compiler.Detailed(c.Request.Context(), criteria)
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		buf, filename, err := export.Detailed(rows, h.moduleCode(c.Request.Context(), criteria.ModuleID))
		if err != nil {
			h.fail(c, err)
			return
		}
		h.sendXLSX(c, buf.Bytes(), filename)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rows": rows})
}

// MatrixReport compiles the monthly shape; format=xlsx streams a workbook.
func (h *Handler) MatrixReport(c *gin.Context) {
	criteria, ok := h.parseCriteria(c)
	if !ok {
		return
	}

	m, err := h.compiler.CompileMatrix(c.Request.Context(), criteria)
	if err != nil {
		h.fail(c, err)
		return
	}

	if c.Query("format") == "xlsx" {
		buf, filename, err := export.Matrix(m, h.moduleCode(c.Request.Context(), criteria.ModuleID))
		if err != nil {
			h.fail(c, err)
			return
		}
		h.sendXLSX(c, buf.Bytes(), filename)
		return
	}
	c.JSON(http.StatusOK, m)
}

// ---------- Helpers ----------

func (h *Handler) loadLesson(c *gin.Context) (*roster.Lesson, bool) {
	lesson, err := h.roster.GetLesson(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if lesson == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "lesson not found"})
		return nil, false
	}
	return lesson, true
}

func (h *Handler) parseRange(c *gin.Context) (roster.LessonFilter, bool) {
	var rng roster.LessonFilter
	var ok bool
	if rng.From, ok = h.parseTime(c, "from"); !ok {
		return rng, false
	}
	if rng.To, ok = h.parseTime(c, "to"); !ok {
		return rng, false
	}
	return rng, true
}

func (h *Handler) parseCriteria(c *gin.Context) (report.Criteria, bool) {
	criteria := report.Criteria{
		ModuleID:        c.Query("module_id"),
		TutorialGroupID: c.Query("tutorial_group_id"),
	}
	var ok bool
	if criteria.From, ok = h.parseTime(c, "from"); !ok {
		return criteria, false
	}
	if criteria.To, ok = h.parseTime(c, "to"); !ok {
		return criteria, false
	}
	return criteria, true
}

func (h *Handler) parseTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + ", want RFC3339 or YYYY-MM-DD"})
	return time.Time{}, false
}

func (h *Handler) moduleCode(ctx context.Context, moduleID string) string {
	if mod, err := h.roster.GetModule(ctx, moduleID); err == nil && mod != nil {
		return mod.Code
	}
	return moduleID
}

func (h *Handler) sendXLSX(c *gin.Context, data []byte, filename string) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// fail maps engine errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case engine.IsIntegrity(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrInvalidRange) || errors.Is(err, report.ErrModuleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrWriteConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, report.ErrNoLessons):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
