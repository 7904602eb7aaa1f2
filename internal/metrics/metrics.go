package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// VerdictsDerived counts cached verdict writes by resulting status.
	VerdictsDerived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_verdicts_derived_total",
		Help: "Verdicts derived and cached, by status.",
	}, []string{"status"})

	// NotificationsEmitted counts at-risk notifications upserted.
	NotificationsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_notifications_emitted_total",
		Help: "At-risk notifications emitted.",
	})

	// ReportRows counts compiled report rows by shape.
	ReportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_report_rows_total",
		Help: "Report rows compiled, by shape.",
	}, []string{"shape"})

	// DetectionsIngested counts accepted detection events.
	DetectionsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "attendance_detections_ingested_total",
		Help: "Raw detection events accepted for processing.",
	})
)
