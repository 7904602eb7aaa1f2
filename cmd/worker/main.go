package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"campusattend/internal/config"
	"campusattend/internal/detection"
	"campusattend/internal/engine"
	"campusattend/internal/faceclient"
	"campusattend/internal/logger"
	"campusattend/internal/notify"
	"campusattend/internal/queue"
	"campusattend/internal/roster"
	"campusattend/internal/store"
)

// Worker consumes ingested detections, derives and caches verdicts, and
// periodically sweeps students for attendance risk.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		zlog.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL, store.Pool{
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		zlog.Fatal("db connect failed", zap.Error(err))
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisTimeout)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "campusattend:detections")
	}

	rosterRepo := roster.NewRepository(db.Client)
	detectionRepo := detection.NewRepository(db.Client)
	verdictStore := engine.NewPGVerdictStore(db.Client)
	notifStore := notify.NewStore(db.Client)

	eng := engine.New(rosterRepo, detectionRepo, verdictStore, notifStore, engine.SystemClock{}, zlog, engine.Options{
		LateThreshold: cfg.LateThreshold,
		DefaultGoal:   cfg.DefaultGoal,
	})

	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			zlog.Warn("face service not available, will retry as events arrive", zap.Error(err))
		} else {
			zlog.Info("face service connected")
		}
	}

	go riskSweep(ctx, eng, rosterRepo, cfg.RiskSweepInterval, zlog)

	messages, err := q.Consume(ctx)
	if err != nil {
		zlog.Fatal("queue consume init failed", zap.Error(err))
	}

	detSvc := detection.NewService(detectionRepo, 30*time.Second, zlog)

	zlog.Info("worker started, waiting for messages")
	for msg := range messages {
		switch msg.Type {
		case queue.TypeDetection:
			id := string(msg.Body)
			evt, err := detectionRepo.GetEvent(ctx, id)
			if err != nil {
				zlog.Error("fetch event failed", zap.String("event_id", id), zap.Error(err))
				continue
			}
			if evt == nil {
				zlog.Warn("event vanished before processing", zap.String("event_id", id))
				continue
			}
			deriveOne(ctx, eng, evt.StudentID, evt.LessonID, zlog)

		case queue.TypeFrame:
			var frame queue.Frame
			if err := json.Unmarshal(msg.Body, &frame); err != nil {
				zlog.Warn("bad frame payload", zap.Error(err))
				continue
			}
			match, err := face.Identify(ctx, frame.SnapshotURL, 0.6)
			if err != nil {
				zlog.Error("face identify failed", zap.String("lesson_id", frame.LessonID), zap.Error(err))
				continue
			}
			if match == nil {
				zlog.Debug("frame matched nobody", zap.String("lesson_id", frame.LessonID))
				continue
			}
			if _, err := detSvc.Record(ctx, match.UserID, frame.LessonID, frame.SnapshotURL, frame.SeenAt); err != nil {
				zlog.Error("record identified detection failed", zap.Error(err))
				continue
			}
			deriveOne(ctx, eng, match.UserID, frame.LessonID, zlog)
		}
	}

	zlog.Info("worker stopped")
}

func deriveOne(ctx context.Context, eng *engine.Engine, studentID, lessonID string, zlog *zap.Logger) {
	v, err := eng.DeriveAndCache(ctx, studentID, lessonID)
	if err != nil {
		zlog.Error("derivation failed",
			zap.String("student_id", studentID),
			zap.String("lesson_id", lessonID),
			zap.Error(err))
		return
	}
	zlog.Debug("verdict cached",
		zap.String("student_id", v.StudentID),
		zap.String("lesson_id", v.LessonID),
		zap.String("status", string(v.Status)))
}

// riskSweep re-evaluates every student on a fixed interval so goal changes
// and newly completed lessons surface as notifications without an explicit
// request. Per-student failures are logged and skipped; the sweep goes on.
func riskSweep(ctx context.Context, eng *engine.Engine, rosterRepo *roster.Repository, interval time.Duration, zlog *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ids, err := rosterRepo.ListStudentIDs(ctx, "")
		if err != nil {
			zlog.Error("risk sweep: list students failed", zap.Error(err))
			continue
		}

		atRisk := 0
		for _, id := range ids {
			report, err := eng.EvaluateRisk(ctx, id)
			if err != nil {
				zlog.Warn("risk sweep: evaluation failed", zap.String("student_id", id), zap.Error(err))
				continue
			}
			if report.Status == engine.RiskAtRisk {
				atRisk++
			}
		}
		zlog.Info("risk sweep complete", zap.Int("students", len(ids)), zap.Int("at_risk", atRisk))
	}
}
