// Package worker implements the per-job state machine of the detection
// pipeline: fetch the image, run the detector, persist the summary, notify
// the front end, and only then let the queue message be acknowledged.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/annotate"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/detector"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/messaging"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/metrics"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/notify"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
)

// Notifier is the worker-side callback to the front end.
type Notifier interface {
	Notify(ctx context.Context, predictionID string) error
}

// DeliveryTracker records queue deliveries per prediction id. Optional.
type DeliveryTracker interface {
	Record(ctx context.Context, predictionID string) (int, error)
}

// Worker processes one prediction job at a time.
type Worker struct {
	store         storage.ObjectStore
	detector      detector.Detector
	results       results.Store
	notifier      Notifier
	tracker       DeliveryTracker
	metrics       *metrics.Metrics
	logger        *slog.Logger
	scratchDir    string
	detectTimeout time.Duration
}

// Config carries the worker's collaborators. Tracker may be nil.
type Config struct {
	Store         storage.ObjectStore
	Detector      detector.Detector
	Results       results.Store
	Notifier      Notifier
	Tracker       DeliveryTracker
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	ScratchDir    string
	DetectTimeout time.Duration
}

// New creates a worker and its scratch directory.
func New(cfg Config) (*Worker, error) {
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	return &Worker{
		store:         cfg.Store,
		detector:      cfg.Detector,
		results:       cfg.Results,
		notifier:      cfg.Notifier,
		tracker:       cfg.Tracker,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		scratchDir:    cfg.ScratchDir,
		detectTimeout: cfg.DetectTimeout,
	}, nil
}

// Handle runs one job through the state machine. A returned error abandons
// the job: the message is not acknowledged and becomes eligible for
// redelivery. Every step before the notify call must succeed first; the
// notify failure alone is tolerated because the persisted result remains
// the source of truth.
func (w *Worker) Handle(ctx context.Context, job messaging.Job) error {
	start := time.Now()
	logger := w.logger.With("prediction_id", job.PredictionID, "img_name", job.ImgName)
	logger.Info("job received")

	if w.tracker != nil {
		if seen, err := w.tracker.Record(ctx, job.PredictionID); err != nil {
			logger.Warn("failed to record delivery", "error", err)
		} else if seen > 1 {
			logger.Warn("duplicate delivery", "seen_count", seen)
		}
	}

	// FETCHING
	localPath, err := w.fetch(ctx, job)
	if err != nil {
		w.abandon(logger, "fetch", err)
		return err
	}
	defer os.Remove(localPath)

	// DETECTING
	labels, err := w.detect(ctx, localPath)
	if err != nil {
		w.abandon(logger, "detect", err)
		return err
	}
	logger.Info("detection finished", "labels", len(labels))

	// PERSISTING
	summary := results.PredictionSummary{
		PredictionID:    job.PredictionID,
		ChatID:          job.ChatID,
		Labels:          labels,
		OriginalImgPath: job.ImgName,
		Time:            float64(time.Now().UnixNano()) / float64(time.Second),
	}

	if len(labels) > 0 {
		predictedKey, err := w.uploadAnnotated(ctx, job, localPath, labels)
		if err != nil {
			w.abandon(logger, "annotate", err)
			return err
		}
		summary.PredictedImgPath = predictedKey
	}

	if err := w.results.Put(ctx, summary); err != nil {
		w.abandon(logger, "persist", err)
		return err
	}

	// NOTIFYING: fire and forget. The job is complete either way.
	callbackID := job.PredictionID
	if len(labels) == 0 {
		callbackID = notify.NoDetectionID(job.ChatID)
	}
	if err := w.notifier.Notify(ctx, callbackID); err != nil {
		logger.Warn("result callback failed, result remains retrievable", "error", err)
	}

	if w.metrics != nil {
		w.metrics.JobsCompleted.Inc()
		w.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())
	}
	logger.Info("job done", "duration", time.Since(start))
	return nil
}

func (w *Worker) fetch(ctx context.Context, job messaging.Job) (string, error) {
	rc, err := w.store.Download(ctx, job.ImgName)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", job.ImgName, err)
	}
	defer rc.Close()

	// Scratch names carry the prediction id so two workers on the same host
	// never trample each other's downloads.
	localPath := filepath.Join(w.scratchDir, job.PredictionID+"_"+filepath.Base(job.ImgName))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	if _, err := out.ReadFrom(rc); err != nil {
		out.Close()
		os.Remove(localPath)
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("failed to close scratch file: %w", err)
	}
	return localPath, nil
}

func (w *Worker) detect(ctx context.Context, localPath string) ([]results.Label, error) {
	if w.detectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.detectTimeout)
		defer cancel()
	}
	return w.detector.Detect(ctx, localPath)
}

func (w *Worker) uploadAnnotated(ctx context.Context, job messaging.Job, localPath string, labels []results.Label) (string, error) {
	annotatedPath := localPath + ".annotated" + filepath.Ext(localPath)
	if err := annotate.File(localPath, annotatedPath, labels); err != nil {
		return "", err
	}
	defer os.Remove(annotatedPath)

	f, err := os.Open(annotatedPath)
	if err != nil {
		return "", fmt.Errorf("failed to open annotated image: %w", err)
	}
	defer f.Close()

	key := storage.PredictedKey(job.ImgName)
	if err := w.store.Upload(ctx, key, f); err != nil {
		return "", fmt.Errorf("failed to upload annotated image: %w", err)
	}
	return key, nil
}

func (w *Worker) abandon(logger *slog.Logger, step string, err error) {
	if w.metrics != nil {
		w.metrics.JobsAbandoned.Inc()
	}
	logger.Error("abandoning job for redelivery", "step", step, "error", err)
}
