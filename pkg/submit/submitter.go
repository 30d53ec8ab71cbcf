package submit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/messaging"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
)

// Publisher enqueues a job descriptor.
type Publisher interface {
	PublishJob(ctx context.Context, job messaging.Job) error
}

// Submitter converts an accepted image into a stored blob plus an enqueued
// job descriptor, and hands the prediction id back without waiting for the
// worker.
type Submitter struct {
	store  storage.ObjectStore
	queue  Publisher
	logger *slog.Logger
}

// NewSubmitter creates a submitter over the given store and queue.
func NewSubmitter(store storage.ObjectStore, queue Publisher, logger *slog.Logger) *Submitter {
	return &Submitter{store: store, queue: queue, logger: logger}
}

// Submit uploads the image under its original filename, assigns a fresh
// prediction id and publishes the job. An enqueue failure surfaces to the
// caller; nothing is retried here, the user resubmits instead.
func (s *Submitter) Submit(ctx context.Context, imgName string, r io.Reader, chatID int64) (string, error) {
	imgName = path.Base(imgName)
	if imgName == "" || imgName == "." || imgName == "/" {
		return "", fmt.Errorf("invalid image name")
	}

	if err := s.store.Upload(ctx, imgName, r); err != nil {
		return "", fmt.Errorf("failed to store image %s: %w", imgName, err)
	}

	predictionID := uuid.New().String()
	job := messaging.NewJob(predictionID, imgName, chatID)

	if err := s.queue.PublishJob(ctx, job); err != nil {
		return "", fmt.Errorf("failed to enqueue job for %s: %w", imgName, err)
	}

	s.logger.Info("job submitted", "prediction_id", predictionID, "img_name", imgName, "chat_id", chatID)
	return predictionID, nil
}
