package messaging

import (
	"errors"
	"time"
)

// Job is the descriptor sent over the work queue for a single prediction.
//
// PredictionID is assigned by the submitter and is the sole join key between
// a submission and its eventual result. It must never be derived from the
// queue's own delivery handle: that handle changes on redelivery and would
// break correlation after a worker crash.
type Job struct {
	PredictionID string `json:"prediction_id"`
	ImgName      string `json:"imgName"`
	ChatID       int64  `json:"chat_id"`
	SubmittedAt  string `json:"submitted_at,omitempty"`
}

// NewJob builds a descriptor stamped with the current time.
func NewJob(predictionID, imgName string, chatID int64) Job {
	return Job{
		PredictionID: predictionID,
		ImgName:      imgName,
		ChatID:       chatID,
		SubmittedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

// Validate rejects malformed descriptors before they enter the worker's
// state machine.
func (j Job) Validate() error {
	if j.PredictionID == "" {
		return errors.New("job is missing prediction_id")
	}
	if j.ImgName == "" {
		return errors.New("job is missing imgName")
	}
	if j.ChatID == 0 {
		return errors.New("job is missing chat_id")
	}
	return nil
}
