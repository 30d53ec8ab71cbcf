//go:build !gocv
// +build !gocv

package detector

import (
	"context"
	"errors"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
)

// YOLODetector is a placeholder when the binary is built without the gocv
// build tag (OpenCV not installed).
type YOLODetector struct {
	names []string
}

// NewYOLODetector returns the stub detector.
func NewYOLODetector(modelPath string, names []string) (*YOLODetector, error) {
	_ = modelPath
	return &YOLODetector{names: names}, nil
}

// Detect reports that detection is unavailable in this build.
func (d *YOLODetector) Detect(ctx context.Context, imagePath string) ([]results.Label, error) {
	_ = ctx
	_ = imagePath
	return nil, errors.New("gocv build tag is not enabled")
}

// Close is a no-op for the stub.
func (d *YOLODetector) Close() error {
	return nil
}

var _ Detector = (*YOLODetector)(nil)
