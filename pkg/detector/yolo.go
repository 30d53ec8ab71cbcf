//go:build gocv
// +build gocv

package detector

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
)

const (
	inputSize      = 640
	confThreshold  = 0.25
	scoreThreshold = 0.45
	nmsThreshold   = 0.45
)

// YOLODetector runs a YOLOv5 ONNX model through the OpenCV DNN module.
type YOLODetector struct {
	net   gocv.Net
	names []string
}

// NewYOLODetector loads the model weights and the class name list.
func NewYOLODetector(modelPath string, names []string) (*YOLODetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", modelPath)
	}
	return &YOLODetector{net: net, names: names}, nil
}

// Detect runs the model on the image at imagePath and returns labels with
// boxes normalized to [0,1]. Zero detections is a valid, empty result.
func (d *YOLODetector) Detect(ctx context.Context, imagePath string) ([]results.Label, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, fmt.Errorf("failed to decode image %s", imagePath)
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(inputSize, inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	labels := d.decode(output)
	return labels, nil
}

// decode walks the raw output rows (cx, cy, w, h, objectness, class scores)
// and keeps the best box per object after non-maximum suppression.
func (d *YOLODetector) decode(output gocv.Mat) []results.Label {
	rows := output.Size()[1]
	cols := output.Size()[2]
	data := output.Reshape(1, rows)
	defer data.Close()

	var boxes []image.Rectangle
	var scores []float32
	var classIDs []int
	var raw [][4]float32

	for r := 0; r < rows; r++ {
		objectness := data.GetFloatAt(r, 4)
		if objectness < confThreshold {
			continue
		}

		bestClass, bestScore := 0, float32(0)
		for c := 5; c < cols; c++ {
			if s := data.GetFloatAt(r, c); s > bestScore {
				bestScore = s
				bestClass = c - 5
			}
		}
		score := objectness * bestScore
		if score < scoreThreshold {
			continue
		}

		cx := data.GetFloatAt(r, 0)
		cy := data.GetFloatAt(r, 1)
		w := data.GetFloatAt(r, 2)
		h := data.GetFloatAt(r, 3)

		boxes = append(boxes, image.Rect(
			int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2)))
		scores = append(scores, score)
		classIDs = append(classIDs, bestClass)
		raw = append(raw, [4]float32{cx, cy, w, h})
	}

	if len(boxes) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(boxes, scores, scoreThreshold, nmsThreshold)
	labels := make([]results.Label, 0, len(keep))
	for _, i := range keep {
		class := "unknown"
		if classIDs[i] < len(d.names) && d.names[classIDs[i]] != "" {
			class = d.names[classIDs[i]]
		}
		labels = append(labels, results.Label{
			Class:  class,
			CX:     float64(raw[i][0]) / inputSize,
			CY:     float64(raw[i][1]) / inputSize,
			Width:  float64(raw[i][2]) / inputSize,
			Height: float64(raw[i][3]) / inputSize,
		})
	}
	return labels
}

// Close releases the model.
func (d *YOLODetector) Close() error {
	return d.net.Close()
}

var _ Detector = (*YOLODetector)(nil)
