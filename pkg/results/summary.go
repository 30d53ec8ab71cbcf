package results

import (
	"fmt"
	"sort"
	"strings"
)

// NothingToPredictText is the fixed reply used whenever a prediction
// produced no labels at all.
const NothingToPredictText = "Nothing to Predict in this picture."

// Label is a single detected region: class name plus a bounding box
// normalized to the image dimensions (center x/y, width, height in [0,1]).
type Label struct {
	Class  string  `json:"class"`
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PredictionSummary is the durable record written once per completed job,
// keyed by PredictionID. PredictedImgPath is empty when nothing was detected.
type PredictionSummary struct {
	PredictionID     string  `json:"prediction_id"`
	ChatID           int64   `json:"chat_id"`
	Labels           []Label `json:"labels"`
	OriginalImgPath  string  `json:"original_img_path"`
	PredictedImgPath string  `json:"predicted_img_path,omitempty"`
	Time             float64 `json:"time"`
}

// CountByClass computes the label aggregate: occurrences per class name.
func CountByClass(labels []Label) map[string]int {
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l.Class]++
	}
	return counts
}

// RenderText turns a label aggregate into the user-facing summary, one line
// per class. Classes are sorted so the output is stable across runs.
func RenderText(counts map[string]int) string {
	if len(counts) == 0 {
		return NothingToPredictText
	}

	classes := make([]string, 0, len(counts))
	for class := range counts {
		classes = append(classes, class)
	}
	sort.Strings(classes)

	var b strings.Builder
	for _, class := range classes {
		n := counts[class]
		if n > 1 {
			fmt.Fprintf(&b, "there are %d %ss,\n", n, class)
		} else {
			fmt.Fprintf(&b, "there is 1 %s,\n", class)
		}
	}
	return b.String()
}
