package detector

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
)

// Detector is the opaque detection capability: image in, labeled regions
// out. Boxes are normalized to the image dimensions.
type Detector interface {
	Detect(ctx context.Context, imagePath string) ([]results.Label, error)
}

// datasetFile is the subset of the YOLO dataset descriptor we need.
type datasetFile struct {
	Names map[int]string `yaml:"names"`
}

// LoadClassNames reads the class-id to name mapping from a YOLO dataset
// YAML file (e.g. coco128.yaml).
func LoadClassNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file %s: %w", path, err)
	}

	var ds datasetFile
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse dataset file %s: %w", path, err)
	}
	if len(ds.Names) == 0 {
		return nil, fmt.Errorf("dataset file %s contains no class names", path)
	}

	ids := make([]int, 0, len(ds.Names))
	for id := range ds.Names {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	names := make([]string, ids[len(ids)-1]+1)
	for _, id := range ids {
		names[id] = ds.Names[id]
	}
	return names, nil
}
