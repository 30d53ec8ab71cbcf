package storage

import (
	"context"
	"io"
)

// PredictedImgPrefix is where annotated images are stored. Keeping them
// under their own prefix guarantees an annotated upload never overwrites
// the original image.
const PredictedImgPrefix = "predicted_img/"

// ObjectStore is durable blob storage for input and annotated output
// images, addressed by flat key.
type ObjectStore interface {
	// Upload stores the content of r under key, replacing any existing
	// object (last write wins).
	Upload(ctx context.Context, key string, r io.Reader) error

	// Download returns a reader for the object at key.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// PredictedKey returns the object key for the annotated version of an image.
func PredictedKey(imgName string) string {
	return PredictedImgPrefix + imgName
}
