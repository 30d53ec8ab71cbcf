package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strconv"
	"strings"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
)

// nonePrefix marks a callback for a prediction that found nothing. The
// remainder of the id is the chat id itself, so the result store is never
// queried on this path. Kept for wire compatibility with existing workers.
const nonePrefix = "NONE:"

// TargetKind distinguishes the two callback variants.
type TargetKind int

const (
	// Completed means the id is a result-store key.
	Completed TargetKind = iota
	// NoDetection means the detector found nothing; only a chat id is carried.
	NoDetection
)

// Target is the parsed form of a callback's predictionId parameter. Parsing
// the sentinel prefix once at the boundary keeps the two cases structurally
// distinct everywhere else.
type Target struct {
	Kind         TargetKind
	PredictionID string
	ChatID       int64
}

// ErrInvalidTarget marks a predictionId value that cannot be classified.
// The HTTP layer maps it to a client error rather than a server one.
var ErrInvalidTarget = errors.New("invalid callback target")

// ParseTarget classifies a raw predictionId value.
func ParseTarget(raw string) (Target, error) {
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty predictionId", ErrInvalidTarget)
	}

	if strings.HasPrefix(raw, nonePrefix) {
		chatID, err := strconv.ParseInt(raw[len(nonePrefix):], 10, 64)
		if err != nil {
			return Target{}, fmt.Errorf("%w: bad chat id in %q", ErrInvalidTarget, raw)
		}
		return Target{Kind: NoDetection, ChatID: chatID}, nil
	}

	return Target{Kind: Completed, PredictionID: raw}, nil
}

// NoDetectionID builds the sentinel id the worker sends when a prediction
// produced no labels.
func NoDetectionID(chatID int64) string {
	return nonePrefix + strconv.FormatInt(chatID, 10)
}

// TextSender delivers a text message to a chat.
type TextSender interface {
	SendText(chatID int64, text string) error
}

// PhotoSender delivers an image to a chat.
type PhotoSender interface {
	SendPhoto(chatID int64, name string, r io.Reader) error
}

// Notifier resolves a finished prediction and delivers its rendered summary
// to the originating chat.
type Notifier struct {
	store   results.Store
	sender  TextSender
	objects storage.ObjectStore
	photos  PhotoSender
	logger  *slog.Logger
}

// NewNotifier creates a notifier over the given result store and chat
// transport.
func NewNotifier(store results.Store, sender TextSender, logger *slog.Logger) *Notifier {
	return &Notifier{store: store, sender: sender, logger: logger}
}

// WithAnnotatedPhotos makes the notifier also send the annotated image for
// completed predictions, read from the given object store. Photo delivery
// is best effort; the text summary is what the user is owed.
func (n *Notifier) WithAnnotatedPhotos(objects storage.ObjectStore, photos PhotoSender) *Notifier {
	n.objects = objects
	n.photos = photos
	return n
}

// Notify handles one callback. A missing result returns
// results.ErrNotFound without touching the chat transport; the HTTP layer
// maps that to 404.
func (n *Notifier) Notify(ctx context.Context, rawID string) error {
	target, err := ParseTarget(rawID)
	if err != nil {
		return err
	}

	if target.Kind == NoDetection {
		n.logger.Info("nothing detected", "chat_id", target.ChatID)
		return n.sender.SendText(target.ChatID, results.NothingToPredictText)
	}

	summary, err := n.store.Get(ctx, target.PredictionID)
	if err != nil {
		return err
	}

	if n.photos != nil && summary.PredictedImgPath != "" {
		if err := n.sendAnnotated(ctx, summary); err != nil {
			n.logger.Warn("could not send annotated image",
				"prediction_id", summary.PredictionID, "error", err)
		}
	}

	text := results.RenderText(results.CountByClass(summary.Labels))
	n.logger.Info("delivering prediction result",
		"prediction_id", summary.PredictionID, "chat_id", summary.ChatID, "labels", len(summary.Labels))
	return n.sender.SendText(summary.ChatID, text)
}

func (n *Notifier) sendAnnotated(ctx context.Context, summary results.PredictionSummary) error {
	rc, err := n.objects.Download(ctx, summary.PredictedImgPath)
	if err != nil {
		return err
	}
	defer rc.Close()
	return n.photos.SendPhoto(summary.ChatID, path.Base(summary.PredictedImgPath), rc)
}
