package notify

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
)

type fakeSender struct {
	chatIDs []int64
	texts   []string
}

func (s *fakeSender) SendText(chatID int64, text string) error {
	s.chatIDs = append(s.chatIDs, chatID)
	s.texts = append(s.texts, text)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("NONE:12345")
	require.NoError(t, err)
	require.Equal(t, NoDetection, target.Kind)
	require.Equal(t, int64(12345), target.ChatID)

	target, err = ParseTarget("abc-def")
	require.NoError(t, err)
	require.Equal(t, Completed, target.Kind)
	require.Equal(t, "abc-def", target.PredictionID)

	_, err = ParseTarget("")
	require.ErrorIs(t, err, ErrInvalidTarget)

	_, err = ParseTarget("NONE:not-a-number")
	require.ErrorIs(t, err, ErrInvalidTarget)
}

func TestNoDetectionID_RoundTrips(t *testing.T) {
	target, err := ParseTarget(NoDetectionID(98765))
	require.NoError(t, err)
	require.Equal(t, NoDetection, target.Kind)
	require.Equal(t, int64(98765), target.ChatID)
}

func TestNotifier_NoDetectionSkipsStore(t *testing.T) {
	store := results.NewMemoryStore()
	sender := &fakeSender{}
	n := NewNotifier(store, sender, testLogger())

	require.NoError(t, n.Notify(context.Background(), "NONE:12345"))

	require.Equal(t, []int64{12345}, sender.chatIDs)
	require.Equal(t, []string{results.NothingToPredictText}, sender.texts)
}

func TestNotifier_CompletedRendersSummary(t *testing.T) {
	store := results.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), results.PredictionSummary{
		PredictionID: "p-1",
		ChatID:       77,
		Labels: []results.Label{
			{Class: "person"}, {Class: "person"}, {Class: "dog"},
		},
	}))
	sender := &fakeSender{}
	n := NewNotifier(store, sender, testLogger())

	require.NoError(t, n.Notify(context.Background(), "p-1"))

	require.Equal(t, []int64{77}, sender.chatIDs)
	require.Contains(t, sender.texts[0], "there are 2 persons,")
	require.Contains(t, sender.texts[0], "there is 1 dog,")
}

type fakePhotoSender struct {
	chatIDs []int64
	names   []string
	bodies  []string
}

func (s *fakePhotoSender) SendPhoto(chatID int64, name string, r io.Reader) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.chatIDs = append(s.chatIDs, chatID)
	s.names = append(s.names, name)
	s.bodies = append(s.bodies, string(body))
	return nil
}

func TestNotifier_CompletedSendsAnnotatedPhoto(t *testing.T) {
	objects, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	key := storage.PredictedKey("cat.jpg")
	require.NoError(t, objects.Upload(context.Background(), key, strings.NewReader("annotated-bytes")))

	store := results.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), results.PredictionSummary{
		PredictionID:     "p-photo",
		ChatID:           9,
		Labels:           []results.Label{{Class: "cat"}},
		PredictedImgPath: key,
	}))

	sender := &fakeSender{}
	photos := &fakePhotoSender{}
	n := NewNotifier(store, sender, testLogger()).WithAnnotatedPhotos(objects, photos)

	require.NoError(t, n.Notify(context.Background(), "p-photo"))

	require.Equal(t, []int64{9}, photos.chatIDs)
	require.Equal(t, []string{"cat.jpg"}, photos.names)
	require.Equal(t, []string{"annotated-bytes"}, photos.bodies)
	require.Contains(t, sender.texts[0], "there is 1 cat,")
}

func TestNotifier_MissingAnnotatedPhotoStillSendsText(t *testing.T) {
	objects, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	store := results.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), results.PredictionSummary{
		PredictionID:     "p-gone",
		ChatID:           4,
		Labels:           []results.Label{{Class: "dog"}},
		PredictedImgPath: storage.PredictedKey("gone.jpg"),
	}))

	sender := &fakeSender{}
	photos := &fakePhotoSender{}
	n := NewNotifier(store, sender, testLogger()).WithAnnotatedPhotos(objects, photos)

	require.NoError(t, n.Notify(context.Background(), "p-gone"))
	require.Empty(t, photos.chatIDs)
	require.Contains(t, sender.texts[0], "there is 1 dog,")
}

func TestNotifier_EmptyLabelsRenderFixedMessage(t *testing.T) {
	store := results.NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), results.PredictionSummary{
		PredictionID: "p-empty",
		ChatID:       5,
	}))
	sender := &fakeSender{}
	n := NewNotifier(store, sender, testLogger())

	require.NoError(t, n.Notify(context.Background(), "p-empty"))
	require.Equal(t, []string{results.NothingToPredictText}, sender.texts)
}

func TestNotifier_InvalidTargetIsClientError(t *testing.T) {
	store := results.NewMemoryStore()
	sender := &fakeSender{}
	n := NewNotifier(store, sender, testLogger())

	err := n.Notify(context.Background(), "NONE:nope")
	require.ErrorIs(t, err, ErrInvalidTarget)
	require.Empty(t, sender.chatIDs)
}

func TestNotifier_UnknownIDIsNotFoundAndSilent(t *testing.T) {
	store := results.NewMemoryStore()
	sender := &fakeSender{}
	n := NewNotifier(store, sender, testLogger())

	err := n.Notify(context.Background(), "no-such-id")
	require.ErrorIs(t, err, results.ErrNotFound)
	require.Empty(t, sender.chatIDs, "a missing result must not contact the chat transport")
}

func TestCallbackClient_Notify(t *testing.T) {
	var gotPath, gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotID = r.URL.Query().Get("predictionId")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewCallbackClient(srv.URL)
	require.NoError(t, client.Notify(context.Background(), "p-123"))
	require.Equal(t, "/results", gotPath)
	require.Equal(t, "p-123", gotID)
}

func TestCallbackClient_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewCallbackClient(srv.URL)
	require.Error(t, client.Notify(context.Background(), "missing"))
}
