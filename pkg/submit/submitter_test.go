package submit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/raoofk92/INTPolybotServiceAWS/pkg/messaging"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
)

type fakeQueue struct {
	published []messaging.Job
	err       error
}

func (q *fakeQueue) PublishJob(ctx context.Context, job messaging.Job) error {
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, job)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, nil))
}

func TestSubmitter_Submit(t *testing.T) {
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	queue := &fakeQueue{}
	sub := NewSubmitter(store, queue, testLogger())

	id, err := sub.Submit(context.Background(), "photos/cat.jpg", strings.NewReader("img"), 42)
	require.NoError(t, err)

	_, err = uuid.Parse(id)
	require.NoError(t, err, "prediction id must be a fresh uuid")

	require.Len(t, queue.published, 1)
	job := queue.published[0]
	require.Equal(t, id, job.PredictionID)
	require.Equal(t, "cat.jpg", job.ImgName)
	require.Equal(t, int64(42), job.ChatID)
	require.NoError(t, job.Validate())

	ok, err := store.Exists(context.Background(), "cat.jpg")
	require.NoError(t, err)
	require.True(t, ok, "image must be stored before the job is queued")
}

func TestSubmitter_FreshIDPerSubmission(t *testing.T) {
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	queue := &fakeQueue{}
	sub := NewSubmitter(store, queue, testLogger())

	first, err := sub.Submit(context.Background(), "cat.jpg", strings.NewReader("a"), 1)
	require.NoError(t, err)
	second, err := sub.Submit(context.Background(), "cat.jpg", strings.NewReader("b"), 1)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Len(t, queue.published, 2)
}

func TestSubmitter_EnqueueFailureSurfaces(t *testing.T) {
	store, err := storage.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)
	queue := &fakeQueue{err: errors.New("broker down")}
	sub := NewSubmitter(store, queue, testLogger())

	_, err = sub.Submit(context.Background(), "cat.jpg", strings.NewReader("img"), 1)
	require.Error(t, err)
	require.Empty(t, queue.published)
}
