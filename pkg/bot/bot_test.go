package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	sent    []tgbotapi.MessageConfig
	getFile tgbotapi.File
	fileErr error
}

func (a *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		a.sent = append(a.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (a *fakeAPI) GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error) {
	if a.fileErr != nil {
		return tgbotapi.File{}, a.fileErr
	}
	return a.getFile, nil
}

func (a *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (a *fakeAPI) lastText() string {
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1].Text
}

type fakeSubmitter struct {
	imgNames []string
	chatIDs  []int64
	err      error
}

func (s *fakeSubmitter) Submit(ctx context.Context, imgName string, r io.Reader, chatID int64) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	io.Copy(io.Discard, r)
	s.imgNames = append(s.imgNames, imgName)
	s.chatIDs = append(s.chatIDs, chatID)
	return "p-fake", nil
}

func newTestBot(api *fakeAPI, sub *fakeSubmitter) *Bot {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	b := newBot(api, "test-token", sub, logger)
	b.fetchFile = func(url string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("image-bytes")), nil
	}
	return b
}

func photoUpdate(chatID int64, caption string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat:    &tgbotapi.Chat{ID: chatID},
			Caption: caption,
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small"},
				{FileID: "large"},
			},
		},
	}
}

func TestHandleUpdate_PredictCaptionSubmits(t *testing.T) {
	api := &fakeAPI{getFile: tgbotapi.File{FileID: "large", FilePath: "photos/file_42.jpg"}}
	sub := &fakeSubmitter{}
	b := newTestBot(api, sub)

	b.HandleUpdate(context.Background(), photoUpdate(42, "Predict"))

	require.Equal(t, []string{"file_42.jpg"}, sub.imgNames)
	require.Equal(t, []int64{42}, sub.chatIDs)
	require.Equal(t, msgProcessing, api.sent[0].Text)
}

func TestHandleUpdate_MissingCaption(t *testing.T) {
	api := &fakeAPI{}
	sub := &fakeSubmitter{}
	b := newTestBot(api, sub)

	b.HandleUpdate(context.Background(), photoUpdate(1, ""))

	require.Empty(t, sub.imgNames)
	require.Equal(t, msgProvideCaption, api.lastText())
}

func TestHandleUpdate_UnsupportedCaption(t *testing.T) {
	api := &fakeAPI{}
	sub := &fakeSubmitter{}
	b := newTestBot(api, sub)

	b.HandleUpdate(context.Background(), photoUpdate(1, "Sharpen"))

	require.Empty(t, sub.imgNames)
	require.Equal(t, msgInvalidCaption, api.lastText())
}

func TestHandleUpdate_SubmitFailureTellsUser(t *testing.T) {
	api := &fakeAPI{getFile: tgbotapi.File{FilePath: "photos/f.jpg"}}
	sub := &fakeSubmitter{err: errors.New("queue down")}
	b := newTestBot(api, sub)

	b.HandleUpdate(context.Background(), photoUpdate(9, "Predict"))

	require.Equal(t, msgSubmitFailed, api.lastText())
}

func TestHandleUpdate_TextIsEchoed(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, &fakeSubmitter{})

	b.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: 3},
			Text: "hello",
		},
	})

	require.Equal(t, "Your original message: hello", api.lastText())
}

func TestHandleUpdate_NilMessageIgnored(t *testing.T) {
	api := &fakeAPI{}
	b := newTestBot(api, &fakeSubmitter{})

	b.HandleUpdate(context.Background(), tgbotapi.Update{})
	require.Empty(t, api.sent)
}
