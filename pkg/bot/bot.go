// Package bot adapts the Telegram transport: it accepts webhook updates,
// routes the Predict caption into the job submitter, and sends text and
// photo replies addressed by chat id.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	captionPredict = "Predict"

	msgProcessing     = "Your image is being processed. Please wait..."
	msgProvideCaption = "please provide caption"
	msgInvalidCaption = "Error invalid caption\nAvailable captions are:\n1) Predict"
	msgSubmitFailed   = "Failed to process the image. Please try again later."
)

// telegramAPI is the slice of the Telegram client the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Submitter hands an accepted image off to the asynchronous pipeline.
type Submitter interface {
	Submit(ctx context.Context, imgName string, r io.Reader, chatID int64) (string, error)
}

// Bot handles inbound chat messages and outbound replies.
type Bot struct {
	api       telegramAPI
	token     string
	submitter Submitter
	logger    *slog.Logger
	client    *http.Client

	// fetchFile downloads a Telegram file by URL; replaceable in tests.
	fetchFile func(url string) (io.ReadCloser, error)
}

// New authenticates against the Telegram API.
func New(token string, submitter Submitter, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("authorized on telegram", "account", api.Self.UserName)
	return newBot(api, token, submitter, logger), nil
}

func newBot(api telegramAPI, token string, submitter Submitter, logger *slog.Logger) *Bot {
	client := &http.Client{Timeout: 30 * time.Second}
	b := &Bot{
		api:       api,
		token:     token,
		submitter: submitter,
		logger:    logger,
		client:    client,
	}
	b.fetchFile = func(url string) (io.ReadCloser, error) {
		resp, err := client.Get(url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
		}
		return resp.Body, nil
	}
	return b
}

// SetWebhook points Telegram at this deployment's webhook endpoint. Any
// previously configured webhook is replaced.
func (b *Bot) SetWebhook(baseURL string) error {
	wh, err := tgbotapi.NewWebhook(fmt.Sprintf("%s/%s", baseURL, b.token))
	if err != nil {
		return fmt.Errorf("failed to build webhook config: %w", err)
	}
	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}
	return nil
}

// HandleUpdate processes one webhook envelope. Every failure path ends in a
// human-readable chat message, never a raw error dump.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil {
		return
	}

	switch {
	case len(msg.Photo) > 0:
		b.handlePhoto(ctx, msg)
	case msg.Text != "":
		// Plain text gets echoed back, matching the long-standing behavior.
		b.sendText(msg.Chat.ID, fmt.Sprintf("Your original message: %s", msg.Text))
	default:
		b.sendText(msg.Chat.ID, msgProvideCaption)
	}
}

func (b *Bot) handlePhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Caption {
	case "":
		b.sendText(chatID, msgProvideCaption)
	case captionPredict:
		b.sendText(chatID, msgProcessing)
		if err := b.submitPhoto(ctx, msg); err != nil {
			b.logger.Error("photo submission failed", "chat_id", chatID, "error", err)
			b.sendText(chatID, msgSubmitFailed)
		}
	default:
		b.sendText(chatID, msgInvalidCaption)
	}
}

func (b *Bot) submitPhoto(ctx context.Context, msg *tgbotapi.Message) error {
	// The last entry is the largest resolution Telegram offers.
	photo := msg.Photo[len(msg.Photo)-1]

	file, err := b.api.GetFile(tgbotapi.FileConfig{FileID: photo.FileID})
	if err != nil {
		return fmt.Errorf("failed to resolve photo file: %w", err)
	}

	rc, err := b.fetchFile(file.Link(b.token))
	if err != nil {
		return fmt.Errorf("failed to download photo: %w", err)
	}
	defer rc.Close()

	predictionID, err := b.submitter.Submit(ctx, path.Base(file.FilePath), rc, msg.Chat.ID)
	if err != nil {
		return err
	}

	b.logger.Info("photo handed off", "chat_id", msg.Chat.ID, "prediction_id", predictionID)
	return nil
}

// SendText delivers a text message to a chat.
func (b *Bot) SendText(chatID int64, text string) error {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("failed to send message to chat %d: %w", chatID, err)
	}
	return nil
}

// SendPhoto delivers an image to a chat.
func (b *Bot) SendPhoto(chatID int64, name string, r io.Reader) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileReader{Name: name, Reader: r})
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("failed to send photo to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.SendText(chatID, text); err != nil {
		b.logger.Error("failed to send message", "chat_id", chatID, "error", err)
	}
}
