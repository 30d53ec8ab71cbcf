package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/raoofk92/INTPolybotServiceAWS/config"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/bot"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/metrics"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/notify"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/queue"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/submit"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting polybot front end")

	if err := run(logger); err != nil {
		logger.Error("polybot failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadPolybot()
	if err != nil {
		return err
	}

	jobQueue, err := queue.NewJobQueue(cfg.QueueURL, cfg.QueueName, logger)
	if err != nil {
		return err
	}
	defer jobQueue.Close()

	resultStore, err := results.NewRedisStore(cfg.RedisURL, cfg.ResultTTL, cfg.ResultKeyBase)
	if err != nil {
		return err
	}
	defer resultStore.Close()

	objectStore, err := storage.NewFilesystemStore(cfg.StorageDir)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	submitter := &meteredSubmitter{inner: submit.NewSubmitter(objectStore, jobQueue, logger), metrics: m}
	chatBot, err := bot.New(cfg.TelegramToken, submitter, logger)
	if err != nil {
		return err
	}
	notifier := notify.NewNotifier(resultStore, chatBot, logger).
		WithAnnotatedPhotos(objectStore, chatBot)

	if cfg.AppURL != "" {
		if err := chatBot.SetWebhook(cfg.AppURL); err != nil {
			return err
		}
		logger.Info("webhook configured", "base_url", cfg.AppURL)
	}

	router := newRouter(cfg, chatBot, notifier, m, reg, logger)

	srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logger.Info("listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type meteredSubmitter struct {
	inner   *submit.Submitter
	metrics *metrics.Metrics
}

func (s *meteredSubmitter) Submit(ctx context.Context, imgName string, r io.Reader, chatID int64) (string, error) {
	id, err := s.inner.Submit(ctx, imgName, r, chatID)
	if err == nil {
		s.metrics.JobsSubmitted.Inc()
	}
	return id, err
}

// updateHandler consumes one webhook envelope.
type updateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

func newRouter(cfg *config.Polybot, updates updateHandler, notifier *notify.Notifier, m *metrics.Metrics, reg *prometheus.Registry, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Ok")
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	webhook := func(c *gin.Context) {
		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			logger.Error("malformed webhook payload", "error", err)
			c.String(http.StatusBadRequest, "bad update")
			return
		}
		updates.HandleUpdate(c.Request.Context(), update)
		c.String(http.StatusOK, "Ok")
	}

	// Telegram pushes updates here; the token in the path keeps the
	// endpoint unguessable. /loadTest/ takes synthetic updates through
	// the same handler.
	router.POST("/"+cfg.TelegramToken, webhook)
	router.POST("/loadTest/", webhook)

	router.POST("/results", func(c *gin.Context) {
		predictionID := c.Query("predictionId")
		err := notifier.Notify(c.Request.Context(), predictionID)
		switch {
		case err == nil:
			m.CallbacksDelivered.Inc()
			c.String(http.StatusOK, "Ok")
		case errors.Is(err, notify.ErrInvalidTarget):
			c.String(http.StatusBadRequest, "invalid predictionId")
		case errors.Is(err, results.ErrNotFound):
			m.CallbacksNotFound.Inc()
			c.String(http.StatusNotFound, "prediction result not found")
		default:
			logger.Error("result callback failed", "prediction_id", predictionID, "error", err)
			c.String(http.StatusInternalServerError, "failed to deliver result")
		}
	})

	return router
}
