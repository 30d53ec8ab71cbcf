package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/raoofk92/INTPolybotServiceAWS/config"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/dedupe"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/detector"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/metrics"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/notify"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/queue"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/results"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/storage"
	"github.com/raoofk92/INTPolybotServiceAWS/pkg/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger.Info("starting prediction worker")

	if err := run(logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorker()
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

	names, err := detector.LoadClassNames(cfg.DatasetPath)
	if err != nil {
		return err
	}
	yolo, err := detector.NewYOLODetector(cfg.ModelPath, names)
	if err != nil {
		return err
	}
	defer yolo.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	workerCfg := worker.Config{
		Store:         objectStore,
		Detector:      yolo,
		Results:       resultStore,
		Notifier:      notify.NewCallbackClient(cfg.CallbackURL),
		Metrics:       m,
		Logger:        logger,
		ScratchDir:    cfg.ScratchDir,
		DetectTimeout: cfg.DetectTimeout,
	}

	if cfg.DatabaseURL != "" {
		tracker, err := dedupe.NewTracker(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer tracker.Close()
		workerCfg.Tracker = tracker
		logger.Info("delivery tracking enabled")
	}

	w, err := worker.New(workerCfg)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return jobQueue.ConsumeJobs(ctx, w.Handle)
	})

	g.Go(func() error {
		router := mux.NewRouter()
		router.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusOK)
			rw.Write([]byte("ok"))
		}).Methods(http.MethodGet)
		router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

		srv := &http.Server{Addr: cfg.ListenAddr, Handler: router}
		go func() {
			<-ctx.Done()
			srv.Shutdown(context.Background())
		}()

		logger.Info("health listener up", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
