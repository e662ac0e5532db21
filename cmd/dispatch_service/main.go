package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/smskit/dispatch/internal/dispatch_service/adapters/resource"
	"github.com/smskit/dispatch/internal/dispatch_service/adapters/scheduler"
	"github.com/smskit/dispatch/internal/dispatch_service/adapters/transport"
	"github.com/smskit/dispatch/internal/dispatch_service/app"
	"github.com/smskit/dispatch/internal/dispatch_service/repository/postgres"
	dispatchhttp "github.com/smskit/dispatch/internal/dispatch_service/transport/http"
	"github.com/smskit/dispatch/internal/platform/config"
	"github.com/smskit/dispatch/internal/platform/database"
	"github.com/smskit/dispatch/internal/platform/logger"
	"github.com/smskit/dispatch/internal/platform/messagebroker"
)

const (
	serviceName     = "dispatch_service"
	startupTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat).With("service", serviceName)
	log.Info("starting service")

	startupCtx, startupCancel := context.WithTimeout(mainCtx, startupTimeout)
	defer startupCancel()

	dbPool, err := database.NewDBPool(startupCtx, cfg.PostgresDSN)
	if err != nil {
		log.Error("failed to initialize database connection pool", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info("database connection pool initialized")

	nc, err := messagebroker.NewNATSClient(cfg.NATSUrl, serviceName, log)
	if err != nil {
		log.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()
	log.Info("NATS connection initialized")

	repo := postgres.NewPgMessageRepository(dbPool)
	mockTransport := transport.NewMockTransport(log, cfg.TransportName, cfg.TransportFailRate, 20, 120)
	resolver := resource.NewFileResolver(os.TempDir())
	timerSched := scheduler.NewTimerScheduler(log)
	defer timerSched.Stop()

	allocator := app.NewAllocator(cfg.MaxTransactionSizeBytes, mockTransport)
	compressor := app.NewImageCompressor(log)
	builder := app.NewBuilder(resolver, allocator, compressor, app.BuilderConfig{
		Signature:           cfg.Signature,
		StripAccents:        cfg.StripAccents,
		LongTextAsMultipart: cfg.LongTextAsMultipart,
	}, log)

	dispatcher := app.NewDispatcher(repo, mockTransport, timerSched, builder, log)
	deduplicator := app.NewDeduplicator(repo, log)

	receiptConsumer := app.NewReceiptConsumer(dispatcher, nc, log)
	if err := receiptConsumer.Start(mainCtx, cfg.ReceiptSubject, cfg.ReceiptQueueGroup); err != nil {
		log.Error("failed to start receipt consumer", "error", err)
		os.Exit(1)
	}
	defer receiptConsumer.Stop()

	handler := dispatchhttp.NewMessageHandler(dispatcher, deduplicator, repo, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Route("/api/v1", handler.Routes)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		log.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	log.Info("service components initialized, service is ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received termination signal", "signal", sig.String())
	case <-groupCtx.Done():
		log.Error("a critical component failed, initiating shutdown")
	}

	mainCancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("error during graceful shutdown", "error", err)
	}

	log.Info("service shutdown complete")
}
