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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"example.com/fittrack/internal/api"
	"example.com/fittrack/internal/auth"
	"example.com/fittrack/internal/config"
	"example.com/fittrack/internal/domain"
	"example.com/fittrack/internal/logging"
	"example.com/fittrack/internal/outbox"
	"example.com/fittrack/internal/persistence/memory"
	persistence "example.com/fittrack/internal/persistence/postgres"
	httptransport "example.com/fittrack/internal/transport/http"
)

func main() {
	cfg := config.Load()

	logCloser := logging.Setup(logging.SetupParams{
		LogFileName:   cfg.LogFile,
		LogToStdout:   true,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogFormatJSON,
	})
	defer logCloser.Close()

	if err := run(cfg); err != nil {
		log.WithError(err).Error("sync api stopped with error")
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, shutdownStore, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}

	service := domain.NewService(repo, cfg.SyncMaxBatchSize)
	handler := api.NewHandler(service)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress),
		httptransport.Chain(mux,
			httptransport.RecoverPanics(),
			httptransport.LogRequests(),
			httptransport.CORS(cfg.CORSAllowedOrigin),
			authMiddleware.Wrap,
		),
	)

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("address", cfg.HTTPAddress).Info("sync api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			stop()
			return errors.Join(fmt.Errorf("http server: %w", err), shutdownStore())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("graceful shutdown: %w", err))
	}
	errs = append(errs, shutdownStore())
	return errors.Join(errs...)
}

// openRepository connects to Postgres and starts the outbox dispatcher, or
// falls back to the in-memory repository when no database is configured. The
// returned func waits for background work to stop; it must be called after
// ctx is cancelled.
func openRepository(ctx context.Context, cfg config.Config) (domain.WorkoutRepository, func() error, error) {
	if cfg.PostgresURL == "" {
		log.Warn("POSTGRES_URL not set, using in-memory repository; workouts are not persisted")
		return memory.NewRepository(), func() error { return nil }, nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	shutdown := func() error {
		dispatcher.Wait()
		err := producer.Close()
		pool.Close()
		if err != nil {
			return fmt.Errorf("close kafka producer: %w", err)
		}
		return nil
	}
	return persistence.NewRepository(pool), shutdown, nil
}
