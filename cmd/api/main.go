package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"example.com/therapymatch/internal/api"
	"example.com/therapymatch/internal/assistant"
	"example.com/therapymatch/internal/auth"
	"example.com/therapymatch/internal/cache"
	"example.com/therapymatch/internal/config"
	"example.com/therapymatch/internal/domain"
	"example.com/therapymatch/internal/events"
	"example.com/therapymatch/internal/logging"
	"example.com/therapymatch/internal/matcher"
	"example.com/therapymatch/internal/persistence"
	httptransport "example.com/therapymatch/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to a therapy.yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := persistence.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	opts := []domain.Option{domain.WithLogger(logger.Named("service"))}
	if cfg.CacheInvalidationURL != "" {
		opts = append(opts, domain.WithInvalidator(cache.NewHTTPInvalidator(cfg.CacheInvalidationURL, cfg.CacheInvalidationToken, cfg.HTTPTimeout)))
		logger.Info("cache invalidator enabled", zap.String("url", cfg.CacheInvalidationURL))
	}
	if cfg.PublishEvents {
		producer := events.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		opts = append(opts, domain.WithPublisher(events.NewPublisher(producer,
			events.WithTopic(cfg.CatalogTopic),
			events.WithOrigin(cfg.InstanceID),
			events.WithPublisherLogger(logger.Named("publisher")),
		)))
		logger.Info("publishing catalog events", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.CatalogTopic))
	}

	service := domain.NewService(store, opts...)
	m := matcher.New(store, store)
	planner := assistant.NewPlanner(store, store, m)

	mux := http.NewServeMux()
	api.NewHandler(service, m, planner, api.WithLogger(logger.Named("api"))).RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	authn := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, auth.SkipOperational)
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux,
		httptransport.Recover(logger),
		httptransport.CORS(cfg.CORSOrigins),
		httptransport.RequestLogger(logger.Named("http")),
		authn.Wrap,
	))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("therapy matcher api listening", zap.String("addr", cfg.HTTPAddress), zap.String("store", cfg.Store))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
