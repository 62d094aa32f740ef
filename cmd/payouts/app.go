package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/nkiryanov/washpay/internal/db"
	"github.com/nkiryanov/washpay/internal/handlers"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/metrics"
	"github.com/nkiryanov/washpay/internal/notify"
	"github.com/nkiryanov/washpay/internal/repository/postgres"
	"github.com/nkiryanov/washpay/internal/service/auth"
	"github.com/nkiryanov/washpay/internal/service/reconcile"
	"github.com/nkiryanov/washpay/internal/service/settlement"
	"github.com/nkiryanov/washpay/internal/service/withdrawal"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	metrics  *http.Server
	sweeper  *reconcile.Sweeper
	notifier *notify.Notifier
	logger   logger.Logger

	// Released in reverse order on shutdown
	closers []func() error
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	floor, err := c.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	logger, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, fmt.Errorf("error while registering metrics: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	app := &ServerApp{
		ListenAddr: c.ListenAddr,
		logger:     logger,
		closers:    []func() error{func() error { pool.Close(); return nil }},
	}

	publishers, err := app.publishers(ctx, c)
	if err != nil {
		app.close()
		return nil, err
	}

	// Initialize services
	storage := postgres.NewStorage(pool)
	client := settlement.NewClient(c.SettlementURL, c.SettlementAPIKey, logger)
	app.notifier = notify.New(logger, publishers...)

	withdrawals := withdrawal.NewService(withdrawal.Config{
		DefaultMinimumPayout: floor,
		DefaultCurrency:      c.DefaultCurrency,
	}, storage, client, app.notifier, logger)

	receiver := reconcile.NewReceiver(c.WebhookSecret, storage, withdrawals, client, logger)
	app.sweeper = reconcile.NewSweeper(c.ReconcileInterval, c.ReconcileAfter, withdrawals, client, logger)

	tokenManager, err := auth.New(auth.Config{SecretKey: c.SecretKey})
	if err != nil {
		app.close()
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	app.Handler = handlers.NewRouter(
		withdrawals,
		receiver,
		tokenManager,
		handlers.RateLimit{Limit: c.RateLimit, Period: time.Minute},
		logger,
	)
	app.metrics = metrics.NewServer(c.MetricsAddr, health(pool))

	return app, nil
}

// Optional notification sinks. Each one is enabled by its address
func (s *ServerApp) publishers(ctx context.Context, c *Config) ([]notify.Publisher, error) {
	var publishers []notify.Publisher

	if c.KafkaBrokers != "" {
		kp := notify.NewKafkaPublisher(c.KafkaBrokers, c.KafkaTopic)
		s.closers = append(s.closers, kp.Close)
		publishers = append(publishers, kp)
		s.logger.Info("Kafka notifications enabled", "topic", c.KafkaTopic)
	}

	if c.RedisAddr != "" {
		rdb, err := notify.ConnectRedis(ctx, c.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
		}
		s.closers = append(s.closers, rdb.Close)
		publishers = append(publishers, notify.NewRedisPublisher(rdb, c.RedisChannel))
		s.logger.Info("Redis notifications enabled", "channel", c.RedisChannel)
	}

	return publishers, nil
}

func health(pool *pgxpool.Pool) metrics.HealthFunc {
	return func(ctx context.Context) error {
		return pool.Ping(ctx)
	}
}

// Run serves API and metrics, runs the sweeper and stops everything gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Starting server", "address", s.ListenAddr)
		return serve(gctx, httpServer)
	})

	g.Go(func() error {
		s.logger.Info("Starting metrics server", "address", s.metrics.Addr)
		return serve(gctx, s.metrics)
	})

	g.Go(func() error {
		<-s.sweeper.Run(gctx)
		s.logger.Info("Sweeper stopped")
		return nil
	})

	err := g.Wait()

	// In flight notifications are allowed to finish before publishers are closed
	s.notifier.Wait()
	s.logger.Info("HTTP server stopped")

	return err
}

func (s *ServerApp) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warn("Failed to release resource", "error", err)
		}
	}
	s.closers = nil
}

// Listen until context is cancelled; then close gracefully connections
func serve(ctx context.Context, srv *http.Server) error {
	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(timeoutCtx)
		close(idleConnsClosed)
	}()

	err := srv.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
