package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/antonykevinfernando/doorstep-sub001/internal/config"
	"github.com/antonykevinfernando/doorstep-sub001/internal/deposits"
	"github.com/antonykevinfernando/doorstep-sub001/internal/dispatch"
	"github.com/antonykevinfernando/doorstep-sub001/internal/events"
	httpapi "github.com/antonykevinfernando/doorstep-sub001/internal/http"
	"github.com/antonykevinfernando/doorstep-sub001/internal/lock"
	"github.com/antonykevinfernando/doorstep-sub001/internal/logging"
	"github.com/antonykevinfernando/doorstep-sub001/internal/payments"
	"github.com/antonykevinfernando/doorstep-sub001/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	gateway, err := payments.NewGateway(cfg.PaymentGateway, cfg.StripeAPIKey)
	if err != nil {
		return err
	}
	fake, _ := gateway.(*payments.FakeGateway)
	if fake != nil {
		fake.CheckoutBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/") + httpapi.FakeCheckoutPath
		logger.Warn("using in-memory payment gateway; no money moves")
	}

	readyChecks := map[string]httpapi.ReadyCheck{}
	var locker lock.Locker
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockWait)
		readyChecks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("task locks backed by redis", "addr", cfg.RedisAddr)
	} else {
		locker = lock.NewLocalLocker(cfg.LockWait)
		logger.Info("task locks are in-process; run a single replica")
	}

	wsreg := dispatch.NewWSRegistry()
	publishers := events.Fanout{wsreg}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Warn("kafka writer close failed", "error", err)
			}
		}()
		publishers = append(publishers, kp)
		logger.Info("publishing deposit events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	svc := &deposits.Service{
		Store:          store,
		Gateway:        gateway,
		Locker:         locker,
		Events:         publishers,
		Logger:         logger,
		Currency:       cfg.Currency,
		ProductLabel:   cfg.ProductLabel,
		PublicBaseURL:  cfg.PublicBaseURL,
		GatewayTimeout: cfg.GatewayTimeout,
	}
	api := httpapi.NewServer(svc, wsreg, logger)
	api.ReadyChecks = readyChecks
	api.FakeCheckout = fake

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("deposit service listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore picks Postgres when PG_DSN is set, applying migrations on request.
func openStore(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) (storage.Store, func(), error) {
	if cfg.PGDSN == "" {
		logger.Warn("PG_DSN not set; deposits are kept in memory")
		return storage.NewMemoryStore(), func() {}, nil
	}
	ps, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := ps.Close(); err != nil {
			logger.Warn("postgres close failed", "error", err)
		}
	}
	if cfg.RunMigrations {
		mctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		applied, err := storage.Migrate(mctx, ps.DB())
		if err != nil {
			closeFn()
			return nil, nil, err
		}
		logger.Info("migrations applied", "files", applied)
	}
	return ps, closeFn, nil
}
