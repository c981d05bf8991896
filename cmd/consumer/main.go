package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/antonykevinfernando/doorstep-sub001/internal/config"
	"github.com/antonykevinfernando/doorstep-sub001/internal/logging"
	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deposit_consumer_messages_consumed_total",
		Help: "Total deposit events consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deposit_consumer_messages_invalid_total",
		Help: "Total undecodable deposit events",
	})
	redisUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deposit_consumer_redis_updates_total",
		Help: "Total deposit events projected into redis",
	})
	redisErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "deposit_consumer_redis_errors_total",
		Help: "Total deposit events that could not be projected",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, redisUpdates, redisErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	radapter := &redisAdapter{c: rc}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := rc.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroup,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroup)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down consumer")
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		msgsConsumed.Inc()

		var ev models.DepositEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil || ev.DepositID == "" {
			msgsInvalid.Inc()
			logger.Warn("invalid deposit event", "offset", m.Offset, "error", err)
			continue
		}

		if err := projectWithRetry(ctx, radapter, ev, cfg.MaxRetries, 200*time.Millisecond); err != nil {
			redisErrors.Inc()
			logger.Error("redis projection failed", "deposit_id", ev.DepositID, "type", ev.Type, "error", err)
			continue
		}
		redisUpdates.Inc()
		logger.Debug("deposit projected", "deposit_id", ev.DepositID, "status", ev.Status)
	}
}

// RedisUpdater is the subset of redis the projection needs.
type RedisUpdater interface {
	HSet(ctx context.Context, key string, values map[string]interface{}) error
}

type redisAdapter struct{ c *redis.Client }

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	_, err := r.c.HSet(ctx, key, values).Result()
	return err
}

// moveEntry is the per-task value stored in move:deposits:<move_id>.
type moveEntry struct {
	DepositID   string               `json:"deposit_id"`
	Status      models.DepositStatus `json:"status"`
	AmountCents int64                `json:"amount_cents"`
}

func depositKey(id string) string { return "deposit:" + id }
func moveKey(moveID string) string { return "move:deposits:" + moveID }

// project writes both read-model keys for one event. HSET overwrites fields,
// so replaying an event leaves the same state.
func project(ctx context.Context, rc RedisUpdater, ev models.DepositEvent) error {
	if err := rc.HSet(ctx, depositKey(ev.DepositID), map[string]interface{}{
		"task_id":      ev.TaskID,
		"move_id":      ev.MoveID,
		"status":       string(ev.Status),
		"amount_cents": strconv.FormatInt(ev.AmountCents, 10),
		"updated_at":   ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("hset %s: %w", depositKey(ev.DepositID), err)
	}
	if ev.MoveID == "" || ev.TaskID == "" {
		return nil
	}
	entry, err := json.Marshal(moveEntry{DepositID: ev.DepositID, Status: ev.Status, AmountCents: ev.AmountCents})
	if err != nil {
		return err
	}
	if err := rc.HSet(ctx, moveKey(ev.MoveID), map[string]interface{}{ev.TaskID: string(entry)}); err != nil {
		return fmt.Errorf("hset %s: %w", moveKey(ev.MoveID), err)
	}
	return nil
}

// projectWithRetry retries project with doubling delay until attempts run out.
func projectWithRetry(ctx context.Context, rc RedisUpdater, ev models.DepositEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = project(ctx, rc, ev); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		if !sleepCtx(ctx, delay) {
			return ctx.Err()
		}
		delay *= 2
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
