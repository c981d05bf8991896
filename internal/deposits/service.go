// Package deposits implements the hold/capture lifecycle of move deposits:
// direct authorizations, hosted checkout, the checkout success callback and
// capture. Every ledger write goes through the storage transaction and every
// authorization for a task is created under the task lock.
package deposits

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/antonykevinfernando/doorstep-sub001/internal/events"
	"github.com/antonykevinfernando/doorstep-sub001/internal/lock"
	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
	"github.com/antonykevinfernando/doorstep-sub001/internal/observability"
	"github.com/antonykevinfernando/doorstep-sub001/internal/payments"
	"github.com/antonykevinfernando/doorstep-sub001/internal/storage"
)

// MinAmountCents is the smallest hold the creation endpoints accept.
const MinAmountCents = 50

// Callback routes handed to the gateway as checkout success/cancel targets.
const (
	SuccessPath = "/api/v1/deposits/checkout/success"
	CancelPath  = "/api/v1/deposits/checkout/cancel"
)

// Metadata keys bound onto gateway objects at creation time.
const (
	metaTaskID = "task_id"
	metaMoveID = "move_id"
)

type Service struct {
	Store   storage.Store
	Gateway payments.Gateway
	Locker  lock.Locker
	Events  events.Publisher
	Logger  *slog.Logger

	Currency     string
	ProductLabel string
	// PublicBaseURL is this service's externally reachable origin, used to
	// build checkout redirect targets.
	PublicBaseURL  string
	GatewayTimeout time.Duration
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *Service) currency() string {
	if s.Currency == "" {
		return "usd"
	}
	return s.Currency
}

// HoldRequest is the input of both creation paths.
type HoldRequest struct {
	TaskID      string `json:"task_id"`
	MoveID      string `json:"move_id"`
	AmountCents int64  `json:"amount_cents"`
}

func (r HoldRequest) validate() error {
	var missing []string
	if strings.TrimSpace(r.TaskID) == "" {
		missing = append(missing, "task_id")
	}
	if strings.TrimSpace(r.MoveID) == "" {
		missing = append(missing, "move_id")
	}
	if len(missing) > 0 {
		return validationf("missing required field(s): %s", strings.Join(missing, ", "))
	}
	if r.AmountCents < MinAmountCents {
		return validationf("amount_cents must be at least %d", MinAmountCents)
	}
	return nil
}

// lockTask serializes every operation that may create an authorization or a
// deposit for taskID.
func (s *Service) lockTask(ctx context.Context, taskID string) (lock.Unlock, error) {
	unlock, err := s.Locker.Acquire(ctx, "task:"+taskID)
	switch {
	case err == nil:
		return unlock, nil
	case errors.Is(err, lock.ErrNotAcquired):
		return nil, busy(err)
	default:
		return nil, fmt.Errorf("lock task %s: %w", taskID, err)
	}
}

// ensureNoLiveHold is the fast path of the conflict check. The store's
// conditional insert remains the authority.
func (s *Service) ensureNoLiveHold(ctx context.Context, taskID string) error {
	existing, err := s.Store.FindAuthorizedByTask(ctx, taskID)
	switch {
	case err == nil:
		return conflict(fmt.Sprintf("a hold already exists for this task (deposit %s)", existing.ID), storage.ErrHoldExists)
	case errors.Is(err, storage.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("look up holds for task %s: %w", taskID, err)
	}
}

// callGateway bounds a gateway call by GatewayTimeout and records it.
// payments.ErrNotFound is passed through for the caller to classify.
func (s *Service) callGateway(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if s.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.GatewayTimeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	observability.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil || errors.Is(err, payments.ErrNotFound) {
		return err
	}
	observability.GatewayErrors.WithLabelValues(op).Inc()
	s.logger().Error("payment gateway call failed", "operation", op, "error", err)
	return gatewayFailure(err)
}

// recordHold inserts a new authorized deposit, and completes the task in the
// same transaction when resp is set. Both creation paths end here.
func (s *Service) recordHold(ctx context.Context, d *models.Deposit, resp *models.TaskResponse) error {
	err := s.Store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.InsertDeposit(ctx, d); err != nil {
			return err
		}
		if resp != nil {
			return tx.CompleteTask(ctx, d.TaskID, d.MoveID, *resp)
		}
		return nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrHoldExists):
		return conflict("a hold already exists for this task", err)
	case errors.Is(err, storage.ErrNotFound):
		return notFound(fmt.Sprintf("task %s not found", d.TaskID), err)
	default:
		return err
	}
}

func (s *Service) publish(ctx context.Context, t models.DepositEventType, d *models.Deposit) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Publish(ctx, models.NewDepositEvent(t, d)); err != nil {
		observability.EventPublishErrors.Inc()
		s.logger().Warn("deposit event not published", "type", t, "deposit_id", d.ID, "error", err)
	}
}

// countRejection records a caller-visible failure of op.
func countRejection(op string, err error) {
	if err == nil {
		return
	}
	observability.HoldsRejected.WithLabelValues(op, KindOf(err).String()).Inc()
}

// GetDeposit returns the ledger row for id.
func (s *Service) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationf("deposit_id is required")
	}
	d, err := s.Store.GetDeposit(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFound(fmt.Sprintf("deposit %s not found", id), err)
	}
	return d, err
}
