package deposits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
	"github.com/antonykevinfernando/doorstep-sub001/internal/observability"
	"github.com/antonykevinfernando/doorstep-sub001/internal/payments"
	"github.com/antonykevinfernando/doorstep-sub001/internal/storage"
)

// CaptureRequest captures the full authorized amount when AmountCents is nil.
type CaptureRequest struct {
	DepositID   string `json:"deposit_id"`
	AmountCents *int64 `json:"amount_cents,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

type CaptureResult struct {
	DepositID   string               `json:"deposit_id"`
	Status      models.DepositStatus `json:"status"`
	AmountCents int64                `json:"amount_cents"`
}

// Capture moves an authorized deposit to captured. The deposit row stays
// locked from the status check until the update, and the gateway call carries
// an idempotency key derived from the deposit, so two captures of one deposit
// cannot both reach the processor as separate charges.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (res *CaptureResult, err error) {
	defer func() { countRejection("capture", err) }()

	if strings.TrimSpace(req.DepositID) == "" {
		return nil, validationf("deposit_id is required")
	}

	var captured *models.Deposit
	err = s.Store.InTx(ctx, func(tx storage.Tx) error {
		d, err := tx.LockDeposit(ctx, req.DepositID)
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(fmt.Sprintf("deposit %s not found", req.DepositID), err)
		}
		if err != nil {
			return err
		}
		if d.Status != models.DepositAuthorized {
			return statef("deposit is %s; only authorized deposits can be captured", d.Status)
		}

		amount := d.AmountCents
		if req.AmountCents != nil {
			amount = *req.AmountCents
		}
		if amount <= 0 || amount > d.AmountCents {
			return validationf("amount_cents must be between 1 and %d", d.AmountCents)
		}

		err = s.callGateway(ctx, payments.OpCaptureAuthorization, func(ctx context.Context) error {
			return s.Gateway.CaptureAuthorization(ctx, d.GatewayAuthorizationID, amount, "capture:"+d.ID)
		})
		if errors.Is(err, payments.ErrNotFound) {
			return notFound("authorization not found", err)
		}
		if err != nil {
			return err
		}

		captured, err = tx.MarkCaptured(ctx, d.ID, amount, req.Notes)
		if errors.Is(err, storage.ErrStatusChanged) {
			return statef("deposit is no longer authorized")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	observability.Captures.Inc()
	observability.CapturedCents.Add(float64(captured.AmountCents))
	s.logger().Info("deposit captured",
		"deposit_id", captured.ID, "task_id", captured.TaskID, "amount_cents", captured.AmountCents)
	s.publish(ctx, models.EventDepositCaptured, captured)

	return &CaptureResult{DepositID: captured.ID, Status: captured.Status, AmountCents: captured.AmountCents}, nil
}
