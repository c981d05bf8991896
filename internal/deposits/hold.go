package deposits

import (
	"context"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
	"github.com/antonykevinfernando/doorstep-sub001/internal/observability"
	"github.com/antonykevinfernando/doorstep-sub001/internal/payments"
)

// HoldResult carries what a client-held payment form needs to finish the
// authorization.
type HoldResult struct {
	DepositID       string `json:"deposit_id"`
	AuthorizationID string `json:"authorization_id"`
	ClientSecret    string `json:"client_secret"`
}

// CreateHold places an authorize-only hold for a task and records it as
// authorized right away. The task itself is not touched.
func (s *Service) CreateHold(ctx context.Context, req HoldRequest) (res *HoldResult, err error) {
	defer func() { countRejection("create_hold", err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}

	unlock, err := s.lockTask(ctx, req.TaskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	if err := s.ensureNoLiveHold(ctx, req.TaskID); err != nil {
		return nil, err
	}

	var auth *payments.Authorization
	err = s.callGateway(ctx, payments.OpCreateAuthorization, func(ctx context.Context) error {
		var gerr error
		auth, gerr = s.Gateway.CreateAuthorization(ctx, payments.AuthorizationRequest{
			AmountCents: req.AmountCents,
			Currency:    s.currency(),
			Metadata:    map[string]string{metaTaskID: req.TaskID, metaMoveID: req.MoveID},
		})
		return gerr
	})
	if err != nil {
		return nil, err
	}

	d, err := models.NewAuthorizedDeposit(req.TaskID, req.MoveID, auth.ID, req.AmountCents)
	if err != nil {
		return nil, validationf("%s", err.Error())
	}
	if err := s.recordHold(ctx, d, nil); err != nil {
		s.logger().Error("authorization created without ledger row",
			"authorization_id", auth.ID, "task_id", req.TaskID, "error", err)
		return nil, err
	}

	observability.HoldsCreated.WithLabelValues("direct").Inc()
	s.logger().Info("hold authorized",
		"path", "direct", "deposit_id", d.ID, "task_id", d.TaskID, "move_id", d.MoveID, "amount_cents", d.AmountCents)
	// The ledger row is committed; slow subscribers must not hold up the task.
	_ = unlock()
	s.publish(ctx, models.EventDepositAuthorized, d)

	return &HoldResult{DepositID: d.ID, AuthorizationID: auth.ID, ClientSecret: auth.ClientSecret}, nil
}
