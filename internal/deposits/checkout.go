package deposits

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
	"github.com/antonykevinfernando/doorstep-sub001/internal/observability"
	"github.com/antonykevinfernando/doorstep-sub001/internal/payments"
	"github.com/antonykevinfernando/doorstep-sub001/internal/storage"
)

type CheckoutResult struct {
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// CreateCheckoutSession starts a hosted checkout for a task. Nothing is
// written to the ledger until the gateway redirects back to SuccessPath.
func (s *Service) CreateCheckoutSession(ctx context.Context, req HoldRequest) (res *CheckoutResult, err error) {
	defer func() { countRejection("create_checkout_session", err) }()

	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureNoLiveHold(ctx, req.TaskID); err != nil {
		return nil, err
	}

	base := strings.TrimRight(s.PublicBaseURL, "/")
	q := url.Values{metaTaskID: {req.TaskID}, metaMoveID: {req.MoveID}}
	// The placeholder is substituted by the gateway and must stay unescaped.
	successURL := base + SuccessPath + "?" + q.Encode() + "&session_id={CHECKOUT_SESSION_ID}"
	label := s.ProductLabel
	if label == "" {
		label = "Security deposit"
	}

	var sess *payments.CheckoutSession
	err = s.callGateway(ctx, payments.OpCreateCheckoutSession, func(ctx context.Context) error {
		var gerr error
		sess, gerr = s.Gateway.CreateCheckoutSession(ctx, payments.CheckoutRequest{
			AmountCents:  req.AmountCents,
			Currency:     s.currency(),
			ProductLabel: label,
			SuccessURL:   successURL,
			CancelURL:    base + CancelPath,
			Metadata:     map[string]string{metaTaskID: req.TaskID, metaMoveID: req.MoveID},
		})
		return gerr
	})
	if err != nil {
		return nil, err
	}

	observability.CheckoutSessions.Inc()
	s.logger().Info("checkout session created", "session_id", sess.ID, "task_id", req.TaskID, "move_id", req.MoveID)
	return &CheckoutResult{SessionID: sess.ID, RedirectURL: sess.URL}, nil
}

// CallbackRequest holds the query parameters of the success redirect.
type CallbackRequest struct {
	SessionID string
	TaskID    string
	MoveID    string
}

type CallbackResult struct {
	Deposit *models.Deposit
	// Replayed is set when the authorization was already recorded by an
	// earlier delivery of the same redirect.
	Replayed bool
}

// CompleteCheckout finalizes a hosted checkout: it records the authorized
// deposit and completes the task in one transaction. The task and move are
// taken from the session the gateway holds; the query values only have to
// agree with them. Replays of the same session return the recorded deposit.
func (s *Service) CompleteCheckout(ctx context.Context, req CallbackRequest) (res *CallbackResult, err error) {
	defer func() { countRejection("complete_checkout", err) }()

	var missing []string
	for _, p := range [][2]string{{"session_id", req.SessionID}, {"task_id", req.TaskID}, {"move_id", req.MoveID}} {
		if strings.TrimSpace(p[1]) == "" {
			missing = append(missing, p[0])
		}
	}
	if len(missing) > 0 {
		return nil, validationf("missing required parameter(s): %s", strings.Join(missing, ", "))
	}

	var sess *payments.CheckoutSession
	err = s.callGateway(ctx, payments.OpRetrieveSession, func(ctx context.Context) error {
		var gerr error
		sess, gerr = s.Gateway.RetrieveSession(ctx, req.SessionID)
		return gerr
	})
	if errors.Is(err, payments.ErrNotFound) {
		return nil, notFound("checkout session not found", err)
	}
	if err != nil {
		return nil, err
	}

	taskID, moveID := sess.Metadata[metaTaskID], sess.Metadata[metaMoveID]
	if taskID == "" || taskID != req.TaskID || moveID != req.MoveID {
		s.logger().Warn("checkout callback does not match session",
			"session_id", sess.ID, "task_id", req.TaskID, "move_id", req.MoveID)
		return nil, validationf("callback parameters do not match the checkout session")
	}
	if !sess.Complete || sess.AuthorizationID == "" {
		return nil, statef("checkout session has no completed authorization")
	}

	if d, ok, err := s.recorded(ctx, sess.AuthorizationID); err != nil || ok {
		return replayResult(d), err
	}

	unlock, err := s.lockTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = unlock() }()

	// A concurrent delivery may have finished while we waited for the lock.
	if d, ok, err := s.recorded(ctx, sess.AuthorizationID); err != nil || ok {
		return replayResult(d), err
	}

	var auth *payments.Authorization
	err = s.callGateway(ctx, payments.OpRetrieveAuthorization, func(ctx context.Context) error {
		var gerr error
		auth, gerr = s.Gateway.RetrieveAuthorization(ctx, sess.AuthorizationID)
		return gerr
	})
	if errors.Is(err, payments.ErrNotFound) {
		return nil, notFound("authorization not found", err)
	}
	if err != nil {
		return nil, err
	}
	if auth.Status != payments.StatusRequiresCapture {
		return nil, statef("authorization is %s; expected %s", auth.Status, payments.StatusRequiresCapture)
	}

	d, err := models.NewAuthorizedDeposit(taskID, moveID, auth.ID, auth.AmountCents)
	if err != nil {
		return nil, validationf("%s", err.Error())
	}
	err = s.recordHold(ctx, d, &models.TaskResponse{AuthorizationID: auth.ID, AmountCents: auth.AmountCents})
	if errors.Is(err, storage.ErrDuplicateAuthorization) {
		if d, ok, rerr := s.recorded(ctx, auth.ID); rerr != nil || ok {
			return replayResult(d), rerr
		}
	}
	if err != nil {
		s.logger().Error("authorization created without ledger row",
			"authorization_id", auth.ID, "task_id", taskID, "session_id", sess.ID, "error", err)
		return nil, err
	}

	observability.HoldsCreated.WithLabelValues("checkout").Inc()
	s.logger().Info("hold authorized",
		"path", "checkout", "deposit_id", d.ID, "task_id", d.TaskID, "move_id", d.MoveID, "amount_cents", d.AmountCents)
	_ = unlock()
	s.publish(ctx, models.EventDepositAuthorized, d)

	return &CallbackResult{Deposit: d}, nil
}

// recorded looks up the deposit already bound to authorizationID.
func (s *Service) recorded(ctx context.Context, authorizationID string) (*models.Deposit, bool, error) {
	d, err := s.Store.FindByAuthorization(ctx, authorizationID)
	switch {
	case err == nil:
		return d, true, nil
	case errors.Is(err, storage.ErrNotFound):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("look up authorization %s: %w", authorizationID, err)
	}
}

func replayResult(d *models.Deposit) *CallbackResult {
	if d == nil {
		return nil
	}
	observability.CallbackReplays.Inc()
	return &CallbackResult{Deposit: d, Replayed: true}
}
