package payments

import (
	"context"
	"errors"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// StripeGateway is a thin wrapper around stripe-go for PaymentIntent hold/capture
// and hosted Checkout flows. It owns its API client instead of the package-level key.
type StripeGateway struct {
	api *client.API
}

func NewStripeGateway(apiKey string) (*StripeGateway, error) {
	if apiKey == "" {
		return nil, errors.New("stripe api key is required")
	}
	api := &client.API{}
	api.Init(apiKey, nil)
	return &StripeGateway{api: api}, nil
}

// CreateAuthorization creates a PaymentIntent with capture_method=manual to hold funds.
func (s *StripeGateway) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountCents),
		Currency:      stripe.String(req.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, translate("create authorization", err)
	}
	return authorizationFrom(pi), nil
}

// CreateCheckoutSession builds a hosted payment page whose PaymentIntent is
// authorize-only. Metadata is set on both the session and the intent.
func (s *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(req.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.ProductLabel),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
			Metadata:      req.Metadata,
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	cs, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, translate("create checkout session", err)
	}
	return sessionFrom(cs), nil
}

func (s *StripeGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	cs, err := s.api.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		return nil, translate("retrieve session", err)
	}
	return sessionFrom(cs), nil
}

func (s *StripeGateway) RetrieveAuthorization(ctx context.Context, authorizationID string) (*Authorization, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(authorizationID, params)
	if err != nil {
		return nil, translate("retrieve authorization", err)
	}
	return authorizationFrom(pi), nil
}

// CaptureAuthorization finalizes a previously-held PaymentIntent for amountCents.
func (s *StripeGateway) CaptureAuthorization(ctx context.Context, authorizationID string, amountCents int64, idempotencyKey string) error {
	params := &stripe.PaymentIntentCaptureParams{
		AmountToCapture: stripe.Int64(amountCents),
	}
	params.Context = ctx
	if idempotencyKey != "" {
		params.SetIdempotencyKey(idempotencyKey)
	}
	if _, err := s.api.PaymentIntents.Capture(authorizationID, params); err != nil {
		return translate("capture authorization", err)
	}
	return nil
}

func authorizationFrom(pi *stripe.PaymentIntent) *Authorization {
	return &Authorization{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		Status:       string(pi.Status),
		Metadata:     pi.Metadata,
	}
}

func sessionFrom(cs *stripe.CheckoutSession) *CheckoutSession {
	out := &CheckoutSession{
		ID:       cs.ID,
		URL:      cs.URL,
		Complete: cs.Status == stripe.CheckoutSessionStatusComplete,
		Metadata: cs.Metadata,
	}
	if cs.PaymentIntent != nil {
		out.AuthorizationID = cs.PaymentIntent.ID
	}
	return out
}

// translate keeps only the processor's human readable message.
func translate(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		if se.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		msg := se.Msg
		if msg == "" {
			msg = string(se.Type)
		}
		return &GatewayError{Op: op, Message: msg}
	}
	return &GatewayError{Op: op, Message: err.Error()}
}

var _ Gateway = (*StripeGateway)(nil)
