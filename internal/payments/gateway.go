package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Authorization status reported by the gateway for a hold that can be captured.
const StatusRequiresCapture = "requires_capture"

// ErrNotFound is returned when the gateway has no object with the given id.
var ErrNotFound = errors.New("gateway object not found")

// Gateway is the subset of the payment processor the deposit core relies on.
type Gateway interface {
	CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	RetrieveAuthorization(ctx context.Context, authorizationID string) (*Authorization, error)
	CaptureAuthorization(ctx context.Context, authorizationID string, amountCents int64, idempotencyKey string) error
}

type AuthorizationRequest struct {
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

type Authorization struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	Status       string
	Metadata     map[string]string
}

type CheckoutRequest struct {
	AmountCents  int64
	Currency     string
	ProductLabel string
	SuccessURL   string
	CancelURL    string
	Metadata     map[string]string
}

type CheckoutSession struct {
	ID              string
	URL             string
	AuthorizationID string
	Complete        bool
	Metadata        map[string]string
}

// GatewayError carries the processor's message for a failed call. It never
// holds request payloads or credentials.
type GatewayError struct {
	Op      string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %s", e.Op, e.Message)
}

type Kind string

const (
	KindStripe Kind = "stripe"
	KindFake   Kind = "fake"
)

// NewGateway picks an implementation. An empty kind resolves to stripe when a
// key is configured and to the in-memory fake otherwise.
func NewGateway(kind, apiKey string) (Gateway, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(kind))) {
	case "":
		if apiKey == "" {
			return NewFakeGateway(), nil
		}
		return NewStripeGateway(apiKey)
	case KindStripe:
		return NewStripeGateway(apiKey)
	case KindFake:
		return NewFakeGateway(), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway: %s", kind)
	}
}
