package payments

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// FakeGateway is an in-memory Gateway for local runs and tests. Direct
// authorizations are created already confirmed; checkout sessions stay open
// until CompleteSession is called.
type FakeGateway struct {
	// CheckoutBaseURL prefixes hosted page URLs as <base>/pay/<session id>.
	CheckoutBaseURL string

	mu             sync.Mutex
	authorizations map[string]*Authorization
	sessions       map[string]*fakeSession
	captures       map[string]string // idempotency key -> authorization id
	failures       map[string]string // op -> message, consumed on use
	calls          map[string]int
}

type fakeSession struct {
	CheckoutSession
	amountCents int64
	successURL  string
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		CheckoutBaseURL: "https://checkout.fake.local",
		authorizations:  make(map[string]*Authorization),
		sessions:        make(map[string]*fakeSession),
		captures:        make(map[string]string),
		failures:        make(map[string]string),
		calls:           make(map[string]int),
	}
}

// Operation names accepted by FailNext and Calls.
const (
	OpCreateAuthorization   = "create_authorization"
	OpCreateCheckoutSession = "create_checkout_session"
	OpRetrieveSession       = "retrieve_session"
	OpRetrieveAuthorization = "retrieve_authorization"
	OpCaptureAuthorization  = "capture_authorization"
)

// FailNext makes the next call of op return a GatewayError with msg.
func (g *FakeGateway) FailNext(op, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = msg
}

// Calls reports how many times op was invoked.
func (g *FakeGateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// enter records a call and returns the injected failure, if any. Caller holds mu.
func (g *FakeGateway) enter(op string) error {
	g.calls[op]++
	if msg, ok := g.failures[op]; ok {
		delete(g.failures, op)
		return &GatewayError{Op: op, Message: msg}
	}
	return nil
}

func (g *FakeGateway) CreateAuthorization(ctx context.Context, req AuthorizationRequest) (*Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCreateAuthorization); err != nil {
		return nil, err
	}
	id := "pi_fake_" + uuid.NewString()
	a := &Authorization{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		AmountCents:  req.AmountCents,
		Status:       StatusRequiresCapture,
		Metadata:     copyMeta(req.Metadata),
	}
	g.authorizations[id] = a
	out := *a
	return &out, nil
}

func (g *FakeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCreateCheckoutSession); err != nil {
		return nil, err
	}
	id := "cs_fake_" + uuid.NewString()
	s := &fakeSession{
		CheckoutSession: CheckoutSession{
			ID:       id,
			URL:      strings.TrimRight(g.CheckoutBaseURL, "/") + "/pay/" + id,
			Metadata: copyMeta(req.Metadata),
		},
		amountCents: req.AmountCents,
		successURL:  req.SuccessURL,
	}
	g.sessions[id] = s
	out := s.CheckoutSession
	return &out, nil
}

// CompleteSession simulates the payer finishing the hosted page: it attaches
// a capturable authorization to the session and returns its id.
func (g *FakeGateway) CompleteSession(sessionID string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return "", fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if s.Complete {
		return s.AuthorizationID, nil
	}
	id := "pi_fake_" + uuid.NewString()
	g.authorizations[id] = &Authorization{
		ID:          id,
		AmountCents: s.amountCents,
		Status:      StatusRequiresCapture,
		Metadata:    copyMeta(s.Metadata),
	}
	s.AuthorizationID = id
	s.Complete = true
	return id, nil
}

// SuccessURL returns the success target registered for a session.
func (g *FakeGateway) SuccessURL(sessionID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sessions[sessionID]; ok {
		return s.successURL
	}
	return ""
}

func (g *FakeGateway) RetrieveSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRetrieveSession); err != nil {
		return nil, err
	}
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("retrieve session: %w", ErrNotFound)
	}
	out := s.CheckoutSession
	out.Metadata = copyMeta(s.Metadata)
	return &out, nil
}

func (g *FakeGateway) RetrieveAuthorization(ctx context.Context, authorizationID string) (*Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpRetrieveAuthorization); err != nil {
		return nil, err
	}
	a, ok := g.authorizations[authorizationID]
	if !ok {
		return nil, fmt.Errorf("retrieve authorization: %w", ErrNotFound)
	}
	out := *a
	out.Metadata = copyMeta(a.Metadata)
	return &out, nil
}

func (g *FakeGateway) CaptureAuthorization(ctx context.Context, authorizationID string, amountCents int64, idempotencyKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.enter(OpCaptureAuthorization); err != nil {
		return err
	}
	if idempotencyKey != "" {
		if prev, ok := g.captures[idempotencyKey]; ok && prev == authorizationID {
			return nil
		}
	}
	a, ok := g.authorizations[authorizationID]
	if !ok {
		return fmt.Errorf("capture authorization: %w", ErrNotFound)
	}
	if a.Status != StatusRequiresCapture {
		return &GatewayError{Op: OpCaptureAuthorization, Message: fmt.Sprintf("payment intent has status %s", a.Status)}
	}
	if amountCents <= 0 || amountCents > a.AmountCents {
		return &GatewayError{Op: OpCaptureAuthorization, Message: "amount_to_capture exceeds capturable amount"}
	}
	a.AmountCents = amountCents
	a.Status = "succeeded"
	if idempotencyKey != "" {
		g.captures[idempotencyKey] = authorizationID
	}
	return nil
}

func copyMeta(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Gateway = (*FakeGateway)(nil)
