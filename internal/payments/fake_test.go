package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGateway_Selection(t *testing.T) {
	gw, err := NewGateway("", "")
	require.NoError(t, err)
	assert.IsType(t, &FakeGateway{}, gw)

	gw, err = NewGateway("", "sk_test_123")
	require.NoError(t, err)
	assert.IsType(t, &StripeGateway{}, gw)

	_, err = NewGateway("stripe", "")
	assert.Error(t, err)

	_, err = NewGateway("paypal", "")
	assert.Error(t, err)
}

func TestFakeGateway_CheckoutRoundTrip(t *testing.T) {
	ctx := context.Background()
	g := NewFakeGateway()

	cs, err := g.CreateCheckoutSession(ctx, CheckoutRequest{
		AmountCents: 7500,
		Currency:    "usd",
		SuccessURL:  "http://localhost/success",
		Metadata:    map[string]string{"task_id": "t1", "move_id": "m1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, cs.URL)
	assert.False(t, cs.Complete)

	authID, err := g.CompleteSession(cs.ID)
	require.NoError(t, err)

	got, err := g.RetrieveSession(ctx, cs.ID)
	require.NoError(t, err)
	assert.True(t, got.Complete)
	assert.Equal(t, authID, got.AuthorizationID)
	assert.Equal(t, "t1", got.Metadata["task_id"])

	a, err := g.RetrieveAuthorization(ctx, authID)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), a.AmountCents)
	assert.Equal(t, StatusRequiresCapture, a.Status)
}

func TestFakeGateway_CaptureBoundsAndIdempotency(t *testing.T) {
	ctx := context.Background()
	g := NewFakeGateway()
	a, err := g.CreateAuthorization(ctx, AuthorizationRequest{AmountCents: 1000, Currency: "usd"})
	require.NoError(t, err)

	var gwErr *GatewayError
	err = g.CaptureAuthorization(ctx, a.ID, 1001, "k1")
	require.ErrorAs(t, err, &gwErr)

	require.NoError(t, g.CaptureAuthorization(ctx, a.ID, 400, "k1"))
	// Same key replays as success, a different key hits the captured intent.
	require.NoError(t, g.CaptureAuthorization(ctx, a.ID, 400, "k1"))
	require.ErrorAs(t, g.CaptureAuthorization(ctx, a.ID, 400, "k2"), &gwErr)

	got, err := g.RetrieveAuthorization(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(400), got.AmountCents)
}

func TestFakeGateway_FailNextAndNotFound(t *testing.T) {
	ctx := context.Background()
	g := NewFakeGateway()
	g.FailNext(OpCreateAuthorization, "card_declined")

	_, err := g.CreateAuthorization(ctx, AuthorizationRequest{AmountCents: 100})
	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "card_declined", gwErr.Message)
	assert.Equal(t, 1, g.Calls(OpCreateAuthorization))

	_, err = g.CreateAuthorization(ctx, AuthorizationRequest{AmountCents: 100})
	require.NoError(t, err)

	_, err = g.RetrieveSession(ctx, "cs_missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
