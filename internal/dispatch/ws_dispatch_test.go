package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

type fakeConn struct {
	sent   []interface{}
	err    error
	closed bool
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) WriteJSON(v interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeConn) Close() error { f.closed = true; return nil }

func TestWSRegistry_BroadcastDropsBrokenSessions(t *testing.T) {
	r := NewWSRegistry()
	good := &fakeConn{}
	bad := &fakeConn{err: errors.New("broken pipe")}
	r.Add("ops-1", good)
	r.Add("ops-2", bad)

	ev := models.DepositEvent{Type: models.EventDepositAuthorized, DepositID: "dep-1"}
	err := r.Publish(context.Background(), ev)
	require.Error(t, err)

	assert.Len(t, good.sent, 1)
	assert.True(t, bad.closed)
	assert.Equal(t, 1, r.Len())
}

func TestWSRegistry_AddReplacesSession(t *testing.T) {
	r := NewWSRegistry()
	first := &fakeConn{}
	second := &fakeConn{}
	r.Add("ops-1", first)
	r.Add("ops-1", second)

	assert.True(t, first.closed)
	require.NoError(t, r.Publish(context.Background(), models.DepositEvent{DepositID: "dep-1"}))
	assert.Empty(t, first.sent)
	assert.Len(t, second.sent, 1)
}
