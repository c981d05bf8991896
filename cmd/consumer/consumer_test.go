package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

// fakeUpdater keeps hashes in memory and fails the first failN calls.
type fakeUpdater struct {
	failN  int
	calls  int
	hashes map[string]map[string]interface{}
}

func newFakeUpdater(failN int) *fakeUpdater {
	return &fakeUpdater{failN: failN, hashes: make(map[string]map[string]interface{})}
}

func (f *fakeUpdater) HSet(ctx context.Context, key string, values map[string]interface{}) error {
	f.calls++
	if f.calls <= f.failN {
		return errors.New("hset fail")
	}
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]interface{})
		f.hashes[key] = h
	}
	for k, v := range values {
		h[k] = v
	}
	return nil
}

func sampleEvent(t models.DepositEventType, status models.DepositStatus, amount int64) models.DepositEvent {
	return models.DepositEvent{
		Type:        t,
		DepositID:   "dep-1",
		TaskID:      "task-1",
		MoveID:      "move-1",
		Status:      status,
		AmountCents: amount,
		OccurredAt:  time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestProject_WritesDepositAndMoveHashes(t *testing.T) {
	f := newFakeUpdater(0)
	require.NoError(t, project(context.Background(), f, sampleEvent(models.EventDepositAuthorized, models.DepositAuthorized, 20000)))
	require.NoError(t, project(context.Background(), f, sampleEvent(models.EventDepositCaptured, models.DepositCaptured, 5000)))

	dep := f.hashes["deposit:dep-1"]
	assert.Equal(t, "captured", dep["status"])
	assert.Equal(t, "5000", dep["amount_cents"])
	assert.Equal(t, "move-1", dep["move_id"])

	raw, ok := f.hashes["move:deposits:move-1"]["task-1"].(string)
	require.True(t, ok)
	var entry moveEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.Equal(t, moveEntry{DepositID: "dep-1", Status: models.DepositCaptured, AmountCents: 5000}, entry)
}

func TestProjectWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := newFakeUpdater(2)
	start := time.Now()
	err := projectWithRetry(context.Background(), f, sampleEvent(models.EventDepositAuthorized, models.DepositAuthorized, 10000), 3, 10*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Contains(t, f.hashes, "deposit:dep-1")
	assert.Contains(t, f.hashes, "move:deposits:move-1")
}

func TestProjectWithRetry_FailsWhenExhausted(t *testing.T) {
	f := newFakeUpdater(10)
	err := projectWithRetry(context.Background(), f, sampleEvent(models.EventDepositAuthorized, models.DepositAuthorized, 10000), 3, time.Millisecond)
	require.ErrorContains(t, err, "hset fail")
	assert.Equal(t, 3, f.calls)
}

func TestProjectWithRetry_StopsOnCancel(t *testing.T) {
	f := newFakeUpdater(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := projectWithRetry(ctx, f, sampleEvent(models.EventDepositAuthorized, models.DepositAuthorized, 10000), 5, time.Second)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.calls)
}
