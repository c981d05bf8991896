package storage

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

// newTestPostgres connects to TEST_PG_DSN and applies migrations. The test is
// skipped when no database is configured.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	s, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	_, err = Migrate(context.Background(), s.DB())
	require.NoError(t, err)
	return s
}

func TestPostgresStore_PartialUniqueIndex(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)
	taskID := "task-" + uuid.NewString()

	d, _ := models.NewAuthorizedDeposit(taskID, "move-1", "pi_"+uuid.NewString(), 5000)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error { return tx.InsertDeposit(ctx, d) }))
	assert.NotEmpty(t, d.ID)

	second, _ := models.NewAuthorizedDeposit(taskID, "move-1", "pi_"+uuid.NewString(), 5000)
	err := s.InTx(ctx, func(tx Tx) error { return tx.InsertDeposit(ctx, second) })
	assert.ErrorIs(t, err, ErrHoldExists)

	dup, _ := models.NewAuthorizedDeposit("task-"+uuid.NewString(), "move-1", d.GatewayAuthorizationID, 5000)
	err = s.InTx(ctx, func(tx Tx) error { return tx.InsertDeposit(ctx, dup) })
	assert.ErrorIs(t, err, ErrDuplicateAuthorization)
}

func TestPostgresStore_CaptureCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	d, _ := models.NewAuthorizedDeposit("task-"+uuid.NewString(), "move-1", "pi_"+uuid.NewString(), 5000)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error { return tx.InsertDeposit(ctx, d) }))

	var captured *models.Deposit
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockDeposit(ctx, d.ID)
		if err != nil {
			return err
		}
		captured, err = tx.MarkCaptured(ctx, locked.ID, 1200, "partial")
		return err
	}))
	assert.Equal(t, models.DepositCaptured, captured.Status)
	assert.Equal(t, int64(1200), captured.AmountCents)
	assert.Equal(t, "partial", captured.Notes)

	err := s.InTx(ctx, func(tx Tx) error {
		_, err := tx.MarkCaptured(ctx, d.ID, 1200, "")
		return err
	})
	assert.ErrorIs(t, err, ErrStatusChanged)
}

func TestPostgresStore_CompleteTaskUpserts(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)
	missing := "task-" + uuid.NewString()

	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		return tx.CompleteTask(ctx, missing, "move-1", models.TaskResponse{AuthorizationID: "pi_x", AmountCents: 1})
	}))
	var (
		completed bool
		moveID    string
	)
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT completed, move_id FROM tasks WHERE id = $1`, missing).Scan(&completed, &moveID))
	assert.True(t, completed)
	assert.Equal(t, "move-1", moveID)

	seeded := "task-" + uuid.NewString()
	_, err := s.DB().ExecContext(ctx, `INSERT INTO tasks(id, move_id) VALUES($1, 'move-9')`, seeded)
	require.NoError(t, err)
	require.NoError(t, s.InTx(ctx, func(tx Tx) error {
		return tx.CompleteTask(ctx, seeded, "move-1", models.TaskResponse{AuthorizationID: "pi_y", AmountCents: 2})
	}))
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT completed, move_id FROM tasks WHERE id = $1`, seeded).Scan(&completed, &moveID))
	assert.True(t, completed)
	assert.Equal(t, "move-9", moveID)
}

func TestPostgresStore_MalformedIDIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	_, err := s.GetDeposit(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.LockDeposit(ctx, "nope")
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	s := newTestPostgres(t)

	_, err := s.DB().ExecContext(ctx,
		`INSERT INTO deposits(move_id, task_id, gateway_authorization_id, amount_cents, status) VALUES('move-1', $1, $2, 100, 'failed')`,
		"task-"+uuid.NewString(), "pi_"+uuid.NewString())
	assert.Error(t, err)
}

func TestValidID(t *testing.T) {
	assert.True(t, validID(uuid.NewString()))
	assert.False(t, validID("nope"))
	assert.False(t, validID(""))
}
