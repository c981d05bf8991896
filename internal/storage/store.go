package storage

import (
	"context"
	"errors"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrHoldExists means the task already has a deposit in status authorized.
	ErrHoldExists = errors.New("an authorized hold already exists for this task")
	// ErrDuplicateAuthorization means the gateway authorization is already recorded.
	ErrDuplicateAuthorization = errors.New("gateway authorization already recorded")
	// ErrStatusChanged is returned by a conditional update whose expected status no longer holds.
	ErrStatusChanged = errors.New("deposit status changed concurrently")
)

// Store defines persistence operations for the deposit ledger.
type Store interface {
	GetDeposit(ctx context.Context, id string) (*models.Deposit, error)
	FindAuthorizedByTask(ctx context.Context, taskID string) (*models.Deposit, error)
	FindByAuthorization(ctx context.Context, authorizationID string) (*models.Deposit, error)
	// InTx runs fn inside one transaction. fn's error rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the write side of the ledger. Every method participates in the
// surrounding transaction.
type Tx interface {
	// InsertDeposit assigns ID and CreatedAt. It fails with ErrHoldExists or
	// ErrDuplicateAuthorization instead of writing a second live hold.
	InsertDeposit(ctx context.Context, d *models.Deposit) error
	// LockDeposit reads a deposit and holds it against concurrent writers
	// until the transaction ends.
	LockDeposit(ctx context.Context, id string) (*models.Deposit, error)
	// MarkCaptured moves an authorized deposit to captured. It fails with
	// ErrStatusChanged when the deposit is no longer authorized.
	MarkCaptured(ctx context.Context, id string, amountCents int64, notes string) (*models.Deposit, error)
	// CompleteTask records the hold response on the task, creating the task
	// row when it is missing so a captured authorization always has a home.
	CompleteTask(ctx context.Context, taskID, moveID string, resp models.TaskResponse) error
}
