package models

import (
	"errors"
	"time"
)

// DepositStatus is the ledger state of a hold.
type DepositStatus string

const (
	DepositAuthorized DepositStatus = "authorized"
	DepositCaptured   DepositStatus = "captured"
)

// Deposit is the local record of a hold placed against a move task.
type Deposit struct {
	ID                     string        `json:"id"`
	MoveID                 string        `json:"move_id"`
	TaskID                 string        `json:"task_id"`
	GatewayAuthorizationID string        `json:"gateway_authorization_id"`
	AmountCents            int64         `json:"amount_cents"`
	Status                 DepositStatus `json:"status"`
	Notes                  string        `json:"notes,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
}

// NewAuthorizedDeposit is the only way a Deposit enters the ledger. ID and
// CreatedAt are assigned by the store on insert.
func NewAuthorizedDeposit(taskID, moveID, authorizationID string, amountCents int64) (*Deposit, error) {
	if taskID == "" {
		return nil, errors.New("task_id is required")
	}
	if moveID == "" {
		return nil, errors.New("move_id is required")
	}
	if authorizationID == "" {
		return nil, errors.New("gateway authorization id is required")
	}
	if amountCents <= 0 {
		return nil, errors.New("amount_cents must be positive")
	}
	return &Deposit{
		MoveID:                 moveID,
		TaskID:                 taskID,
		GatewayAuthorizationID: authorizationID,
		AmountCents:            amountCents,
		Status:                 DepositAuthorized,
	}, nil
}

// Task is the externally owned checklist item a deposit is attached to.
type Task struct {
	ID        string        `json:"id"`
	MoveID    string        `json:"move_id"`
	Completed bool          `json:"completed"`
	Response  *TaskResponse `json:"response,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TaskResponse is written into a task when a hosted checkout finalizes.
type TaskResponse struct {
	AuthorizationID string `json:"authorization_id"`
	AmountCents     int64  `json:"amount_cents"`
}

type DepositEventType string

const (
	EventDepositAuthorized DepositEventType = "deposit.authorized"
	EventDepositCaptured   DepositEventType = "deposit.captured"
)

// DepositEvent is published after a ledger change commits.
type DepositEvent struct {
	Type        DepositEventType `json:"type"`
	DepositID   string           `json:"deposit_id"`
	TaskID      string           `json:"task_id"`
	MoveID      string           `json:"move_id"`
	Status      DepositStatus    `json:"status"`
	AmountCents int64            `json:"amount_cents"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func NewDepositEvent(t DepositEventType, d *Deposit) DepositEvent {
	return DepositEvent{
		Type:        t,
		DepositID:   d.ID,
		TaskID:      d.TaskID,
		MoveID:      d.MoveID,
		Status:      d.Status,
		AmountCents: d.AmountCents,
		OccurredAt:  time.Now().UTC(),
	}
}
