package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

// MemoryStore keeps the ledger in process. Transactions are serialized on one
// mutex and staged, so a failing fn leaves no trace.
type MemoryStore struct {
	mu       sync.Mutex
	deposits map[string]*models.Deposit
	tasks    map[string]*models.Task
	Now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		deposits: make(map[string]*models.Deposit),
		tasks:    make(map[string]*models.Task),
		Now:      time.Now,
	}
}

func (m *MemoryStore) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *MemoryStore) FindAuthorizedByTask(ctx context.Context, taskID string) (*models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deposits {
		if d.TaskID == taskID && d.Status == models.DepositAuthorized {
			out := *d
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindByAuthorization(ctx context.Context, authorizationID string) (*models.Deposit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.deposits {
		if d.GatewayAuthorizationID == authorizationID {
			out := *d
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

// Task returns a copy of a task as last written.
func (m *MemoryStore) Task(id string) (*models.Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	out := *t
	return &out, true
}

// PutTask seeds a task, standing in for the external task table.
func (m *MemoryStore) PutTask(t models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[t.ID] = &t
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{
		store:    m,
		deposits: make(map[string]*models.Deposit),
		tasks:    make(map[string]*models.Task),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for id, d := range tx.deposits {
		m.deposits[id] = d
	}
	for id, t := range tx.tasks {
		m.tasks[id] = t
	}
	return nil
}

// memoryTx reads through its staged writes to the committed maps. The store
// mutex is held by InTx for the whole lifetime of the tx.
type memoryTx struct {
	store    *MemoryStore
	deposits map[string]*models.Deposit
	tasks    map[string]*models.Task
}

func (t *memoryTx) deposit(id string) (*models.Deposit, bool) {
	if d, ok := t.deposits[id]; ok {
		return d, true
	}
	d, ok := t.store.deposits[id]
	return d, ok
}

func (t *memoryTx) eachDeposit(fn func(d *models.Deposit) bool) {
	for _, d := range t.deposits {
		if !fn(d) {
			return
		}
	}
	for id, d := range t.store.deposits {
		if _, staged := t.deposits[id]; staged {
			continue
		}
		if !fn(d) {
			return
		}
	}
}

func (t *memoryTx) InsertDeposit(ctx context.Context, d *models.Deposit) error {
	var conflict error
	t.eachDeposit(func(cur *models.Deposit) bool {
		switch {
		case cur.GatewayAuthorizationID == d.GatewayAuthorizationID:
			conflict = ErrDuplicateAuthorization
		case cur.TaskID == d.TaskID && cur.Status == models.DepositAuthorized && d.Status == models.DepositAuthorized:
			conflict = ErrHoldExists
		}
		return conflict == nil
	})
	if conflict != nil {
		return conflict
	}
	d.ID = uuid.NewString()
	d.CreatedAt = t.store.Now().UTC()
	row := *d
	t.deposits[row.ID] = &row
	return nil
}

func (t *memoryTx) LockDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	d, ok := t.deposit(id)
	if !ok {
		return nil, ErrNotFound
	}
	out := *d
	return &out, nil
}

func (t *memoryTx) MarkCaptured(ctx context.Context, id string, amountCents int64, notes string) (*models.Deposit, error) {
	d, ok := t.deposit(id)
	if !ok {
		return nil, ErrNotFound
	}
	if d.Status != models.DepositAuthorized {
		return nil, ErrStatusChanged
	}
	row := *d
	row.Status = models.DepositCaptured
	row.AmountCents = amountCents
	if notes != "" {
		row.Notes = notes
	}
	t.deposits[id] = &row
	out := row
	return &out, nil
}

// CompleteTask creates the task when it was never seeded, matching the
// Postgres upsert.
func (t *memoryTx) CompleteTask(ctx context.Context, taskID, moveID string, resp models.TaskResponse) error {
	var row models.Task
	if cur, ok := t.tasks[taskID]; ok {
		row = *cur
	} else if cur, ok := t.store.tasks[taskID]; ok {
		row = *cur
	} else {
		row = models.Task{ID: taskID, MoveID: moveID}
	}
	row.Completed = true
	r := resp
	row.Response = &r
	row.UpdatedAt = t.store.Now().UTC()
	t.tasks[taskID] = &row
	return nil
}

var _ Store = (*MemoryStore)(nil)
