package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/antonykevinfernando/doorstep-sub001/internal/models"
)

const (
	pgUniqueViolation = "23505"

	constraintAuthorizedPerTask = "deposits_one_authorized_per_task"
	constraintAuthorizationID   = "deposits_gateway_authorization_id_key"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// DB exposes the pool for migrations.
func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) Close() error { return p.db.Close() }

func (p *PostgresStore) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

const depositColumns = `id, move_id, task_id, gateway_authorization_id, amount_cents, status, COALESCE(notes, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeposit(row rowScanner) (*models.Deposit, error) {
	var d models.Deposit
	var status string
	err := row.Scan(&d.ID, &d.MoveID, &d.TaskID, &d.GatewayAuthorizationID, &d.AmountCents, &status, &d.Notes, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Status = models.DepositStatus(status)
	return &d, nil
}

// validID reports whether id can name a deposit row. The column is UUID, so
// anything else would fail with invalid_text_representation instead of
// matching nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (p *PostgresStore) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanDeposit(p.db.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1`, id))
}

func (p *PostgresStore) FindAuthorizedByTask(ctx context.Context, taskID string) (*models.Deposit, error) {
	return scanDeposit(p.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE task_id = $1 AND status = $2 LIMIT 1`,
		taskID, string(models.DepositAuthorized)))
}

func (p *PostgresStore) FindByAuthorization(ctx context.Context, authorizationID string) (*models.Deposit, error) {
	return scanDeposit(p.db.QueryRowContext(ctx,
		`SELECT `+depositColumns+` FROM deposits WHERE gateway_authorization_id = $1`, authorizationID))
}

func (p *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&postgresTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) InsertDeposit(ctx context.Context, d *models.Deposit) error {
	err := t.tx.QueryRowContext(ctx,
		`INSERT INTO deposits(move_id, task_id, gateway_authorization_id, amount_cents, status, notes)
		 VALUES($1,$2,$3,$4,$5,NULLIF($6,'')) RETURNING id, created_at`,
		d.MoveID, d.TaskID, d.GatewayAuthorizationID, d.AmountCents, string(d.Status), d.Notes,
	).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return mapInsertError(err)
	}
	return nil
}

func mapInsertError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation {
		switch pqErr.Constraint {
		case constraintAuthorizedPerTask:
			return ErrHoldExists
		case constraintAuthorizationID:
			return ErrDuplicateAuthorization
		}
	}
	return fmt.Errorf("insert deposit: %w", err)
}

func (t *postgresTx) LockDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	return scanDeposit(t.tx.QueryRowContext(ctx, `SELECT `+depositColumns+` FROM deposits WHERE id = $1 FOR UPDATE`, id))
}

func (t *postgresTx) MarkCaptured(ctx context.Context, id string, amountCents int64, notes string) (*models.Deposit, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	d, err := scanDeposit(t.tx.QueryRowContext(ctx,
		`UPDATE deposits SET status = $2, amount_cents = $3, notes = COALESCE(NULLIF($4,''), notes)
		 WHERE id = $1 AND status = $5 RETURNING `+depositColumns,
		id, string(models.DepositCaptured), amountCents, notes, string(models.DepositAuthorized)))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrStatusChanged
	}
	return d, err
}

// CompleteTask marks the task done with the hold response, creating the row
// when the task was never synced into this database.
func (t *postgresTx) CompleteTask(ctx context.Context, taskID, moveID string, resp models.TaskResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO tasks(id, move_id, completed, response, updated_at) VALUES($1, $2, TRUE, $3, NOW())
		 ON CONFLICT (id) DO UPDATE SET completed = TRUE, response = EXCLUDED.response, updated_at = NOW()`,
		taskID, moveID, b)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
