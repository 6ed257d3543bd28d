package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/journal"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
)

// AccountBalance is the locked slice of the account row the engine works on.
type AccountBalance struct {
	ID       uuid.UUID
	Active   bool
	Recorded decimal.Decimal
}

// Repository encapsulates DB operations for reconciliation.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetCachedBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	ListAccountIDs(ctx context.Context) ([]uuid.UUID, error)
}

// TxRepository exposes methods available within a reconciliation transaction.
// The journal-table statements are duplicated from the journal repository on
// purpose: they must run on this transaction's connection.
type TxRepository interface {
	LockAccount(ctx context.Context, accountID uuid.UUID) (AccountBalance, error)
	SumPostedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	RefreshBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	InsertAdjustment(ctx context.Context, in AdjustmentInsert) (journal.JournalEntry, error)
}

// AdjustmentInsert carries the synthetic correction entry fields.
type AdjustmentInsert struct {
	AccountID uuid.UUID
	Direction journal.Direction
	Amount    decimal.Decimal
	Reason    string
	Operator  string
	Date      time.Time
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *repository) GetCachedBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := r.db.QueryRow(ctx, `SELECT current_balance::text FROM cash_accounts WHERE id=$1`, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, accounts.ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *repository) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM cash_accounts ORDER BY code ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockAccount(ctx context.Context, accountID uuid.UUID) (AccountBalance, error) {
	var bal AccountBalance
	var raw string
	err := r.tx.QueryRow(ctx, `SELECT id, active, current_balance::text FROM cash_accounts WHERE id=$1 FOR UPDATE`, accountID).
		Scan(&bal.ID, &bal.Active, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountBalance{}, accounts.ErrAccountNotFound
		}
		return AccountBalance{}, err
	}
	if bal.Recorded, err = decimal.NewFromString(raw); err != nil {
		return AccountBalance{}, err
	}
	return bal, nil
}

func (r *txRepository) SumPostedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(CASE WHEN direction='INCOME' THEN amount ELSE -amount END), 0)::text
FROM journal_entries WHERE account_id=$1 AND status='POSTED'`, accountID).Scan(&raw)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *txRepository) RefreshBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := r.tx.QueryRow(ctx, `UPDATE cash_accounts SET current_balance = COALESCE((
SELECT SUM(CASE WHEN direction='INCOME' THEN amount ELSE -amount END)
FROM journal_entries WHERE account_id=$1 AND status='POSTED'), 0), updated_at=NOW()
WHERE id=$1 RETURNING current_balance::text`, accountID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, accounts.ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *txRepository) InsertAdjustment(ctx context.Context, in AdjustmentInsert) (journal.JournalEntry, error) {
	var e journal.JournalEntry
	var amount string
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(id, entry_date, direction, category, sub_category, amount, description, counterparty, account_id, status, auto_posted, created_by)
VALUES ($1,$2,$3,$4,'',$5,$6,'',$7,'POSTED',TRUE,$8)
RETURNING id, entry_date, direction, category, amount::text, description, account_id, status, auto_posted, created_by, created_at`,
		uuid.New(), in.Date, in.Direction, journal.CategoryBalanceAdjustment, in.Amount.String(),
		in.Reason, in.AccountID, in.Operator).
		Scan(&e.ID, &e.Date, &e.Direction, &e.Category, &amount, &e.Description, &e.AccountID, &e.Status, &e.AutoPosted, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		return journal.JournalEntry{}, err
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return journal.JournalEntry{}, err
	}
	return e, nil
}
