package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// Repository encapsulates DB operations for the journal.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	List(ctx context.Context, filter ListFilter) ([]JournalEntry, shared.Pagination, error)
	Cashflow(ctx context.Context, from, to time.Time) (CashflowSummary, error)
}

// AccountState is the slice of the account row the posting path needs while
// holding its lock.
type AccountState struct {
	ID     uuid.UUID
	Active bool
	Unit   accounts.ManagingUnit
}

// TxRepository exposes methods available within a posting transaction.
type TxRepository interface {
	GetAccountStateForUpdate(ctx context.Context, accountID uuid.UUID) (AccountState, error)
	InsertEntry(ctx context.Context, in PostInput) (JournalEntry, error)
	GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error)
	MarkVoid(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
	RefreshAccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
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

const entryColumns = `id, entry_date, direction, category, sub_category, amount::text, description, counterparty, account_id, status, auto_posted, created_by, void_reason, voided_at, created_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	var amount string
	if err := row.Scan(&e.ID, &e.Date, &e.Direction, &e.Category, &e.SubCategory, &amount, &e.Description, &e.Counterparty, &e.AccountID, &e.Status, &e.AutoPosted, &e.CreatedBy, &e.VoidReason, &e.VoidedAt, &e.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return JournalEntry{}, err
	}
	e.Amount = parsed
	return e, nil
}

func (r *repository) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	row := r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, shared.Pagination, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, val any) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, val)
		idx++
	}
	if filter.AccountID != nil {
		add(` AND account_id=$%d`, *filter.AccountID)
	}
	if filter.Direction != nil {
		add(` AND direction=$%d`, *filter.Direction)
	}
	if filter.Category != nil {
		add(` AND category=$%d`, *filter.Category)
	}
	if filter.From != nil {
		add(` AND entry_date >= $%d`, *filter.From)
	}
	if filter.To != nil {
		add(` AND entry_date <= $%d`, *filter.To)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	query := `SELECT ` + entryColumns + ` FROM journal_entries` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		entries = append(entries, entry)
	}
	return entries, page, rows.Err()
}

func (r *repository) Cashflow(ctx context.Context, from, to time.Time) (CashflowSummary, error) {
	rows, err := r.db.Query(ctx, `SELECT category,
COALESCE(SUM(amount) FILTER (WHERE direction='INCOME'), 0)::text,
COALESCE(SUM(amount) FILTER (WHERE direction='EXPENSE'), 0)::text
FROM journal_entries
WHERE status='POSTED' AND entry_date >= $1 AND entry_date <= $2
GROUP BY category ORDER BY category`, from, to)
	if err != nil {
		return CashflowSummary{}, err
	}
	defer rows.Close()

	summary := CashflowSummary{From: from, To: to, TotalIncome: decimal.Zero, TotalExpense: decimal.Zero}
	for rows.Next() {
		var ct CategoryTotal
		var income, expense string
		if err := rows.Scan(&ct.Category, &income, &expense); err != nil {
			return CashflowSummary{}, err
		}
		if ct.Income, err = decimal.NewFromString(income); err != nil {
			return CashflowSummary{}, err
		}
		if ct.Expense, err = decimal.NewFromString(expense); err != nil {
			return CashflowSummary{}, err
		}
		summary.TotalIncome = summary.TotalIncome.Add(ct.Income)
		summary.TotalExpense = summary.TotalExpense.Add(ct.Expense)
		summary.Categories = append(summary.Categories, ct)
	}
	summary.Net = summary.TotalIncome.Sub(summary.TotalExpense)
	return summary, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetAccountStateForUpdate(ctx context.Context, accountID uuid.UUID) (AccountState, error) {
	var state AccountState
	err := r.tx.QueryRow(ctx, `SELECT id, active, unit FROM cash_accounts WHERE id=$1 FOR UPDATE`, accountID).
		Scan(&state.ID, &state.Active, &state.Unit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountState{}, accounts.ErrAccountNotFound
		}
		return AccountState{}, err
	}
	return state, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostInput) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries
(id, entry_date, direction, category, sub_category, amount, description, counterparty, account_id, status, auto_posted, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'POSTED',$10,$11)
RETURNING `+entryColumns,
		uuid.New(), in.Date, in.Direction, in.Category, in.SubCategory, in.Amount.String(),
		in.Description, in.Counterparty, in.AccountID, in.AutoPosted, in.CreatedBy)
	return scanEntry(row)
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) MarkVoid(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOID', void_reason=$2, voided_at=$3 WHERE id=$1`, id, reason, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrEntryNotFound
	}
	return nil
}

// RefreshAccountBalance rewrites the cached balance as the signed sum of
// non-voided entries, in the same transaction as the write that changed the
// journal. The cache is never trusted as a second source of truth.
func (r *txRepository) RefreshAccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	var balance string
	err := r.tx.QueryRow(ctx, `UPDATE cash_accounts SET current_balance = COALESCE((
SELECT SUM(CASE WHEN direction='INCOME' THEN amount ELSE -amount END)
FROM journal_entries WHERE account_id=$1 AND status='POSTED'), 0), updated_at=NOW()
WHERE id=$1 RETURNING current_balance::text`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, accounts.ErrAccountNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(balance)
}
