package savings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// Repository encapsulates DB operations for the savings ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	LatestBalance(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error)
	History(ctx context.Context, filter HistoryFilter) ([]SavingsEntry, shared.Pagination, error)
}

// TxRepository exposes methods available within a posting transaction. The
// student row lock serializes read-modify-append sequences per student;
// postings for different students proceed independently.
type TxRepository interface {
	LockStudent(ctx context.Context, studentID uuid.UUID) error
	LatestBalanceLocked(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error)
	InsertEntry(ctx context.Context, entry SavingsEntry) (SavingsEntry, error)
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

const entryColumns = `id, seq, student_id, kind, amount::text, balance_before::text, balance_after::text, description, notes, evidence_ref, account_id, operator_ref, created_at`

func scanEntry(row pgx.Row) (SavingsEntry, error) {
	var e SavingsEntry
	var amount, before, after string
	if err := row.Scan(&e.ID, &e.Seq, &e.StudentID, &e.Kind, &amount, &before, &after, &e.Description, &e.Notes, &e.EvidenceRef, &e.AccountID, &e.OperatorRef, &e.CreatedAt); err != nil {
		return SavingsEntry{}, err
	}
	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return SavingsEntry{}, err
	}
	if e.BalanceBefore, err = decimal.NewFromString(before); err != nil {
		return SavingsEntry{}, err
	}
	if e.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return SavingsEntry{}, err
	}
	return e, nil
}

func (r *repository) LatestBalance(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM students WHERE id=$1)`, studentID).Scan(&exists); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, ErrStudentNotFound
	}
	var raw string
	err := r.db.QueryRow(ctx, `SELECT balance_after::text FROM savings_entries WHERE student_id=$1 ORDER BY seq DESC LIMIT 1`, studentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *repository) History(ctx context.Context, filter HistoryFilter) ([]SavingsEntry, shared.Pagination, error) {
	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	add := func(clause string, val any) {
		where += fmt.Sprintf(clause, idx)
		args = append(args, val)
		idx++
	}
	if filter.StudentID != nil {
		add(` AND student_id=$%d`, *filter.StudentID)
	}
	if filter.Kind != nil {
		add(` AND kind=$%d`, *filter.Kind)
	}
	if filter.From != nil {
		add(` AND created_at >= $%d`, *filter.From)
	}
	if filter.To != nil {
		add(` AND created_at <= $%d`, *filter.To)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM savings_entries`+where, args...).Scan(&total); err != nil {
		return nil, shared.Pagination{}, err
	}
	page := shared.NewPagination(filter.Page, filter.PerPage, total)

	query := `SELECT ` + entryColumns + ` FROM savings_entries` + where +
		fmt.Sprintf(` ORDER BY seq DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, page.PerPage, page.Offset())
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	defer rows.Close()
	var entries []SavingsEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, shared.Pagination{}, err
		}
		entries = append(entries, entry)
	}
	return entries, page, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockStudent(ctx context.Context, studentID uuid.UUID) error {
	var id uuid.UUID
	err := r.tx.QueryRow(ctx, `SELECT id FROM students WHERE id=$1 FOR UPDATE`, studentID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStudentNotFound
		}
		return err
	}
	return nil
}

func (r *txRepository) LatestBalanceLocked(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error) {
	var raw string
	err := r.tx.QueryRow(ctx, `SELECT balance_after::text FROM savings_entries WHERE student_id=$1 ORDER BY seq DESC LIMIT 1`, studentID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry SavingsEntry) (SavingsEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO savings_entries
(id, student_id, kind, amount, balance_before, balance_after, description, notes, evidence_ref, account_id, operator_ref, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING `+entryColumns,
		entry.ID, entry.StudentID, entry.Kind, entry.Amount.String(), entry.BalanceBefore.String(),
		entry.BalanceAfter.String(), entry.Description, entry.Notes, entry.EvidenceRef,
		entry.AccountID, entry.OperatorRef, entry.CreatedAt)
	return scanEntry(row)
}
