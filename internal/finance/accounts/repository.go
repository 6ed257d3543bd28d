package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository encapsulates DB operations for cash accounts.
type Repository interface {
	Create(ctx context.Context, acct CashAccount) (CashAccount, error)
	Update(ctx context.Context, acct CashAccount) (CashAccount, error)
	Get(ctx context.Context, id uuid.UUID) (CashAccount, error)
	GetDefaultForUnit(ctx context.Context, unit ManagingUnit) (CashAccount, error)
	List(ctx context.Context, onlyActive bool) ([]CashAccount, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, code, name, unit, active, is_default, current_balance::text, created_at, updated_at`

func scanAccount(row pgx.Row) (CashAccount, error) {
	var a CashAccount
	var balance string
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Unit, &a.Active, &a.IsDefault, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return CashAccount{}, err
	}
	parsed, err := decimal.NewFromString(balance)
	if err != nil {
		return CashAccount{}, err
	}
	a.Balance = parsed
	return a, nil
}

func (r *repository) Create(ctx context.Context, acct CashAccount) (CashAccount, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO cash_accounts (id, code, name, unit, active, is_default, current_balance)
VALUES ($1,$2,$3,$4,$5,$6,0) RETURNING `+accountColumns,
		acct.ID, acct.Code, acct.Name, acct.Unit, acct.Active, acct.IsDefault)
	created, err := scanAccount(row)
	if err != nil {
		return CashAccount{}, mapConstraint(err)
	}
	return created, nil
}

func (r *repository) Update(ctx context.Context, acct CashAccount) (CashAccount, error) {
	row := r.db.QueryRow(ctx, `UPDATE cash_accounts SET code=$2, name=$3, unit=$4, active=$5, is_default=$6, updated_at=NOW()
WHERE id=$1 RETURNING `+accountColumns,
		acct.ID, acct.Code, acct.Name, acct.Unit, acct.Active, acct.IsDefault)
	updated, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashAccount{}, ErrAccountNotFound
		}
		return CashAccount{}, mapConstraint(err)
	}
	return updated, nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM cash_accounts WHERE id=$1`, id)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashAccount{}, ErrAccountNotFound
		}
		return CashAccount{}, err
	}
	return acct, nil
}

func (r *repository) GetDefaultForUnit(ctx context.Context, unit ManagingUnit) (CashAccount, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM cash_accounts WHERE unit=$1 AND active AND is_default`, unit)
	acct, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashAccount{}, ErrNoDefaultAccount
		}
		return CashAccount{}, err
	}
	return acct, nil
}

func (r *repository) List(ctx context.Context, onlyActive bool) ([]CashAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM cash_accounts`
	if onlyActive {
		query += ` WHERE active`
	}
	query += ` ORDER BY code ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accts []CashAccount
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accts = append(accts, acct)
	}
	return accts, rows.Err()
}

// mapConstraint surfaces the partial unique index on (unit) WHERE active AND
// is_default as the domain error.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_cash_accounts_default" {
		return ErrDuplicateDefault
	}
	return err
}
