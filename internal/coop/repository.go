package coop

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
	"github.com/pesantren-erp/pesantren-erp/internal/inventory"
	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
)

// Repository encapsulates DB operations for transfers and sales.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error)
	ListTransfers(ctx context.Context, status *TransferStatus) ([]Transfer, error)
	GetSale(ctx context.Context, id uuid.UUID) (Sale, error)
	ListUndeterminedSales(ctx context.Context) ([]Sale, error)
}

// TxRepository exposes methods available within an allocator transaction.
// Item and journal statements are duplicated here on purpose: stock
// decrement, channel credit, sale insert and the auto journal posting must
// all commit or roll back together.
type TxRepository interface {
	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, id uuid.UUID) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error

	GetItemForUpdate(ctx context.Context, id uuid.UUID) (inventory.Item, error)
	AddItemStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error
	GetChannelStockForUpdate(ctx context.Context, itemID uuid.UUID, dest Destination) (decimal.Decimal, error)
	AddChannelStock(ctx context.Context, itemID uuid.UUID, dest Destination, delta decimal.Decimal) error
	InsertMovement(ctx context.Context, m inventory.Movement) error

	InsertSale(ctx context.Context, s Sale) (Sale, error)
	GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error)
	SetSaleSplit(ctx context.Context, id uuid.UUID, foundation, coopShare decimal.Decimal, settledAt time.Time) error

	LockAccount(ctx context.Context, accountID uuid.UUID) error
	InsertAutoEntry(ctx context.Context, accountID uuid.UUID, direction journal.Direction, category journal.Category, amount decimal.Decimal, description, operator string, at time.Time) error
	RefreshAccountBalance(ctx context.Context, accountID uuid.UUID) error
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

const transferColumns = `id, item_id, destination, qty::text, status, unit_cost_basis::text, condition, notes, requested_by, decided_by, reject_reason, created_at, updated_at`

func scanTransfer(row pgx.Row) (Transfer, error) {
	var t Transfer
	var qty string
	var costBasis *string
	if err := row.Scan(&t.ID, &t.ItemID, &t.Destination, &qty, &t.Status, &costBasis, &t.Condition, &t.Notes, &t.RequestedBy, &t.DecidedBy, &t.RejectReason, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return Transfer{}, err
	}
	var err error
	if t.Qty, err = decimal.NewFromString(qty); err != nil {
		return Transfer{}, err
	}
	if costBasis != nil {
		parsed, err := decimal.NewFromString(*costBasis)
		if err != nil {
			return Transfer{}, err
		}
		t.UnitCostBasis = &parsed
	}
	return t, nil
}

const saleColumns = `id, item_id, transfer_id, channel, qty::text, unit_price::text, total::text, cost_basis::text, foundation_share::text, coop_share::text, settled_at, created_at`

func scanSale(row pgx.Row) (Sale, error) {
	var s Sale
	var qty, unitPrice, total string
	var costBasis, foundation, coopShare *string
	if err := row.Scan(&s.ID, &s.ItemID, &s.TransferID, &s.Channel, &qty, &unitPrice, &total, &costBasis, &foundation, &coopShare, &s.SettledAt, &s.CreatedAt); err != nil {
		return Sale{}, err
	}
	var err error
	if s.Qty, err = decimal.NewFromString(qty); err != nil {
		return Sale{}, err
	}
	if s.UnitPrice, err = decimal.NewFromString(unitPrice); err != nil {
		return Sale{}, err
	}
	if s.Total, err = decimal.NewFromString(total); err != nil {
		return Sale{}, err
	}
	parseOpt := func(raw *string) (*decimal.Decimal, error) {
		if raw == nil {
			return nil, nil
		}
		parsed, err := decimal.NewFromString(*raw)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	}
	if s.CostBasis, err = parseOpt(costBasis); err != nil {
		return Sale{}, err
	}
	if s.FoundationShare, err = parseOpt(foundation); err != nil {
		return Sale{}, err
	}
	if s.CoopShare, err = parseOpt(coopShare); err != nil {
		return Sale{}, err
	}
	return s, nil
}

func (r *repository) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

func (r *repository) ListTransfers(ctx context.Context, status *TransferStatus) ([]Transfer, error) {
	query := `SELECT ` + transferColumns + ` FROM transfers`
	args := []any{}
	if status != nil {
		query += ` WHERE status=$1`
		args = append(args, *status)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var transfers []Transfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

func (r *repository) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	row := r.db.QueryRow(ctx, `SELECT `+saleColumns+` FROM coop_sales WHERE id=$1`, id)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

func (r *repository) ListUndeterminedSales(ctx context.Context) ([]Sale, error) {
	rows, err := r.db.Query(ctx, `SELECT `+saleColumns+` FROM coop_sales
WHERE foundation_share IS NULL OR coop_share IS NULL ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sales []Sale
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO transfers
(id, item_id, destination, qty, status, condition, notes, requested_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9) RETURNING `+transferColumns,
		t.ID, t.ItemID, t.Destination, t.Qty.String(), t.Status, t.Condition, t.Notes, t.RequestedBy, t.CreatedAt)
	return scanTransfer(row)
}

func (r *txRepository) GetTransferForUpdate(ctx context.Context, id uuid.UUID) (Transfer, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE id=$1 FOR UPDATE`, id)
	t, err := scanTransfer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

func (r *txRepository) UpdateTransfer(ctx context.Context, t Transfer) error {
	var costBasis any
	if t.UnitCostBasis != nil {
		costBasis = t.UnitCostBasis.String()
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE transfers SET status=$2, unit_cost_basis=$3, decided_by=$4, reject_reason=$5, updated_at=NOW() WHERE id=$1`,
		t.ID, t.Status, costBasis, t.DecidedBy, t.RejectReason)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id uuid.UUID) (inventory.Item, error) {
	var it inventory.Item
	var stock string
	err := r.tx.QueryRow(ctx, `SELECT id, name, unit, stock::text, created_at, updated_at FROM items WHERE id=$1 FOR UPDATE`, id).
		Scan(&it.ID, &it.Name, &it.Unit, &stock, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return inventory.Item{}, inventory.ErrItemNotFound
		}
		return inventory.Item{}, err
	}
	if it.Stock, err = decimal.NewFromString(stock); err != nil {
		return inventory.Item{}, err
	}
	return it, nil
}

func (r *txRepository) AddItemStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE items SET stock = stock + $2, updated_at=NOW() WHERE id=$1`, id, delta.String())
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return inventory.ErrItemNotFound
	}
	return nil
}

func (r *txRepository) GetChannelStockForUpdate(ctx context.Context, itemID uuid.UUID, dest Destination) (decimal.Decimal, error) {
	var raw string
	err := r.tx.QueryRow(ctx, `SELECT qty::text FROM channel_stock WHERE item_id=$1 AND channel=$2 FOR UPDATE`, itemID, dest).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *txRepository) AddChannelStock(ctx context.Context, itemID uuid.UUID, dest Destination, delta decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO channel_stock (item_id, channel, qty)
VALUES ($1,$2,$3)
ON CONFLICT (item_id, channel) DO UPDATE SET qty = channel_stock.qty + EXCLUDED.qty`,
		itemID, dest, delta.String())
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m inventory.Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, item_id, qty_change, ref_module, ref_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, m.ID, m.ItemID, m.QtyChange.String(), m.RefModule, m.RefID, m.Note, m.CreatedAt)
	return err
}

func (r *txRepository) InsertSale(ctx context.Context, s Sale) (Sale, error) {
	var costBasis any
	if s.CostBasis != nil {
		costBasis = s.CostBasis.String()
	}
	row := r.tx.QueryRow(ctx, `INSERT INTO coop_sales
(id, item_id, transfer_id, channel, qty, unit_price, total, cost_basis, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING `+saleColumns,
		s.ID, s.ItemID, s.TransferID, s.Channel, s.Qty.String(), s.UnitPrice.String(), s.Total.String(), costBasis, s.CreatedAt)
	return scanSale(row)
}

func (r *txRepository) GetSaleForUpdate(ctx context.Context, id uuid.UUID) (Sale, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+saleColumns+` FROM coop_sales WHERE id=$1 FOR UPDATE`, id)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, ErrSaleNotFound
		}
		return Sale{}, err
	}
	return s, nil
}

func (r *txRepository) SetSaleSplit(ctx context.Context, id uuid.UUID, foundation, coopShare decimal.Decimal, settledAt time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE coop_sales SET foundation_share=$2, coop_share=$3, settled_at=$4 WHERE id=$1`,
		id, foundation.String(), coopShare.String(), settledAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSaleNotFound
	}
	return nil
}

func (r *txRepository) LockAccount(ctx context.Context, accountID uuid.UUID) error {
	var id uuid.UUID
	err := r.tx.QueryRow(ctx, `SELECT id FROM cash_accounts WHERE id=$1 FOR UPDATE`, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return accounts.ErrAccountNotFound
	}
	return err
}

func (r *txRepository) InsertAutoEntry(ctx context.Context, accountID uuid.UUID, direction journal.Direction, category journal.Category, amount decimal.Decimal, description, operator string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO journal_entries
(id, entry_date, direction, category, sub_category, amount, description, counterparty, account_id, status, auto_posted, created_by)
VALUES ($1,$2,$3,$4,'',$5,$6,'',$7,'POSTED',TRUE,$8)`,
		uuid.New(), at, direction, category, amount.String(), description, accountID, operator)
	return err
}

func (r *txRepository) RefreshAccountBalance(ctx context.Context, accountID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `UPDATE cash_accounts SET current_balance = COALESCE((
SELECT SUM(CASE WHEN direction='INCOME' THEN amount ELSE -amount END)
FROM journal_entries WHERE account_id=$1 AND status='POSTED'), 0), updated_at=NOW()
WHERE id=$1`, accountID)
	return err
}
