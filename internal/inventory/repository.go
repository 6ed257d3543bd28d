package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/platform/db"
)

// Repository encapsulates DB operations for inventory items.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Create(ctx context.Context, item Item) (Item, error)
	Get(ctx context.Context, id uuid.UUID) (Item, error)
	List(ctx context.Context) ([]Item, error)
	Movements(ctx context.Context, itemID uuid.UUID, limit int) ([]Movement, error)
}

// TxRepository exposes methods available within a stock transaction.
type TxRepository interface {
	GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error)
	AddStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)
	InsertMovement(ctx context.Context, m Movement) error
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

const itemColumns = `id, name, unit, stock::text, created_at, updated_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var stock string
	if err := row.Scan(&it.ID, &it.Name, &it.Unit, &stock, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return Item{}, err
	}
	parsed, err := decimal.NewFromString(stock)
	if err != nil {
		return Item{}, err
	}
	it.Stock = parsed
	return it, nil
}

func (r *repository) Create(ctx context.Context, item Item) (Item, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO items (id, name, unit, stock, created_at, updated_at)
VALUES ($1,$2,$3,$4,NOW(),NOW()) RETURNING `+itemColumns, item.ID, item.Name, item.Unit, item.Stock.String())
	return scanItem(row)
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	row := r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *repository) List(ctx context.Context) ([]Item, error) {
	rows, err := r.db.Query(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) Movements(ctx context.Context, itemID uuid.UUID, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT id, item_id, qty_change::text, ref_module, ref_id, note, created_at
FROM stock_movements WHERE item_id=$1 ORDER BY created_at DESC LIMIT $2`, itemID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var moves []Movement
	for rows.Next() {
		var m Movement
		var qty string
		if err := rows.Scan(&m.ID, &m.ItemID, &qty, &m.RefModule, &m.RefID, &m.Note, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.QtyChange, err = decimal.NewFromString(qty); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id=$1 FOR UPDATE`, id)
	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) AddStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var raw string
	err := r.tx.QueryRow(ctx, `UPDATE items SET stock = stock + $2, updated_at=NOW() WHERE id=$1 RETURNING stock::text`, id, delta.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrItemNotFound
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, item_id, qty_change, ref_module, ref_id, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, m.ID, m.ItemID, m.QtyChange.String(), m.RefModule, m.RefID, m.Note, m.CreatedAt)
	return err
}
