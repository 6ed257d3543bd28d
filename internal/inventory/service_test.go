package inventory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	items     map[uuid.UUID]*Item
	movements []Movement
}

func newMockRepository() *mockRepository {
	return &mockRepository{items: make(map[uuid.UUID]*Item)}
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) Create(ctx context.Context, item Item) (Item, error) {
	m.items[item.ID] = &item
	return item, nil
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	item, ok := m.items[id]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return *item, nil
}

func (m *mockRepository) List(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, item := range m.items {
		out = append(out, *item)
	}
	return out, nil
}

func (m *mockRepository) Movements(ctx context.Context, itemID uuid.UUID, limit int) ([]Movement, error) {
	var out []Movement
	for _, mv := range m.movements {
		if mv.ItemID == itemID {
			out = append(out, mv)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetItemForUpdate(ctx context.Context, id uuid.UUID) (Item, error) {
	return t.mock.Get(ctx, id)
}

func (t *mockTxRepo) AddStock(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	item, ok := t.mock.items[id]
	if !ok {
		return decimal.Zero, ErrItemNotFound
	}
	item.Stock = item.Stock.Add(delta)
	return item.Stock, nil
}

func (t *mockTxRepo) InsertMovement(ctx context.Context, m Movement) error {
	t.mock.movements = append(t.mock.movements, m)
	return nil
}

func TestCreateItem(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	item, err := svc.CreateItem(context.Background(), "Beras", "kg", decimal.NewFromInt(200))
	require.NoError(t, err)
	assert.Equal(t, "Beras", item.Name)
	assert.True(t, item.Stock.Equal(decimal.NewFromInt(200)))

	_, err = svc.CreateItem(context.Background(), "", "kg", decimal.Zero)
	require.Error(t, err)

	_, err = svc.CreateItem(context.Background(), "Minyak", "liter", decimal.NewFromInt(-1))
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestRestockWritesStockCardLine(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	item, err := svc.CreateItem(context.Background(), "Beras", "kg", decimal.NewFromInt(50))
	require.NoError(t, err)

	restocked, err := svc.Restock(context.Background(), item.ID, decimal.NewFromInt(25), "pembelian mingguan")
	require.NoError(t, err)
	assert.True(t, restocked.Stock.Equal(decimal.NewFromInt(75)))

	require.Len(t, repo.movements, 1)
	mv := repo.movements[0]
	assert.Equal(t, item.ID, mv.ItemID)
	assert.True(t, mv.QtyChange.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, "inventory", mv.RefModule)
}

func TestRestockRejectsNonPositiveQty(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	item, err := svc.CreateItem(context.Background(), "Sabun", "pcs", decimal.NewFromInt(10))
	require.NoError(t, err)

	_, err = svc.Restock(context.Background(), item.ID, decimal.Zero, "")
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Empty(t, repo.movements)
}

func TestRestockUnknownItem(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	_, err := svc.Restock(context.Background(), uuid.New(), decimal.NewFromInt(5), "")
	require.ErrorIs(t, err, ErrItemNotFound)
}
