package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates inventory stock operations. Transfers out of inventory
// are driven by the cooperative allocator; this service covers restocking and
// reads.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateItem registers a new item. Initial stock may be zero.
func (s *Service) CreateItem(ctx context.Context, name, unit string, stock decimal.Decimal) (Item, error) {
	if name == "" {
		return Item{}, errors.New("inventory: name is required")
	}
	if stock.IsNegative() {
		return Item{}, ErrInvalidQuantity
	}
	item, err := s.repo.Create(ctx, Item{ID: uuid.New(), Name: name, Unit: unit, Stock: stock})
	if err != nil {
		return Item{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OperatorRef: shared.OperatorFromContext(ctx),
			Action:      "inventory.create",
			Entity:      "item",
			EntityID:    item.ID.String(),
			Meta:        map[string]any{"name": item.Name, "stock": item.Stock.String()},
			At:          s.now(),
		})
	}
	return item, nil
}

// Restock adds quantity to an item under its row lock and writes a stock-card
// movement in the same transaction.
func (s *Service) Restock(ctx context.Context, itemID uuid.UUID, qty decimal.Decimal, note string) (Item, error) {
	if !qty.IsPositive() {
		return Item{}, ErrInvalidQuantity
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetItemForUpdate(ctx, itemID)
		if err != nil {
			return err
		}
		newStock, err := tx.AddStock(ctx, itemID, qty)
		if err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, Movement{
			ID:        uuid.New(),
			ItemID:    itemID,
			QtyChange: qty,
			RefModule: "inventory",
			Note:      note,
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		current.Stock = newStock
		item = current
		return nil
	})
	if err != nil {
		return Item{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OperatorRef: shared.OperatorFromContext(ctx),
			Action:      "inventory.restock",
			Entity:      "item",
			EntityID:    itemID.String(),
			Meta:        map[string]any{"qty": qty.String(), "note": note},
			At:          s.now(),
		})
	}
	return item, nil
}

// Get fetches one item.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Item, error) {
	return s.repo.Get(ctx, id)
}

// List returns all items.
func (s *Service) List(ctx context.Context) ([]Item, error) {
	return s.repo.List(ctx)
}

// Movements lists recent stock-card lines for an item.
func (s *Service) Movements(ctx context.Context, itemID uuid.UUID, limit int) ([]Movement, error) {
	return s.repo.Movements(ctx, itemID, limit)
}
