package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Item is an inventory item with a live stock level. Stock consistency is
// owned here; the cooperative allocator decrements it under the item's row
// lock when a transfer is approved.
type Item struct {
	ID        uuid.UUID
	Name      string
	Unit      string
	Stock     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Movement is one stock-card line: a signed quantity change with its origin.
type Movement struct {
	ID        uuid.UUID
	ItemID    uuid.UUID
	QtyChange decimal.Decimal
	RefModule string
	RefID     string
	Note      string
	CreatedAt time.Time
}

var (
	// ErrItemNotFound indicates an unknown item id.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
)
