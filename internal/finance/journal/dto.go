package journal

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// PostInput groups fields required to record a posting.
type PostInput struct {
	AccountID    uuid.UUID
	Date         time.Time
	Direction    Direction
	Category     Category
	SubCategory  string
	Amount       decimal.Decimal
	Description  string
	Counterparty string
	AutoPosted   bool
	CreatedBy    string
}

// Validate ensures the posting meets the boundary contract. The inactive
// account check needs the row lock and happens inside the transaction.
func (in PostInput) Validate() error {
	if in.AccountID == uuid.Nil {
		return ErrEntryNotFound
	}
	if !in.Direction.Valid() {
		return ErrUnknownDirection
	}
	if !in.Category.Valid() {
		return ErrUnknownCategory
	}
	if in.Category == CategoryBalanceAdjustment {
		return ErrReservedCategory
	}
	if !in.Amount.IsPositive() {
		return shared.ErrInvalidAmount
	}
	return nil
}

// VoidInput wraps parameters for voiding an entry.
type VoidInput struct {
	EntryID uuid.UUID
	Reason  string
}

// ListFilter narrows journal listings.
type ListFilter struct {
	AccountID *uuid.UUID
	Direction *Direction
	Category  *Category
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}

// CategoryTotal aggregates posted amounts for one category.
type CategoryTotal struct {
	Category Category
	Income   decimal.Decimal
	Expense  decimal.Decimal
}

// CashflowSummary reports per-category totals for a date range.
type CashflowSummary struct {
	From         time.Time
	To           time.Time
	TotalIncome  decimal.Decimal
	TotalExpense decimal.Decimal
	Net          decimal.Decimal
	Categories   []CategoryTotal
}
