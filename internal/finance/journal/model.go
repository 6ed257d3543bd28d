package journal

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction enumerates the sign of a posting.
type Direction string

const (
	DirectionIncome  Direction = "INCOME"
	DirectionExpense Direction = "EXPENSE"
)

// Valid reports whether the direction is recognized.
func (d Direction) Valid() bool {
	return d == DirectionIncome || d == DirectionExpense
}

// Category is the closed taxonomy postings are filed under. Unrecognized
// categories are rejected at the boundary instead of falling through to
// string matching downstream.
type Category string

const (
	CategoryDonation          Category = "DONATION"
	CategoryTuition           Category = "TUITION"
	CategorySales             Category = "SALES"
	CategoryProfitShare       Category = "PROFIT_SHARE"
	CategoryOperational       Category = "OPERATIONAL"
	CategoryPayroll           Category = "PAYROLL"
	CategoryProcurement       Category = "PROCUREMENT"
	CategoryDebtPayment       Category = "DEBT_PAYMENT"
	CategoryBalanceAdjustment Category = "BALANCE_ADJUSTMENT"
	CategoryOther             Category = "OTHER"
)

// Valid reports whether the category is part of the taxonomy.
func (c Category) Valid() bool {
	switch c {
	case CategoryDonation, CategoryTuition, CategorySales, CategoryProfitShare,
		CategoryOperational, CategoryPayroll, CategoryProcurement,
		CategoryDebtPayment, CategoryBalanceAdjustment, CategoryOther:
		return true
	}
	return false
}

// EntryStatus enumerates the journal entry lifecycle.
type EntryStatus string

const (
	StatusPosted EntryStatus = "POSTED"
	StatusVoid   EntryStatus = "VOID"
)

// JournalEntry is an immutable signed amount recorded against a cash account.
// The only mutation after creation is the status transition to VOID; voided
// entries drop out of balance math but stay for audit.
type JournalEntry struct {
	ID           uuid.UUID
	Date         time.Time
	Direction    Direction
	Category     Category
	SubCategory  string
	Amount       decimal.Decimal
	Description  string
	Counterparty string
	AccountID    uuid.UUID
	Status       EntryStatus
	AutoPosted   bool
	CreatedBy    string
	VoidReason   *string
	VoidedAt     *time.Time
	CreatedAt    time.Time
}

// Signed returns the amount with the direction applied: income positive,
// expense negative.
func (e JournalEntry) Signed() decimal.Decimal {
	if e.Direction == DirectionExpense {
		return e.Amount.Neg()
	}
	return e.Amount
}

var (
	// ErrInactiveAccount rejects postings against a deactivated account.
	ErrInactiveAccount = errors.New("journal: account is inactive")
	// ErrUnknownCategory rejects categories outside the closed taxonomy.
	ErrUnknownCategory = errors.New("journal: unknown category")
	// ErrUnknownDirection rejects directions other than income/expense.
	ErrUnknownDirection = errors.New("journal: unknown direction")
	// ErrReservedCategory rejects manual postings under the category reserved
	// for reconciliation adjustments.
	ErrReservedCategory = errors.New("journal: balance adjustment category is reserved")
	// ErrEntryNotFound indicates an unknown entry id.
	ErrEntryNotFound = errors.New("journal: entry not found")
	// ErrEntryAlreadyVoid rejects voiding an entry twice.
	ErrEntryAlreadyVoid = errors.New("journal: entry already void")
	// ErrVoidReasonRequired keeps the audit trail meaningful.
	ErrVoidReasonRequired = errors.New("journal: void reason required")
)
