package savings

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositInput groups fields for a credit entry. Kind defaults to DEPOSIT and
// may name one of the reward kinds instead.
type DepositInput struct {
	StudentID   uuid.UUID
	Kind        Kind
	Amount      decimal.Decimal
	Description string
	Notes       string
	EvidenceRef string
	AccountID   *uuid.UUID
}

// WithdrawInput groups fields for a debit entry.
type WithdrawInput struct {
	StudentID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	Notes       string
	AccountID   *uuid.UUID
}

// BulkInput applies the same amount to many students.
type BulkInput struct {
	StudentIDs  []uuid.UUID
	Amount      decimal.Decimal
	Description string
	Kind        Kind
}

// BulkFailure names a student the batch could not process and why.
type BulkFailure struct {
	StudentID uuid.UUID
	Reason    string
}

// BulkResult distinguishes successes from failures so the operator can see
// exactly which of N students were processed and fix the rest.
type BulkResult struct {
	Succeeded []SavingsEntry
	Failed    []BulkFailure
}

// HistoryFilter narrows savings history listings.
type HistoryFilter struct {
	StudentID *uuid.UUID
	Kind      *Kind
	From      *time.Time
	To        *time.Time
	Page      int
	PerPage   int
}
