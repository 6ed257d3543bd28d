package savings

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind enumerates savings entry kinds. Withdrawal debits the balance; every
// other kind credits it.
type Kind string

const (
	KindDeposit         Kind = "DEPOSIT"
	KindWithdrawal      Kind = "WITHDRAWAL"
	KindRewardAcademic  Kind = "REWARD_ACADEMIC"
	KindRewardNonAcad   Kind = "REWARD_NON_ACADEMIC"
	KindRewardAchieve   Kind = "REWARD_ACHIEVEMENT"
)

// Valid reports whether the kind is recognized.
func (k Kind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindRewardAcademic, KindRewardNonAcad, KindRewardAchieve:
		return true
	}
	return false
}

// Credits reports whether the kind increases the balance.
func (k Kind) Credits() bool {
	return k != KindWithdrawal
}

// SavingsEntry is one row of a student's append-only ledger. Entries are
// never mutated; the student's current balance is the BalanceAfter of the
// most recent entry, not a separately maintained counter.
type SavingsEntry struct {
	ID            uuid.UUID
	Seq           int64
	StudentID     uuid.UUID
	Kind          Kind
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	Notes         string
	EvidenceRef   string
	AccountID     *uuid.UUID
	OperatorRef   string
	CreatedAt     time.Time
}

var (
	// ErrStudentNotFound indicates an unknown student id.
	ErrStudentNotFound = errors.New("savings: student not found")
	// ErrInsufficientBalance rejects withdrawals exceeding the running balance.
	ErrInsufficientBalance = errors.New("savings: insufficient balance")
	// ErrUnknownKind rejects unrecognized entry kinds.
	ErrUnknownKind = errors.New("savings: unknown entry kind")
	// ErrEmptyBatch rejects bulk operations without students.
	ErrEmptyBatch = errors.New("savings: batch requires at least one student")
)
