package accounts

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManagingUnit enumerates which unit of the foundation manages an account.
type ManagingUnit string

const (
	UnitGeneral     ManagingUnit = "GENERAL"
	UnitCooperative ManagingUnit = "COOPERATIVE"
	UnitOther       ManagingUnit = "OTHER"
)

// Valid reports whether the unit is a recognized value.
func (u ManagingUnit) Valid() bool {
	switch u {
	case UnitGeneral, UnitCooperative, UnitOther:
		return true
	}
	return false
}

// CashAccount is a named pool of funds with a running balance. The balance is
// a cache derived from the journal; the reconciliation engine is its only
// writer and it must always be recomputable from non-voided entries.
type CashAccount struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Unit      ManagingUnit
	Active    bool
	IsDefault bool
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrAccountNotFound indicates an unknown account id.
	ErrAccountNotFound = errors.New("accounts: account not found")
	// ErrDuplicateDefault is returned when a second active default account
	// would exist for the same managing unit.
	ErrDuplicateDefault = errors.New("accounts: unit already has an active default account")
	// ErrUnknownUnit indicates an unrecognized managing unit.
	ErrUnknownUnit = errors.New("accounts: unknown managing unit")
	// ErrNoDefaultAccount is returned when a unit has no active default
	// account to receive an auto posting.
	ErrNoDefaultAccount = errors.New("accounts: no active default account for unit")
)
