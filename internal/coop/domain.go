package coop

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Destination enumerates channels transferred stock can move into.
type Destination string

const (
	DestCooperative  Destination = "COOPERATIVE"
	DestDistribution Destination = "DISTRIBUTION"
	DestKitchen      Destination = "KITCHEN"
	DestDormitory    Destination = "DORMITORY"
	DestOffice       Destination = "OFFICE"
	DestOther        Destination = "OTHER"
)

// Valid reports whether the destination is recognized.
func (d Destination) Valid() bool {
	switch d {
	case DestCooperative, DestDistribution, DestKitchen, DestDormitory, DestOffice, DestOther:
		return true
	}
	return false
}

// TransferStatus enumerates the transfer state machine:
// PENDING -> APPROVED -> COMPLETED, or PENDING -> REJECTED (terminal).
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferApproved  TransferStatus = "APPROVED"
	TransferRejected  TransferStatus = "REJECTED"
	TransferCompleted TransferStatus = "COMPLETED"
)

// Transfer moves inventory stock into a downstream channel pending approval.
// The unit cost basis is declared at approval time and owed back to the
// foundation when the stock is later sold.
type Transfer struct {
	ID            uuid.UUID
	ItemID        uuid.UUID
	Destination   Destination
	Qty           decimal.Decimal
	Status        TransferStatus
	UnitCostBasis *decimal.Decimal
	Condition     string
	Notes         string
	RequestedBy   string
	DecidedBy     string
	RejectReason  *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SaleChannel distinguishes where a sale of transferred stock happened.
type SaleChannel string

const (
	ChannelInventory   SaleChannel = "INVENTORY"
	ChannelCooperative SaleChannel = "COOPERATIVE"
)

// Valid reports whether the channel is recognized.
func (c SaleChannel) Valid() bool {
	return c == ChannelInventory || c == ChannelCooperative
}

// Sale records transferred stock sold through a channel. Until both shares
// are non-null the sale is undetermined and the margin split with the
// foundation is unknown.
type Sale struct {
	ID              uuid.UUID
	ItemID          uuid.UUID
	TransferID      *uuid.UUID
	Channel         SaleChannel
	Qty             decimal.Decimal
	UnitPrice       decimal.Decimal
	Total           decimal.Decimal
	CostBasis       *decimal.Decimal
	FoundationShare *decimal.Decimal
	CoopShare       *decimal.Decimal
	SettledAt       *time.Time
	CreatedAt       time.Time
}

// Undetermined reports whether the sale's profit split is still unresolved.
func (s Sale) Undetermined() bool {
	return s.FoundationShare == nil || s.CoopShare == nil
}

// Margin returns the proceeds over cost basis, zero when no cost basis is
// declared.
func (s Sale) Margin() decimal.Decimal {
	if s.CostBasis == nil {
		return decimal.Zero
	}
	return s.Total.Sub(s.CostBasis.Mul(s.Qty))
}

var (
	// ErrTransferNotFound indicates an unknown transfer id.
	ErrTransferNotFound = errors.New("coop: transfer not found")
	// ErrSaleNotFound indicates an unknown sale id.
	ErrSaleNotFound = errors.New("coop: sale not found")
	// ErrInvalidTransition rejects a state-machine move from the wrong state.
	ErrInvalidTransition = errors.New("coop: invalid transfer status transition")
	// ErrInsufficientStock rejects approving a transfer or recording a sale
	// beyond the live stock level.
	ErrInsufficientStock = errors.New("coop: insufficient stock")
	// ErrUnknownDestination rejects unrecognized destinations.
	ErrUnknownDestination = errors.New("coop: unknown destination")
	// ErrUnknownChannel rejects unrecognized sale channels.
	ErrUnknownChannel = errors.New("coop: unknown sale channel")
	// ErrCostBasisRequired indicates the sale has no declared cost basis to
	// split against.
	ErrCostBasisRequired = errors.New("coop: cost basis not declared")
	// ErrSplitMismatch rejects splits that do not account fully for the
	// margin over cost basis.
	ErrSplitMismatch = errors.New("coop: shares must sum to the margin over cost basis")
	// ErrAlreadySettled rejects resolving a split twice.
	ErrAlreadySettled = errors.New("coop: sale already settled")
	// ErrRejectReasonRequired keeps rejection auditable.
	ErrRejectReasonRequired = errors.New("coop: reject reason required")
)
