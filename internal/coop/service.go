package coop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/journal"
	"github.com/pesantren-erp/pesantren-erp/internal/inventory"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// AccountsPort resolves the default cash account of a managing unit for auto
// postings.
type AccountsPort interface {
	DefaultForUnit(ctx context.Context, unit accounts.ManagingUnit) (accounts.CashAccount, error)
}

// BalanceCache invalidates cached balance reads after an auto posting commits.
type BalanceCache interface {
	Invalidate(ctx context.Context, accountID uuid.UUID)
}

// Service governs stock movement into downstream channels and the split of
// sale proceeds between the foundation and the cooperative.
type Service struct {
	repo     Repository
	audit    AuditPort
	accounts AccountsPort
	cache    BalanceCache
	now      func() time.Time
}

// NewService builds Service. audit and cache may be nil.
func NewService(repo Repository, audit AuditPort, accountsPort AccountsPort, cache BalanceCache) *Service {
	return &Service{repo: repo, audit: audit, accounts: accountsPort, cache: cache, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// RequestInput groups fields for requesting a transfer.
type RequestInput struct {
	ItemID      uuid.UUID
	Destination Destination
	Qty         decimal.Decimal
	Condition   string
	Notes       string
}

// RequestTransfer records a pending transfer. Stock is only checked at
// approval time; a pending request reserves nothing.
func (s *Service) RequestTransfer(ctx context.Context, input RequestInput) (Transfer, error) {
	if !input.Destination.Valid() {
		return Transfer{}, ErrUnknownDestination
	}
	if !input.Qty.IsPositive() {
		return Transfer{}, shared.ErrInvalidAmount
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetItemForUpdate(ctx, input.ItemID); err != nil {
			return err
		}
		inserted, err := tx.InsertTransfer(ctx, Transfer{
			ID:          uuid.New(),
			ItemID:      input.ItemID,
			Destination: input.Destination,
			Qty:         input.Qty,
			Status:      TransferPending,
			Condition:   input.Condition,
			Notes:       input.Notes,
			RequestedBy: shared.OperatorFromContext(ctx),
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		transfer = inserted
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, "transfer.request", transfer.ID, map[string]any{
		"item_id":     transfer.ItemID.String(),
		"destination": transfer.Destination,
		"qty":         transfer.Qty.String(),
	})
	return transfer, nil
}

// ApproveTransfer moves a pending transfer to APPROVED. Live stock is
// re-checked under the item's row lock, so a stale read at request time can
// never overdraw inventory; the stock decrement, channel credit and status
// transition commit atomically.
func (s *Service) ApproveTransfer(ctx context.Context, transferID uuid.UUID, unitCostBasis decimal.Decimal) (Transfer, error) {
	if unitCostBasis.IsNegative() {
		return Transfer{}, shared.ErrInvalidAmount
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if current.Status != TransferPending {
			return ErrInvalidTransition
		}
		item, err := tx.GetItemForUpdate(ctx, current.ItemID)
		if err != nil {
			return err
		}
		if item.Stock.LessThan(current.Qty) {
			return ErrInsufficientStock
		}
		if err := tx.AddItemStock(ctx, current.ItemID, current.Qty.Neg()); err != nil {
			return err
		}
		if err := tx.AddChannelStock(ctx, current.ItemID, current.Destination, current.Qty); err != nil {
			return err
		}
		if err := tx.InsertMovement(ctx, inventory.Movement{
			ID:        uuid.New(),
			ItemID:    current.ItemID,
			QtyChange: current.Qty.Neg(),
			RefModule: "coop",
			RefID:     current.ID.String(),
			Note:      fmt.Sprintf("transfer to %s", current.Destination),
			CreatedAt: s.now(),
		}); err != nil {
			return err
		}
		current.Status = TransferApproved
		current.UnitCostBasis = &unitCostBasis
		current.DecidedBy = shared.OperatorFromContext(ctx)
		if err := tx.UpdateTransfer(ctx, current); err != nil {
			return err
		}
		transfer = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, "transfer.approve", transfer.ID, map[string]any{
		"qty":        transfer.Qty.String(),
		"cost_basis": unitCostBasis.String(),
	})
	return transfer, nil
}

// RejectTransfer terminates a pending transfer.
func (s *Service) RejectTransfer(ctx context.Context, transferID uuid.UUID, reason string) (Transfer, error) {
	if strings.TrimSpace(reason) == "" {
		return Transfer{}, ErrRejectReasonRequired
	}
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if current.Status != TransferPending {
			return ErrInvalidTransition
		}
		current.Status = TransferRejected
		current.RejectReason = &reason
		current.DecidedBy = shared.OperatorFromContext(ctx)
		if err := tx.UpdateTransfer(ctx, current); err != nil {
			return err
		}
		transfer = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, "transfer.reject", transfer.ID, map[string]any{"reason": reason})
	return transfer, nil
}

// CompleteTransfer marks an approved transfer as received at its destination.
func (s *Service) CompleteTransfer(ctx context.Context, transferID uuid.UUID) (Transfer, error) {
	var transfer Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetTransferForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		if current.Status != TransferApproved {
			return ErrInvalidTransition
		}
		current.Status = TransferCompleted
		if err := tx.UpdateTransfer(ctx, current); err != nil {
			return err
		}
		transfer = current
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.record(ctx, "transfer.complete", transfer.ID, nil)
	return transfer, nil
}

// SaleInput groups fields for recording a sale of transferred stock.
type SaleInput struct {
	ItemID     uuid.UUID
	TransferID *uuid.UUID
	Channel    SaleChannel
	Qty        decimal.Decimal
	UnitPrice  decimal.Decimal
}

// RecordSale records a sale through a channel, decrements channel stock and
// auto-posts the proceeds as income to the selling unit's default account,
// all in one transaction. The sale stays undetermined until its profit split
// is recorded.
func (s *Service) RecordSale(ctx context.Context, input SaleInput) (Sale, error) {
	if !input.Channel.Valid() {
		return Sale{}, ErrUnknownChannel
	}
	if !input.Qty.IsPositive() || !input.UnitPrice.IsPositive() {
		return Sale{}, shared.ErrInvalidAmount
	}
	unit := accounts.UnitCooperative
	if input.Channel == ChannelInventory {
		unit = accounts.UnitGeneral
	}
	acct, err := s.accounts.DefaultForUnit(ctx, unit)
	if err != nil {
		return Sale{}, err
	}

	var sale Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var costBasis *decimal.Decimal
		if input.TransferID != nil {
			transfer, err := tx.GetTransferForUpdate(ctx, *input.TransferID)
			if err != nil {
				return err
			}
			costBasis = transfer.UnitCostBasis
		}
		if input.Channel == ChannelCooperative {
			stock, err := tx.GetChannelStockForUpdate(ctx, input.ItemID, DestCooperative)
			if err != nil {
				return err
			}
			if stock.LessThan(input.Qty) {
				return ErrInsufficientStock
			}
			if err := tx.AddChannelStock(ctx, input.ItemID, DestCooperative, input.Qty.Neg()); err != nil {
				return err
			}
		} else {
			item, err := tx.GetItemForUpdate(ctx, input.ItemID)
			if err != nil {
				return err
			}
			if item.Stock.LessThan(input.Qty) {
				return ErrInsufficientStock
			}
			if err := tx.AddItemStock(ctx, input.ItemID, input.Qty.Neg()); err != nil {
				return err
			}
		}
		now := s.now()
		inserted, err := tx.InsertSale(ctx, Sale{
			ID:         uuid.New(),
			ItemID:     input.ItemID,
			TransferID: input.TransferID,
			Channel:    input.Channel,
			Qty:        input.Qty,
			UnitPrice:  input.UnitPrice,
			Total:      input.Qty.Mul(input.UnitPrice),
			CostBasis:  costBasis,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}
		if err := tx.LockAccount(ctx, acct.ID); err != nil {
			return err
		}
		if err := tx.InsertAutoEntry(ctx, acct.ID, journal.DirectionIncome, journal.CategorySales,
			inserted.Total, fmt.Sprintf("sale %s", inserted.ID), shared.OperatorFromContext(ctx), now); err != nil {
			return err
		}
		if err := tx.RefreshAccountBalance(ctx, acct.ID); err != nil {
			return err
		}
		sale = inserted
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, acct.ID)
	}
	s.record(ctx, "sale.record", sale.ID, map[string]any{
		"item_id": sale.ItemID.String(),
		"channel": sale.Channel,
		"total":   sale.Total.String(),
	})
	return sale, nil
}

// RecordProfitSplit resolves a sale's undetermined split. The two shares must
// account fully for the margin over cost basis; the foundation share is
// auto-posted as income to the foundation's default account in the same
// transaction.
func (s *Service) RecordProfitSplit(ctx context.Context, saleID uuid.UUID, foundationShare, coopShare decimal.Decimal) (Sale, error) {
	if foundationShare.IsNegative() || coopShare.IsNegative() {
		return Sale{}, shared.ErrInvalidAmount
	}
	acct, err := s.accounts.DefaultForUnit(ctx, accounts.UnitGeneral)
	if err != nil {
		return Sale{}, err
	}

	var sale Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if !current.Undetermined() {
			return ErrAlreadySettled
		}
		if current.CostBasis == nil {
			return ErrCostBasisRequired
		}
		if !foundationShare.Add(coopShare).Equal(current.Margin()) {
			return ErrSplitMismatch
		}
		settledAt := s.now()
		if err := tx.SetSaleSplit(ctx, saleID, foundationShare, coopShare, settledAt); err != nil {
			return err
		}
		if foundationShare.IsPositive() {
			if err := tx.LockAccount(ctx, acct.ID); err != nil {
				return err
			}
			if err := tx.InsertAutoEntry(ctx, acct.ID, journal.DirectionIncome, journal.CategoryProfitShare,
				foundationShare, fmt.Sprintf("profit share for sale %s", saleID), shared.OperatorFromContext(ctx), settledAt); err != nil {
				return err
			}
			if err := tx.RefreshAccountBalance(ctx, acct.ID); err != nil {
				return err
			}
		}
		current.FoundationShare = &foundationShare
		current.CoopShare = &coopShare
		current.SettledAt = &settledAt
		sale = current
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, acct.ID)
	}
	s.record(ctx, "sale.split", sale.ID, map[string]any{
		"foundation_share": foundationShare.String(),
		"coop_share":       coopShare.String(),
	})
	return sale, nil
}

// DebtSettlementBlocked reports whether any sale's profit split is still
// undetermined, system-wide. While true, debt-payment expenses are refused:
// repaying debt could consume cash that rightfully belongs to an
// as-yet-uncomputed foundation share.
func (s *Service) DebtSettlementBlocked(ctx context.Context) (bool, []string, error) {
	sales, err := s.repo.ListUndeterminedSales(ctx)
	if err != nil {
		return false, nil, err
	}
	if len(sales) == 0 {
		return false, nil, nil
	}
	reasons := make([]string, 0, len(sales))
	for _, sale := range sales {
		reasons = append(reasons, fmt.Sprintf("sale %s (%s) awaiting profit split", sale.ID, strings.ToLower(string(sale.Channel))))
	}
	return true, reasons, nil
}

// GetTransfer fetches one transfer.
func (s *Service) GetTransfer(ctx context.Context, id uuid.UUID) (Transfer, error) {
	return s.repo.GetTransfer(ctx, id)
}

// ListTransfers returns transfers, optionally filtered by status.
func (s *Service) ListTransfers(ctx context.Context, status *TransferStatus) ([]Transfer, error) {
	return s.repo.ListTransfers(ctx, status)
}

// GetSale fetches one sale.
func (s *Service) GetSale(ctx context.Context, id uuid.UUID) (Sale, error) {
	return s.repo.GetSale(ctx, id)
}

// ListUndeterminedSales returns sales still awaiting their profit split.
func (s *Service) ListUndeterminedSales(ctx context.Context) ([]Sale, error) {
	return s.repo.ListUndeterminedSales(ctx)
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OperatorRef: shared.OperatorFromContext(ctx),
		Action:      action,
		Entity:      "coop",
		EntityID:    id.String(),
		Meta:        meta,
		At:          s.now(),
	})
}
