package journal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DebtGuard reports whether debt-settlement expenses are blocked by
// unresolved profit splits. Implemented by the cooperative allocator.
type DebtGuard interface {
	DebtSettlementBlocked(ctx context.Context) (bool, []string, error)
}

// BalanceCache invalidates cached balance reads after a posting commits.
type BalanceCache interface {
	Invalidate(ctx context.Context, accountID uuid.UUID)
}

// MetricsPort counts posting outcomes.
type MetricsPort interface {
	CountPosting(direction, outcome string)
}

// Service owns journal entries and the cash accounts they post against.
type Service struct {
	repo    Repository
	audit   AuditPort
	guard   DebtGuard
	cache   BalanceCache
	metrics MetricsPort
	now     func() time.Time
}

// NewService builds Service. guard, cache and metrics may be nil.
func NewService(repo Repository, audit AuditPort, guard DebtGuard, cache BalanceCache, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, guard: guard, cache: cache, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post records a single signed entry against an account. The insert and the
// balance recompute run in one transaction; the cached balance never diverges
// from the journal sum past a commit.
func (s *Service) Post(ctx context.Context, input PostInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		s.count(input.Direction, "rejected")
		return JournalEntry{}, err
	}
	if input.Direction == DirectionExpense && input.Category == CategoryDebtPayment && s.guard != nil {
		blocked, reasons, err := s.guard.DebtSettlementBlocked(ctx)
		if err != nil {
			return JournalEntry{}, err
		}
		if blocked {
			s.count(input.Direction, "blocked")
			return JournalEntry{}, &shared.PendingProfitSharingError{Reasons: reasons}
		}
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	if input.CreatedBy == "" {
		input.CreatedBy = shared.OperatorFromContext(ctx)
	}

	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		state, err := tx.GetAccountStateForUpdate(ctx, input.AccountID)
		if err != nil {
			return err
		}
		if !state.Active {
			return ErrInactiveAccount
		}
		inserted, err := tx.InsertEntry(ctx, input)
		if err != nil {
			return err
		}
		if _, err := tx.RefreshAccountBalance(ctx, input.AccountID); err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		s.count(input.Direction, "failed")
		return JournalEntry{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, input.AccountID)
	}
	s.count(input.Direction, "posted")
	s.record(ctx, "journal.post", entry.ID, map[string]any{
		"account_id":  entry.AccountID.String(),
		"direction":   entry.Direction,
		"category":    entry.Category,
		"amount":      entry.Amount.String(),
		"auto_posted": entry.AutoPosted,
	})
	return entry, nil
}

// Void marks an entry VOID and refreshes the account balance in the same
// transaction. Voided entries are kept for audit, never hard-deleted.
func (s *Service) Void(ctx context.Context, input VoidInput) (JournalEntry, error) {
	if input.EntryID == uuid.Nil {
		return JournalEntry{}, ErrEntryNotFound
	}
	if strings.TrimSpace(input.Reason) == "" {
		return JournalEntry{}, ErrVoidReasonRequired
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if current.Status == StatusVoid {
			return ErrEntryAlreadyVoid
		}
		if _, err := tx.GetAccountStateForUpdate(ctx, current.AccountID); err != nil {
			return err
		}
		voidedAt := s.now()
		if err := tx.MarkVoid(ctx, current.ID, input.Reason, voidedAt); err != nil {
			return err
		}
		if _, err := tx.RefreshAccountBalance(ctx, current.AccountID); err != nil {
			return err
		}
		entry = current
		entry.Status = StatusVoid
		reason := input.Reason
		entry.VoidReason = &reason
		entry.VoidedAt = &voidedAt
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, entry.AccountID)
	}
	s.record(ctx, "journal.void", entry.ID, map[string]any{"reason": input.Reason})
	return entry, nil
}

// Get fetches one entry.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// List returns entries matching the filter with pagination metadata.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]JournalEntry, shared.Pagination, error) {
	return s.repo.List(ctx, filter)
}

// Cashflow aggregates posted amounts per category for a date range.
func (s *Service) Cashflow(ctx context.Context, from, to time.Time) (CashflowSummary, error) {
	if to.Before(from) {
		from, to = to, from
	}
	summary, err := s.repo.Cashflow(ctx, from, to)
	if err != nil {
		return CashflowSummary{}, err
	}
	if summary.Net.IsZero() {
		summary.Net = decimal.Zero
	}
	return summary, nil
}

func (s *Service) count(direction Direction, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.CountPosting(string(direction), outcome)
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OperatorRef: shared.OperatorFromContext(ctx),
		Action:      action,
		Entity:      "journal_entry",
		EntityID:    id.String(),
		Meta:        meta,
		At:          s.now(),
	})
}
