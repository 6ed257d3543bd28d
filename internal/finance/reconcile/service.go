package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/journal"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// ErrReasonRequired rejects adjustments without a human-readable reason.
var ErrReasonRequired = errors.New("reconcile: adjustment reason required")

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Engine recomputes and corrects cached account balances. It is the only
// writer of cash_accounts.current_balance outside the posting transaction.
type Engine struct {
	repo  Repository
	cache *Cache
	audit AuditPort
	group singleflight.Group
	now   func() time.Time
}

// NewEngine builds the engine. cache and audit may be nil.
func NewEngine(repo Repository, cache *Cache, audit AuditPort) *Engine {
	return &Engine{repo: repo, cache: cache, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Balance returns the account's current balance, serving from cache when
// possible and falling back to the persisted column.
func (e *Engine) Balance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	if cached, ok := e.cache.Balance(ctx, accountID); ok {
		return cached, nil
	}
	balance, err := e.repo.GetCachedBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	e.cache.Store(ctx, accountID, balance)
	return balance, nil
}

// Recompute rewrites the cached balance from the journal sum under the
// account's row lock. Concurrent calls for the same account are collapsed;
// the row lock, not the collapse, carries correctness.
func (e *Engine) Recompute(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	v, err, _ := e.group.Do(accountID.String(), func() (any, error) {
		var balance decimal.Decimal
		err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if _, err := tx.LockAccount(ctx, accountID); err != nil {
				return err
			}
			refreshed, err := tx.RefreshBalance(ctx, accountID)
			if err != nil {
				return err
			}
			balance = refreshed
			return nil
		})
		return balance, err
	})
	if err != nil {
		return decimal.Zero, err
	}
	e.cache.Invalidate(ctx, accountID)
	return v.(decimal.Decimal), nil
}

// Adjust reconciles the recorded balance with a physically counted one by
// writing a correction entry under the reserved category. A zero delta is a
// no-op, which makes the operation retry-safe at the request level.
func (e *Engine) Adjust(ctx context.Context, accountID uuid.UUID, actual decimal.Decimal, reason, operator string) (journal.JournalEntry, error) {
	if strings.TrimSpace(reason) == "" {
		return journal.JournalEntry{}, ErrReasonRequired
	}
	if operator == "" {
		operator = shared.OperatorFromContext(ctx)
	}

	var entry journal.JournalEntry
	var applied bool
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockAccount(ctx, accountID); err != nil {
			return err
		}
		// Recorded balance is re-derived under the lock so a stale cache
		// column can never fabricate a delta.
		recorded, err := tx.RefreshBalance(ctx, accountID)
		if err != nil {
			return err
		}
		delta := actual.Sub(recorded)
		if delta.IsZero() {
			applied = false
			return nil
		}
		direction := journal.DirectionIncome
		if delta.IsNegative() {
			direction = journal.DirectionExpense
		}
		inserted, err := tx.InsertAdjustment(ctx, AdjustmentInsert{
			AccountID: accountID,
			Direction: direction,
			Amount:    delta.Abs(),
			Reason:    reason,
			Operator:  operator,
			Date:      e.now(),
		})
		if err != nil {
			return err
		}
		if _, err := tx.RefreshBalance(ctx, accountID); err != nil {
			return err
		}
		entry = inserted
		applied = true
		return nil
	})
	if err != nil {
		return journal.JournalEntry{}, err
	}
	e.cache.Invalidate(ctx, accountID)
	if !applied {
		return journal.JournalEntry{}, nil
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			OperatorRef: operator,
			Action:      "balance.adjust",
			Entity:      "cash_account",
			EntityID:    accountID.String(),
			Meta: map[string]any{
				"actual":  actual.String(),
				"delta":   entry.Signed().String(),
				"reason":  reason,
				"display": shared.FormatRupiah(actual),
			},
			At: e.now(),
		})
	}
	return entry, nil
}

// Drift describes an account whose cached balance disagrees with its journal.
type Drift struct {
	AccountID uuid.UUID
	Recorded  decimal.Decimal
	Computed  decimal.Decimal
}

// VerifyAll compares every account's cached balance against its journal sum.
// When fix is true, drifted balances are rewritten in place.
func (e *Engine) VerifyAll(ctx context.Context, fix bool) ([]Drift, error) {
	ids, err := e.repo.ListAccountIDs(ctx)
	if err != nil {
		return nil, err
	}
	var drifts []Drift
	for _, id := range ids {
		err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			bal, err := tx.LockAccount(ctx, id)
			if err != nil {
				return err
			}
			computed, err := tx.SumPostedEntries(ctx, id)
			if err != nil {
				return err
			}
			if bal.Recorded.Equal(computed) {
				return nil
			}
			drifts = append(drifts, Drift{AccountID: id, Recorded: bal.Recorded, Computed: computed})
			if fix {
				if _, err := tx.RefreshBalance(ctx, id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return drifts, err
		}
		if fix {
			e.cache.Invalidate(ctx, id)
		}
	}
	return drifts, nil
}
