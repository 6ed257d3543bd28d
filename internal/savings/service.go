package savings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the per-student savings ledger.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Deposit appends a credit entry. The read-latest, compute, append sequence
// runs under the student's row lock as one atomic step.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (SavingsEntry, error) {
	kind := input.Kind
	if kind == "" {
		kind = KindDeposit
	}
	if !kind.Valid() || !kind.Credits() {
		return SavingsEntry{}, ErrUnknownKind
	}
	return s.append(ctx, appendParams{
		StudentID:   input.StudentID,
		Kind:        kind,
		Amount:      input.Amount,
		Description: input.Description,
		Notes:       input.Notes,
		EvidenceRef: input.EvidenceRef,
		AccountID:   input.AccountID,
	})
}

// Withdraw appends a debit entry, failing with ErrInsufficientBalance when
// the running balance cannot cover the amount. A failed attempt leaves the
// ledger untouched.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (SavingsEntry, error) {
	return s.append(ctx, appendParams{
		StudentID:   input.StudentID,
		Kind:        KindWithdrawal,
		Amount:      input.Amount,
		Description: input.Description,
		Notes:       input.Notes,
		AccountID:   input.AccountID,
	})
}

// BulkDeposit credits each listed student independently. One student's
// failure does not roll back entries already committed for others.
func (s *Service) BulkDeposit(ctx context.Context, input BulkInput) (BulkResult, error) {
	kind := input.Kind
	if kind == "" {
		kind = KindDeposit
	}
	if !kind.Valid() || !kind.Credits() {
		return BulkResult{}, ErrUnknownKind
	}
	return s.bulk(ctx, input.StudentIDs, func(studentID uuid.UUID) (SavingsEntry, error) {
		return s.Deposit(ctx, DepositInput{
			StudentID:   studentID,
			Kind:        kind,
			Amount:      input.Amount,
			Description: input.Description,
		})
	})
}

// BulkWithdraw debits each listed student independently with partial-failure
// semantics: students with insufficient balance land in Failed while the
// rest are processed.
func (s *Service) BulkWithdraw(ctx context.Context, input BulkInput) (BulkResult, error) {
	return s.bulk(ctx, input.StudentIDs, func(studentID uuid.UUID) (SavingsEntry, error) {
		return s.Withdraw(ctx, WithdrawInput{
			StudentID:   studentID,
			Amount:      input.Amount,
			Description: input.Description,
		})
	})
}

// Balance returns the student's current savings balance: the BalanceAfter of
// the most recent entry, zero when the ledger is empty.
func (s *Service) Balance(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error) {
	if studentID == uuid.Nil {
		return decimal.Zero, ErrStudentNotFound
	}
	return s.repo.LatestBalance(ctx, studentID)
}

// History lists savings entries matching the filter.
func (s *Service) History(ctx context.Context, filter HistoryFilter) ([]SavingsEntry, shared.Pagination, error) {
	return s.repo.History(ctx, filter)
}

type appendParams struct {
	StudentID   uuid.UUID
	Kind        Kind
	Amount      decimal.Decimal
	Description string
	Notes       string
	EvidenceRef string
	AccountID   *uuid.UUID
}

func (s *Service) append(ctx context.Context, params appendParams) (SavingsEntry, error) {
	if params.StudentID == uuid.Nil {
		return SavingsEntry{}, ErrStudentNotFound
	}
	if !params.Amount.IsPositive() {
		return SavingsEntry{}, shared.ErrInvalidAmount
	}

	var entry SavingsEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.LockStudent(ctx, params.StudentID); err != nil {
			return err
		}
		before, err := tx.LatestBalanceLocked(ctx, params.StudentID)
		if err != nil {
			return err
		}
		signed := params.Amount
		if !params.Kind.Credits() {
			if before.LessThan(params.Amount) {
				return ErrInsufficientBalance
			}
			signed = params.Amount.Neg()
		}
		inserted, err := tx.InsertEntry(ctx, SavingsEntry{
			ID:            uuid.New(),
			StudentID:     params.StudentID,
			Kind:          params.Kind,
			Amount:        params.Amount,
			BalanceBefore: before,
			BalanceAfter:  before.Add(signed),
			Description:   params.Description,
			Notes:         params.Notes,
			EvidenceRef:   params.EvidenceRef,
			AccountID:     params.AccountID,
			OperatorRef:   shared.OperatorFromContext(ctx),
			CreatedAt:     s.now(),
		})
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	if err != nil {
		return SavingsEntry{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			OperatorRef: entry.OperatorRef,
			Action:      "savings." + string(entry.Kind),
			Entity:      "savings_entry",
			EntityID:    entry.ID.String(),
			Meta: map[string]any{
				"student_id":    entry.StudentID.String(),
				"amount":        entry.Amount.String(),
				"balance_after": entry.BalanceAfter.String(),
			},
			At: s.now(),
		})
	}
	return entry, nil
}

// bulk iterates students sequentially so a student listed twice keeps its
// entries in submission order.
func (s *Service) bulk(ctx context.Context, studentIDs []uuid.UUID, op func(uuid.UUID) (SavingsEntry, error)) (BulkResult, error) {
	if len(studentIDs) == 0 {
		return BulkResult{}, ErrEmptyBatch
	}
	var result BulkResult
	for _, studentID := range studentIDs {
		entry, err := op(studentID)
		if err != nil {
			result.Failed = append(result.Failed, BulkFailure{StudentID: studentID, Reason: err.Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, entry)
	}
	return result, nil
}
