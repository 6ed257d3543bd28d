package accounts

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates cash account registry operations.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// CreateInput groups fields for registering a cash account.
type CreateInput struct {
	Code      string
	Name      string
	Unit      ManagingUnit
	IsDefault bool
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("accounts: code is required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("accounts: name is required")
	}
	if !in.Unit.Valid() {
		return ErrUnknownUnit
	}
	return nil
}

// Create registers a new active cash account with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (CashAccount, error) {
	if err := input.validate(); err != nil {
		return CashAccount{}, err
	}
	acct := CashAccount{
		ID:        uuid.New(),
		Code:      strings.TrimSpace(input.Code),
		Name:      strings.TrimSpace(input.Name),
		Unit:      input.Unit,
		Active:    true,
		IsDefault: input.IsDefault,
	}
	created, err := s.repo.Create(ctx, acct)
	if err != nil {
		return CashAccount{}, err
	}
	s.record(ctx, "account.create", created.ID, map[string]any{"code": created.Code, "unit": created.Unit})
	return created, nil
}

// UpdateInput groups mutable registry fields.
type UpdateInput struct {
	ID        uuid.UUID
	Code      string
	Name      string
	Unit      ManagingUnit
	Active    bool
	IsDefault bool
}

// Update edits registry fields. The cached balance is never touched here; the
// reconciliation engine owns that column.
func (s *Service) Update(ctx context.Context, input UpdateInput) (CashAccount, error) {
	if input.ID == uuid.Nil {
		return CashAccount{}, ErrAccountNotFound
	}
	if !input.Unit.Valid() {
		return CashAccount{}, ErrUnknownUnit
	}
	current, err := s.repo.Get(ctx, input.ID)
	if err != nil {
		return CashAccount{}, err
	}
	current.Code = strings.TrimSpace(input.Code)
	current.Name = strings.TrimSpace(input.Name)
	current.Unit = input.Unit
	current.Active = input.Active
	current.IsDefault = input.IsDefault
	updated, err := s.repo.Update(ctx, current)
	if err != nil {
		return CashAccount{}, err
	}
	s.record(ctx, "account.update", updated.ID, map[string]any{"active": updated.Active, "is_default": updated.IsDefault})
	return updated, nil
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	return s.repo.Get(ctx, id)
}

// DefaultForUnit fetches the active default account of a managing unit.
func (s *Service) DefaultForUnit(ctx context.Context, unit ManagingUnit) (CashAccount, error) {
	if !unit.Valid() {
		return CashAccount{}, ErrUnknownUnit
	}
	return s.repo.GetDefaultForUnit(ctx, unit)
}

// List returns registered accounts.
func (s *Service) List(ctx context.Context, onlyActive bool) ([]CashAccount, error) {
	return s.repo.List(ctx, onlyActive)
}

func (s *Service) record(ctx context.Context, action string, id uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		OperatorRef: shared.OperatorFromContext(ctx),
		Action:      action,
		Entity:      "cash_account",
		EntityID:    id.String(),
		Meta:        meta,
		At:          s.now(),
	})
}
