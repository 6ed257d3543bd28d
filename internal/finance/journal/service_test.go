package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

type mockAccount struct {
	active  bool
	unit    accounts.ManagingUnit
	balance decimal.Decimal
}

type mockRepository struct {
	accounts map[uuid.UUID]*mockAccount
	entries  map[uuid.UUID]*JournalEntry
	order    []uuid.UUID

	txError error
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		accounts: make(map[uuid.UUID]*mockAccount),
		entries:  make(map[uuid.UUID]*JournalEntry),
	}
}

func (m *mockRepository) addAccount(active bool) uuid.UUID {
	id := uuid.New()
	m.accounts[id] = &mockAccount{active: active, unit: accounts.UnitGeneral}
	return id
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txError != nil {
		return m.txError
	}
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetEntry(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	e, ok := m.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	return *e, nil
}

func (m *mockRepository) List(ctx context.Context, filter ListFilter) ([]JournalEntry, shared.Pagination, error) {
	var out []JournalEntry
	for _, id := range m.order {
		out = append(out, *m.entries[id])
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, len(out)), nil
}

func (m *mockRepository) Cashflow(ctx context.Context, from, to time.Time) (CashflowSummary, error) {
	summary := CashflowSummary{From: from, To: to}
	totals := map[Category]*CategoryTotal{}
	for _, id := range m.order {
		e := m.entries[id]
		if e.Status != StatusPosted {
			continue
		}
		ct, ok := totals[e.Category]
		if !ok {
			ct = &CategoryTotal{Category: e.Category}
			totals[e.Category] = ct
		}
		if e.Direction == DirectionIncome {
			ct.Income = ct.Income.Add(e.Amount)
			summary.TotalIncome = summary.TotalIncome.Add(e.Amount)
		} else {
			ct.Expense = ct.Expense.Add(e.Amount)
			summary.TotalExpense = summary.TotalExpense.Add(e.Amount)
		}
	}
	for _, ct := range totals {
		summary.Categories = append(summary.Categories, *ct)
	}
	summary.Net = summary.TotalIncome.Sub(summary.TotalExpense)
	return summary, nil
}

func (m *mockRepository) sumPosted(accountID uuid.UUID) decimal.Decimal {
	total := decimal.Zero
	for _, id := range m.order {
		e := m.entries[id]
		if e.AccountID != accountID || e.Status != StatusPosted {
			continue
		}
		total = total.Add(e.Signed())
	}
	return total
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) GetAccountStateForUpdate(ctx context.Context, accountID uuid.UUID) (AccountState, error) {
	acct, ok := t.mock.accounts[accountID]
	if !ok {
		return AccountState{}, accounts.ErrAccountNotFound
	}
	return AccountState{ID: accountID, Active: acct.active, Unit: acct.unit}, nil
}

func (t *mockTxRepo) InsertEntry(ctx context.Context, in PostInput) (JournalEntry, error) {
	entry := JournalEntry{
		ID:           uuid.New(),
		Date:         in.Date,
		Direction:    in.Direction,
		Category:     in.Category,
		SubCategory:  in.SubCategory,
		Amount:       in.Amount,
		Description:  in.Description,
		Counterparty: in.Counterparty,
		AccountID:    in.AccountID,
		Status:       StatusPosted,
		AutoPosted:   in.AutoPosted,
		CreatedBy:    in.CreatedBy,
		CreatedAt:    in.Date,
	}
	t.mock.entries[entry.ID] = &entry
	t.mock.order = append(t.mock.order, entry.ID)
	return entry, nil
}

func (t *mockTxRepo) GetEntryForUpdate(ctx context.Context, id uuid.UUID) (JournalEntry, error) {
	return t.mock.GetEntry(ctx, id)
}

func (t *mockTxRepo) MarkVoid(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	e, ok := t.mock.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	e.Status = StatusVoid
	e.VoidReason = &reason
	e.VoidedAt = &at
	return nil
}

func (t *mockTxRepo) RefreshAccountBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	acct, ok := t.mock.accounts[accountID]
	if !ok {
		return decimal.Zero, accounts.ErrAccountNotFound
	}
	acct.balance = t.mock.sumPosted(accountID)
	return acct.balance, nil
}

type fakeGuard struct {
	blocked bool
	reasons []string
	err     error
}

func (g *fakeGuard) DebtSettlementBlocked(ctx context.Context) (bool, []string, error) {
	return g.blocked, g.reasons, g.err
}

func newTestService(repo *mockRepository, guard DebtGuard) *Service {
	svc := NewService(repo, nil, guard, nil, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) })
	return svc
}

func TestPostKeepsBalanceEqualToJournalSum(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	svc := newTestService(repo, nil)

	_, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryDonation,
		Amount:    decimal.NewFromInt(100000),
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionExpense,
		Category:  CategoryOperational,
		Amount:    decimal.NewFromInt(30000),
	})
	require.NoError(t, err)

	assert.True(t, repo.accounts[accountID].balance.Equal(decimal.NewFromInt(70000)))
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(false)
	svc := newTestService(repo, nil)

	_, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryTuition,
		Amount:    decimal.NewFromInt(5000),
	})
	require.ErrorIs(t, err, ErrInactiveAccount)
	assert.Empty(t, repo.entries)
}

func TestPostValidation(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	svc := newTestService(repo, nil)

	cases := []struct {
		name  string
		input PostInput
		want  error
	}{
		{
			name:  "unknown direction",
			input: PostInput{AccountID: accountID, Direction: "SIDEWAYS", Category: CategoryOther, Amount: decimal.NewFromInt(1)},
			want:  ErrUnknownDirection,
		},
		{
			name:  "unknown category",
			input: PostInput{AccountID: accountID, Direction: DirectionIncome, Category: "MYSTERY", Amount: decimal.NewFromInt(1)},
			want:  ErrUnknownCategory,
		},
		{
			name:  "reserved category",
			input: PostInput{AccountID: accountID, Direction: DirectionIncome, Category: CategoryBalanceAdjustment, Amount: decimal.NewFromInt(1)},
			want:  ErrReservedCategory,
		},
		{
			name:  "zero amount",
			input: PostInput{AccountID: accountID, Direction: DirectionIncome, Category: CategoryOther, Amount: decimal.Zero},
			want:  shared.ErrInvalidAmount,
		},
		{
			name:  "negative amount",
			input: PostInput{AccountID: accountID, Direction: DirectionExpense, Category: CategoryOther, Amount: decimal.NewFromInt(-10)},
			want:  shared.ErrInvalidAmount,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Post(context.Background(), tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
	assert.Empty(t, repo.entries)
}

func TestVoidRestoresBalanceAndKeepsEntry(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	svc := newTestService(repo, nil)

	_, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryDonation,
		Amount:    decimal.NewFromInt(100000),
	})
	require.NoError(t, err)

	expense, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionExpense,
		Category:  CategoryOperational,
		Amount:    decimal.NewFromInt(30000),
	})
	require.NoError(t, err)
	require.True(t, repo.accounts[accountID].balance.Equal(decimal.NewFromInt(70000)))

	voided, err := svc.Void(context.Background(), VoidInput{EntryID: expense.ID, Reason: "double input"})
	require.NoError(t, err)
	assert.Equal(t, StatusVoid, voided.Status)
	require.NotNil(t, voided.VoidReason)
	assert.Equal(t, "double input", *voided.VoidReason)

	// Entry stays in the journal, only excluded from the balance.
	assert.Len(t, repo.entries, 2)
	assert.True(t, repo.accounts[accountID].balance.Equal(decimal.NewFromInt(100000)))
}

func TestVoidRequiresReason(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, nil)

	_, err := svc.Void(context.Background(), VoidInput{EntryID: uuid.New(), Reason: "  "})
	require.ErrorIs(t, err, ErrVoidReasonRequired)
}

func TestVoidTwiceFails(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	svc := newTestService(repo, nil)

	entry, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryDonation,
		Amount:    decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = svc.Void(context.Background(), VoidInput{EntryID: entry.ID, Reason: "wrong account"})
	require.NoError(t, err)

	_, err = svc.Void(context.Background(), VoidInput{EntryID: entry.ID, Reason: "again"})
	require.ErrorIs(t, err, ErrEntryAlreadyVoid)
}

func TestPostDebtPaymentBlockedByPendingSplits(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	guard := &fakeGuard{blocked: true, reasons: []string{"sale abc awaiting profit split"}}
	svc := newTestService(repo, guard)

	_, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionExpense,
		Category:  CategoryDebtPayment,
		Amount:    decimal.NewFromInt(50000),
	})
	var pending *shared.PendingProfitSharingError
	require.True(t, errors.As(err, &pending))
	assert.Equal(t, guard.reasons, pending.Reasons)
	assert.Empty(t, repo.entries)

	// Income under the same category is not a settlement and passes.
	_, err = svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryDebtPayment,
		Amount:    decimal.NewFromInt(50000),
	})
	require.NoError(t, err)
}

func TestPostDebtPaymentAllowedWhenSplitsResolved(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	svc := newTestService(repo, &fakeGuard{blocked: false})

	_, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryDonation,
		Amount:    decimal.NewFromInt(200000),
	})
	require.NoError(t, err)

	_, err = svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionExpense,
		Category:  CategoryDebtPayment,
		Amount:    decimal.NewFromInt(75000),
	})
	require.NoError(t, err)
	assert.True(t, repo.accounts[accountID].balance.Equal(decimal.NewFromInt(125000)))
}

func TestCashflowSummary(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(true)
	svc := newTestService(repo, nil)

	_, err := svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionIncome,
		Category:  CategoryTuition,
		Amount:    decimal.NewFromInt(500000),
	})
	require.NoError(t, err)
	_, err = svc.Post(context.Background(), PostInput{
		AccountID: accountID,
		Direction: DirectionExpense,
		Category:  CategoryPayroll,
		Amount:    decimal.NewFromInt(320000),
	})
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	summary, err := svc.Cashflow(context.Background(), from, to)
	require.NoError(t, err)
	assert.True(t, summary.TotalIncome.Equal(decimal.NewFromInt(500000)))
	assert.True(t, summary.TotalExpense.Equal(decimal.NewFromInt(320000)))
	assert.True(t, summary.Net.Equal(decimal.NewFromInt(180000)))
}
