package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesantren-erp/pesantren-erp/internal/finance/accounts"
	"github.com/pesantren-erp/pesantren-erp/internal/finance/journal"
)

type mockLedgerAccount struct {
	active   bool
	recorded decimal.Decimal
	entries  []journal.JournalEntry
}

func (a *mockLedgerAccount) journalSum() decimal.Decimal {
	total := decimal.Zero
	for _, e := range a.entries {
		if e.Status != journal.StatusPosted {
			continue
		}
		total = total.Add(e.Signed())
	}
	return total
}

type mockRepository struct {
	accounts map[uuid.UUID]*mockLedgerAccount
	order    []uuid.UUID
}

func newMockRepository() *mockRepository {
	return &mockRepository{accounts: make(map[uuid.UUID]*mockLedgerAccount)}
}

func (m *mockRepository) addAccount(entries ...journal.JournalEntry) uuid.UUID {
	id := uuid.New()
	acct := &mockLedgerAccount{active: true, entries: entries}
	acct.recorded = acct.journalSum()
	m.accounts[id] = acct
	m.order = append(m.order, id)
	return id
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) GetCachedBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	acct, ok := m.accounts[accountID]
	if !ok {
		return decimal.Zero, accounts.ErrAccountNotFound
	}
	return acct.recorded, nil
}

func (m *mockRepository) ListAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	return append([]uuid.UUID(nil), m.order...), nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) LockAccount(ctx context.Context, accountID uuid.UUID) (AccountBalance, error) {
	acct, ok := t.mock.accounts[accountID]
	if !ok {
		return AccountBalance{}, accounts.ErrAccountNotFound
	}
	return AccountBalance{ID: accountID, Active: acct.active, Recorded: acct.recorded}, nil
}

func (t *mockTxRepo) SumPostedEntries(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	acct, ok := t.mock.accounts[accountID]
	if !ok {
		return decimal.Zero, accounts.ErrAccountNotFound
	}
	return acct.journalSum(), nil
}

func (t *mockTxRepo) RefreshBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	acct, ok := t.mock.accounts[accountID]
	if !ok {
		return decimal.Zero, accounts.ErrAccountNotFound
	}
	acct.recorded = acct.journalSum()
	return acct.recorded, nil
}

func (t *mockTxRepo) InsertAdjustment(ctx context.Context, in AdjustmentInsert) (journal.JournalEntry, error) {
	acct, ok := t.mock.accounts[in.AccountID]
	if !ok {
		return journal.JournalEntry{}, accounts.ErrAccountNotFound
	}
	entry := journal.JournalEntry{
		ID:          uuid.New(),
		Date:        in.Date,
		Direction:   in.Direction,
		Category:    journal.CategoryBalanceAdjustment,
		Amount:      in.Amount,
		Description: in.Reason,
		AccountID:   in.AccountID,
		Status:      journal.StatusPosted,
		AutoPosted:  true,
		CreatedBy:   in.Operator,
		CreatedAt:   in.Date,
	}
	acct.entries = append(acct.entries, entry)
	return entry, nil
}

func postedEntry(direction journal.Direction, amount int64) journal.JournalEntry {
	return journal.JournalEntry{
		ID:        uuid.New(),
		Direction: direction,
		Category:  journal.CategoryOther,
		Amount:    decimal.NewFromInt(amount),
		Status:    journal.StatusPosted,
	}
}

func newTestEngine(repo *mockRepository) *Engine {
	engine := NewEngine(repo, nil, nil)
	engine.WithNow(func() time.Time { return time.Date(2026, 3, 10, 17, 0, 0, 0, time.UTC) })
	return engine
}

func TestAdjustWritesCorrectionEntry(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(
		postedEntry(journal.DirectionIncome, 100000),
		postedEntry(journal.DirectionExpense, 30000),
	)
	engine := newTestEngine(repo)

	entry, err := engine.Adjust(context.Background(), accountID, decimal.NewFromInt(65000), "cash drawer count", "op-1")
	require.NoError(t, err)

	assert.Equal(t, journal.DirectionExpense, entry.Direction)
	assert.Equal(t, journal.CategoryBalanceAdjustment, entry.Category)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(5000)))
	assert.True(t, entry.AutoPosted)
	assert.True(t, repo.accounts[accountID].recorded.Equal(decimal.NewFromInt(65000)))
}

func TestAdjustUpwardUsesIncome(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(postedEntry(journal.DirectionIncome, 40000))
	engine := newTestEngine(repo)

	entry, err := engine.Adjust(context.Background(), accountID, decimal.NewFromInt(45000), "found misplaced cash", "op-1")
	require.NoError(t, err)

	assert.Equal(t, journal.DirectionIncome, entry.Direction)
	assert.True(t, entry.Amount.Equal(decimal.NewFromInt(5000)))
	assert.True(t, repo.accounts[accountID].recorded.Equal(decimal.NewFromInt(45000)))
}

func TestAdjustZeroDeltaIsNoOp(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(postedEntry(journal.DirectionIncome, 70000))
	engine := newTestEngine(repo)

	entry, err := engine.Adjust(context.Background(), accountID, decimal.NewFromInt(70000), "routine count", "op-1")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, entry.ID)
	assert.Len(t, repo.accounts[accountID].entries, 1)
}

func TestAdjustIsRetrySafe(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(postedEntry(journal.DirectionIncome, 70000))
	engine := newTestEngine(repo)

	first, err := engine.Adjust(context.Background(), accountID, decimal.NewFromInt(65000), "count", "op-1")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first.ID)

	// Replaying the same count finds no delta and writes nothing.
	second, err := engine.Adjust(context.Background(), accountID, decimal.NewFromInt(65000), "count", "op-1")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, second.ID)
	assert.Len(t, repo.accounts[accountID].entries, 2)
}

func TestAdjustRequiresReason(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount()
	engine := newTestEngine(repo)

	_, err := engine.Adjust(context.Background(), accountID, decimal.NewFromInt(100), "   ", "op-1")
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestRecomputeRepairsDriftedColumn(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(postedEntry(journal.DirectionIncome, 120000))
	repo.accounts[accountID].recorded = decimal.NewFromInt(999)
	engine := newTestEngine(repo)

	balance, err := engine.Recompute(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(120000)))
	assert.True(t, repo.accounts[accountID].recorded.Equal(decimal.NewFromInt(120000)))
}

func TestVerifyAllReportsDrift(t *testing.T) {
	repo := newMockRepository()
	cleanID := repo.addAccount(postedEntry(journal.DirectionIncome, 5000))
	driftedID := repo.addAccount(postedEntry(journal.DirectionIncome, 80000))
	repo.accounts[driftedID].recorded = decimal.NewFromInt(75000)
	engine := newTestEngine(repo)

	drifts, err := engine.VerifyAll(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, driftedID, drifts[0].AccountID)
	assert.True(t, drifts[0].Recorded.Equal(decimal.NewFromInt(75000)))
	assert.True(t, drifts[0].Computed.Equal(decimal.NewFromInt(80000)))

	// Without fix the drifted column is left as found.
	assert.True(t, repo.accounts[driftedID].recorded.Equal(decimal.NewFromInt(75000)))
	assert.True(t, repo.accounts[cleanID].recorded.Equal(decimal.NewFromInt(5000)))
}

func TestVerifyAllFixRewritesBalances(t *testing.T) {
	repo := newMockRepository()
	driftedID := repo.addAccount(postedEntry(journal.DirectionIncome, 80000))
	repo.accounts[driftedID].recorded = decimal.NewFromInt(75000)
	engine := newTestEngine(repo)

	drifts, err := engine.VerifyAll(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.True(t, repo.accounts[driftedID].recorded.Equal(decimal.NewFromInt(80000)))
}

func TestBalanceFallsBackToColumn(t *testing.T) {
	repo := newMockRepository()
	accountID := repo.addAccount(postedEntry(journal.DirectionIncome, 42000))
	engine := newTestEngine(repo)

	balance, err := engine.Balance(context.Background(), accountID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(42000)))
}
