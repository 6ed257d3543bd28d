package savings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesantren-erp/pesantren-erp/internal/shared"
)

type mockRepository struct {
	students map[uuid.UUID]bool
	entries  map[uuid.UUID][]SavingsEntry
	nextSeq  int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		students: make(map[uuid.UUID]bool),
		entries:  make(map[uuid.UUID][]SavingsEntry),
		nextSeq:  1,
	}
}

func (m *mockRepository) addStudent() uuid.UUID {
	id := uuid.New()
	m.students[id] = true
	return id
}

func (m *mockRepository) latest(studentID uuid.UUID) decimal.Decimal {
	entries := m.entries[studentID]
	if len(entries) == 0 {
		return decimal.Zero
	}
	return entries[len(entries)-1].BalanceAfter
}

func (m *mockRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &mockTxRepo{mock: m})
}

func (m *mockRepository) LatestBalance(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error) {
	if !m.students[studentID] {
		return decimal.Zero, ErrStudentNotFound
	}
	return m.latest(studentID), nil
}

func (m *mockRepository) History(ctx context.Context, filter HistoryFilter) ([]SavingsEntry, shared.Pagination, error) {
	var out []SavingsEntry
	for studentID, entries := range m.entries {
		if filter.StudentID != nil && *filter.StudentID != studentID {
			continue
		}
		out = append(out, entries...)
	}
	return out, shared.NewPagination(filter.Page, filter.PerPage, len(out)), nil
}

type mockTxRepo struct {
	mock *mockRepository
}

func (t *mockTxRepo) LockStudent(ctx context.Context, studentID uuid.UUID) error {
	if !t.mock.students[studentID] {
		return ErrStudentNotFound
	}
	return nil
}

func (t *mockTxRepo) LatestBalanceLocked(ctx context.Context, studentID uuid.UUID) (decimal.Decimal, error) {
	return t.mock.latest(studentID), nil
}

func (t *mockTxRepo) InsertEntry(ctx context.Context, entry SavingsEntry) (SavingsEntry, error) {
	entry.Seq = t.mock.nextSeq
	t.mock.nextSeq++
	t.mock.entries[entry.StudentID] = append(t.mock.entries[entry.StudentID], entry)
	return entry, nil
}

func newTestService(repo *mockRepository) *Service {
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC) })
	return svc
}

func TestDepositChainsBalances(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	first, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.Equal(t, KindDeposit, first.Kind)
	assert.True(t, first.BalanceBefore.Equal(decimal.Zero))
	assert.True(t, first.BalanceAfter.Equal(decimal.NewFromInt(100)))

	second, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	assert.True(t, second.BalanceBefore.Equal(first.BalanceAfter))
	assert.True(t, second.BalanceAfter.Equal(decimal.NewFromInt(150)))
	assert.Greater(t, second.Seq, first.Seq)
}

func TestRewardKindsCredit(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	for _, kind := range []Kind{KindRewardAcademic, KindRewardNonAcad, KindRewardAchieve} {
		_, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Kind: kind, Amount: decimal.NewFromInt(10)})
		require.NoError(t, err)
	}
	balance, err := svc.Balance(context.Background(), studentID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(30)))
}

func TestDepositRejectsDebitKind(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	_, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Kind: KindWithdrawal, Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestWithdrawReducesBalance(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	_, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	entry, err := svc.Withdraw(context.Background(), WithdrawInput{StudentID: studentID, Amount: decimal.NewFromInt(40)})
	require.NoError(t, err)
	assert.Equal(t, KindWithdrawal, entry.Kind)
	assert.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(60)))
}

func TestWithdrawInsufficientLeavesLedgerUntouched(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	_, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	_, err = svc.Withdraw(context.Background(), WithdrawInput{StudentID: studentID, Amount: decimal.NewFromInt(150)})
	require.ErrorIs(t, err, ErrInsufficientBalance)

	balance, err := svc.Balance(context.Background(), studentID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))
	assert.Len(t, repo.entries[studentID], 1)
}

func TestWithdrawExactBalanceSucceeds(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	_, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)

	entry, err := svc.Withdraw(context.Background(), WithdrawInput{StudentID: studentID, Amount: decimal.NewFromInt(100)})
	require.NoError(t, err)
	assert.True(t, entry.BalanceAfter.Equal(decimal.Zero))
}

func TestBalanceUnknownStudent(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	_, err := svc.Balance(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestBulkWithdrawPartialFailure(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	rich1 := repo.addStudent()
	poor := repo.addStudent()
	rich2 := repo.addStudent()
	for id, amount := range map[uuid.UUID]int64{rich1: 100, poor: 10, rich2: 200} {
		_, err := svc.Deposit(context.Background(), DepositInput{StudentID: id, Amount: decimal.NewFromInt(amount)})
		require.NoError(t, err)
	}

	result, err := svc.BulkWithdraw(context.Background(), BulkInput{
		StudentIDs: []uuid.UUID{rich1, poor, rich2},
		Amount:     decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	require.Len(t, result.Succeeded, 2)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, poor, result.Failed[0].StudentID)
	assert.Equal(t, ErrInsufficientBalance.Error(), result.Failed[0].Reason)

	// The failing student's ledger is untouched.
	poorBalance, err := svc.Balance(context.Background(), poor)
	require.NoError(t, err)
	assert.True(t, poorBalance.Equal(decimal.NewFromInt(10)))
}

func TestBulkDepositDuplicateStudentChains(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	result, err := svc.BulkDeposit(context.Background(), BulkInput{
		StudentIDs: []uuid.UUID{studentID, studentID},
		Amount:     decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	require.Len(t, result.Succeeded, 2)
	assert.True(t, result.Succeeded[0].BalanceAfter.Equal(decimal.NewFromInt(25)))
	assert.True(t, result.Succeeded[1].BalanceBefore.Equal(decimal.NewFromInt(25)))
	assert.True(t, result.Succeeded[1].BalanceAfter.Equal(decimal.NewFromInt(50)))
}

func TestBulkRejectsEmptyBatch(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo)

	_, err := svc.BulkDeposit(context.Background(), BulkInput{Amount: decimal.NewFromInt(10)})
	require.ErrorIs(t, err, ErrEmptyBatch)
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	repo := newMockRepository()
	studentID := repo.addStudent()
	svc := newTestService(repo)

	_, err := svc.Deposit(context.Background(), DepositInput{StudentID: studentID, Amount: decimal.Zero})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = svc.Withdraw(context.Background(), WithdrawInput{StudentID: studentID, Amount: decimal.NewFromInt(-5)})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)
}
