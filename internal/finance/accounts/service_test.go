package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRepository struct {
	accounts map[uuid.UUID]CashAccount
}

func newMockRepository() *mockRepository {
	return &mockRepository{accounts: make(map[uuid.UUID]CashAccount)}
}

func (m *mockRepository) hasOtherDefault(acct CashAccount) bool {
	for id, existing := range m.accounts {
		if id == acct.ID {
			continue
		}
		if existing.Unit == acct.Unit && existing.Active && existing.IsDefault {
			return true
		}
	}
	return false
}

func (m *mockRepository) Create(ctx context.Context, acct CashAccount) (CashAccount, error) {
	if acct.Active && acct.IsDefault && m.hasOtherDefault(acct) {
		return CashAccount{}, ErrDuplicateDefault
	}
	m.accounts[acct.ID] = acct
	return acct, nil
}

func (m *mockRepository) Update(ctx context.Context, acct CashAccount) (CashAccount, error) {
	if _, ok := m.accounts[acct.ID]; !ok {
		return CashAccount{}, ErrAccountNotFound
	}
	if acct.Active && acct.IsDefault && m.hasOtherDefault(acct) {
		return CashAccount{}, ErrDuplicateDefault
	}
	m.accounts[acct.ID] = acct
	return acct, nil
}

func (m *mockRepository) Get(ctx context.Context, id uuid.UUID) (CashAccount, error) {
	acct, ok := m.accounts[id]
	if !ok {
		return CashAccount{}, ErrAccountNotFound
	}
	return acct, nil
}

func (m *mockRepository) GetDefaultForUnit(ctx context.Context, unit ManagingUnit) (CashAccount, error) {
	for _, acct := range m.accounts {
		if acct.Unit == unit && acct.Active && acct.IsDefault {
			return acct, nil
		}
	}
	return CashAccount{}, ErrNoDefaultAccount
}

func (m *mockRepository) List(ctx context.Context, onlyActive bool) ([]CashAccount, error) {
	var out []CashAccount
	for _, acct := range m.accounts {
		if onlyActive && !acct.Active {
			continue
		}
		out = append(out, acct)
	}
	return out, nil
}

func TestCreateStartsActiveWithZeroBalance(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	acct, err := svc.Create(context.Background(), CreateInput{
		Code: " KAS-YYS ", Name: "Kas Yayasan", Unit: UnitGeneral, IsDefault: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "KAS-YYS", acct.Code)
	assert.True(t, acct.Active)
	assert.True(t, acct.Balance.IsZero())
}

func TestCreateValidation(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{Code: "", Name: "Kas", Unit: UnitGeneral})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), CreateInput{Code: "KAS", Name: "Kas", Unit: "CANTEEN"})
	require.ErrorIs(t, err, ErrUnknownUnit)
}

func TestSecondDefaultForUnitRejected(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Code: "KAS-KOP", Name: "Kas Koperasi", Unit: UnitCooperative, IsDefault: true,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		Code: "KAS-KOP-2", Name: "Kas Koperasi Cadangan", Unit: UnitCooperative, IsDefault: true,
	})
	require.ErrorIs(t, err, ErrDuplicateDefault)

	// A second default on a different unit is fine.
	_, err = svc.Create(context.Background(), CreateInput{
		Code: "KAS-YYS", Name: "Kas Yayasan", Unit: UnitGeneral, IsDefault: true,
	})
	require.NoError(t, err)
}

func TestDeactivatedDefaultFreesTheSlot(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	first, err := svc.Create(context.Background(), CreateInput{
		Code: "KAS-KOP", Name: "Kas Koperasi", Unit: UnitCooperative, IsDefault: true,
	})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), UpdateInput{
		ID: first.ID, Code: first.Code, Name: first.Name, Unit: first.Unit,
		Active: false, IsDefault: true,
	})
	require.NoError(t, err)

	second, err := svc.Create(context.Background(), CreateInput{
		Code: "KAS-KOP-2", Name: "Kas Koperasi Baru", Unit: UnitCooperative, IsDefault: true,
	})
	require.NoError(t, err)

	got, err := svc.DefaultForUnit(context.Background(), UnitCooperative)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestDefaultForUnitMissing(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	_, err := svc.DefaultForUnit(context.Background(), UnitGeneral)
	require.ErrorIs(t, err, ErrNoDefaultAccount)
}

func TestUpdateUnknownAccount(t *testing.T) {
	repo := newMockRepository()
	svc := NewService(repo, nil)

	_, err := svc.Update(context.Background(), UpdateInput{ID: uuid.New(), Code: "X", Name: "X", Unit: UnitOther})
	require.ErrorIs(t, err, ErrAccountNotFound)
}
