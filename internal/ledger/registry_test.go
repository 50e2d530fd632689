package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banking-core/internal/domain"
)

func TestCreateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	acct, err := f.registry.CreateAccount(ctx, owner, domain.AccountSavings, "mxn")
	require.NoError(t, err)

	assert.True(t, domain.ValidAccountNumber(acct.Number), "number %q", acct.Number)
	assert.Equal(t, domain.AccountActive, acct.Status)
	assert.Equal(t, domain.AccountSavings, acct.Type)
	assert.Equal(t, "MXN", acct.Currency)
	assert.True(t, acct.Balance.IsZero())
	assert.Nil(t, acct.LastTransactionAt)
}

func TestCreateAccountValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.registry.CreateAccount(ctx, uuid.Nil, domain.AccountDebit, "MXN")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.registry.CreateAccount(ctx, uuid.New(), domain.AccountType("CHECKING"), "MXN")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.registry.CreateAccount(ctx, uuid.New(), domain.AccountDebit, "PESOS")
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	// Empty currency falls back to the default.
	acct, err := f.registry.CreateAccount(ctx, uuid.New(), domain.AccountDebit, "")
	require.NoError(t, err)
	assert.Equal(t, "MXN", acct.Currency)
}

func TestAccountNumberUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		acct, err := f.registry.CreateAccount(ctx, uuid.New(), domain.AccountDebit, "MXN")
		require.NoError(t, err)
		_, dup := seen[acct.Number]
		require.False(t, dup, "duplicate account number %s", acct.Number)
		seen[acct.Number] = struct{}{}
	}
}

func TestGetAccountOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	acct, err := f.registry.CreateAccount(ctx, owner, domain.AccountDebit, "MXN")
	require.NoError(t, err)

	got, err := f.registry.GetAccount(ctx, acct.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	_, err = f.registry.GetAccount(ctx, acct.ID, uuid.New())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.registry.GetAccount(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListAccounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := f.registry.CreateAccount(ctx, owner, domain.AccountDebit, "MXN")
		require.NoError(t, err)
	}
	_, err := f.registry.CreateAccount(ctx, uuid.New(), domain.AccountDebit, "MXN")
	require.NoError(t, err)

	accts, err := f.registry.ListAccounts(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, accts, 3)
}

func TestSetStatusTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acct := f.account(t, "MXN")

	blocked, err := f.registry.SetStatus(ctx, acct.ID, domain.AccountBlocked)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountBlocked, blocked.Status)

	// Same-status set is rejected.
	_, err = f.registry.SetStatus(ctx, acct.ID, domain.AccountBlocked)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	back, err := f.registry.SetStatus(ctx, acct.ID, domain.AccountActive)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountActive, back.Status)

	_, err = f.registry.SetStatus(ctx, acct.ID, domain.AccountClosed)
	require.NoError(t, err)

	// CLOSED is terminal.
	for _, next := range []domain.AccountStatus{
		domain.AccountActive, domain.AccountInactive, domain.AccountBlocked,
	} {
		_, err = f.registry.SetStatus(ctx, acct.ID, next)
		assert.ErrorIs(t, err, domain.ErrInvalidState, "CLOSED -> %s must fail", next)
	}

	_, err = f.registry.SetStatus(ctx, acct.ID, domain.AccountStatus("SUSPENDED"))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = f.registry.SetStatus(ctx, uuid.New(), domain.AccountBlocked)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetByNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "MXN")

	got, err := f.registry.GetByNumber(ctx, acct.Number)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)

	_, err = f.registry.GetByNumber(ctx, "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
