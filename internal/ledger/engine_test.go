package ledger_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banking-core/internal/domain"
	"banking-core/internal/ledger"
	"banking-core/internal/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	st       *memory.Store
	registry *ledger.Registry
	engine   *ledger.Engine
	history  *ledger.History
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	return &fixture{
		st:       st,
		registry: ledger.NewRegistry(st),
		engine:   ledger.NewEngine(st),
		history:  ledger.NewHistory(st),
	}
}

func (f *fixture) account(t *testing.T, currency string) domain.Account {
	t.Helper()
	acct, err := f.registry.CreateAccount(context.Background(), uuid.New(), domain.AccountDebit, currency)
	require.NoError(t, err)
	return acct
}

func (f *fixture) fundedAccount(t *testing.T, currency, amount string) domain.Account {
	t.Helper()
	acct := f.account(t, currency)
	_, err := f.engine.Deposit(context.Background(), acct.ID, dec(amount), "seed")
	require.NoError(t, err)
	return acct
}

func (f *fixture) balance(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	acct, err := f.st.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acct.Balance
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.fundedAccount(t, "MXN", "100.00")

	tr, err := f.engine.Deposit(ctx, acct.ID, dec("50.00"), "paycheck")
	require.NoError(t, err)

	assert.Equal(t, domain.TypeDeposit, tr.Type)
	assert.Equal(t, domain.TxCompleted, tr.Status)
	assert.True(t, domain.ValidReference(tr.Reference), "reference %q", tr.Reference)
	assert.Nil(t, tr.DestinationAccountID)
	assert.True(t, f.balance(t, acct.ID).Equal(dec("150.00")))

	got, err := f.st.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTransactionAt)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "MXN")

	cases := []struct {
		name   string
		amount string
		want   error
	}{
		{"zero", "0.00", domain.ErrInvalidAmount},
		{"negative", "-10.00", domain.ErrInvalidAmount},
		{"sub-cent scale", "10.001", domain.ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Deposit(ctx, acct.ID, dec(tc.amount), "")
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.engine.Deposit(ctx, uuid.New(), dec("10.00"), "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.True(t, f.balance(t, acct.ID).IsZero())
}

func TestWithdrawBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.fundedAccount(t, "MXN", "100.00")

	// Withdrawing the exact balance leaves exactly zero.
	tr, err := f.engine.Withdraw(ctx, acct.ID, dec("100.00"), "")
	require.NoError(t, err)
	assert.Equal(t, domain.TxCompleted, tr.Status)
	assert.True(t, f.balance(t, acct.ID).Equal(dec("0.00")))

	// One cent over an empty balance fails with no visible effect.
	_, err = f.engine.Withdraw(ctx, acct.ID, dec("0.01"), "")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, f.balance(t, acct.ID).IsZero())
}

func TestWithdrawInsufficientFundsLeavesNoRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "MXN") // balance 0.00

	_, err := f.engine.Withdraw(ctx, acct.ID, dec("50.00"), "")
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.True(t, f.balance(t, acct.ID).IsZero())
	txs, err := f.history.ForAccount(ctx, acct.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, txs, "failed validation must not persist a completed record")
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.fundedAccount(t, "MXN", "150.00")
	dst := f.account(t, "MXN")

	tr, err := f.engine.Transfer(ctx, src.ID, dst.Number, dec("150.00"), "rent")
	require.NoError(t, err)

	assert.Equal(t, domain.TypeTransfer, tr.Type)
	assert.Equal(t, domain.TxCompleted, tr.Status)
	assert.Equal(t, src.ID, tr.AccountID)
	require.NotNil(t, tr.DestinationAccountID)
	assert.Equal(t, dst.ID, *tr.DestinationAccountID)

	assert.True(t, f.balance(t, src.ID).Equal(dec("0.00")))
	assert.True(t, f.balance(t, dst.ID).Equal(dec("150.00")))

	// One record, visible from both sides.
	srcHist, err := f.history.ForAccount(ctx, src.ID, 0)
	require.NoError(t, err)
	dstHist, err := f.history.ForAccount(ctx, dst.ID, 0)
	require.NoError(t, err)
	require.Len(t, dstHist, 1)
	assert.Equal(t, tr.ID, dstHist[0].ID)
	assert.Equal(t, srcHist[0].ID, dstHist[0].ID)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	src := f.fundedAccount(t, "MXN", "100.00")
	sameCur := f.account(t, "MXN")
	otherCur := f.account(t, "USD")

	t.Run("same account", func(t *testing.T) {
		_, err := f.engine.Transfer(ctx, src.ID, src.Number, dec("10.00"), "")
		assert.ErrorIs(t, err, domain.ErrSameAccount)
	})
	t.Run("unknown destination", func(t *testing.T) {
		_, err := f.engine.Transfer(ctx, src.ID, "000000000000", dec("10.00"), "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("unknown source", func(t *testing.T) {
		_, err := f.engine.Transfer(ctx, uuid.New(), sameCur.Number, dec("10.00"), "")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
	t.Run("currency mismatch", func(t *testing.T) {
		_, err := f.engine.Transfer(ctx, src.ID, otherCur.Number, dec("10.00"), "")
		assert.ErrorIs(t, err, domain.ErrCurrencyMismatch)
	})
	t.Run("insufficient funds", func(t *testing.T) {
		_, err := f.engine.Transfer(ctx, src.ID, sameCur.Number, dec("100.01"), "")
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})

	// Nothing above moved any money.
	assert.True(t, f.balance(t, src.ID).Equal(dec("100.00")))
	assert.True(t, f.balance(t, sameCur.ID).IsZero())
	assert.True(t, f.balance(t, otherCur.ID).IsZero())
}

func TestClosedAccountRejectsOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	closed := f.fundedAccount(t, "MXN", "40.00")
	open := f.account(t, "MXN")

	_, err := f.registry.SetStatus(ctx, closed.ID, domain.AccountClosed)
	require.NoError(t, err)

	_, err = f.engine.Deposit(ctx, closed.ID, dec("10.00"), "")
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)
	_, err = f.engine.Withdraw(ctx, closed.ID, dec("10.00"), "")
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)
	_, err = f.engine.Transfer(ctx, closed.ID, open.Number, dec("10.00"), "")
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)

	// Transfers into a non-ACTIVE destination are rejected too.
	funded := f.fundedAccount(t, "MXN", "20.00")
	_, err = f.engine.Transfer(ctx, funded.ID, closed.Number, dec("10.00"), "")
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)

	assert.True(t, f.balance(t, closed.ID).Equal(dec("40.00")))
}

func TestHistoryNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "MXN")

	var refs []string
	for _, amt := range []string{"10.00", "20.00", "30.00"} {
		tr, err := f.engine.Deposit(ctx, acct.ID, dec(amt), "")
		require.NoError(t, err)
		refs = append(refs, tr.Reference)
	}

	txs, err := f.history.ForAccount(ctx, acct.ID, 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	for i, tr := range txs {
		assert.Equal(t, refs[len(refs)-1-i], tr.Reference)
	}

	limited, err := f.history.ForAccount(ctx, acct.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Re-enumerable: a second read returns the same finite result.
	again, err := f.history.ForAccount(ctx, acct.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, txs, again)

	_, err = f.history.ForAccount(ctx, uuid.New(), 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReferenceUniqueness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	acct := f.account(t, "MXN")

	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		tr, err := f.engine.Deposit(ctx, acct.ID, dec("1.00"), "")
		require.NoError(t, err)
		_, dup := seen[tr.Reference]
		require.False(t, dup, "duplicate reference %s", tr.Reference)
		seen[tr.Reference] = struct{}{}
	}
}

func TestCanceledContextAbortsBeforeMutation(t *testing.T) {
	f := newFixture(t)
	acct := f.fundedAccount(t, "MXN", "100.00")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.Withdraw(ctx, acct.ID, dec("10.00"), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, f.balance(t, acct.ID).Equal(dec("100.00")))
}
