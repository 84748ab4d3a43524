package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func TestOpenWallet_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.wallets.OpenWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())

	second, err := env.wallets.OpenWallet(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGetWallet_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.wallets.GetWallet(context.Background(), "nobody")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestDeposit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w, err := env.wallets.OpenWallet(ctx, "user-1")
	require.NoError(t, err)

	got, err := env.wallets.Deposit(ctx, "user-1", d("150.5"), "")
	require.NoError(t, err)
	assert.True(t, got.Balance.Equal(d("150.50")))

	txns := env.store.Transactions(w.ID)
	require.Len(t, txns, 1)
	assert.Equal(t, domain.TransactionCredit, txns[0].Type)
	assert.Equal(t, "Deposit: +150.50", txns[0].Description)
}

func TestDeposit_InvalidAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.AddWallet("user-1", d("10"))

	for _, amount := range []string{"0", "-5", "0.001"} {
		_, err := env.wallets.Deposit(ctx, "user-1", d(amount), "")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
	}
	assert.True(t, env.store.Wallet("user-1").Balance.Equal(d("10")))
}

func TestDeposit_RejectsSubCentAmounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w := env.store.AddWallet("user-1", d("10"))

	for _, amount := range []string{"1.005", "0.004"} {
		_, err := env.wallets.Deposit(ctx, "user-1", d(amount), "")

		var amountErr *domain.InvalidAmountError
		require.ErrorAs(t, err, &amountErr, amount)
		assert.Contains(t, err.Error(), "at most 2 decimal places", amount)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, amount)
	}

	assert.True(t, env.store.Wallet("user-1").Balance.Equal(d("10")))
	assert.Len(t, env.store.Transactions(w.ID), 1)
}

func TestDeposit_RejectsAmountsBeyondColumnRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.AddWallet("user-1", d("0"))

	_, err := env.wallets.Deposit(ctx, "user-1", d("1000000000000"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	env.store.SetWalletBalance("user-1", d("999999999999.00"))
	_, err = env.wallets.Deposit(ctx, "user-1", d("5"), "")
	var amountErr *domain.InvalidAmountError
	require.ErrorAs(t, err, &amountErr)
	assert.Contains(t, err.Error(), "balance would exceed")
	assert.True(t, env.store.Wallet("user-1").Balance.Equal(d("999999999999.00")))
}

func TestDeposit_NoWallet(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.wallets.Deposit(context.Background(), "ghost", d("10"), "")
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestLedgerReconstructsBalance(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	w, err := env.wallets.OpenWallet(ctx, "user-1")
	require.NoError(t, err)
	_, err = env.wallets.Deposit(ctx, "user-1", d("40000"), "")
	require.NoError(t, err)

	env.seedScenario("user-1")
	order, err := env.orders.CreateOrder(ctx, "user-1", CheckoutRequest{})
	require.NoError(t, err)
	_, err = env.orders.CancelOrder(ctx, order.ID, "user-1")
	require.NoError(t, err)

	env.seedScenario("user-1")
	_, err = env.orders.CreateOrder(ctx, "user-1", CheckoutRequest{})
	require.NoError(t, err)

	balance := env.store.Wallet("user-1").Balance
	assert.True(t, balance.Equal(d("15000")), "balance %s", balance)
	assert.True(t, domain.LedgerBalance(env.store.Transactions(w.ID)).Equal(balance))

	audit, err := env.wallets.Audit(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.True(t, audit.LedgerSum.Equal(balance))
}

func TestAudit_ReportsMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.AddWallet("user-1", d("100"))
	env.store.SetWalletBalance("user-1", d("120"))

	audit, err := env.wallets.Audit(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, audit.Consistent)
	assert.True(t, audit.Balance.Equal(d("120")))
	assert.True(t, audit.LedgerSum.Equal(d("100")))
}

func TestReconcile_ReturnsMismatchError(t *testing.T) {
	env := newTestEnv(t)

	env.store.AddWallet("user-1", d("100"))
	env.store.SetWalletBalance("user-1", d("90"))

	err := env.store.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		audit, err := env.ledger.Reconcile(ctx, tx, "user-1")
		require.NotNil(t, audit)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrLedgerMismatch)
}

func TestTransactionHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.store.AddWallet("user-1", d("100"))
	for _, amount := range []string{"1", "2", "3"} {
		_, err := env.wallets.Deposit(ctx, "user-1", d(amount), "")
		require.NoError(t, err)
	}

	all, err := env.wallets.TransactionHistory(ctx, "user-1", domain.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].Amount.Equal(d("3")), "newest first")

	page, err := env.wallets.TransactionHistory(ctx, "user-1", domain.TransactionFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].Amount.Equal(d("2")))

	debits, err := env.wallets.TransactionHistory(ctx, "user-1", domain.TransactionFilter{Type: domain.TransactionDebit})
	require.NoError(t, err)
	assert.Empty(t, debits)

	_, err = env.wallets.TransactionHistory(ctx, "user-1", domain.TransactionFilter{Type: "refund"})
	assert.ErrorIs(t, err, domain.ErrInvalidTransactionType)
}

func TestWalletLedger_Debit(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddWallet("user-1", d("50"))

	err := env.store.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		_, err := env.ledger.Debit(ctx, tx, "user-1", d("50.01"), "too much")
		return err
	})
	var fundsErr *domain.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, "insufficient funds: required 50.01, available 50.00", fundsErr.Error())

	err = env.store.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		w, err := env.ledger.Debit(ctx, tx, "user-1", d("50"), "all of it")
		if err == nil {
			assert.True(t, w.Balance.IsZero())
		}
		return err
	})
	require.NoError(t, err)
	assert.True(t, env.store.Wallet("user-1").Balance.IsZero())
}
