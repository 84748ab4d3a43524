package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

// WalletLedger moves money in and out of wallets. Each balance change is
// written together with its ledger entry in the caller's transaction, so the
// balance always equals the signed sum of the entries.
type WalletLedger struct {
	metrics *metrics.Metrics
}

func NewWalletLedger(m *metrics.Metrics) *WalletLedger {
	return &WalletLedger{metrics: m}
}

func (l *WalletLedger) Debit(ctx context.Context, tx port.WalletTx, userID string, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	w, err := l.apply(ctx, tx, userID, amount, domain.TransactionDebit, description)
	l.metrics.WalletOps.WithLabelValues(string(domain.TransactionDebit), metrics.Outcome(err)).Inc()
	return w, err
}

func (l *WalletLedger) Credit(ctx context.Context, tx port.WalletTx, userID string, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	w, err := l.apply(ctx, tx, userID, amount, domain.TransactionCredit, description)
	l.metrics.WalletOps.WithLabelValues(string(domain.TransactionCredit), metrics.Outcome(err)).Inc()
	return w, err
}

func (l *WalletLedger) apply(ctx context.Context, tx port.WalletTx, userID string, amount decimal.Decimal, typ domain.TransactionType, description string) (*domain.Wallet, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}

	w, err := tx.LockWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	balance := w.Balance.Add(amount)
	if typ == domain.TransactionCredit && balance.GreaterThan(domain.MaxAmount) {
		return nil, &domain.InvalidAmountError{Amount: amount, Reason: "balance would exceed " + domain.MaxAmount.String()}
	}
	if typ == domain.TransactionDebit {
		if w.Balance.LessThan(amount) {
			return nil, &domain.InsufficientFundsError{Required: amount, Available: w.Balance}
		}
		balance = w.Balance.Sub(amount)
	}

	if err := tx.UpdateWalletBalance(ctx, w.ID, balance); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := domain.WalletTransaction{
		ID:          uuid.NewString(),
		WalletID:    w.ID,
		Amount:      amount,
		Type:        typ,
		Description: description,
		CreatedAt:   now,
	}
	if err := tx.InsertWalletTransaction(ctx, &entry); err != nil {
		return nil, err
	}

	w.Balance = balance
	w.UpdatedAt = now
	return w, nil
}

// Reconcile compares the stored balance with the ledger sum. The audit is
// returned in both cases; a difference is reported as domain.ErrLedgerMismatch.
func (l *WalletLedger) Reconcile(ctx context.Context, tx port.WalletTx, userID string) (*domain.WalletAudit, error) {
	w, err := tx.LockWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	sum, err := tx.SumWalletTransactions(ctx, w.ID)
	if err != nil {
		return nil, err
	}

	audit := &domain.WalletAudit{
		WalletID:   w.ID,
		Balance:    w.Balance,
		LedgerSum:  sum,
		Consistent: w.Balance.Equal(sum),
		CheckedAt:  time.Now().UTC(),
	}
	if !audit.Consistent {
		return audit, fmt.Errorf("%w: balance %s, ledger %s", domain.ErrLedgerMismatch, w.Balance.StringFixed(2), sum.StringFixed(2))
	}
	return audit, nil
}
