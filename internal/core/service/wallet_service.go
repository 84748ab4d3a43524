package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type WalletService struct {
	store     port.LedgerStore
	ledger    *WalletLedger
	logger    *zap.Logger
	txTimeout time.Duration
}

func NewWalletService(store port.LedgerStore, ledger *WalletLedger, logger *zap.Logger, txTimeout time.Duration) *WalletService {
	return &WalletService{store: store, ledger: ledger, logger: logger, txTimeout: txTimeout}
}

// OpenWallet creates an empty wallet for userID, or returns the existing one.
func (s *WalletService) OpenWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	now := time.Now().UTC()
	w := &domain.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		Balance:   decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := runInTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		return tx.InsertWallet(ctx, w)
	})
	if errors.Is(err, domain.ErrWalletExists) {
		return s.store.GetWallet(ctx, userID)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info("wallet opened", zap.String("user_id", userID), zap.String("wallet_id", w.ID))
	return w, nil
}

func (s *WalletService) GetWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	return s.store.GetWallet(ctx, userID)
}

func (s *WalletService) Deposit(ctx context.Context, userID string, amount decimal.Decimal, description string) (*domain.Wallet, error) {
	if err := domain.ValidateAmount(amount); err != nil {
		return nil, err
	}
	if description == "" {
		description = "Deposit: +" + amount.StringFixed(2)
	}

	var wallet *domain.Wallet
	err := runInTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		w, err := s.ledger.Credit(ctx, tx, userID, amount, description)
		wallet = w
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// TransactionHistory lists ledger entries newest first.
func (s *WalletService) TransactionHistory(ctx context.Context, userID string, filter domain.TransactionFilter) ([]domain.WalletTransaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, domain.ErrInvalidTransactionType
	}

	w, err := s.store.GetWallet(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset, 50, 200)
	return s.store.ListWalletTransactions(ctx, w.ID, filter)
}

// Audit reports whether the stored balance matches the ledger. A mismatch is
// logged and returned as an inconsistent audit, not as an error.
func (s *WalletService) Audit(ctx context.Context, userID string) (*domain.WalletAudit, error) {
	var audit *domain.WalletAudit
	err := runInTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		audit, err = s.ledger.Reconcile(ctx, tx, userID)
		return err
	})
	if errors.Is(err, domain.ErrLedgerMismatch) && audit != nil {
		s.logger.Error("wallet ledger mismatch",
			zap.String("user_id", userID),
			zap.String("wallet_id", audit.WalletID),
			zap.String("balance", audit.Balance.StringFixed(2)),
			zap.String("ledger_sum", audit.LedgerSum.StringFixed(2)),
		)
		return audit, nil
	}
	if err != nil {
		return nil, err
	}
	return audit, nil
}
