package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest value a DECIMAL(14,2) money column holds.
var MaxAmount = decimal.RequireFromString("999999999999.99")

// ValidateAmount accepts positive amounts with at most two decimal places that
// fit a money column. Amounts are never rounded.
func ValidateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return ErrInvalidAmount
	case !amount.Equal(amount.Truncate(2)):
		return &InvalidAmountError{Amount: amount, Reason: "at most 2 decimal places allowed"}
	case amount.GreaterThan(MaxAmount):
		return &InvalidAmountError{Amount: amount, Reason: "exceeds " + MaxAmount.String()}
	}
	return nil
}

type Wallet struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

func (t TransactionType) Valid() bool {
	return t == TransactionCredit || t == TransactionDebit
}

// WalletTransaction is an immutable ledger entry. Amount is always positive;
// Type carries the sign.
type WalletTransaction struct {
	ID          string          `json:"id"`
	WalletID    string          `json:"wallet_id"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (t WalletTransaction) Signed() decimal.Decimal {
	if t.Type == TransactionDebit {
		return t.Amount.Neg()
	}
	return t.Amount
}

// LedgerBalance replays entries from a zero balance.
func LedgerBalance(entries []WalletTransaction) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Signed())
	}
	return sum
}

type TransactionFilter struct {
	Type   TransactionType
	Limit  int
	Offset int
}

type WalletAudit struct {
	WalletID   string          `json:"wallet_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
	CheckedAt  time.Time       `json:"checked_at"`
}
