package testutil

import (
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// memTx operates on the store state while RunInTx holds the store lock.
type memTx struct {
	s *state
}

func (t *memTx) LockProducts(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := t.s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (t *memTx) DecrementStock(_ context.Context, productID string, quantity int) (bool, error) {
	p, ok := t.s.products[productID]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = p
	return true, nil
}

func (t *memTx) IncrementStock(_ context.Context, productID string, quantity int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = p
	return nil
}

func (t *memTx) SetStock(_ context.Context, productID string, stock int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock = stock
	p.Version++
	p.UpdatedAt = time.Now().UTC()
	t.s.products[productID] = p
	return nil
}

func (t *memTx) InsertWallet(_ context.Context, w *domain.Wallet) error {
	if _, ok := t.s.wallets[w.UserID]; ok {
		return domain.ErrWalletExists
	}
	t.s.wallets[w.UserID] = *w
	return nil
}

func (t *memTx) LockWallet(_ context.Context, userID string) (*domain.Wallet, error) {
	w, ok := t.s.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return &w, nil
}

func (t *memTx) UpdateWalletBalance(_ context.Context, walletID string, balance decimal.Decimal) error {
	for userID, w := range t.s.wallets {
		if w.ID == walletID {
			w.Balance = balance
			w.UpdatedAt = time.Now().UTC()
			t.s.wallets[userID] = w
			return nil
		}
	}
	return domain.ErrWalletNotFound
}

func (t *memTx) InsertWalletTransaction(_ context.Context, e *domain.WalletTransaction) error {
	t.s.txns = append(t.s.txns, *e)
	return nil
}

func (t *memTx) SumWalletTransactions(_ context.Context, walletID string) (decimal.Decimal, error) {
	var entries []domain.WalletTransaction
	for _, e := range t.s.txns {
		if e.WalletID == walletID {
			entries = append(entries, e)
		}
	}
	return domain.LedgerBalance(entries), nil
}

func (t *memTx) InsertOrder(_ context.Context, o *domain.Order) error {
	stored := *o
	stored.Items = slices.Clone(o.Items)
	for i := range stored.Items {
		stored.Items[i].OrderID = o.ID
	}
	t.s.orders[o.ID] = stored
	return nil
}

func (t *memTx) LockOrder(_ context.Context, orderID, userID string) (*domain.Order, error) {
	return t.s.order(orderID, userID)
}

func (t *memTx) UpdateOrderStatus(_ context.Context, orderID string, status domain.OrderStatus) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
	t.s.orders[orderID] = o
	return nil
}

func (t *memTx) SetPaymentMethod(_ context.Context, orderID string, method domain.PaymentMethod) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.PaymentMethod = method
	t.s.orders[orderID] = o
	return nil
}

func (t *memTx) CartLines(_ context.Context, userID string) ([]domain.CartLine, error) {
	return t.s.cartLines(userID), nil
}

func (t *memTx) ClearCart(_ context.Context, userID string) (int64, error) {
	return t.s.clearCart(userID), nil
}

func (t *memTx) EnqueueEvent(_ context.Context, e *domain.OutboxEvent) error {
	t.s.nextID++
	e.ID = t.s.nextID
	t.s.outbox = append(t.s.outbox, *e)
	return nil
}

func (t *memTx) ClaimPendingEvents(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	var out []domain.OutboxEvent
	for _, e := range t.s.outbox {
		if e.PublishedAt == nil && e.Attempts < 10 {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (t *memTx) MarkEventPublished(_ context.Context, eventID int64) error {
	for i := range t.s.outbox {
		if t.s.outbox[i].ID == eventID {
			now := time.Now().UTC()
			t.s.outbox[i].PublishedAt = &now
			t.s.outbox[i].Attempts++
		}
	}
	return nil
}

func (t *memTx) MarkEventFailed(_ context.Context, eventID int64, reason string) error {
	for i := range t.s.outbox {
		if t.s.outbox[i].ID == eventID {
			t.s.outbox[i].Attempts++
			t.s.outbox[i].LastError = &reason
		}
	}
	return nil
}
