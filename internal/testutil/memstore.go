// Package testutil holds in-memory stand-ins for the MySQL, Redis and Kafka
// adapters used by service and handler tests.
package testutil

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// MemStore is a port.LedgerStore kept in maps. A single mutex is held for the
// whole of RunInTx, so transactions are serialised the way row locks would
// serialise them on the same rows, and a failed transaction restores a
// snapshot taken when it began.
type MemStore struct {
	mu sync.Mutex
	state

	// FailNext, when set, is returned by the next RunInTx instead of
	// committing. Writes made by the callback are rolled back.
	FailNext error
}

type state struct {
	products map[string]domain.Product
	cart     map[string]domain.CartLine // key: user|product
	orders   map[string]domain.Order
	wallets  map[string]domain.Wallet // key: user id
	txns     []domain.WalletTransaction
	outbox   []domain.OutboxEvent
	nextID   int64
}

var _ port.LedgerStore = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{state: state{
		products: map[string]domain.Product{},
		cart:     map[string]domain.CartLine{},
		orders:   map[string]domain.Order{},
		wallets:  map[string]domain.Wallet{},
	}}
}

func (s *state) clone() state {
	c := state{
		products: make(map[string]domain.Product, len(s.products)),
		cart:     make(map[string]domain.CartLine, len(s.cart)),
		orders:   make(map[string]domain.Order, len(s.orders)),
		wallets:  make(map[string]domain.Wallet, len(s.wallets)),
		txns:     slices.Clone(s.txns),
		outbox:   slices.Clone(s.outbox),
		nextID:   s.nextID,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = v
	}
	for k, v := range s.orders {
		v.Items = slices.Clone(v.Items)
		c.orders[k] = v
	}
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	return c
}

func cartKey(userID, productID string) string { return userID + "|" + productID }

func (s *MemStore) Ping(context.Context) error { return nil }

func (s *MemStore) RunInTx(ctx context.Context, fn port.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snapshot := s.state.clone()
	err := fn(ctx, &memTx{s: &s.state})
	if err == nil && s.FailNext != nil {
		err, s.FailNext = s.FailNext, nil
	}
	if err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Seeding and inspection helpers. They take the store lock and must not be
// called from inside a RunInTx callback.

func (s *MemStore) AddProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Code == "" {
		p.Code = p.ID
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	s.products[p.ID] = p
	return p
}

// AddWallet opens a wallet holding balance, backed by one credit entry so the
// ledger stays consistent.
func (s *MemStore) AddWallet(userID string, balance decimal.Decimal) domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	w := domain.Wallet{ID: uuid.NewString(), UserID: userID, Balance: balance, CreatedAt: now, UpdatedAt: now}
	s.wallets[userID] = w
	if balance.IsPositive() {
		s.txns = append(s.txns, domain.WalletTransaction{
			ID: uuid.NewString(), WalletID: w.ID, Amount: balance,
			Type: domain.TransactionCredit, Description: "Opening balance", CreatedAt: now,
		})
	}
	return w
}

// SetWalletBalance overwrites the balance without a ledger entry.
func (s *MemStore) SetWalletBalance(userID string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.wallets[userID]
	w.Balance = balance
	s.wallets[userID] = w
}

func (s *MemStore) AddCartLine(userID, productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	s.cart[cartKey(userID, productID)] = domain.CartLine{
		ID: uuid.NewString(), UserID: userID, ProductID: productID,
		Quantity: quantity, CreatedAt: now, UpdatedAt: now,
	}
}

func (s *MemStore) Product(id string) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id]
}

func (s *MemStore) Wallet(userID string) domain.Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wallets[userID]
}

func (s *MemStore) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *MemStore) CartSize(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cartLines(userID))
}

// Transactions returns the ledger of a wallet, oldest first.
func (s *MemStore) Transactions(walletID string) []domain.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WalletTransaction
	for _, t := range s.txns {
		if t.WalletID == walletID {
			out = append(out, t)
		}
	}
	return out
}

func (s *MemStore) Events() []domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.outbox)
}

func (s *state) cartLines(userID string) []domain.CartLine {
	var out []domain.CartLine
	for _, l := range s.cart {
		if l.UserID != userID {
			continue
		}
		p, ok := s.products[l.ProductID]
		if !ok {
			continue
		}
		l.ProductName, l.Price, l.Stock = p.Name, p.Price, p.Stock
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *state) clearCart(userID string) int64 {
	var n int64
	for k, l := range s.cart {
		if l.UserID == userID {
			delete(s.cart, k)
			n++
		}
	}
	return n
}

func (s *state) order(orderID, userID string) (*domain.Order, error) {
	o, ok := s.orders[orderID]
	if !ok || (userID != "" && o.UserID != userID) {
		return nil, domain.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return &o, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *MemStore) GetProduct(_ context.Context, productID string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

func (s *MemStore) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Product
	for _, p := range s.products {
		if filter.Category == "" || p.Category == filter.Category {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *MemStore) CreateProduct(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if existing.Code == p.Code {
			return domain.ErrDuplicateProduct
		}
	}
	s.products[p.ID] = *p
	return nil
}

func (s *MemStore) GetCart(_ context.Context, userID string) ([]domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartLines(userID), nil
}

func (s *MemStore) GetCartLine(_ context.Context, userID, productID string) (*domain.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.cartLines(userID) {
		if l.ProductID == productID {
			return &l, nil
		}
	}
	return nil, nil
}

func (s *MemStore) SetCartQuantity(_ context.Context, line domain.CartLine) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[line.ProductID]; !ok {
		return domain.ErrProductNotFound
	}
	key := cartKey(line.UserID, line.ProductID)
	if existing, ok := s.cart[key]; ok {
		existing.Quantity = line.Quantity
		existing.UpdatedAt = line.UpdatedAt
		s.cart[key] = existing
		return nil
	}
	s.cart[key] = line
	return nil
}

func (s *MemStore) DeleteCartLine(_ context.Context, userID, productID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := cartKey(userID, productID)
	if _, ok := s.cart[key]; !ok {
		return false, nil
	}
	delete(s.cart, key)
	return true, nil
}

func (s *MemStore) ClearCart(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearCart(userID), nil
}

func (s *MemStore) GetOrder(_ context.Context, orderID, userID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order(orderID, userID)
}

func (s *MemStore) ListOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		o.Items = slices.Clone(o.Items)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *MemStore) OrderStats(_ context.Context, userID string) ([]domain.OrderStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byStatus := map[domain.OrderStatus]*domain.OrderStat{}
	for _, o := range s.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		st, ok := byStatus[o.Status]
		if !ok {
			st = &domain.OrderStat{Status: o.Status, Revenue: decimal.Zero}
			byStatus[o.Status] = st
		}
		st.Count++
		st.Revenue = st.Revenue.Add(o.TotalAmount)
	}

	out := make([]domain.OrderStat, 0, len(byStatus))
	for _, st := range byStatus {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Status < out[j].Status })
	return out, nil
}

func (s *MemStore) GetWallet(_ context.Context, userID string) (*domain.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.wallets[userID]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	return &w, nil
}

func (s *MemStore) ListWalletTransactions(_ context.Context, walletID string, filter domain.TransactionFilter) ([]domain.WalletTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.WalletTransaction
	for i := len(s.txns) - 1; i >= 0; i-- {
		t := s.txns[i]
		if t.WalletID != walletID {
			continue
		}
		if filter.Type != "" && t.Type != filter.Type {
			continue
		}
		out = append(out, t)
	}
	return page(out, filter.Limit, filter.Offset), nil
}
