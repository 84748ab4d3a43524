package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// TxFunc runs inside one store transaction. Returning an error rolls back
// every write made through tx.
type TxFunc func(ctx context.Context, tx LedgerTx) error

type TxRunner interface {
	RunInTx(ctx context.Context, fn TxFunc) error
}

// LedgerTx is the set of writes and locking reads available inside a
// transaction. Lock* methods take a row lock held until commit or rollback.
type LedgerTx interface {
	InventoryTx
	WalletTx
	OrderTx
	CartTx
	OutboxTx
}

type InventoryTx interface {
	// LockProducts locks the given rows in ascending id order. Missing ids are
	// absent from the result.
	LockProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error)

	// DecrementStock subtracts quantity only if enough stock remains; false
	// means nothing was changed.
	DecrementStock(ctx context.Context, productID string, quantity int) (bool, error)

	IncrementStock(ctx context.Context, productID string, quantity int) error

	SetStock(ctx context.Context, productID string, stock int) error
}

type WalletTx interface {
	InsertWallet(ctx context.Context, wallet *domain.Wallet) error
	LockWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error
	InsertWalletTransaction(ctx context.Context, entry *domain.WalletTransaction) error
	SumWalletTransactions(ctx context.Context, walletID string) (decimal.Decimal, error)
}

type OrderTx interface {
	// InsertOrder persists the order row and all of its items.
	InsertOrder(ctx context.Context, order *domain.Order) error

	// LockOrder returns ErrOrderNotFound when the order does not exist or is
	// owned by someone else. An empty userID skips the ownership check.
	LockOrder(ctx context.Context, orderID, userID string) (*domain.Order, error)

	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error
	SetPaymentMethod(ctx context.Context, orderID string, method domain.PaymentMethod) error
}

type CartTx interface {
	CartLines(ctx context.Context, userID string) ([]domain.CartLine, error)
	ClearCart(ctx context.Context, userID string) (int64, error)
}

type OutboxTx interface {
	EnqueueEvent(ctx context.Context, event *domain.OutboxEvent) error
	ClaimPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkEventPublished(ctx context.Context, eventID int64) error
	MarkEventFailed(ctx context.Context, eventID int64, reason string) error
}

type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product *domain.Product) error
}

type CartRepository interface {
	GetCart(ctx context.Context, userID string) ([]domain.CartLine, error)
	GetCartLine(ctx context.Context, userID, productID string) (*domain.CartLine, error)

	// SetCartQuantity inserts the line or overwrites its quantity.
	SetCartQuantity(ctx context.Context, line domain.CartLine) error

	DeleteCartLine(ctx context.Context, userID, productID string) (bool, error)
	ClearCart(ctx context.Context, userID string) (int64, error)
}

type OrderRepository interface {
	// GetOrder loads the order with its items. An empty userID skips the
	// ownership check.
	GetOrder(ctx context.Context, orderID, userID string) (*domain.Order, error)
	ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)
	OrderStats(ctx context.Context, userID string) ([]domain.OrderStat, error)
}

type WalletRepository interface {
	GetWallet(ctx context.Context, userID string) (*domain.Wallet, error)
	ListWalletTransactions(ctx context.Context, walletID string, filter domain.TransactionFilter) ([]domain.WalletTransaction, error)
}

// LedgerStore is the full relational store.
type LedgerStore interface {
	TxRunner
	CatalogRepository
	CartRepository
	OrderRepository
	WalletRepository
	Ping(ctx context.Context) error
}
