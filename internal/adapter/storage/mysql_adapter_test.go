package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

func newMockAdapter(t *testing.T) (*MySQLAdapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewMySQLAdapter(db), mock
}

func TestRunInTx_CommitsOnSuccess(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET stock = stock - \?`).
		WithArgs(2, "p1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var decremented bool
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		decremented, err = tx.DecrementStock(ctx, "p1", 2)
		return err
	})

	require.NoError(t, err)
	assert.True(t, decremented)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_RollsBackOnError(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET stock = stock \+ \?`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		if err := tx.IncrementStock(ctx, "p1", 1); err != nil {
			return err
		}
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTx_DeadlockIsRetryable(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET stock = stock - \?`).
		WillReturnError(&mysql.MySQLError{Number: errDeadlock, Message: "Deadlock found"})
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		_, err := tx.DecrementStock(ctx, "p1", 1)
		return err
	})

	assert.ErrorIs(t, err, domain.ErrRetryable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDecrementStock_NotEnough(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET stock = stock - \?`).
		WithArgs(10, "p1", 10).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	var decremented bool
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		decremented, err = tx.DecrementStock(ctx, "p1", 10)
		return err
	})

	require.NoError(t, err)
	assert.False(t, decremented)
}

func TestLockProducts_SortedAndDeduplicated(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	cols := []string{"id", "category", "name", "code", "price", "stock", "version", "created_at", "updated_at"}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM products WHERE id IN \(\?, \?\) ORDER BY id FOR UPDATE`).
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("a", "tools", "Hammer", "H-1", "9.99", 3, 1, now, now).
			AddRow("b", "tools", "Saw", "S-1", "19.50", 0, 4, now, now))
	mock.ExpectCommit()

	var locked map[string]domain.Product
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		locked, err = tx.LockProducts(ctx, []string{"b", "a", "b"})
		return err
	})

	require.NoError(t, err)
	require.Len(t, locked, 2)
	assert.True(t, locked["b"].Price.Equal(decimal.RequireFromString("19.50")))
	assert.Equal(t, 3, locked["a"].Stock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockWallet_NotFound(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM wallets WHERE user_id = \? FOR UPDATE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "balance", "created_at", "updated_at"}))
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		_, err := tx.LockWallet(ctx, "u1")
		return err
	})

	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestInsertWallet_Duplicate(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO wallets`).
		WillReturnError(&mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"})
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		return tx.InsertWallet(ctx, &domain.Wallet{ID: "w1", UserID: "u1"})
	})

	assert.ErrorIs(t, err, domain.ErrWalletExists)
}

func TestSumWalletTransactions(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SUM\(CASE WHEN type = 'credit'`).
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow("75.00"))
	mock.ExpectCommit()

	var sum decimal.Decimal
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		sum, err = tx.SumWalletTransactions(ctx, "w1")
		return err
	})

	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(75)))
}

func TestCreateProduct_DuplicateCode(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(`INSERT INTO products`).
		WillReturnError(&mysql.MySQLError{Number: errDuplicateEntry, Message: "Duplicate entry"})

	err := adapter.CreateProduct(context.Background(), &domain.Product{ID: "p1", Code: "X"})
	assert.ErrorIs(t, err, domain.ErrDuplicateProduct)
}

func TestSetCartQuantity_UnknownProduct(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectExec(`INSERT INTO cart_items`).
		WillReturnError(&mysql.MySQLError{Number: errForeignKeyMissing, Message: "foreign key"})

	err := adapter.SetCartQuantity(context.Background(), domain.CartLine{ID: "c1", UserID: "u1", ProductID: "nope", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestGetCartLine_Missing(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(`FROM cart_items ci`).
		WithArgs("u1", "p1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	line, err := adapter.GetCartLine(context.Background(), "u1", "p1")
	require.NoError(t, err)
	assert.Nil(t, line)
}

func TestCartLines_LocksCartRowsInTx(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	cols := []string{"id", "user_id", "product_id", "quantity", "created_at", "updated_at", "name", "price", "stock"}
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM cart_items ci .* FOR UPDATE OF ci$`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", "u1", "p1", 2, now, now, "Hammer", "9.99", 5))
	mock.ExpectCommit()

	var lines []domain.CartLine
	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		var err error
		lines, err = tx.CartLines(ctx, "u1")
		return err
	})

	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCart_PlainRead(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(`FROM cart_items ci .* ORDER BY ci.created_at DESC, ci.id$`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	lines, err := adapter.GetCart(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrder_LoadsItems(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectQuery(`FROM orders WHERE id = \? AND user_id = \?`).
		WithArgs("o1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "total_amount", "status", "payment_method",
			"shipping_address", "phone_number", "created_at", "updated_at"}).
			AddRow("o1", "u1", "25000.00", "paid", "wallet", "1 Main St", "555-0100", now, now))
	mock.ExpectQuery(`FROM order_items WHERE order_id IN \(\?\)`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "product_name", "quantity",
			"price", "subtotal", "created_at"}).
			AddRow("i1", "o1", "p1", "Laptop", 1, "20000.00", "20000.00", now).
			AddRow("i2", "o1", "p2", "Mouse", 2, "2500.00", "5000.00", now))

	order, err := adapter.GetOrder(context.Background(), "o1", "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	require.Len(t, order.Items, 2)
	assert.True(t, order.ItemsTotal().Equal(order.TotalAmount))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrder_NotOwned(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectQuery(`FROM orders WHERE id = \? AND user_id = \?`).
		WithArgs("o1", "intruder").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := adapter.GetOrder(context.Background(), "o1", "intruder")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestUpdateOrderStatus_Missing(t *testing.T) {
	adapter, mock := newMockAdapter(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE orders SET status = \?`).
		WithArgs(domain.OrderStatusCancelled, "o1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		return tx.UpdateOrderStatus(ctx, "o1", domain.OrderStatusCancelled)
	})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestClaimPendingEvents(t *testing.T) {
	adapter, mock := newMockAdapter(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM outbox_events WHERE published_at IS NULL AND attempts < \? ORDER BY id LIMIT \? FOR UPDATE SKIP LOCKED`).
		WithArgs(maxOutboxAttempts, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "aggregate_type", "aggregate_id", "event_type", "topic",
			"payload", "created_at", "attempts"}).
			AddRow(int64(7), "order", "o1", domain.EventOrderCreated, "orders.events", []byte(`{"order_id":"o1"}`), now, 0))
	mock.ExpectExec(`UPDATE outbox_events SET published_at = NOW\(6\)`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := adapter.RunInTx(context.Background(), func(ctx context.Context, tx port.LedgerTx) error {
		events, err := tx.ClaimPendingEvents(ctx, 5)
		if err != nil {
			return err
		}
		require.Len(t, events, 1)
		assert.JSONEq(t, `{"order_id":"o1"}`, string(events[0].Payload))
		return tx.MarkEventPublished(ctx, events[0].ID)
	})

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
