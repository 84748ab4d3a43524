package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
)

// maxOutboxAttempts stops the relay from hammering the broker with an event
// it has failed to deliver this many times.
const maxOutboxAttempts = 10

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) LockProducts(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	ids := slices.Clone(productIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id
		FOR UPDATE`, args...)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (t *mysqlTx) DecrementStock(ctx context.Context, productID string, quantity int) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ? AND stock >= ?`,
		quantity, productID, quantity,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows == 1, nil
}

func (t *mysqlTx) IncrementStock(ctx context.Context, productID string, quantity int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (t *mysqlTx) SetStock(ctx context.Context, productID string, stock int) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ?`,
		stock, productID,
	)
	if err != nil {
		return fmt.Errorf("set stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (t *mysqlTx) InsertWallet(ctx context.Context, w *domain.Wallet) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Balance, w.CreatedAt, w.UpdatedAt,
	)
	if mysqlErrorNumber(err) == errDuplicateEntry {
		return domain.ErrWalletExists
	}
	if err != nil {
		return fmt.Errorf("insert wallet: %w", err)
	}
	return nil
}

func (t *mysqlTx) LockWallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, balance, created_at, updated_at
		FROM wallets WHERE user_id = ?
		FOR UPDATE`, userID,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock wallet: %w", err)
	}
	return &w, nil
}

func (t *mysqlTx) UpdateWalletBalance(ctx context.Context, walletID string, balance decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE wallets SET balance = ?, updated_at = NOW(6) WHERE id = ?`, balance, walletID)
	if err != nil {
		return fmt.Errorf("update wallet balance: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertWalletTransaction(ctx context.Context, e *domain.WalletTransaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, amount, type, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.WalletID, e.Amount, e.Type, e.Description, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert wallet transaction: %w", err)
	}
	return nil
}

func (t *mysqlTx) SumWalletTransactions(ctx context.Context, walletID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'credit' THEN amount ELSE -amount END), 0)
		FROM wallet_transactions
		WHERE wallet_id = ?`, walletID,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum wallet transactions: %w", err)
	}
	return sum, nil
}

func (t *mysqlTx) InsertOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, total_amount, status, payment_method, shipping_address, phone_number, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.UserID, o.TotalAmount, o.Status, o.PaymentMethod,
		o.ShippingAddress, o.PhoneNumber, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, it := range o.Items {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, subtotal, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, o.ID, it.ProductID, it.ProductName, it.Quantity, it.Price, it.Subtotal, it.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) LockOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	return queryOrder(ctx, t.tx, orderID, userID, true)
}

func (t *mysqlTx) UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = NOW(6) WHERE id = ?`, status, orderID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (t *mysqlTx) SetPaymentMethod(ctx context.Context, orderID string, method domain.PaymentMethod) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET payment_method = ?, updated_at = NOW(6) WHERE id = ?`, method, orderID)
	if err != nil {
		return fmt.Errorf("update payment method: %w", err)
	}
	return nil
}

func (t *mysqlTx) CartLines(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return queryCartLines(ctx, t.tx, userID, true)
}

func (t *mysqlTx) ClearCart(ctx context.Context, userID string) (int64, error) {
	return clearCart(ctx, t.tx, userID)
}

func (t *mysqlTx) EnqueueEvent(ctx context.Context, e *domain.OutboxEvent) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, topic, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.AggregateType, e.AggregateID, e.EventType, e.Topic, []byte(e.Payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

// ClaimPendingEvents locks unpublished rows with SKIP LOCKED so concurrent
// relays never pick the same event.
func (t *mysqlTx) ClaimPendingEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, topic, payload, created_at, attempts
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < ?
		ORDER BY id
		LIMIT ?
		FOR UPDATE SKIP LOCKED`, maxOutboxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox events: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Topic,
			&payload, &e.CreatedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}

func (t *mysqlTx) MarkEventPublished(ctx context.Context, eventID int64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE outbox_events SET published_at = NOW(6), attempts = attempts + 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox event published: %w", err)
	}
	return nil
}

func (t *mysqlTx) MarkEventFailed(ctx context.Context, eventID int64, reason string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`, reason, eventID)
	if err != nil {
		return fmt.Errorf("mark outbox event failed: %w", err)
	}
	return nil
}
