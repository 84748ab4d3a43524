package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/metrics"
	"github.com/rl1809/storefront/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

type CheckoutRequest struct {
	PaymentMethod   domain.PaymentMethod
	ShippingAddress string
	PhoneNumber     string

	// IdempotencyKey is optional. When set, a second checkout with the same
	// key from the same user fails with ErrDuplicateRequest.
	IdempotencyKey string
}

type OrderServiceConfig struct {
	OrderTopic string
	TxTimeout  time.Duration
}

type OrderService struct {
	store     port.LedgerStore
	cache     port.CacheRepository
	inventory *Inventory
	ledger    *WalletLedger
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       OrderServiceConfig
}

func NewOrderService(
	store port.LedgerStore,
	cache port.CacheRepository,
	inventory *Inventory,
	ledger *WalletLedger,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg OrderServiceConfig,
) *OrderService {
	return &OrderService{
		store:     store,
		cache:     cache,
		inventory: inventory,
		ledger:    ledger,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// CreateOrder turns the user's cart into an order in one transaction: stock
// is reserved, the wallet is debited when paying by wallet, and the cart is
// emptied. Any failure leaves every table as it was.
func (s *OrderService) CreateOrder(ctx context.Context, userID string, req CheckoutRequest) (order *domain.Order, err error) {
	defer func() { s.observe("create", err) }()

	method, err := domain.ParsePaymentMethod(string(req.PaymentMethod))
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		key := fmt.Sprintf("checkout:%s:%s", userID, req.IdempotencyKey)

		claimed, claimErr := s.cache.SetIdempotency(ctx, key)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !claimed {
			return nil, ErrDuplicateRequest
		}

		defer func() {
			if err == nil {
				return
			}
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), key); releaseErr != nil {
				s.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(releaseErr))
			}
		}()
	}

	now := time.Now().UTC()
	order = &domain.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		PaymentMethod:   method,
		ShippingAddress: req.ShippingAddress,
		PhoneNumber:     req.PhoneNumber,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var productIDs []string
	err = runInTx(ctx, s.store, s.cfg.TxTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		lines, err := tx.CartLines(ctx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.ErrEmptyCart
		}

		productIDs = make([]string, 0, len(lines))
		for _, l := range lines {
			productIDs = append(productIDs, l.ProductID)
		}
		slices.Sort(productIDs)

		locked, err := tx.LockProducts(ctx, productIDs)
		if err != nil {
			return err
		}

		total := decimal.Zero
		items := make([]domain.OrderItem, 0, len(lines))
		for _, l := range lines {
			p, ok := locked[l.ProductID]
			if !ok {
				return domain.ErrProductNotFound
			}
			if p.Stock < l.Quantity {
				return &domain.InsufficientStockError{
					ProductID: p.ID,
					Product:   p.Name,
					Requested: l.Quantity,
					Available: p.Stock,
				}
			}

			subtotal := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			items = append(items, domain.OrderItem{
				ID:          uuid.NewString(),
				OrderID:     order.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    l.Quantity,
				Price:       p.Price,
				Subtotal:    subtotal,
				CreatedAt:   now,
			})
			total = total.Add(subtotal)
		}
		order.Items = items
		order.TotalAmount = total

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		for _, it := range items {
			if err := s.inventory.Reserve(ctx, tx, locked[it.ProductID], it.Quantity); err != nil {
				return err
			}
		}

		if err := s.enqueue(ctx, tx, order, domain.EventOrderCreated, now); err != nil {
			return err
		}

		if method == domain.PaymentMethodWallet {
			if _, err := s.ledger.Debit(ctx, tx, userID, total, "Payment for order "+order.ID); err != nil {
				return err
			}
			if err := tx.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPaid); err != nil {
				return err
			}
			order.Status = domain.OrderStatusPaid
			if err := s.enqueue(ctx, tx, order, domain.EventOrderPaid, now); err != nil {
				return err
			}
		}

		_, err = tx.ClearCart(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProducts(ctx, productIDs)

	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.String("status", string(order.Status)),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	return order, nil
}

// PayWithWallet settles a pending order from the owner's wallet.
func (s *OrderService) PayWithWallet(ctx context.Context, orderID, userID string) (order *domain.Order, err error) {
	defer func() { s.observe("pay", err) }()

	err = runInTx(ctx, s.store, s.cfg.TxTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		o, err := tx.LockOrder(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusPending {
			return &domain.InvalidTransitionError{Current: o.Status, Target: domain.OrderStatusPaid}
		}

		if _, err := s.ledger.Debit(ctx, tx, o.UserID, o.TotalAmount, "Payment for order "+o.ID); err != nil {
			return err
		}
		if o.PaymentMethod != domain.PaymentMethodWallet {
			if err := tx.SetPaymentMethod(ctx, o.ID, domain.PaymentMethodWallet); err != nil {
				return err
			}
			o.PaymentMethod = domain.PaymentMethodWallet
		}
		if err := tx.UpdateOrderStatus(ctx, o.ID, domain.OrderStatusPaid); err != nil {
			return err
		}

		now := time.Now().UTC()
		o.Status = domain.OrderStatusPaid
		o.UpdatedAt = now
		order = o
		return s.enqueue(ctx, tx, o, domain.EventOrderPaid, now)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder is the compensating transaction of CreateOrder: stock goes back
// and a wallet-settled total is credited back to the owner.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, userID string) (order *domain.Order, err error) {
	defer func() { s.observe("cancel", err) }()

	err = runInTx(ctx, s.store, s.cfg.TxTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		o, err := tx.LockOrder(ctx, orderID, userID)
		if err != nil {
			return err
		}
		if err := s.cancelLocked(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateProducts(ctx, itemProductIDs(order))
	return order, nil
}

// UpdateOrderStatus is the admin status change. It follows the order state
// machine; moving to cancelled compensates exactly like CancelOrder.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, status string) (order *domain.Order, err error) {
	defer func() { s.observe("update_status", err) }()

	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	err = runInTx(ctx, s.store, s.cfg.TxTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		o, err := tx.LockOrder(ctx, orderID, "")
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(target) {
			return &domain.InvalidTransitionError{Current: o.Status, Target: target}
		}

		if target == domain.OrderStatusCancelled {
			if err := s.cancelLocked(ctx, tx, o); err != nil {
				return err
			}
			order = o
			return nil
		}

		if err := tx.UpdateOrderStatus(ctx, o.ID, target); err != nil {
			return err
		}
		now := time.Now().UTC()
		o.Status = target
		o.UpdatedAt = now
		order = o
		return s.enqueue(ctx, tx, o, domain.EventOrderStatusChanged, now)
	})
	if err != nil {
		return nil, err
	}

	if order.Status == domain.OrderStatusCancelled {
		s.invalidateProducts(ctx, itemProductIDs(order))
	}
	return order, nil
}

// cancelLocked runs the cancellation writes on an order whose row is already
// locked by tx, and updates o in place.
func (s *OrderService) cancelLocked(ctx context.Context, tx port.LedgerTx, o *domain.Order) error {
	if o.Status.Terminal() {
		return &domain.InvalidTransitionError{Current: o.Status, Target: domain.OrderStatusCancelled}
	}

	ids := itemProductIDs(o)
	if _, err := tx.LockProducts(ctx, ids); err != nil {
		return err
	}
	for _, it := range o.Items {
		if err := s.inventory.Release(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}

	if o.WalletSettled() {
		if _, err := s.ledger.Credit(ctx, tx, o.UserID, o.TotalAmount, "Refund for cancelled order "+o.ID); err != nil {
			return err
		}
	}

	if err := tx.UpdateOrderStatus(ctx, o.ID, domain.OrderStatusCancelled); err != nil {
		return err
	}

	now := time.Now().UTC()
	o.Status = domain.OrderStatusCancelled
	o.UpdatedAt = now
	return s.enqueue(ctx, tx, o, domain.EventOrderCancelled, now)
}

func (s *OrderService) GetOrder(ctx context.Context, orderID, userID string) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID, userID)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.UserID = userID
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset, 20, 100)
	return s.store.ListOrders(ctx, filter)
}

func (s *OrderService) ListAllOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset, 50, 200)
	return s.store.ListOrders(ctx, filter)
}

// OrderStats groups orders by status. An empty userID covers every user.
func (s *OrderService) OrderStats(ctx context.Context, userID string) ([]domain.OrderStat, error) {
	return s.store.OrderStats(ctx, userID)
}

func (s *OrderService) enqueue(ctx context.Context, tx port.OutboxTx, o *domain.Order, eventType string, at time.Time) error {
	payload, err := json.Marshal(domain.OrderEvent{
		Type:        eventType,
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      o.Status,
		TotalAmount: o.TotalAmount,
		OccurredAt:  at,
	})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}

	return tx.EnqueueEvent(ctx, &domain.OutboxEvent{
		AggregateType: "order",
		AggregateID:   o.ID,
		EventType:     eventType,
		Topic:         s.cfg.OrderTopic,
		Payload:       payload,
		CreatedAt:     at,
	})
}

// invalidateProducts drops cached stock after a commit. Failures only cost a
// stale read until the entry expires.
func (s *OrderService) invalidateProducts(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}
	if err := s.cache.InvalidateProducts(ctx, ids...); err != nil {
		s.logger.Warn("failed to invalidate product cache", zap.Strings("product_ids", ids), zap.Error(err))
	}
}

func (s *OrderService) observe(operation string, err error) {
	s.metrics.Checkouts.WithLabelValues(operation, metrics.Outcome(err)).Inc()
}

func itemProductIDs(o *domain.Order) []string {
	ids := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.ProductID)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
