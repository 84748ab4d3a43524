package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// CartService manages cart lines. Stock checks here are advisory; checkout
// re-checks under row locks.
type CartService struct {
	store port.LedgerStore
}

func NewCartService(store port.LedgerStore) *CartService {
	return &CartService{store: store}
}

func (s *CartService) GetCart(ctx context.Context, userID string) ([]domain.CartLine, error) {
	return s.store.GetCart(ctx, userID)
}

func (s *CartService) CartTotal(ctx context.Context, userID string) (*domain.CartSummary, error) {
	lines, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &domain.CartSummary{Total: decimal.Zero}
	for _, l := range lines {
		summary.Total = summary.Total.Add(l.Subtotal())
		summary.ItemCount += l.Quantity
	}
	return summary, nil
}

// AddItem adds quantity to the user's line for the product, creating it when
// absent.
func (s *CartService) AddItem(ctx context.Context, userID, productID string, quantity int) (*domain.CartLine, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	existing, err := s.store.GetCartLine(ctx, userID, productID)
	if err != nil {
		return nil, err
	}

	line := domain.CartLine{ID: uuid.NewString(), UserID: userID, ProductID: productID}
	if existing != nil {
		line = *existing
	}
	return s.put(ctx, line, line.Quantity+quantity)
}

// UpdateQuantity overwrites the quantity of an existing line. A quantity of
// zero or less removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, userID, productID string, quantity int) (*domain.CartLine, error) {
	if quantity <= 0 {
		return nil, s.RemoveItem(ctx, userID, productID)
	}

	existing, err := s.store.GetCartLine(ctx, userID, productID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrCartItemNotFound
	}
	return s.put(ctx, *existing, quantity)
}

func (s *CartService) put(ctx context.Context, line domain.CartLine, quantity int) (*domain.CartLine, error) {
	p, err := s.store.GetProduct(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if quantity > p.Stock {
		return nil, &domain.InsufficientStockError{
			ProductID: p.ID,
			Product:   p.Name,
			Requested: quantity,
			Available: p.Stock,
		}
	}

	now := time.Now().UTC()
	if line.CreatedAt.IsZero() {
		line.CreatedAt = now
	}
	line.Quantity = quantity
	line.UpdatedAt = now
	if err := s.store.SetCartQuantity(ctx, line); err != nil {
		return nil, err
	}

	line.ProductName, line.Price, line.Stock = p.Name, p.Price, p.Stock
	return &line, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID string) error {
	removed, err := s.store.DeleteCartLine(ctx, userID, productID)
	if err != nil {
		return err
	}
	if !removed {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (s *CartService) Clear(ctx context.Context, userID string) (int64, error) {
	return s.store.ClearCart(ctx, userID)
}

// Validate lists the lines that ask for more than the current stock.
func (s *CartService) Validate(ctx context.Context, userID string) ([]domain.CartProblem, error) {
	lines, err := s.store.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	problems := []domain.CartProblem{}
	for _, l := range lines {
		if l.Quantity > l.Stock {
			problems = append(problems, domain.CartProblem{
				ProductID: l.ProductID,
				Product:   l.ProductName,
				Requested: l.Quantity,
				Available: l.Stock,
			})
		}
	}
	return problems, nil
}
