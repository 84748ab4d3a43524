package service

import (
	"context"
	"fmt"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// Inventory changes product stock. Every method runs inside the caller's
// transaction so stock never diverges from the order that moved it.
type Inventory struct{}

func NewInventory() *Inventory {
	return &Inventory{}
}

// Reserve takes quantity units of a product whose row the caller has already
// locked. It fails with *domain.InsufficientStockError when the stock would go
// negative.
func (i *Inventory) Reserve(ctx context.Context, tx port.InventoryTx, product domain.Product, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	ok, err := tx.DecrementStock(ctx, product.ID, quantity)
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", product.ID, err)
	}
	if !ok {
		return &domain.InsufficientStockError{
			ProductID: product.ID,
			Product:   product.Name,
			Requested: quantity,
			Available: product.Stock,
		}
	}
	return nil
}

// Release puts quantity units back. Used by cancellation.
func (i *Inventory) Release(ctx context.Context, tx port.InventoryTx, productID string, quantity int) error {
	if quantity <= 0 {
		return domain.ErrInvalidQuantity
	}
	if err := tx.IncrementStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("release stock for %s: %w", productID, err)
	}
	return nil
}

func (i *Inventory) Restock(ctx context.Context, tx port.InventoryTx, productID string, stock int) error {
	if stock < 0 {
		return domain.ErrInvalidQuantity
	}
	if err := tx.SetStock(ctx, productID, stock); err != nil {
		return fmt.Errorf("restock %s: %w", productID, err)
	}
	return nil
}
