package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

type NewProduct struct {
	Category string
	Name     string
	Code     string
	Price    decimal.Decimal
	Stock    int
}

type CatalogService struct {
	store     port.LedgerStore
	cache     port.CacheRepository
	inventory *Inventory
	logger    *zap.Logger
	txTimeout time.Duration
}

func NewCatalogService(store port.LedgerStore, cache port.CacheRepository, inventory *Inventory, logger *zap.Logger, txTimeout time.Duration) *CatalogService {
	return &CatalogService{store: store, cache: cache, inventory: inventory, logger: logger, txTimeout: txTimeout}
}

// GetProduct reads through the cache. Cache errors fall back to the store.
func (s *CatalogService) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	cached, err := s.cache.GetProduct(ctx, productID)
	if err != nil {
		s.logger.Warn("product cache read failed", zap.String("product_id", productID), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetProduct(ctx, p); err != nil {
		s.logger.Warn("product cache write failed", zap.String("product_id", productID), zap.Error(err))
	}
	return p, nil
}

func (s *CatalogService) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.Limit, filter.Offset = clampPage(filter.Limit, filter.Offset, 20, 100)
	return s.store.ListProducts(ctx, filter)
}

func (s *CatalogService) CreateProduct(ctx context.Context, in NewProduct) (*domain.Product, error) {
	if in.Price.IsNegative() {
		return nil, domain.ErrInvalidPrice
	}
	if in.Stock < 0 {
		return nil, domain.ErrInvalidQuantity
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:        uuid.NewString(),
		Category:  in.Category,
		Name:      in.Name,
		Code:      in.Code,
		Price:     in.Price.Round(2),
		Stock:     in.Stock,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.logger.Info("product created", zap.String("product_id", p.ID), zap.String("code", p.Code))
	return p, nil
}

// Restock sets the absolute stock level of a product.
func (s *CatalogService) Restock(ctx context.Context, productID string, stock int) (*domain.Product, error) {
	err := runInTx(ctx, s.store, s.txTimeout, func(ctx context.Context, tx port.LedgerTx) error {
		locked, err := tx.LockProducts(ctx, []string{productID})
		if err != nil {
			return err
		}
		if _, ok := locked[productID]; !ok {
			return domain.ErrProductNotFound
		}
		return s.inventory.Restock(ctx, tx, productID, stock)
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateProducts(ctx, productID); err != nil {
		s.logger.Warn("failed to invalidate product cache", zap.String("product_id", productID), zap.Error(err))
	}
	return s.store.GetProduct(ctx, productID)
}
