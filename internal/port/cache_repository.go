package port

import (
	"context"

	"github.com/rl1809/storefront/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency claims key; false means it was already claimed.
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency frees a claimed key so the request can be retried.
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetProduct returns (nil, nil) on a cache miss.
	GetProduct(ctx context.Context, productID string) (*domain.Product, error)
	SetProduct(ctx context.Context, product *domain.Product) error
	InvalidateProducts(ctx context.Context, productIDs ...string) error
}
