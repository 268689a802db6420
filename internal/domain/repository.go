package domain

import (
	"context"
	"time"
)

// CatalogRepository resolves the purchasable products of a merchant.
// Implementations return only available products with a purchase URL.
type CatalogRepository interface {
	ListPurchasableProducts(ctx context.Context, merchantID string) ([]Product, error)
}

// Encoder maps texts to embedding vectors. Output order matches input order.
type Encoder interface {
	Encode(ctx context.Context, texts []string) ([]Vector, error)
}

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetIfAbsent stores value only when key is missing and reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
