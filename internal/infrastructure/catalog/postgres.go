package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/replybot/backend/internal/domain"
)

const listPurchasableQuery = `SELECT name, buy_url, images FROM products ` +
	`WHERE merchant_id = $1 AND is_available = TRUE AND COALESCE(buy_url, '') <> '' ` +
	`ORDER BY created_at, id`

// PoolConfig holds connection pool settings
type PoolConfig struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open opens a PostgreSQL connection pool for dsn
func Open(dsn string, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// PostgresRepository reads merchant catalogs from the products table
type PostgresRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresRepository creates a catalog repository over db
func NewPostgresRepository(db *sql.DB, logger *zap.Logger) *PostgresRepository {
	return &PostgresRepository{db: db, logger: logger}
}

// Ping tests the database connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListPurchasableProducts returns the available products of merchantID that
// carry a purchase URL, oldest first. An unknown merchant yields an empty slice.
func (r *PostgresRepository) ListPurchasableProducts(ctx context.Context, merchantID string) ([]domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, listPurchasableQuery, merchantID)
	if err != nil {
		r.logger.Error("catalog query failed", zap.String("merchant_id", merchantID), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var (
			name   sql.NullString
			buyURL sql.NullString
			images []string
		)
		if err := rows.Scan(&name, &buyURL, pq.Array(&images)); err != nil {
			return nil, fmt.Errorf("%w: scan product: %w", domain.ErrCatalogUnavailable, err)
		}

		product := domain.Product{
			Name:        strings.TrimSpace(name.String),
			PurchaseURL: strings.TrimSpace(buyURL.String),
			Images:      nonEmpty(images),
		}
		if !product.Eligible() {
			continue
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrCatalogUnavailable, err)
	}

	r.logger.Debug("catalog loaded",
		zap.String("merchant_id", merchantID),
		zap.Int("products", len(products)),
	)
	return products, nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
