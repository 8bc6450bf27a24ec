package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(product domain.Product) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO products (id, name, price_minor, currency, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, product.ID, product.Name, product.PriceMinor, product.Currency, product.Stock)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}

	return nil
}

func (r *productRepository) Get(id string) (domain.Product, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var product domain.Product
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, price_minor, currency, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(
		&product.ID, &product.Name, &product.PriceMinor, &product.Currency,
		&product.Stock, &product.CreatedAt, &product.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("select product: %w", err)
	}

	return product, nil
}

// DeductStock — атомарный compare-and-decrement: проверка остатка и списание
// происходят в одном statement'е, read-then-write гонка исключена по построению.
func (r *productRepository) DeductStock(productID string, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $1,
		    updated_at = NOW()
		WHERE id = $2
		  AND stock >= $1
	`, int64(qty), productID)
	if err != nil {
		return fmt.Errorf("deduct stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// affected=0: остатка не хватило либо товара нет.
	var stock int64
	err = r.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = $1`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrProductNotFound
		}
		return fmt.Errorf("check product stock: %w", err)
	}

	return domain.ErrInsufficientStock
}

func (r *productRepository) Restock(productID string, qty int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $1,
		    updated_at = NOW()
		WHERE id = $2
	`, int64(qty), productID)
	if err != nil {
		return fmt.Errorf("restock product: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}

	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
