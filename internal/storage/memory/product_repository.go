package memory

import (
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// productRepositoryInMemory — in-memory реализация ProductRepository.
type productRepositoryInMemory struct {
	mu    sync.Mutex
	items map[string]domain.Product
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items: make(map[string]domain.Product),
	}
}

// Create сохраняет новый товар.
func (r *productRepositoryInMemory) Create(product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[product.ID] = product
	return nil
}

// Get возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) Get(id string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// DeductStock выполняет условный декремент под блокировкой: проверка остатка
// и списание неразделимы, как compare-and-decrement в PostgreSQL. Остаток
// никогда не уходит в минус.
func (r *productRepositoryInMemory) DeductStock(productID string, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if product.Stock < int64(qty) {
		return domain.ErrInsufficientStock
	}

	product.Stock -= int64(qty)
	product.UpdatedAt = time.Now().UTC()
	r.items[productID] = product
	return nil
}

// Restock атомарно увеличивает остаток.
func (r *productRepositoryInMemory) Restock(productID string, qty int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.items[productID]
	if !ok {
		return domain.ErrProductNotFound
	}

	product.Stock += int64(qty)
	product.UpdatedAt = time.Now().UTC()
	r.items[productID] = product
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
