package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func seedProduct(t *testing.T, repo domain.ProductRepository, id string, stock int64) {
	t.Helper()

	now := time.Now().UTC()
	if err := repo.Create(domain.Product{
		ID:         id,
		Name:       "Tricko " + id,
		PriceMinor: 49900,
		Currency:   "CZK",
		Stock:      stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}
}

func TestProductRepository_DeductStock(t *testing.T) {
	repo := NewProductRepository()
	seedProduct(t, repo, "prod-1", 5)

	if err := repo.DeductStock("prod-1", 3); err != nil {
		t.Fatalf("deduct: %v", err)
	}
	if err := repo.DeductStock("prod-1", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if err := repo.DeductStock("missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	product, err := repo.Get("prod-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Отказанный декремент остаток не трогает.
	if product.Stock != 2 {
		t.Fatalf("stock: got %d, want 2", product.Stock)
	}
}

func TestProductRepository_DeductStockNeverNegative(t *testing.T) {
	repo := NewProductRepository()
	seedProduct(t, repo, "prod-1", 10)

	const callers = 20
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = repo.DeductStock("prod-1", 1)
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for i := 0; i < callers; i++ {
		switch {
		case errs[i] == nil:
			succeeded++
		case errors.Is(errs[i], domain.ErrInsufficientStock):
		default:
			t.Fatalf("caller %d unexpected error: %v", i, errs[i])
		}
	}
	if succeeded != 10 {
		t.Fatalf("expected exactly 10 successful deductions, got %d", succeeded)
	}

	product, err := repo.Get("prod-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("stock must be exactly 0, got %d", product.Stock)
	}
}

func TestProductRepository_Restock(t *testing.T) {
	repo := NewProductRepository()
	seedProduct(t, repo, "prod-1", 2)

	if err := repo.Restock("prod-1", 8); err != nil {
		t.Fatalf("restock: %v", err)
	}
	if err := repo.Restock("missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	product, err := repo.Get("prod-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if product.Stock != 10 {
		t.Fatalf("stock: got %d, want 10", product.Stock)
	}
}
