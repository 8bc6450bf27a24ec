package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func seedOrder(t *testing.T, repo domain.OrderRepository, id string, mutate func(*domain.Order)) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	order := domain.Order{
		ID: id,
		Customer: domain.Customer{
			Name:  "Jan Novak",
			Email: "jan@example.com",
		},
		Items: []domain.LineItem{{
			ProductID:      "prod-1",
			Qty:            1,
			UnitPriceMinor: 49900,
		}},
		AmountMinor:   49900,
		Currency:      "CZK",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: domain.PaymentMethodCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&order)
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order %s: %v", id, err)
	}
	return order
}

func TestOrderRepository_CreateAndGet(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "order-1", nil)

	order, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.ID != "order-1" || order.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected order: %+v", order)
	}

	if err := repo.Create(order); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("duplicate id: expected ErrOrderAlreadyExists, got %v", err)
	}
	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("missing: expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_UpdateAppliesPatch(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "order-1", nil)

	confirmed := domain.OrderStatusConfirmed
	paid := domain.PaymentStatusPaid
	intent := "pi-1"
	if err := repo.Update("order-1", domain.OrderPatch{
		Status:          &confirmed,
		PaymentStatus:   &paid,
		PaymentIntentID: &intent,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	order, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != confirmed || order.PaymentStatus != paid || order.PaymentIntentID != "pi-1" {
		t.Fatalf("patch not applied: %+v", order)
	}
	if order.Version != 1 {
		t.Fatalf("version: got %d, want 1", order.Version)
	}
	// Незаполненные поля patch'а не трогаются.
	if order.ManualReview || order.RefundAmountMinor != 0 {
		t.Fatalf("untouched fields mutated: %+v", order)
	}

	if err := repo.Update("missing", domain.OrderPatch{Status: &confirmed}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_MarkStockDeductedOnce(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "order-1", nil)

	const callers = 8
	claims := make([]bool, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			claims[i], errs[i] = repo.MarkStockDeducted("order-1", time.Now().UTC())
		}(i)
	}
	close(start)
	wg.Wait()

	won := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if claims[i] {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly 1 claim, got %d", won)
	}

	order, err := repo.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !order.StockCommitted() {
		t.Fatalf("marker not set")
	}

	if _, err := repo.MarkStockDeducted("missing", time.Now().UTC()); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_CancelAbandonedPredicate(t *testing.T) {
	repo := NewOrderRepository()
	stale := time.Now().UTC().Add(-25 * time.Hour)

	seedOrder(t, repo, "stale", func(o *domain.Order) { o.CreatedAt = stale })
	seedOrder(t, repo, "fresh", nil)
	seedOrder(t, repo, "cod", func(o *domain.Order) {
		o.CreatedAt = stale
		o.PaymentMethod = domain.PaymentMethodCOD
	})
	seedOrder(t, repo, "paid", func(o *domain.Order) {
		o.CreatedAt = stale
		o.PaymentStatus = domain.PaymentStatusPaid
	})
	seedOrder(t, repo, "confirmed", func(o *domain.Order) {
		o.CreatedAt = stale
		o.Status = domain.OrderStatusConfirmed
	})
	seedOrder(t, repo, "deducted", func(o *domain.Order) {
		o.CreatedAt = stale
		at := stale.Add(time.Minute)
		o.StockDeductedAt = &at
	})

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	cancelled, err := repo.CancelAbandoned(cutoff)
	if err != nil {
		t.Fatalf("cancel abandoned: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %d", cancelled)
	}

	order, err := repo.Get("stale")
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled || order.PaymentStatus != domain.PaymentStatusCancelled {
		t.Fatalf("stale order not cancelled: %s/%s", order.Status, order.PaymentStatus)
	}

	for _, id := range []string{"fresh", "cod", "paid", "confirmed", "deducted"} {
		order, err := repo.Get(id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if order.Status == domain.OrderStatusCancelled {
			t.Fatalf("order %s wrongly cancelled", id)
		}
	}
}

func TestOrderRepository_ListFilters(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "order-1", nil)
	seedOrder(t, repo, "order-2", func(o *domain.Order) {
		o.Status = domain.OrderStatusConfirmed
		o.PaymentStatus = domain.PaymentStatusPaid
	})
	seedOrder(t, repo, "order-3", func(o *domain.Order) {
		o.Status = domain.OrderStatusConfirmed
		o.PaymentStatus = domain.PaymentStatusPaid
		o.ManualReview = true
	})

	confirmed, err := repo.List(domain.OrderFilter{Status: domain.OrderStatusConfirmed})
	if err != nil {
		t.Fatalf("list confirmed: %v", err)
	}
	if len(confirmed) != 2 {
		t.Fatalf("confirmed: got %d", len(confirmed))
	}

	review := true
	flagged, err := repo.List(domain.OrderFilter{ManualReview: &review})
	if err != nil {
		t.Fatalf("list flagged: %v", err)
	}
	if len(flagged) != 1 || flagged[0].ID != "order-3" {
		t.Fatalf("flagged: %+v", flagged)
	}

	limited, err := repo.List(domain.OrderFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limit: got %d", len(limited))
	}

	offset, err := repo.List(domain.OrderFilter{Offset: 10})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(offset) != 0 {
		t.Fatalf("offset past end: got %d", len(offset))
	}
}

func TestOrderRepository_ListByCustomer(t *testing.T) {
	repo := NewOrderRepository()
	seedOrder(t, repo, "order-1", nil)
	seedOrder(t, repo, "order-2", func(o *domain.Order) {
		o.Customer.Email = "other@example.com"
	})

	orders, err := repo.ListByCustomer("jan@example.com", 10)
	if err != nil {
		t.Fatalf("list by customer: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "order-1" {
		t.Fatalf("unexpected result: %+v", orders)
	}
}
