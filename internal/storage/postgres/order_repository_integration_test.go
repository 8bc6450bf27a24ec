package postgres

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func seedOrderForIntegrationTest(t *testing.T, repo domain.OrderRepository, mutate func(*domain.Order)) domain.Order {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Microsecond)
	order := domain.Order{
		ID: uuid.NewString(),
		Customer: domain.Customer{
			Name:  "Test Customer",
			Email: "customer@example.com",
		},
		Items: []domain.LineItem{
			{ProductID: "prod-1", Qty: 2, UnitPriceMinor: 50000},
		},
		AmountMinor:   100000,
		Currency:      "CZK",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: domain.PaymentMethodCard,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if mutate != nil {
		mutate(&order)
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestOrderRepository_PostgresCreateGetRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	shipping := &domain.ShippingInfo{Carrier: "zasilkovna", PickupPointID: "Z-123", PriceMinor: 7900}
	created := seedOrderForIntegrationTest(t, repo, func(o *domain.Order) {
		o.Shipping = shipping
	})

	got, err := repo.Get(created.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Customer.Email != created.Customer.Email {
		t.Fatalf("unexpected email: %s", got.Customer.Email)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != "prod-1" || got.Items[0].Qty != 2 {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
	if got.Shipping == nil || got.Shipping.PickupPointID != "Z-123" {
		t.Fatalf("shipping payload lost: %+v", got.Shipping)
	}
	if got.StockDeductedAt != nil {
		t.Fatal("fresh order must have nil stock marker")
	}

	if err := repo.Create(created); !errors.Is(err, domain.ErrOrderAlreadyExists) {
		t.Fatalf("expected ErrOrderAlreadyExists, got %v", err)
	}
}

func TestOrderRepository_PostgresMarkStockDeductedClaimsOnce(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	order := seedOrderForIntegrationTest(t, repo, nil)

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := repo.MarkStockDeducted(order.ID, time.Now().UTC())
			if err != nil {
				t.Errorf("mark stock deducted: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Fatalf("expected exactly one claim, got %d", claims)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.StockDeductedAt == nil {
		t.Fatal("stock marker must be set")
	}

	if _, err := repo.MarkStockDeducted(uuid.NewString(), time.Now().UTC()); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_PostgresCancelAbandoned(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)

	old := time.Now().UTC().Add(-25 * time.Hour).Truncate(time.Microsecond)

	stale := seedOrderForIntegrationTest(t, repo, func(o *domain.Order) {
		o.CreatedAt = old
		o.UpdatedAt = old
	})
	fresh := seedOrderForIntegrationTest(t, repo, nil)
	cod := seedOrderForIntegrationTest(t, repo, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodCOD
		o.CreatedAt = old
		o.UpdatedAt = old
	})
	paid := seedOrderForIntegrationTest(t, repo, func(o *domain.Order) {
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Status = domain.OrderStatusConfirmed
		o.CreatedAt = old
		o.UpdatedAt = old
	})

	cancelled, err := repo.CancelAbandoned(time.Now().UTC().Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("cancel abandoned: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancelled order, got %d", cancelled)
	}

	assertStatus := func(id string, want domain.OrderStatus) {
		t.Helper()
		got, err := repo.Get(id)
		if err != nil {
			t.Fatalf("get order %s: %v", id, err)
		}
		if got.Status != want {
			t.Fatalf("order %s: expected status %s, got %s", id, want, got.Status)
		}
	}
	assertStatus(stale.ID, domain.OrderStatusCancelled)
	assertStatus(fresh.ID, domain.OrderStatusPending)
	assertStatus(cod.ID, domain.OrderStatusPending)
	assertStatus(paid.ID, domain.OrderStatusConfirmed)
}

func TestOrderRepository_PostgresUpdatePatch(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewOrderRepository(store)
	order := seedOrderForIntegrationTest(t, repo, nil)

	confirmed := domain.OrderStatusConfirmed
	paid := domain.PaymentStatusPaid
	review := true
	note := "needs a second look"
	if err := repo.Update(order.ID, domain.OrderPatch{
		Status:           &confirmed,
		PaymentStatus:    &paid,
		ManualReview:     &review,
		ManualReviewNote: &note,
	}); err != nil {
		t.Fatalf("update order: %v", err)
	}

	got, err := repo.Get(order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != confirmed || got.PaymentStatus != paid {
		t.Fatalf("patch not applied: %+v", got)
	}
	if !got.ManualReview || got.ManualReviewNote != note {
		t.Fatalf("manual review patch not applied: %+v", got)
	}
	if got.Version != order.Version+1 {
		t.Fatalf("expected version bump, got %d", got.Version)
	}

	if err := repo.Update(uuid.NewString(), domain.OrderPatch{Status: &confirmed}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
