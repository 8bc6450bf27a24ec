package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func paymentEvent(orderID, providerEventID string) domain.OrderEvent {
	return domain.OrderEvent{
		OrderID:         orderID,
		Provider:        domain.ProviderStripe,
		ProviderEventID: providerEventID,
		Type:            domain.EventPaymentSucceeded,
	}
}

func TestEventRepository_RecordInsertIfAbsent(t *testing.T) {
	repo := NewEventRepository()

	stored, err := repo.Record(paymentEvent("order-1", "evt-1"))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stored.ID == "" || stored.CreatedAt.IsZero() {
		t.Fatalf("record must fill id and created_at: %+v", stored)
	}

	if _, err := repo.Record(paymentEvent("order-1", "evt-1")); !errors.Is(err, domain.ErrEventDuplicate) {
		t.Fatalf("expected ErrEventDuplicate, got %v", err)
	}

	// Тот же id от другого провайдера — отдельное событие.
	manual := paymentEvent("order-1", "evt-1")
	manual.Provider = domain.ProviderManual
	if _, err := repo.Record(manual); err != nil {
		t.Fatalf("record manual event: %v", err)
	}
}

func TestEventRepository_RecordValidates(t *testing.T) {
	repo := NewEventRepository()

	if _, err := repo.Record(domain.OrderEvent{}); err == nil {
		t.Fatalf("empty event must be rejected")
	}
}

func TestEventRepository_Get(t *testing.T) {
	repo := NewEventRepository()
	if _, err := repo.Record(paymentEvent("order-1", "evt-1")); err != nil {
		t.Fatalf("record: %v", err)
	}

	event, err := repo.Get(domain.ProviderStripe, "evt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if event.OrderID != "order-1" {
		t.Fatalf("unexpected event: %+v", event)
	}

	if _, err := repo.Get(domain.ProviderStripe, "evt-missing"); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestEventRepository_ConcurrentRecordSameKey(t *testing.T) {
	repo := NewEventRepository()

	const callers = 16
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = repo.Record(paymentEvent("order-1", "evt-1"))
		}(i)
	}
	close(start)
	wg.Wait()

	inserted := 0
	for i := 0; i < callers; i++ {
		switch {
		case errs[i] == nil:
			inserted++
		case errors.Is(errs[i], domain.ErrEventDuplicate):
		default:
			t.Fatalf("caller %d unexpected error: %v", i, errs[i])
		}
	}
	if inserted != 1 {
		t.Fatalf("expected exactly 1 insert, got %d", inserted)
	}
}

func TestPayoutRepository_Lifecycle(t *testing.T) {
	repo := NewPayoutRepository()

	err := repo.CreateBatch([]domain.Payout{
		{ID: "payout-1", OrderID: "order-1", PartnerCode: "designer", AmountMinor: 10000, Currency: "CZK", Status: domain.PayoutStatusPending},
		{ID: "payout-2", OrderID: "order-1", PartnerCode: "platform", AmountMinor: 3000, Currency: "CZK", Status: domain.PayoutStatusPending},
		{ID: "payout-3", OrderID: "order-2", PartnerCode: "designer", AmountMinor: 5000, Currency: "CZK", Status: domain.PayoutStatusPending},
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}

	if err := repo.MarkPaid("payout-2"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := repo.MarkPaid("missing"); !errors.Is(err, domain.ErrPayoutNotFound) {
		t.Fatalf("expected ErrPayoutNotFound, got %v", err)
	}

	// Отменяются только pending-выплаты нужного заказа.
	cancelled, err := repo.CancelPending("order-1")
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if cancelled != 1 {
		t.Fatalf("expected 1 cancellation, got %d", cancelled)
	}

	payouts, err := repo.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	statuses := make(map[string]domain.PayoutStatus, len(payouts))
	for _, p := range payouts {
		statuses[p.ID] = p.Status
	}
	if statuses["payout-1"] != domain.PayoutStatusCancelled || statuses["payout-2"] != domain.PayoutStatusPaid {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}

	other, err := repo.ListByOrder("order-2")
	if err != nil {
		t.Fatalf("list order-2: %v", err)
	}
	if other[0].Status != domain.PayoutStatusPending {
		t.Fatalf("foreign order payout touched: %+v", other[0])
	}

	all, err := repo.ListAll(0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all payouts: got %d", len(all))
	}
}

func TestAuditRepository_AppendAndList(t *testing.T) {
	repo := NewAuditRepository()

	entries := []domain.AuditEntry{
		{Action: "order.created", EntityType: "order", EntityID: "order-1", Severity: domain.AuditSeverityInfo},
		{Action: "order.finalized", EntityType: "order", EntityID: "order-1", Severity: domain.AuditSeverityInfo},
		{Action: "product.restocked", EntityType: "product", EntityID: "prod-1", Severity: domain.AuditSeverityInfo},
	}
	for _, entry := range entries {
		if err := repo.Append(entry); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	orderTrail, err := repo.ListByEntity("order", "order-1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orderTrail) != 2 {
		t.Fatalf("order trail: got %d", len(orderTrail))
	}
	for _, entry := range orderTrail {
		if entry.ID == "" || entry.CreatedAt.IsZero() {
			t.Fatalf("append must fill id and created_at: %+v", entry)
		}
	}

	limited, err := repo.ListByEntity("order", "order-1", 1)
	if err != nil {
		t.Fatalf("list limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("limited trail: got %d", len(limited))
	}
}
