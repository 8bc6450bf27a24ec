package finalize

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/notify"
	"github.com/vladislavdragonenkov/storefront/internal/service/payout"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type fixtures struct {
	orders   domain.OrderRepository
	products domain.ProductRepository
	ledger   domain.LedgerRepository
	events   domain.EventRepository
	audit    domain.AuditRepository
	payouts  domain.PayoutRepository
	notifier *notify.MockNotifier
}

func newFixtures() *fixtures {
	return &fixtures{
		orders:   memory.NewOrderRepository(),
		products: memory.NewProductRepository(),
		ledger:   memory.NewLedgerRepository(),
		events:   memory.NewEventRepository(),
		audit:    memory.NewAuditRepository(),
		payouts:  memory.NewPayoutRepository(),
		notifier: notify.NewMockNotifier(),
	}
}

func (f *fixtures) orchestrator(t *testing.T) Orchestrator {
	t.Helper()

	engine := payout.NewEngine(f.orders, f.payouts, memory.NewPayoutRuleRepository())
	logger := log.New().WithField("component", "finalize-test")
	return NewOrchestratorWithoutMetrics(
		f.orders, f.products, f.ledger, f.events, f.audit, engine, f.notifier, logger,
	)
}

func seedProduct(t *testing.T, repo domain.ProductRepository, id string, stock int64) {
	t.Helper()

	now := time.Now().UTC()
	err := repo.Create(domain.Product{
		ID:         id,
		Name:       "Tricko " + id,
		PriceMinor: 49900,
		Currency:   "CZK",
		Stock:      stock,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
}

func seedPendingOrder(t *testing.T, repo domain.OrderRepository, id string, items []domain.LineItem) domain.Order {
	t.Helper()

	now := time.Now().UTC()
	var total int64
	for _, item := range items {
		total += int64(item.Qty) * item.UnitPriceMinor
	}
	order := domain.Order{
		ID: id,
		Customer: domain.Customer{
			Name:  "Jan Novak",
			Email: "jan@example.com",
		},
		Items:         items,
		AmountMinor:   total,
		Currency:      "CZK",
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusUnpaid,
		PaymentMethod: domain.PaymentMethodCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.Create(order); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func defaultItems() []domain.LineItem {
	return []domain.LineItem{{
		ProductID:      "prod-1",
		Name:           "Tricko prod-1",
		Qty:            2,
		UnitPriceMinor: 49900,
	}}
}

func TestFinalize_HappyPath(t *testing.T) {
	f := newFixtures()
	seedPendingOrder(t, f.orders, "order-1", defaultItems())
	orch := f.orchestrator(t)

	result, err := orch.Finalize("order-1", domain.ProviderStripe, "evt-1", map[string]string{
		"event_type": domain.EventCheckoutCompleted,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.AlreadyFinalized {
		t.Fatalf("first finalization reported as duplicate")
	}
	orch.Wait()

	entry, err := f.ledger.GetByDedupeKey(domain.SaleDedupeKey("order-1"))
	if err != nil {
		t.Fatalf("sale entry missing: %v", err)
	}
	if entry.AmountMinor != 99800 || entry.Direction != domain.LedgerDirectionIn {
		t.Fatalf("unexpected sale entry: %+v", entry)
	}

	order, err := f.orders.Get("order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("expected confirmed status, got %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("expected paid payment status, got %s", order.PaymentStatus)
	}

	confirmations, _ := f.notifier.Counts()
	if confirmations != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", confirmations)
	}
}

func TestFinalize_ConcurrentCallsProduceSingleSaleEntry(t *testing.T) {
	f := newFixtures()
	seedPendingOrder(t, f.orders, "order-1", defaultItems())
	orch := f.orchestrator(t)

	const callers = 16
	results := make([]Result, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			// Нечётные вызовы имитируют verify-endpoint: другой event id,
			// тот же детерминированный dedupe key.
			eventID := "evt-webhook"
			if i%2 == 1 {
				eventID = "evt-verify"
			}
			results[i], errs[i] = orch.Finalize("order-1", domain.ProviderStripe, eventID, nil)
		}(i)
	}
	close(start)
	wg.Wait()
	orch.Wait()

	winners := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if !results[i].AlreadyFinalized {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winning finalization, got %d", winners)
	}

	entries, err := f.ledger.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly 1 ledger entry, got %d", len(entries))
	}

	// Письмо уходит только из выигравшего вызова.
	confirmations, _ := f.notifier.Counts()
	if confirmations != 1 {
		t.Fatalf("expected 1 confirmation email, got %d", confirmations)
	}
}

func TestFinalize_ReplayAfterCompletionIsNoop(t *testing.T) {
	f := newFixtures()
	seedPendingOrder(t, f.orders, "order-1", defaultItems())
	orch := f.orchestrator(t)

	if _, err := orch.Finalize("order-1", domain.ProviderStripe, "evt-1", nil); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	// Повторная доставка того же события и poll verify-endpoint'а.
	for _, eventID := range []string{"evt-1", "evt-1", "verify-sess-1"} {
		result, err := orch.Finalize("order-1", domain.ProviderStripe, eventID, nil)
		if err != nil {
			t.Fatalf("replay finalize (%s): %v", eventID, err)
		}
		if !result.AlreadyFinalized {
			t.Fatalf("replay (%s) not detected as duplicate", eventID)
		}
		if result.Order.Status != domain.OrderStatusConfirmed {
			t.Fatalf("replay (%s) returned stale order status %q", eventID, result.Order.Status)
		}
	}
	orch.Wait()

	entries, err := f.ledger.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 ledger entry after replays, got %d", len(entries))
	}
}

func TestFinalize_OrderNotFound(t *testing.T) {
	f := newFixtures()
	orch := f.orchestrator(t)

	_, err := orch.Finalize("missing", domain.ProviderStripe, "evt-1", nil)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	if _, err := f.ledger.GetByDedupeKey(domain.SaleDedupeKey("missing")); !errors.Is(err, domain.ErrLedgerEntryNotFound) {
		t.Fatalf("no ledger entry expected for missing order, got %v", err)
	}
}

func TestFinalize_ReplayWithMissingOrderReturnsError(t *testing.T) {
	f := newFixtures()
	orch := f.orchestrator(t)

	// Sale-запись есть, самого заказа нет: быстрый путь не должен
	// подменять заказ пустой заглушкой.
	if _, err := f.ledger.Append(domain.LedgerEntry{
		OrderID:     "ghost",
		Type:        domain.LedgerEntrySale,
		Direction:   domain.LedgerDirectionIn,
		AmountMinor: 99800,
		Currency:    "CZK",
		DedupeKey:   domain.SaleDedupeKey("ghost"),
	}); err != nil {
		t.Fatalf("append sale entry: %v", err)
	}

	result, err := orch.Finalize("ghost", domain.ProviderStripe, "evt-1", nil)
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if result.AlreadyFinalized {
		t.Fatalf("failed lookup must not report finalization")
	}
}

func TestFinalize_CancelledOrderFlaggedForReview(t *testing.T) {
	f := newFixtures()
	seedPendingOrder(t, f.orders, "order-1", defaultItems())

	cancelled := domain.OrderStatusCancelled
	if err := f.orders.Update("order-1", domain.OrderPatch{Status: &cancelled}); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	orch := f.orchestrator(t)
	result, err := orch.Finalize("order-1", domain.ProviderStripe, "evt-late", nil)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.AlreadyFinalized {
		t.Fatalf("late payment should still run finalization")
	}
	orch.Wait()

	order, err := f.orders.Get("order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != domain.OrderStatusCancelled {
		t.Fatalf("cancelled order must not be resurrected, got status %s", order.Status)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("captured payment must be recorded, got %s", order.PaymentStatus)
	}
	if !order.ManualReview {
		t.Fatalf("payment for cancelled order must raise manual review")
	}
	if !strings.Contains(order.ManualReviewNote, "cancelled") {
		t.Fatalf("review note should mention the order status, got %q", order.ManualReviewNote)
	}
}

func TestCommitStock_DeductsOncePerOrder(t *testing.T) {
	f := newFixtures()
	seedProduct(t, f.products, "prod-1", 10)
	seedPendingOrder(t, f.orders, "order-1", defaultItems())
	orch := f.orchestrator(t)

	const callers = 8
	results := make([]StockCommitResult, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = orch.CommitStock("order-1")
		}(i)
	}
	close(start)
	wg.Wait()

	claims := 0
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if !results[i].AlreadyCommitted {
			claims++
		}
	}
	if claims != 1 {
		t.Fatalf("expected exactly 1 stock commit claim, got %d", claims)
	}

	product, err := f.products.Get("prod-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 8 {
		t.Fatalf("expected stock 8 after single deduction, got %d", product.Stock)
	}
}

func TestCommitStock_ShortfallFlagsManualReview(t *testing.T) {
	f := newFixtures()
	seedProduct(t, f.products, "prod-1", 1)
	seedPendingOrder(t, f.orders, "order-1", defaultItems())
	orch := f.orchestrator(t)

	result, err := orch.CommitStock("order-1")
	if err != nil {
		t.Fatalf("commit stock: %v", err)
	}
	if result.AlreadyCommitted {
		t.Fatalf("first commit must claim the marker")
	}
	if result.AllDeducted() {
		t.Fatalf("expected a shortage, got none")
	}
	if len(result.Shortages) != 1 || result.Shortages[0].ProductID != "prod-1" {
		t.Fatalf("unexpected shortages: %+v", result.Shortages)
	}

	// Остаток не трогается частично удовлетворимым декрементом.
	product, err := f.products.Get("prod-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 1 {
		t.Fatalf("partial deduction must not happen, stock %d", product.Stock)
	}

	order, err := f.orders.Get("order-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !order.ManualReview {
		t.Fatalf("shortfall must flag manual review")
	}
	if !strings.Contains(order.ManualReviewNote, "prod-1") {
		t.Fatalf("review note should name the failed item, got %q", order.ManualReviewNote)
	}
	if !order.StockCommitted() {
		t.Fatalf("marker must stay set even after shortfall")
	}

	// Повторный вызов не получает второй попытки списания.
	retry, err := orch.CommitStock("order-1")
	if err != nil {
		t.Fatalf("retry commit: %v", err)
	}
	if !retry.AlreadyCommitted {
		t.Fatalf("retry must see the marker")
	}
}

func TestCommitStock_UnknownOrder(t *testing.T) {
	f := newFixtures()
	orch := f.orchestrator(t)

	if _, err := orch.CommitStock("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestFinalize_TriggerEventRecordedOnce(t *testing.T) {
	f := newFixtures()
	seedPendingOrder(t, f.orders, "order-1", defaultItems())
	orch := f.orchestrator(t)

	for i := 0; i < 3; i++ {
		if _, err := orch.Finalize("order-1", domain.ProviderStripe, "evt-1", map[string]string{
			"event_type": domain.EventPaymentSucceeded,
		}); err != nil {
			t.Fatalf("finalize attempt %d: %v", i, err)
		}
	}
	orch.Wait()

	event, err := f.events.Get(domain.ProviderStripe, "evt-1")
	if err != nil {
		t.Fatalf("trigger event missing: %v", err)
	}
	if event.Type != domain.EventPaymentSucceeded {
		t.Fatalf("unexpected event type %q", event.Type)
	}

	events, err := f.events.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 recorded event, got %d", len(events))
	}
}

func TestEventTypeForTrigger(t *testing.T) {
	if got := EventTypeForTrigger(nil); got != domain.EventPaymentSucceeded {
		t.Fatalf("nil metadata: got %q", got)
	}
	if got := EventTypeForTrigger(map[string]string{"event_type": ""}); got != domain.EventPaymentSucceeded {
		t.Fatalf("empty event_type: got %q", got)
	}
	if got := EventTypeForTrigger(map[string]string{"event_type": domain.EventCheckoutCompleted}); got != domain.EventCheckoutCompleted {
		t.Fatalf("explicit event_type: got %q", got)
	}
}
