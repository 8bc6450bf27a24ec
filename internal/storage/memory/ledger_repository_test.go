package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func saleEntry(orderID string) domain.LedgerEntry {
	return domain.LedgerEntry{
		OrderID:     orderID,
		Type:        domain.LedgerEntrySale,
		Direction:   domain.LedgerDirectionIn,
		AmountMinor: 99800,
		Currency:    "CZK",
		DedupeKey:   domain.SaleDedupeKey(orderID),
	}
}

func TestLedgerRepository_AppendAndGet(t *testing.T) {
	repo := NewLedgerRepository()

	stored, err := repo.Append(saleEntry("order-1"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if stored.ID == "" || stored.CreatedAt.IsZero() {
		t.Fatalf("append must fill id and created_at: %+v", stored)
	}

	got, err := repo.GetByDedupeKey(domain.SaleDedupeKey("order-1"))
	if err != nil {
		t.Fatalf("get by dedupe key: %v", err)
	}
	if got.ID != stored.ID {
		t.Fatalf("lookup mismatch: %s vs %s", got.ID, stored.ID)
	}

	if _, err := repo.GetByDedupeKey("sale-missing"); !errors.Is(err, domain.ErrLedgerEntryNotFound) {
		t.Fatalf("expected ErrLedgerEntryNotFound, got %v", err)
	}
	if _, err := repo.Append(domain.LedgerEntry{Currency: "CZK"}); !errors.Is(err, domain.ErrLedgerDedupeKeyRequired) {
		t.Fatalf("expected ErrLedgerDedupeKeyRequired, got %v", err)
	}
}

func TestLedgerRepository_ConcurrentAppendSameKey(t *testing.T) {
	repo := NewLedgerRepository()

	const callers = 16
	errs := make([]error, callers)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = repo.Append(saleEntry("order-1"))
		}(i)
	}
	close(start)
	wg.Wait()

	inserted := 0
	for i := 0; i < callers; i++ {
		switch {
		case errs[i] == nil:
			inserted++
		case errors.Is(errs[i], domain.ErrLedgerDuplicate):
		default:
			t.Fatalf("caller %d unexpected error: %v", i, errs[i])
		}
	}
	if inserted != 1 {
		t.Fatalf("expected exactly 1 insert, got %d", inserted)
	}

	entries, err := repo.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
}

func TestLedgerRepository_ListByOrderAndAll(t *testing.T) {
	repo := NewLedgerRepository()

	if _, err := repo.Append(saleEntry("order-1")); err != nil {
		t.Fatalf("append sale: %v", err)
	}
	refund := domain.LedgerEntry{
		OrderID:     "order-1",
		Type:        domain.LedgerEntryRefund,
		Direction:   domain.LedgerDirectionOut,
		AmountMinor: -10000,
		Currency:    "CZK",
		DedupeKey:   domain.RefundDedupeKey("order-1", "evt-1"),
	}
	if _, err := repo.Append(refund); err != nil {
		t.Fatalf("append refund: %v", err)
	}
	if _, err := repo.Append(saleEntry("order-2")); err != nil {
		t.Fatalf("append second sale: %v", err)
	}

	byOrder, err := repo.ListByOrder("order-1")
	if err != nil {
		t.Fatalf("list by order: %v", err)
	}
	if len(byOrder) != 2 {
		t.Fatalf("order-1 entries: got %d", len(byOrder))
	}

	all, err := repo.ListAll(0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all entries: got %d", len(all))
	}

	limited, err := repo.ListAll(2)
	if err != nil {
		t.Fatalf("list all limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited entries: got %d", len(limited))
	}
}
