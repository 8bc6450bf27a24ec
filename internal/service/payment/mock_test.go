package payment

import (
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestParseWebhook_ValidSignature(t *testing.T) {
	provider := NewMockProvider("whsec_test")
	payload := []byte(`{
		"id": "evt-1",
		"type": "checkout.session.completed",
		"currency": "czk",
		"amount": 99800,
		"payment_intent": "pi-1",
		"metadata": {"order_id": "order-1"}
	}`)

	event, err := provider.ParseWebhook(payload, provider.Sign(payload))
	if err != nil {
		t.Fatalf("parse webhook: %v", err)
	}
	if event.Provider != domain.ProviderStripe {
		t.Fatalf("provider: got %q", event.Provider)
	}
	if event.ID != "evt-1" || event.Type != domain.EventCheckoutCompleted {
		t.Fatalf("event identity: %+v", event)
	}
	if event.OrderID != "order-1" || event.PaymentIntentID != "pi-1" {
		t.Fatalf("order binding: %+v", event)
	}
	if event.AmountMinor != 99800 {
		t.Fatalf("amount: got %d", event.AmountMinor)
	}
}

func TestParseWebhook_BadSignature(t *testing.T) {
	provider := NewMockProvider("whsec_test")
	payload := []byte(`{"id": "evt-1", "type": "payment_intent.succeeded"}`)

	if _, err := provider.ParseWebhook(payload, "deadbeef"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}

	// Подпись другим секретом тоже отклоняется.
	other := NewMockProvider("whsec_other")
	if _, err := provider.ParseWebhook(payload, other.Sign(payload)); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for foreign secret, got %v", err)
	}
}

func TestParseWebhook_MalformedPayload(t *testing.T) {
	provider := NewMockProvider("whsec_test")
	payload := []byte(`{not json`)

	if _, err := provider.ParseWebhook(payload, provider.Sign(payload)); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestVerifySession_ConfiguredSession(t *testing.T) {
	provider := NewMockProvider("whsec_test")
	provider.SetSession(domain.SessionStatus{
		SessionID: "sess-1",
		OrderID:   "order-1",
		Paid:      true,
	})

	status, err := provider.VerifySession("sess-1")
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if !status.Paid || status.OrderID != "order-1" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.EventID != "verify-sess-1" {
		t.Fatalf("deterministic event id expected, got %q", status.EventID)
	}

	// Повторный poll возвращает тот же идентификатор события.
	again, err := provider.VerifySession("sess-1")
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if again.EventID != status.EventID {
		t.Fatalf("event id changed between polls: %q vs %q", again.EventID, status.EventID)
	}
}

func TestVerifySession_UnknownSessionIsUnpaid(t *testing.T) {
	provider := NewMockProvider("whsec_test")

	status, err := provider.VerifySession("sess-unknown")
	if err != nil {
		t.Fatalf("verify session: %v", err)
	}
	if status.Paid {
		t.Fatalf("unknown session must be unpaid")
	}
}

func TestVerifySession_ConfiguredError(t *testing.T) {
	provider := NewMockProvider("whsec_test")
	provider.VerifyErr = errors.New("provider unavailable")

	if _, err := provider.VerifySession("sess-1"); err == nil {
		t.Fatalf("expected configured error")
	}
}
