package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrBadSignature возвращается при неверной подписи webhook payload.
var ErrBadSignature = errors.New("webhook signature verification failed")

// webhookPayload — wire-формат события мок-провайдера. Повторяет поля,
// которые нормализует настоящий провайдерский SDK.
type webhookPayload struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Fee      int64  `json:"fee,omitempty"`
	Intent   string `json:"payment_intent,omitempty"`
	Metadata struct {
		OrderID string `json:"order_id"`
	} `json:"metadata"`
}

// MockProvider — конфигурируемая реализация PaymentProvider для разработки
// и тестов. Подпись webhook'а — HMAC-SHA256 от payload на общем секрете;
// у реального провайдера проверку делает его SDK.
// NOTE: в production заменяется клиентом настоящего провайдера.
type MockProvider struct {
	Secret string

	mu       sync.Mutex
	sessions map[string]domain.SessionStatus

	ParseCalls  int
	VerifyCalls int
	VerifyErr   error
}

// NewMockProvider возвращает мок с общим секретом подписи.
func NewMockProvider(secret string) *MockProvider {
	return &MockProvider{
		Secret:   secret,
		sessions: make(map[string]domain.SessionStatus),
	}
}

// Sign вычисляет подпись payload — хелпер для тестов и локальной отладки.
func (m *MockProvider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(m.Secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook проверяет подпись и нормализует payload события.
func (m *MockProvider) ParseWebhook(payload []byte, signature string) (domain.WebhookEvent, error) {
	m.mu.Lock()
	m.ParseCalls++
	m.mu.Unlock()

	if !hmac.Equal([]byte(m.Sign(payload)), []byte(signature)) {
		return domain.WebhookEvent{}, ErrBadSignature
	}

	var raw webhookPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return domain.WebhookEvent{}, fmt.Errorf("decode webhook payload: %w", err)
	}

	return domain.WebhookEvent{
		Provider:        domain.ProviderStripe,
		ID:              raw.ID,
		Type:            raw.Type,
		OrderID:         raw.Metadata.OrderID,
		PaymentIntentID: raw.Intent,
		AmountMinor:     raw.Amount,
		FeeMinor:        raw.Fee,
		Currency:        raw.Currency,
		Raw:             payload,
	}, nil
}

// SetSession настраивает ответ VerifySession для сессии.
func (m *MockProvider) SetSession(status domain.SessionStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[status.SessionID] = status
}

// VerifySession возвращает настроенное состояние checkout-сессии.
func (m *MockProvider) VerifySession(sessionID string) (domain.SessionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.VerifyCalls++
	if m.VerifyErr != nil {
		return domain.SessionStatus{}, m.VerifyErr
	}

	status, ok := m.sessions[sessionID]
	if !ok {
		return domain.SessionStatus{SessionID: sessionID, Paid: false}, nil
	}
	if status.EventID == "" {
		// Детерминированный идентификатор — повторные poll'ы одной сессии
		// журналируются одним событием.
		status.EventID = "verify-" + sessionID
	}
	return status, nil
}

var _ domain.PaymentProvider = (*MockProvider)(nil)
