package notify

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// logNotifier пишет уведомления в лог вместо отправки писем.
// NOTE: в production заменяется клиентом почтового сервиса.
type logNotifier struct {
	logger *log.Entry
}

// NewLogNotifier возвращает notifier, логирующий вместо отправки.
func NewLogNotifier(logger *log.Entry) domain.EmailNotifier {
	if logger == nil {
		logger = log.WithField("component", "email-notifier")
	}
	return &logNotifier{logger: logger}
}

func (n *logNotifier) SendOrderConfirmation(order domain.Order) error {
	n.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"email":    order.Customer.Email,
	}).Info("order confirmation email")
	return nil
}

func (n *logNotifier) SendStatusUpdate(order domain.Order, previous domain.OrderStatus) error {
	n.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"email":    order.Customer.Email,
		"from":     previous,
		"to":       order.Status,
	}).Info("order status email")
	return nil
}

// MockNotifier — конфигурируемая заглушка EmailNotifier для тестов.
type MockNotifier struct {
	mu sync.Mutex

	ConfirmationErr error
	StatusErr       error

	ConfirmationCalls int
	StatusCalls       int
	LastOrderID       string
}

// NewMockNotifier возвращает mock с успешным сценарием по умолчанию.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// SendOrderConfirmation считает вызовы и возвращает настроенную ошибку.
func (m *MockNotifier) SendOrderConfirmation(order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConfirmationCalls++
	m.LastOrderID = order.ID
	return m.ConfirmationErr
}

// SendStatusUpdate считает вызовы и возвращает настроенную ошибку.
func (m *MockNotifier) SendStatusUpdate(order domain.Order, previous domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StatusCalls++
	m.LastOrderID = order.ID
	return m.StatusErr
}

// Counts возвращает число отправленных подтверждений и статусных писем.
func (m *MockNotifier) Counts() (confirmations, statuses int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConfirmationCalls, m.StatusCalls
}

var _ domain.EmailNotifier = (*logNotifier)(nil)
var _ domain.EmailNotifier = (*MockNotifier)(nil)
