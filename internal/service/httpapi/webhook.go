package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// stripeWebhook — точка входа провайдерских callback'ов. Ответ не-2xx
// заставляет провайдера редоставить событие, поэтому любой сбой обработки
// возвращается как 500; повтор безопасен — вся цепочка идемпотентна.
func (s *Server) stripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "failed to read body"})
		return
	}

	event, err := s.deps.Provider.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			s.logger.Warn("webhook with invalid signature rejected")
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid signature"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "malformed payload"})
		return
	}

	logger := s.logger.WithFields(log.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"order_id":   event.OrderID,
	})

	switch event.Type {
	case domain.EventCheckoutCompleted, domain.EventPaymentSucceeded:
		if err := s.handlePaymentConfirmed(event); err != nil {
			logger.WithError(err).Error("webhook finalization failed")
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "processing failed"})
			return
		}
	case domain.EventPaymentFailed:
		if err := s.handlePaymentFailed(event); err != nil {
			logger.WithError(err).Error("payment-failed handling failed")
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "processing failed"})
			return
		}
	case domain.EventChargebackCreated:
		if err := s.deps.Refunds.ApplyChargeback(event.OrderID, event.ID, event.AmountMinor, event.FeeMinor); err != nil {
			logger.WithError(err).Error("chargeback handling failed")
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "processing failed"})
			return
		}
	default:
		// Незнакомые типы подтверждаем: редоставка их не исправит.
		logger.Debug("ignoring unhandled webhook event type")
	}

	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "received"})
}

// handlePaymentConfirmed проводит подтверждённую оплату: сначала списание
// стока под своим маркером, затем финансовая финализация. Оба шага
// идемпотентны, порядок вызовов с конкурирующим verify-poll'ом не важен.
func (s *Server) handlePaymentConfirmed(event domain.WebhookEvent) error {
	if event.OrderID == "" {
		s.logger.WithField("event_id", event.ID).Warn("webhook event without order id")
		return nil
	}

	if _, err := s.deps.Finalize.CommitStock(event.OrderID); err != nil {
		return err
	}

	metadata := map[string]string{"event_type": event.Type}
	if event.PaymentIntentID != "" {
		metadata["payment_intent_id"] = event.PaymentIntentID
	}
	_, err := s.deps.Finalize.Finalize(event.OrderID, event.Provider, event.ID, metadata)
	return err
}

// handlePaymentFailed журналирует неуспешный платёж и помечает заказ.
// Ни сток, ни ledger не трогаются: заказ остаётся pending и либо будет оплачен
// повторно, либо отменён sweeper'ом.
func (s *Server) handlePaymentFailed(event domain.WebhookEvent) error {
	if _, err := s.deps.Events.Record(domain.OrderEvent{
		OrderID:         event.OrderID,
		Provider:        event.Provider,
		ProviderEventID: event.ID,
		Type:            event.Type,
		Payload:         event.Raw,
	}); err != nil {
		if errors.Is(err, domain.ErrEventDuplicate) {
			return nil
		}
		return err
	}

	order, err := s.deps.Orders.Get(event.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.WithField("order_id", event.OrderID).Warn("payment failed for unknown order")
			return nil
		}
		return err
	}

	// Провайдер доставляет события как минимум один раз и без гарантии
	// порядка: запоздавший payment_failed не должен разжаловать уже
	// оплаченный заказ.
	if order.PaymentStatus == domain.PaymentStatusPaid {
		s.logger.WithFields(log.Fields{
			"order_id": event.OrderID,
			"event_id": event.ID,
		}).Warn("ignoring late payment_failed for paid order")
		return nil
	}

	failed := domain.PaymentStatusFailed
	if err := s.deps.Orders.Update(event.OrderID, domain.OrderPatch{PaymentStatus: &failed}); err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// verifySession — клиентский poll «оплачена ли сессия». При подтверждённой
// оплате выполняет те же идемпотентные шаги, что и webhook. Сбой финализации
// возвращается клиенту как неуспешный статус платежа, не как отсутствие
// заказа: авторитетный путь — webhook с его редоставкой.
func (s *Server) verifySession(c *gin.Context) {
	sessionID := c.Param("session_id")

	status, err := s.deps.Provider.VerifySession(sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("session verification failed")
		c.JSON(http.StatusBadGateway, gin.H{"code": 502, "msg": "provider unavailable"})
		return
	}

	if !status.Paid {
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{"session_id": sessionID, "paid": false},
		})
		return
	}

	if _, err := s.deps.Finalize.CommitStock(status.OrderID); err != nil {
		s.logger.WithError(err).WithField("order_id", status.OrderID).Error("stock commit failed on verify path")
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{"session_id": sessionID, "paid": false, "status": "processing"},
		})
		return
	}

	metadata := map[string]string{"event_type": domain.EventCheckoutCompleted, "entry_path": "verify"}
	result, err := s.deps.Finalize.Finalize(status.OrderID, domain.ProviderStripe, status.EventID, metadata)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", status.OrderID).Error("finalization failed on verify path")
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{"session_id": sessionID, "paid": false, "status": "processing"},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": gin.H{
			"session_id":        sessionID,
			"paid":              true,
			"order_id":          status.OrderID,
			"order_status":      result.Order.Status,
			"already_finalized": result.AlreadyFinalized,
		},
	})
}
