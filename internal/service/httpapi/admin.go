package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// adminListOrders возвращает операционную выборку заказов с фильтрами.
func (s *Server) adminListOrders(c *gin.Context) {
	filter := domain.OrderFilter{
		Status:        domain.OrderStatus(c.Query("status")),
		PaymentStatus: domain.PaymentStatus(c.Query("payment_status")),
		Limit:         parseLimit(c, 50),
		Offset:        parseOffset(c),
	}
	if raw := c.Query("manual_review"); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "manual_review must be a boolean"})
			return
		}
		filter.ManualReview = &flag
	}

	orders, err := s.deps.Orders.List(filter)
	if err != nil {
		s.logger.WithError(err).Error("admin order listing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	summaries := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, orderSummary(order))
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": summaries})
}

// adminGetOrder возвращает детальную карточку заказа: позиции, дедлайн
// отказа, денежные движения, выплаты и журнал событий.
func (s *Server) adminGetOrder(c *gin.Context) {
	orderID := c.Param("id")

	order, err := s.deps.Orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
			return
		}
		s.logger.WithError(err).Error("admin order lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	// Сопутствующие выборки best-effort: карточка полезна и без них.
	ledger, err := s.deps.Ledger.ListByOrder(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("ledger listing failed")
	}
	payouts, err := s.deps.Payouts.ListByOrder(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("payout listing failed")
	}
	events, err := s.deps.Events.ListByOrder(orderID)
	if err != nil {
		s.logger.WithError(err).WithField("order_id", orderID).Warn("event listing failed")
	}

	detail := orderSummary(order)
	detail["items"] = order.Items
	detail["shipping"] = order.Shipping
	detail["customer"] = gin.H{
		"name":    order.Customer.Name,
		"email":   order.Customer.Email,
		"phone":   order.Customer.Phone,
		"street":  order.Customer.Street,
		"city":    order.Customer.City,
		"zip":     order.Customer.Zip,
		"country": order.Customer.Country,
	}
	detail["withdrawal_deadline"] = order.WithdrawalDeadline().Format(time.RFC3339)
	detail["manual_review_note"] = order.ManualReviewNote
	detail["refund_amount_minor"] = order.RefundAmountMinor
	detail["refund_reason"] = order.RefundReason

	entries := make([]gin.H, 0, len(ledger))
	for _, e := range ledger {
		entries = append(entries, gin.H{
			"id":           e.ID,
			"type":         e.Type,
			"direction":    e.Direction,
			"amount_minor": e.AmountMinor,
			"currency":     e.Currency,
			"dedupe_key":   e.DedupeKey,
			"created_at":   e.CreatedAt.Format(time.RFC3339),
		})
	}
	payoutRows := make([]gin.H, 0, len(payouts))
	for _, p := range payouts {
		payoutRows = append(payoutRows, gin.H{
			"id":           p.ID,
			"partner_code": p.PartnerCode,
			"amount_minor": p.AmountMinor,
			"status":       p.Status,
		})
	}
	eventRows := make([]gin.H, 0, len(events))
	for _, e := range events {
		eventRows = append(eventRows, gin.H{
			"provider":          e.Provider,
			"provider_event_id": e.ProviderEventID,
			"type":              e.Type,
			"created_at":        e.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"code": 0,
		"data": gin.H{
			"order":   detail,
			"ledger":  entries,
			"payouts": payoutRows,
			"events":  eventRows,
		},
	})
}

// adminChangeStatus переводит заказ по жизненному циклу с валидацией
// перехода. Письмо о смене статуса — fire-and-forget.
func (s *Server) adminChangeStatus(c *gin.Context) {
	orderID := c.Param("id")

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	next := domain.OrderStatus(req.Status)

	order, err := s.deps.Orders.Get(orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
			return
		}
		s.logger.WithError(err).Error("order lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	if !order.CanTransitionTo(next) {
		c.JSON(http.StatusConflict, gin.H{
			"code": 409,
			"msg":  "invalid transition " + string(order.Status) + " -> " + string(next),
		})
		return
	}

	previous := order.Status
	if err := s.deps.Orders.Update(orderID, domain.OrderPatch{Status: &next}); err != nil {
		s.logger.WithError(err).Error("status update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}
	order.Status = next

	s.appendAudit(domain.AuditEntry{
		Action:     "order.status_changed",
		EntityType: "order",
		EntityID:   orderID,
		Metadata:   map[string]string{"from": string(previous), "to": string(next)},
		Severity:   domain.AuditSeverityInfo,
	})

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendStatusUpdate(order, previous); err != nil {
			s.logger.WithError(err).WithField("order_id", orderID).Warn("status email failed")
		}
	}

	c.JSON(http.StatusOK, gin.H{"code": 0, "data": orderSummary(order)})
}

// adminRefund запускает ручной возврат. refund_id опционален и служит ключом
// идемпотентности повторной отправки формы; без него генерируется новый.
func (s *Server) adminRefund(c *gin.Context) {
	orderID := c.Param("id")

	var req struct {
		AmountMinor int64  `json:"amount_minor" binding:"required,min=1"`
		Reason      string `json:"reason"`
		RefundID    string `json:"refund_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	if req.RefundID == "" {
		req.RefundID = uuid.NewString()
	}

	if err := s.deps.Refunds.ApplyRefund(orderID, req.AmountMinor, req.RefundID, req.Reason); err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "order not found"})
		case errors.Is(err, domain.ErrRefundAmountInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "refund amount out of bounds"})
		case errors.Is(err, domain.ErrOrderNotRefundable):
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "order has no captured payment"})
		default:
			s.logger.WithError(err).Error("refund failed")
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"order_id": orderID, "refund_id": req.RefundID}})
}

// adminCreateProduct заводит товар с начальным остатком.
func (s *Server) adminCreateProduct(c *gin.Context) {
	var req struct {
		ID         string `json:"id"`
		Name       string `json:"name" binding:"required"`
		PriceMinor int64  `json:"price_minor" binding:"required,min=1"`
		Currency   string `json:"currency"`
		Stock      int64  `json:"stock" binding:"min=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	product := domain.Product{
		ID:         req.ID,
		Name:       req.Name,
		PriceMinor: req.PriceMinor,
		Currency:   req.Currency,
		Stock:      req.Stock,
	}
	if err := s.deps.Products.Create(product); err != nil {
		s.logger.WithError(err).Error("product creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": 0, "data": gin.H{"product_id": product.ID}})
}

// adminRestock атомарно увеличивает остаток товара (приёмка поставки).
func (s *Server) adminRestock(c *gin.Context) {
	productID := c.Param("id")

	var req struct {
		Qty int32 `json:"qty" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}

	if err := s.deps.Products.Restock(productID, req.Qty); err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "product not found"})
			return
		}
		s.logger.WithError(err).Error("restock failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	s.appendAudit(domain.AuditEntry{
		Action:     "product.restocked",
		EntityType: "product",
		EntityID:   productID,
		Metadata:   map[string]string{"qty": strconv.Itoa(int(req.Qty))},
		Severity:   domain.AuditSeverityInfo,
	})

	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "restocked"})
}

// adminCreatePayoutRule добавляет новое правило распределения выручки.
// Набор правил append-only: старые правила не редактируются.
func (s *Server) adminCreatePayoutRule(c *gin.Context) {
	var req struct {
		PartnerCode string `json:"partner_code" binding:"required"`
		Percent     string `json:"percent" binding:"required"`
		ValidFrom   string `json:"valid_from" binding:"required"`
		Priority    int    `json:"priority"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}

	percent, err := decimal.NewFromString(req.Percent)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "percent must be a decimal number"})
		return
	}
	validFrom, err := time.Parse(time.RFC3339, req.ValidFrom)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "valid_from must be RFC3339"})
		return
	}

	rule := domain.PayoutRule{
		ID:          uuid.NewString(),
		PartnerCode: req.PartnerCode,
		Percent:     percent,
		ValidFrom:   validFrom,
		Priority:    req.Priority,
	}
	if err := s.deps.Rules.Create(rule); err != nil {
		s.logger.WithError(err).Error("payout rule creation failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"code": 0, "data": gin.H{"rule_id": rule.ID}})
}

// adminMarkPayoutPaid помечает выплату проведённой (после ручного перевода).
func (s *Server) adminMarkPayoutPaid(c *gin.Context) {
	payoutID := c.Param("id")

	if err := s.deps.Payouts.MarkPaid(payoutID); err != nil {
		if errors.Is(err, domain.ErrPayoutNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "payout not found"})
			return
		}
		s.logger.WithError(err).Error("payout mark paid failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	s.appendAudit(domain.AuditEntry{
		Action:     "payout.paid",
		EntityType: "payout",
		EntityID:   payoutID,
		Severity:   domain.AuditSeverityInfo,
	})

	c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "paid"})
}

func (s *Server) appendAudit(entry domain.AuditEntry) {
	if s.deps.Audit == nil {
		return
	}
	if err := s.deps.Audit.Append(entry); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{
			"action":    entry.Action,
			"entity_id": entry.EntityID,
		}).Warn("failed to append audit entry")
	}
}

func orderSummary(order domain.Order) gin.H {
	return gin.H{
		"order_id":          order.ID,
		"amount_minor":      order.AmountMinor,
		"currency":          order.Currency,
		"status":            order.Status,
		"payment_status":    order.PaymentStatus,
		"payment_method":    order.PaymentMethod,
		"manual_review":     order.ManualReview,
		"stock_deducted_at": order.StockDeductedAt,
		"created_at":        order.CreatedAt.Format(time.RFC3339),
	}
}

func parseLimit(c *gin.Context, def int) int {
	raw := c.Query("limit")
	if raw == "" {
		return def
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}

func parseOffset(c *gin.Context) int {
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}
