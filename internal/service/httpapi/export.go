package httpapi

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const exportLimit = 10000

// exportLedgerCSV выгружает денежные движения, новые первыми.
func (s *Server) exportLedgerCSV(c *gin.Context) {
	entries, err := s.deps.Ledger.ListAll(exportLimit)
	if err != nil {
		s.logger.WithError(err).Error("ledger export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	rows := make([][]string, 0, len(entries)+1)
	rows = append(rows, []string{"id", "order_id", "type", "direction", "amount_minor", "currency", "dedupe_key", "created_at"})
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID,
			e.OrderID,
			string(e.Type),
			string(e.Direction),
			strconv.FormatInt(e.AmountMinor, 10),
			e.Currency,
			e.DedupeKey,
			e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeCSV(c, "ledger.csv", rows, s)
}

// exportOrdersCSV выгружает заказы с маскированными персональными данными:
// выгрузка уходит во внешние руки (бухгалтерия), полный PII ей не нужен.
func (s *Server) exportOrdersCSV(c *gin.Context) {
	orders, err := s.deps.Orders.List(domain.OrderFilter{Limit: exportLimit})
	if err != nil {
		s.logger.WithError(err).Error("orders export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	rows := make([][]string, 0, len(orders)+1)
	rows = append(rows, []string{"id", "email", "amount_minor", "currency", "status", "payment_status", "payment_method", "manual_review", "created_at"})
	for _, o := range orders {
		rows = append(rows, []string{
			o.ID,
			maskEmail(o.Customer.Email),
			strconv.FormatInt(o.AmountMinor, 10),
			o.Currency,
			string(o.Status),
			string(o.PaymentStatus),
			string(o.PaymentMethod),
			strconv.FormatBool(o.ManualReview),
			o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeCSV(c, "orders.csv", rows, s)
}

// exportPayoutsCSV выгружает партнёрские выплаты, новые первыми.
func (s *Server) exportPayoutsCSV(c *gin.Context) {
	payouts, err := s.deps.Payouts.ListAll(exportLimit)
	if err != nil {
		s.logger.WithError(err).Error("payouts export failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	rows := make([][]string, 0, len(payouts)+1)
	rows = append(rows, []string{"id", "order_id", "partner_code", "amount_minor", "currency", "status", "created_at"})
	for _, p := range payouts {
		rows = append(rows, []string{
			p.ID,
			p.OrderID,
			p.PartnerCode,
			strconv.FormatInt(p.AmountMinor, 10),
			p.Currency,
			string(p.Status),
			p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeCSV(c, "payouts.csv", rows, s)
}

func writeCSV(c *gin.Context, filename string, rows [][]string, s *Server) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	if err := w.WriteAll(rows); err != nil {
		// Заголовки уже ушли, статус не изменить: только лог.
		s.logger.WithError(err).WithField("file", filename).Error("csv write failed")
	}
}

// maskEmail оставляет первый символ локальной части и домен: достаточно
// для сверки, недостаточно для идентификации.
func maskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
