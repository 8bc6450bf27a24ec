package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/finalize"
	"github.com/vladislavdragonenkov/storefront/internal/service/refund"
)

// Deps — зависимости HTTP-слоя. Notifier и AdminToken опциональны:
// пустой токен закрывает админские маршруты полностью.
type Deps struct {
	Orders   domain.OrderRepository
	Products domain.ProductRepository
	Ledger   domain.LedgerRepository
	Events   domain.EventRepository
	Payouts  domain.PayoutRepository
	Rules    domain.PayoutRuleRepository
	Audit    domain.AuditRepository

	Checkout *checkout.Service
	Finalize finalize.Orchestrator
	Refunds  *refund.Service
	Provider domain.PaymentProvider
	Notifier domain.EmailNotifier

	AdminToken string
	Logger     *log.Entry
}

// Server держит зависимости обработчиков. Сами обработчики — методы,
// маршруты собираются в Router.
type Server struct {
	deps   Deps
	logger *log.Entry
}

// NewServer создаёт HTTP-слой поверх готовых сервисов.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Server{deps: deps, logger: logger}
}

// Router регистрирует все маршруты и возвращает готовый gin.Engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	r.POST("/api/checkout", s.createOrder)
	r.GET("/api/checkout/verify/:session_id", s.verifySession)
	r.POST("/api/webhooks/stripe", s.stripeWebhook)
	r.GET("/api/orders", s.listCustomerOrders)

	admin := r.Group("/api/admin", s.adminAuth())
	{
		admin.GET("/orders", s.adminListOrders)
		admin.GET("/orders/:id", s.adminGetOrder)
		admin.POST("/orders/:id/status", s.adminChangeStatus)
		admin.POST("/orders/:id/refund", s.adminRefund)

		admin.POST("/products", s.adminCreateProduct)
		admin.POST("/products/:id/restock", s.adminRestock)

		admin.POST("/payout-rules", s.adminCreatePayoutRule)
		admin.POST("/payouts/:id/paid", s.adminMarkPayoutPaid)

		admin.GET("/export/ledger.csv", s.exportLedgerCSV)
		admin.GET("/export/orders.csv", s.exportOrdersCSV)
		admin.GET("/export/payouts.csv", s.exportPayoutsCSV)
	}

	return r
}

// adminAuth проверяет bearer-токен константным по времени сравнением.
// Пустой сконфигурированный токен означает «доступ закрыт», а не «доступ без
// авторизации».
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.AdminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": 403, "msg": "admin api disabled"})
			return
		}

		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.deps.AdminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "invalid admin token"})
			return
		}
		c.Next()
	}
}
