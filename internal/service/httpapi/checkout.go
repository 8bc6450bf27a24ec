package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
)

type checkoutItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Qty       int32  `json:"qty" binding:"required,min=1"`
	Size      string `json:"size"`
}

type checkoutRequest struct {
	Customer struct {
		Name    string `json:"name" binding:"required"`
		Email   string `json:"email" binding:"required,email"`
		Phone   string `json:"phone"`
		Street  string `json:"street"`
		City    string `json:"city"`
		Zip     string `json:"zip"`
		Country string `json:"country"`
	} `json:"customer" binding:"required"`
	Items    []checkoutItemRequest `json:"items" binding:"required,min=1"`
	Shipping *struct {
		Carrier       string `json:"carrier"`
		PickupPointID string `json:"pickup_point_id"`
		PriceMinor    int64  `json:"price_minor"`
	} `json:"shipping"`
	PaymentMethod string `json:"payment_method"`
	Currency      string `json:"currency"`
}

// createOrder принимает черновик заказа с витрины. Сток здесь только
// проверяется, списание произойдёт после подтверждения оплаты.
func (s *Server) createOrder(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		return
	}

	input := checkout.CreateOrderInput{
		Customer: domain.Customer{
			Name:    req.Customer.Name,
			Email:   req.Customer.Email,
			Phone:   req.Customer.Phone,
			Street:  req.Customer.Street,
			City:    req.Customer.City,
			Zip:     req.Customer.Zip,
			Country: req.Customer.Country,
		},
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Currency:      req.Currency,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, checkout.ItemInput{
			ProductID: item.ProductID,
			Qty:       item.Qty,
			Size:      item.Size,
		})
	}
	if req.Shipping != nil {
		input.Shipping = &domain.ShippingInfo{
			Carrier:       req.Shipping.Carrier,
			PickupPointID: req.Shipping.PickupPointID,
			PriceMinor:    req.Shipping.PriceMinor,
		}
	}

	order, err := s.deps.Checkout.CreateOrder(input)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrProductNotFound):
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "product not found"})
		case errors.Is(err, domain.ErrInsufficientStock):
			c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "insufficient stock"})
		case errors.Is(err, domain.ErrItemsRequired), errors.Is(err, domain.ErrItemQtyInvalid):
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
		default:
			s.logger.WithError(err).Error("checkout failed")
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"code": 0,
		"data": gin.H{
			"order_id":            order.ID,
			"amount_minor":        order.AmountMinor,
			"currency":            order.Currency,
			"status":              order.Status,
			"payment_status":      order.PaymentStatus,
			"withdrawal_deadline": order.WithdrawalDeadline().Format(time.RFC3339),
		},
	})
}

// listCustomerOrders возвращает заказы покупателя по email, новые первыми.
func (s *Server) listCustomerOrders(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "email is required"})
		return
	}

	orders, err := s.deps.Orders.ListByCustomer(email, parseLimit(c, 20))
	if err != nil {
		s.logger.WithError(err).Error("list customer orders failed")
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "internal error"})
		return
	}

	summaries := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, orderSummary(order))
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": summaries})
}
