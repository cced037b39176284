package gin

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/port/inbound"
	apperrors "github.com/uniedit/payflow/internal/utils/errors"
	"github.com/uniedit/payflow/internal/utils/pagination"
)

// PaymentDefaults are applied to process requests that omit redirect URLs.
type PaymentDefaults struct {
	ReturnURL string
	CancelURL string
}

// paymentAdapter implements inbound.PaymentHttpPort.
type paymentAdapter struct {
	domain   payment.PaymentDomain
	defaults PaymentDefaults
}

// NewPaymentAdapter creates a new payment HTTP adapter.
func NewPaymentAdapter(domain payment.PaymentDomain, defaults PaymentDefaults) inbound.PaymentHttpPort {
	return &paymentAdapter{domain: domain, defaults: defaults}
}

// RegisterPaymentRoutes registers payment routes. Mutating routes are
// wrapped by idempotent when it is non-nil.
func RegisterPaymentRoutes(r *gin.RouterGroup, adapter inbound.PaymentHttpPort, idempotent gin.HandlerFunc) {
	payments := r.Group("/payments")
	if idempotent != nil {
		payments.Use(idempotent)
	}
	{
		payments.POST("", adapter.CreatePayment)
		payments.GET("", adapter.ListPayments)
		payments.GET("/:id", adapter.GetPayment)
		payments.GET("/:id/transactions", adapter.ListTransactions)
		payments.POST("/:id/process", adapter.ProcessPayment)
		payments.POST("/:id/confirm", adapter.ConfirmPayment)
		payments.POST("/:id/refund", adapter.RefundPayment)
		payments.POST("/:id/retry", adapter.RetryPayment)
	}
}

func (a *paymentAdapter) CreatePayment(c *gin.Context) {
	var req CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handleError(c, apperrors.BadRequest("invalid request body: order_id, amount and currency are required"))
		return
	}

	p, err := a.domain.CreatePayment(c.Request.Context(), payment.CreatePaymentInput{
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Provider: req.Provider,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toPaymentResponse(p))
}

func (a *paymentAdapter) ProcessPayment(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req ProcessPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		handleError(c, apperrors.BadRequest("invalid request body"))
		return
	}
	if req.ReturnURL == "" {
		req.ReturnURL = a.defaults.ReturnURL
	}
	if req.CancelURL == "" {
		req.CancelURL = a.defaults.CancelURL
	}

	p, err := a.domain.ProcessPayment(c.Request.Context(), id, payment.ProcessPaymentInput{
		ReturnURL: req.ReturnURL,
		CancelURL: req.CancelURL,
		Metadata:  req.Metadata,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (a *paymentAdapter) ConfirmPayment(c *gin.Context) {
	a.transition(c, a.domain.ConfirmPayment)
}

func (a *paymentAdapter) RefundPayment(c *gin.Context) {
	a.transition(c, a.domain.RefundPayment)
}

func (a *paymentAdapter) RetryPayment(c *gin.Context) {
	a.transition(c, a.domain.RetryPayment)
}

func (a *paymentAdapter) GetPayment(c *gin.Context) {
	a.transition(c, a.domain.GetPayment)
}

func (a *paymentAdapter) ListPayments(c *gin.Context) {
	var query ListPaymentsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		handleError(c, apperrors.BadRequest("invalid query parameters"))
		return
	}
	page := pagination.Normalize(query.Page, query.PageSize)

	payments, total, err := a.domain.ListPayments(c.Request.Context(), payment.Filter{
		OrderID:    query.OrderID,
		Status:     payment.PaymentStatus(query.Status),
		Provider:   query.Provider,
		Pagination: page,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	data := make([]PaymentResponse, 0, len(payments))
	for _, p := range payments {
		data = append(data, toPaymentResponse(p))
	}
	c.JSON(http.StatusOK, newPage(data, total, page))
}

func (a *paymentAdapter) ListTransactions(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	txns, err := a.domain.ListTransactions(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	data := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		data = append(data, toTransactionResponse(t))
	}
	c.JSON(http.StatusOK, gin.H{"data": data})
}

// transition runs a single-payment command addressed by :id.
func (a *paymentAdapter) transition(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*payment.Payment, error)) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	p, err := fn(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toPaymentResponse(p))
}

// Compile-time check
var _ inbound.PaymentHttpPort = (*paymentAdapter)(nil)
