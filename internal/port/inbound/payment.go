package inbound

import "github.com/gin-gonic/gin"

// PaymentHttpPort defines HTTP handler interface for payment operations.
type PaymentHttpPort interface {
	// CreatePayment handles POST /payments
	CreatePayment(c *gin.Context)

	// ProcessPayment handles POST /payments/:id/process
	// Opens a checkout at the payment's provider.
	ProcessPayment(c *gin.Context)

	// ConfirmPayment handles POST /payments/:id/confirm
	// Pulls the payment's state from the provider.
	ConfirmPayment(c *gin.Context)

	// RefundPayment handles POST /payments/:id/refund
	RefundPayment(c *gin.Context)

	// RetryPayment handles POST /payments/:id/retry
	// Reopens a failed payment.
	RetryPayment(c *gin.Context)

	// GetPayment handles GET /payments/:id
	GetPayment(c *gin.Context)

	// ListPayments handles GET /payments
	ListPayments(c *gin.Context)

	// ListTransactions handles GET /payments/:id/transactions
	ListTransactions(c *gin.Context)
}

// WebhookHttpPort defines HTTP handler interface for provider notifications.
type WebhookHttpPort interface {
	// HandleWebhook handles POST /webhooks/:provider
	HandleWebhook(c *gin.Context)
}

// DeadLetterHttpPort defines HTTP handler interface for dead-letter administration.
type DeadLetterHttpPort interface {
	// ListDeadLetters handles GET /admin/webhooks/dead-letters
	ListDeadLetters(c *gin.Context)

	// RetryDeadLetter handles POST /admin/webhooks/dead-letters/:id/retry
	RetryDeadLetter(c *gin.Context)
}
