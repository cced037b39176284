package gin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uniedit/payflow/internal/domain/payment"
	"github.com/uniedit/payflow/internal/domain/webhook"
	"github.com/uniedit/payflow/internal/port/outbound"
	"github.com/uniedit/payflow/internal/utils/middleware"
	"github.com/uniedit/payflow/internal/utils/pagination"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- mocks ---

type mockPaymentDomain struct {
	mock.Mock
}

func (m *mockPaymentDomain) paymentResult(args mock.Arguments) (*payment.Payment, error) {
	p, _ := args.Get(0).(*payment.Payment)
	return p, args.Error(1)
}

func (m *mockPaymentDomain) CreatePayment(ctx context.Context, in payment.CreatePaymentInput) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, in))
}

func (m *mockPaymentDomain) ProcessPayment(ctx context.Context, id uuid.UUID, in payment.ProcessPaymentInput) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id, in))
}

func (m *mockPaymentDomain) ConfirmPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id))
}

func (m *mockPaymentDomain) CompletePayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id))
}

func (m *mockPaymentDomain) FailPayment(ctx context.Context, id uuid.UUID, reason string) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id, reason))
}

func (m *mockPaymentDomain) RefundPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id))
}

func (m *mockPaymentDomain) RetryPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id))
}

func (m *mockPaymentDomain) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	return m.paymentResult(m.Called(ctx, id))
}

func (m *mockPaymentDomain) ListPayments(ctx context.Context, filter payment.Filter) ([]*payment.Payment, int64, error) {
	args := m.Called(ctx, filter)
	payments, _ := args.Get(0).([]*payment.Payment)
	return payments, args.Get(1).(int64), args.Error(2)
}

func (m *mockPaymentDomain) ListTransactions(ctx context.Context, id uuid.UUID) ([]*payment.Transaction, error) {
	args := m.Called(ctx, id)
	txns, _ := args.Get(0).([]*payment.Transaction)
	return txns, args.Error(1)
}

func (m *mockPaymentDomain) ApplyProviderEvent(ctx context.Context, provider string, event *outbound.ProviderEvent) error {
	return m.Called(ctx, provider, event).Error(0)
}

type mockWebhookDomain struct {
	mock.Mock
}

func (m *mockWebhookDomain) Receive(ctx context.Context, provider string, payload []byte, signature string) (*webhook.Event, error) {
	args := m.Called(ctx, provider, payload, signature)
	e, _ := args.Get(0).(*webhook.Event)
	return e, args.Error(1)
}

func (m *mockWebhookDomain) ProcessEvent(ctx context.Context, e *webhook.Event) (webhook.ProcessResult, error) {
	args := m.Called(ctx, e)
	return args.Get(0).(webhook.ProcessResult), args.Error(1)
}

func (m *mockWebhookDomain) ExtractSignature(provider string, headers map[string]string, payload []byte) (string, error) {
	args := m.Called(provider, headers, payload)
	return args.String(0), args.Error(1)
}

func (m *mockWebhookDomain) GetEvent(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*webhook.Event)
	return e, args.Error(1)
}

func (m *mockWebhookDomain) ListDeadLetters(ctx context.Context, page, pageSize int) ([]*webhook.Event, int64, error) {
	args := m.Called(ctx, page, pageSize)
	events, _ := args.Get(0).([]*webhook.Event)
	return events, args.Get(1).(int64), args.Error(2)
}

func (m *mockWebhookDomain) RetryDeadLetterEvent(ctx context.Context, id uuid.UUID) (*webhook.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*webhook.Event)
	return e, args.Error(1)
}

// --- helpers ---

func newTestPayment(t *testing.T) *payment.Payment {
	t.Helper()
	amount, err := payment.MoneyFromString("49.90", "USD")
	require.NoError(t, err)
	p, err := payment.NewPayment("order-1", amount, "stripe")
	require.NoError(t, err)
	return p
}

func newRouter(payments payment.PaymentDomain, webhooks webhook.WebhookDomain, auth gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	api := router.Group("/api/v1")
	RegisterPaymentRoutes(api, NewPaymentAdapter(payments, PaymentDefaults{ReturnURL: "https://shop.example/return"}), nil)
	RegisterWebhookRoutes(api, NewWebhookAdapter(webhooks))
	if auth == nil {
		auth = func(c *gin.Context) { c.Next() }
	}
	RegisterDeadLetterRoutes(api, NewDeadLetterAdapter(webhooks), auth)
	return router
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error.Code
}

// --- payments ---

func TestPaymentAdapter_CreatePayment(t *testing.T) {
	t.Run("creates a payment", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		p := newTestPayment(t)
		domain.On("CreatePayment", mock.Anything, payment.CreatePaymentInput{
			OrderID: "order-1", Amount: "49.90", Currency: "USD", Provider: "stripe",
		}).Return(p, nil)

		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments",
			`{"order_id":"order-1","amount":"49.90","currency":"USD","provider":"stripe"}`, nil)

		require.Equal(t, http.StatusCreated, w.Code)
		var resp PaymentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, p.ID().String(), resp.ID)
		assert.Equal(t, "49.90", resp.Amount)
		assert.Equal(t, "USD", resp.Currency)
		assert.Equal(t, "pending", resp.Status)
		domain.AssertExpectations(t)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments", `{"order_id":`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "BAD_REQUEST", errorCode(t, w))
		domain.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	})

	t.Run("reports the invalid field", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		domain.On("CreatePayment", mock.Anything, mock.Anything).
			Return(nil, &payment.ValidationError{Field: "amount", Err: payment.ErrInvalidAmount})

		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments",
			`{"order_id":"o","amount":"-1","currency":"USD"}`, nil)

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCode(t, w))
		assert.Contains(t, w.Body.String(), `"field":"amount"`)
	})
}

func TestPaymentAdapter_Commands(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name       string
		path       string
		method     string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"get not found", "", "GetPayment", payment.ErrPaymentNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"refund in wrong state", "/refund", "RefundPayment",
			&payment.InvalidPaymentStateError{CurrentState: payment.StatusPending, AttemptedAction: "refund"},
			http.StatusConflict, "INVALID_PAYMENT_STATE"},
		{"refund rejected by provider", "/refund", "RefundPayment",
			&payment.PaymentProviderError{Provider: "stripe", Operation: "refund", Err: fmt.Errorf("card_declined")},
			http.StatusBadGateway, "PROVIDER_ERROR"},
		{"confirm with open breaker", "/confirm", "ConfirmPayment",
			&payment.PaymentProviderError{Provider: "stripe", Operation: "confirm_payment", Err: outbound.ErrProviderUnavailable},
			http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"retry concurrent write", "/retry", "RetryPayment", payment.ErrConcurrentModification, http.StatusConflict, "CONFLICT"},
		{"unexpected error", "/retry", "RetryPayment", fmt.Errorf("db exploded"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domain := &mockPaymentDomain{}
			domain.On(tt.method, mock.Anything, id).Return(nil, tt.err)

			method := http.MethodPost
			if tt.path == "" {
				method = http.MethodGet
			}
			w := do(newRouter(domain, &mockWebhookDomain{}, nil), method, "/api/v1/payments/"+id.String()+tt.path, "", nil)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
			assert.NotContains(t, w.Body.String(), "db exploded")
			assert.NotContains(t, w.Body.String(), "card_declined")
		})
	}

	t.Run("rejects a malformed id", func(t *testing.T) {
		w := do(newRouter(&mockPaymentDomain{}, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments/not-a-uuid/refund", "", nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, w.Body.String(), `"field":"id"`)
	})

	t.Run("refund returns the payment", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		p := newTestPayment(t)
		domain.On("RefundPayment", mock.Anything, p.ID()).Return(p, nil)

		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments/"+p.ID().String()+"/refund", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), p.ID().String())
	})
}

func TestPaymentAdapter_ProcessPayment(t *testing.T) {
	t.Run("applies default redirect urls", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		p := newTestPayment(t)
		domain.On("ProcessPayment", mock.Anything, p.ID(), payment.ProcessPaymentInput{
			ReturnURL: "https://shop.example/return",
			CancelURL: "https://shop.example/cancel",
		}).Return(p, nil)

		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments/"+p.ID().String()+"/process",
			`{"cancel_url":"https://shop.example/cancel"}`, nil)

		assert.Equal(t, http.StatusOK, w.Code)
		domain.AssertExpectations(t)
	})

	t.Run("accepts an empty body", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		p := newTestPayment(t)
		domain.On("ProcessPayment", mock.Anything, p.ID(), mock.Anything).Return(p, nil)

		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments/"+p.ID().String()+"/process", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("already processed", func(t *testing.T) {
		domain := &mockPaymentDomain{}
		id := uuid.New()
		domain.On("ProcessPayment", mock.Anything, id, mock.Anything).
			Return(nil, fmt.Errorf("%w: payment is processing", payment.ErrPaymentAlreadyProcessed))

		w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodPost, "/api/v1/payments/"+id.String()+"/process", "", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "PAYMENT_ALREADY_PROCESSED", errorCode(t, w))
	})
}

func TestPaymentAdapter_ListPayments(t *testing.T) {
	domain := &mockPaymentDomain{}
	p := newTestPayment(t)
	domain.On("ListPayments", mock.Anything, payment.Filter{
		Status:     payment.StatusPending,
		Pagination: pagination.Pagination{Page: 2, PageSize: 1},
	}).Return([]*payment.Payment{p}, int64(3), nil)

	w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodGet, "/api/v1/payments?status=pending&page=2&page_size=1", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp PaginatedResponse[PaymentResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.Page)
	assert.Equal(t, 3, resp.TotalPages)
}

func TestPaymentAdapter_ListTransactions(t *testing.T) {
	domain := &mockPaymentDomain{}
	p := newTestPayment(t)
	txn := payment.NewTransaction(p, payment.TransactionCharge, payment.TransactionSucceeded, "cs_1", "")
	domain.On("ListTransactions", mock.Anything, p.ID()).Return([]*payment.Transaction{txn}, nil)

	w := do(newRouter(domain, &mockWebhookDomain{}, nil), http.MethodGet, "/api/v1/payments/"+p.ID().String()+"/transactions", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"type":"charge"`)
	assert.Contains(t, w.Body.String(), `"external_id":"cs_1"`)
}

// --- webhooks ---

func TestWebhookAdapter_HandleWebhook(t *testing.T) {
	payload := `{"id":"evt_1"}`

	t.Run("acknowledges a stored event", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("ExtractSignature", "stripe", mock.Anything, []byte(payload)).Return("t=1,v1=abc", nil)
		domain.On("Receive", mock.Anything, "stripe", []byte(payload), "t=1,v1=abc").
			Return(&webhook.Event{ExternalEventID: "evt_1"}, nil)

		w := do(newRouter(&mockPaymentDomain{}, domain, nil), http.MethodPost, "/api/v1/webhooks/Stripe", payload,
			map[string]string{"Stripe-Signature": "t=1,v1=abc"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"received":true,"event_id":"evt_1"}`, w.Body.String())
		domain.AssertExpectations(t)
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("ExtractSignature", "stripe", mock.Anything, mock.Anything).Return("forged", nil)
		domain.On("Receive", mock.Anything, "stripe", mock.Anything, "forged").Return(nil, outbound.ErrInvalidSignature)

		w := do(newRouter(&mockPaymentDomain{}, domain, nil), http.MethodPost, "/api/v1/webhooks/stripe", payload, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_SIGNATURE", errorCode(t, w))
	})

	t.Run("rejects a missing signature", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("ExtractSignature", "stripe", mock.Anything, mock.Anything).Return("", nil)

		w := do(newRouter(&mockPaymentDomain{}, domain, nil), http.MethodPost, "/api/v1/webhooks/stripe", payload, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		domain.AssertNotCalled(t, "Receive", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects an empty body", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		w := do(newRouter(&mockPaymentDomain{}, domain, nil), http.MethodPost, "/api/v1/webhooks/stripe", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown provider", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("ExtractSignature", "venmo", mock.Anything, mock.Anything).
			Return("", fmt.Errorf("%w: venmo", outbound.ErrProviderNotFound))

		w := do(newRouter(&mockPaymentDomain{}, domain, nil), http.MethodPost, "/api/v1/webhooks/venmo", payload, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("storage failure is not acknowledged", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("ExtractSignature", "stripe", mock.Anything, mock.Anything).Return("sig", nil)
		domain.On("Receive", mock.Anything, "stripe", mock.Anything, "sig").Return(nil, fmt.Errorf("store webhook event: connection refused"))

		w := do(newRouter(&mockPaymentDomain{}, domain, nil), http.MethodPost, "/api/v1/webhooks/stripe", payload, nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

// --- dead letters ---

func TestDeadLetterAdapter(t *testing.T) {
	validator := middleware.NewJWTValidator("admin-secret")
	token, err := validator.IssueToken("ops", time.Hour)
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	dead := &webhook.Event{
		ID:              uuid.New(),
		Provider:        "stripe",
		ExternalEventID: "evt_dead",
		Status:          webhook.StatusDeadLetter,
		RetryCount:      5,
		MaxRetries:      5,
		LastError:       "payment not found",
		Payload:         []byte(`{"secret":"raw"}`),
	}

	t.Run("requires an admin token", func(t *testing.T) {
		w := do(newRouter(&mockPaymentDomain{}, &mockWebhookDomain{}, middleware.AdminAuth(validator)),
			http.MethodGet, "/api/v1/admin/webhooks/dead-letters", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("lists dead letters", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("ListDeadLetters", mock.Anything, 1, 20).Return([]*webhook.Event{dead}, int64(1), nil)

		w := do(newRouter(&mockPaymentDomain{}, domain, middleware.AdminAuth(validator)),
			http.MethodGet, "/api/v1/admin/webhooks/dead-letters", "", auth)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"external_event_id":"evt_dead"`)
		assert.Contains(t, w.Body.String(), `"status":"dead_letter"`)
		assert.NotContains(t, w.Body.String(), "raw")
	})

	t.Run("retries a dead letter", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		replayed := *dead
		replayed.Status = webhook.StatusProcessed
		domain.On("RetryDeadLetterEvent", mock.Anything, dead.ID).Return(&replayed, nil)

		w := do(newRouter(&mockPaymentDomain{}, domain, middleware.AdminAuth(validator)),
			http.MethodPost, "/api/v1/admin/webhooks/dead-letters/"+dead.ID.String()+"/retry", "", auth)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"processed"`)
	})

	t.Run("retry of a live event conflicts", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("RetryDeadLetterEvent", mock.Anything, dead.ID).Return(nil, webhook.ErrNotDeadLettered)

		w := do(newRouter(&mockPaymentDomain{}, domain, middleware.AdminAuth(validator)),
			http.MethodPost, "/api/v1/admin/webhooks/dead-letters/"+dead.ID.String()+"/retry", "", auth)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("replay limit", func(t *testing.T) {
		domain := &mockWebhookDomain{}
		domain.On("RetryDeadLetterEvent", mock.Anything, dead.ID).Return(nil, webhook.ErrReplayLimited)

		w := do(newRouter(&mockPaymentDomain{}, domain, middleware.AdminAuth(validator)),
			http.MethodPost, "/api/v1/admin/webhooks/dead-letters/"+dead.ID.String()+"/retry", "", auth)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	})
}
