package paymentprovider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/uniedit/payflow/internal/port/outbound"
)

const defaultPaystackBaseURL = "https://api.paystack.co"

// PaystackConfig holds Paystack configuration.
type PaystackConfig struct {
	SecretKey    string
	BaseURL      string
	CallbackURL  string
	DefaultEmail string
}

// PaystackProvider implements outbound.PaymentProviderPort against the
// Paystack REST API. The external id of a payment is the transaction
// reference, which doubles as Paystack's idempotency handle.
type PaystackProvider struct {
	config PaystackConfig
	client *http.Client
}

// NewPaystackProvider creates a Paystack provider.
func NewPaystackProvider(config PaystackConfig, httpClient *http.Client) *PaystackProvider {
	if config.BaseURL == "" {
		config.BaseURL = defaultPaystackBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &PaystackProvider{config: config, client: httpClient}
}

func (p *PaystackProvider) Name() string {
	return "paystack"
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackTransaction struct {
	ID              int64            `json:"id"`
	Reference       string           `json:"reference"`
	Status          string           `json:"status"`
	Amount          int64            `json:"amount"`
	Currency        string           `json:"currency"`
	GatewayResponse string           `json:"gateway_response"`
	PaidAt          string           `json:"paid_at"`
	Metadata        paystackMetadata `json:"metadata"`
}

// paystackMetadata tolerates the API returning metadata as an object, an
// empty string or a JSON-encoded string.
type paystackMetadata map[string]string

func (m *paystackMetadata) UnmarshalJSON(data []byte) error {
	out := paystackMetadata{}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if json.Unmarshal(data, &s) != nil || s == "" {
			*m = out
			return nil
		}
		if json.Unmarshal([]byte(s), &raw) != nil {
			*m = out
			return nil
		}
	}
	for k, v := range raw {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		case nil:
		default:
			b, _ := json.Marshal(tv)
			out[k] = string(b)
		}
	}
	*m = out
	return nil
}

type paystackRefund struct {
	ID          int64  `json:"id"`
	Status      string `json:"status"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Transaction struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
	} `json:"transaction"`
	TransactionReference string           `json:"transaction_reference"`
	RefundReference      string           `json:"refund_reference"`
	Metadata             paystackMetadata `json:"metadata"`
}

func (p *PaystackProvider) CreatePaymentIntent(ctx context.Context, req *outbound.PaymentIntentRequest) (*outbound.ProviderIntent, error) {
	reference := paystackReference(req.IdempotencyKey)
	email := firstNonEmpty(req.Metadata["email"], p.config.DefaultEmail)

	body := map[string]any{
		"email":        email,
		"amount":       strconv.FormatInt(req.Amount.MinorUnits(), 10),
		"currency":     strings.ToUpper(req.Amount.Currency),
		"reference":    reference,
		"callback_url": firstNonEmpty(req.ReturnURL, p.config.CallbackURL),
		"metadata":     req.Metadata,
	}

	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}
	if err := p.do(ctx, http.MethodPost, "/transaction/initialize", "initialize_transaction", body, &out); err != nil {
		return nil, err
	}
	return &outbound.ProviderIntent{
		ExternalID:  firstNonEmpty(out.Reference, reference),
		CheckoutURL: out.AuthorizationURL,
		Status:      "initialized",
	}, nil
}

func (p *PaystackProvider) ConfirmPayment(ctx context.Context, externalID string) (*outbound.ProviderConfirmation, error) {
	var tx paystackTransaction
	if err := p.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(externalID), "verify_transaction", nil, &tx); err != nil {
		return nil, err
	}

	switch tx.Status {
	case "success":
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentSucceeded}, nil
	case "failed", "abandoned", "reversed":
		return &outbound.ProviderConfirmation{
			Status:        outbound.ProviderPaymentFailed,
			FailureReason: firstNonEmpty(tx.GatewayResponse, tx.Status),
		}, nil
	default:
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentPending}, nil
	}
}

func (p *PaystackProvider) Refund(ctx context.Context, externalID string, amount *outbound.ProviderAmount) (*outbound.ProviderRefund, error) {
	body := map[string]any{"transaction": externalID}
	if amount != nil {
		body["amount"] = strconv.FormatInt(amount.MinorUnits(), 10)
	}

	var r paystackRefund
	if err := p.do(ctx, http.MethodPost, "/refund", "refund", body, &r); err != nil {
		return nil, err
	}
	return &outbound.ProviderRefund{
		RefundID: strconv.FormatInt(r.ID, 10),
		Status:   r.Status,
	}, nil
}

func (p *PaystackProvider) do(ctx context.Context, method, path, operation string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("paystack %s: encode request: %w", operation, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", operation, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paystack %s: read response: %w", operation, err)
	}

	var env paystackEnvelope
	_ = json.Unmarshal(raw, &env)
	if resp.StatusCode >= 300 || !env.Status {
		return &RequestError{
			Provider:   "paystack",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    firstNonEmpty(env.Message, http.StatusText(resp.StatusCode)),
		}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("paystack %s: decode response: %w", operation, err)
		}
	}
	return nil
}

// ValidateWebhookSignature checks the hex HMAC-SHA512 of the raw body keyed
// with the secret key.
func (p *PaystackProvider) ValidateWebhookSignature(payload []byte, signature string) bool {
	if signature == "" || p.config.SecretKey == "" {
		return false
	}
	expected, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.config.SecretKey))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), expected)
}

func (p *PaystackProvider) ParseWebhookEvent(payload []byte, signature string) (*outbound.ProviderEvent, error) {
	if !p.ValidateWebhookSignature(payload, signature) {
		return nil, outbound.ErrInvalidSignature
	}

	var envelope struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", outbound.ErrMalformedEvent, err)
	}
	if envelope.Event == "" || len(envelope.Data) == 0 {
		return nil, fmt.Errorf("%w: missing event or data", outbound.ErrMalformedEvent)
	}

	out := &outbound.ProviderEvent{
		Type:       envelope.Event,
		Kind:       outbound.EventUnknown,
		OccurredAt: time.Now().UTC(),
	}

	switch {
	case strings.HasPrefix(envelope.Event, "refund."):
		var r paystackRefund
		if err := json.Unmarshal(envelope.Data, &r); err != nil {
			return nil, fmt.Errorf("%w: refund: %v", outbound.ErrMalformedEvent, err)
		}
		if r.ID == 0 {
			return nil, fmt.Errorf("%w: refund without id", outbound.ErrMalformedEvent)
		}
		refundID := strconv.FormatInt(r.ID, 10)
		out.ID = envelope.Event + ":" + refundID
		out.ExternalID = firstNonEmpty(r.TransactionReference, r.Transaction.Reference)
		out.Amount = formatMinor(r.Amount)
		out.Currency = r.Currency
		out.Metadata = copyMetadata(r.Metadata)
		out.Metadata["refund_id"] = refundID
		out.OrderID = r.Metadata["order_id"]
		if envelope.Event == "refund.processed" {
			out.Kind = outbound.EventRefundCompleted
		}

	default:
		var tx paystackTransaction
		if err := json.Unmarshal(envelope.Data, &tx); err != nil {
			return nil, fmt.Errorf("%w: transaction: %v", outbound.ErrMalformedEvent, err)
		}
		if tx.ID == 0 {
			return nil, fmt.Errorf("%w: transaction without id", outbound.ErrMalformedEvent)
		}
		out.ID = envelope.Event + ":" + strconv.FormatInt(tx.ID, 10)
		out.ExternalID = tx.Reference
		out.Amount = formatMinor(tx.Amount)
		out.Currency = tx.Currency
		out.Metadata = copyMetadata(tx.Metadata)
		out.OrderID = tx.Metadata["order_id"]
		if t, err := time.Parse(time.RFC3339, tx.PaidAt); err == nil {
			out.OccurredAt = t.UTC()
		}
		switch envelope.Event {
		case "charge.success":
			out.Kind = outbound.EventCheckoutCompleted
		case "charge.failed":
			out.Kind = outbound.EventPaymentFailed
			out.FailureReason = firstNonEmpty(tx.GatewayResponse, "charge failed")
		}
	}
	return out, nil
}

func (p *PaystackProvider) ExtractSignature(headers map[string]string, _ []byte) string {
	return headerValue(headers, "X-Paystack-Signature")
}

// paystackReference derives a transaction reference from an idempotency key.
// References accept alphanumerics and "-", ".", "=".
func paystackReference(key string) string {
	if key == "" {
		return "pf-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return strings.NewReplacer(":", "-", "_", "-").Replace(key)
}

// Compile-time check
var _ outbound.PaymentProviderPort = (*PaystackProvider)(nil)
