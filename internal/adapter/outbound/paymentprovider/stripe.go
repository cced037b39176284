package paymentprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/uniedit/payflow/internal/port/outbound"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// StripeProvider implements outbound.PaymentProviderPort with Stripe Checkout.
// The external id of a payment is the checkout session id.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
}

// NewStripeProvider creates a Stripe provider using httpClient for API calls.
func NewStripeProvider(config StripeConfig, httpClient *http.Client) *StripeProvider {
	return NewStripeProviderWithBackends(config, stripe.NewBackends(httpClient))
}

// NewStripeProviderWithBackends creates a Stripe provider on explicit backends.
func NewStripeProviderWithBackends(config StripeConfig, backends *stripe.Backends) *StripeProvider {
	api := &client.API{}
	api.Init(config.SecretKey, backends)
	return &StripeProvider{
		api:           api,
		webhookSecret: config.WebhookSecret,
		successURL:    config.SuccessURL,
		cancelURL:     config.CancelURL,
	}
}

func (p *StripeProvider) Name() string {
	return "stripe"
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req *outbound.PaymentIntentRequest) (*outbound.ProviderIntent, error) {
	successURL := firstNonEmpty(req.ReturnURL, p.successURL)
	cancelURL := firstNonEmpty(req.CancelURL, p.cancelURL)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(req.OrderID),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Amount.Currency)),
					UnitAmount: stripe.Int64(req.Amount.MinorUnits()),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Order " + req.OrderID),
					},
				},
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: copyMetadata(req.Metadata),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &outbound.ProviderIntent{
		ExternalID:  s.ID,
		CheckoutURL: s.URL,
		Status:      string(s.Status),
	}, nil
}

func (p *StripeProvider) ConfirmPayment(ctx context.Context, externalID string) (*outbound.ProviderConfirmation, error) {
	s, err := p.getSession(ctx, externalID)
	if err != nil {
		return nil, err
	}

	switch {
	case s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentSucceeded}, nil
	case s.Status == stripe.CheckoutSessionStatusExpired:
		return &outbound.ProviderConfirmation{
			Status:        outbound.ProviderPaymentFailed,
			FailureReason: "checkout session expired",
		}, nil
	default:
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentPending}, nil
	}
}

func (p *StripeProvider) Refund(ctx context.Context, externalID string, amount *outbound.ProviderAmount) (*outbound.ProviderRefund, error) {
	s, err := p.getSession(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if s.PaymentIntent == nil || s.PaymentIntent.ID == "" {
		return nil, fmt.Errorf("checkout session %s has no payment intent", externalID)
	}

	params := &stripe.RefundParams{PaymentIntent: stripe.String(s.PaymentIntent.ID)}
	params.Context = ctx
	if amount != nil {
		params.Amount = stripe.Int64(amount.MinorUnits())
	}
	if s.ClientReferenceID != "" {
		params.AddMetadata("order_id", s.ClientReferenceID)
	}
	params.SetIdempotencyKey(externalID + ":refund")

	r, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return &outbound.ProviderRefund{
		RefundID:      r.ID,
		Status:        string(r.Status),
		FailureReason: string(r.FailureReason),
	}, nil
}

func (p *StripeProvider) getSession(ctx context.Context, id string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")

	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	return s, nil
}

func (p *StripeProvider) ValidateWebhookSignature(payload []byte, signature string) bool {
	if signature == "" || p.webhookSecret == "" {
		return false
	}
	return webhook.ValidatePayload(payload, signature, p.webhookSecret) == nil
}

func (p *StripeProvider) ParseWebhookEvent(payload []byte, signature string) (*outbound.ProviderEvent, error) {
	if !p.ValidateWebhookSignature(payload, signature) {
		return nil, outbound.ErrInvalidSignature
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", outbound.ErrMalformedEvent, err)
	}
	if event.ID == "" || event.Data == nil {
		return nil, fmt.Errorf("%w: missing id or data", outbound.ErrMalformedEvent)
	}

	out := &outbound.ProviderEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Kind:       outbound.EventUnknown,
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "checkout.session.completed",
		"checkout.session.async_payment_succeeded",
		"checkout.session.async_payment_failed",
		"checkout.session.expired":
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%w: checkout session: %v", outbound.ErrMalformedEvent, err)
		}
		applyCheckoutSession(out, &s, event.Type)

	case "charge.refunded":
		var ch stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
			return nil, fmt.Errorf("%w: charge: %v", outbound.ErrMalformedEvent, err)
		}
		out.Kind = outbound.EventRefundCompleted
		out.OrderID = ch.Metadata["order_id"]
		out.Amount = formatMinor(ch.AmountRefunded)
		out.Currency = strings.ToUpper(string(ch.Currency))
		out.Metadata = copyMetadata(ch.Metadata)
		if ch.Refunds != nil && len(ch.Refunds.Data) > 0 {
			out.Metadata["refund_id"] = ch.Refunds.Data[0].ID
		}
	}
	return out, nil
}

func applyCheckoutSession(out *outbound.ProviderEvent, s *stripe.CheckoutSession, eventType stripe.EventType) {
	out.ExternalID = s.ID
	out.OrderID = firstNonEmpty(s.ClientReferenceID, s.Metadata["order_id"])
	out.Amount = formatMinor(s.AmountTotal)
	out.Currency = strings.ToUpper(string(s.Currency))
	out.Metadata = copyMetadata(s.Metadata)

	switch eventType {
	case "checkout.session.completed":
		// Delayed payment methods complete the session unpaid and settle later.
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
			s.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
			out.Kind = outbound.EventCheckoutCompleted
		}
	case "checkout.session.async_payment_succeeded":
		out.Kind = outbound.EventCheckoutCompleted
	case "checkout.session.async_payment_failed":
		out.Kind = outbound.EventPaymentFailed
		out.FailureReason = "async payment failed"
	case "checkout.session.expired":
		out.Kind = outbound.EventCheckoutExpired
		out.FailureReason = "checkout session expired"
	}
}

func (p *StripeProvider) ExtractSignature(headers map[string]string, _ []byte) string {
	return headerValue(headers, "Stripe-Signature")
}

// Compile-time check
var _ outbound.PaymentProviderPort = (*StripeProvider)(nil)
