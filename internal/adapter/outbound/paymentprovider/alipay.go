package paymentprovider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"github.com/google/uuid"
	"github.com/uniedit/payflow/internal/port/outbound"
)

const alipaySuccessCode = "10000"

// AlipayConfig holds Alipay configuration.
type AlipayConfig struct {
	AppID           string
	PrivateKey      string
	AlipayPublicKey string
	IsProd          bool
	NotifyURL       string
	ReturnURL       string
}

// AlipayProvider implements outbound.PaymentProviderPort with Alipay page
// pay. The external id is the merchant out_trade_no; Alipay signs its
// asynchronous notifications inside the form body.
type AlipayProvider struct {
	client    *alipay.Client
	publicKey string
}

// NewAlipayProvider creates a new Alipay provider.
func NewAlipayProvider(config AlipayConfig) (*AlipayProvider, error) {
	client, err := alipay.NewClient(config.AppID, config.PrivateKey, config.IsProd)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}
	client.AutoVerifySign([]byte(config.AlipayPublicKey))
	if config.NotifyURL != "" {
		client.SetNotifyUrl(config.NotifyURL)
	}
	if config.ReturnURL != "" {
		client.SetReturnUrl(config.ReturnURL)
	}

	return &AlipayProvider{client: client, publicKey: config.AlipayPublicKey}, nil
}

func (p *AlipayProvider) Name() string {
	return "alipay"
}

// CreatePaymentIntent opens a desktop page-pay checkout. Alipay redirects to
// the configured return URL.
func (p *AlipayProvider) CreatePaymentIntent(ctx context.Context, req *outbound.PaymentIntentRequest) (*outbound.ProviderIntent, error) {
	if !strings.EqualFold(req.Amount.Currency, "CNY") {
		return nil, fmt.Errorf("alipay: unsupported currency %s", req.Amount.Currency)
	}
	outTradeNo := alipayTradeNo(req.IdempotencyKey)

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", outTradeNo)
	bm.Set("total_amount", req.Amount.Value.StringFixed(2))
	bm.Set("subject", "Order "+req.OrderID)
	bm.Set("product_code", "FAST_INSTANT_TRADE_PAY")
	bm.Set("timeout_express", "30m")
	if orderID := req.Metadata["order_id"]; orderID != "" {
		bm.Set("passback_params", url.QueryEscape("order_id="+orderID))
	}

	payURL, err := p.client.TradePagePay(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("create page payment: %w", err)
	}
	return &outbound.ProviderIntent{
		ExternalID:  outTradeNo,
		CheckoutURL: payURL,
		Status:      "WAIT_BUYER_PAY",
	}, nil
}

func (p *AlipayProvider) ConfirmPayment(ctx context.Context, externalID string) (*outbound.ProviderConfirmation, error) {
	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", externalID)

	resp, err := p.client.TradeQuery(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("query trade: %w", err)
	}
	if resp.Response.Code != alipaySuccessCode {
		return nil, fmt.Errorf("alipay query error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	switch resp.Response.TradeStatus {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentSucceeded}, nil
	case "TRADE_CLOSED":
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentFailed, FailureReason: "trade closed"}, nil
	default:
		return &outbound.ProviderConfirmation{Status: outbound.ProviderPaymentPending}, nil
	}
}

func (p *AlipayProvider) Refund(ctx context.Context, externalID string, amount *outbound.ProviderAmount) (*outbound.ProviderRefund, error) {
	refundAmount := ""
	if amount != nil {
		refundAmount = amount.Value.StringFixed(2)
	} else {
		query := make(gopay.BodyMap)
		query.Set("out_trade_no", externalID)
		resp, err := p.client.TradeQuery(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("query trade for refund: %w", err)
		}
		refundAmount = resp.Response.TotalAmount
	}

	refundID := externalID + "_refund"
	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", externalID)
	bm.Set("out_request_no", refundID)
	bm.Set("refund_amount", refundAmount)

	resp, err := p.client.TradeRefund(ctx, bm)
	if err != nil {
		return nil, fmt.Errorf("refund trade: %w", err)
	}
	if resp.Response.Code != alipaySuccessCode {
		return nil, fmt.Errorf("alipay refund error: %s - %s", resp.Response.Code, resp.Response.Msg)
	}

	status := "pending"
	if resp.Response.FundChange == "Y" {
		status = "succeeded"
	}
	return &outbound.ProviderRefund{RefundID: refundID, Status: status}, nil
}

func (p *AlipayProvider) ValidateWebhookSignature(payload []byte, signature string) bool {
	bm, err := alipayNotifyBody(payload)
	if err != nil || signature == "" || bm.GetString("sign") != signature {
		return false
	}
	ok, err := alipay.VerifySign(p.publicKey, bm)
	return err == nil && ok
}

func (p *AlipayProvider) ParseWebhookEvent(payload []byte, signature string) (*outbound.ProviderEvent, error) {
	if !p.ValidateWebhookSignature(payload, signature) {
		return nil, outbound.ErrInvalidSignature
	}
	bm, err := alipayNotifyBody(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", outbound.ErrMalformedEvent, err)
	}

	notifyID := bm.GetString("notify_id")
	if notifyID == "" {
		return nil, fmt.Errorf("%w: missing notify_id", outbound.ErrMalformedEvent)
	}

	out := &outbound.ProviderEvent{
		ID:         notifyID,
		Type:       bm.GetString("trade_status"),
		Kind:       outbound.EventUnknown,
		ExternalID: bm.GetString("out_trade_no"),
		Amount:     bm.GetString("total_amount"),
		Currency:   "CNY",
		OccurredAt: time.Now().UTC(),
		Metadata: map[string]string{
			"trade_no": bm.GetString("trade_no"),
		},
	}
	if t, err := time.ParseInLocation(time.DateTime, bm.GetString("notify_time"), alipayLocation); err == nil {
		out.OccurredAt = t.UTC()
	}
	if passback, err := url.ParseQuery(unescape(bm.GetString("passback_params"))); err == nil {
		out.OrderID = passback.Get("order_id")
	}

	switch out.Type {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		out.Kind = outbound.EventCheckoutCompleted
	case "TRADE_CLOSED":
		if bm.GetString("gmt_refund") != "" || bm.GetString("refund_fee") != "" {
			out.Kind = outbound.EventRefundCompleted
			out.Metadata["refund_id"] = bm.GetString("out_biz_no")
		} else {
			out.Kind = outbound.EventCheckoutExpired
			out.FailureReason = "trade closed"
		}
	}
	return out, nil
}

func (p *AlipayProvider) ExtractSignature(_ map[string]string, payload []byte) string {
	bm, err := alipayNotifyBody(payload)
	if err != nil {
		return ""
	}
	return bm.GetString("sign")
}

var alipayLocation = time.FixedZone("CST", 8*60*60)

func alipayNotifyBody(payload []byte) (gopay.BodyMap, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, err
	}
	bm := make(gopay.BodyMap, len(values))
	for k, v := range values {
		if len(v) > 0 {
			bm.Set(k, v[0])
		}
	}
	return bm, nil
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// alipayTradeNo derives an out_trade_no (alphanumerics and "_", at most 64
// characters) from an idempotency key.
func alipayTradeNo(key string) string {
	if key == "" {
		key = uuid.NewString()
	}
	no := strings.NewReplacer("-", "", ":", "_").Replace(key)
	if len(no) > 64 {
		no = no[:64]
	}
	return no
}

// Compile-time check
var _ outbound.PaymentProviderPort = (*AlipayProvider)(nil)
