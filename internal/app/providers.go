package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uniedit/payflow/internal/adapter/outbound/paymentprovider"
	"github.com/uniedit/payflow/internal/infra/httpclient"
	"github.com/uniedit/payflow/internal/port/outbound"
)

// buildProviderRegistry registers every configured provider behind a
// circuit breaker. Providers without credentials are skipped.
func (a *App) buildProviderRegistry() (*paymentprovider.Registry, error) {
	registry := paymentprovider.NewRegistry()
	httpClient := httpclient.New(a.config.HTTPClient)

	breakerCfg := paymentprovider.BreakerConfig{
		FailureThreshold:    a.config.Breaker.FailureThreshold,
		Interval:            a.config.Breaker.Interval,
		Timeout:             a.config.Breaker.Timeout,
		MaxHalfOpenRequests: 1,
	}
	register := func(p outbound.PaymentProviderPort) {
		registry.Register(paymentprovider.NewBreakerProvider(p, breakerCfg, a.metrics, a.logger))
		a.logger.Info("payment provider registered", zap.String("provider", p.Name()))
	}

	if a.config.Stripe.SecretKey != "" {
		register(paymentprovider.NewStripeProvider(paymentprovider.StripeConfig{
			SecretKey:     a.config.Stripe.SecretKey,
			WebhookSecret: a.config.Stripe.WebhookSecret,
			SuccessURL:    a.config.Payment.ReturnURL,
			CancelURL:     a.config.Payment.CancelURL,
		}, httpClient))
	}

	if a.config.Paystack.SecretKey != "" {
		register(paymentprovider.NewPaystackProvider(paymentprovider.PaystackConfig{
			SecretKey:    a.config.Paystack.SecretKey,
			BaseURL:      a.config.Paystack.BaseURL,
			CallbackURL:  a.config.Payment.ReturnURL,
			DefaultEmail: a.config.Paystack.DefaultEmail,
		}, httpClient))
	}

	if a.config.Alipay.AppID != "" {
		alipay, err := paymentprovider.NewAlipayProvider(paymentprovider.AlipayConfig{
			AppID:           a.config.Alipay.AppID,
			PrivateKey:      a.config.Alipay.PrivateKey,
			AlipayPublicKey: a.config.Alipay.AlipayPublicKey,
			IsProd:          a.config.Alipay.IsProd,
			NotifyURL:       a.config.Alipay.NotifyURL,
			ReturnURL:       a.config.Payment.ReturnURL,
		})
		if err != nil {
			return nil, fmt.Errorf("alipay: %w", err)
		}
		register(alipay)
	}

	if len(registry.List()) == 0 {
		a.logger.Warn("no payment providers configured")
	}
	return registry, nil
}
