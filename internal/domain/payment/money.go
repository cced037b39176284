package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is an upper-case ISO 4217 code.
type Currency string

func (c Currency) String() string { return string(c) }

const moneyScale = 2

var (
	defaultMaxAmount = decimal.NewFromInt(1_000_000)

	defaultCurrencies = []Currency{"USD", "EUR", "GBP", "NGN", "GHS", "ZAR", "KES", "CNY"}
)

// MoneyPolicy holds the limits every Money value is validated against.
type MoneyPolicy struct {
	MaxAmount  decimal.Decimal
	Currencies map[Currency]struct{}
}

var policy = NewMoneyPolicy(defaultMaxAmount, nil)

// NewMoneyPolicy builds a policy. Empty currencies fall back to the default set.
func NewMoneyPolicy(maxAmount decimal.Decimal, currencies []string) MoneyPolicy {
	p := MoneyPolicy{
		MaxAmount:  maxAmount,
		Currencies: make(map[Currency]struct{}),
	}
	if !p.MaxAmount.IsPositive() {
		p.MaxAmount = defaultMaxAmount
	}
	if len(currencies) == 0 {
		for _, c := range defaultCurrencies {
			p.Currencies[c] = struct{}{}
		}
		return p
	}
	for _, c := range currencies {
		p.Currencies[Currency(strings.ToUpper(strings.TrimSpace(c)))] = struct{}{}
	}
	return p
}

// SetMoneyPolicy replaces the process-wide policy. Call it once at startup.
func SetMoneyPolicy(p MoneyPolicy) {
	policy = p
}

// CurrentMoneyPolicy returns the active policy.
func CurrentMoneyPolicy() MoneyPolicy {
	return policy
}

// Money is an immutable amount in a supported currency, rounded to cents.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// NewMoney validates and normalizes an amount.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	cur := Currency(strings.ToUpper(strings.TrimSpace(currency)))
	if _, ok := policy.Currencies[cur]; !ok {
		return Money{}, &ValidationError{Field: "currency", Err: fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)}
	}

	if amount.IsNegative() {
		return Money{}, &ValidationError{Field: "amount", Err: ErrInvalidAmount}
	}
	amount = amount.Round(moneyScale)
	if amount.GreaterThan(policy.MaxAmount) {
		return Money{}, &ValidationError{Field: "amount", Err: ErrAmountExceedsMaximum}
	}

	return Money{amount: amount, currency: cur}, nil
}

// MoneyFromString parses a decimal string such as "99.99".
func MoneyFromString(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, &ValidationError{Field: "amount", Err: fmt.Errorf("%w: %q", ErrInvalidAmount, amount)}
	}
	return NewMoney(d, currency)
}

// MoneyFromMinorUnits builds Money from an integer amount of cents.
func MoneyFromMinorUnits(units int64, currency string) (Money, error) {
	return NewMoney(decimal.New(units, -moneyScale), currency)
}

// RestoreMoney recreates persisted Money without applying the current policy.
func RestoreMoney(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount.Round(moneyScale), currency: Currency(strings.ToUpper(currency))}
}

func (m Money) Amount() decimal.Decimal { return m.amount }
func (m Money) Currency() Currency      { return m.currency }
func (m Money) IsZero() bool            { return m.amount.IsZero() }

// MinorUnits returns the amount in cents.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(moneyScale).IntPart()
}

// Equals reports whether both values have the same amount and currency.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, currencyMismatch(m.currency, other.currency)
	}
	return NewMoney(m.amount.Add(other.amount), string(m.currency))
}

// Subtract returns m - other. The result must not be negative.
func (m Money) Subtract(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, currencyMismatch(m.currency, other.currency)
	}
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, &ValidationError{Field: "amount", Err: ErrNegativeResult}
	}
	return NewMoney(result, string(m.currency))
}

// Multiply returns m * factor. The factor must not be negative.
func (m Money) Multiply(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, &ValidationError{Field: "factor", Err: ErrNegativeResult}
	}
	return NewMoney(m.amount.Mul(factor), string(m.currency))
}

// String renders the value as "99.99 USD".
func (m Money) String() string {
	return m.amount.StringFixed(moneyScale) + " " + string(m.currency)
}

func currencyMismatch(a, b Currency) error {
	return &ValidationError{Field: "currency", Err: fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a, b)}
}
