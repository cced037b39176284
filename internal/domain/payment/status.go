package payment

import "fmt"

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusRefunded   PaymentStatus = "refunded"
)

var transitions = map[PaymentStatus][]PaymentStatus{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {StatusPending},
	StatusRefunded:   {},
}

func (s PaymentStatus) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s PaymentStatus) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo checks if the status can transition to target.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func (s PaymentStatus) AllowedTransitions() []PaymentStatus {
	out := make([]PaymentStatus, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// IsTerminal reports whether no transition leaves s.
func (s PaymentStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []PaymentStatus {
	return []PaymentStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusRefunded}
}

// ParsePaymentStatus parses a persisted status string.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("unknown payment status %q", s)
	}
	return status, nil
}
