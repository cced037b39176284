package paymentprovider

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/uniedit/payflow/internal/port/outbound"
)

// Registry holds payment provider adapters keyed by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]outbound.PaymentProviderPort
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]outbound.PaymentProviderPort)}
}

// Register registers a provider under its Name, replacing any previous one.
func (r *Registry) Register(provider outbound.PaymentProviderPort) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[strings.ToLower(provider.Name())] = provider
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (outbound.PaymentProviderPort, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", outbound.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns the registered provider names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// headerValue looks a header up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[http.CanonicalHeaderKey(name)]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Compile-time check
var _ outbound.PaymentProviderRegistryPort = (*Registry)(nil)
