package commerce

import (
	"fmt"

	"github.com/littleloop/backend/internal/domain/retailer"
)

// BackendRegistry resolves retailer adapters by code. Registration happens
// at startup; lookups are read-only afterwards, so no locking is needed.
type BackendRegistry struct {
	backends map[retailer.Code]retailer.Backend
	ordered  []retailer.Backend
}

var _ retailer.Registry = (*BackendRegistry)(nil)

// NewBackendRegistry creates a registry with the given adapters
func NewBackendRegistry(backends ...retailer.Backend) *BackendRegistry {
	r := &BackendRegistry{
		backends: make(map[retailer.Code]retailer.Backend, len(backends)),
		ordered:  make([]retailer.Backend, 0, len(backends)),
	}
	for _, b := range backends {
		if _, exists := r.backends[b.Code()]; exists {
			continue
		}
		r.backends[b.Code()] = b
		r.ordered = append(r.ordered, b)
	}
	return r
}

// Backend returns the adapter for a retailer code
func (r *BackendRegistry) Backend(code retailer.Code) (retailer.Backend, error) {
	b, ok := r.backends[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", retailer.ErrUnknownRetailer, code)
	}
	return b, nil
}

// Backends returns all registered adapters in registration order
func (r *BackendRegistry) Backends() []retailer.Backend {
	return r.ordered
}
