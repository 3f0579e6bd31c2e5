package service

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Wyydra/yasignal/internal/core/domain"
	"github.com/Wyydra/yasignal/internal/core/port"
)

// Registry maps client ids to their live endpoint. Each key is updated
// atomically on its own; there is no registry-wide lock.
type Registry struct {
	endpoints sync.Map // domain.ClientID -> port.Endpoint
	count     atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(ep port.Endpoint) error {
	if _, loaded := r.endpoints.LoadOrStore(ep.ID(), ep); loaded {
		return fmt.Errorf("register %q: %w", ep.ID(), domain.ErrDuplicateID)
	}
	r.count.Add(1)
	return nil
}

// Unregister removes ep if it is still the endpoint registered under its id.
func (r *Registry) Unregister(ep port.Endpoint) bool {
	if r.endpoints.CompareAndDelete(ep.ID(), ep) {
		r.count.Add(-1)
		return true
	}
	return false
}

func (r *Registry) Lookup(id domain.ClientID) (port.Endpoint, error) {
	v, ok := r.endpoints.Load(id)
	if !ok {
		return nil, fmt.Errorf("lookup %q: %w", id, domain.ErrNotFound)
	}
	return v.(port.Endpoint), nil
}

func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Each calls fn for every registered endpoint until fn returns false.
func (r *Registry) Each(fn func(port.Endpoint) bool) {
	r.endpoints.Range(func(_, v any) bool {
		return fn(v.(port.Endpoint))
	})
}
