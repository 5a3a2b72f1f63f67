package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry maps vault ids to their Handler. Handlers are created on first
// reference and live as long as the registry.
type Registry struct {
	mu         sync.Mutex
	handlers   map[int64]*Handler
	newHandler func(id int64) *Handler
}

// NewRegistry creates an empty Registry that builds handlers with newHandler.
func NewRegistry(newHandler func(id int64) *Handler) *Registry {
	return &Registry{
		handlers:   make(map[int64]*Handler),
		newHandler: newHandler,
	}
}

// GetOrCreate returns the handler for id, creating it if needed. The map lock
// is released before returning; operations on the handler are serialized by
// the handler itself.
func (r *Registry) GetOrCreate(id int64) *Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[id]
	if !ok {
		h = r.newHandler(id)
		r.handlers[id] = h
	}
	return h
}

// Lookup returns the handler for id if one was created.
func (r *Registry) Lookup(id int64) (*Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handlers[id]
	return h, ok
}

// Handlers returns a snapshot of all handlers ordered by id.
func (r *Registry) Handlers() []*Handler {
	r.mu.Lock()
	out := make([]*Handler, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// LockAll locks every unlocked vault, continuing past failures.
func (r *Registry) LockAll(ctx context.Context) error {
	var errs []error
	for _, h := range r.Handlers() {
		if !h.Unlocked() {
			continue
		}
		if err := h.Lock(ctx, ""); err != nil {
			errs = append(errs, fmt.Errorf("vault %d: %w", h.id, err))
		}
	}
	return errors.Join(errs...)
}
