// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// MemoryHub is a pure in-memory stand-in for the shared region: one payload
// slot that any number of handles, one per simulated participant, read and
// write under a process-local lock. Tests use it to exercise the bus without
// host-named primitives.
type MemoryHub struct {
	name string
	max  int64

	mu      sync.RWMutex
	payload []byte

	handleMu sync.Mutex
	handles  map[*MemoryRegion]struct{}
}

// NewMemoryHub creates a hub with the given payload capacity.
func NewMemoryHub(name string, maxPayload int64) *MemoryHub {
	return &MemoryHub{
		name:    name,
		max:     maxPayload,
		handles: make(map[*MemoryRegion]struct{}),
	}
}

// Region returns a new participant handle on the hub.
func (h *MemoryHub) Region() *MemoryRegion {
	r := &MemoryRegion{
		hub:     h,
		updated: make(chan struct{}, 1),
	}
	h.handleMu.Lock()
	h.handles[r] = struct{}{}
	h.handleMu.Unlock()
	return r
}

func (h *MemoryHub) announce() {
	h.handleMu.Lock()
	for r := range h.handles {
		select {
		case r.updated <- struct{}{}:
		default:
		}
	}
	h.handleMu.Unlock()
}

func (h *MemoryHub) drop(r *MemoryRegion) {
	h.handleMu.Lock()
	delete(h.handles, r)
	h.handleMu.Unlock()
}

// MemoryRegion is one participant's handle on a MemoryHub. It implements
// SharedMemory.
type MemoryRegion struct {
	hub     *MemoryHub
	updated chan struct{}
	closed  atomic.Bool
}

var _ SharedMemory = (*MemoryRegion)(nil)

// Name returns the hub name.
func (r *MemoryRegion) Name() string {
	return r.hub.name
}

// MaxPayloadSize returns the hub capacity.
func (r *MemoryRegion) MaxPayloadSize() int64 {
	return r.hub.max
}

// PayloadSize returns the current payload length.
func (r *MemoryRegion) PayloadSize() (uint32, error) {
	if r.closed.Load() {
		return 0, ErrDisposed
	}
	r.hub.mu.RLock()
	defer r.hub.mu.RUnlock()
	return uint32(len(r.hub.payload)), nil
}

// ReadPayload returns a copy of the current payload.
func (r *MemoryRegion) ReadPayload() ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrDisposed
	}
	r.hub.mu.RLock()
	defer r.hub.mu.RUnlock()
	return append([]byte(nil), r.hub.payload...), nil
}

// WritePayload replaces the payload and announces to every handle.
func (r *MemoryRegion) WritePayload(data []byte) error {
	if r.closed.Load() {
		return ErrDisposed
	}
	if int64(len(data)) > r.hub.max {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(data), r.hub.max)
	}
	r.hub.mu.Lock()
	r.hub.payload = append([]byte(nil), data...)
	r.hub.mu.Unlock()

	r.hub.announce()
	return nil
}

// UpdatePayload runs transform under the hub's write lock. A nil result with
// a nil error leaves the payload untouched and announces nothing.
func (r *MemoryRegion) UpdatePayload(transform func(current []byte) ([]byte, error)) error {
	if r.closed.Load() {
		return ErrDisposed
	}
	r.hub.mu.Lock()
	next, err := transform(append([]byte(nil), r.hub.payload...))
	if err != nil {
		r.hub.mu.Unlock()
		return err
	}
	if next == nil {
		r.hub.mu.Unlock()
		return nil
	}
	if int64(len(next)) > r.hub.max {
		r.hub.mu.Unlock()
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(next), r.hub.max)
	}
	r.hub.payload = next
	r.hub.mu.Unlock()

	r.hub.announce()
	return nil
}

// Updated returns the handle's change channel.
func (r *MemoryRegion) Updated() <-chan struct{} {
	return r.updated
}

// Close detaches the handle from the hub.
func (r *MemoryRegion) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.hub.drop(r)
	close(r.updated)
	return nil
}
