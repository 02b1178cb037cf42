// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus implements the inter-process broadcast message bus. Publishers
// append opaque byte messages to a size-bounded log in shared memory; every
// other participant on the same bus name observes each message at most once,
// in publish order. There is no broker: the shared region and its lock do all
// of the coordination.
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/steamcore/tinyipc/internal/config"
	"github.com/steamcore/tinyipc/internal/ipc"
	"github.com/steamcore/tinyipc/internal/ipc/codec"
	"github.com/steamcore/tinyipc/internal/ipc/mmf"
	"github.com/steamcore/tinyipc/internal/log"
)

// ErrEmptyMessage is returned by Publish for a zero-length message.
var ErrEmptyMessage = errors.New("bus: message must not be empty")

const (
	// writeSlot bounds how long one publisher may hold the write lock in a
	// single append pass.
	writeSlot = 100 * time.Millisecond

	// fullLogBackoff is the pause between append passes while waiting for
	// aged entries to become trimmable.
	fullLogBackoff = 50 * time.Millisecond
)

// MessageBus is one participant on a named bus. It owns its subscribers and,
// unless constructed with a borrowed region, the shared region underneath.
type MessageBus struct {
	opts       config.Options
	region     ipc.SharedMemory
	ownsRegion bool
	instanceID uuid.UUID

	// gate serialises receive passes; cursor is only touched while holding
	// it. A Read that finds a pass in flight waits for the gate, up to the
	// wait timeout.
	gate   *semaphore.Weighted
	cursor int64

	published atomic.Uint64
	received  atomic.Uint64

	subMu     sync.Mutex
	subs      map[uint64]*queue
	nextSubID uint64

	handlerMu sync.RWMutex
	handlers  []func(message []byte)

	ctx      context.Context
	cancel   context.CancelFunc
	closing  chan struct{}
	workerWg sync.WaitGroup
	pumpWg   sync.WaitGroup
	disposed atomic.Bool

	logger zerolog.Logger
}

// New creates a bus participant with its own shared region.
func New(opts config.Options) (*MessageBus, error) {
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	region, err := mmf.Open(opts.Name, opts.MaxFileSize, opts.MaxReaderCount, opts.WaitTimeout)
	if err != nil {
		return nil, err
	}
	b, err := NewWithRegion(region, true, opts)
	if err != nil {
		region.Close()
		return nil, err
	}
	return b, nil
}

// NewWithRegion creates a bus participant over an externally supplied region.
// The bus closes the region on Close only when owned is true.
func NewWithRegion(region ipc.SharedMemory, owned bool, opts config.Options) (*MessageBus, error) {
	opts.Name = region.Name()
	opts.ApplyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &MessageBus{
		opts:       opts,
		region:     region,
		ownsRegion: owned,
		instanceID: uuid.New(),
		gate:       semaphore.NewWeighted(1),
		subs:       make(map[uint64]*queue),
		ctx:        ctx,
		cancel:     cancel,
		closing:    make(chan struct{}),
		logger:     log.WithBus("bus", opts.Name),
	}

	// Seed the cursor from the current log so history published before this
	// participant joined is never replayed to its subscribers.
	data, err := region.ReadPayload()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bus: initial read: %w", err)
	}
	book, err := codec.Decode(data)
	if err != nil {
		b.logger.Warn().Msg("log book corrupt at join, starting from empty")
		book = codec.LogBook{}
	}
	b.cursor = book.LastID

	b.workerWg.Add(1)
	go b.run()

	b.logger.Debug().
		Str(log.FieldInstanceID, b.instanceID.String()).
		Int64(log.FieldCursor, b.cursor).
		Msg("bus participant joined")
	return b, nil
}

// InstanceID returns the 128-bit identifier receivers use to filter this
// participant's own entries.
func (b *MessageBus) InstanceID() uuid.UUID {
	return b.instanceID
}

// MessagesPublished returns the number of messages this instance appended.
func (b *MessageBus) MessagesPublished() uint64 {
	return b.published.Load()
}

// MessagesReceived returns the number of messages this instance forwarded to
// its subscribers.
func (b *MessageBus) MessagesReceived() uint64 {
	return b.received.Load()
}

// ResetMetrics zeroes both counters.
func (b *MessageBus) ResetMetrics() error {
	if b.disposed.Load() {
		return ipc.ErrDisposed
	}
	b.published.Store(0)
	b.received.Store(0)
	return nil
}

// OnMessageReceived registers a handler invoked synchronously for every
// received entry. A panicking handler is logged and never propagates.
func (b *MessageBus) OnMessageReceived(handler func(message []byte)) {
	if handler == nil {
		return
	}
	b.handlerMu.Lock()
	b.handlers = append(b.handlers, handler)
	b.handlerMu.Unlock()
}

// Subscribe registers a subscriber and returns its message channel. The
// channel yields every received message in order and is closed when ctx is
// cancelled or the bus is disposed. Receive passes never block on a slow
// subscriber; pending messages queue without bound.
func (b *MessageBus) Subscribe(ctx context.Context) (<-chan []byte, error) {
	if b.disposed.Load() {
		return nil, ipc.ErrDisposed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q := newQueue()
	b.subMu.Lock()
	if b.disposed.Load() {
		b.subMu.Unlock()
		return nil, ipc.ErrDisposed
	}
	b.nextSubID++
	id := b.nextSubID
	b.subs[id] = q
	b.subMu.Unlock()

	out := make(chan []byte)
	b.pumpWg.Add(1)
	go func() {
		defer b.pumpWg.Done()
		defer close(out)
		defer func() {
			b.subMu.Lock()
			delete(b.subs, id)
			b.subMu.Unlock()
		}()

		for {
			msg, ok := q.pop(ctx, b.closing)
			if !ok {
				return
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			case <-b.closing:
				return
			}
		}
	}()

	return out, nil
}

// Close disposes the participant. Subscriber channels are completed, the
// receiver worker is awaited, and the region is closed when owned. A Timeout
// acquiring the receive gate fails the close rather than disposing the region
// under an in-flight receive; the participant is marked disposed either way.
func (b *MessageBus) Close() error {
	if b.disposed.Swap(true) {
		return nil
	}
	b.cancel()
	close(b.closing)

	b.subMu.Lock()
	for _, q := range b.subs {
		q.close()
	}
	b.subMu.Unlock()

	b.workerWg.Wait()
	b.pumpWg.Wait()

	var firstErr error
	if b.ownsRegion {
		if err := b.acquireGate(); err != nil {
			b.logger.Error().Err(err).Msg("close: receive gate busy, leaving region open")
			firstErr = err
		} else {
			if err := b.region.Close(); err != nil {
				firstErr = err
			}
			b.gate.Release(1)
		}
	}

	b.logger.Debug().Msg("bus participant closed")
	return firstErr
}

// acquireGate takes the receive gate within the wait timeout.
func (b *MessageBus) acquireGate() error {
	if b.gate.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.opts.WaitTimeout)
	defer cancel()
	if err := b.gate.Acquire(ctx, 1); err != nil {
		return ipc.ErrTimeout
	}
	return nil
}
