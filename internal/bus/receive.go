// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"errors"

	"github.com/steamcore/tinyipc/internal/ipc"
	"github.com/steamcore/tinyipc/internal/ipc/codec"
	"github.com/steamcore/tinyipc/internal/log"
	"github.com/steamcore/tinyipc/internal/metrics"
)

// run is the receiver worker. Each change announcement triggers one receive
// pass; announcements arriving during a pass coalesce, because the in-flight
// pass reads the latest log state when it takes the read lock.
func (b *MessageBus) run() {
	defer b.workerWg.Done()

	b.logger.Debug().Msg("receiver worker started")
	for {
		select {
		case <-b.ctx.Done():
			b.logger.Debug().Msg("receiver worker stopped")
			return
		case _, ok := <-b.region.Updated():
			if !ok {
				b.logger.Debug().Msg("receiver worker stopped, region closed")
				return
			}
			if err := b.Read(); err != nil && !errors.Is(err, ipc.ErrDisposed) {
				b.logger.Error().Err(err).Msg("receive pass failed")
			}
		}
	}
}

// Read runs one receive pass: decode the log under a read lock, forward
// every entry newer than the cursor that this instance did not publish, and
// advance the cursor. The receive gate serialises passes, so no entry can be
// delivered twice even when change events race.
func (b *MessageBus) Read() error {
	if b.disposed.Load() {
		return ipc.ErrDisposed
	}
	if err := b.acquireGate(); err != nil {
		return err
	}
	defer b.gate.Release(1)
	if b.disposed.Load() {
		return ipc.ErrDisposed
	}

	data, err := b.region.ReadPayload()
	if err != nil {
		return err
	}
	book, err := codec.Decode(data)
	if err != nil {
		// Torn write from a crashed publisher; the next successful write
		// repairs the region. The cursor stays put.
		b.logger.Warn().Msg("log book corrupt, skipping receive pass")
		return nil
	}

	readFrom := b.cursor
	b.cursor = book.LastID

	count := 0
	for i := range book.Entries {
		entry := &book.Entries[i]
		if entry.ID <= readFrom {
			continue
		}
		if entry.Instance == b.instanceID {
			continue
		}
		if len(entry.Message) == 0 {
			continue
		}
		b.fanOut(entry.Message)
		count++
	}

	if count > 0 {
		b.received.Add(uint64(count))
		metrics.AddReceived(b.opts.Name, count)
		b.logger.Trace().
			Int64(log.FieldLastID, book.LastID).
			Int(log.FieldQueued, count).
			Msg("receive pass")
	}
	return nil
}

// fanOut hands one message to every subscriber queue and every registered
// handler. Queue pushes never block; handler panics are contained here.
func (b *MessageBus) fanOut(message []byte) {
	b.subMu.Lock()
	for _, q := range b.subs {
		q.push(message)
	}
	b.subMu.Unlock()

	b.handlerMu.RLock()
	handlers := b.handlers
	b.handlerMu.RUnlock()
	for _, handler := range handlers {
		b.invoke(handler, message)
	}
}

func (b *MessageBus) invoke(handler func([]byte), message []byte) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncHandlerFailure(b.opts.Name)
			b.logger.Error().Interface("panic", r).Msg("message handler panicked")
		}
	}()
	handler(message)
}
