// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/steamcore/tinyipc/internal/ipc"
	"github.com/steamcore/tinyipc/internal/ipc/codec"
	"github.com/steamcore/tinyipc/internal/log"
	"github.com/steamcore/tinyipc/internal/metrics"
)

// Publish appends one message to the shared log. It returns once the message
// is committed, ctx is cancelled, or the bus is disposed. Callers wanting the
// fire-and-forget form run it on a goroutine.
func (b *MessageBus) Publish(ctx context.Context, message []byte) error {
	if b.disposed.Load() {
		return ipc.ErrDisposed
	}
	if len(message) == 0 {
		return ErrEmptyMessage
	}
	return b.PublishBatch(ctx, [][]byte{message})
}

// PublishBatch appends messages in input order. Empty messages are skipped.
// The batch is committed across one or more write passes: each pass trims
// aged entries, appends as many queued messages as capacity and the write
// slot allow, and announces the change. Between passes the publisher backs
// off so other participants can read and older entries can age out.
func (b *MessageBus) PublishBatch(ctx context.Context, messages [][]byte) error {
	if b.disposed.Load() {
		return ipc.ErrDisposed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	maxPayload := b.region.MaxPayloadSize()
	pending := make([][]byte, 0, len(messages))
	for _, msg := range messages {
		if len(msg) == 0 {
			continue
		}
		if int64(codec.BookOverhead+codec.EntryOverhead+len(msg)) > maxPayload {
			return fmt.Errorf("%w: entry needs %d bytes, log capacity is %d",
				ipc.ErrPayloadTooLarge, codec.BookOverhead+codec.EntryOverhead+len(msg), maxPayload)
		}
		pending = append(pending, msg)
	}

	for len(pending) > 0 {
		var appended, trimmed int
		err := b.region.UpdatePayload(func(current []byte) ([]byte, error) {
			book, err := codec.Decode(current)
			if err != nil {
				// A torn write from a crashed publisher; start from an empty
				// book and repair the region with this write.
				b.logger.Warn().Msg("log book corrupt, rewriting from empty")
				book = codec.LogBook{}
			}

			now := ipc.MonotonicNow()
			cutoff := now - b.opts.MinMessageAge.Nanoseconds()
			trimmed = 0
			for trimmed < len(book.Entries) && book.Entries[trimmed].Timestamp < cutoff {
				trimmed++
			}
			book.Entries = book.Entries[trimmed:]

			size := codec.EncodedSize(book)
			slotStart := time.Now()
			appended = 0
			for len(pending) > 0 && time.Since(slotStart) < writeSlot {
				msg := pending[0]
				cost := codec.EntryOverhead + len(msg)
				if int64(size+cost) > maxPayload {
					break
				}
				pending = pending[1:]
				book.LastID++
				book.Entries = append(book.Entries, codec.LogEntry{
					ID:        book.LastID,
					Instance:  b.instanceID,
					Timestamp: now,
					Message:   msg,
				})
				size += cost
				appended++
			}

			if appended == 0 && trimmed == 0 {
				return nil, nil
			}
			return codec.Encode(book), nil
		})
		if err != nil {
			return err
		}

		if appended > 0 {
			b.published.Add(uint64(appended))
			metrics.AddPublished(b.opts.Name, appended)
		}
		metrics.AddTrimmed(b.opts.Name, trimmed)
		b.logger.Trace().
			Int(log.FieldAppended, appended).
			Int(log.FieldTrimmed, trimmed).
			Int(log.FieldQueued, len(pending)).
			Msg("write pass")

		if len(pending) == 0 {
			break
		}
		select {
		case <-time.After(fullLogBackoff):
		case <-ctx.Done():
			return ctx.Err()
		case <-b.ctx.Done():
			return ipc.ErrDisposed
		}
	}
	return nil
}
