// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mmf provides the shared memory region the bus stores its log in: a
// fixed-capacity byte slot keyed by name, mediated by a cross-process
// reader/writer lock, with a change signal every participant watches.
//
// Region layout: the first 4 bytes are a little-endian uint32 payload length
// L, followed by L payload bytes and zero padding up to the capacity. The
// change signal is a monotonic generation counter in its own shared word;
// writers increment it and wake all watchers, so no wakeup is lost when two
// writers signal in rapid succession.
package mmf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/steamcore/tinyipc/internal/ipc"
	"github.com/steamcore/tinyipc/internal/ipc/futex"
	"github.com/steamcore/tinyipc/internal/ipc/rwlock"
	"github.com/steamcore/tinyipc/internal/log"
)

const lengthHeaderSize = 4

// The watcher re-arms at least this often so it can observe disposal that
// races with signal bookkeeping, even under long wait timeouts.
const maxWatchPoll = 500 * time.Millisecond

// SharedRegion is a fixed-capacity shared storage slot backed by a
// memory-mapped file. All operations are mediated by the owned NamedLock.
type SharedRegion struct {
	name        string
	maxFileSize int64
	waitTimeout time.Duration

	lock     *rwlock.NamedLock
	ownsLock bool

	file   *os.File
	mem    []byte
	signal *futex.Word

	updated chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	logger zerolog.Logger
}

// Open creates or attaches to the region named by the bus name, along with
// its lock and change signal. The mapped file is maxFileSize+4 bytes; a
// freshly created region has a zero length header.
func Open(name string, maxFileSize int64, maxReaders int, waitTimeout time.Duration) (*SharedRegion, error) {
	if maxFileSize < 1 {
		return nil, fmt.Errorf("mmf: maxFileSize must be >= 1, got %d", maxFileSize)
	}

	lock, err := rwlock.Open(name, maxReaders, waitTimeout)
	if err != nil {
		return nil, err
	}
	region, err := openWithLock(name, maxFileSize, waitTimeout, lock, true)
	if err != nil {
		lock.Close()
		return nil, err
	}
	return region, nil
}

// OpenWithLock attaches to the region using an externally supplied lock. The
// region closes the lock on Close only when owned is true.
func OpenWithLock(name string, maxFileSize int64, waitTimeout time.Duration, lock *rwlock.NamedLock, owned bool) (*SharedRegion, error) {
	if maxFileSize < 1 {
		return nil, fmt.Errorf("mmf: maxFileSize must be >= 1, got %d", maxFileSize)
	}
	return openWithLock(name, maxFileSize, waitTimeout, lock, owned)
}

func openWithLock(name string, maxFileSize int64, waitTimeout time.Duration, lock *rwlock.NamedLock, owned bool) (*SharedRegion, error) {
	path := ipc.ObjectPath(ipc.RegionPrefix, name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ipc.ErrPrimitiveUnavailable, path, err)
	}

	mem, err := mapRegionFile(file, maxFileSize+lengthHeaderSize)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: map %s: %v", ipc.ErrPrimitiveUnavailable, path, err)
	}

	signal, err := futex.Open(ipc.ObjectPath(ipc.SignalPrefix, name), 0)
	if err != nil {
		unmapRegionFile(mem)
		file.Close()
		return nil, err
	}

	r := &SharedRegion{
		name:        name,
		maxFileSize: maxFileSize,
		waitTimeout: waitTimeout,
		lock:        lock,
		ownsLock:    owned,
		file:        file,
		mem:         mem,
		signal:      signal,
		updated:     make(chan struct{}, 1),
		done:        make(chan struct{}),
		logger:      log.WithBus("mmf", name),
	}

	// Take the starting generation before returning, so a write made right
	// after Open is always seen as a change by the watcher.
	r.wg.Add(1)
	go r.watch(signal.Load())

	return r, nil
}

// Name returns the bus name the region is keyed by.
func (r *SharedRegion) Name() string {
	return r.name
}

// MaxPayloadSize returns the payload capacity in bytes.
func (r *SharedRegion) MaxPayloadSize() int64 {
	return r.maxFileSize
}

// Lock exposes the mediating lock for diagnostics and tests.
func (r *SharedRegion) Lock() *rwlock.NamedLock {
	return r.lock
}

// PayloadSize returns the current payload length under a read lock.
func (r *SharedRegion) PayloadSize() (uint32, error) {
	if r.closed.Load() {
		return 0, ipc.ErrDisposed
	}
	guard, err := r.lock.AcquireRead()
	if err != nil {
		return 0, err
	}
	defer guard.Release()

	return r.length(), nil
}

// ReadPayload returns a copy of the current payload under a read lock. Bytes
// beyond the length header are never exposed.
func (r *SharedRegion) ReadPayload() ([]byte, error) {
	if r.closed.Load() {
		return nil, ipc.ErrDisposed
	}
	guard, err := r.lock.AcquireRead()
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	return r.payloadCopy(), nil
}

// WritePayload replaces the payload under a write lock, then announces the
// change to every participant's watcher.
func (r *SharedRegion) WritePayload(data []byte) error {
	if r.closed.Load() {
		return ipc.ErrDisposed
	}
	if int64(len(data)) > r.maxFileSize {
		return fmt.Errorf("%w: %d > %d", ipc.ErrPayloadTooLarge, len(data), r.maxFileSize)
	}

	guard, err := r.lock.AcquireWrite()
	if err != nil {
		return err
	}
	r.store(data)
	guard.Release()

	r.announce()
	return nil
}

// UpdatePayload runs transform under a write lock with a copy of the current
// payload and writes back the returned bytes. A nil result with a nil error
// leaves the region untouched and announces nothing.
func (r *SharedRegion) UpdatePayload(transform func(current []byte) ([]byte, error)) error {
	if r.closed.Load() {
		return ipc.ErrDisposed
	}

	guard, err := r.lock.AcquireWrite()
	if err != nil {
		return err
	}

	next, err := transform(r.payloadCopy())
	if err != nil {
		guard.Release()
		return err
	}
	if next == nil {
		guard.Release()
		return nil
	}
	if int64(len(next)) > r.maxFileSize {
		guard.Release()
		return fmt.Errorf("%w: %d > %d", ipc.ErrPayloadTooLarge, len(next), r.maxFileSize)
	}
	r.store(next)
	guard.Release()

	r.announce()
	return nil
}

// Updated returns the edge-coalesced change channel. It is closed when the
// region is closed.
func (r *SharedRegion) Updated() <-chan struct{} {
	return r.updated
}

// Close stops the watcher and releases this participant's handles. The named
// objects persist while any other participant holds them.
func (r *SharedRegion) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	close(r.done)
	r.wg.Wait()
	close(r.updated)

	// The owned lock closes first: its latch refuses while any lock this
	// instance owns is held, so a region operation can never be in flight
	// when the mapping goes away. If the lock cannot close, leak the mapping
	// rather than unmap under a writer.
	if r.ownsLock {
		if err := r.lock.Close(); err != nil {
			return err
		}
	}

	var firstErr error
	if err := r.signal.Close(); err != nil {
		firstErr = err
	}
	if r.mem != nil {
		if err := unmapRegionFile(r.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.mem = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.file = nil
	}
	return firstErr
}

// length reads the header. Callers hold at least a read lock.
func (r *SharedRegion) length() uint32 {
	n := binary.LittleEndian.Uint32(r.mem[:lengthHeaderSize])
	if int64(n) > r.maxFileSize {
		// A crashed writer can leave a torn header; expose it as empty and
		// let the next successful write repair it.
		return 0
	}
	return n
}

// payloadCopy snapshots the payload. Callers hold at least a read lock.
func (r *SharedRegion) payloadCopy() []byte {
	n := r.length()
	out := make([]byte, n)
	copy(out, r.mem[lengthHeaderSize:lengthHeaderSize+int(n)])
	return out
}

// store writes the header and payload. Callers hold the write lock.
func (r *SharedRegion) store(data []byte) {
	binary.LittleEndian.PutUint32(r.mem[:lengthHeaderSize], uint32(len(data)))
	copy(r.mem[lengthHeaderSize:], data)
}

// announce bumps the generation counter and wakes every watcher.
func (r *SharedRegion) announce() {
	if r.closed.Load() {
		return
	}
	r.signal.Add(1)
	if err := r.signal.WakeAll(); err != nil {
		r.logger.Error().Err(err).Msg("change signal wake failed")
	}
}

// watch blocks on the change signal and forwards each observed generation
// bump to the updated channel. The channel send is non-blocking: an update
// arriving while one is already pending coalesces with it, because the
// eventual reader observes the latest region state anyway.
func (r *SharedRegion) watch(gen uint32) {
	defer r.wg.Done()

	poll := r.waitTimeout
	if poll <= 0 || poll > maxWatchPoll {
		poll = maxWatchPoll
	}

	r.logger.Debug().Msg("region watcher started")
	for {
		select {
		case <-r.done:
			r.logger.Debug().Msg("region watcher stopped")
			return
		default:
		}

		if err := r.signal.Wait(gen, poll); err != nil {
			if errors.Is(err, ipc.ErrTimeout) {
				continue
			}
			r.logger.Error().Err(err).Msg("change signal wait failed")
			continue
		}

		cur := r.signal.Load()
		if cur == gen {
			continue
		}
		gen = cur

		select {
		case r.updated <- struct{}{}:
		default:
		}
	}
}
