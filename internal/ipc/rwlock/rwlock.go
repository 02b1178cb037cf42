// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package rwlock implements a multi-reader/single-writer lock over a
// system-wide name. Up to maxReaders processes may read concurrently; a
// writer drains every permit before proceeding, so it excludes readers and
// writers alike. Acquisition order is always local latch, named mutex, then
// semaphore permits.
package rwlock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/steamcore/tinyipc/internal/ipc"
	"github.com/steamcore/tinyipc/internal/ipc/futex"
	"github.com/steamcore/tinyipc/internal/log"
)

// NamedLock coordinates access to a shared resource across processes. It is
// built from two host-named primitives, a mutex and a counting semaphore
// initialised to maxReaders permits. A local single-permit latch serialises
// acquisition attempts made by the same instance so one instance cannot
// over-commit its own capacity from multiple goroutines.
type NamedLock struct {
	name        string
	maxReaders  int
	waitTimeout time.Duration

	latch *semaphore.Weighted
	mutex *namedMutex
	sem   *namedSemaphore

	readers atomic.Int32
	writer  atomic.Bool
	closed  atomic.Bool

	logger zerolog.Logger
}

// Guard releases a held lock. Release is idempotent and runs on every exit
// path the caller takes.
type Guard struct {
	once    sync.Once
	release func()
}

// Release returns the lock's permits and frees the local latch.
func (g *Guard) Release() {
	g.once.Do(g.release)
}

// Open creates or attaches to the named lock. The named objects persist in
// the host for as long as any process holds them.
func Open(name string, maxReaders int, waitTimeout time.Duration) (*NamedLock, error) {
	if maxReaders < 1 {
		return nil, fmt.Errorf("rwlock: maxReaders must be >= 1, got %d", maxReaders)
	}

	mutexWord, err := futex.Open(ipc.ObjectPath(ipc.MutexPrefix, name), 0)
	if err != nil {
		return nil, fmt.Errorf("rwlock: mutex: %w", err)
	}
	semWord, err := futex.Open(ipc.ObjectPath(ipc.SemaphorePrefix, name), uint32(maxReaders))
	if err != nil {
		mutexWord.Close()
		return nil, fmt.Errorf("rwlock: semaphore: %w", err)
	}

	return &NamedLock{
		name:        name,
		maxReaders:  maxReaders,
		waitTimeout: waitTimeout,
		latch:       semaphore.NewWeighted(1),
		mutex:       &namedMutex{word: mutexWord},
		sem:         &namedSemaphore{word: semWord},
		logger:      log.WithBus("rwlock", name),
	}, nil
}

// AcquireRead takes one reader permit. The named mutex is held only while the
// permit is taken, so a writer draining permits cannot be starved by a stream
// of new readers.
func (l *NamedLock) AcquireRead() (*Guard, error) {
	if l.closed.Load() {
		return nil, ipc.ErrDisposed
	}
	if err := l.acquireLatch(); err != nil {
		return nil, err
	}

	if err := l.mutex.lock(l.waitTimeout); err != nil {
		l.latch.Release(1)
		return nil, err
	}
	if err := l.sem.acquire(l.waitTimeout); err != nil {
		l.mutex.unlock()
		l.latch.Release(1)
		return nil, err
	}
	l.mutex.unlock()

	l.readers.Add(1)
	return &Guard{release: func() {
		l.sem.release(1)
		l.readers.Add(-1)
		l.latch.Release(1)
	}}, nil
}

// AcquireWrite drains every reader permit, one at a time, under the named
// mutex. Holding the mutex during the drain guarantees progress: a reader
// needs the same mutex to take any permit, so no reader can slip in between
// two of the writer's permits.
func (l *NamedLock) AcquireWrite() (*Guard, error) {
	if l.closed.Load() {
		return nil, ipc.ErrDisposed
	}
	if err := l.acquireLatch(); err != nil {
		return nil, err
	}

	if err := l.mutex.lock(l.waitTimeout); err != nil {
		l.latch.Release(1)
		return nil, err
	}
	for taken := 0; taken < l.maxReaders; taken++ {
		if err := l.sem.acquire(l.waitTimeout); err != nil {
			if taken > 0 {
				l.sem.release(uint32(taken))
			}
			l.mutex.unlock()
			l.latch.Release(1)
			return nil, err
		}
	}
	l.mutex.unlock()

	l.writer.Store(true)
	return &Guard{release: func() {
		l.writer.Store(false)
		l.sem.release(uint32(l.maxReaders))
		l.latch.Release(1)
	}}, nil
}

// ReaderHeld reports whether this instance currently holds any read lock.
func (l *NamedLock) ReaderHeld() bool {
	return l.readers.Load() > 0
}

// WriterHeld reports whether this instance currently holds the write lock.
func (l *NamedLock) WriterHeld() bool {
	return l.writer.Load()
}

// Close releases this instance's handles. It refuses to close while any lock
// owned by this instance is held: leaking handles until process exit is
// preferable to corrupting cross-process state, so a latch timeout fails the
// close instead of forcing it.
func (l *NamedLock) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if err := l.acquireLatch(); err != nil {
		l.logger.Error().Err(err).Msg("close blocked by held lock, leaking handles")
		return err
	}
	// The latch is deliberately never released: the instance is gone.

	var firstErr error
	if err := l.mutex.word.Close(); err != nil {
		firstErr = err
	}
	if err := l.sem.word.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (l *NamedLock) acquireLatch() error {
	if l.latch.TryAcquire(1) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.waitTimeout)
	defer cancel()
	if err := l.latch.Acquire(ctx, 1); err != nil {
		return ipc.ErrTimeout
	}
	return nil
}
