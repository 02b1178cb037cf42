// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package rwlock

import (
	"errors"
	"time"

	"github.com/steamcore/tinyipc/internal/ipc"
	"github.com/steamcore/tinyipc/internal/ipc/futex"
)

// Mutex cell states. Unlock only wakes a waiter when the cell was contended,
// so the uncontended path stays a single compare-and-swap.
const (
	mutexFree      = 0
	mutexLocked    = 1
	mutexContended = 2
)

// namedMutex is a host-global mutex over a futex word. Every process opening
// the same backing path shares one lock.
type namedMutex struct {
	word *futex.Word
}

func (m *namedMutex) lock(timeout time.Duration) error {
	if m.word.CompareAndSwap(mutexFree, mutexLocked) {
		return nil
	}

	deadline := time.Now().Add(timeout)
	for {
		if m.word.Load() == mutexContended || m.word.CompareAndSwap(mutexLocked, mutexContended) {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ipc.ErrTimeout
			}
			if err := m.word.Wait(mutexContended, remaining); err != nil {
				if errors.Is(err, ipc.ErrTimeout) {
					return ipc.ErrTimeout
				}
				return err
			}
		}
		// Acquire in the contended state: a waiter may still be parked, and
		// unlock must wake it.
		if m.word.CompareAndSwap(mutexFree, mutexContended) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ipc.ErrTimeout
		}
	}
}

func (m *namedMutex) unlock() {
	if m.word.Swap(mutexFree) == mutexContended {
		m.word.Wake(1) //nolint:errcheck
	}
}
