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

// namedSemaphore is a host-global counting semaphore over a futex word. The
// cell value is the number of available permits.
type namedSemaphore struct {
	word *futex.Word
}

func (s *namedSemaphore) acquire(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		v := s.word.Load()
		if v > 0 {
			if s.word.CompareAndSwap(v, v-1) {
				return nil
			}
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ipc.ErrTimeout
		}
		if err := s.word.Wait(0, remaining); err != nil {
			if errors.Is(err, ipc.ErrTimeout) {
				return ipc.ErrTimeout
			}
			return err
		}
	}
}

func (s *namedSemaphore) release(n uint32) {
	s.word.Add(n)
	s.word.Wake(int(n)) //nolint:errcheck
}
