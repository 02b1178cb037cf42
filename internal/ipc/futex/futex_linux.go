// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package futex

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/steamcore/tinyipc/internal/ipc"
)

// Shared (cross-process) futex operations. The private variants must not be
// used here: waiters live in other processes.
const (
	futexWait = 0 // FUTEX_WAIT
	futexWake = 1 // FUTEX_WAKE
)

func mapWordFile(file *os.File) (mem []byte, created bool, err error) {
	fd := int(file.Fd())

	// The first creator sizes the file under an exclusive lock so a
	// concurrent opener never maps a zero-length file.
	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, false, fmt.Errorf("flock: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN) //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		return nil, false, fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		if err := file.Truncate(wordFileSize); err != nil {
			return nil, false, fmt.Errorf("truncate: %w", err)
		}
		created = true
	}

	mem, err = unix.Mmap(fd, 0, wordFileSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, false, fmt.Errorf("mmap: %w", err)
	}
	return mem, created, nil
}

func unmapWordFile(mem []byte) error {
	return unix.Munmap(mem)
}

// Wait blocks until the cell no longer holds val, another process calls Wake,
// or timeout elapses. Returns ipc.ErrTimeout on expiry. Spurious wakeups are
// possible; callers must re-check their condition after every return.
func (w *Word) Wait(val uint32, timeout time.Duration) error {
	// Re-check before entering the syscall. This closes the lost-wake race
	// where the value changes between the caller's snapshot and the wait.
	if atomic.LoadUint32(w.addr()) != val {
		return nil
	}
	if timeout <= 0 {
		return ipc.ErrTimeout
	}

	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(w.addr())),
		futexWait,
		uintptr(val),
		uintptr(unsafe.Pointer(&ts)),
		0,
		0,
	)
	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		// Value changed under us or the wait was interrupted; the caller
		// re-checks either way.
		return nil
	case unix.ETIMEDOUT:
		return ipc.ErrTimeout
	default:
		return fmt.Errorf("futex wait: %w", errno)
	}
}

// Wake wakes up to n processes blocked on the cell.
func (w *Word) Wake(n int) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(w.addr())),
		futexWake,
		uintptr(n),
		0,
		0,
		0,
	)
	if errno != 0 {
		return fmt.Errorf("futex wake: %w", errno)
	}
	return nil
}

// WakeAll wakes every process blocked on the cell.
func (w *Word) WakeAll() error {
	return w.Wake(math.MaxInt32)
}
