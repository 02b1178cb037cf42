// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package futex provides one-word shared memory cells that processes can
// atomically update and block on. A Word is the building block for the named
// mutex, counting semaphore and change signal of the bus.
package futex

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/steamcore/tinyipc/internal/ipc"
)

const wordFileSize = 4096

// Word is a 32-bit cell in a memory-mapped file shared by every process that
// opens the same path. All accesses are atomic; Wait and Wake block and wake
// across process boundaries.
type Word struct {
	path string
	file *os.File
	mem  []byte
}

// Open creates or opens the word backing file at path. The first creator
// initialises the cell to initial; later openers observe the current value.
// Creation is serialised with a file lock so an opener never maps a file the
// creator has not sized yet.
func Open(path string, initial uint32) (*Word, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ipc.ErrPrimitiveUnavailable, path, err)
	}

	mem, created, err := mapWordFile(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: map %s: %v", ipc.ErrPrimitiveUnavailable, path, err)
	}

	w := &Word{path: path, file: file, mem: mem}
	if created && initial != 0 {
		atomic.StoreUint32(w.addr(), initial)
	}
	return w, nil
}

// Path returns the backing file path.
func (w *Word) Path() string {
	return w.path
}

func (w *Word) addr() *uint32 {
	return (*uint32)(unsafe.Pointer(&w.mem[0]))
}

// Load atomically reads the cell.
func (w *Word) Load() uint32 {
	return atomic.LoadUint32(w.addr())
}

// Add atomically adds delta to the cell and returns the new value.
func (w *Word) Add(delta uint32) uint32 {
	return atomic.AddUint32(w.addr(), delta)
}

// CompareAndSwap atomically replaces old with new and reports success.
func (w *Word) CompareAndSwap(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(w.addr(), old, new)
}

// Swap atomically stores new and returns the previous value.
func (w *Word) Swap(new uint32) uint32 {
	return atomic.SwapUint32(w.addr(), new)
}

// Close unmaps the cell and closes the file. The backing file and the cell
// value persist for other processes holding it open.
func (w *Word) Close() error {
	var firstErr error
	if w.mem != nil {
		if err := unmapWordFile(w.mem); err != nil && firstErr == nil {
			firstErr = err
		}
		w.mem = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.file = nil
	}
	return firstErr
}
