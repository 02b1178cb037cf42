// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !linux

package futex

import (
	"os"
	"time"

	"github.com/steamcore/tinyipc/internal/ipc"
)

// The bus requires host-global blocking primitives; only the Linux futex
// backend provides them. Everything here reports the platform limitation.

func mapWordFile(_ *os.File) ([]byte, bool, error) {
	return nil, false, ipc.ErrPrimitiveUnavailable
}

func unmapWordFile(_ []byte) error {
	return nil
}

// Wait reports the platform limitation.
func (w *Word) Wait(_ uint32, _ time.Duration) error {
	return ipc.ErrPrimitiveUnavailable
}

// Wake reports the platform limitation.
func (w *Word) Wake(_ int) error {
	return ipc.ErrPrimitiveUnavailable
}

// WakeAll reports the platform limitation.
func (w *Word) WakeAll() error {
	return ipc.ErrPrimitiveUnavailable
}
