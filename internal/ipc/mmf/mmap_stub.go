// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !linux

package mmf

import (
	"os"

	"github.com/steamcore/tinyipc/internal/ipc"
)

func mapRegionFile(_ *os.File, _ int64) ([]byte, error) {
	return nil, ipc.ErrPrimitiveUnavailable
}

func unmapRegionFile(_ []byte) error {
	return nil
}
