// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package mmf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mapRegionFile sizes and maps the region backing file. The first creator
// truncates it to size under an exclusive file lock, so a concurrent opener
// never maps a half-initialised file; a freshly truncated file is zero-filled
// by the kernel, which is what gives a new region its zero length header.
func mapRegionFile(file *os.File, size int64) ([]byte, error) {
	fd := int(file.Fd())

	if err := unix.Flock(fd, unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("flock: %w", err)
	}
	defer unix.Flock(fd, unix.LOCK_UN) //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	switch info.Size() {
	case 0:
		if err := file.Truncate(size); err != nil {
			return nil, fmt.Errorf("truncate: %w", err)
		}
	case size:
		// Already initialised by another participant.
	default:
		return nil, fmt.Errorf("region size mismatch: file has %d bytes, want %d", info.Size(), size)
	}

	mem, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	return mem, nil
}

func unmapRegionFile(mem []byte) error {
	return unix.Munmap(mem)
}
