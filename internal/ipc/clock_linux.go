// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build linux

package ipc

import (
	"time"

	"golang.org/x/sys/unix"
)

// MonotonicNow returns a CLOCK_MONOTONIC reading in nanoseconds. The reading
// is comparable across processes on the same host within one boot and is
// immune to wall clock jumps, which keeps entry trimming stable.
func MonotonicNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		// clock_gettime on CLOCK_MONOTONIC cannot fail on supported kernels;
		// fall back to the runtime clock rather than report a zero reading.
		return time.Now().UnixNano()
	}
	return ts.Nano()
}
