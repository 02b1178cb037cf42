// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build !linux

package ipc

import "time"

// MonotonicNow returns the wall clock in Unix nanoseconds. On non-Linux
// hosts this reading is not monotonic; the named-primitive layer is
// unavailable there anyway.
func MonotonicNow() int64 {
	return time.Now().UnixNano()
}
