// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ipc

import (
	"os"
	"path/filepath"
)

// Prefixes for the four host-global objects derived from a bus name. These
// match the names used by every implementation of the protocol, so processes
// built from different revisions still find each other.
const (
	MutexPrefix     = "TinyReadWriteLock_Mutex_"
	SemaphorePrefix = "TinyReadWriteLock_Semaphore_"
	RegionPrefix    = "TinyMemoryMappedFile_MemoryMappedFile_"
	SignalPrefix    = "TinyMemoryMappedFile_WaitHandle_"
)

// ObjectPath resolves a prefixed object name to its backing path. /dev/shm is
// preferred so the objects never touch persistent storage; the temp dir is
// the fallback on hosts without it.
func ObjectPath(prefix, name string) string {
	if isDevShmAvailable() {
		return filepath.Join("/dev/shm", prefix+name)
	}
	return filepath.Join(os.TempDir(), prefix+name)
}

func isDevShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	if err != nil {
		return false
	}
	return info.IsDir()
}
