// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tinyipc is an inter-process, broadcast, FIFO message bus for
// cooperating processes on the same host. Publishers append short opaque
// byte messages to a shared size-bounded log; every other process on the
// same bus name observes each message at most once, in publish order,
// typically within milliseconds. There is no broker process: coordination
// happens entirely through host-named primitives and a shared memory region
// every participant maps.
//
// Delivery is bounded by the ageing policy: entries older than the minimum
// message age may be trimmed by any publisher needing room, so slow or
// absent receivers can miss messages. The log is memory only and evaporates
// when the last participant exits.
package tinyipc

import (
	"github.com/steamcore/tinyipc/internal/bus"
	"github.com/steamcore/tinyipc/internal/config"
	"github.com/steamcore/tinyipc/internal/ipc"
)

// Options configures a bus participant. The zero value of every field except
// Name selects its default.
type Options = config.Options

// Bus is one participant on a named bus.
type Bus = bus.MessageBus

// Errors surfaced by the public API.
var (
	ErrInvalidName          = config.ErrInvalidName
	ErrInvalidCapacity      = config.ErrInvalidCapacity
	ErrInvalidReaderCount   = config.ErrInvalidReaderCount
	ErrDisposed             = ipc.ErrDisposed
	ErrTimeout              = ipc.ErrTimeout
	ErrEmptyMessage         = bus.ErrEmptyMessage
	ErrPayloadTooLarge      = ipc.ErrPayloadTooLarge
	ErrPrimitiveUnavailable = ipc.ErrPrimitiveUnavailable
)

// NewBus joins the bus named by opts.Name, creating the host-named objects if
// this is the first participant.
func NewBus(opts Options) (*Bus, error) {
	return bus.New(opts)
}

// DefaultOptions returns the options for a bus name with every other option
// at its default.
func DefaultOptions(name string) Options {
	return config.Default(name)
}
