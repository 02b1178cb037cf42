// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package codec serialises the log book stored in the shared region. The
// framing is fixed-width little-endian so the encoded size of an entry is a
// stable constant plus its message length, which is what lets the publisher
// reason about capacity before appending.
//
// Layout: an 8-byte last id, then for each entry an 8-byte id, the 16-byte
// instance identifier, an 8-byte monotonic timestamp in nanoseconds and a
// 4-byte message length followed by the message bytes. Entries are ordered by
// id ascending.
package codec

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
)

// ErrCorrupt is returned when a payload cannot be decoded. Callers treat a
// corrupt payload as an empty book so the region self-heals on the next
// successful write.
var ErrCorrupt = errors.New("codec: corrupt log book payload")

const (
	bookHeaderSize  = 8
	entryHeaderSize = 8 + 16 + 8 + 4
)

// LogEntry is one published message and its metadata.
type LogEntry struct {
	ID        int64
	Instance  uuid.UUID
	Timestamp int64
	Message   []byte
}

// LogBook is the entire value stored in the shared region.
type LogBook struct {
	LastID  int64
	Entries []LogEntry
}

// EntryOverhead is the encoded size of an entry with an empty message,
// measured once at startup with the widest values the codec emits.
var EntryOverhead = len(encodeEntry(nil, LogEntry{
	ID:        math.MaxInt64,
	Instance:  uuid.Max,
	Timestamp: math.MaxInt64,
}))

// BookOverhead is the encoded size of an empty book.
const BookOverhead = bookHeaderSize

// EncodedSize returns the exact encoded size of the book.
func EncodedSize(book LogBook) int {
	n := bookHeaderSize
	for i := range book.Entries {
		n += EntryOverhead + len(book.Entries[i].Message)
	}
	return n
}

// Encode serialises the book.
func Encode(book LogBook) []byte {
	out := make([]byte, 0, EncodedSize(book))
	out = binary.LittleEndian.AppendUint64(out, uint64(book.LastID))
	for i := range book.Entries {
		out = encodeEntry(out, book.Entries[i])
	}
	return out
}

func encodeEntry(out []byte, e LogEntry) []byte {
	out = binary.LittleEndian.AppendUint64(out, uint64(e.ID))
	out = append(out, e.Instance[:]...)
	out = binary.LittleEndian.AppendUint64(out, uint64(e.Timestamp))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(e.Message)))
	out = append(out, e.Message...)
	return out
}

// Decode deserialises a payload. A zero-length payload decodes to the empty
// book. Any framing violation returns ErrCorrupt.
func Decode(data []byte) (LogBook, error) {
	if len(data) == 0 {
		return LogBook{}, nil
	}
	if len(data) < bookHeaderSize {
		return LogBook{}, ErrCorrupt
	}

	book := LogBook{
		LastID: int64(binary.LittleEndian.Uint64(data[:bookHeaderSize])),
	}

	rest := data[bookHeaderSize:]
	for len(rest) > 0 {
		if len(rest) < entryHeaderSize {
			return LogBook{}, ErrCorrupt
		}

		var e LogEntry
		e.ID = int64(binary.LittleEndian.Uint64(rest[0:8]))
		copy(e.Instance[:], rest[8:24])
		e.Timestamp = int64(binary.LittleEndian.Uint64(rest[24:32]))
		msgLen := binary.LittleEndian.Uint32(rest[32:36])
		rest = rest[entryHeaderSize:]

		if uint64(msgLen) > uint64(len(rest)) {
			return LogBook{}, ErrCorrupt
		}
		e.Message = append([]byte(nil), rest[:msgLen]...)
		rest = rest[msgLen:]

		if e.ID > book.LastID {
			return LogBook{}, ErrCorrupt
		}
		if n := len(book.Entries); n > 0 && e.ID <= book.Entries[n-1].ID {
			return LogBook{}, ErrCorrupt
		}
		book.Entries = append(book.Entries, e)
	}

	return book, nil
}
