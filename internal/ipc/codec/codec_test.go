// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmptyPayload(t *testing.T) {
	book, err := Decode(nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), book.LastID)
	require.Empty(t, book.Entries)
}

func TestRoundTrip(t *testing.T) {
	instanceA := uuid.New()
	instanceB := uuid.New()

	tests := []struct {
		name string
		book LogBook
	}{
		{
			name: "empty book with last id",
			book: LogBook{LastID: 42},
		},
		{
			name: "single entry",
			book: LogBook{
				LastID: 1,
				Entries: []LogEntry{
					{ID: 1, Instance: instanceA, Timestamp: 123456789, Message: []byte("lorem")},
				},
			},
		},
		{
			name: "multiple publishers",
			book: LogBook{
				LastID: 7,
				Entries: []LogEntry{
					{ID: 3, Instance: instanceA, Timestamp: 100, Message: []byte("a")},
					{ID: 4, Instance: instanceB, Timestamp: 100, Message: []byte("bb")},
					{ID: 7, Instance: instanceA, Timestamp: 200, Message: []byte("ccc")},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.book)
			require.Len(t, encoded, EncodedSize(tt.book))

			decoded, err := Decode(encoded)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.book, decoded); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeCorrupt(t *testing.T) {
	valid := Encode(LogBook{
		LastID: 2,
		Entries: []LogEntry{
			{ID: 1, Instance: uuid.New(), Timestamp: 10, Message: []byte("x")},
			{ID: 2, Instance: uuid.New(), Timestamp: 20, Message: []byte("y")},
		},
	})

	tests := []struct {
		name string
		data []byte
	}{
		{name: "short header", data: []byte{1, 2, 3}},
		{name: "truncated entry header", data: valid[:BookOverhead+10]},
		{name: "truncated message", data: valid[:len(valid)-1]},
		{
			name: "id above last id",
			data: Encode(LogBook{
				LastID:  1,
				Entries: []LogEntry{{ID: 5, Timestamp: 1, Message: []byte("z")}},
			}),
		},
		{
			name: "ids not strictly increasing",
			data: Encode(LogBook{
				LastID: 9,
				Entries: []LogEntry{
					{ID: 3, Timestamp: 1, Message: []byte("a")},
					{ID: 3, Timestamp: 1, Message: []byte("b")},
				},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			require.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestEntryOverhead(t *testing.T) {
	require.Positive(t, EntryOverhead)

	// The overhead plus message length must be the exact incremental cost of
	// one appended entry.
	base := LogBook{LastID: 1}
	withEntry := LogBook{
		LastID: 1,
		Entries: []LogEntry{
			{ID: 1, Instance: uuid.New(), Timestamp: 1, Message: []byte("hello")},
		},
	}
	require.Equal(t,
		len(Encode(base))+EntryOverhead+len("hello"),
		len(Encode(withEntry)))
}
