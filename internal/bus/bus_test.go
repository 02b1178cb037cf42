// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/steamcore/tinyipc/internal/config"
	"github.com/steamcore/tinyipc/internal/ipc"
)

func testOptions(name string) config.Options {
	return config.Options{
		Name:           name,
		MaxFileSize:    config.DefaultMaxFileSize,
		MaxReaderCount: config.DefaultMaxReaderCount,
		MinMessageAge:  10 * time.Second, // no trimming unless a test wants it
		WaitTimeout:    2 * time.Second,
	}
}

func newTestPair(t *testing.T, name string) (*MessageBus, *MessageBus) {
	t.Helper()
	hub := ipc.NewMemoryHub(name, config.DefaultMaxFileSize)

	a, err := NewWithRegion(hub.Region(), true, testOptions(name))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	b, err := NewWithRegion(hub.Region(), true, testOptions(name))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return a, b
}

func collect(t *testing.T, ch <-chan []byte, n int, within time.Duration) []string {
	t.Helper()
	deadline := time.After(within)
	got := make([]string, 0, n)
	for len(got) < n {
		select {
		case msg, ok := <-ch:
			require.True(t, ok, "subscription ended after %d of %d messages", len(got), n)
			got = append(got, string(msg))
		case <-deadline:
			t.Fatalf("timed out with %d of %d messages: %v", len(got), n, got)
		}
	}
	return got
}

func TestEcho(t *testing.T) {
	a, b := newTestPair(t, "echo")

	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	for _, msg := range []string{"lorem", "ipsum", "yes"} {
		require.NoError(t, a.Publish(context.Background(), []byte(msg)))
	}

	require.Equal(t, []string{"lorem", "ipsum", "yes"}, collect(t, sub, 3, 5*time.Second))

	// No duplicates trail the expected messages.
	select {
	case msg := <-sub:
		t.Fatalf("unexpected extra message %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSelfFilter(t *testing.T) {
	hub := ipc.NewMemoryHub("selffilter", config.DefaultMaxFileSize)
	a, err := NewWithRegion(hub.Region(), true, testOptions("selffilter"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	sub, err := a.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Publish(context.Background(), []byte("hello")))
	require.NoError(t, a.Read())

	select {
	case msg := <-sub:
		t.Fatalf("received own message %q", msg)
	case <-time.After(200 * time.Millisecond):
	}
	require.Equal(t, uint64(1), a.MessagesPublished())
	require.Equal(t, uint64(0), a.MessagesReceived())
}

func TestHistoryNotReplayed(t *testing.T) {
	hub := ipc.NewMemoryHub("history", config.DefaultMaxFileSize)
	a, err := NewWithRegion(hub.Region(), true, testOptions("history"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NoError(t, a.Publish(context.Background(), []byte("x")))

	// B joins after the publish; the pre-existing entry is history to it.
	b, err := NewWithRegion(hub.Region(), true, testOptions("history"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Read())

	select {
	case msg := <-sub:
		t.Fatalf("history replayed: %q", msg)
	case <-time.After(200 * time.Millisecond):
	}

	// New messages still flow.
	require.NoError(t, a.Publish(context.Background(), []byte("fresh")))
	require.Equal(t, []string{"fresh"}, collect(t, sub, 1, 5*time.Second))
}

func TestPublishValidation(t *testing.T) {
	a, _ := newTestPair(t, "validation")

	require.ErrorIs(t, a.Publish(context.Background(), nil), ErrEmptyMessage)
	require.ErrorIs(t, a.Publish(context.Background(), []byte{}), ErrEmptyMessage)
}

func TestPublishBatchSkipsEmptyMessages(t *testing.T) {
	a, b := newTestPair(t, "batchempty")

	sub, err := b.Subscribe(context.Background())
	require.NoError(t, err)

	batch := [][]byte{[]byte("one"), nil, {}, []byte("two")}
	require.NoError(t, a.PublishBatch(context.Background(), batch))

	require.Equal(t, []string{"one", "two"}, collect(t, sub, 2, 5*time.Second))
	require.Equal(t, uint64(2), a.MessagesPublished())
}

func TestPublishTooLargeMessage(t *testing.T) {
	hub := ipc.NewMemoryHub("toolarge", 256)
	a, err := NewWithRegion(hub.Region(), true, testOptions("toolarge"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	big := make([]byte, 300)
	require.ErrorIs(t, a.Publish(context.Background(), big), ipc.ErrPayloadTooLarge)
}

func TestPublishBlocksUntilAgedEntriesTrim(t *testing.T) {
	opts := testOptions("capacity")
	opts.MinMessageAge = 20 * time.Millisecond

	hub := ipc.NewMemoryHub("capacity", 256)
	a, err := NewWithRegion(hub.Region(), true, opts)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	// Far more messages than the log can hold at once: append passes must
	// wait for earlier entries to age out before finishing the batch.
	batch := make([][]byte, 20)
	for i := range batch {
		batch[i] = []byte("0123456789")
	}
	require.NoError(t, a.PublishBatch(context.Background(), batch))
	require.Equal(t, uint64(20), a.MessagesPublished())
}

func TestFanOutCounters(t *testing.T) {
	const perRound = 16

	hub := ipc.NewMemoryHub("fanout", config.DefaultMaxFileSize)
	a, err := NewWithRegion(hub.Region(), true, testOptions("fanout"))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	b, err := NewWithRegion(hub.Region(), true, testOptions("fanout"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	publishRound := func(bus *MessageBus, round int) {
		batch := make([][]byte, perRound)
		for i := range batch {
			batch[i] = []byte{byte(round), byte(i)}
		}
		require.NoError(t, bus.PublishBatch(context.Background(), batch))
	}

	publishRound(a, 1)
	publishRound(b, 1)
	require.Eventually(t, func() bool {
		return a.MessagesReceived() == perRound && b.MessagesReceived() == perRound
	}, 5*time.Second, 10*time.Millisecond)

	// C joins midway and only observes the second half.
	c, err := NewWithRegion(hub.Region(), true, testOptions("fanout"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	publishRound(a, 2)
	publishRound(b, 2)
	require.Eventually(t, func() bool {
		return a.MessagesReceived() == 2*perRound &&
			b.MessagesReceived() == 2*perRound &&
			c.MessagesReceived() == 2*perRound
	}, 5*time.Second, 10*time.Millisecond)

	require.Equal(t, uint64(2*perRound), a.MessagesPublished())
	require.Equal(t, uint64(2*perRound), b.MessagesPublished())
	require.Equal(t, uint64(0), c.MessagesPublished())
}

func TestResetMetricsIdempotent(t *testing.T) {
	a, b := newTestPair(t, "metrics")

	require.NoError(t, a.Publish(context.Background(), []byte("m")))
	require.Eventually(t, func() bool {
		return b.MessagesReceived() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, a.ResetMetrics())
	require.NoError(t, a.ResetMetrics())
	require.Equal(t, uint64(0), a.MessagesPublished())

	require.NoError(t, b.ResetMetrics())
	require.Equal(t, uint64(0), b.MessagesReceived())
}

func TestOnMessageReceived(t *testing.T) {
	a, b := newTestPair(t, "handler")

	got := make(chan []byte, 4)
	b.OnMessageReceived(func(msg []byte) {
		got <- msg
	})
	// A panicking handler must not break delivery to others.
	b.OnMessageReceived(func([]byte) {
		panic("boom")
	})

	require.NoError(t, a.Publish(context.Background(), []byte("event")))

	select {
	case msg := <-got:
		require.Equal(t, "event", string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("handler not invoked")
	}

	// The bus survives the panicking handler.
	require.NoError(t, a.Publish(context.Background(), []byte("again")))
	select {
	case msg := <-got:
		require.Equal(t, "again", string(msg))
	case <-time.After(5 * time.Second):
		t.Fatal("handler not invoked after panic")
	}
}

func TestSubscribeCancel(t *testing.T) {
	a, b := newTestPair(t, "cancel")
	_ = a

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-sub:
		require.False(t, ok, "channel should close on cancel")
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end on cancel")
	}
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	hub := ipc.NewMemoryHub("close", config.DefaultMaxFileSize)
	a, err := NewWithRegion(hub.Region(), true, testOptions("close"))
	require.NoError(t, err)

	sub, err := a.Subscribe(context.Background())
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")

	_, ok := <-sub
	require.False(t, ok, "subscriber channel completed on close")

	require.ErrorIs(t, a.Publish(context.Background(), []byte("late")), ipc.ErrDisposed)
	require.ErrorIs(t, a.ResetMetrics(), ipc.ErrDisposed)
	_, err = a.Subscribe(context.Background())
	require.ErrorIs(t, err, ipc.ErrDisposed)
	require.ErrorIs(t, a.Read(), ipc.ErrDisposed)
}
