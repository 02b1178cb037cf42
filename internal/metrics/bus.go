// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tinyipc_messages_published_total",
		Help: "Total number of messages appended to the shared log",
	}, []string{"bus"})

	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tinyipc_messages_received_total",
		Help: "Total number of messages forwarded to local subscribers",
	}, []string{"bus"})

	EntriesTrimmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tinyipc_entries_trimmed_total",
		Help: "Total number of aged entries removed from the shared log",
	}, []string{"bus"})

	HandlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tinyipc_handler_failures_total",
		Help: "Total number of message handlers that panicked",
	}, []string{"bus"})
)

// AddPublished records messages appended to the shared log.
func AddPublished(bus string, n int) {
	if n > 0 {
		MessagesPublishedTotal.WithLabelValues(bus).Add(float64(n))
	}
}

// AddReceived records messages forwarded to local subscribers.
func AddReceived(bus string, n int) {
	if n > 0 {
		MessagesReceivedTotal.WithLabelValues(bus).Add(float64(n))
	}
}

// AddTrimmed records aged entries removed during a write pass.
func AddTrimmed(bus string, n int) {
	if n > 0 {
		EntriesTrimmedTotal.WithLabelValues(bus).Add(float64(n))
	}
}

// IncHandlerFailure records a message handler panic.
func IncHandlerFailure(bus string) {
	HandlerFailuresTotal.WithLabelValues(bus).Inc()
}
