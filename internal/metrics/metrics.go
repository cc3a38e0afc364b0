// Package metrics wires the session engine's counters to Prometheus.
// Passing a nil *Metrics (the zero value's pointer) disables
// collection with zero overhead, so callers that never configure
// metrics don't need to nil-check before every call.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every counter the session engine reports.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	staleDropsTotal    prometheus.Counter
	reassemblyDrops    prometheus.Counter
	crcMismatchesTotal prometheus.Counter
	transferBytesTotal *prometheus.CounterVec
}

// New registers BadgeLink's counters against reg. Pass
// prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer wrapped in a *prometheus.Registry for
// the global one.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "badgelink_requests_total",
				Help: "Total requests handled, by request tag and status.",
			},
			[]string{"tag", "status"},
		),
		staleDropsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "badgelink_stale_requests_dropped_total",
				Help: "Requests dropped as stale by sequence-number comparison.",
			},
		),
		reassemblyDrops: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "badgelink_reassembly_discards_total",
				Help: "Reassembled frames discarded for a short length, CRC mismatch or schema-decode failure; overlong bursts the reassembler drops are not counted.",
			},
		),
		crcMismatchesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "badgelink_crc_mismatches_total",
				Help: "Frames discarded for a CRC-32 mismatch.",
			},
		),
		transferBytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "badgelink_transfer_bytes_total",
				Help: "Bytes moved through the transfer engine, by direction.",
			},
			[]string{"direction"},
		),
	}
}

func (m *Metrics) RecordRequest(tag, status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(tag, status).Inc()
}

func (m *Metrics) RecordStaleDrop() {
	if m == nil {
		return
	}
	m.staleDropsTotal.Inc()
}

func (m *Metrics) RecordReassemblyDiscard() {
	if m == nil {
		return
	}
	m.reassemblyDrops.Inc()
}

func (m *Metrics) RecordCRCMismatch() {
	if m == nil {
		return
	}
	m.crcMismatchesTotal.Inc()
}

func (m *Metrics) RecordTransferBytes(direction string, n int) {
	if m == nil {
		return
	}
	m.transferBytesTotal.WithLabelValues(direction).Add(float64(n))
}
