package dlepmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "godlep"
	subsystem = "dlep"
)

// Label names for DLEP metrics.
const (
	labelInterface = "interface"
	labelRole      = "role"
	labelReason    = "reason"
	labelKind      = "kind"
	labelState     = "state"
)

// -------------------------------------------------------------------------
// Collector — Prometheus DLEP Metrics
// -------------------------------------------------------------------------

// Collector holds all DLEP Prometheus metrics.
//
// Metrics are designed for production radio/router monitoring:
//   - Session gauges track currently established DLEP sessions per interface.
//   - Heartbeat counters track the keepalive traffic that drives the
//     local/remote timer discipline.
//   - Termination counters are labeled by reason, so a flapping radio link
//     can be distinguished from a deliberate shutdown.
//   - Parser error counters are labeled by kind, flagging malformed peers.
//   - Destination gauges track how many neighbors sit in each sub-state,
//     and ack-timeout counters flag neighbors that never got acked.
type Collector struct {
	// SessionsEstablished tracks the number of currently active DLEP
	// sessions. Incremented when the daemon starts running a session
	// (radio: on TCP accept; router: once its TCP connection is up),
	// decremented on termination.
	SessionsEstablished *prometheus.GaugeVec

	// SessionsTerminated counts session terminations, labeled by
	// TerminationReason.
	SessionsTerminated *prometheus.CounterVec

	// HeartbeatsSent counts HEARTBEAT signals transmitted per interface.
	HeartbeatsSent *prometheus.CounterVec

	// HeartbeatsReceived counts HEARTBEAT signals received per interface.
	HeartbeatsReceived *prometheus.CounterVec

	// ParserErrors counts signal/TLV parse failures, labeled by the
	// sentinel error kind (e.g., "illegal_tlv_length").
	ParserErrors *prometheus.CounterVec

	// Destinations tracks the number of destination (neighbor) entries
	// currently in each DestState, per interface.
	Destinations *prometheus.GaugeVec

	// AckTimeouts counts destination ack-timeout expirations: UP_SENT or
	// DOWN_SENT with no ack received before the deadline.
	AckTimeouts *prometheus.CounterVec
}

// NewCollector creates a Collector with all DLEP metrics registered against
// the provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
//
// All metrics are created with the "godlep_dlep_" prefix (namespace_subsystem)
// to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.SessionsEstablished,
		c.SessionsTerminated,
		c.HeartbeatsSent,
		c.HeartbeatsReceived,
		c.ParserErrors,
		c.Destinations,
		c.AckTimeouts,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	ifaceRoleLabels := []string{labelInterface, labelRole}
	terminatedLabels := []string{labelInterface, labelRole, labelReason}
	parserLabels := []string{labelInterface, labelKind}
	destLabels := []string{labelInterface, labelRole, labelState}

	return &Collector{
		SessionsEstablished: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_established",
			Help:      "Number of currently established DLEP sessions.",
		}, ifaceRoleLabels),

		SessionsTerminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_terminated_total",
			Help:      "Total DLEP session terminations, labeled by reason.",
		}, terminatedLabels),

		HeartbeatsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeats_sent_total",
			Help:      "Total HEARTBEAT signals transmitted.",
		}, ifaceRoleLabels),

		HeartbeatsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "heartbeats_received_total",
			Help:      "Total HEARTBEAT signals received.",
		}, ifaceRoleLabels),

		ParserErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parser_errors_total",
			Help:      "Total signal/TLV parse failures, labeled by error kind.",
		}, parserLabels),

		Destinations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "destinations",
			Help:      "Number of destination (neighbor) entries per sub-state.",
		}, destLabels),

		AckTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "destination_ack_timeouts_total",
			Help:      "Total destination ack-timeout expirations (no UP/DOWN ack before deadline).",
		}, ifaceRoleLabels),
	}
}

// -------------------------------------------------------------------------
// Session Lifecycle
// -------------------------------------------------------------------------

// RegisterSession increments the established sessions gauge for the given
// interface/role. Called when the daemon starts running a session: on
// TCP accept for a radio, once the TCP connection is up for a router.
func (c *Collector) RegisterSession(iface, role string) {
	c.SessionsEstablished.WithLabelValues(iface, role).Inc()
}

// UnregisterSession decrements the established sessions gauge for the given
// interface/role. Called on session termination.
func (c *Collector) UnregisterSession(iface, role string) {
	c.SessionsEstablished.WithLabelValues(iface, role).Dec()
}

// RecordTermination increments the termination counter with the given
// reason label. Used for alerting on repeated heartbeat timeouts versus
// deliberate shutdowns.
func (c *Collector) RecordTermination(iface, role, reason string) {
	c.SessionsTerminated.WithLabelValues(iface, role, reason).Inc()
}

// -------------------------------------------------------------------------
// Heartbeats
// -------------------------------------------------------------------------

// IncHeartbeatsSent increments the transmitted heartbeat counter.
func (c *Collector) IncHeartbeatsSent(iface, role string) {
	c.HeartbeatsSent.WithLabelValues(iface, role).Inc()
}

// IncHeartbeatsReceived increments the received heartbeat counter.
func (c *Collector) IncHeartbeatsReceived(iface, role string) {
	c.HeartbeatsReceived.WithLabelValues(iface, role).Inc()
}

// -------------------------------------------------------------------------
// Parser Errors
// -------------------------------------------------------------------------

// IncParserErrors increments the parser error counter for the given kind
// (typically a sentinel error's short name, e.g. "illegal_tlv_length").
func (c *Collector) IncParserErrors(iface, kind string) {
	c.ParserErrors.WithLabelValues(iface, kind).Inc()
}

// -------------------------------------------------------------------------
// Destinations
// -------------------------------------------------------------------------

// SetDestinations sets the destination gauge for the given interface/role
// and DestState to n. Callers typically recompute all state counts after
// a destination table mutation and call this once per state.
func (c *Collector) SetDestinations(iface, role, state string, n float64) {
	c.Destinations.WithLabelValues(iface, role, state).Set(n)
}

// IncAckTimeouts increments the ack-timeout counter for the given
// interface/role.
func (c *Collector) IncAckTimeouts(iface, role string) {
	c.AckTimeouts.WithLabelValues(iface, role).Inc()
}
