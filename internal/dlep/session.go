package dlep

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role distinguishes the DLEP radio (server) from the router
// (client).
type Role uint8

const (
	RoleRadio Role = iota
	RoleRouter
)

func (r Role) String() string {
	if r == RoleRadio {
		return "radio"
	}
	return "router"
}

// Config is the session's configuration record.
type Config struct {
	PeerType          string
	DiscoveryInterval time.Duration
	HeartbeatInterval time.Duration
	SendNeighbors     bool
	SendProxied       bool

	// ExtensionIDs is the set of additional (non-base) extension ids
	// this session offers/accepts during negotiation.
	ExtensionIDs []uint16
}

// EndSessionFunc is the host callback invoked on every fatal session
// error.
type EndSessionFunc func(s *Session, reason TerminationReason, err error)

// Session owns one DLEP peer relationship: the parser state, the TLV
// writer, the destination table, the layer-2 bridge, and the four
// timer families.
type Session struct {
	role   Role
	cfg    Config
	logger *slog.Logger

	// originID tags every L2-table entry this session creates, so a
	// router session never mutates another session's entries.
	originID string

	wr *writer

	restrictSignal SignalType
	base           Extension
	activeExtIDs   []uint16
	allowed        *allowedTLVMap

	// current is the ParsedSignal being dispatched: the session-scoped
	// parser state for whichever signal is in flight.
	current *ParsedSignal

	dest *DestinationTable

	localHeartbeatInterval  time.Duration
	remoteHeartbeatInterval time.Duration

	localHeartbeatTimer  *timer
	remoteWatchdogTimer  *timer
	discoveryTimer       *timer
	destAckGeneration    map[MACAddr]uint64

	events chan timerEvent

	l2Source       L2Source
	l2Sink         L2Sink
	unsubscribeL2  func()

	send          func([]byte) error
	discoverySend func([]byte) error
	onEnd         EndSessionFunc

	// SelectedConpoint is set by processPeerOffer for the host to dial.
	// SenderAddr must be set by the host, from the UDP datagram's
	// source address, before processing a PEER_OFFER, to support the
	// "fall back to the sender's own address" rule.
	SelectedConpoint *Conpoint
	SenderAddr       netip.Addr

	// pendingUpErr carries a DESTINATION_UP L2-mapping failure from
	// processDestinationUpRouter to writeDestinationUpAck within the
	// same emit() call.
	pendingUpErr error

	mu         sync.Mutex
	terminated bool
	remotePeer string
}

// NewRadioSession constructs a session in the radio (server) role,
// entered immediately after TCP accept.
func NewRadioSession(cfg Config, send func([]byte) error, l2 L2Source, onEnd EndSessionFunc, logger *slog.Logger) *Session {
	freezeRegistry()
	s := &Session{
		role:                   RoleRadio,
		cfg:                    cfg,
		logger:                 logger,
		wr:                     newWriter(),
		restrictSignal:         SignalPeerInitialization,
		base:                   baseProtoRadio{},
		allowed:                newAllowedTLVMap(),
		localHeartbeatInterval: cfg.HeartbeatInterval,
		destAckGeneration:      make(map[MACAddr]uint64),
		events:                 make(chan timerEvent, 16),
		l2Source:               l2,
		send:                   send,
		onEnd:                  onEnd,
		originID:               uuid.NewString(),
	}
	s.dest = newDestinationTable(2*cfg.HeartbeatInterval, s.armDestinationAck, s.disarmDestinationAck)
	_ = s.allowed.updateExtensions(s.base, nil)
	if hooks := s.base.Hooks(); hooks.InitRadio != nil {
		_ = hooks.InitRadio(s)
	}
	return s
}

// NewRouterSession constructs a session in the router (client) role.
// Routers begin discovery with restrict_signal = PEER_OFFER before
// TCP is even opened; the caller transitions to
// PEER_INITIALIZATION_ACK once a PEER_OFFER is accepted and TCP
// connects (see processPeerOffer / TransitionAfterConnect).
func NewRouterSession(cfg Config, send func([]byte) error, l2 L2Sink, onEnd EndSessionFunc, logger *slog.Logger) *Session {
	freezeRegistry()
	s := &Session{
		role:                   RoleRouter,
		cfg:                    cfg,
		logger:                 logger,
		wr:                     newWriter(),
		restrictSignal:         SignalPeerOffer,
		base:                   baseProtoRouter{},
		allowed:                newAllowedTLVMap(),
		localHeartbeatInterval: cfg.HeartbeatInterval,
		destAckGeneration:      make(map[MACAddr]uint64),
		events:                 make(chan timerEvent, 16),
		l2Sink:                 l2,
		send:                   send,
		onEnd:                  onEnd,
		originID:               uuid.NewString(),
	}
	s.dest = newDestinationTable(2*cfg.HeartbeatInterval, s.armDestinationAck, s.disarmDestinationAck)
	_ = s.allowed.updateExtensions(s.base, nil)
	if hooks := s.base.Hooks(); hooks.InitRouter != nil {
		_ = hooks.InitRouter(s)
	}
	return s
}

func (s *Session) Role() Role                              { return s.role }
func (s *Session) RestrictSignal() SignalType               { return s.restrictSignal }
func (s *Session) RemoteHeartbeatInterval() time.Duration   { return s.remoteHeartbeatInterval }
func (s *Session) LocalHeartbeatInterval() time.Duration    { return s.localHeartbeatInterval }

// RemotePeerType returns the free-text PEER_TYPE the remote side
// advertised during init, or "" if it didn't send one. Introspection
// only.
func (s *Session) RemotePeerType() string { return s.remotePeer }

// ActiveExtensionIDs returns the negotiated non-base extension ids.
func (s *Session) ActiveExtensionIDs() []uint16 {
	return append([]uint16(nil), s.activeExtIDs...)
}

// activeExtensions returns base first, then every negotiated extension
// the registry knows, in the order its id appears in activeExtIDs:
// signal dispatch invokes each in turn. The order in which extensions
// were registered is not tracked and plays no part.
func (s *Session) activeExtensions() []Extension {
	out := make([]Extension, 0, len(s.activeExtIDs)+1)
	out = append(out, s.base)
	for _, id := range s.activeExtIDs {
		if ext, ok := lookupExtension(id); ok {
			out = append(out, ext)
		}
	}
	return out
}

// updateExtensions rebuilds the allowed-TLV map from the union of the
// base extension and the named extensions.
func (s *Session) updateExtensions(ids []uint16) error {
	if err := s.allowed.updateExtensions(s.base, ids); err != nil {
		return err
	}
	s.activeExtIDs = ids
	return nil
}

// -------------------------------------------------------------------------
// Inbound dispatch
// -------------------------------------------------------------------------

// HandleInboundBytes consumes as many complete signals as buf holds
// and dispatches each in turn. It returns the number of bytes
// consumed; the caller (the TCP read loop) must retain the
// unconsumed suffix.
//
// The first dispatch error terminates the session and stops
// processing further signals in buf, even if more were already framed
// — DLEP has no partial-signal recovery model.
func (s *Session) HandleInboundBytes(buf []byte) (int, error) {
	signals, consumed := splitSignals(buf)
	for _, sig := range signals {
		if err := s.dispatchInbound(sig); err != nil {
			s.terminate(reasonForErr(err), err)
			return consumed, err
		}
	}
	return consumed, nil
}

func reasonForErr(err error) TerminationReason {
	switch {
	case errors.Is(err, ErrPeerTerminated):
		return ReasonPeerTerminated
	case errors.Is(err, ErrTransportLost):
		return ReasonTransportLost
	case errors.Is(err, ErrHeartbeatTimeout):
		return ReasonHeartbeatTimeout
	default:
		return ReasonProtocolError
	}
}

func (s *Session) dispatchInbound(sig decodedSignal) error {
	if s.restrictSignal != AllSignals && sig.Type != s.restrictSignal {
		return fmt.Errorf("%w: received %s while restricted to %s", ErrRestrictedSignal, sig.Type, s.restrictSignal)
	}

	parsed, err := parseSignal(sig.Type, sig.Body, s.allowed)
	if err != nil {
		return err
	}
	s.current = parsed
	defer func() { s.current = nil }()

	for _, ext := range s.activeExtensions() {
		h, ok := ext.Handlers()[sig.Type]
		if !ok || h.Process == nil {
			continue
		}
		if err := h.Process(s); err != nil {
			return err
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Outbound emission
// -------------------------------------------------------------------------

// emit builds and sends one signal of type t. mac is non-nil for
// per-destination signals. Any Write-handler failure abandons the
// in-progress signal and truncates the output buffer back to its
// pre-signal length.
func (s *Session) emit(t SignalType, mac *MACAddr) error {
	s.wr.startSignal(t, false)
	for _, ext := range s.activeExtensions() {
		h, ok := ext.Handlers()[t]
		if !ok || h.Write == nil {
			continue
		}
		if err := h.Write(s, mac); err != nil {
			s.wr.abandonSignal()
			return err
		}
	}
	if err := s.wr.finishSignal(); err != nil {
		return err
	}
	return s.flush()
}

func (s *Session) flush() error {
	n := s.wr.length()
	if n == 0 {
		return nil
	}
	if s.send == nil {
		return nil
	}
	if err := s.send(s.wr.bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrTransportLost, err)
	}
	s.wr.drain(n)
	return nil
}

// -------------------------------------------------------------------------
// Termination
// -------------------------------------------------------------------------

// terminate cancels all four timer families, unsubscribes from the
// layer-2 bridge, purges every local neighbor without emitting further
// signals, and invokes the host's EndSessionFunc exactly once.
func (s *Session) terminate(reason TerminationReason, cause error) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.mu.Unlock()

	s.localHeartbeatTimer.stop()
	s.remoteWatchdogTimer.stop()
	s.discoveryTimer.stop()
	s.dest.removeAll()

	if s.unsubscribeL2 != nil {
		s.unsubscribeL2()
	}
	if s.l2Sink != nil {
		s.l2Sink.RemoveOrigin(s.originID)
	}

	level := slog.LevelInfo
	if reason == ReasonProtocolError {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "dlep session terminated", "role", s.role, "reason", reason, "err", cause)

	if s.onEnd != nil {
		s.onEnd(s, reason, cause)
	}
}

// Shutdown terminates the session from outside the package, e.g. in
// response to a TerminateSession RPC or a daemon shutdown signal. It is
// equivalent to the internal termination path with ReasonLocalShutdown.
func (s *Session) Shutdown() {
	s.terminate(ReasonLocalShutdown, nil)
}

// Terminated reports whether the session has already ended.
func (s *Session) Terminated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.terminated
}

// Destinations returns a snapshot of the destination table, for
// introspection.
func (s *Session) Destinations() []LocalNeighbor {
	return s.dest.all()
}

// -------------------------------------------------------------------------
// Destination-ack timer plumbing
// -------------------------------------------------------------------------

func (s *Session) armDestinationAck(mac MACAddr, d time.Duration) {
	s.destAckGeneration[mac]++
	gen := s.destAckGeneration[mac]
	newTimer(d, func() {
		s.events <- timerEvent{kind: timerDestinationAck, mac: mac, seq: gen}
	})
}

func (s *Session) disarmDestinationAck(mac MACAddr) {
	s.destAckGeneration[mac]++ // invalidates any in-flight fire for this mac
}

// handleTimerEvent processes one fired timer from the events channel.
// Called from the session's single run loop, so timer callbacks run
// in the same execution context as signal processing.
func (s *Session) handleTimerEvent(ev timerEvent) {
	switch ev.kind {
	case timerLocalHeartbeat:
		if err := s.emit(SignalHeartbeat, nil); err != nil {
			s.terminate(ReasonTransportLost, err)
			return
		}
		s.localHeartbeatTimer = newTimer(s.localHeartbeatInterval, func() {
			s.events <- timerEvent{kind: timerLocalHeartbeat}
		})
	case timerRemoteWatchdog:
		s.terminate(ReasonHeartbeatTimeout, ErrHeartbeatTimeout)
	case timerDiscovery:
		s.emitDiscovery()
		s.discoveryTimer = newTimer(s.cfg.DiscoveryInterval, func() {
			s.events <- timerEvent{kind: timerDiscovery}
		})
	case timerDestinationAck:
		if s.destAckGeneration[ev.mac] != ev.seq {
			return // stale fire from a disarmed/re-armed timer
		}
		s.dest.apply(ev.mac, eventAckTimeout)
	}
}

// resetRemoteWatchdog re-arms the remote heartbeat watchdog for
// 2x the negotiated remote heartbeat interval.
func (s *Session) resetRemoteWatchdog() {
	d := 2 * s.remoteHeartbeatInterval
	if s.remoteWatchdogTimer == nil {
		s.remoteWatchdogTimer = newTimer(d, func() {
			s.events <- timerEvent{kind: timerRemoteWatchdog}
		})
		return
	}
	s.remoteWatchdogTimer.reset(d)
}

func (s *Session) armLocalHeartbeat() {
	s.localHeartbeatTimer = newTimer(s.localHeartbeatInterval, func() {
		s.events <- timerEvent{kind: timerLocalHeartbeat}
	})
}

// Events exposes the timer event channel so the host's run loop can
// select over it alongside socket I/O.
func (s *Session) Events() <-chan timerEvent { return s.events }

// HandleTimerEvent is the exported form of handleTimerEvent for the
// host's run loop.
func (s *Session) HandleTimerEvent(ev timerEvent) { s.handleTimerEvent(ev) }

// -------------------------------------------------------------------------
// TLV read helpers shared by process handlers
// -------------------------------------------------------------------------

func (s *Session) firstTLV(t TLVType) ([]byte, bool) {
	if s.current == nil {
		return nil, false
	}
	idx, ok := s.current.First(t)
	if !ok {
		return nil, false
	}
	return s.current.Binary(idx), true
}

func readU16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
