package dlep

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// wireSessions connects two sessions' outbound bytes directly into
// each other's HandleInboundBytes, simulating a lossless TCP pipe
// without needing a real socket.
func wireSessions(radio, router **Session) (radioSend, routerSend func([]byte) error) {
	radioSend = func(b []byte) error {
		_, err := (*router).HandleInboundBytes(b)
		return err
	}
	routerSend = func(b []byte) error {
		_, err := (*radio).HandleInboundBytes(b)
		return err
	}
	return
}

// TestSessionHandshakeHappyPath checks that after the init exchange,
// both sides have the negotiated heartbeat interval and are open to
// ALL_SIGNALS.
func TestSessionHandshakeHappyPath(t *testing.T) {
	var radio, router *Session
	radioSend, routerSend := wireSessions(&radio, &router)

	radio = NewRadioSession(Config{PeerType: "radio1", HeartbeatInterval: 5 * time.Second}, radioSend, nil, nil, testLogger())
	router = NewRouterSession(Config{PeerType: "router1", HeartbeatInterval: 5 * time.Second, DiscoveryInterval: time.Hour}, routerSend, nil, nil, testLogger())
	t.Cleanup(func() { radio.terminate(ReasonLocalShutdown, nil); router.terminate(ReasonLocalShutdown, nil) })

	if err := router.TransitionAfterConnect(); err != nil {
		t.Fatalf("TransitionAfterConnect: %v", err)
	}

	if radio.RestrictSignal() != AllSignals {
		t.Fatalf("radio restrict_signal = %v, want ALL_SIGNALS", radio.RestrictSignal())
	}
	if router.RestrictSignal() != AllSignals {
		t.Fatalf("router restrict_signal = %v, want ALL_SIGNALS", router.RestrictSignal())
	}
	if radio.RemoteHeartbeatInterval() != 5*time.Second {
		t.Fatalf("radio remote_heartbeat_interval = %v, want 5s", radio.RemoteHeartbeatInterval())
	}
	if router.RemoteHeartbeatInterval() != 5*time.Second {
		t.Fatalf("router remote_heartbeat_interval = %v, want 5s", router.RemoteHeartbeatInterval())
	}
}

// TestSessionDestinationUpAck exercises a destination reaching
// UP_ACKED end to end, on both the radio and router sides.
func TestSessionDestinationUpAck(t *testing.T) {
	var radio, router *Session
	radioSend, routerSend := wireSessions(&radio, &router)

	l2 := NewMemoryL2Table()
	sink := NewMemoryL2Table()

	radio = NewRadioSession(Config{HeartbeatInterval: 5 * time.Second, SendNeighbors: true}, radioSend, l2, nil, testLogger())
	router = NewRouterSession(Config{HeartbeatInterval: 5 * time.Second, DiscoveryInterval: time.Hour}, routerSend, sink, nil, testLogger())
	t.Cleanup(func() { radio.terminate(ReasonLocalShutdown, nil); router.terminate(ReasonLocalShutdown, nil) })

	if err := router.TransitionAfterConnect(); err != nil {
		t.Fatalf("TransitionAfterConnect: %v", err)
	}

	mac := MACAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	l2.Add(L2Neighbor{MAC: mac})

	n, ok := radio.dest.get(mac)
	if !ok {
		t.Fatalf("radio has no destination entry for %v", mac)
	}
	if n.State != DestUpAcked {
		t.Fatalf("radio destination state = %v, want UP_ACKED (ack round-tripped synchronously)", n.State)
	}

	if _, ok := sink.Get(mac); !ok {
		t.Fatalf("router's L2 sink has no entry for %v", mac)
	}
}

// TestSessionUpdateWhileUnacked checks that a change arriving while a
// destination is still UP_SENT defers its DESTINATION_UPDATE until
// the pending ack arrives.
func TestSessionUpdateWhileUnacked(t *testing.T) {
	var radio, router *Session
	radioSend, routerSend := wireSessions(&radio, &router)

	l2 := NewMemoryL2Table()
	sink := NewMemoryL2Table()

	// Delay the router's ack by intercepting DESTINATION_UP so the test
	// can inject a change before the ack round-trips.
	holdAck := make(chan []byte, 1)
	radioSendHeld := func(b []byte) error {
		sig, consumed := splitSignals(b)
		if consumed == len(b) && len(sig) == 1 && sig[0].Type == SignalDestinationUp {
			holdAck <- append([]byte(nil), b...) // copy: the writer's buffer is reused after this call returns
			return nil
		}
		_, err := (*router).HandleInboundBytes(b)
		return err
	}

	radio = NewRadioSession(Config{HeartbeatInterval: 5 * time.Second, SendNeighbors: true}, radioSendHeld, l2, nil, testLogger())
	router = NewRouterSession(Config{HeartbeatInterval: 5 * time.Second, DiscoveryInterval: time.Hour}, routerSend, sink, nil, testLogger())
	t.Cleanup(func() { radio.terminate(ReasonLocalShutdown, nil); router.terminate(ReasonLocalShutdown, nil) })

	if err := router.TransitionAfterConnect(); err != nil {
		t.Fatalf("TransitionAfterConnect: %v", err)
	}

	mac := MACAddr{1, 2, 3, 4, 5, 6}
	l2.Add(L2Neighbor{MAC: mac})

	n, ok := radio.dest.get(mac)
	if !ok || n.State != DestUpSent {
		t.Fatalf("expected UP_SENT with the ack held back, got %+v", n)
	}

	l2.Change(L2Neighbor{MAC: mac, Metrics: map[TLVType][]byte{TLVLatency: {0, 0, 0, 1}}})
	n, _ = radio.dest.get(mac)
	if !n.ChangedFlag {
		t.Fatalf("expected changed_flag=true while UP_SENT")
	}

	// Release the held DESTINATION_UP to the router, which acks it.
	held := <-holdAck
	if _, err := router.HandleInboundBytes(held); err != nil {
		t.Fatalf("router HandleInboundBytes: %v", err)
	}

	n, _ = radio.dest.get(mac)
	if n.State != DestUpAcked {
		t.Fatalf("expected UP_ACKED after ack, got %v", n.State)
	}
	if n.ChangedFlag {
		t.Fatalf("expected changed_flag to reset once the deferred UPDATE was emitted")
	}
}

// TestSessionParserErrorTerminates checks that a declared
// signal_length exceeding the available bytes terminates the session
// without leaking partial state.
func TestSessionParserErrorTerminates(t *testing.T) {
	var ended bool
	var endReason TerminationReason
	onEnd := func(_ *Session, reason TerminationReason, _ error) {
		ended = true
		endReason = reason
	}

	radio := NewRadioSession(Config{HeartbeatInterval: 5 * time.Second}, func([]byte) error { return nil }, nil, onEnd, testLogger())

	// A fully-framed PEER_INITIALIZATION (signal_length=4, matching the
	// 4 bytes actually present) whose one TLV declares a HEARTBEAT_INTERVAL
	// of length 4 but carries zero value bytes: splitSignals frames the
	// signal successfully, and the failure surfaces one layer down, in
	// parseSignal's TLV walk.
	bad := []byte{
		0x00, byte(SignalPeerInitialization), 0x00, 0x04,
		0x00, byte(TLVHeartbeatInterval), 0x00, 0x04,
	}
	if _, err := radio.HandleInboundBytes(bad); err == nil {
		t.Fatalf("expected an error from a truncated TLV")
	}
	if !ended {
		t.Fatalf("expected the session to terminate on a parser error")
	}
	if endReason != ReasonProtocolError {
		t.Fatalf("reason = %v, want ReasonProtocolError", endReason)
	}
	if len(radio.Destinations()) != 0 {
		t.Fatalf("expected no leaked destination state after termination")
	}
}

// TestSessionRestrictedSignalViolationTerminates checks that every
// inbound signal whose type is not in the restrict_signal set causes
// session termination.
func TestSessionRestrictedSignalViolationTerminates(t *testing.T) {
	var ended bool
	onEnd := func(_ *Session, _ TerminationReason, _ error) { ended = true }
	radio := NewRadioSession(Config{HeartbeatInterval: 5 * time.Second}, func([]byte) error { return nil }, nil, onEnd, testLogger())

	w := newWriter()
	w.startSignal(SignalHeartbeat, false) // radio only accepts PEER_INITIALIZATION at this point
	_ = w.finishSignal()

	if _, err := radio.HandleInboundBytes(w.bytes()); err == nil {
		t.Fatalf("expected a restricted-signal error")
	}
	if !ended {
		t.Fatalf("expected session termination on a restricted-signal violation")
	}
}

// TestSessionExtensionNegotiation checks that a router offering an
// unregistered extension id alongside a registered one ends up with
// only the registered one active.
func TestSessionExtensionNegotiation(t *testing.T) {
	// Inserted directly rather than via RegisterExtension, since the
	// registry is frozen as soon as any test in this package has
	// already constructed a Session; see
	// TestAllowedTLVMapPurgesRemovedExtension.
	extraTLV := TLVDecl{Type: TLVType(8001), Min: 1, Max: 1}
	registry[42] = fakeExtension{id: 42, tlvs: []TLVDecl{extraTLV}}
	defer delete(registry, 42)

	var radio, router *Session
	radioSend, routerSend := wireSessions(&radio, &router)

	radio = NewRadioSession(Config{HeartbeatInterval: 5 * time.Second}, radioSend, nil, nil, testLogger())
	router = NewRouterSession(Config{HeartbeatInterval: 5 * time.Second, DiscoveryInterval: time.Hour, ExtensionIDs: []uint16{42, 99}}, routerSend, nil, nil, testLogger())
	t.Cleanup(func() { radio.terminate(ReasonLocalShutdown, nil); router.terminate(ReasonLocalShutdown, nil) })

	if err := router.TransitionAfterConnect(); err != nil {
		t.Fatalf("TransitionAfterConnect: %v", err)
	}

	if _, ok := radio.allowed.lookup(extraTLV.Type); !ok {
		t.Fatalf("expected extension 42's TLV to be accepted")
	}
	// activeExtIDs records the full negotiated id set (42 and the
	// unregistered 99); activeExtensions() is what actually filters to
	// extensions the registry knows about.
	if len(radio.activeExtensions()) != 2 {
		t.Fatalf("expected base + extension 42 only, got %d active extensions", len(radio.activeExtensions()))
	}
}
