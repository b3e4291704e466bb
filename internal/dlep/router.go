package dlep

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// SetDiscoverySend installs the function that writes a PEER_DISCOVERY
// datagram to the UDP discovery socket, distinct from the TCP send
// function used after the session graduates past discovery.
//
// It is stored separately from Session.send, so installing the TCP
// transport with SetTransportSend leaves the discovery path in place.
func (s *Session) SetDiscoverySend(send func([]byte) error) {
	s.discoverySend = send
}

// SetTransportSend installs the TCP send function. Called by the host
// once the connection to the selected conpoint succeeds.
func (s *Session) SetTransportSend(send func([]byte) error) {
	s.send = send
}

// initRouterBase sends one PEER_DISCOVERY right away through
// discoverySend (nothing is sent if none is installed yet) and arms the
// timer that repeats it every discovery_interval.
func (s *Session) initRouterBase(_ *Session) error {
	s.emitDiscovery()
	s.discoveryTimer = newTimer(s.cfg.DiscoveryInterval, func() {
		s.events <- timerEvent{kind: timerDiscovery}
	})
	return nil
}

func (s *Session) cleanupRouterBase(_ *Session) {}

func (s *Session) emitDiscovery() {
	if s.discoverySend == nil {
		return
	}
	w := newWriter()
	w.startSignal(SignalPeerDiscovery, true)
	_ = w.finishSignal()
	_ = s.discoverySend(w.bytes())
}

func writePeerDiscovery(_ *Session, _ *MACAddr) error { return nil }

// Conpoint is one address:port the radio offered as a connection
// point.
type Conpoint struct {
	Addr netip.Addr
	Port uint16
	TLS  bool
}

// processPeerOffer selects the first IPV6_CONPOINT in link-local
// scope, else the first v6, else the first v4 (TLS variants are
// currently skipped); if none are acceptable, it falls back to the
// sender's own address.
//
// SelectedConpoint is left set on the session for the host to dial;
// SenderAddr (set by the host before calling this, from the UDP
// datagram's source address) is used as the fallback.
func (s *Session) processPeerOffer() error {
	var v6LinkLocal, v6Any, v4Any *Conpoint

	for idx, ok := s.current.First(TLVIPv6Conpoint); ok; idx, ok = s.current.Next(idx) {
		cp, tls, perr := decodeIPv6Conpoint(s.current.Binary(idx))
		if perr != nil || tls {
			continue
		}
		c := Conpoint{Addr: cp.Addr, Port: cp.Port}
		if v6Any == nil {
			v6Any = &c
		}
		if cp.Addr.IsLinkLocalUnicast() && v6LinkLocal == nil {
			v6LinkLocal = &c
		}
	}
	for idx, ok := s.current.First(TLVIPv4Conpoint); ok; idx, ok = s.current.Next(idx) {
		cp, tls, perr := decodeIPv4Conpoint(s.current.Binary(idx))
		if perr != nil || tls {
			continue
		}
		if v4Any == nil {
			c := cp
			v4Any = &c
		}
	}

	switch {
	case v6LinkLocal != nil:
		s.SelectedConpoint = v6LinkLocal
	case v6Any != nil:
		s.SelectedConpoint = v6Any
	case v4Any != nil:
		s.SelectedConpoint = v4Any
	case s.SenderAddr.IsValid():
		s.SelectedConpoint = &Conpoint{Addr: s.SenderAddr, Port: defaultDLEPPort}
	default:
		return fmt.Errorf("%w: PEER_OFFER carried no acceptable connection point", ErrInternal)
	}
	return nil
}

// defaultDLEPPort is RFC 8175's registered default TCP/UDP port.
const defaultDLEPPort = 854

func decodeIPv4Conpoint(b []byte) (Conpoint, bool, error) {
	if len(b) != 7 {
		return Conpoint{}, false, ErrIllegalTLVLength
	}
	addr := netip.AddrFrom4([4]byte(b[0:4]))
	tls := b[4] != 0
	port := binary.BigEndian.Uint16(b[5:7])
	return Conpoint{Addr: addr, Port: port, TLS: tls}, tls, nil
}

func decodeIPv6Conpoint(b []byte) (Conpoint, bool, error) {
	if len(b) != 19 {
		return Conpoint{}, false, ErrIllegalTLVLength
	}
	addr := netip.AddrFrom16([16]byte(b[0:16]))
	tls := b[16] != 0
	port := binary.BigEndian.Uint16(b[17:19])
	return Conpoint{Addr: addr, Port: port, TLS: tls}, tls, nil
}

// TransitionAfterConnect moves the router session from discovery into
// the init exchange once TCP has connected to SelectedConpoint: it
// transitions restrictSignal to PEER_INITIALIZATION_ACK and
// immediately emits PEER_INITIALIZATION.
func (s *Session) TransitionAfterConnect() error {
	s.discoveryTimer.stop()
	s.restrictSignal = SignalPeerInitializationAck
	return s.emit(SignalPeerInitialization, nil)
}

func writePeerInitializationRouter(s *Session, _ *MACAddr) error {
	var hb [2]byte
	binary.BigEndian.PutUint16(hb[:], durationToMs(s.localHeartbeatInterval))
	s.wr.addTLV(TLVHeartbeatInterval, hb[:])
	if len(s.cfg.ExtensionIDs) > 0 {
		s.wr.addTLV(TLVExtensionsSupported, encodeExtensionIDs(s.cfg.ExtensionIDs))
	}
	if s.cfg.PeerType != "" {
		s.wr.addTLV(TLVPeerType, encodePeerType(s.cfg.PeerType))
	}
	return nil
}

// processPeerInitializationAckRouter mirrors the radio's handling of
// PEER_INITIALIZATION: parse the remote heartbeat interval and
// extension set, start our own heartbeat emission, and open up to
// ALL_SIGNALS.
func (s *Session) processPeerInitializationAckRouter() error {
	hb, ok := s.firstTLV(TLVHeartbeatInterval)
	if !ok {
		return fmt.Errorf("%w: PEER_INITIALIZATION_ACK missing HEARTBEAT_INTERVAL", ErrMissingMandatoryTLV)
	}
	s.remoteHeartbeatInterval = msToDuration(binary.BigEndian.Uint16(hb))

	if ext, ok := s.firstTLV(TLVExtensionsSupported); ok {
		if err := s.updateExtensions(decodeExtensionIDs(ext)); err != nil {
			return err
		}
	}
	if pt, ok := s.firstTLV(TLVPeerType); ok {
		s.remotePeer = decodePeerType(pt)
	}

	s.armLocalHeartbeat()
	s.resetRemoteWatchdog()
	s.restrictSignal = AllSignals
	return nil
}

// processDestinationUpRouter handles DESTINATION_UP on the router
// role: add/update the L2 entry from the signal's metric TLVs and
// ack. A creation failure replies with REQUEST_DENIED rather than
// terminating the session.
func (s *Session) processDestinationUpRouter() error {
	mac, err := s.macFromCurrent()
	if err != nil {
		return err
	}
	n := L2Neighbor{MAC: mac, Metrics: s.currentMetrics()}
	s.pendingUpErr = nil
	if s.l2Sink != nil {
		if err := s.l2Sink.Upsert(s.originID, n); err != nil {
			s.pendingUpErr = err
		}
	}
	// Router-side bookkeeping: track the MAC for introspection only.
	// The router role has no outbound sub-FSM of its own — the
	// UP_SENT/DOWN_SENT lifecycle belongs to the radio.
	s.dest.entries[mac] = &LocalNeighbor{Addr: mac, State: DestUpAcked}
	return s.emit(SignalDestinationUpAck, &mac)
}

func writeDestinationUpAck(s *Session, mac *MACAddr) error {
	s.wr.addTLV(TLVMACAddress, mac[:])
	if s.pendingUpErr != nil {
		s.wr.addTLV(TLVStatus, []byte{byte(StatusRequestDenied)})
	} else {
		s.wr.addTLV(TLVStatus, []byte{byte(StatusSuccess)})
	}
	return nil
}

// processDestinationUpdateRouter maps metrics with no ack.
func (s *Session) processDestinationUpdateRouter() error {
	mac, err := s.macFromCurrent()
	if err != nil {
		return err
	}
	if s.l2Sink != nil {
		s.l2Sink.Update(s.originID, L2Neighbor{MAC: mac, Metrics: s.currentMetrics()})
	}
	return nil
}

// processDestinationDownRouter removes the entry (tagged with this
// session's origin) and acks. An unknown MAC is a no-op, not an
// error.
func (s *Session) processDestinationDownRouter() error {
	mac, err := s.macFromCurrent()
	if err != nil {
		return err
	}
	if s.l2Sink != nil {
		s.l2Sink.Remove(s.originID, mac)
	}
	delete(s.dest.entries, mac)
	return s.emit(SignalDestinationDownAck, &mac)
}

func writeDestinationDownAck(s *Session, mac *MACAddr) error {
	s.wr.addTLV(TLVMACAddress, mac[:])
	return nil
}

// currentMetrics copies every metric TLV present on the signal
// currently being dispatched into a map keyed by TLV type.
func (s *Session) currentMetrics() map[TLVType][]byte {
	out := make(map[TLVType][]byte)
	for _, t := range []TLVType{
		TLVMaxDataRateRx, TLVMaxDataRateTx, TLVCurrentDataRateRx, TLVCurrentDataRateTx,
		TLVLatency, TLVResources, TLVRelativeLinkQualityRx, TLVRelativeLinkQualityTx,
		TLVMaximumTransmissionUnit,
	} {
		if b, ok := s.firstTLV(t); ok {
			out[t] = append([]byte(nil), b...)
		}
	}
	return out
}
