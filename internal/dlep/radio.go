package dlep

import (
	"encoding/binary"
	"fmt"
	"time"
)

// initRadioBase is the base extension's InitRadio hook: arm the
// remote heartbeat watchdog with a provisional timeout (the peer's
// declared heartbeat interval is not known yet) so a peer that never
// sends PEER_INITIALIZATION is still bounded.
func (s *Session) initRadioBase(_ *Session) error {
	s.remoteHeartbeatInterval = s.cfg.HeartbeatInterval
	s.resetRemoteWatchdog()
	return nil
}

func (s *Session) cleanupRadioBase(_ *Session) {}

// processPeerInitializationRadio handles an inbound PEER_INITIALIZATION
// on the radio role: parse the mandatory heartbeat TLV and the
// optional extensions-supported TLV, start the local heartbeat and
// reset the remote watchdog to the negotiated interval, emit
// PEER_INITIALIZATION_ACK, mirror every known L2 neighbor as
// DESTINATION_UP, and widen restrict_signal to ALL_SIGNALS.
func (s *Session) processPeerInitializationRadio() error {
	hb, ok := s.firstTLV(TLVHeartbeatInterval)
	if !ok {
		return fmt.Errorf("%w: PEER_INITIALIZATION missing HEARTBEAT_INTERVAL", ErrMissingMandatoryTLV)
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

	if err := s.emit(SignalPeerInitializationAck, nil); err != nil {
		return err
	}

	s.mirrorL2Neighbors()

	s.restrictSignal = AllSignals
	return nil
}

// writePeerInitializationAck encodes our heartbeat interval, our
// configured extension ids, and our peer type into the outbound
// PEER_INITIALIZATION_ACK.
func writePeerInitializationAck(s *Session, _ *MACAddr) error {
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

// mirrorL2Neighbors enumerates the external L2 table once and drives
// the destination sub-state-machine with a synthetic "added" event for
// every neighbor that passes the send_neighbors/send_proxied filter.
func (s *Session) mirrorL2Neighbors() {
	if s.l2Source == nil {
		return
	}
	s.unsubscribeL2 = s.l2Source.Subscribe(s.onL2Added, s.onL2Changed, s.onL2Removed)
	for _, n := range s.l2Source.Snapshot() {
		s.onL2Added(n)
	}
}

func (s *Session) l2Allowed(n L2Neighbor) bool {
	if n.Proxied {
		return s.cfg.SendProxied
	}
	return s.cfg.SendNeighbors
}

// onL2Added is the radio's L2Source "added" callback: drive the
// destination sub-state-machine and emit DESTINATION_UP.
func (s *Session) onL2Added(n L2Neighbor) {
	if s.Terminated() || !s.l2Allowed(n) {
		return
	}
	s.dest.entries[n.MAC] = &LocalNeighbor{Addr: n.MAC, WirelessMAC: n.WirelessMAC, Proxied: n.Proxied}
	_, actions := s.dest.apply(n.MAC, eventL2Added)
	s.runDestActions(n.MAC, actions)
}

// onL2Changed is the radio's L2Source "changed" callback. While
// UP_SENT, only the changed_flag is set; the UPDATE is emitted once
// the pending UP_ACK arrives (see processDestinationUpAck). While
// UP_ACKED, the change is emitted immediately as DESTINATION_UPDATE.
func (s *Session) onL2Changed(n L2Neighbor) {
	if s.Terminated() {
		return
	}
	mac := n.MAC
	_, actions := s.dest.apply(mac, eventL2Changed)
	s.runDestActions(mac, actions)
}

// onL2Removed is the radio's L2Source "removed" callback: emit
// DESTINATION_DOWN.
func (s *Session) onL2Removed(n L2Neighbor) {
	if s.Terminated() {
		return
	}
	mac := n.MAC
	_, actions := s.dest.apply(mac, eventL2Removed)
	s.runDestActions(mac, actions)
}

// runDestActions sends the signals a destination-table transition
// called for; the ack-timer arm/disarm/remove actions were already
// applied by DestinationTable.apply itself.
func (s *Session) runDestActions(mac MACAddr, actions []destAction) {
	m := mac
	for _, a := range actions {
		switch a {
		case actionSendUp:
			_ = s.emit(SignalDestinationUp, &m)
		case actionSendDown:
			_ = s.emit(SignalDestinationDown, &m)
		case actionSendUpdate:
			_ = s.emit(SignalDestinationUpdate, &m)
		}
	}
}

func writeDestinationUp(s *Session, mac *MACAddr) error {
	s.wr.addTLV(TLVMACAddress, mac[:])
	return nil
}

func writeDestinationUpdate(s *Session, mac *MACAddr) error {
	s.wr.addTLV(TLVMACAddress, mac[:])
	return nil
}

func writeDestinationDown(s *Session, mac *MACAddr) error {
	s.wr.addTLV(TLVMACAddress, mac[:])
	return nil
}

func writeHeartbeat(_ *Session, _ *MACAddr) error { return nil }

// processDestinationUpAck moves the destination out of UP_SENT; if the
// neighbor changed while waiting, emit exactly one DESTINATION_UPDATE
// now.
func (s *Session) processDestinationUpAck() error {
	mac, err := s.macFromCurrent()
	if err != nil {
		return err
	}
	n, ok := s.dest.get(mac)
	hadChange := ok && n.ChangedFlag
	_, actions := s.dest.apply(mac, eventRecvUpAck)
	s.runDestActions(mac, actions)
	if hadChange {
		_ = s.emit(SignalDestinationUpdate, &mac)
	}
	return nil
}

func (s *Session) processDestinationDownAck() error {
	mac, err := s.macFromCurrent()
	if err != nil {
		return err
	}
	_, actions := s.dest.apply(mac, eventRecvDownAck)
	s.runDestActions(mac, actions)
	return nil
}

func (s *Session) macFromCurrent() (MACAddr, error) {
	b, ok := s.firstTLV(TLVMACAddress)
	if !ok {
		return MACAddr{}, fmt.Errorf("%w: signal missing MAC_ADDRESS", ErrMissingMandatoryTLV)
	}
	return ParseMAC(b)
}

// processPeerUpdate answers unconditionally with PEER_UPDATE_ACK
// without validating TLV content, since no IP-exchange TLVs are
// implemented. Revisit this once an extension that acts on IP TLVs
// exists.
func (s *Session) processPeerUpdate() error {
	return s.emit(SignalPeerUpdateAck, nil)
}

func (s *Session) processPeerUpdateAck() error { return nil }

// processHeartbeat resets the remote watchdog; no reply is sent, the
// watchdog reset itself is the "answer".
func (s *Session) processHeartbeat() error {
	s.resetRemoteWatchdog()
	return nil
}

// processPeerTermination replies with PEER_TERMINATION_ACK best-effort
// and terminates regardless of the write outcome.
func (s *Session) processPeerTermination() error {
	_ = s.emit(SignalPeerTerminationAck, nil)
	return ErrPeerTerminated
}

func (s *Session) processPeerTerminationAck() error {
	return ErrPeerTerminated
}

func msToDuration(ms uint16) time.Duration { return time.Duration(ms) * time.Millisecond }

func durationToMs(d time.Duration) uint16 { return uint16(d / time.Millisecond) }

func encodePeerType(s string) []byte {
	return append([]byte{0}, []byte(s)...)
}

func decodePeerType(b []byte) string {
	if len(b) < 1 {
		return ""
	}
	return string(b[1:])
}

func encodeExtensionIDs(ids []uint16) []byte {
	out := make([]byte, len(ids)*2)
	for i, id := range ids {
		binary.BigEndian.PutUint16(out[i*2:], id)
	}
	return out
}

func decodeExtensionIDs(b []byte) []uint16 {
	n := len(b) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = binary.BigEndian.Uint16(b[i*2 : i*2+2])
	}
	return out
}
