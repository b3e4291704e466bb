package dlep

import (
	"encoding/binary"
	"net/netip"
)

// The radio's PEER_DISCOVERY/PEER_OFFER exchange happens on a UDP
// discovery socket before any TCP connection, and therefore before any
// Session exists on the radio side: a Session is only created once the
// radio accepts the resulting TCP connection. These two functions are
// the stateless half of discovery that has nowhere else to live; the
// host owns the UDP listener and calls them directly.

// DecodePeerDiscovery validates that datagram is a well-formed
// PEER_DISCOVERY UDP frame and returns nil if so. PEER_DISCOVERY
// carries no TLVs, so there is nothing further to extract.
func DecodePeerDiscovery(datagram []byte) error {
	sig, err := decodeUDPSignal(datagram)
	if err != nil {
		return err
	}
	if sig.Type != SignalPeerDiscovery {
		return ErrRestrictedSignal
	}
	return nil
}

// EncodePeerOffer builds a UDP-framed PEER_OFFER datagram advertising
// conpoints as the radio's TCP connection points: one or more
// IPV4_CONPOINT/IPV6_CONPOINT data items.
func EncodePeerOffer(conpoints []Conpoint) []byte {
	w := newWriter()
	w.startSignal(SignalPeerOffer, true)
	for _, cp := range conpoints {
		if cp.Addr.Is4() {
			w.addTLV(TLVIPv4Conpoint, encodeIPv4Conpoint(cp))
		} else if cp.Addr.Is6() {
			w.addTLV(TLVIPv6Conpoint, encodeIPv6Conpoint(cp))
		}
	}
	_ = w.finishSignal()
	return w.bytes()
}

func encodeIPv4Conpoint(cp Conpoint) []byte {
	out := make([]byte, 7)
	addr := cp.Addr.As4()
	copy(out[0:4], addr[:])
	if cp.TLS {
		out[4] = 1
	}
	binary.BigEndian.PutUint16(out[5:7], cp.Port)
	return out
}

func encodeIPv6Conpoint(cp Conpoint) []byte {
	out := make([]byte, 19)
	addr := cp.Addr.As16()
	copy(out[0:16], addr[:])
	if cp.TLS {
		out[16] = 1
	}
	binary.BigEndian.PutUint16(out[17:19], cp.Port)
	return out
}

// ConpointsFromAddrs turns a set of local listen addresses into the
// Conpoint list EncodePeerOffer advertises, skipping unspecified and
// invalid addresses.
func ConpointsFromAddrs(addrs []netip.Addr, port uint16) []Conpoint {
	out := make([]Conpoint, 0, len(addrs))
	for _, a := range addrs {
		if !a.IsValid() || a.IsUnspecified() {
			continue
		}
		out = append(out, Conpoint{Addr: a, Port: port})
	}
	return out
}
