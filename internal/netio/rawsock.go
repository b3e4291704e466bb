package netio

import (
	"errors"
	"net/netip"
)

// -------------------------------------------------------------------------
// DLEP discovery addresses and ports — RFC 8175 Section 5.1, Section 13
// -------------------------------------------------------------------------

const (
	// DefaultDiscoveryPort is the default UDP port for the DLEP
	// discovery exchange (RFC 8175 Section 13.1). It has the same value
	// as the router's PEER_OFFER fallback port in internal/dlep, which
	// declares its own constant.
	DefaultDiscoveryPort uint16 = 854

	// DefaultMulticastV4 is the default "All DLEP Routers" IPv4
	// multicast group address (RFC 8175 Section 13.2).
	DefaultMulticastV4 = "224.0.0.117"

	// DefaultMulticastV6 is the default "All DLEP Routers" IPv6
	// multicast group address (RFC 8175 Section 13.3).
	DefaultMulticastV6 = "FF02::1:6"
)

// -------------------------------------------------------------------------
// Transport Metadata
// -------------------------------------------------------------------------

// PacketMeta carries the transport-layer facts about one received
// discovery datagram that the host needs to act on it: who to reply
// to and which interface it arrived on. For the router role, the
// sender's own address is the PEER_OFFER fallback conpoint.
type PacketMeta struct {
	// SrcAddr is the datagram's source address, used both as the
	// radio's PEER_OFFER reply destination and as the router's
	// Session.SenderAddr.
	SrcAddr netip.Addr

	// IfIndex is the interface index the datagram was received on.
	IfIndex int

	// IfName is the interface name, set by the listener when known.
	IfName string
}

// -------------------------------------------------------------------------
// DiscoveryConn interface
// -------------------------------------------------------------------------

// DiscoveryConn abstracts the DLEP discovery UDP socket: a multicast
// group member that can send unicast/multicast datagrams and receive
// inbound ones with source metadata. Kept minimal so tests can supply
// a mock without a real multicast-capable interface.
type DiscoveryConn interface {
	// ReadPacket reads one datagram into buf, returning its length and
	// source metadata.
	ReadPacket(buf []byte) (n int, meta PacketMeta, err error)

	// WritePacket sends buf to dst (unicast reply or multicast
	// discovery send).
	WritePacket(buf []byte, dst netip.AddrPort) error

	// Close releases the underlying socket and leaves the multicast
	// group.
	Close() error

	// LocalAddr returns the local bind address and port.
	LocalAddr() netip.AddrPort
}

// -------------------------------------------------------------------------
// Sentinel errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("netio: socket closed")

	// ErrUnexpectedConnType indicates net.ListenPacket returned a
	// connection type other than *net.UDPConn.
	ErrUnexpectedConnType = errors.New("netio: unexpected connection type from ListenPacket")

	// ErrNoListeners indicates Run was called without any listeners.
	ErrNoListeners = errors.New("netio: receiver run: no listeners provided")
)
