package netio

import (
	"context"
	"fmt"
	"net/netip"
)

// -------------------------------------------------------------------------
// ListenerConfig — DLEP discovery socket configuration
// -------------------------------------------------------------------------

// ListenerConfig holds configuration for one discovery socket, one per
// configured interface per address family.
type ListenerConfig struct {
	// IfName is the interface to bind and join the multicast group on.
	IfName string

	// BindAddr is the local address to bind to; its family (v4/v6)
	// selects which multicast group is joined.
	BindAddr netip.Addr

	// GroupV4, GroupV6 are the discovery multicast groups (defaults:
	// DefaultMulticastV4/V6).
	GroupV4, GroupV6 netip.Addr

	// Port is the discovery UDP port (default DefaultDiscoveryPort).
	Port uint16
}

// -------------------------------------------------------------------------
// Listener — one interface's discovery receive/reply socket
// -------------------------------------------------------------------------

// Listener wraps a DiscoveryConn with a context-aware receive loop and
// a convenience reply method for unicasting PEER_OFFER back to the
// datagram's sender, for the radio role.
type Listener struct {
	conn   DiscoveryConn
	ifName string
}

// NewListener creates a Listener from cfg, defaulting unset fields.
func NewListener(ctx context.Context, cfg ListenerConfig) (*Listener, error) {
	if cfg.Port == 0 {
		cfg.Port = DefaultDiscoveryPort
	}
	if !cfg.GroupV4.IsValid() {
		cfg.GroupV4 = netip.MustParseAddr(DefaultMulticastV4)
	}
	if !cfg.GroupV6.IsValid() {
		cfg.GroupV6 = netip.MustParseAddr(DefaultMulticastV6)
	}

	conn, err := NewDiscoveryConn(ctx, cfg.IfName, cfg.BindAddr, cfg.GroupV4, cfg.GroupV6, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("new listener on %s: %w", cfg.IfName, err)
	}

	return &Listener{conn: conn, ifName: cfg.IfName}, nil
}

// NewListenerFromConn creates a Listener from an existing DiscoveryConn,
// for tests or alternate transports.
func NewListenerFromConn(conn DiscoveryConn, ifName string) *Listener {
	return &Listener{conn: conn, ifName: ifName}
}

// Recv blocks until a discovery datagram is received or ctx is
// cancelled. Returns the raw datagram bytes and source metadata;
// decoding (DecodePeerDiscovery/EncodePeerOffer) is the caller's job.
func (l *Listener) Recv(ctx context.Context) ([]byte, PacketMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, PacketMeta{}, fmt.Errorf("listener recv: %w", err)
	}

	buf := make([]byte, 2048)
	n, meta, err := l.conn.ReadPacket(buf)
	if err != nil {
		return nil, PacketMeta{}, fmt.Errorf("listener read: %w", err)
	}
	meta.IfName = l.ifName
	return buf[:n], meta, nil
}

// Reply unicasts datagram to addr on the discovery port, for the
// radio's PEER_OFFER response to an inbound PEER_DISCOVERY.
func (l *Listener) Reply(datagram []byte, addr netip.Addr) error {
	dst := netip.AddrPortFrom(addr, l.conn.LocalAddr().Port())
	if err := l.conn.WritePacket(datagram, dst); err != nil {
		return fmt.Errorf("listener reply to %s: %w", addr, err)
	}
	return nil
}

// SendMulticast sends datagram to the discovery socket's joined
// multicast group, for the router's periodic PEER_DISCOVERY.
func (l *Listener) SendMulticast(datagram []byte, group netip.Addr) error {
	dst := netip.AddrPortFrom(group, l.conn.LocalAddr().Port())
	if err := l.conn.WritePacket(datagram, dst); err != nil {
		return fmt.Errorf("listener multicast send: %w", err)
	}
	return nil
}

// Close closes the underlying DiscoveryConn.
func (l *Listener) Close() error {
	if err := l.conn.Close(); err != nil {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// IfName returns the interface this listener is bound to.
func (l *Listener) IfName() string { return l.ifName }
