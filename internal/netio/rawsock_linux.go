//go:build linux

package netio

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
	"golang.org/x/sys/unix"
)

// -------------------------------------------------------------------------
// LinuxDiscoveryConn — RFC 8175 Section 5.1 multicast discovery socket
// -------------------------------------------------------------------------

// LinuxDiscoveryConn implements DiscoveryConn using a UDP socket bound
// to DefaultDiscoveryPort (or a configured override) and joined to the
// DLEP discovery multicast group on a specific interface.
//
// For IPv4 this wraps *net.UDPConn in golang.org/x/net/ipv4.PacketConn
// to join the group and set the outgoing multicast hop limit; for
// IPv6 the golang.org/x/net/ipv6 equivalent is used. SO_BINDTODEVICE
// (golang.org/x/sys/unix) restricts the socket to ifName so a radio or
// router with several configured interfaces runs one discovery socket
// per interface without cross-talk.
type LinuxDiscoveryConn struct {
	conn      *net.UDPConn
	pc4       *ipv4.PacketConn
	pc6       *ipv6.PacketConn
	localAddr netip.AddrPort
	ifName    string
	isIPv6    bool
	closed    bool
	mu        sync.Mutex
}

// discoveryHopLimit is the outgoing hop limit for multicast discovery
// datagrams. DLEP discovery is link-local, so a small value is enough
// and keeps stray PEER_DISCOVERY traffic from leaking past the local
// segment.
const discoveryHopLimit = 1

// NewDiscoveryConn opens a multicast discovery socket on ifName,
// joining groupV4/groupV6 (whichever matches bindAddr's family) and
// listening on port. bindAddr may be the unspecified address (0.0.0.0
// or ::) to let the kernel pick the interface's primary address.
func NewDiscoveryConn(
	ctx context.Context,
	ifName string,
	bindAddr netip.Addr,
	groupV4, groupV6 netip.Addr,
	port uint16,
) (*LinuxDiscoveryConn, error) {
	isIPv6 := bindAddr.Is6() && !bindAddr.Is4In6()

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("discovery conn: lookup interface %s: %w", ifName, err)
	}

	laddr := netip.AddrPortFrom(bindAddr, port)

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			return setDiscoverySockOpts(c, ifName)
		},
	}

	network := "udp4"
	if isIPv6 {
		network = "udp6"
	}

	pc, err := lc.ListenPacket(ctx, network, laddr.String())
	if err != nil {
		return nil, fmt.Errorf("discovery conn: listen %s on %s: %w", laddr, ifName, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, fmt.Errorf("discovery conn: %w: %w", ErrUnexpectedConnType, closeErr)
	}

	dc := &LinuxDiscoveryConn{conn: conn, localAddr: laddr, ifName: ifName, isIPv6: isIPv6}

	if isIPv6 {
		dc.pc6 = ipv6.NewPacketConn(conn)
		group := &net.UDPAddr{IP: groupV6.AsSlice()}
		if err := dc.pc6.JoinGroup(iface, group); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("discovery conn: join group %s on %s: %w", groupV6, ifName, err)
		}
		if err := dc.pc6.SetMulticastHopLimit(discoveryHopLimit); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("discovery conn: set hop limit: %w", err)
		}
		if err := dc.pc6.SetControlMessage(ipv6.FlagSrc, true); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("discovery conn: set control message: %w", err)
		}
	} else {
		dc.pc4 = ipv4.NewPacketConn(conn)
		group := &net.UDPAddr{IP: groupV4.AsSlice()}
		if err := dc.pc4.JoinGroup(iface, group); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("discovery conn: join group %s on %s: %w", groupV4, ifName, err)
		}
		if err := dc.pc4.SetMulticastTTL(discoveryHopLimit); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("discovery conn: set multicast TTL: %w", err)
		}
		if err := dc.pc4.SetControlMessage(ipv4.FlagSrc, true); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("discovery conn: set control message: %w", err)
		}
	}

	return dc, nil
}

// setDiscoverySockOpts sets SO_REUSEADDR (several interfaces may share
// the discovery port) and SO_BINDTODEVICE (confine the socket to one
// interface so multiple per-interface sessions do not cross-talk).
func setDiscoverySockOpts(c syscall.RawConn, ifName string) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		//nolint:gosec // G115: fd uintptr->int is safe; kernel FDs are always small positive integers.
		intFD := int(fd)
		if sockErr = unix.SetsockoptInt(intFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			sockErr = fmt.Errorf("set SO_REUSEADDR: %w", sockErr)
			return
		}
		if ifName != "" {
			if sockErr = unix.SetsockoptString(intFD, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, ifName); sockErr != nil {
				sockErr = fmt.Errorf("set SO_BINDTODEVICE(%s): %w", ifName, sockErr)
			}
		}
	})
	if err != nil {
		return fmt.Errorf("raw conn control: %w", err)
	}
	return sockErr
}

// ReadPacket implements DiscoveryConn.
func (c *LinuxDiscoveryConn) ReadPacket(buf []byte) (int, PacketMeta, error) {
	if c.isIPv6 {
		n, cm, src, err := c.pc6.ReadFrom(buf)
		if err != nil {
			return 0, PacketMeta{}, fmt.Errorf("discovery conn: read: %w", err)
		}
		return n, metaFromSrc(src, ifIndex6(cm), c.ifName), nil
	}

	n, cm, src, err := c.pc4.ReadFrom(buf)
	if err != nil {
		return 0, PacketMeta{}, fmt.Errorf("discovery conn: read: %w", err)
	}
	return n, metaFromSrc(src, ifIndex4(cm), c.ifName), nil
}

func ifIndex4(cm *ipv4.ControlMessage) int {
	if cm == nil {
		return 0
	}
	return cm.IfIndex
}

func ifIndex6(cm *ipv6.ControlMessage) int {
	if cm == nil {
		return 0
	}
	return cm.IfIndex
}

func metaFromSrc(src net.Addr, ifIndex int, ifName string) PacketMeta {
	meta := PacketMeta{IfIndex: ifIndex, IfName: ifName}
	if udpAddr, ok := src.(*net.UDPAddr); ok {
		if addr, ok := netip.AddrFromSlice(udpAddr.IP); ok {
			meta.SrcAddr = addr.Unmap()
		}
	}
	return meta
}

// WritePacket implements DiscoveryConn.
func (c *LinuxDiscoveryConn) WritePacket(buf []byte, dst netip.AddrPort) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("discovery conn write to %s: %w", dst, ErrSocketClosed)
	}
	c.mu.Unlock()

	udpAddr := net.UDPAddrFromAddrPort(dst)
	if _, err := c.conn.WriteToUDP(buf, udpAddr); err != nil {
		return fmt.Errorf("discovery conn write to %s: %w", dst, err)
	}
	return nil
}

// Close implements DiscoveryConn.
func (c *LinuxDiscoveryConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("discovery conn: close: %w", err)
	}
	return nil
}

// LocalAddr implements DiscoveryConn.
func (c *LinuxDiscoveryConn) LocalAddr() netip.AddrPort { return c.localAddr }
