// Package netio provides the UDP discovery-socket layer for DLEP:
// joining the all-DLEP-routers multicast groups (RFC 8175 Section
// 5.1), sending and receiving PEER_DISCOVERY/PEER_OFFER datagrams, and
// binding a discovery socket to a specific network interface.
//
// Linux-specific socket configuration uses golang.org/x/net/ipv4 and
// golang.org/x/net/ipv6 for multicast group membership and hop-limit
// control, and golang.org/x/sys/unix for SO_BINDTODEVICE.
package netio
