package dlep

import "fmt"

// MACAddr is an endpoint MAC address, the key of the destination
// table. A destination's address may be a proxied Ethernet address
// reached through an intermediate layer-2 device.
type MACAddr [6]byte

// String renders the MAC in the usual colon-hex form.
func (m MACAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// ParseMAC decodes a 6-byte TLV value into a MACAddr.
func ParseMAC(b []byte) (MACAddr, error) {
	var m MACAddr
	if len(b) != 6 {
		return m, fmt.Errorf("%w: MAC address TLV must be 6 bytes, got %d", ErrInvalidData, len(b))
	}
	copy(m[:], b)
	return m, nil
}

// ErrInvalidData marks a well-framed TLV whose value fails a
// semantic (not just length) check.
var ErrInvalidData = fmt.Errorf("dlep: invalid TLV value")
