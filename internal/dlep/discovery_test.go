package dlep

import (
	"net/netip"
	"testing"
)

// TestPeerOfferRoundTrip checks that a radio's PEER_OFFER reply to
// PEER_DISCOVERY, advertising its conpoints, decodes back to the same
// addresses and port on the router side.
func TestPeerOfferRoundTrip(t *testing.T) {
	cps := []Conpoint{
		{Addr: netip.MustParseAddr("192.0.2.1"), Port: 854},
		{Addr: netip.MustParseAddr("fe80::1"), Port: 854},
	}
	datagram := EncodePeerOffer(cps)

	sig, err := decodeUDPSignal(datagram)
	if err != nil {
		t.Fatalf("decodeUDPSignal: %v", err)
	}
	if sig.Type != SignalPeerOffer {
		t.Fatalf("signal type = %v, want PEER_OFFER", sig.Type)
	}

	v4, _, err := decodeIPv4Conpoint(sig.Body[4:11])
	if err != nil {
		t.Fatalf("decodeIPv4Conpoint: %v", err)
	}
	if v4.Addr != cps[0].Addr || v4.Port != cps[0].Port {
		t.Fatalf("v4 conpoint = %+v, want %+v", v4, cps[0])
	}

	v6, _, err := decodeIPv6Conpoint(sig.Body[15:34])
	if err != nil {
		t.Fatalf("decodeIPv6Conpoint: %v", err)
	}
	if v6.Addr != cps[1].Addr || v6.Port != cps[1].Port {
		t.Fatalf("v6 conpoint = %+v, want %+v", v6, cps[1])
	}
}

func TestDecodePeerDiscovery(t *testing.T) {
	w := newWriter()
	w.startSignal(SignalPeerDiscovery, true)
	_ = w.finishSignal()

	if err := DecodePeerDiscovery(w.bytes()); err != nil {
		t.Fatalf("DecodePeerDiscovery: %v", err)
	}

	other := newWriter()
	other.startSignal(SignalPeerOffer, true)
	_ = other.finishSignal()
	if err := DecodePeerDiscovery(other.bytes()); err == nil {
		t.Fatal("expected error for non-discovery signal")
	}
}

func TestConpointsFromAddrs(t *testing.T) {
	addrs := []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.IPv4Unspecified(),
		{},
	}
	got := ConpointsFromAddrs(addrs, 854)
	if len(got) != 1 || got[0].Addr != addrs[0] {
		t.Fatalf("ConpointsFromAddrs = %+v", got)
	}
}
