package dlep

// L2Neighbor is one entry of the external layer-2 neighbor table. The
// core only ever sees it through L2Source/L2Sink; its storage policy
// belongs to whatever subsystem owns the table.
type L2Neighbor struct {
	MAC         MACAddr
	Proxied     bool
	WirelessMAC MACAddr

	// Metrics holds the raw TLV-shaped values the radio should mirror
	// (or the router received) for this neighbor: max/current data
	// rate, latency, resources, relative link quality, MTU — keyed by
	// TLVType so the bridge doesn't need to know every metric's Go
	// type.
	Metrics map[TLVType][]byte
}

// L2Source is what a radio session subscribes to. An external
// subsystem (NHDP, an OLSRv2 neighborhood, a vendor L2 bridge driver)
// implements this.
type L2Source interface {
	// Subscribe registers the three observer callbacks and returns an
	// unsubscribe function to call on session termination.
	Subscribe(added, changed, removed func(L2Neighbor)) (unsubscribe func())

	// Snapshot returns every neighbor currently known, for the radio's
	// "emit DESTINATION_UP for every neighbor" pass once init completes.
	Snapshot() []L2Neighbor
}

// L2Sink is what a router session projects inbound signals into.
//
// origin is the session's l2_origin id: the sink implementation must
// not let one origin overwrite another's entries.
type L2Sink interface {
	Upsert(origin string, n L2Neighbor) error
	Update(origin string, n L2Neighbor)
	Remove(origin string, mac MACAddr)
	// RemoveOrigin drops every entry tagged with origin, called on
	// session termination.
	RemoveOrigin(origin string)
}
