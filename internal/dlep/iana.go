// Package dlep implements the Dynamic Link Exchange Protocol (RFC 8175)
// session engine: wire codec, extension negotiation, the session state
// machine for both the radio and router roles, the per-destination
// lifecycle, and the timer discipline that drives all of it.
package dlep

// -------------------------------------------------------------------------
// Signal IDs — RFC 8175 Section 11.3 (IANA DLEP Signals registry)
// -------------------------------------------------------------------------

// SignalType identifies a DLEP signal on the wire (RFC 8175 Section 11.3).
type SignalType uint16

const (
	// AllSignals is not a wire value. It is the parser's "accept any
	// inbound signal" sentinel used for restrictSignal outside the
	// handshake phases.
	AllSignals SignalType = 0

	SignalPeerDiscovery          SignalType = 1
	SignalPeerOffer              SignalType = 2
	SignalPeerInitialization     SignalType = 3
	SignalPeerInitializationAck  SignalType = 4
	SignalPeerUpdate             SignalType = 5
	SignalPeerUpdateAck          SignalType = 6
	SignalPeerTermination        SignalType = 7
	SignalPeerTerminationAck     SignalType = 8
	SignalDestinationUp          SignalType = 9
	SignalDestinationUpAck       SignalType = 10
	SignalDestinationDown        SignalType = 11
	SignalDestinationDownAck     SignalType = 12
	SignalDestinationUpdate      SignalType = 13
	SignalHeartbeat              SignalType = 14
	SignalLinkCharRequest        SignalType = 15
	SignalLinkCharAck            SignalType = 16
)

//nolint:gochecknoglobals // Lookup table is intentionally package-level.
var signalNames = map[SignalType]string{
	AllSignals:                  "ALL_SIGNALS",
	SignalPeerDiscovery:         "PEER_DISCOVERY",
	SignalPeerOffer:             "PEER_OFFER",
	SignalPeerInitialization:    "PEER_INITIALIZATION",
	SignalPeerInitializationAck: "PEER_INITIALIZATION_ACK",
	SignalPeerUpdate:            "PEER_UPDATE",
	SignalPeerUpdateAck:         "PEER_UPDATE_ACK",
	SignalPeerTermination:       "PEER_TERMINATION",
	SignalPeerTerminationAck:    "PEER_TERMINATION_ACK",
	SignalDestinationUp:         "DESTINATION_UP",
	SignalDestinationUpAck:      "DESTINATION_UP_ACK",
	SignalDestinationDown:       "DESTINATION_DOWN",
	SignalDestinationDownAck:    "DESTINATION_DOWN_ACK",
	SignalDestinationUpdate:     "DESTINATION_UPDATE",
	SignalHeartbeat:             "HEARTBEAT",
	SignalLinkCharRequest:       "LINK_CHARACTERISTICS_REQUEST",
	SignalLinkCharAck:           "LINK_CHARACTERISTICS_ACK",
}

// String returns the human-readable signal name.
func (s SignalType) String() string {
	if n, ok := signalNames[s]; ok {
		return n
	}
	return "UNKNOWN_SIGNAL"
}

// -------------------------------------------------------------------------
// TLV type IDs — RFC 8175 Section 11.4 (IANA DLEP Data Items registry)
// -------------------------------------------------------------------------

// TLVType identifies a DLEP data item type.
type TLVType uint16

const (
	TLVStatus               TLVType = 1
	TLVIPv4Conpoint         TLVType = 2
	TLVIPv6Conpoint         TLVType = 3
	TLVPeerType             TLVType = 4
	TLVHeartbeatInterval    TLVType = 5
	TLVExtensionsSupported  TLVType = 6
	TLVMACAddress           TLVType = 7
	TLVIPv4Address          TLVType = 8
	TLVIPv6Address          TLVType = 9
	TLVIPv4AttachedSubnet   TLVType = 10
	TLVIPv6AttachedSubnet   TLVType = 11
	TLVMaxDataRateRx        TLVType = 12
	TLVMaxDataRateTx        TLVType = 13
	TLVCurrentDataRateRx    TLVType = 14
	TLVCurrentDataRateTx    TLVType = 15
	TLVLatency              TLVType = 16
	TLVResources            TLVType = 17
	TLVRelativeLinkQualityRx TLVType = 18
	TLVRelativeLinkQualityTx TLVType = 19
	TLVMaximumTransmissionUnit TLVType = 20
)

// StatusCode is the value carried inside a TLVStatus data item.
type StatusCode uint8

const (
	StatusSuccess                 StatusCode = 0
	StatusNotInterested           StatusCode = 1
	StatusRequestDenied           StatusCode = 2
	StatusInconsistentData        StatusCode = 3
	StatusUnknownMessage          StatusCode = 128
	StatusUnexpectedMessage       StatusCode = 129
	StatusInvalidData             StatusCode = 130
	StatusInvalidDestination      StatusCode = 131
	StatusTimedOutWithoutAck      StatusCode = 132
	StatusShuttingDown            StatusCode = 255
)
