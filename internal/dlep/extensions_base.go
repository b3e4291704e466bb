package dlep

// baseTLVs is the TLV declaration set shared by the base-protocol
// extension in both roles.
//
// Length bounds and IDs follow RFC 8175 Section 11.4. IP-address data
// items are declared here for parsing only; nothing in this package
// acts on their contents or negotiates link characteristics from them.
func baseTLVs() []TLVDecl {
	return []TLVDecl{
		{Type: TLVStatus, Min: 1, Max: 255},
		{Type: TLVIPv4Conpoint, Min: 7, Max: 7, MandatoryIn: []SignalType{SignalPeerOffer}, MayRepeat: true},
		{Type: TLVIPv6Conpoint, Min: 19, Max: 19, MayRepeat: true},
		{Type: TLVPeerType, Min: 1, Max: 255},
		{
			Type: TLVHeartbeatInterval, Min: 2, Max: 2,
			MandatoryIn: []SignalType{SignalPeerInitialization, SignalPeerInitializationAck},
		},
		{Type: TLVExtensionsSupported, Min: 0, Max: 0xFFFF},
		{
			Type: TLVMACAddress, Min: 6, Max: 6,
			MandatoryIn: []SignalType{
				SignalDestinationUp, SignalDestinationUpAck,
				SignalDestinationDown, SignalDestinationDownAck,
				SignalDestinationUpdate,
			},
		},
		{Type: TLVIPv4Address, Min: 5, Max: 5, MayRepeat: true},
		{Type: TLVIPv6Address, Min: 17, Max: 17, MayRepeat: true},
		{Type: TLVIPv4AttachedSubnet, Min: 5, Max: 5, MayRepeat: true},
		{Type: TLVIPv6AttachedSubnet, Min: 17, Max: 17, MayRepeat: true},
		{Type: TLVMaxDataRateRx, Min: 8, Max: 8},
		{Type: TLVMaxDataRateTx, Min: 8, Max: 8},
		{Type: TLVCurrentDataRateRx, Min: 8, Max: 8},
		{Type: TLVCurrentDataRateTx, Min: 8, Max: 8},
		{Type: TLVLatency, Min: 4, Max: 4},
		{Type: TLVResources, Min: 1, Max: 1},
		{Type: TLVRelativeLinkQualityRx, Min: 1, Max: 1},
		{Type: TLVRelativeLinkQualityTx, Min: 1, Max: 1},
		{Type: TLVMaximumTransmissionUnit, Min: 2, Max: 2},
	}
}

// baseProtoRadio is the radio-role base-protocol extension. Its
// per-signal process callbacks delegate to Session methods that hold
// the actual state-machine logic; the extension layer's job is TLV
// ownership and dispatch registration, not protocol logic itself.
type baseProtoRadio struct{}

func (baseProtoRadio) ID() uint16     { return 0 }
func (baseProtoRadio) TLVs() []TLVDecl { return baseTLVs() }

func (baseProtoRadio) Handlers() map[SignalType]SignalHandler {
	return map[SignalType]SignalHandler{
		SignalPeerInitialization:    {Process: (*Session).processPeerInitializationRadio},
		SignalPeerInitializationAck: {Write: writePeerInitializationAck},
		SignalPeerUpdate:         {Process: (*Session).processPeerUpdate},
		SignalPeerUpdateAck:      {Process: (*Session).processPeerUpdateAck},
		SignalPeerTermination:    {Process: (*Session).processPeerTermination},
		SignalPeerTerminationAck: {Process: (*Session).processPeerTerminationAck},
		SignalDestinationUpAck:   {Process: (*Session).processDestinationUpAck},
		SignalDestinationDownAck: {Process: (*Session).processDestinationDownAck},

		SignalDestinationUp:     {Write: writeDestinationUp},
		SignalDestinationUpdate: {Write: writeDestinationUpdate},
		SignalDestinationDown:   {Write: writeDestinationDown},
		SignalHeartbeat:         {Process: (*Session).processHeartbeat, Write: writeHeartbeat},
	}
}

func (baseProtoRadio) Hooks() RoleHooks {
	return RoleHooks{InitRadio: (*Session).initRadioBase, CleanupRadio: (*Session).cleanupRadioBase}
}

// baseProtoRouter is the router-role base-protocol extension.
type baseProtoRouter struct{}

func (baseProtoRouter) ID() uint16      { return 0 }
func (baseProtoRouter) TLVs() []TLVDecl { return baseTLVs() }

func (baseProtoRouter) Handlers() map[SignalType]SignalHandler {
	return map[SignalType]SignalHandler{
		SignalPeerOffer:             {Process: (*Session).processPeerOffer},
		SignalPeerInitializationAck: {Process: (*Session).processPeerInitializationAckRouter},
		SignalPeerUpdate:            {Process: (*Session).processPeerUpdate},
		SignalPeerUpdateAck:         {Process: (*Session).processPeerUpdateAck},
		SignalPeerTermination:       {Process: (*Session).processPeerTermination},
		SignalPeerTerminationAck:    {Process: (*Session).processPeerTerminationAck},
		SignalHeartbeat:             {Process: (*Session).processHeartbeat, Write: writeHeartbeat},
		SignalDestinationUp:         {Process: (*Session).processDestinationUpRouter},
		SignalDestinationUpAck:      {Write: writeDestinationUpAck},
		SignalDestinationUpdate:     {Process: (*Session).processDestinationUpdateRouter},
		SignalDestinationDown:       {Process: (*Session).processDestinationDownRouter},
		SignalDestinationDownAck:    {Write: writeDestinationDownAck},
		SignalPeerDiscovery:         {Write: writePeerDiscovery},
		SignalPeerInitialization:    {Write: writePeerInitializationRouter},
	}
}

func (baseProtoRouter) Hooks() RoleHooks {
	return RoleHooks{InitRouter: (*Session).initRouterBase, CleanupRouter: (*Session).cleanupRouterBase}
}
