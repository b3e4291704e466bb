package dlep

import (
	"slices"
	"testing"
	"time"
)

// TestDestTransitionTable exercises every edge of the destination
// sub-state-machine transition table.
func TestDestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		state   DestState
		event   destEvent
		want    DestState
		actions []destAction
	}{
		{"Idle+Added->UpSent", DestIdle, eventL2Added, DestUpSent, []destAction{actionSendUp, actionArmTimer}},
		{"UpSent+RecvUpAck->UpAcked", DestUpSent, eventRecvUpAck, DestUpAcked, []destAction{actionDisarmTimer}},
		{"UpSent+AckTimeout->Idle(removed)", DestUpSent, eventAckTimeout, DestIdle, []destAction{actionRemove}},
		{"UpSent+Changed stays UpSent, no action", DestUpSent, eventL2Changed, DestUpSent, nil},
		{"UpAcked+Changed->UpAcked emits update", DestUpAcked, eventL2Changed, DestUpAcked, []destAction{actionSendUpdate}},
		{"UpAcked+Removed->DownSent", DestUpAcked, eventL2Removed, DestDownSent, []destAction{actionSendDown, actionArmTimer}},
		{"DownSent+RecvDownAck->DownAcked(removed)", DestDownSent, eventRecvDownAck, DestDownAcked, []destAction{actionDisarmTimer, actionRemove}},
		{"DownSent+AckTimeout->Idle(removed)", DestDownSent, eventAckTimeout, DestIdle, []destAction{actionRemove}},
		{"DownSent+Added reenters UpSent fresh timer", DestDownSent, eventL2Added, DestUpSent, []destAction{actionDisarmTimer, actionSendUp, actionArmTimer}},
		{"DownAcked+Added->UpSent", DestDownAcked, eventL2Added, DestUpSent, []destAction{actionSendUp, actionArmTimer}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, actions := destTransition(tt.state, tt.event)
			if got != tt.want {
				t.Errorf("state = %v, want %v", got, tt.want)
			}
			if !slices.Equal(actions, tt.actions) {
				t.Errorf("actions = %v, want %v", actions, tt.actions)
			}
		})
	}
}

// TestDestinationTableInvariant checks that for every local neighbor
// entry, state = UP_SENT or DOWN_SENT implies its ack timer is armed.
func TestDestinationTableInvariant(t *testing.T) {
	armed := map[MACAddr]bool{}
	table := newDestinationTable(time.Second, func(mac MACAddr, _ time.Duration) {
		armed[mac] = true
	}, func(mac MACAddr) {
		armed[mac] = false
	})

	mac := MACAddr{1, 2, 3, 4, 5, 6}
	table.apply(mac, eventL2Added)
	n, ok := table.get(mac)
	if !ok || n.State != DestUpSent {
		t.Fatalf("expected UP_SENT after added, got %+v", n)
	}
	if !armed[mac] {
		t.Fatalf("invariant violated: UP_SENT without an armed ack timer")
	}

	table.apply(mac, eventRecvUpAck)
	n, _ = table.get(mac)
	if n.State != DestUpAcked {
		t.Fatalf("expected UP_ACKED, got %v", n.State)
	}
	if armed[mac] {
		t.Fatalf("ack timer should have been disarmed on UP_ACK")
	}
}

// TestDestinationTableChangedFlagDeferredUpdate checks that a change
// while UP_SENT sets changed_flag with no signal; only on UP_ACK does
// the caller (Session) emit a single DESTINATION_UPDATE.
func TestDestinationTableChangedFlagDeferredUpdate(t *testing.T) {
	table := newDestinationTable(time.Second, func(MACAddr, time.Duration) {}, func(MACAddr) {})
	mac := MACAddr{9, 9, 9, 9, 9, 9}
	table.apply(mac, eventL2Added)
	_, actions := table.apply(mac, eventL2Changed)
	if len(actions) != 0 {
		t.Fatalf("expected no actions for a change while UP_SENT, got %v", actions)
	}
	n, _ := table.get(mac)
	if !n.ChangedFlag {
		t.Fatalf("expected changed_flag to be set")
	}

	table.apply(mac, eventRecvUpAck)
	n, _ = table.get(mac)
	if n.ChangedFlag {
		t.Fatalf("expected changed_flag to reset once acked")
	}
}

// TestDestinationUnknownMACDownIsNoOp checks that an L2 removal for a
// MAC the table has never tracked is a no-op, not an error, and calls
// for no DESTINATION_DOWN: apply() creates an IDLE
// entry on first need, and destTransition(Idle, eventL2Removed) has no
// matching case, so state and actions are both unchanged.
func TestDestinationUnknownMACDownIsNoOp(t *testing.T) {
	table := newDestinationTable(time.Second, func(MACAddr, time.Duration) {}, func(MACAddr) {})
	mac := MACAddr{1, 1, 1, 1, 1, 1}
	state, actions := table.apply(mac, eventL2Removed)
	if state != DestIdle || len(actions) != 0 {
		t.Fatalf("expected a no-op for an L2 removal of an unknown MAC, got state=%v actions=%v", state, actions)
	}
}
