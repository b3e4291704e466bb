package dlep

import "time"

// timer is a single one-shot/resettable timer abstraction; every timer
// family a session needs (heartbeat, watchdog, discovery, per-
// destination ack) is an instance of this one type.
//
// Firing happens on its own goroutine (time.AfterFunc), but the fire
// callback's only job is to push one event onto the session's single
// event channel — so from the session's point of view, all timer
// fires, socket reads, and layer-2 notifications serialize through one
// consumer, preserving a cooperative single-threaded processing model
// even though the runtime is multi-goroutine.
type timer struct {
	t      *time.Timer
	stopped bool
}

// newTimer arms a one-shot timer that invokes fire after d elapses.
// fire must not block and must only enqueue work.
func newTimer(d time.Duration, fire func()) *timer {
	return &timer{t: time.AfterFunc(d, fire)}
}

// reset re-arms the timer for another d, as if freshly created.
func (tm *timer) reset(d time.Duration) {
	if tm == nil || tm.t == nil {
		return
	}
	tm.t.Reset(d)
	tm.stopped = false
}

// stop disarms the timer. Safe to call more than once.
func (tm *timer) stop() {
	if tm == nil || tm.t == nil || tm.stopped {
		return
	}
	tm.t.Stop()
	tm.stopped = true
}

// timerKind distinguishes a session's four timer families.
type timerKind uint8

const (
	timerLocalHeartbeat timerKind = iota
	timerRemoteWatchdog
	timerDiscovery
	timerDestinationAck
)

// timerEvent is what a fired timer enqueues onto the session's event
// channel, so timer callbacks run in the same execution context as
// signal processing.
type timerEvent struct {
	kind timerKind
	mac  MACAddr // only meaningful for timerDestinationAck
	seq  uint64  // generation guard, see Session.armDestinationAck
}
