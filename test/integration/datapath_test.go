//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/dantte-lp/godlep/internal/dlep"
)

// pumpSession drives one Session's socket half and timer channel,
// the same loop shape cmd/dlepd's runSession uses in production:
// inbound bytes feed HandleInboundBytes, fired timers feed
// HandleTimerEvent, both funneled through one goroutine per session
// so the session never sees concurrent calls into itself.
func pumpSession(ctx context.Context, conn net.Conn, sess *dlep.Session) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 0, 4096)
		chunk := make([]byte, 4096)
		for {
			n, err := conn.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
				consumed, herr := sess.HandleInboundBytes(buf)
				buf = buf[consumed:]
				if herr != nil {
					return
				}
			}
			if err != nil {
				if !sess.Terminated() {
					sess.Shutdown()
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			sess.Shutdown()
			conn.Close()
			<-done
			return
		case <-done:
			return
		case ev, ok := <-sess.Events():
			if !ok {
				return
			}
			sess.HandleTimerEvent(ev)
		}
	}
}

// TestDatapathHandshakeAndDestinationLifecycle drives a radio/router
// session pair over a real net.Conn (not the direct function-call
// wiring internal/dlep's own unit tests use), each pumped by its own
// goroutine pair exactly as cmd/dlepd's engine does. It covers the
// full discovery-less happy path: TCP connect, PEER_INITIALIZATION
// exchange, a destination reaching UP_ACKED on both sides, and a
// clean DESTINATION_DOWN/DOWN_ACK removal.
func TestDatapathHandshakeAndDestinationLifecycle(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		logger := slog.New(slog.DiscardHandler)

		radioConn, routerConn := net.Pipe()
		t.Cleanup(func() { radioConn.Close(); routerConn.Close() })

		l2 := dlep.NewMemoryL2Table()
		sink := dlep.NewMemoryL2Table()

		cfg := dlep.Config{HeartbeatInterval: time.Second, DiscoveryInterval: time.Hour, SendNeighbors: true}

		var radio, router *dlep.Session
		radio = dlep.NewRadioSession(cfg,
			func(b []byte) error { _, err := radioConn.Write(b); return err },
			l2, func(_ *dlep.Session, _ dlep.TerminationReason, _ error) {}, logger)
		router = dlep.NewRouterSession(cfg,
			func(b []byte) error { _, err := routerConn.Write(b); return err },
			sink, func(_ *dlep.Session, _ dlep.TerminationReason, _ error) {}, logger)

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go pumpSession(ctx, radioConn, radio)
		go pumpSession(ctx, routerConn, router)

		// net.Pipe is unbuffered: the pumps must be reading before the
		// first write, or it blocks forever.
		if err := router.TransitionAfterConnect(); err != nil {
			t.Fatalf("TransitionAfterConnect: %v", err)
		}

		synctest.Wait()

		if radio.RestrictSignal() != dlep.AllSignals {
			t.Fatalf("radio restrict_signal = %v, want ALL_SIGNALS", radio.RestrictSignal())
		}
		if router.RestrictSignal() != dlep.AllSignals {
			t.Fatalf("router restrict_signal = %v, want ALL_SIGNALS", router.RestrictSignal())
		}

		mac := dlep.MACAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
		l2.Add(dlep.L2Neighbor{MAC: mac})
		synctest.Wait()

		if _, ok := sink.Get(mac); !ok {
			t.Fatal("router's L2 sink never saw the mirrored destination")
		}
		dests := radio.Destinations()
		if len(dests) != 1 || dests[0].State != dlep.DestUpAcked {
			t.Fatalf("radio destination table = %+v, want one entry in UP_ACKED", dests)
		}

		l2.Delete(mac)
		synctest.Wait()

		if _, ok := sink.Get(mac); ok {
			t.Fatal("router's L2 sink still has the destination after DOWN_ACK")
		}
		if len(radio.Destinations()) != 0 {
			t.Fatalf("radio destination table not empty after DOWN_ACK: %+v", radio.Destinations())
		}
	})
}

// TestDatapathHeartbeatTimeout verifies that once a fully-established
// session pair goes silent in both directions (no further HEARTBEATs,
// the transport itself stays open), each side's remote heartbeat
// watchdog independently detects the loss and terminates with no
// termination handshake attempted.
func TestDatapathHeartbeatTimeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		logger := slog.New(slog.DiscardHandler)

		radioConn, routerConn := net.Pipe()
		t.Cleanup(func() { radioConn.Close(); routerConn.Close() })

		cfg := dlep.Config{HeartbeatInterval: time.Second, DiscoveryInterval: time.Hour}

		var goneSilent atomic.Bool

		var radioEnded, routerEnded atomic.Bool
		var radioReason, routerReason atomic.Value

		var radio, router *dlep.Session
		radio = dlep.NewRadioSession(cfg,
			func(b []byte) error {
				if goneSilent.Load() {
					return nil // simulate the peer going silent without dropping TCP
				}
				_, err := radioConn.Write(b)
				return err
			},
			nil,
			func(_ *dlep.Session, r dlep.TerminationReason, _ error) { radioEnded.Store(true); radioReason.Store(r) },
			logger)
		router = dlep.NewRouterSession(cfg,
			func(b []byte) error {
				if goneSilent.Load() {
					return nil
				}
				_, err := routerConn.Write(b)
				return err
			},
			nil,
			func(_ *dlep.Session, r dlep.TerminationReason, _ error) { routerEnded.Store(true); routerReason.Store(r) },
			logger)

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)
		go pumpSession(ctx, radioConn, radio)
		go pumpSession(ctx, routerConn, router)

		// As above: start the pumps before the first write on the pipe.
		if err := router.TransitionAfterConnect(); err != nil {
			t.Fatalf("TransitionAfterConnect: %v", err)
		}

		synctest.Wait()
		if radio.RestrictSignal() != dlep.AllSignals || router.RestrictSignal() != dlep.AllSignals {
			t.Fatal("handshake did not complete before the silence window started")
		}

		goneSilent.Store(true)

		// 2x the negotiated 1s heartbeat interval, plus slack for the
		// local emit tick and goroutine scheduling.
		time.Sleep(3 * time.Second)
		synctest.Wait()

		if !radioEnded.Load() || !radio.Terminated() {
			t.Fatal("expected the radio session to terminate on heartbeat timeout")
		}
		if r := radioReason.Load(); r != dlep.ReasonHeartbeatTimeout {
			t.Fatalf("radio reason = %v, want ReasonHeartbeatTimeout", r)
		}
		if !routerEnded.Load() || !router.Terminated() {
			t.Fatal("expected the router session to terminate on heartbeat timeout")
		}
		if r := routerReason.Load(); r != dlep.ReasonHeartbeatTimeout {
			t.Fatalf("router reason = %v, want ReasonHeartbeatTimeout", r)
		}
	})
}
