//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dantte-lp/godlep/internal/dlep"
	"github.com/dantte-lp/godlep/internal/server"
)

// establishedPair dials a real TCP loopback connection, runs a radio
// and router session over it to ALL_SIGNALS, and returns both along
// with the radio side's local address. Their pump goroutines are torn
// down through t.Cleanup.
func establishedPair(t *testing.T) (radio, router *dlep.Session, radioAddr string) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { dialed.Close() })

	var radioConn net.Conn
	select {
	case radioConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the loopback accept")
	}
	t.Cleanup(func() { radioConn.Close() })

	cfg := dlep.Config{HeartbeatInterval: 5 * time.Second, DiscoveryInterval: time.Hour, SendNeighbors: true}

	radio = dlep.NewRadioSession(cfg,
		func(b []byte) error { _, err := radioConn.Write(b); return err },
		nil, func(*dlep.Session, dlep.TerminationReason, error) {}, logger)
	router = dlep.NewRouterSession(cfg,
		func(b []byte) error { _, err := dialed.Write(b); return err },
		nil, func(*dlep.Session, dlep.TerminationReason, error) {}, logger)

	if err := router.TransitionAfterConnect(); err != nil {
		t.Fatalf("TransitionAfterConnect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go pumpSession(ctx, radioConn, radio)
	go pumpSession(ctx, dialed, router)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if radio.RestrictSignal() == dlep.AllSignals && router.RestrictSignal() == dlep.AllSignals {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if radio.RestrictSignal() != dlep.AllSignals {
		t.Fatalf("radio never reached ALL_SIGNALS: restrict_signal = %v", radio.RestrictSignal())
	}

	return radio, router, radioConn.LocalAddr().String()
}

func newIntegrationServer(t *testing.T) (*server.Registry, *httptest.Server) {
	t.Helper()
	reg := server.NewRegistry()
	h := server.New(reg, slog.New(slog.DiscardHandler))
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return reg, srv
}

// TestServerSessionLifecycleOverRealTCP drives the introspection HTTP
// API against a session pair connected over a real loopback TCP
// socket (as opposed to internal/server's own unit tests, which wire
// sessions through an in-memory function pipe): list, get,
// destinations, and terminate, checking that the terminate call ends
// the session.
func TestServerSessionLifecycleOverRealTCP(t *testing.T) {
	radio, _, peerAddr := establishedPair(t)
	reg, srv := newIntegrationServer(t)

	// No "/" in id: the introspection API's GET/POST routes use a
	// single-path-segment {id} wildcard (net/http's enhanced ServeMux).
	const id = "session-1"
	reg.Add(&server.SessionInfo{ID: id, Interface: "wlan0", PeerAddr: peerAddr, Session: radio})

	resp, err := http.Get(srv.URL + "/v1/sessions")
	if err != nil {
		t.Fatalf("GET /v1/sessions: %v", err)
	}
	var listBody struct {
		Sessions []struct {
			ID             string `json:"id"`
			Role           string `json:"role"`
			RestrictSignal string `json:"restrict_signal"`
		} `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listBody); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(listBody.Sessions) != 1 || listBody.Sessions[0].ID != id {
		t.Fatalf("list = %+v, want one session with id %q", listBody.Sessions, id)
	}
	if listBody.Sessions[0].RestrictSignal != "ALL_SIGNALS" {
		t.Errorf("restrict_signal = %q, want ALL_SIGNALS", listBody.Sessions[0].RestrictSignal)
	}

	getResp, err := http.Get(srv.URL + "/v1/sessions/" + id)
	if err != nil {
		t.Fatalf("GET /v1/sessions/%s: %v", id, err)
	}
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", getResp.StatusCode)
	}
	getResp.Body.Close()

	destResp, err := http.Get(srv.URL + "/v1/sessions/" + id + "/destinations")
	if err != nil {
		t.Fatalf("GET destinations: %v", err)
	}
	var destBody struct {
		Destinations []any `json:"destinations"`
	}
	if err := json.NewDecoder(destResp.Body).Decode(&destBody); err != nil {
		t.Fatalf("decode destinations: %v", err)
	}
	destResp.Body.Close()
	if len(destBody.Destinations) != 0 {
		t.Fatalf("destinations = %+v, want none (no L2 neighbors were added)", destBody.Destinations)
	}

	termReq, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/sessions/"+id+"/terminate", nil)
	termResp, err := http.DefaultClient.Do(termReq)
	if err != nil {
		t.Fatalf("POST terminate: %v", err)
	}
	termResp.Body.Close()
	if termResp.StatusCode != http.StatusNoContent {
		t.Fatalf("terminate status = %d, want 204", termResp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !radio.Terminated() {
		time.Sleep(5 * time.Millisecond)
	}
	if !radio.Terminated() {
		t.Fatal("session was not terminated after the API call")
	}
}

func TestServerUnknownSessionReturns404(t *testing.T) {
	_, srv := newIntegrationServer(t)

	for _, path := range []string{"/v1/sessions/nope", "/v1/sessions/nope/destinations"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}
