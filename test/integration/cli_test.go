//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dantte-lp/godlep/internal/server"
)

// cliSessionView mirrors the JSON shape cmd/dlepctl/commands decodes
// from the introspection API (that package is unexported, so this
// test reconstructs its wire contract rather than importing it).
type cliSessionView struct {
	ID                string   `json:"id"`
	Interface         string   `json:"interface"`
	PeerAddr          string   `json:"peer_addr"`
	Role              string   `json:"role"`
	RestrictSignal    string   `json:"restrict_signal"`
	RemotePeerType    string   `json:"remote_peer_type,omitempty"`
	HeartbeatMs       int64    `json:"local_heartbeat_ms"`
	RemoteHeartbeatMs int64    `json:"remote_heartbeat_ms"`
	ExtensionIDs      []uint16 `json:"extension_ids"`
	Terminated        bool     `json:"terminated"`
}

// cliGet is the in-process equivalent of dlepctl's apiGet: fetch path
// from srv and decode it as the requested shape.
func cliGet[T any](t *testing.T, baseURL, path string) T {
	t.Helper()
	var out T
	resp, err := http.Get(baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return out
}

// TestCLISessionListShowDestinationsTerminate exercises the same
// request sequence dlepctl's "session list/show/destinations/
// terminate" subcommands issue, end to end against a real introspection
// server fronting sessions that completed a live handshake.
func TestCLISessionListShowDestinationsTerminate(t *testing.T) {
	radioA, _, peerA := establishedPair(t)
	radioB, _, peerB := establishedPair(t)
	reg, srv := newIntegrationServer(t)

	// IDs deliberately contain no "/": the introspection API's
	// GET/POST routes use a single-path-segment {id} wildcard
	// (net/http's enhanced ServeMux), so an id with a slash would not
	// route correctly here. The daemon's own SessionIDFromConn ids
	// ("<interface>-<uuid>") contain none either.
	reg.Add(&server.SessionInfo{ID: "sess-a", Interface: "wlan0", PeerAddr: peerA, Session: radioA})
	reg.Add(&server.SessionInfo{ID: "sess-b", Interface: "wlan1", PeerAddr: peerB, Session: radioB})

	list := cliGet[struct {
		Sessions []cliSessionView `json:"sessions"`
	}](t, srv.URL, "/v1/sessions")
	if len(list.Sessions) != 2 {
		t.Fatalf("session list count = %d, want 2", len(list.Sessions))
	}

	seen := make(map[string]bool, 2)
	for _, s := range list.Sessions {
		seen[s.ID] = true
		if s.Role != "radio" {
			t.Errorf("session %s role = %q, want radio", s.ID, s.Role)
		}
		if s.RestrictSignal != "ALL_SIGNALS" {
			t.Errorf("session %s restrict_signal = %q, want ALL_SIGNALS", s.ID, s.RestrictSignal)
		}
	}
	if !seen["sess-a"] || !seen["sess-b"] {
		t.Fatalf("session list missing an expected id: %+v", list.Sessions)
	}

	show := cliGet[cliSessionView](t, srv.URL, "/v1/sessions/sess-a")
	if show.Interface != "wlan0" {
		t.Errorf("session show interface = %q, want wlan0", show.Interface)
	}
	if show.HeartbeatMs != 5000 {
		t.Errorf("session show local_heartbeat_ms = %d, want 5000", show.HeartbeatMs)
	}

	dests := cliGet[struct {
		Destinations []any `json:"destinations"`
	}](t, srv.URL, "/v1/sessions/sess-a/destinations")
	if len(dests.Destinations) != 0 {
		t.Fatalf("destinations = %+v, want none yet", dests.Destinations)
	}

	termReq, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/sessions/sess-a/terminate", nil)
	termResp, err := http.DefaultClient.Do(termReq)
	if err != nil {
		t.Fatalf("terminate: %v", err)
	}
	termResp.Body.Close()
	if termResp.StatusCode != http.StatusNoContent {
		t.Fatalf("terminate status = %d, want 204", termResp.StatusCode)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !radioA.Terminated() {
		time.Sleep(5 * time.Millisecond)
	}
	if !radioA.Terminated() {
		t.Fatal("sess-a was not terminated by the CLI's terminate call")
	}
	if radioB.Terminated() {
		t.Fatal("terminating sess-a must not affect sess-b")
	}
}

// TestCLIShowNotFound verifies the error surface dlepctl's "session
// show" gets when the id argument doesn't match any live session: a
// 404 with a "not found" substring in the JSON error text.
func TestCLIShowNotFound(t *testing.T) {
	_, srv := newIntegrationServer(t)

	resp, err := http.Get(srv.URL + "/v1/sessions/does-not-exist")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	var errBody struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errBody); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if !strings.Contains(errBody.Error, "not found") {
		t.Errorf("error = %q, want to contain %q", errBody.Error, "not found")
	}
}

// TestCLITerminateUnknownSession verifies that requesting termination
// of an id with no live session returns 404 rather than a panic or a
// silent no-op.
func TestCLITerminateUnknownSession(t *testing.T) {
	_, srv := newIntegrationServer(t)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/sessions/does-not-exist/terminate", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST terminate: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
