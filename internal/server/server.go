// Package server implements the read-only HTTP introspection API for
// the godlep daemon: list sessions, inspect one session's
// destinations, and request a session's termination. Reloading or
// applying configuration changes is handled outside this package.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dantte-lp/godlep/internal/dlep"
)

// Sentinel errors for the server package.
var (
	// ErrSessionNotFound indicates no session matches the requested id.
	ErrSessionNotFound = errors.New("server: session not found")

	// errPanicRecovered is returned to the client when RecoveryMiddleware
	// catches a panic in a request handler.
	errPanicRecovered = errors.New("server: panic recovered in request handler")
)

// SessionInfo is the daemon-owned metadata a Session itself doesn't
// track (it is transport- and host-agnostic by design), kept
// alongside the *dlep.Session in the Registry.
type SessionInfo struct {
	ID        string
	Interface string
	PeerAddr  string
	Session   *dlep.Session
}

// Registry tracks every live DLEP session for introspection, indexed
// by an opaque id assigned at session creation (the daemon's TCP
// connection id). The daemon adds and removes entries; the API only
// lists and looks them up, and terminates a session through the
// Session's own Shutdown. Configuration apply is handled elsewhere.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*SessionInfo
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*SessionInfo)}
}

// Add registers a newly created session under id. Called by the
// daemon immediately after NewRadioSession/NewRouterSession.
func (r *Registry) Add(info *SessionInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[info.ID] = info
}

// Remove drops the session with id, called from the host's
// EndSessionFunc.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// List returns a snapshot of every tracked session.
func (r *Registry) List() []*SessionInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*SessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, info)
	}
	return out
}

// Get returns the session tracked under id.
func (r *Registry) Get(id string) (*SessionInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.sessions[id]
	return info, ok
}

// -------------------------------------------------------------------------
// Wire (JSON) views
// -------------------------------------------------------------------------

// sessionView is the JSON shape returned for one session.
type sessionView struct {
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

// destinationView is the JSON shape for one destination-table entry.
type destinationView struct {
	MAC         string `json:"mac"`
	State       string `json:"state"`
	WirelessMAC string `json:"wireless_mac,omitempty"`
	Proxied     bool   `json:"proxied"`
	ChangedFlag bool   `json:"changed_flag"`
}

func sessionToView(info *SessionInfo) sessionView {
	s := info.Session
	return sessionView{
		ID:                info.ID,
		Interface:         info.Interface,
		PeerAddr:          info.PeerAddr,
		Role:              s.Role().String(),
		RestrictSignal:    s.RestrictSignal().String(),
		RemotePeerType:    s.RemotePeerType(),
		HeartbeatMs:       s.LocalHeartbeatInterval().Milliseconds(),
		RemoteHeartbeatMs: s.RemoteHeartbeatInterval().Milliseconds(),
		ExtensionIDs:      s.ActiveExtensionIDs(),
		Terminated:        s.Terminated(),
	}
}

func destinationsToView(neighbors []dlep.LocalNeighbor) []destinationView {
	out := make([]destinationView, 0, len(neighbors))
	for _, n := range neighbors {
		dv := destinationView{
			MAC:         n.Addr.String(),
			State:       n.State.String(),
			Proxied:     n.Proxied,
			ChangedFlag: n.ChangedFlag,
		}
		if n.Proxied {
			dv.WirelessMAC = n.WirelessMAC.String()
		}
		out = append(out, dv)
	}
	return out
}

// -------------------------------------------------------------------------
// HTTP handlers
// -------------------------------------------------------------------------

// Handler serves the introspection API over plain JSON/HTTP. Generating
// protobuf/ConnectRPC stubs for this surface would require running
// buf/protoc, which this build forbids (see DESIGN.md, "Dropped
// dependencies"); a JSON API over net/http fills the same role with
// the same middleware shape.
type Handler struct {
	reg    *Registry
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Handler backed by reg and mounts its routes.
func New(reg *Registry, logger *slog.Logger) *Handler {
	h := &Handler{
		reg:    reg,
		logger: logger.With(slog.String("component", "server")),
		mux:    http.NewServeMux(),
	}
	h.mux.HandleFunc("GET /v1/sessions", h.handleListSessions)
	h.mux.HandleFunc("GET /v1/sessions/{id}", h.handleGetSession)
	h.mux.HandleFunc("GET /v1/sessions/{id}/destinations", h.handleListDestinations)
	h.mux.HandleFunc("POST /v1/sessions/{id}/terminate", h.handleTerminateSession)
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := h.reg.List()
	views := make([]sessionView, 0, len(infos))
	for _, info := range infos {
		views = append(views, sessionToView(info))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := h.reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrSessionNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, sessionToView(info))
}

func (h *Handler) handleListDestinations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := h.reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrSessionNotFound, id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"destinations": destinationsToView(info.Session.Destinations()),
	})
}

func (h *Handler) handleTerminateSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	info, ok := h.reg.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", ErrSessionNotFound, id))
		return
	}
	h.logger.InfoContext(r.Context(), "TerminateSession called", slog.String("id", id))
	info.Session.Shutdown()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// SessionIDFromConn builds a registry id for a new TCP connection.
// The id is "<interface>-<uuid>": a random suffix keeps it unique
// across the daemon's lifetime (the same generator internal/dlep uses
// for the wire-level l2_origin id) and, critically, free of the "/"
// that a raw remote address would introduce — the introspection API's
// GET/POST routes address a session through a single-path-segment
// {id} wildcard, so an id containing "/" would never route correctly.
// remoteAddr and now are unused by the id itself; they're kept so
// callers can still pass what they have on hand without restructuring
// their call sites, and remain available to future log lines here.
func SessionIDFromConn(iface, remoteAddr string, now time.Time) string {
	return iface + "-" + uuid.NewString()
}
