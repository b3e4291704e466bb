package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// errAPIRequest wraps a non-2xx response from the daemon's introspection API.
var errAPIRequest = errors.New("dlepctl: request failed")

// sessionView mirrors the JSON shape served by internal/server for one session.
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

// destinationView mirrors the JSON shape for one destination-table entry.
type destinationView struct {
	MAC         string `json:"mac"`
	State       string `json:"state"`
	WirelessMAC string `json:"wireless_mac,omitempty"`
	Proxied     bool   `json:"proxied"`
	ChangedFlag bool   `json:"changed_flag"`
}

func apiGet(path string, out any) error {
	resp, err := httpClient.Get(baseURL() + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeAPIResponse(resp, out)
}

func apiPost(path string) error {
	resp, err := httpClient.Post(baseURL()+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	return decodeAPIResponse(resp, nil)
}

func decodeAPIResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	body, _ := io.ReadAll(resp.Body)
	var errBody struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &errBody) == nil && errBody.Error != "" {
		return fmt.Errorf("%w: %s: %s", errAPIRequest, resp.Status, errBody.Error)
	}
	return fmt.Errorf("%w: %s", errAPIRequest, resp.Status)
}

func listSessions() ([]sessionView, error) {
	var body struct {
		Sessions []sessionView `json:"sessions"`
	}
	if err := apiGet("/v1/sessions", &body); err != nil {
		return nil, err
	}
	return body.Sessions, nil
}

func getSession(id string) (sessionView, error) {
	var s sessionView
	err := apiGet("/v1/sessions/"+id, &s)
	return s, err
}

func listDestinations(id string) ([]destinationView, error) {
	var body struct {
		Destinations []destinationView `json:"destinations"`
	}
	if err := apiGet("/v1/sessions/"+id+"/destinations", &body); err != nil {
		return nil, err
	}
	return body.Destinations, nil
}

func terminateSession(id string) error {
	return apiPost("/v1/sessions/" + id + "/terminate")
}
