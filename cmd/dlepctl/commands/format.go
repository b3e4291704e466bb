package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// formatSessions renders a slice of DLEP sessions in the requested format.
func formatSessions(sessions []sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(sessions)
	case formatTable:
		return formatSessionsTable(sessions), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatSession renders a single DLEP session in the requested format.
func formatSession(session sessionView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(session)
	case formatTable:
		return formatSessionDetail(session), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatDestinations renders a session's destination table in the requested format.
func formatDestinations(dests []destinationView, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatJSONValue(dests)
	case formatTable:
		return formatDestinationsTable(dests), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

func formatJSONValue(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// --- Table formatters ---

func formatSessionsTable(sessions []sessionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINTERFACE\tPEER\tROLE\tSTATE\tEXTENSIONS")

	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			s.ID, s.Interface, s.PeerAddr, s.Role, s.RestrictSignal, len(s.ExtensionIDs))
	}

	w.Flush()

	return buf.String()
}

func formatSessionDetail(s sessionView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "ID:\t%s\n", s.ID)
	fmt.Fprintf(w, "Interface:\t%s\n", s.Interface)
	fmt.Fprintf(w, "Peer Address:\t%s\n", s.PeerAddr)
	fmt.Fprintf(w, "Role:\t%s\n", s.Role)
	fmt.Fprintf(w, "Restrict Signal:\t%s\n", s.RestrictSignal)
	if s.RemotePeerType != "" {
		fmt.Fprintf(w, "Remote Peer Type:\t%s\n", s.RemotePeerType)
	}
	fmt.Fprintf(w, "Local Heartbeat:\t%dms\n", s.HeartbeatMs)
	fmt.Fprintf(w, "Remote Heartbeat:\t%dms\n", s.RemoteHeartbeatMs)
	fmt.Fprintf(w, "Extensions:\t%v\n", s.ExtensionIDs)
	fmt.Fprintf(w, "Terminated:\t%t\n", s.Terminated)

	w.Flush()

	return buf.String()
}

func formatDestinationsTable(dests []destinationView) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MAC\tSTATE\tPROXIED\tWIRELESS-MAC\tCHANGED")

	for _, d := range dests {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%t\n",
			d.MAC, d.State, d.Proxied, d.WirelessMAC, d.ChangedFlag)
	}

	w.Flush()

	return buf.String()
}
