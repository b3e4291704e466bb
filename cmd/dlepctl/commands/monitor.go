package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func monitorCmd() *cobra.Command {
	var (
		includeCurrent bool
		interval       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll the daemon and print DLEP session changes",
		Long: "Repeatedly polls the godlep daemon's session list and prints additions, removals, " +
			"and restrict_signal transitions until interrupted (Ctrl+C). The introspection API has " +
			"no streaming endpoint, so this polls on --interval instead of subscribing to a feed.",
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			prev := make(map[string]sessionView)
			first := true

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				sessions, err := listSessions()
				if err != nil {
					return fmt.Errorf("list sessions: %w", err)
				}

				cur := make(map[string]sessionView, len(sessions))
				for _, s := range sessions {
					cur[s.ID] = s
				}

				emitMonitorEvents(prev, cur, first && includeCurrent)
				prev = cur
				first = false

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().BoolVar(&includeCurrent, "current", false,
		"print every session already present on the first poll")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second,
		"polling interval")

	return cmd
}

func emitMonitorEvents(prev, cur map[string]sessionView, printExisting bool) {
	for id, s := range cur {
		old, existed := prev[id]
		switch {
		case !existed && printExisting:
			fmt.Printf("[%s] session_added  id=%s peer=%s restrict_signal=%s\n",
				time.Now().Format(time.RFC3339), id, s.PeerAddr, s.RestrictSignal)
		case existed && old.RestrictSignal != s.RestrictSignal:
			fmt.Printf("[%s] state_change    id=%s peer=%s %s -> %s\n",
				time.Now().Format(time.RFC3339), id, s.PeerAddr, old.RestrictSignal, s.RestrictSignal)
		}
	}

	for id, old := range prev {
		if _, stillPresent := cur[id]; !stillPresent {
			fmt.Printf("[%s] session_removed id=%s peer=%s\n",
				time.Now().Format(time.RFC3339), id, old.PeerAddr)
		}
	}
}
