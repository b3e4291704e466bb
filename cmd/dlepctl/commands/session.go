package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage DLEP sessions",
	}

	cmd.AddCommand(sessionListCmd())
	cmd.AddCommand(sessionShowCmd())
	cmd.AddCommand(sessionDestinationsCmd())
	cmd.AddCommand(sessionTerminateCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all DLEP sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sessions, err := listSessions()
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session show ---

func sessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show details of one DLEP session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			session, err := getSession(args[0])
			if err != nil {
				return fmt.Errorf("get session: %w", err)
			}

			out, err := formatSession(session, outputFormat)
			if err != nil {
				return fmt.Errorf("format session: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session destinations ---

func sessionDestinationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "destinations <id>",
		Short: "List the destination (neighbor) table of one DLEP session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dests, err := listDestinations(args[0])
			if err != nil {
				return fmt.Errorf("list destinations: %w", err)
			}

			out, err := formatDestinations(dests, outputFormat)
			if err != nil {
				return fmt.Errorf("format destinations: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// --- session terminate ---

func sessionTerminateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terminate <id>",
		Short: "Request termination of one DLEP session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if err := terminateSession(args[0]); err != nil {
				return fmt.Errorf("terminate session: %w", err)
			}

			fmt.Printf("Session %s termination requested.\n", args[0])

			return nil
		},
	}
}
