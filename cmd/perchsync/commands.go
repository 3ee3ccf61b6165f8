// commands.go contains all cobra command definitions and their flag
// configurations. Each command builder wires a command to its handler.
package main

import (
	"github.com/spf13/cobra"
)

// buildRunCmd creates the "run" command that connects and syncs.
// This is the primary command for running perchsync.
func buildRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the server and keep the local cache in sync",
		Long: `Connect to the configured Perch server and run the sync loop.

The runtime will:
1. Load configuration from the specified file (or perch.yaml)
2. Resume the persisted session, or authenticate with the configured token
3. Open the websocket push channel and join the protocol
4. Merge every incoming event into the entity cache
5. Reconnect with bounded backoff on transport drops

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Run with default config
  perchsync run

  # Run with a custom config
  perchsync run --config /etc/perch/production.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context())
		},
	}
	return cmd
}

// buildTailCmd creates the "tail" command that prints decoded events.
func buildTailCmd() *cobra.Command {
	var rawOutput bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print decoded live events to stdout",
		Example: `  # Human-readable event lines
  perchsync tail

  # One JSON object per event
  perchsync tail --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd.Context(), rawOutput)
		},
	}

	cmd.Flags().BoolVar(&rawOutput, "json", false, "Print one JSON object per event")
	return cmd
}

// buildPresenceCmd creates the "presence" command.
func buildPresenceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presence <topic>",
		Short: "Track and print who is present on a topic",
		Args:  cobra.ExactArgs(1),
		Example: `  perchsync presence group:general
  perchsync presence space:engineering`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPresence(cmd.Context(), args[0])
		},
	}
	return cmd
}

// buildWhoamiCmd creates the "whoami" command.
func buildWhoamiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the authenticated user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhoami(cmd.Context())
		},
	}
	return cmd
}

// buildTokenCmd creates the "token" command group.
func buildTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the session token",
	}

	refreshCmd := &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the current token for a fresh one",
		Long: `Refresh the session token against the configured refresh endpoint and
persist the replacement. The new token is printed to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenRefresh(cmd.Context())
		},
	}

	cmd.AddCommand(refreshCmd)
	return cmd
}
