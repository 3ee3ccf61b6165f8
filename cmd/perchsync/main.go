// Package main provides the CLI entry point for the perch-sync client
// runtime.
//
// perch-sync keeps a local entity cache in step with a Perch server
// over its websocket push channel: it decodes live events, merges
// snapshots, tracks presence, and survives reconnects and token
// refreshes without user intervention.
//
// # Basic Usage
//
// Connect and sync:
//
//	perchsync run --config perch.yaml
//
// Watch the decoded event stream:
//
//	perchsync tail
//
// Watch who is present on a topic:
//
//	perchsync presence group:general
//
// # Environment Variables
//
//   - PERCH_CONFIG: Path to configuration file (default: perch.yaml)
//   - PERCH_TOKEN: Session token, expanded inside the config file
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// This is separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "perchsync",
		Short: "Perch client sync runtime",
		Long: `perchsync mirrors a Perch server's live state into a local entity
cache: events arrive over the websocket push channel, snapshots merge
last-write-wins, and the session survives reconnects and token refreshes.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(),
		"Path to YAML or JSON5 configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level override: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Log format override: json or text")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildTailCmd(),
		buildPresenceCmd(),
		buildWhoamiCmd(),
		buildTokenCmd(),
	)

	return rootCmd
}

func defaultConfigPath() string {
	if path := os.Getenv("PERCH_CONFIG"); path != "" {
		return path
	}
	return "perch.yaml"
}
