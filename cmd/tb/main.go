// tb is the teamboard CLI: a sync server and terminal client for shared
// project boards.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teamboard/teamboard/internal/config"
	"github.com/teamboard/teamboard/internal/ui"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Shared project boards with real-time sync",
	Long: `tb keeps project boards, todos, assignees, and memos in sync across a team.

A server holds the authoritative state in a local SQLite database and fans
every change out to all connected clients over WebSocket. Clients keep a live
mirror and reconnect automatically when the server comes back.

Start a server:
  tb serve --port 8080 --password secret

Follow a board from another terminal:
  tb watch ws://localhost:8080/ws`,
}

func main() {
	ui.Init()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultConfigPath(), "Path to config file")
}

// loadConfig reads the config file named by the --config flag.
func loadConfig() (*config.Config, error) {
	return config.Load(cfgPath)
}
