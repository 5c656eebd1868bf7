// cowork coordinates several AI agents and humans editing one workspace:
// advisory file locks, a role-gated work queue, an intent log, change
// notifications and live collaborative documents.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is set by -ldflags at build time.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cowork",
	Short: "Multi-agent workspace coordination server",
	Long: `cowork serves MCP tools (stdio and HTTP) for agents sharing a workspace:
file locks with TTL, a backend -> frontend -> tester work queue, an intent log,
change notifications and CRDT-backed live documents over websockets.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $COWORK_CONFIG)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
