package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/BioHazard786/huddle/internal/ui"
	"github.com/BioHazard786/huddle/internal/version"
)

var flagEnvFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Room chat with a WebRTC signaling relay",
	Long: `huddle runs a small WebSocket relay for room chat and WebRTC video signaling,
and a terminal client that talks to it.

Start a relay with "huddle serve", then join a room with "huddle chat".`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagEnvFile, "env-file", ".env", "Load environment variables from this file when present")
}
