// Package cmd provides the CLI commands for Warden Gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/warden-gate/wardengate/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "warden-gate",
	Short: "Warden Gate - security gateway for retrieval-augmented chat",
	Long: `Warden Gate authenticates clients, enforces roles, guards against
replayed requests, throttles abusive callers, and keeps answering when
the upstream language-model providers degrade.

Quick start:
  1. Create a config file: warden-gate.yaml
  2. Run: warden-gate start
  3. Create a client key: warden-gate keys create --name my-app --role CLIENT

Configuration:
  Config is loaded from warden-gate.yaml in the current directory,
  $HOME/.warden-gate/, or /etc/warden-gate/.

  Environment variables override config values with the WARDEN_GATE_ prefix.
  Example: WARDEN_GATE_SERVER_HTTP_ADDR=:9090

Commands:
  start       Start the gateway server
  stop        Stop the running server
  keys        Manage API keys
  hash-key    Hash a secret for manual provisioning
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./warden-gate.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
