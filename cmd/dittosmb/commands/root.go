// Package commands implements the dittosmb command line.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/cmd/dittosmb/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "dittosmb",
	Short: "DittoSMB - SMB negotiation and signing server",
	Long: `DittoSMB is a pure Go SMB server core. It negotiates SMB1 and
SMB2/3 dialects (including the SMB1 to SMB2 upgrade), authenticates sessions
over NTLM, Kerberos or guest, and signs and verifies every message.

Use "dittosmb [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once by main.main.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/dittosmb/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(rpcDecodeCmd)
	rootCmd.AddCommand(dialectsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}
