package config

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittosmb/internal/cli/prompt"
	"github.com/marmos91/dittosmb/pkg/config"
)

var (
	initForce       bool
	initInteractive bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file",
	Long: `Create a DittoSMB configuration file populated with defaults.

By default the file is created at $XDG_CONFIG_HOME/dittosmb/config.yaml.
Use --config to choose another path and --interactive to be asked for the
most common settings.

Examples:
  dittosmb config init
  dittosmb config init --interactive
  dittosmb config init --config /etc/dittosmb/config.yaml --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing file")
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "Prompt for the main settings")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	cfg := config.GetDefaultConfig()
	if initInteractive {
		if err := promptSettings(cfg); err != nil {
			if prompt.IsAborted(err) {
				return errors.New("aborted")
			}
			return err
		}
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.WriteConfig(cfg, path, initForce); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Review the file, in particular smb.port and smb.signing")
	_, _ = fmt.Fprintf(out, "  2. Start the server with: dittosmb start --config %s\n", path)
	return nil
}

func promptSettings(cfg *config.Config) error {
	port, err := prompt.InputPort("SMB port", cfg.SMB.Port)
	if err != nil {
		return err
	}
	cfg.SMB.Port = port

	signing, err := prompt.Select("Message signing", []prompt.Option{
		{Label: "Enabled", Value: "enabled", Description: "Sign when the client requires it"},
		{Label: "Required", Value: "required", Description: "Refuse unsigned sessions"},
		{Label: "Disabled", Value: "disabled", Description: "Never sign"},
	})
	if err != nil {
		return err
	}
	enabled := signing != "disabled"
	cfg.SMB.Signing.Enabled = &enabled
	cfg.SMB.Signing.Required = signing == "required"

	if cfg.SMB.Auth.Guest, err = prompt.Confirm("Allow guest sessions", cfg.SMB.Auth.Guest); err != nil {
		return err
	}

	useKerberos, err := prompt.Confirm("Enable Kerberos", false)
	if err != nil {
		return err
	}
	if useKerberos {
		if cfg.SMB.Auth.KeytabPath, err = prompt.Input("Keytab path", "/etc/krb5.keytab"); err != nil {
			return err
		}
		if cfg.SMB.Auth.ServicePrincipal, err = prompt.Input("Service principal", "cifs/"+cfg.SMB.ComputerName); err != nil {
			return err
		}
	}

	level, err := prompt.Select("Log level", []prompt.Option{
		{Label: "INFO", Value: "INFO"},
		{Label: "DEBUG", Value: "DEBUG"},
		{Label: "WARN", Value: "WARN"},
		{Label: "ERROR", Value: "ERROR"},
	})
	if err != nil {
		return err
	}
	cfg.Logging.Level = level

	if cfg.Metrics.Enabled, err = prompt.Confirm("Enable Prometheus metrics", cfg.Metrics.Enabled); err != nil {
		return err
	}

	apiEnabled, err := prompt.Confirm("Enable the HTTP API", cfg.API.IsEnabled())
	if err != nil {
		return err
	}
	cfg.API.Enabled = &apiEnabled
	if apiEnabled {
		if cfg.API.Port, err = prompt.InputPort("HTTP API port", cfg.API.Port); err != nil {
			return err
		}
	}
	return nil
}
