package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/marmos91/dittosmb/internal/adapter/smb/dialect"
	"github.com/marmos91/dittosmb/internal/cli/output"
	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/config"
)

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// getConfigSource describes where the configuration came from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}

// newPrinter parses the --output flag. Status lines are colored only on a
// terminal.
func newPrinter(format string) (*output.Printer, error) {
	f, err := output.ParseFormat(format)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(os.Stdout, f, logger.IsTerminal(os.Stdout.Fd())), nil
}

// parseDialects turns flag values like "3.1.1" or "0x210" into versions.
func parseDialects(values []string) ([]dialect.Version, error) {
	out := make([]dialect.Version, 0, len(values))
	for _, s := range values {
		v, err := dialect.Parse(s)
		if err != nil {
			return nil, err
		}
		if v == dialect.SMB1 {
			return nil, fmt.Errorf("%q is not an SMB2 dialect; use --smb1", s)
		}
		out = append(out, v)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
