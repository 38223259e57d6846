package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags on every section, then the SMB cross-field
// rules.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.SMB.Enabled {
		if err := cfg.SMB.Validate(); err != nil {
			return err
		}
	}
	return nil
}
