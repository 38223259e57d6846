package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/dittosmb/internal/logger"
)

// Watch re-reads configPath whenever it changes and hands every valid
// result to onChange. Invalid edits are logged and skipped; the previous
// configuration stays in effect.
//
// Only settings that are safe to change on a live server should be applied
// by onChange; see ApplyRuntime.
func Watch(configPath string, onChange func(*Config)) error {
	v := newViper(configPath)
	found, err := readConfigFile(v)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoConfigFile
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid configuration change", "file", e.Name, logger.Err(err))
			return
		}
		logger.Info("Configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ApplyRuntime applies the reloadable settings: log level and format.
// Listener, signing and auth changes need a restart.
func ApplyRuntime(cfg *Config) {
	if logger.SetLevel(cfg.Logging.Level) {
		logger.Debug("Log level applied", "level", cfg.Logging.Level)
	}
	logger.SetFormat(cfg.Logging.Format)
}
