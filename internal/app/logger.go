package app

import "github.com/lazynerd-007/lpv1-sub000/pkg/logger"

// ConfigureLogging initialises the global logger from configuration.
func ConfigureLogging(cfg LoggingConfig) error {
	return logger.Init(cfg.Level)
}
