package config

import (
	"github.com/rs/zerolog"

	"github.com/torsteingrindvik/serial-keel/internal/session"
	"github.com/torsteingrindvik/serial-keel/internal/transport"
)

// SessionConfig converts the file settings into a session configuration
// carrying the given logger.
func SessionConfig(cfg Config, logger zerolog.Logger) session.Config {
	return session.Config{
		URI:               cfg.Server,
		DefaultTimeout:    cfg.Timeout,
		ControlAnyTimeout: cfg.ControlAnyTimeout,
		Logger:            logger,
		TLS: transport.TLSConfig{
			ServerName:         cfg.TLS.ServerName,
			CAFile:             cfg.TLS.CAFile,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		},
	}
}
