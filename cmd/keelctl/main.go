package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/torsteingrindvik/serial-keel/internal/config"
	"github.com/torsteingrindvik/serial-keel/internal/logging"
	"github.com/torsteingrindvik/serial-keel/internal/observability"
	"github.com/torsteingrindvik/serial-keel/internal/protocol"
	"github.com/torsteingrindvik/serial-keel/internal/session"
)

func main() {
	configPath := flag.String("config", "keelctl.toml", "path to keelctl config")
	flag.Parse()

	logging.ConfigureRuntime()
	logger := observability.InitLogger("keelctl")
	observability.RegisterMetrics()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keelctl: %v\n", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "keelctl: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	s, err := session.Connect(ctx, config.SessionConfig(cfg, logger))
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	endpoint, err := claim(s, cfg, logger)
	if err != nil {
		return err
	}
	if err := s.Observe(endpoint); err != nil {
		return err
	}
	if cfg.Run.InputFile != "" {
		if err := s.WriteFile(endpoint, cfg.Run.InputFile); err != nil {
			return err
		}
		logger.Info().Str("file", cfg.Run.InputFile).Stringer("endpoint", endpoint).Msg("input written")
	}
	return stream(s, endpoint, cfg.Run.SuccessPattern, logger)
}

// claim takes control of the run's target: any endpoint matching the
// labels, or the one named directly.
func claim(s *session.Session, cfg config.Config, logger zerolog.Logger) (protocol.EndpointID, error) {
	if len(cfg.Run.Labels) > 0 {
		granted, err := s.ControlAny(protocol.Labels(cfg.Run.Labels))
		if err != nil {
			return protocol.EndpointID{}, err
		}
		endpoint := granted[0].ID
		logger.Info().Stringer("endpoint", granted[0]).Msg("control granted")
		return endpoint, nil
	}

	endpoint, err := protocol.ParseEndpoint(cfg.Run.Endpoint)
	if err != nil {
		return protocol.EndpointID{}, err
	}
	if _, err := s.Control(endpoint); err != nil {
		return protocol.EndpointID{}, err
	}
	logger.Info().Stringer("endpoint", endpoint).Msg("control granted")
	return endpoint, nil
}

// stream prints endpoint output until the success pattern matches. With no
// pattern the run ends cleanly at the first quiet period.
func stream(s *session.Session, endpoint protocol.EndpointID, pattern string, logger zerolog.Logger) error {
	messages, err := s.EndpointMessages(endpoint)
	if err != nil {
		return err
	}
	for {
		message, err := messages.Next()
		if err != nil {
			if pattern == "" && errors.Is(err, session.ErrTimeout) {
				return nil
			}
			return err
		}
		fmt.Println(message)
		if pattern != "" && strings.Contains(message, pattern) {
			logger.Info().Str("pattern", pattern).Msg("success pattern matched")
			return nil
		}
	}
}
