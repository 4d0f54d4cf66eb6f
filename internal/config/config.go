// Package config holds the keelctl TOML file schema: where the server is,
// how long to wait, and what the run should do once connected.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/torsteingrindvik/serial-keel/internal/protocol"
)

var (
	ErrServerRequired = errors.New("config: server uri required")
	ErrTargetRequired = errors.New("config: either labels or endpoint required")
	ErrBadDuration    = errors.New("config: bad duration")
)

// RunConfig describes one keelctl run: which endpoint to claim, what to
// feed it, and what output line counts as success.
type RunConfig struct {
	// Labels selects any endpoint carrying all of them. Takes precedence
	// over Endpoint when both are set.
	Labels []string
	// Endpoint names one endpoint directly, "mock:name" or "tty:/dev/...".
	Endpoint string
	// InputFile is written to the endpoint after observe; optional.
	InputFile string
	// SuccessPattern ends the run when a message contains it. Empty means
	// stream until the first timeout.
	SuccessPattern string
}

type TLSConfig struct {
	ServerName         string
	CAFile             string
	InsecureSkipVerify bool
}

type Config struct {
	Server            string
	Timeout           time.Duration
	ControlAnyTimeout time.Duration
	TLS               TLSConfig
	Run               RunConfig
}

func DefaultConfig() Config {
	return Config{
		Server:            "ws://127.0.0.1:3123",
		Timeout:           10 * time.Second,
		ControlAnyTimeout: 30 * time.Second,
	}
}

// fileConfig is the raw TOML key mapping; durations arrive as strings.
type fileConfig struct {
	Server            string `toml:"server"`
	Timeout           string `toml:"timeout"`
	ControlAnyTimeout string `toml:"control_any_timeout"`

	TLS struct {
		ServerName         string `toml:"server_name"`
		CAFile             string `toml:"ca_file"`
		InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
	} `toml:"tls"`

	Run struct {
		Labels         []string `toml:"labels"`
		Endpoint       string   `toml:"endpoint"`
		InputFile      string   `toml:"input_file"`
		SuccessPattern string   `toml:"success_pattern"`
	} `toml:"run"`
}

// Load reads the TOML file at path and overlays it onto the defaults; keys
// absent from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load keelctl config: %w", err)
	}

	if meta.IsDefined("server") {
		cfg.Server = strings.TrimSpace(raw.Server)
	}
	if meta.IsDefined("timeout") {
		cfg.Timeout, err = parseDuration(raw.Timeout)
		if err != nil {
			return Config{}, fmt.Errorf("load keelctl config: timeout: %w", err)
		}
	}
	if meta.IsDefined("control_any_timeout") {
		cfg.ControlAnyTimeout, err = parseDuration(raw.ControlAnyTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("load keelctl config: control_any_timeout: %w", err)
		}
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}
	if meta.IsDefined("run", "labels") {
		cfg.Run.Labels = trimAll(raw.Run.Labels)
	}
	if meta.IsDefined("run", "endpoint") {
		cfg.Run.Endpoint = strings.TrimSpace(raw.Run.Endpoint)
	}
	if meta.IsDefined("run", "input_file") {
		cfg.Run.InputFile = strings.TrimSpace(raw.Run.InputFile)
	}
	if meta.IsDefined("run", "success_pattern") {
		cfg.Run.SuccessPattern = raw.Run.SuccessPattern
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Server) == "" {
		return ErrServerRequired
	}
	if len(cfg.Run.Labels) == 0 && strings.TrimSpace(cfg.Run.Endpoint) == "" {
		return ErrTargetRequired
	}
	if endpoint := strings.TrimSpace(cfg.Run.Endpoint); endpoint != "" {
		if _, err := protocol.ParseEndpoint(endpoint); err != nil {
			return fmt.Errorf("config: run.endpoint: %w", err)
		}
	}
	return nil
}

func parseDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, raw)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: %q must be positive", ErrBadDuration, raw)
	}
	return d, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
