// Package config loads ftclient settings from a TOML file and FTCLIENT_*
// environment variables.
//
// Priority: flags > environment > file > defaults. Flags are applied by the
// caller after Load returns.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/gonzalop/ftclient"
)

// Duration is a time.Duration that decodes from TOML strings like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds client settings.
type Config struct {
	// Timeout bounds the control dial and each control read/write; zero waits forever
	Timeout        Duration `toml:"timeout"`
	AcceptTimeout  Duration `toml:"accept_timeout"`
	ReadTimeout    Duration `toml:"read_timeout"`
	ChunkSize      int      `toml:"chunk_size"`
	BandwidthLimit int64    `toml:"bandwidth_limit"`

	// ClientAddress skips route probing when set
	ClientAddress string   `toml:"client_address"`
	RouteProbe    string   `toml:"route_probe"`
	AllowedHosts  []string `toml:"allowed_hosts"`

	// OutputDir is where fetched files are written; empty means the working directory
	OutputDir string `toml:"output_dir"`

	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// Default returns the configuration used when nothing is set.
// All timeouts are zero, which waits indefinitely.
func Default() *Config {
	return &Config{
		ChunkSize:  ftclient.DefaultChunkSize,
		RouteProbe: ftclient.DefaultRouteProbe,
		LogLevel:   "warn",
		LogFormat:  "auto",
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file; a path that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies FTCLIENT_* environment variable overrides.
func applyEnv(cfg *Config) error {
	duration := func(name string, dst *Duration) func(string) error {
		return func(v string) error {
			if v == "" {
				return nil
			}
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			dst.Duration = d
			return nil
		}
	}
	str := func(dst *string) func(string) error {
		return func(v string) error {
			if v != "" {
				*dst = v
			}
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"FTCLIENT_TIMEOUT":        duration("FTCLIENT_TIMEOUT", &cfg.Timeout),
		"FTCLIENT_ACCEPT_TIMEOUT": duration("FTCLIENT_ACCEPT_TIMEOUT", &cfg.AcceptTimeout),
		"FTCLIENT_READ_TIMEOUT":   duration("FTCLIENT_READ_TIMEOUT", &cfg.ReadTimeout),
		"FTCLIENT_CHUNK_SIZE": func(v string) error {
			if v != "" {
				size, err := strconv.Atoi(v)
				if err != nil {
					return fmt.Errorf("invalid FTCLIENT_CHUNK_SIZE: %w", err)
				}
				cfg.ChunkSize = size
			}
			return nil
		},
		"FTCLIENT_BANDWIDTH_LIMIT": func(v string) error {
			if v != "" {
				limit, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid FTCLIENT_BANDWIDTH_LIMIT: %w", err)
				}
				cfg.BandwidthLimit = limit
			}
			return nil
		},
		"FTCLIENT_ALLOWED_HOSTS": func(v string) error {
			if v != "" {
				cfg.AllowedHosts = splitList(v)
			}
			return nil
		},
		"FTCLIENT_CLIENT_ADDRESS": str(&cfg.ClientAddress),
		"FTCLIENT_ROUTE_PROBE":    str(&cfg.RouteProbe),
		"FTCLIENT_OUTPUT_DIR":     str(&cfg.OutputDir),
		"FTCLIENT_LOG_LEVEL":      str(&cfg.LogLevel),
		"FTCLIENT_LOG_FILE":       str(&cfg.LogFile),
		"FTCLIENT_LOG_FORMAT":     str(&cfg.LogFormat),
	}

	for envVar, apply := range envMap {
		if err := apply(os.Getenv(envVar)); err != nil {
			return err
		}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration for values the client would reject.
func (c *Config) Validate() error {
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.AcceptTimeout.Duration < 0 {
		return fmt.Errorf("accept_timeout must not be negative")
	}
	if c.ReadTimeout.Duration < 0 {
		return fmt.Errorf("read_timeout must not be negative")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive")
	}
	if c.BandwidthLimit < 0 {
		return fmt.Errorf("bandwidth_limit must not be negative")
	}
	if c.ClientAddress != "" && net.ParseIP(c.ClientAddress) == nil {
		return fmt.Errorf("invalid client_address %q", c.ClientAddress)
	}
	if _, _, err := net.SplitHostPort(c.RouteProbe); err != nil {
		return fmt.Errorf("invalid route_probe: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	switch c.LogFormat {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want auto, console or json)", c.LogFormat)
	}
	return nil
}

// Options converts the configuration into client options. Output
// destinations and the logger are left to the caller.
func (c *Config) Options() []ftclient.Option {
	opts := []ftclient.Option{
		ftclient.WithTimeout(c.Timeout.Duration),
		ftclient.WithAcceptTimeout(c.AcceptTimeout.Duration),
		ftclient.WithReadTimeout(c.ReadTimeout.Duration),
		ftclient.WithChunkSize(c.ChunkSize),
		ftclient.WithBandwidthLimit(c.BandwidthLimit),
		ftclient.WithRouteProbe(c.RouteProbe),
		ftclient.WithAllowedHosts(c.AllowedHosts...),
	}
	if c.ClientAddress != "" {
		opts = append(opts, ftclient.WithClientAddress(c.ClientAddress))
	}
	return opts
}
