// Package config holds the viewer configuration. Values come from defaults,
// then an optional YAML file, then PIVIEWER_* environment variables; the CLI
// applies its flags last and calls Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1ureka/piviewer/internal/relay"
)

const (
	DefaultSignalURL = "ws://localhost:9001"

	defaultQueueSize         = 64
	defaultCandidateBuffer   = 32
	defaultStatsInterval     = 10 * time.Second
	defaultInitialInterval   = time.Second
	defaultMaxInterval       = 30 * time.Second
	defaultMaxMessageBytes   = 1 << 20
	defaultMessagesPerSecond = 50

	envPrefix = "PIVIEWER_"
)

// Config is the complete viewer configuration.
type Config struct {
	SignalURL       string        `yaml:"signal_url"`
	ICEServers      []string      `yaml:"ice_servers"`
	RecordDir       string        `yaml:"record_dir"`
	QueueSize       int           `yaml:"queue_size"`
	CandidateBuffer int           `yaml:"candidate_buffer"`
	StatsInterval   time.Duration `yaml:"stats_interval"`
	Debug           bool          `yaml:"debug"`

	Reconnect Reconnect `yaml:"reconnect"`
	Relay     Relay     `yaml:"relay"`
}

// Reconnect controls how the viewer retries after a signaling connection ends.
type Reconnect struct {
	Enabled         bool          `yaml:"enabled"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// Relay configures the embedded signaling hub.
type Relay struct {
	Enabled           bool    `yaml:"enabled"`
	ListenAddr        string  `yaml:"listen_addr"`
	PIN               string  `yaml:"pin"`
	MaxMessageBytes   int64   `yaml:"max_message_bytes"`
	MessagesPerSecond float64 `yaml:"messages_per_second"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SignalURL:       DefaultSignalURL,
		QueueSize:       defaultQueueSize,
		CandidateBuffer: defaultCandidateBuffer,
		StatsInterval:   defaultStatsInterval,
		Reconnect: Reconnect{
			Enabled:         true,
			InitialInterval: defaultInitialInterval,
			MaxInterval:     defaultMaxInterval,
		},
		Relay: Relay{
			ListenAddr:        relay.DefaultAddr,
			MaxMessageBytes:   defaultMaxMessageBytes,
			MessagesPerSecond: defaultMessagesPerSecond,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file on top of cfg. Keys absent from the file keep
// their current value; unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.SignalURL = envString("SIGNAL_URL", cfg.SignalURL)
	cfg.RecordDir = envString("RECORD_DIR", cfg.RecordDir)
	if raw := envString("ICE_SERVERS", ""); raw != "" {
		cfg.ICEServers = ParseList(raw)
	}
	cfg.Debug = envBool("DEBUG", cfg.Debug)
	cfg.Reconnect.Enabled = envBool("RECONNECT", cfg.Reconnect.Enabled)
	cfg.Relay.Enabled = envBool("RELAY", cfg.Relay.Enabled)
	cfg.Relay.ListenAddr = envString("RELAY_ADDR", cfg.Relay.ListenAddr)
	cfg.Relay.PIN = envString("RELAY_PIN", cfg.Relay.PIN)

	var err error
	if cfg.QueueSize, err = envInt("QUEUE_SIZE", cfg.QueueSize); err != nil {
		return err
	}
	if cfg.CandidateBuffer, err = envInt("CANDIDATE_BUFFER", cfg.CandidateBuffer); err != nil {
		return err
	}
	if cfg.StatsInterval, err = envDuration("STATS_INTERVAL", cfg.StatsInterval); err != nil {
		return err
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.SignalURL == "" && !c.Relay.Enabled {
		errs = append(errs, errors.New("signal URL is required unless the relay is enabled"))
	}
	if c.SignalURL != "" {
		if _, err := NormalizeURL(c.SignalURL); err != nil {
			errs = append(errs, err)
		}
	}
	for _, s := range c.ICEServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "turn:") && !strings.HasPrefix(s, "turns:") {
			errs = append(errs, fmt.Errorf("invalid ICE server %q: must start with stun:, turn: or turns:", s))
		}
	}
	if c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("queue size must be > 0, got %d", c.QueueSize))
	}
	if c.CandidateBuffer <= 0 {
		errs = append(errs, fmt.Errorf("candidate buffer must be > 0, got %d", c.CandidateBuffer))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("stats interval must be >= 0, got %s", c.StatsInterval))
	}

	if c.Reconnect.Enabled {
		if c.Reconnect.InitialInterval <= 0 || c.Reconnect.MaxInterval <= 0 {
			errs = append(errs, errors.New("reconnect intervals must be > 0"))
		} else if c.Reconnect.InitialInterval > c.Reconnect.MaxInterval {
			errs = append(errs, fmt.Errorf("reconnect initial interval %s exceeds max interval %s",
				c.Reconnect.InitialInterval, c.Reconnect.MaxInterval))
		}
	}

	if c.Relay.Enabled {
		if err := validateListenAddr(c.Relay.ListenAddr); err != nil {
			errs = append(errs, err)
		}
		if c.Relay.MaxMessageBytes <= 0 {
			errs = append(errs, fmt.Errorf("relay max message bytes must be > 0, got %d", c.Relay.MaxMessageBytes))
		}
		if c.Relay.MessagesPerSecond < 0 {
			errs = append(errs, fmt.Errorf("relay messages per second must be >= 0, got %g", c.Relay.MessagesPerSecond))
		}
	}

	return errors.Join(errs...)
}

func validateListenAddr(addr string) error {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid relay listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid relay listen port %q: must be 0 ~ 65535", portStr)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// NormalizeURL validates and normalizes a raw signaling URL. A bare host is
// taken as ws://, http(s) maps to ws(s); path and query (e.g. ?pin=) are kept.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid WebSocket URL scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// ParseList splits a comma-separated list, dropping blanks.
func ParseList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// envString returns an env override when present, otherwise a default.
func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(envPrefix + key)); v != "" {
		return v
	}
	return def
}

// envInt returns an int env override when present, otherwise a default.
func envInt(key string, def int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s%s must be an integer: %w", envPrefix, key, err)
	}
	return value, nil
}

// envDuration returns a duration env override when present, otherwise a default.
func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s%s must be a duration: %w", envPrefix, key, err)
	}
	return value, nil
}

// envBool returns a bool env override when present, otherwise a default.
func envBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
