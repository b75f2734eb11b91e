// Package config loads execview configuration from YAML or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deepnoodle-ai/execview/prefs"
	"github.com/goccy/go-yaml"
)

// Defaults.
const (
	DefaultBaseURL           = "http://localhost:8080/api"
	DefaultTimeout           = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultPollInterval      = 5 * time.Second
	DefaultHeartbeatInterval = time.Second
	DefaultLogLevel          = "warn"
)

// Duration is a time.Duration written as a string such as "5s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level configuration.
type Config struct {
	Server      Server      `json:"server,omitempty" yaml:"server,omitempty"`
	Viewer      Viewer      `json:"viewer,omitempty" yaml:"viewer,omitempty"`
	Logging     Logging     `json:"logging,omitempty" yaml:"logging,omitempty"`
	Preferences Preferences `json:"preferences,omitempty" yaml:"preferences,omitempty"`
}

// Server locates the execution service.
type Server struct {
	BaseURL    string   `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	StreamURL  string   `json:"stream_url,omitempty" yaml:"stream_url,omitempty"`
	Timeout    Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxRetries int      `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Viewer tunes background work while viewing an execution.
type Viewer struct {
	PollInterval      Duration `json:"poll_interval,omitempty" yaml:"poll_interval,omitempty"`
	HeartbeatInterval Duration `json:"heartbeat_interval,omitempty" yaml:"heartbeat_interval,omitempty"`
	DisablePolling    bool     `json:"disable_polling,omitempty" yaml:"disable_polling,omitempty"`
}

// Logging configures the logger.
type Logging struct {
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`
	NoColor bool   `json:"no_color,omitempty" yaml:"no_color,omitempty"`
}

// Preferences locates the local preferences file.
type Preferences struct {
	Path            string `json:"path,omitempty" yaml:"path,omitempty"`
	ArtifactProfile string `json:"artifact_profile,omitempty" yaml:"artifact_profile,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Server: Server{
			BaseURL:    DefaultBaseURL,
			Timeout:    Duration(DefaultTimeout),
			MaxRetries: DefaultMaxRetries,
		},
		Viewer: Viewer{
			PollInterval:      Duration(DefaultPollInterval),
			HeartbeatInterval: Duration(DefaultHeartbeatInterval),
		},
		Logging: Logging{Level: DefaultLogLevel},
		Preferences: Preferences{
			Path: prefs.DefaultPath(),
		},
	}
}

// WithDefaults returns a copy of c with unset fields filled from Default.
func (c *Config) WithDefaults() *Config {
	return Merge(Default(), c)
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	base, err := url.Parse(c.Server.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("invalid server base_url %q: must be an http or https url", c.Server.BaseURL)
	}
	if c.Server.StreamURL != "" {
		stream, err := url.Parse(c.Server.StreamURL)
		if err != nil || (stream.Scheme != "ws" && stream.Scheme != "wss") || stream.Host == "" {
			return fmt.Errorf("invalid server stream_url %q: must be a ws or wss url", c.Server.StreamURL)
		}
	}
	if c.Server.Timeout < 0 {
		return fmt.Errorf("invalid server timeout: %s", c.Server.Timeout.Std())
	}
	if c.Server.MaxRetries < 0 {
		return fmt.Errorf("invalid server max_retries: %d", c.Server.MaxRetries)
	}
	if c.Viewer.PollInterval < 0 || c.Viewer.HeartbeatInterval < 0 {
		return fmt.Errorf("viewer intervals must not be negative")
	}
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	if c.Preferences.ArtifactProfile != "" {
		if _, err := prefs.ParseProfile(c.Preferences.ArtifactProfile); err != nil {
			return err
		}
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "warning", "error", "none", "off":
		return true
	default:
		return false
	}
}

// PushChannelURL returns the stream URL, deriving it from the base URL when
// it is not configured: http becomes ws, https becomes wss, and "/ws" is
// appended to the path.
func (c *Config) PushChannelURL() string {
	if c.Server.StreamURL != "" {
		return c.Server.StreamURL
	}
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// Save writes c to path. The file extension selects the format.
func (c *Config) Save(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(c, "", "  ")
	case ".yml", ".yaml":
		data, err = yaml.Marshal(c)
	default:
		return fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Write writes c to w in YAML format.
func (c *Config) Write(w io.Writer) error {
	return yaml.NewEncoder(w).Encode(c)
}
