package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/vango-dev/statecell/internal/errors"
)

const (
	// TOMLFileName is the preferred configuration file name.
	TOMLFileName = "statecell.toml"

	// JSONFileName is the alternative configuration file name.
	JSONFileName = "statecell.json"

	// DefaultPort is the default devtools server port.
	DefaultPort = 7070

	// DefaultHost is the default devtools server host.
	DefaultHost = "localhost"

	// DefaultNamespace is the default metrics namespace.
	DefaultNamespace = "statecell"
)

// Scheduler modes.
const (
	SchedulerLoop  = "loop"
	SchedulerQueue = "queue"
)

// Config is the complete statecell configuration.
type Config struct {
	// Name labels stores created by the CLI.
	Name string `json:"name,omitempty" toml:"name,omitempty"`

	// Log configures the CLI logger.
	Log LogConfig `json:"log" toml:"log"`

	// Scheduler selects how debounced selectors are flushed.
	Scheduler SchedulerConfig `json:"scheduler" toml:"scheduler"`

	// Metrics configures Prometheus collectors.
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`

	// Devtools configures the inspection server.
	Devtools DevtoolsConfig `json:"devtools" toml:"devtools"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error (default: info).
	Level string `json:"level,omitempty" toml:"level,omitempty"`

	// Format is text or json (default: text).
	Format string `json:"format,omitempty" toml:"format,omitempty"`
}

// SchedulerConfig configures the store scheduler.
type SchedulerConfig struct {
	// Mode is "loop" (a background goroutine flushes) or "queue" (the
	// host flushes explicitly). Default: queue.
	Mode string `json:"mode,omitempty" toml:"mode,omitempty"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns store metrics on.
	Enabled bool `json:"enabled,omitempty" toml:"enabled,omitempty"`

	// Namespace is the metrics namespace (default: "statecell").
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

// DevtoolsConfig configures the devtools server.
type DevtoolsConfig struct {
	// Host is the host to bind to.
	Host string `json:"host,omitempty" toml:"host,omitempty"`

	// Port is the port to listen on.
	Port int `json:"port,omitempty" toml:"port,omitempty"`

	// AllowPatch enables POST /patch.
	AllowPatch bool `json:"allowPatch,omitempty" toml:"allow_patch,omitempty"`
}

// New returns a configuration with default values.
func New() *Config {
	return &Config{
		Name: "statecell",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Scheduler: SchedulerConfig{
			Mode: SchedulerQueue,
		},
		Metrics: MetricsConfig{
			Namespace: DefaultNamespace,
		},
		Devtools: DevtoolsConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
	}
}

// Load reads configuration from dir, preferring statecell.toml over
// statecell.json.
func Load(dir string) (*Config, error) {
	for _, name := range []string{TOMLFileName, JSONFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New(errors.CodeConfigRead).
		WithDetail("No " + TOMLFileName + " or " + JSONFileName + " found in " + dir)
}

// LoadFile reads configuration from path. The format follows the file
// extension; anything but .json is parsed as TOML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.CodeConfigRead).WithDetail(path).Wrap(err)
	}

	cfg := New()
	if filepath.Ext(path) == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New(errors.CodeConfigParse).
			WithDetail(filepath.Base(path)).
			Wrap(err)
	}

	cfg.configPath = path
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from dir, falling back to defaults
// when no configuration file exists.
func LoadOrDefault(dir string) (*Config, error) {
	if !Exists(dir) {
		return New(), nil
	}
	return Load(dir)
}

// Save writes the configuration to the file it was loaded from.
func (c *Config) Save() error {
	if c.configPath == "" {
		return errors.Newf(errors.CategoryConfig, "no config path set")
	}
	return c.SaveTo(c.configPath)
}

// SaveTo writes the configuration to path, as JSON for .json files and
// TOML otherwise.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if filepath.Ext(path) == ".json" {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = toml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	defaults := New()

	if strings.TrimSpace(c.Name) == "" {
		c.Name = defaults.Name
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.Scheduler.Mode == "" {
		c.Scheduler.Mode = defaults.Scheduler.Mode
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaults.Metrics.Namespace
	}
	if c.Devtools.Host == "" {
		c.Devtools.Host = defaults.Devtools.Host
	}
	if c.Devtools.Port == 0 {
		c.Devtools.Port = defaults.Devtools.Port
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return invalid(err.Error(), "Use one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format "+strconv.Quote(c.Log.Format), "Use text or json")
	}
	switch c.Scheduler.Mode {
	case SchedulerLoop, SchedulerQueue:
	default:
		return invalid("scheduler.mode "+strconv.Quote(c.Scheduler.Mode), "Use loop or queue")
	}
	if c.Devtools.Port < 0 || c.Devtools.Port > 65535 {
		return invalid("devtools.port "+strconv.Itoa(c.Devtools.Port), "Use a port between 0 and 65535")
	}
	return nil
}

func invalid(detail, suggestion string) error {
	return errors.New(errors.CodeConfigInvalid).WithDetail(detail).WithSuggestion(suggestion)
}

// DevtoolsAddress returns the devtools listen address.
func (c *Config) DevtoolsAddress() string {
	return net.JoinHostPort(c.Devtools.Host, strconv.Itoa(c.Devtools.Port))
}

// Logger builds the slog logger described by the configuration.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level %q", s)
	}
	return level, nil
}

// Exists checks if a configuration file exists in dir.
func Exists(dir string) bool {
	for _, name := range []string{TOMLFileName, JSONFileName} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// FindProjectRoot walks up from startDir looking for a configuration file.
func FindProjectRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if Exists(dir) {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.CodeConfigRead).
				WithDetail("No " + TOMLFileName + " found in " + startDir + " or any parent directory")
		}
		dir = parent
	}
}
