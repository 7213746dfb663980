// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for yuki.
//
// Configuration is read from a TOML file, layered over built-in defaults,
// then overridden by YUKI_* environment variables and command-line flags.
//
// Configuration file location (in order of precedence):
//   - --config flag
//   - $YUKI_ROOT/config.toml
//   - ~/.yuki/config.toml
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/yuki/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete yuki configuration.
type Config struct {
	// Server is the completion service connection.
	Server ServerConfig `toml:"server" json:"server"`

	// Storage controls where sessions are persisted.
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Logging configures the zap log file.
	Logging LoggingConfig `toml:"logging" json:"logging"`

	// Chat holds REPL behaviour.
	Chat ChatConfig `toml:"chat" json:"chat"`

	// Path is the file this config was loaded from. Not persisted.
	Path string `toml:"-" json:"-"`
}

// ServerConfig contains completion service settings.
type ServerConfig struct {
	// URL is the chat completions endpoint.
	URL string `toml:"url" json:"url"`

	// Model is sent verbatim in every request.
	Model string `toml:"model" json:"model"`

	// Temperature is sent only when set.
	Temperature *float64 `toml:"temperature,omitempty" json:"temperature,omitempty"`

	// MaxTokens is sent only when positive.
	MaxTokens int `toml:"max_tokens" json:"max_tokens"`

	// ConnectTimeoutSecs bounds dialing and waiting for response headers.
	ConnectTimeoutSecs int `toml:"connect_timeout_secs" json:"connect_timeout_secs"`

	// RequestTimeoutSecs bounds a whole streamed reply.
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
}

// StorageConfig contains the on-disk layout root.
type StorageConfig struct {
	// Root holds history/, chats/, backups/ and the log file.
	Root string `toml:"root" json:"root"`
}

// LoggingConfig contains log settings.
type LoggingConfig struct {
	Level    string `toml:"level" json:"level"`
	Encoding string `toml:"encoding" json:"encoding"`
	File     string `toml:"file" json:"file"`
}

// ChatConfig contains REPL settings.
type ChatConfig struct {
	// Markdown renders /history, the memory block shown on load and
	// "sessions show" with glamour on a TTY. Replies always stream as plain
	// text.
	Markdown bool `toml:"markdown" json:"markdown"`

	// MaxReadBytes caps the size of files attached with /read.
	MaxReadBytes int64 `toml:"max_read_bytes" json:"max_read_bytes"`

	// InputHistory persists typed lines between runs.
	InputHistory bool `toml:"input_history" json:"input_history"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultServerURL is the llama.cpp server default endpoint.
	DefaultServerURL = "http://127.0.0.1:8080/v1/chat/completions"

	// DefaultModel is the model name most local servers accept.
	DefaultModel = "local"

	// DefaultDirName is the data directory under $HOME.
	DefaultDirName = ".yuki"

	// ConfigFileName is the config file name inside the data directory.
	ConfigFileName = "config.toml"

	// LogFileName is the default log file name inside the data directory.
	LogFileName = "yuki.log"

	// InputHistoryFileName stores liner history.
	InputHistoryFileName = "input_history"

	// MaxReadBytesLimit is the hard ceiling for chat.max_read_bytes.
	MaxReadBytesLimit = 10 * 1024 * 1024
)

// Default returns a Config with sensible default values.
// Storage.Root and Logging.File are left empty and resolved by SetDefaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:                DefaultServerURL,
			Model:              DefaultModel,
			ConnectTimeoutSecs: 10,
			RequestTimeoutSecs: 300,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
		Chat: ChatConfig{
			Markdown:     true,
			MaxReadBytes: 50 * 1024,
			InputHistory: true,
		},
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNoHome is returned when HOME is unset.
var ErrNoHome = errors.New("HOME is not set")

// ConfigError reports a configuration problem that prevents startup.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is or wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// HomeDir returns $HOME, or ErrNoHome wrapped in a ConfigError.
func HomeDir() (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		return "", &ConfigError{Err: ErrNoHome}
	}
	return home, nil
}

// DefaultRoot returns $YUKI_ROOT, or ~/.yuki.
func DefaultRoot() (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	if root := os.Getenv("YUKI_ROOT"); root != "" {
		return expandHome(root, home), nil
	}
	return filepath.Join(home, DefaultDirName), nil
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	root, err := DefaultRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, ConfigFileName), nil
}

func expandHome(p, home string) string {
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// InputHistoryPath returns the liner history file path.
func (c *Config) InputHistoryPath() string {
	return filepath.Join(c.Storage.Root, InputHistoryFileName)
}

// ConnectTimeout returns Server.ConnectTimeoutSecs as a duration.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Server.ConnectTimeoutSecs) * time.Second
}

// RequestTimeout returns Server.RequestTimeoutSecs as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSecs) * time.Second
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Overrides are command-line values applied after the environment.
type Overrides struct {
	URL   string
	Model string
	Debug bool
}

// Load loads configuration from path (or the default path when empty).
// A missing file yields defaults; a malformed one is an error. Every
// failure is a *ConfigError.
func Load(path string) (*Config, error) {
	return LoadWith(path, Overrides{})
}

// LoadWith is Load followed by command-line overrides.
func LoadWith(path string, o Overrides) (*Config, error) {
	home, err := HomeDir()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	path = expandHome(path, home)

	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigError{Path: path, Err: err}
	}
	cfg.Path = path

	cfg.ApplyEnvOverrides()
	cfg.ApplyOverrides(o)
	if err := cfg.SetDefaults(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file over cfg. Keys absent from the file keep
// their current values. Unknown keys are rejected so typos surface.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - YUKI_SERVER_URL: overrides server.url
//   - YUKI_MODEL: overrides server.model
//   - YUKI_ROOT: overrides storage.root
//   - YUKI_LOG_LEVEL: overrides logging.level
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("YUKI_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("YUKI_MODEL"); v != "" {
		c.Server.Model = v
	}
	if v := os.Getenv("YUKI_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("YUKI_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// ApplyOverrides applies command-line overrides.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.URL != "" {
		c.Server.URL = o.URL
	}
	if o.Model != "" {
		c.Server.Model = o.Model
	}
	if o.Debug {
		c.Logging.Level = "debug"
	}
}

// SetDefaults fills zero-value fields and resolves paths against $HOME.
func (c *Config) SetDefaults() error {
	home, err := HomeDir()
	if err != nil {
		return err
	}
	defaults := Default()

	if c.Server.URL == "" {
		c.Server.URL = defaults.Server.URL
	}
	if c.Server.Model == "" {
		c.Server.Model = defaults.Server.Model
	}
	if c.Server.ConnectTimeoutSecs == 0 {
		c.Server.ConnectTimeoutSecs = defaults.Server.ConnectTimeoutSecs
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = defaults.Server.RequestTimeoutSecs
	}

	if c.Storage.Root == "" {
		c.Storage.Root = filepath.Join(home, DefaultDirName)
	}
	c.Storage.Root = expandHome(c.Storage.Root, home)

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Encoding == "" {
		c.Logging.Encoding = defaults.Logging.Encoding
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.Storage.Root, LogFileName)
	}
	c.Logging.File = expandHome(c.Logging.File, home)

	if c.Chat.MaxReadBytes == 0 {
		c.Chat.MaxReadBytes = defaults.Chat.MaxReadBytes
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.Server.URL)
	switch {
	case err != nil:
		errs = append(errs, ValidationError{Field: "server.url", Message: err.Error()})
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("unsupported scheme '%s', must be http or https", u.Scheme),
		})
	case u.Host == "":
		errs = append(errs, ValidationError{Field: "server.url", Message: "missing host"})
	}

	if strings.TrimSpace(c.Server.Model) == "" {
		errs = append(errs, ValidationError{Field: "server.model", Message: "must not be empty"})
	}
	if t := c.Server.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, ValidationError{
			Field:   "server.temperature",
			Message: fmt.Sprintf("%.2f out of range [0, 2]", *t),
		})
	}
	if c.Server.MaxTokens < 0 {
		errs = append(errs, ValidationError{Field: "server.max_tokens", Message: "must not be negative"})
	}
	if c.Server.ConnectTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "server.connect_timeout_secs", Message: "must not be negative"})
	}
	if c.Server.RequestTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "server.request_timeout_secs", Message: "must not be negative"})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	if c.Logging.Encoding != "console" && c.Logging.Encoding != "json" {
		errs = append(errs, ValidationError{
			Field:   "logging.encoding",
			Message: fmt.Sprintf("invalid encoding '%s', must be console or json", c.Logging.Encoding),
		})
	}

	if c.Chat.MaxReadBytes < 0 || c.Chat.MaxReadBytes > MaxReadBytesLimit {
		errs = append(errs, ValidationError{
			Field:   "chat.max_read_bytes",
			Message: fmt.Sprintf("must be between 1 and %d", MaxReadBytesLimit),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// SAVE / DISPLAY
// =============================================================================

// Encode returns the TOML form of the config.
func (c *Config) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveTOML writes the config to path atomically. It refuses to overwrite an
// existing file unless force is set.
func SaveTOML(cfg *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	data, err := cfg.Encode()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString("# yuki configuration file\n")
	buf.WriteString("# Environment variables YUKI_SERVER_URL, YUKI_MODEL, YUKI_ROOT and\n")
	buf.WriteString("# YUKI_LOG_LEVEL override the values below.\n\n")
	buf.Write(data)

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.Temperature != nil {
		t := *c.Server.Temperature
		clone.Server.Temperature = &t
	}
	return &clone
}
