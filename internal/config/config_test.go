// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears YUKI_* variables.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"YUKI_SERVER_URL", "YUKI_MODEL", "YUKI_ROOT", "YUKI_LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	return home
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultServerURL, cfg.Server.URL)
	assert.Equal(t, DefaultModel, cfg.Server.Model)
	assert.Nil(t, cfg.Server.Temperature)
	assert.Equal(t, 0, cfg.Server.MaxTokens)
	assert.Equal(t, filepath.Join(home, ".yuki"), cfg.Storage.Root)
	assert.Equal(t, filepath.Join(home, ".yuki", "yuki.log"), cfg.Logging.File)
	assert.Equal(t, filepath.Join(home, ".yuki", "config.toml"), cfg.Path)
	assert.Equal(t, filepath.Join(home, ".yuki", "input_history"), cfg.InputHistoryPath())
	assert.True(t, cfg.Chat.Markdown)
	assert.Equal(t, 300*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".yuki", "config.toml")
	writeFile(t, path, `
[server]
model = "qwen"
temperature = 0.6
max_tokens = 256

[chat]
markdown = false
`)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "qwen", cfg.Server.Model)
	require.NotNil(t, cfg.Server.Temperature)
	assert.InDelta(t, 0.6, *cfg.Server.Temperature, 1e-9)
	assert.Equal(t, 256, cfg.Server.MaxTokens)
	assert.False(t, cfg.Chat.Markdown)
	assert.True(t, cfg.Chat.InputHistory, "keys absent from the file keep their defaults")
	assert.Equal(t, DefaultServerURL, cfg.Server.URL)
}

func TestLoad_EnvAndFlagPrecedence(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.toml")
	writeFile(t, path, "[server]\nmodel = \"from-file\"\n")

	t.Setenv("YUKI_MODEL", "from-env")
	t.Setenv("YUKI_SERVER_URL", "http://10.0.0.2:9000/v1/chat/completions")
	t.Setenv("YUKI_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Server.Model)
	assert.Equal(t, "http://10.0.0.2:9000/v1/chat/completions", cfg.Server.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)

	cfg, err = LoadWith(path, Overrides{Model: "from-flag", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Server.Model)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_YukiRootMovesEverything(t *testing.T) {
	home := isolate(t)
	root := filepath.Join(home, "data")
	t.Setenv("YUKI_ROOT", root)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Storage.Root)
	assert.Equal(t, filepath.Join(root, "config.toml"), cfg.Path)
	assert.Equal(t, filepath.Join(root, "yuki.log"), cfg.Logging.File)
}

func TestLoad_MissingHomeIsConfigError(t *testing.T) {
	isolate(t)
	t.Setenv("HOME", "")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.True(t, errors.Is(err, ErrNoHome))
}

func TestLoad_MalformedFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".yuki", "config.toml")
	writeFile(t, path, "[server\nurl = ")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".yuki", "config.toml")
	writeFile(t, path, "[server]\nmodle = \"typo\"\n")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.modle")
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate(t *testing.T) {
	isolate(t)
	hot := 3.5

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"bad scheme", func(c *Config) { c.Server.URL = "ftp://host/x" }, "server.url"},
		{"missing host", func(c *Config) { c.Server.URL = "http:///v1" }, "server.url"},
		{"empty model", func(c *Config) { c.Server.Model = "  " }, "server.model"},
		{"temperature", func(c *Config) { c.Server.Temperature = &hot }, "server.temperature"},
		{"negative max tokens", func(c *Config) { c.Server.MaxTokens = -1 }, "server.max_tokens"},
		{"negative timeout", func(c *Config) { c.Server.RequestTimeoutSecs = -5 }, "server.request_timeout_secs"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"log encoding", func(c *Config) { c.Logging.Encoding = "xml" }, "logging.encoding"},
		{"read limit", func(c *Config) { c.Chat.MaxReadBytes = MaxReadBytesLimit + 1 }, "chat.max_read_bytes"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.SetDefaults())
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			assert.Equal(t, tc.field, verrs[0].Field)
		})
	}
}

func TestValidate_Defaults(t *testing.T) {
	isolate(t)
	cfg := Default()
	require.NoError(t, cfg.SetDefaults())
	assert.NoError(t, cfg.Validate())
}

// =============================================================================
// SAVE TESTS
// =============================================================================

func TestSaveTOML_RoundTrip(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, ".yuki", "config.toml")

	cfg := Default()
	cfg.Server.Model = "mistral"
	require.NoError(t, SaveTOML(cfg, path, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral", loaded.Server.Model)

	assert.Error(t, SaveTOML(cfg, path, false), "existing file must not be overwritten")
	assert.NoError(t, SaveTOML(cfg, path, true))
}

func TestClone_CopiesTemperature(t *testing.T) {
	temp := 0.2
	cfg := Default()
	cfg.Server.Temperature = &temp

	clone := cfg.Clone()
	*clone.Server.Temperature = 0.9
	assert.InDelta(t, 0.2, *cfg.Server.Temperature, 1e-9)
}
