package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
base_url: https://api.example.com
api_key: secret
model: openai/gpt-5-mini
system: Answer tersely.
mcp_servers:
  - mdwillman/avalogica-weather-mcp
local_servers:
  - name: files
    command: mcp-files
    args: ["--root", "."]
max_turns: 5
retry:
  max_retries: 4
  base_delay: 500ms
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "openai/gpt-5-mini", cfg.Model)
	assert.Equal(t, []string{"mdwillman/avalogica-weather-mcp"}, cfg.MCPServers)
	require.Len(t, cfg.LocalServers, 1)
	assert.Equal(t, []string{"--root", "."}, cfg.LocalServers[0].Args)
	assert.Equal(t, 5, cfg.MaxTurns)

	d, err := cfg.Retry.BaseDelayDuration()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, d)
}

func TestLoadConfig_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_DEDALUS_KEY", "from-env")

	path := writeConfig(t, "api_key: ${TEST_DEDALUS_KEY}\n")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.APIKey)
}

func TestLoadConfig_Missing(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid empty",
			cfg:  Config{},
		},
		{
			name:    "duplicate slug",
			cfg:     Config{MCPServers: []string{"a/b", "a/b"}},
			wantErr: "duplicate mcp server slug",
		},
		{
			name:    "empty slug",
			cfg:     Config{MCPServers: []string{""}},
			wantErr: "empty slug",
		},
		{
			name:    "local server without name",
			cfg:     Config{LocalServers: []LocalServerConfig{{Command: "x"}}},
			wantErr: "name is required",
		},
		{
			name:    "local server without transport",
			cfg:     Config{LocalServers: []LocalServerConfig{{Name: "x"}}},
			wantErr: "command or url is required",
		},
		{
			name: "local server with both transports",
			cfg: Config{LocalServers: []LocalServerConfig{
				{Name: "x", Command: "bin", URL: "http://localhost"},
			}},
			wantErr: "mutually exclusive",
		},
		{
			name: "duplicate local server name",
			cfg: Config{LocalServers: []LocalServerConfig{
				{Name: "x", Command: "a"},
				{Name: "x", Command: "b"},
			}},
			wantErr: "duplicate local server name",
		},
		{
			name:    "negative max turns",
			cfg:     Config{MaxTurns: -1},
			wantErr: "max_turns",
		},
		{
			name:    "bad retry delay",
			cfg:     Config{Retry: RetryConfig{BaseDelay: "soon"}},
			wantErr: "base_delay",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestBuildRequest_Defaults(t *testing.T) {
	req, err := buildRequest(cliOptions{}, Config{})
	require.NoError(t, err)

	assert.Equal(t, defaultPrompt, req.Input)
	assert.Equal(t, defaultModel, req.Model)
	assert.Equal(t, defaultServers, req.MCPServers)
	assert.False(t, req.Stream)
}

func TestBuildRequest_AskSkippedWithoutTTY(t *testing.T) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		t.Skip("stdin is a terminal")
	}

	req, err := buildRequest(cliOptions{ask: true}, Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultPrompt, req.Input)
}

func TestBuildRequest_FlagsBeatConfig(t *testing.T) {
	req, err := buildRequest(
		cliOptions{
			model:   "anthropic/claude-sonnet",
			servers: []string{"x/y"},
			args:    []string{"What", "is", "the", "weather?"},
			stream:  true,
		},
		Config{Model: "config-model", MCPServers: []string{"cfg/server"}},
	)
	require.NoError(t, err)

	assert.Equal(t, "What is the weather?", req.Input)
	assert.Equal(t, "anthropic/claude-sonnet", req.Model)
	assert.Equal(t, []string{"x/y"}, req.MCPServers)
	assert.True(t, req.Stream)
}

func TestBuildRequest_ConfigFallback(t *testing.T) {
	req, err := buildRequest(cliOptions{}, Config{
		Model:      "config-model",
		MCPServers: []string{"cfg/server"},
		System:     "Be brief.",
		MaxTurns:   7,
	})
	require.NoError(t, err)

	assert.Equal(t, "config-model", req.Model)
	assert.Equal(t, []string{"cfg/server"}, req.MCPServers)
	assert.Equal(t, "Be brief.", req.System)
	assert.Equal(t, 7, req.MaxTurns)
}
