package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/agbridge/agui"
	"github.com/spetersoncode/agbridge/runner"
)

func TestLoadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, ":8000", cfg.Addr)
		assert.Equal(t, StoreMemory, cfg.Store)
		assert.Equal(t, 20*time.Minute, cfg.SessionTimeout)
		assert.Equal(t, runner.Topology{Kind: runner.KindLLM}, cfg.Topology())
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("AGUI_STORE", "sqlite")
		t.Setenv("AGUI_SQLITE_PATH", "/tmp/sessions.db")
		t.Setenv("AGUI_AGENT_KIND", "sequential")
		t.Setenv("AGUI_RESUMABLE", "true")
		t.Setenv("AGUI_STREAMING_ARGS", "1")
		t.Setenv("AGUI_SESSION_TIMEOUT", "90s")
		t.Setenv("AGUI_SESSION_CACHE_SIZE", "64")
		t.Setenv("AGUI_LOG_LEVEL", "debug")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, StoreSQLite, cfg.Store)
		assert.Equal(t, "/tmp/sessions.db", cfg.SQLitePath)
		assert.True(t, cfg.StreamingArgs)
		assert.Equal(t, 90*time.Second, cfg.SessionTimeout)
		assert.Equal(t, 64, cfg.CacheSize)
		assert.True(t, cfg.Topology().NeedsInvocationID())
	})

	t.Run("unparsable values fall back to defaults", func(t *testing.T) {
		t.Setenv("AGUI_SESSION_TIMEOUT", "soon")
		t.Setenv("AGUI_RESUMABLE", "maybe")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, 20*time.Minute, cfg.SessionTimeout)
		assert.False(t, cfg.Resumable)
	})

	t.Run("env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "server.env")
		require.NoError(t, os.WriteFile(path, []byte("AGUI_TOOL_PREFIX=client_\n"), 0o600))
		t.Cleanup(func() { os.Unsetenv("AGUI_TOOL_PREFIX") })

		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "client_", cfg.ToolPrefix)
	})

	t.Run("missing env file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{Addr: ":8000", LogLevel: "info", Store: StoreMemory, AgentKind: "llm"}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown store", func(c *Config) { c.Store = "mongo" }, "unknown store"},
		{"redis without url", func(c *Config) { c.Store = StoreRedis }, "AGUI_REDIS_URL"},
		{"sqlite without path", func(c *Config) { c.Store = StoreSQLite }, "AGUI_SQLITE_PATH"},
		{"unknown agent kind", func(c *Config) { c.AgentKind = "graph" }, "AGUI_AGENT_KIND"},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }, "AGUI_LOG_LEVEL"},
		{"negative timeout", func(c *Config) { c.RunTimeout = -time.Second }, "negative"},
		{"missing addr", func(c *Config) { c.Addr = "" }, "AGUI_ADDR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPredictState(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		mappings, err := LoadPredictState("")
		require.NoError(t, err)
		assert.Nil(t, mappings)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "predict.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
predict_state:
  - state_key: document
    tool: write_document
    tool_argument: document
    defer_tool_call_end: true
  - state_key: plan
    tool: update_plan
  - state_key: story
    tool: write_story_local
    tool_argument: story
    confirm_tool: write_story
  - state_key: notes
    tool: write_notes_local
    confirm_tool: write_notes
    emit_confirm_tool: false
`), 0o600))

		mappings, err := LoadPredictState(path)
		require.NoError(t, err)
		assert.Equal(t, []agui.PredictStateMapping{
			{StateKey: "document", Tool: "write_document", Argument: "document", DeferToolCallEnd: true},
			{StateKey: "plan", Tool: "update_plan"},
			{StateKey: "story", Tool: "write_story_local", Argument: "story", ConfirmTool: "write_story", EmitConfirmTool: true},
			{StateKey: "notes", Tool: "write_notes_local", ConfirmTool: "write_notes"},
		}, mappings)
	})

	t.Run("incomplete mapping", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "predict.yaml")
		require.NoError(t, os.WriteFile(path, []byte("predict_state:\n  - tool: write_document\n"), 0o600))

		_, err := LoadPredictState(path)
		assert.ErrorContains(t, err, "state_key and tool are required")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadPredictState(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestRootCmd_RejectsInvalidFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--store", "mongo"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store")
}
