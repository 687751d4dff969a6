package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/spetersoncode/agbridge/agui"
	"github.com/spetersoncode/agbridge/runner"
	"github.com/spetersoncode/agbridge/session"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds the server configuration loaded from environment variables.
type Config struct {
	// Server
	Addr       string
	LogLevel   string // debug, info, warn, error
	CORSOrigin string

	// Sessions
	AppName         string
	UserID          string
	Store           string
	SQLitePath      string
	RedisURL        string
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
	CacheSize       int

	// Runs
	AgentKind        string
	Resumable        bool
	StreamingArgs    bool
	RunTimeout       time.Duration
	ToolPrefix       string
	PredictStateFile string
}

// LoadConfig loads configuration from environment variables.
// With no arguments it loads a .env file if present; named env files must exist.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		godotenv.Load() // Load .env file if present
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Addr:             getEnvOrDefault("AGUI_ADDR", ":8000"),
		LogLevel:         getEnvOrDefault("AGUI_LOG_LEVEL", "info"),
		CORSOrigin:       getEnvOrDefault("AGUI_CORS_ORIGIN", "*"),
		AppName:          getEnvOrDefault("AGUI_APP_NAME", "agbridge"),
		UserID:           getEnvOrDefault("AGUI_USER_ID", runner.DefaultUserID),
		Store:            getEnvOrDefault("AGUI_STORE", StoreMemory),
		SQLitePath:       getEnvOrDefault("AGUI_SQLITE_PATH", "agbridge.db"),
		RedisURL:         getEnvOrDefault("AGUI_REDIS_URL", "redis://localhost:6379/0"),
		SessionTimeout:   getEnvDurationOrDefault("AGUI_SESSION_TIMEOUT", 20*time.Minute),
		CleanupInterval:  getEnvDurationOrDefault("AGUI_CLEANUP_INTERVAL", 5*time.Minute),
		CacheSize:        getEnvIntOrDefault("AGUI_SESSION_CACHE_SIZE", session.DefaultCacheSize),
		AgentKind:        getEnvOrDefault("AGUI_AGENT_KIND", "llm"),
		Resumable:        getEnvBoolOrDefault("AGUI_RESUMABLE", false),
		StreamingArgs:    getEnvBoolOrDefault("AGUI_STREAMING_ARGS", false),
		RunTimeout:       getEnvDurationOrDefault("AGUI_RUN_TIMEOUT", 5*time.Minute),
		ToolPrefix:       os.Getenv("AGUI_TOOL_PREFIX"),
		PredictStateFile: os.Getenv("AGUI_PREDICT_STATE_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("AGUI_ADDR is required")
	}

	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("AGUI_SQLITE_PATH is required for sqlite store")
		}
	case StoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("AGUI_REDIS_URL is required for redis store")
		}
	default:
		return fmt.Errorf("unknown store: %s (must be memory, sqlite, or redis)", c.Store)
	}

	if _, err := runner.ParseKind(c.AgentKind); err != nil {
		return fmt.Errorf("AGUI_AGENT_KIND: %w", err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.SessionTimeout < 0 || c.RunTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	return nil
}

// Topology returns the agent topology the config describes.
func (c *Config) Topology() runner.Topology {
	kind, _ := runner.ParseKind(c.AgentKind)
	return runner.Topology{Kind: kind, Resumable: c.Resumable}
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("AGUI_LOG_LEVEL: unknown level %q", c.LogLevel)
	}
	return level, nil
}

// predictStateFile is the YAML layout of AGUI_PREDICT_STATE_FILE:
//
//	predict_state:
//	  - state_key: document
//	    tool: write_document
//	    tool_argument: document
//	    defer_tool_call_end: true
//	    confirm_tool: confirm_document
//
// A mapping with a confirm_tool calls it unless emit_confirm_tool is false.
type predictStateFile struct {
	PredictState []predictStateEntry `yaml:"predict_state"`
}

type predictStateEntry struct {
	StateKey         string `yaml:"state_key"`
	Tool             string `yaml:"tool"`
	Argument         string `yaml:"tool_argument"`
	DeferToolCallEnd bool   `yaml:"defer_tool_call_end"`
	ConfirmTool      string `yaml:"confirm_tool"`
	EmitConfirmTool  *bool  `yaml:"emit_confirm_tool"`
}

func (e predictStateEntry) mapping() agui.PredictStateMapping {
	emit := e.ConfirmTool != ""
	if e.EmitConfirmTool != nil {
		emit = *e.EmitConfirmTool
	}
	return agui.PredictStateMapping{
		StateKey:         e.StateKey,
		Tool:             e.Tool,
		Argument:         e.Argument,
		DeferToolCallEnd: e.DeferToolCallEnd,
		ConfirmTool:      e.ConfirmTool,
		EmitConfirmTool:  emit,
	}
}

// LoadPredictState reads predictive-state mappings from a YAML file.
// An empty path yields no mappings.
func LoadPredictState(path string) ([]agui.PredictStateMapping, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read predict state file: %w", err)
	}
	var f predictStateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse predict state file %s: %w", path, err)
	}
	var mappings []agui.PredictStateMapping
	for i, e := range f.PredictState {
		if e.StateKey == "" || e.Tool == "" {
			return nil, fmt.Errorf("predict state mapping %d: state_key and tool are required", i)
		}
		mappings = append(mappings, e.mapping())
	}
	return mappings, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
