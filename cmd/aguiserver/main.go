// Package main provides a reference AG-UI HTTP server that bridges a native
// agent runtime to AG-UI frontends over Server-Sent Events and websockets.
//
// The bundled runtime is a scripted demo agent, so the server runs without a
// model. It echoes messages, calls client tools with "/tool <name> <input>"
// and sets session state with "/state key=value".
//
// Configuration is via environment variables (a .env file is loaded if
// present) and flags:
//
//	AGUI_ADDR               - Listen address (default: :8000)
//	AGUI_LOG_LEVEL          - debug, info, warn, error (default: info)
//	AGUI_CORS_ORIGIN        - Allowed origin (default: *)
//	AGUI_APP_NAME           - Session scope (default: agbridge)
//	AGUI_USER_ID            - Session user (default: anonymous)
//	AGUI_STORE              - memory, sqlite, or redis (default: memory)
//	AGUI_SQLITE_PATH        - SQLite database file (default: agbridge.db)
//	AGUI_REDIS_URL          - Redis URL (default: redis://localhost:6379/0)
//	AGUI_SESSION_TIMEOUT    - Idle session lifetime (default: 20m)
//	AGUI_CLEANUP_INTERVAL   - Idle session sweep interval (default: 5m)
//	AGUI_SESSION_CACHE_SIZE - Thread lookup cache entries (default: 1024)
//	AGUI_AGENT_KIND         - llm, sequential, loop, or parallel (default: llm)
//	AGUI_RESUMABLE          - Pause and resume on client tools (default: false)
//	AGUI_STREAMING_ARGS     - Stream tool arguments (default: false)
//	AGUI_RUN_TIMEOUT        - Per-run timeout (default: 5m)
//	AGUI_TOOL_PREFIX        - Prefix for client tool names
//	AGUI_PREDICT_STATE_FILE - YAML file of predictive-state mappings
//
// Usage:
//
//	go run ./cmd/aguiserver --store sqlite
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spetersoncode/agbridge/runner"
	"github.com/spetersoncode/agbridge/session"
	"github.com/spetersoncode/agbridge/store"
	"github.com/spetersoncode/agbridge/store/redisstore"
	"github.com/spetersoncode/agbridge/store/sqlitestore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		envFile   string
		addr      string
		storeKind string
		demoDelay time.Duration
	)

	cmd := &cobra.Command{
		Use:           "aguiserver",
		Short:         "Serve a native agent runtime to AG-UI clients",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := LoadConfig(files...)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			if cmd.Flags().Changed("addr") {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("store") {
				cfg.Store = storeKind
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, demoDelay)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "load environment from this file instead of .env")
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address (overrides AGUI_ADDR)")
	cmd.Flags().StringVar(&storeKind, "store", StoreMemory, "session store: memory, sqlite, or redis (overrides AGUI_STORE)")
	cmd.Flags().DurationVar(&demoDelay, "demo-delay", 30*time.Millisecond, "delay between streamed words of the demo agent")
	return cmd
}

func serve(ctx context.Context, cfg *Config, demoDelay time.Duration) error {
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	mappings, err := LoadPredictState(cfg.PredictStateFile)
	if err != nil {
		return err
	}

	mgr, err := session.NewManager(st,
		session.WithAppName(cfg.AppName),
		session.WithTimeout(cfg.SessionTimeout),
		session.WithCacheSize(cfg.CacheSize),
		session.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	r := runner.New(newDemoRuntime(st, demoDelay), mgr,
		runner.WithTopology(cfg.Topology()),
		runner.WithStreamingArgs(cfg.StreamingArgs),
		runner.WithPredictState(mappings...),
		runner.WithClientToolPrefix(cfg.ToolPrefix),
		runner.WithUserID(cfg.UserID),
		runner.WithTimeout(cfg.RunTimeout),
		runner.WithLogger(logger),
	)

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      NewMux(r, NewMetrics(), cfg.CORSOrigin),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE needs no write timeout
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("AG-UI server starting",
		"addr", cfg.Addr,
		"store", cfg.Store,
		"agent_kind", cfg.AgentKind,
		"resumable", cfg.Resumable,
		"streaming_args", cfg.StreamingArgs,
		"predict_state_mappings", len(mappings),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return mgr.RunCleanup(ctx, cfg.CleanupInterval)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func openStore(ctx context.Context, cfg *Config) (store.Store, func() error, error) {
	switch cfg.Store {
	case StoreSQLite:
		st, err := sqlitestore.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, st.Close, nil
	case StoreRedis:
		st, err := redisstore.Open(ctx, cfg.RedisURL, redisstore.WithTTL(2*cfg.SessionTimeout))
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return st, st.Close, nil
	default:
		return store.NewMemoryStore(), func() error { return nil }, nil
	}
}
