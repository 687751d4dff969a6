package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/agbridge/agui"
	"github.com/spetersoncode/agbridge/runner"
)

// AgentHandler handles AG-UI agent requests over SSE.
type AgentHandler struct {
	runner  *runner.Runner
	metrics *Metrics
}

// NewAgentHandler creates a new handler for the given runner.
func NewAgentHandler(r *runner.Runner, m *Metrics) *AgentHandler {
	return &AgentHandler{runner: r, metrics: m}
}

// ServeHTTP handles POST requests to run the agent and stream events via SSE.
func (h *AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	// Only accept POST
	if r.Method != http.MethodPost {
		slog.Warn("method not allowed", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse request body
	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		slog.Warn("invalid request body", "error", err)
		h.metrics.requests.WithLabelValues("sse", "bad_request").Inc()
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	// Create request-scoped logger
	log := slog.With(
		"run_id", input.RunID,
		"thread_id", input.ThreadID,
	)

	// Get flusher for streaming
	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	log.Info("request started", "message_count", len(input.Messages), "tool_count", len(input.Tools))
	h.metrics.activeRuns.Inc()
	defer h.metrics.activeRuns.Dec()

	eventCount, outcome, err := stream(h.runner.Run(r.Context(), &input), h.metrics, func(ev aguievents.Event) error {
		return writeSSE(w, flusher, ev)
	})

	duration := time.Since(start)
	h.metrics.requests.WithLabelValues("sse", outcome).Inc()
	h.metrics.duration.WithLabelValues("sse").Observe(duration.Seconds())
	if err != nil {
		log.Error("request failed",
			"duration_ms", duration.Milliseconds(),
			"events_sent", eventCount,
			"error", err,
		)
		return
	}
	log.Info("request completed",
		"duration_ms", duration.Milliseconds(),
		"events_sent", eventCount,
		"outcome", outcome,
	)
}

// stream writes every event of a run and reports how the run ended. On a
// write error the rest of the run is drained so its goroutine can finish.
func stream(evs <-chan aguievents.Event, m *Metrics, write func(aguievents.Event) error) (int, string, error) {
	count := 0
	outcome := "finished"
	for ev := range evs {
		if ev.Type() == aguievents.EventTypeRunError {
			outcome = "error"
		}
		if err := write(ev); err != nil {
			for range evs {
			}
			return count, "disconnected", err
		}
		count++
		m.events.WithLabelValues(string(ev.Type())).Inc()
	}
	return count, outcome, nil
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev aguievents.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	// Write SSE format: event: TYPE\ndata: {json}\n\n
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), string(data)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}

// corsMiddleware adds CORS headers for cross-origin frontend requests.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthHandler returns a simple health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// capabilitiesHandler reports how the runner drives the agent.
func capabilitiesHandler(r *runner.Runner) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(r.Capabilities()); err != nil {
			slog.Error("failed to write capabilities", "error", err)
		}
	}
}

// NewMux wires the server routes.
func NewMux(r *runner.Runner, m *Metrics, corsOrigin string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/agent", corsMiddleware(corsOrigin, NewAgentHandler(r, m)))
	mux.Handle("/ws", NewWSHandler(r, m, corsOrigin))
	mux.HandleFunc("/api/capabilities", capabilitiesHandler(r))
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", m.Handler())
	return mux
}
