package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"
	"github.com/gorilla/websocket"

	"github.com/spetersoncode/agbridge/agui"
	"github.com/spetersoncode/agbridge/runner"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler runs agents over a websocket. Each text message from the client
// is a RunAgentInput; the run's events are written back as text messages,
// one JSON event per message. Runs on one connection are sequential.
type WSHandler struct {
	runner   *runner.Runner
	metrics  *Metrics
	upgrader websocket.Upgrader
}

// NewWSHandler creates a websocket handler. An origin of "*" accepts any.
func NewWSHandler(r *runner.Runner, m *Metrics, origin string) *WSHandler {
	return &WSHandler{
		runner:  r,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(req *http.Request) bool {
				return origin == "*" || req.Header.Get("Origin") == origin
			},
		},
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "error", err)
			}
			return
		}

		var input agui.RunAgentInput
		if err := json.Unmarshal(data, &input); err != nil {
			slog.Warn("invalid websocket message", "error", err)
			h.metrics.requests.WithLabelValues("ws", "bad_request").Inc()
			msg := websocket.FormatCloseMessage(websocket.CloseUnsupportedData, "invalid run input")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteTimeout))
			return
		}
		if err := h.run(ctx, conn, &input); err != nil {
			return
		}
	}
}

func (h *WSHandler) run(ctx context.Context, conn *websocket.Conn, input *agui.RunAgentInput) error {
	start := time.Now()
	log := slog.With("run_id", input.RunID, "thread_id", input.ThreadID, "transport", "ws")
	h.metrics.activeRuns.Inc()
	defer h.metrics.activeRuns.Dec()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	count, outcome, err := stream(h.runner.Run(runCtx, input), h.metrics, func(ev aguievents.Event) error {
		data, err := ev.ToJSON()
		if err != nil {
			cancel()
			return err
		}
		if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			cancel()
			return err
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			cancel()
			return err
		}
		return nil
	})

	h.metrics.requests.WithLabelValues("ws", outcome).Inc()
	h.metrics.duration.WithLabelValues("ws").Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("websocket run failed", "events_sent", count, "error", err)
		return err
	}
	log.Info("websocket run completed", "events_sent", count, "outcome", outcome)
	return nil
}
