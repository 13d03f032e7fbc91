package http

import (
	"context"
	"net/http"
	"time"

	"work-pipeline/internal/domain"

	"github.com/gorilla/websocket"
)

// handleEventStream handles GET /events/stream?work_code=code. It upgrades to
// a websocket and pushes the work's events as they are recorded, closing
// after compute/result, on client disconnect or after streamTimeout.
func (h *WorkHandler) handleEventStream(w http.ResponseWriter, r *http.Request) {
	code, ok := h.workCode(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade event stream", "work_code", code, "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), h.streamTimeout)
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger := h.logger.With("work_code", code)
	logger.Info("event stream opened")

	reason := h.streamEvents(ctx, conn, code)
	logger.Info("event stream closed", "reason", reason)

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// streamEvents polls the store and writes unseen events. It returns why it stopped.
func (h *WorkHandler) streamEvents(ctx context.Context, conn *websocket.Conn, code string) string {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	sent := make(map[int64]bool)
	for {
		events, err := h.service.ListEvents(ctx, code)
		if err != nil {
			if ctx.Err() != nil {
				return "stream ended"
			}
			h.logger.Error("error polling events", "work_code", code, "error", err)
			return "internal server error"
		}
		for _, e := range events {
			if sent[e.ID] {
				continue
			}
			if err := conn.WriteJSON(NewEventMessage(e)); err != nil {
				return "client gone"
			}
			sent[e.ID] = true
			if e.Variable == domain.VarComputeResult {
				return "work completed"
			}
		}

		select {
		case <-ctx.Done():
			return "stream ended"
		case <-ticker.C:
		}
	}
}
