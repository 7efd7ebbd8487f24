package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages broadcast to dashboard clients
// observing a council run's progress.
const (
	EventRunStatus   = "run.status"
	EventPhaseStatus = "phase.status"
	EventDraftResult = "draft.result"
)

// RunStatusEvent is broadcast when a run's overall status changes.
type RunStatusEvent struct {
	RunID  string `json:"run_id"`
	Role   string `json:"role"`
	Mode   string `json:"mode,omitempty"`
	Status string `json:"status"`
}

// PhaseStatusEvent is broadcast when a phase (draft/critique/synthesis) starts or finishes.
type PhaseStatusEvent struct {
	RunID  string `json:"run_id"`
	Phase  string `json:"phase"`
	Status string `json:"status"`
}

// DraftResultEvent is broadcast as each provider's draft call completes.
type DraftResultEvent struct {
	RunID    string `json:"run_id"`
	Provider string `json:"provider"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
