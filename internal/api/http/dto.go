package http

import (
	"time"

	"work-pipeline/internal/domain"
)

// WorkCodeQuery carries the work_code query parameter of search and event routes.
type WorkCodeQuery struct {
	WorkCode string `validate:"required,max=64,workcode"`
}

// MessageResponse is the body of plain error replies, e.g. {"content":"route not found"}.
type MessageResponse struct {
	Content string `json:"content"`
}

// ValidationErrorResponse lists the rules a request broke.
type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details"`
}

// EventMessage is one frame of the event stream.
type EventMessage struct {
	ID        int64  `json:"id"`
	WorkCode  string `json:"work_code"`
	Variable  string `json:"variable"`
	Value     string `json:"value"`
	CreatedOn string `json:"created_on"`
}

// NewEventMessage converts a domain event for the wire.
func NewEventMessage(e *domain.Event) EventMessage {
	return EventMessage{
		ID:        e.ID,
		WorkCode:  e.WorkCode,
		Variable:  e.Variable,
		Value:     e.Value,
		CreatedOn: e.CreatedOn.UTC().Format(time.RFC3339),
	}
}
