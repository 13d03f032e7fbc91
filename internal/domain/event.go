package domain

import "time"

// Lifecycle variables recorded by the consumer. The set is open: other
// components may record variables of their own.
const (
	VarComputeStart  = "compute/start"
	VarComputeStop   = "compute/stop"
	VarComputeResult = "compute/result"
)

// Event is an append-only audit record tied to a work code.
type Event struct {
	ID        int64     `json:"id"`
	WorkCode  string    `json:"work_code"`
	Variable  string    `json:"variable"`
	Value     string    `json:"value"`
	CreatedOn time.Time `json:"created_on"`
}
