// internal/domain/work.go
package domain

import (
	"fmt"
	"time"
)

// UnpersistedWorkID marks a Work that has been mapped from a demand but not yet stored.
const UnpersistedWorkID int64 = -1

// WorkDemand is the queue payload asking for one unit of computation.
// It has no identity and only lives on the wire.
type WorkDemand struct {
	AddUpTo int  `json:"add_up_to"`
	Done    bool `json:"done"`
}

// Validate checks the demand before it is published or accepted.
func (d WorkDemand) Validate() error {
	if d.AddUpTo < 0 {
		return fmt.Errorf("work demand add_up_to must be >= 0, got %d", d.AddUpTo)
	}
	return nil
}

// Work is the durable record of a claimed, in-progress or completed unit of computation.
type Work struct {
	ID        int64     `json:"id"`
	WorkCode  string    `json:"work_code"`
	AddUpTo   int       `json:"add_up_to"`
	Done      bool      `json:"done"`
	CreatedOn time.Time `json:"created_on"`
	UpdatedOn time.Time `json:"updated_on"`
}

// Persisted reports whether the store has assigned an id.
func (w *Work) Persisted() bool {
	return w.ID > 0
}

// Validate checks the invariants a Work must hold before it is written.
func (w *Work) Validate() error {
	if w.WorkCode == "" {
		return fmt.Errorf("work code cannot be empty")
	}
	if w.AddUpTo < 0 {
		return fmt.Errorf("work add_up_to must be >= 0, got %d", w.AddUpTo)
	}
	if w.CreatedOn.IsZero() || w.UpdatedOn.IsZero() {
		return fmt.Errorf("work %s timestamps cannot be zero", w.WorkCode)
	}
	if w.UpdatedOn.Before(w.CreatedOn) {
		return fmt.Errorf("work %s updated_on is before created_on", w.WorkCode)
	}
	return nil
}
