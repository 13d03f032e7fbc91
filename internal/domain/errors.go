package domain

import (
	"errors"
	"fmt"
)

// ErrWorkNotFound is returned when no Work row matches the requested id.
var ErrWorkNotFound = errors.New("work not found")

// RowCountError reports a statement that touched an unexpected number of rows.
// It is fatal for retrieval and only an anomaly for updates.
type RowCountError struct {
	Op    string
	Count int64
}

func (e *RowCountError) Error() string {
	return fmt.Sprintf("%s: unexpected row count %d", e.Op, e.Count)
}

// IsRowCount reports whether err carries a RowCountError and returns it.
func IsRowCount(err error) (*RowCountError, bool) {
	var rc *RowCountError
	if errors.As(err, &rc) {
		return rc, true
	}
	return nil, false
}
