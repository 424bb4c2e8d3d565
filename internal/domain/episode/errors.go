package episode

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an operation targets an unknown episode
	// or child record.
	ErrNotFound = errors.New("episode not found")

	// ErrConflict is returned when an optimistic concurrency check fails.
	ErrConflict = errors.New("episode version conflict")

	// ErrForbidden is returned when the acting user's role does not permit
	// the operation.
	ErrForbidden = errors.New("operation not permitted for role")
)

// RowError reports a validation failure for one bulk-import row. Row errors
// never abort the batch.
type RowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Row, e.Field, e.Message)
}

// ImportResult is the outcome of a bulk import: rows are processed
// independently with partial success.
type ImportResult struct {
	Created []*Episode `json:"created"`
	Errors  []RowError `json:"errors"`
}
