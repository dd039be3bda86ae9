package reportgen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// Configuration-stage errors: the caller's input is unusable.
	ErrInvalidConfiguration   = errors.New("invalid report configuration")
	ErrInvalidVariationFormat = errors.New("invalid variation format")

	// Retrieval errors, contained at the section boundary.
	ErrSearchUnavailable = errors.New("search unavailable")
	ErrInvalidCollection = errors.New("invalid document collection")
	ErrDocumentNotFound  = errors.New("document not found")

	// Synthesis errors fail the whole generation.
	ErrSynthesisFormat  = errors.New("synthesis reply has no markdown")
	ErrSynthesisTimeout = errors.New("synthesis timed out")

	ErrGenerationInProgress = errors.New("report generation already in progress")
	ErrGenerationCancelled  = errors.New("report generation cancelled")
	ErrReportNotFound       = errors.New("report not found")
)

// PersistenceError wraps a failed read or write of report state. The in-memory result of the
// attempt that hit it is not durable; callers retry the whole operation.
type PersistenceError struct {
	Op        string
	Retryable bool
	Conflict  bool
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence classifies err. A nil err stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *PersistenceError
	if errors.As(err, &existing) {
		return err
	}
	pe := &PersistenceError{Op: op, Err: err}
	if errors.Is(err, context.DeadlineExceeded) {
		pe.Retryable = true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505":
			pe.Conflict = true
		case "40001", "40P01", "55P03", "57P01", "08006", "08001":
			pe.Retryable = true
		}
	}
	return pe
}

// sectionError builds the text stored in SectionResult.Error.
func sectionError(title string, err error) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = "untitled section"
	}
	return fmt.Sprintf("section %q failed: %v", title, err)
}
