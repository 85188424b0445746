package procurement

import (
	"fmt"

	"github.com/odyssey-erp/assettrack/internal/shared"
)

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: %w", shared.ErrNotFound)
	// ErrDuplicate indicates the PO number is already persisted.
	ErrDuplicate = fmt.Errorf("procurement: purchase order number: %w", shared.ErrDuplicate)
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	LineItemID string
	Reason     string
}

func (e *ValidationError) Error() string {
	if e.LineItemID == "" {
		return fmt.Sprintf("procurement: %s", e.Reason)
	}
	return fmt.Sprintf("procurement: line item %s: %s", e.LineItemID, e.Reason)
}

// Is lets errors.Is(err, shared.ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == shared.ErrValidation
}

// ScanError reports a PDF that could not be read.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("procurement: scan %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
