package types

import "errors"

// Domain errors shared across router components.
var (
	ErrNotFound           = errors.New("not found")
	ErrWorkspaceRequired  = errors.New("workspace ID is required")
	ErrEmptyQuery         = errors.New("query cannot be empty")
	ErrVersionMismatch    = errors.New("embedding version mismatch")
	ErrBackendUnavailable = errors.New("backend unavailable")
)
