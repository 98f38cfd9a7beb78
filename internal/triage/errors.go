package triage

import "errors"

var (
	// ErrNotFound is returned when no complaint has the requested id.
	ErrNotFound = errors.New("complaint not found")

	// ErrInvalidTransition is returned when a status or export status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrExportNotPrepared is returned by SendExport before the export gate has passed.
	ErrExportNotPrepared = errors.New("export not prepared")
)
