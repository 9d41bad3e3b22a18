package domain

import "errors"

var (
	ErrPatternNotFound = errors.New("pattern not found")
	ErrRuleNotFound    = errors.New("rule not found")

	// ErrVersionMissing means a rule points at history that does not exist.
	// That is a data-integrity fault, never a statistical non-event.
	ErrVersionMissing = errors.New("rule version missing")
)
