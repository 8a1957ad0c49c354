package dwarfhelper

import "errors"

var (
	// ErrMalformedReference a type attribute that is not a reference into .debug_info
	ErrMalformedReference = errors.New("malformed type reference")
	// ErrDanglingReference a .debug_info reference owned by no compilation unit
	ErrDanglingReference = errors.New("reference matches no compilation unit")
	// ErrEndianMismatch the debug-link companion has another byte order than the main object
	ErrEndianMismatch = errors.New("debug link companion byte order mismatch")
)
