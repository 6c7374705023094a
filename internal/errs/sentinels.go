// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrNotFound indicates the requested photo, record or derivative file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a bad upload (wrong type, corrupt data).
	ErrInvalidInput = errors.New("invalid input")

	// ErrTooLarge indicates the upload exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrTokenMalformed indicates a token that cannot be parsed or whose signature fails.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrTokenExpired indicates a token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrAccessDenied indicates an ownership mismatch between the claimed and actual owner.
	ErrAccessDenied = errors.New("access denied")
)
