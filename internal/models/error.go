package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Store errors. ErrStoreUnavailable is the fail-closed signal: callers
	// on the lockout path must treat it as a denial, never as an allow.
	ErrStoreUnavailable = errors.New("key-value store unavailable")
	ErrCorruptedRecord  = errors.New("stored record is corrupted")

	// Auth decision errors
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrReauthRequired     = errors.New("step-up authentication required")
)
