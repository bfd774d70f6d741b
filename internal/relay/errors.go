package relay

import "github.com/pkg/errors"

// Admission and validation outcomes. The gate collapses backend
// unavailability into the same client-visible rejection as a bad token.
var (
	// ErrAuthRequired rejects a connection attempt that carried no credential.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidToken rejects a connection attempt whose credential could not
	// be verified.
	ErrInvalidToken = errors.New("invalid token")

	// ErrBackendUnavailable marks a validation attempt that failed before a
	// verdict was reached: the credential is unverifiable, not known-bad.
	ErrBackendUnavailable = errors.New("identity backend unavailable")

	// ErrMissingIdentity marks an identity backend response that lacked the
	// expected identity field.
	ErrMissingIdentity = errors.New("identity response missing user id")
)
