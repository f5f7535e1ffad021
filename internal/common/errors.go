// Package common defines shared constants and sentinel errors used across
// FileVault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Account errors.
	ErrorAccountExists = errors.New("account already exists")

	// Upload errors.
	ErrorBadMultipart   = errors.New("malformed multipart request")
	ErrorDigestMismatch = errors.New("declared and computed digests do not match")
	ErrorPartialDelete  = errors.New("could not delete all file versions")
)
