package rewriter

import "errors"

// Reasons a Handle may be degraded. Handle.Reason wraps exactly one of these.
var (
	// ErrMalformedSchema means the fingerprint cannot name an artifact.
	ErrMalformedSchema = errors.New("malformed schema fingerprint")

	// ErrSchemaMismatch means the local definition is missing or hashes differently.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrBuildFailure means the artifact could not be compiled or installed.
	ErrBuildFailure = errors.New("rewriter build failed")

	// ErrLoadFailure means the artifact was installed but could not be loaded.
	ErrLoadFailure = errors.New("rewriter load failed")

	// ErrCacheClosed means Open was called after Close.
	ErrCacheClosed = errors.New("rewriter cache closed")
)
