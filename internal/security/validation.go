// Package security provides validation utilities for untrusted input that
// reaches the filesystem or a decompressor.
package security

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrSizeLimit is returned by LimitedReader once its budget is exhausted.
var ErrSizeLimit = errors.New("decompression size limit exceeded")

// ValidateIdentifier checks that a name received from a peer is a plain
// identifier ([A-Za-z_][A-Za-z0-9_]*) and therefore safe to use as a path
// component or a linker definition.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("empty identifier")
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return fmt.Errorf("invalid character %q in identifier %q", r, name)
		}
	}
	return nil
}

// ValidatePathWithin validates a path to prevent directory traversal.
// Ensures the path stays within baseDir.
func ValidatePathWithin(path, baseDir string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	// Resolve to absolute paths
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	absBaseDir, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return fmt.Errorf("invalid base directory: %w", err)
	}

	// Ensure path is within base directory
	if !strings.HasPrefix(absPath, absBaseDir+string(filepath.Separator)) &&
		absPath != absBaseDir {
		return fmt.Errorf("path %s must be within %s (attempted path traversal)", path, baseDir)
	}

	return nil
}

// maxEmptyReads bounds consecutive (0, nil) reads at the limit.
const maxEmptyReads = 100

// LimitedReader wraps an io.Reader and limits the total bytes that can be read.
// This prevents decompression bomb attacks on relayed payloads.
type LimitedReader struct {
	R         io.Reader
	Remaining int64
}

// Read implements io.Reader with size limits. Reading past the limit fails
// with ErrSizeLimit instead of silently truncating.
func (l *LimitedReader) Read(p []byte) (int, error) {
	if l.Remaining <= 0 {
		// Distinguish an exact fit from an overrun. Empty reads are retried
		// the way bufio does before giving up.
		var next [1]byte
		for range maxEmptyReads {
			n, err := l.R.Read(next[:])
			if n > 0 {
				return 0, ErrSizeLimit
			}
			if err != nil {
				return 0, err
			}
		}
		return 0, io.ErrNoProgress
	}
	if int64(len(p)) > l.Remaining {
		p = p[:l.Remaining]
	}
	n, err := l.R.Read(p)
	l.Remaining -= int64(n)
	return n, err
}

// NewLimitedReader creates a new LimitedReader with the specified size limit.
func NewLimitedReader(r io.Reader, maxBytes int64) *LimitedReader {
	return &LimitedReader{
		R:         r,
		Remaining: maxBytes,
	}
}
