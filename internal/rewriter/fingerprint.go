// Package rewriter builds, caches and loads schema-specific topic rewriters.
//
// A rewriter is compiled once per Fingerprint from a fixed template, installed
// atomically under the cache root and loaded as a plugin process. Every failure
// along the way produces a degraded Handle that forwards messages unmodified,
// so callers never need to handle build errors.
package rewriter

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/topicrelay/internal/security"
)

// hashLen is the length of a hex encoded MD5 content hash.
const hashLen = 32

// Fingerprint identifies a message schema at a specific content version.
// Two fingerprints are equal only if both fields are equal.
type Fingerprint struct {
	// Schema is the fully qualified "package/Type" name.
	Schema string

	// Hash is the hex MD5 content hash of the definition.
	Hash string
}

func (f Fingerprint) String() string {
	return f.Schema + "@" + f.Hash
}

// Split splits the schema into package and type on the first '/'.
func (f Fingerprint) Split() (pkg, typ string, ok bool) {
	pkg, typ, ok = strings.Cut(f.Schema, "/")
	if !ok || pkg == "" || typ == "" {
		return "", "", false
	}
	return pkg, typ, true
}

// HashHalves returns the first and second half of the hash.
func (f Fingerprint) HashHalves() (high, low string) {
	mid := len(f.Hash) / 2
	return f.Hash[:mid], f.Hash[mid:]
}

// validate checks fields received from a peer before they are used as path
// components or linker definitions.
func (f Fingerprint) validate() (pkg, typ string, err error) {
	pkg, typ, ok := f.Split()
	if !ok {
		return "", "", fmt.Errorf("%w: could not split %q into package and type", ErrMalformedSchema, f.Schema)
	}
	if err := security.ValidateIdentifier(pkg); err != nil {
		return "", "", fmt.Errorf("%w: package: %w", ErrMalformedSchema, err)
	}
	if err := security.ValidateIdentifier(typ); err != nil {
		return "", "", fmt.Errorf("%w: type: %w", ErrMalformedSchema, err)
	}
	if !isHash(f.Hash) {
		return "", "", fmt.Errorf("%w: hash %q is not %d lowercase hex characters", ErrMalformedSchema, f.Hash, hashLen)
	}
	return pkg, typ, nil
}

func isHash(s string) bool {
	if len(s) != hashLen {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
