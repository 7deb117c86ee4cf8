package rosmsg

import (
	"crypto/md5" // #nosec G501 -- ROS content hashes are defined as MD5, not used for security
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// maxDepth bounds nested type resolution so a cyclic definition cannot
// recurse forever.
const maxDepth = 64

// ErrNotFound is returned when no search path contains a message definition.
var ErrNotFound = errors.New("message definition not found")

// Registry resolves message definitions from a list of search directories.
// A definition for "pkg/Type" is looked up as <dir>/pkg/msg/Type.msg, first
// match wins. Parsed specs and computed sums are memoised.
type Registry struct {
	searchPaths []string

	mu    sync.Mutex
	specs map[string]*Spec
	sums  map[string]string
}

// NewRegistry creates a registry over the given search directories.
func NewRegistry(searchPaths ...string) *Registry {
	return &Registry{
		searchPaths: searchPaths,
		specs:       make(map[string]*Spec),
		sums:        make(map[string]string),
	}
}

// SearchPaths returns the directories the registry searches.
func (r *Registry) SearchPaths() []string {
	return append([]string(nil), r.searchPaths...)
}

// Spec returns the parsed definition of a message type.
func (r *Registry) Spec(fullName string) (*Spec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.specLocked(fullName)
}

// MD5 returns the ROS content hash of a message type, recursing into nested
// message types.
func (r *Registry) MD5(fullName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.md5Locked(fullName, 0)
}

// Text returns the md5 text of a message type, i.e. the exact input that is
// hashed by MD5.
func (r *Registry) Text(fullName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	spec, err := r.specLocked(fullName)
	if err != nil {
		return "", err
	}
	return r.textLocked(spec, 0)
}

func (r *Registry) specLocked(fullName string) (*Spec, error) {
	if spec, ok := r.specs[fullName]; ok {
		return spec, nil
	}

	pkg, typ, ok := SplitName(fullName)
	if !ok {
		return nil, fmt.Errorf("invalid message type %q: expected package/Type", fullName)
	}

	for _, dir := range r.searchPaths {
		path := filepath.Join(dir, pkg, "msg", typ+".msg")
		data, err := os.ReadFile(path) // #nosec G304 -- path built from configured search dirs
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		spec, err := Parse(pkg, typ, data)
		if err != nil {
			return nil, err
		}
		r.specs[fullName] = spec
		return spec, nil
	}

	return nil, fmt.Errorf("%w: %s (searched %s)", ErrNotFound, fullName, strings.Join(r.searchPaths, ", "))
}

func (r *Registry) md5Locked(fullName string, depth int) (string, error) {
	if sum, ok := r.sums[fullName]; ok {
		return sum, nil
	}
	if depth > maxDepth {
		return "", fmt.Errorf("message type %s nests deeper than %d levels", fullName, maxDepth)
	}

	spec, err := r.specLocked(fullName)
	if err != nil {
		return "", err
	}

	text, err := r.textLocked(spec, depth)
	if err != nil {
		return "", err
	}

	digest := md5.Sum([]byte(text)) // #nosec G401 -- see import comment
	sum := hex.EncodeToString(digest[:])
	r.sums[fullName] = sum
	return sum, nil
}

func (r *Registry) textLocked(spec *Spec, depth int) (string, error) {
	var lines []string

	for _, c := range spec.Constants {
		lines = append(lines, fmt.Sprintf("%s %s=%s", c.Type, c.Name, c.Value))
	}

	for _, f := range spec.Fields {
		if IsBuiltin(f.Base) {
			lines = append(lines, f.Type+" "+f.Name)
			continue
		}

		sub, err := r.md5Locked(spec.ResolveType(f.Base), depth+1)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", spec.FullName(), f.Name, err)
		}
		lines = append(lines, sub+" "+f.Name)
	}

	return strings.Join(lines, "\n"), nil
}
