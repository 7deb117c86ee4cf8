package rewriter

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/topicrelay/internal/security"
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

const (
	// dirSeparator joins package, type and hash in an artifact directory name.
	dirSeparator = "___"

	// stagingPattern names the temporary files compiler output is written to.
	stagingPattern = "tmp-*"
)

// ArtifactDir returns the directory holding the artifact for a fingerprint.
func ArtifactDir(cacheRoot, pkg, typ, hash string) string {
	return filepath.Join(cacheRoot, pkg+dirSeparator+typ+dirSeparator+hash)
}

// ArtifactPath returns the installed artifact path for a fingerprint.
func ArtifactPath(cacheRoot, pkg, typ, hash string) string {
	return filepath.Join(ArtifactDir(cacheRoot, pkg, typ, hash), plugin.ArtifactName)
}

// ParseArtifactDir recovers the fingerprint from an artifact directory name.
func ParseArtifactDir(name string) (Fingerprint, bool) {
	parts := strings.Split(name, dirSeparator)
	if len(parts) != 3 {
		return Fingerprint{}, false
	}

	fp := Fingerprint{Schema: parts[0] + "/" + parts[1], Hash: parts[2]}
	if _, _, err := fp.validate(); err != nil {
		return Fingerprint{}, false
	}
	return fp, true
}

// locate returns the artifact directory and path, checking they stay inside
// the cache root.
func locate(cacheRoot, pkg, typ, hash string) (string, string, error) {
	dir := ArtifactDir(cacheRoot, pkg, typ, hash)
	if err := security.ValidatePathWithin(dir, cacheRoot); err != nil {
		return "", "", err
	}
	return dir, filepath.Join(dir, plugin.ArtifactName), nil
}

// freshnessReference returns the newest modification time among the build
// inputs. An artifact must be strictly newer to be reused.
func freshnessReference(inputs ...string) (time.Time, error) {
	var ref time.Time
	for _, path := range inputs {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to stat build input: %w", err)
		}
		if info.ModTime().After(ref) {
			ref = info.ModTime()
		}
	}
	return ref, nil
}

// isFresh reports whether path exists and is newer than ref.
func isFresh(path string, ref time.Time) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.ModTime().After(ref)
}

// stage creates an empty, uniquely named staging file in dir.
func stage(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 -- artifacts are executables shared by all users of the cache
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	f, err := os.CreateTemp(dir, stagingPattern)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close staging file: %w", err)
	}
	return f.Name(), nil
}

// install atomically replaces path with the staged file.
func install(staged, path string) error {
	if err := os.Rename(staged, path); err != nil {
		return fmt.Errorf("failed to install artifact: %w", err)
	}
	return nil
}
