package rewriter

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// ArtifactInfo describes one artifact directory under a cache root.
type ArtifactInfo struct {
	Fingerprint Fingerprint
	Dir         string

	// Path is the installed artifact, empty if none is installed.
	Path    string
	ModTime time.Time

	// Fresh is true when the artifact would be reused without a rebuild.
	Fresh bool

	// Staging lists leftover compiler outputs from interrupted builds.
	Staging []string
}

// Inventory lists the artifact directories under cacheRoot, sorted by
// schema. Entries whose names do not parse as fingerprints are skipped. A
// missing cache root yields an empty list.
func Inventory(cacheRoot, templatePath, headerPath string) ([]ArtifactInfo, error) {
	entries, err := os.ReadDir(cacheRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache root: %w", err)
	}

	ref, err := buildReference(templatePath, headerPath)
	if err != nil {
		return nil, err
	}

	var infos []ArtifactInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		fp, ok := ParseArtifactDir(entry.Name())
		if !ok {
			continue
		}

		info := ArtifactInfo{Fingerprint: fp, Dir: filepath.Join(cacheRoot, entry.Name())}

		path := filepath.Join(info.Dir, plugin.ArtifactName)
		if st, err := os.Stat(path); err == nil && st.Mode().IsRegular() {
			info.Path = path
			info.ModTime = st.ModTime()
			info.Fresh = st.ModTime().After(ref)
		}

		staging, err := filepath.Glob(filepath.Join(info.Dir, stagingPattern))
		if err != nil {
			return nil, err
		}
		info.Staging = staging

		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Fingerprint.Schema != infos[j].Fingerprint.Schema {
			return infos[i].Fingerprint.Schema < infos[j].Fingerprint.Schema
		}
		return infos[i].Fingerprint.Hash < infos[j].Fingerprint.Hash
	})
	return infos, nil
}
