package protocol

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// ErrIncompatible is wrapped by every CheckArtifact failure.
var ErrIncompatible = errors.New("incompatible rewriter protocol")

// semver is MAJOR.MINOR.PATCH.
type semver [3]int

func parseVersion(s string) (semver, error) {
	var v semver
	parts := strings.Split(s, ".")
	if len(parts) != len(v) {
		return v, fmt.Errorf("protocol version %q is not MAJOR.MINOR.PATCH", s)
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return v, fmt.Errorf("protocol version %q is not MAJOR.MINOR.PATCH", s)
		}
		v[i] = n
	}
	return v, nil
}

// CheckArtifact reports whether a rewriter artifact's metadata names a
// protocol this host accepts: the same major version as
// plugin.ProtocolVersion and no older than plugin.MinCompatibleVersion.
// Newer minor and patch versions are accepted.
func CheckArtifact(info plugin.PluginInfo) error {
	name := info.Schema
	if name == "" {
		name = info.Name
	}

	got, err := parseVersion(info.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("%w: artifact %s: %w", ErrIncompatible, name, err)
	}
	host, err := parseVersion(plugin.ProtocolVersion)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}
	floor, err := parseVersion(plugin.MinCompatibleVersion)
	if err != nil {
		return fmt.Errorf("host: %w", err)
	}

	if got[0] != host[0] {
		return fmt.Errorf("%w: artifact %s speaks %s, host requires %d.x.x",
			ErrIncompatible, name, info.ProtocolVersion, host[0])
	}
	if slices.Compare(got[:], floor[:]) < 0 {
		return fmt.Errorf("%w: artifact %s speaks %s, older than %s",
			ErrIncompatible, name, info.ProtocolVersion, plugin.MinCompatibleVersion)
	}
	return nil
}
