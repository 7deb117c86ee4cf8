package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// DetectTimeout bounds how long an artifact may take to answer --plugin-info.
const DetectTimeout = 5 * time.Second

// DetectorResult contains information about a detected rewriter artifact.
type DetectorResult struct {
	// Type indicates which protocol the artifact uses.
	Type PluginType

	// Compatible is true when the artifact's protocol version is accepted by
	// this host.
	Compatible bool

	// Reason explains why an artifact is incompatible.
	Reason string

	// PluginInfo contains metadata from --plugin-info.
	PluginInfo PluginInfo
}

// PluginInfo is a type alias to the public plugin.PluginInfo type.
// Rewriter artifacts should import github.com/jmylchreest/topicrelay/pkg/plugin directly.
type PluginInfo = plugin.PluginInfo

// DetectArtifact queries a rewriter artifact for its metadata without
// starting a plugin session.
func DetectArtifact(ctx context.Context, artifactPath string) (*DetectorResult, error) {
	ctx, cancel := context.WithTimeout(ctx, DetectTimeout)
	defer cancel()

	// Query plugin info.
	cmd := exec.CommandContext(ctx, artifactPath, "--plugin-info") // #nosec G204 -- artifact paths come from the cache root
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to query artifact: %w", err)
	}

	var info PluginInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, fmt.Errorf("failed to parse plugin info: %w", err)
	}

	result := &DetectorResult{
		PluginInfo: info,
	}

	switch info.PluginProtocol {
	case string(PluginTypeGoPlugin), "":
		result.Type = PluginTypeGoPlugin
	default:
		return nil, fmt.Errorf("unknown plugin_protocol: %s", info.PluginProtocol)
	}

	if err := CheckArtifact(info); err != nil {
		result.Reason = err.Error()
	} else {
		result.Compatible = true
	}

	return result, nil
}
