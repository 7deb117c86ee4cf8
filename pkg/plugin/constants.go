// Package plugin provides the public API for topicrelay rewriter plugins.
package plugin

import (
	"github.com/hashicorp/go-plugin"
)

const (
	// ProtocolVersion defines the current plugin API version.
	// Format: MAJOR.MINOR.PATCH.
	// - Increment MAJOR for breaking changes (incompatible API changes).
	// - Increment MINOR for backward-compatible additions.
	// - Increment PATCH for backward-compatible bug fixes.
	ProtocolVersion = "0.1.0"

	// MinCompatibleVersion is the oldest protocol version this host can work with.
	MinCompatibleVersion = "0.1.0"

	// FactoryName is the fixed name under which every rewriter artifact
	// serves its transform. The host dispenses exactly this name.
	FactoryName = "morph"

	// ArtifactName is the file name of an installed rewriter artifact.
	ArtifactName = "topic_rewriter"
)

// Handshake is the handshake configuration for go-plugin protocol.
// This ensures that rewriter artifacts can only connect to compatible hosts.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  0, // Major version from ProtocolVersion
	MagicCookieKey:   "TOPICRELAY_PLUGIN",
	MagicCookieValue: "topic_rewriter",
}

// PluginType defines the type of plugin communication protocol.
type PluginType string

const (
	// PluginTypeGoPlugin indicates the plugin uses HashiCorp go-plugin RPC protocol.
	PluginTypeGoPlugin PluginType = "go-plugin"
)
