// Package protocol holds the host side of the rewriter plugin protocol:
// the go-plugin handshake, artifact metadata checks and detection.
package protocol

import (
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// Handshake is the handshake configuration the host uses when starting a
// rewriter artifact. It is the same value the artifact serves with.
//
// NOTE: go-plugin's ProtocolVersion is a single uint that must match exactly.
// It carries the major version from ProtocolVersion. The full semantic version
// check (including MinCompatibleVersion) happens after dispensing, via the
// plugin's metadata and CheckArtifact().
var Handshake = plugin.Handshake

// PluginType is a type alias to the public plugin.PluginType type.
type PluginType = plugin.PluginType

// PluginTypeGoPlugin indicates the plugin uses HashiCorp go-plugin RPC protocol.
const PluginTypeGoPlugin = plugin.PluginTypeGoPlugin
