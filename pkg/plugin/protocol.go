// Package plugin provides the public API for topicrelay rewriter plugins.
// Rewriter artifacts should import this package instead of internal packages.
package plugin

// PluginInfo contains metadata about a rewriter artifact.
type PluginInfo struct {
	Name            string `json:"name"`
	Schema          string `json:"schema"` // "package/Type" the artifact was built for
	MD5             string `json:"md5"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocol_version"`
	PluginProtocol  string `json:"plugin_protocol"` // always "go-plugin"
}
