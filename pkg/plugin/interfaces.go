// Package plugin provides the public API for topicrelay rewriter plugins.
package plugin

// Morph is the fixed transform contract every rewriter artifact implements.
// The artifact owns the entire parse, rewrite and re-serialise round trip for
// its schema; the host never inspects message contents.
type Morph interface {
	// Morph returns data with every embedded frame id prefixed with prefix.
	Morph(data []byte, prefix string) ([]byte, error)

	// GetMetadata returns plugin metadata.
	GetMetadata() (PluginInfo, error)
}
