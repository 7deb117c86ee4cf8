// topic_rewriter - schema-specific frame id rewriter (topicrelay plugin)
//
// This is the fixed template the relay compiles once per message schema. The
// source is never edited: everything schema specific is injected at link time.
//
// Build (normally done by the relay):
//
//	go build -o topic_rewriter -trimpath -ldflags "\
//	  -X main.msgInclude=tf2_msgs/TFMessage \
//	  -X main.msgPackage=tf2_msgs -X main.msgType=TFMessage \
//	  -X main.msgHashHigh=94810edda583a504 -X main.msgHashLow=dfda3829e70d7eec \
//	  -X main.searchPath=/opt/ros/noetic/share" .
//
// The artifact serves the "morph" plugin over go-plugin net/rpc. Each call
// re-serialises one message with every frame_id and child_frame_id prefixed.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/jmylchreest/topicrelay/pkg/plugin"
	"github.com/jmylchreest/topicrelay/pkg/rosmsg"
)

// Set with -ldflags -X at build time.
var (
	msgInclude  string
	msgPackage  string
	msgType     string
	msgHashHigh string
	msgHashLow  string
	searchPath  string
	version     = "dev"
)

// morph implements plugin.Morph for the schema this binary was built for.
type morph struct {
	rewriter *rosmsg.FrameRewriter
}

// Morph rewrites one serialised message.
func (m *morph) Morph(data []byte, prefix string) ([]byte, error) {
	return m.rewriter.Rewrite(data, prefix)
}

// GetMetadata returns plugin metadata.
func (m *morph) GetMetadata() (plugin.PluginInfo, error) {
	return pluginInfo(), nil
}

func pluginInfo() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:            plugin.ArtifactName,
		Schema:          msgInclude,
		MD5:             msgHashHigh + msgHashLow,
		Version:         version,
		ProtocolVersion: plugin.ProtocolVersion,
		PluginProtocol:  string(plugin.PluginTypeGoPlugin),
	}
}

// newMorph resolves the message layout and checks that the definitions found
// on this machine match the hash the binary was built for.
func newMorph() (*morph, error) {
	if msgInclude == "" || msgPackage+"/"+msgType != msgInclude {
		return nil, fmt.Errorf("built without a valid message type (msgInclude=%q, msgPackage=%q, msgType=%q)", msgInclude, msgPackage, msgType)
	}

	registry := rosmsg.NewRegistry(filepath.SplitList(searchPath)...)

	sum, err := registry.MD5(msgInclude)
	if err != nil {
		return nil, err
	}
	if want := msgHashHigh + msgHashLow; sum != want {
		return nil, fmt.Errorf("%s hashes to %s, built for %s", msgInclude, sum, want)
	}

	rewriter, err := registry.NewFrameRewriter(msgInclude)
	if err != nil {
		return nil, err
	}
	return &morph{rewriter: rewriter}, nil
}

func main() {
	// Handle --plugin-info flag.
	if len(os.Args) > 1 && os.Args[1] == "--plugin-info" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(pluginInfo()); err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding plugin info: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       plugin.ArtifactName,
		Output:     os.Stderr,
		Level:      hclog.Info,
		JSONFormat: true,
	})

	impl, err := newMorph()
	if err != nil {
		logger.Error("cannot serve topic rewriter", "schema", msgInclude, "error", err)
		os.Exit(1)
	}

	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: plugin.Handshake,
		Plugins: map[string]goplugin.Plugin{
			plugin.FactoryName: &plugin.MorphRPC{Impl: impl},
		},
		Logger: logger,
	})
}
