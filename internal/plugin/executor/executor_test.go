package executor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	goplugin "github.com/hashicorp/go-plugin"

	"github.com/jmylchreest/topicrelay/internal/plugin/protocol"
	"github.com/jmylchreest/topicrelay/pkg/plugin"
)

// copyTestScript copies a test script from testdata to a temporary directory.
// Returns the path to the copied script with execute permissions set.
func copyTestScript(t *testing.T, scriptName string) string {
	t.Helper()

	scriptContent, err := os.ReadFile(filepath.Join("testdata", "scripts", scriptName))
	if err != nil {
		t.Fatalf("Failed to read testdata script %s: %v", scriptName, err)
	}

	path := filepath.Join(t.TempDir(), scriptName)
	if err := os.WriteFile(path, scriptContent, 0o755); err != nil {
		t.Fatalf("Failed to write test script: %v", err)
	}
	return path
}

type stubMorph struct {
	info plugin.PluginInfo
}

func (s *stubMorph) Morph(data []byte, prefix string) ([]byte, error) {
	return append([]byte(prefix), data...), nil
}

func (s *stubMorph) GetMetadata() (plugin.PluginInfo, error) {
	return s.info, nil
}

// newTestExecutor wires a PluginExecutor to an in-memory go-plugin connection.
func newTestExecutor(t *testing.T, info plugin.PluginInfo) *PluginExecutor {
	t.Helper()

	client, _ := goplugin.TestPluginRPCConn(t, map[string]goplugin.Plugin{
		plugin.FactoryName: &plugin.MorphRPC{Impl: &stubMorph{info: info}},
	}, nil)
	t.Cleanup(func() {
		_ = client.Close()
	})

	return &PluginExecutor{path: "memory", rpcClient: client}
}

func TestLoadNonexistent(t *testing.T) {
	loader := NewLoader(hclog.NewNullLogger())
	if _, err := loader.Load("/nonexistent/topic_rewriter"); err == nil {
		t.Fatal("Expected error for nonexistent artifact")
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{name: "exits before handshake", script: "exit-early.sh"},
		{name: "malformed handshake", script: "bad-handshake.sh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := &GoPluginLoader{StartTimeout: 3 * time.Second}

			path := copyTestScript(t, tt.script)
			artifact, err := loader.Load(path)
			if err == nil {
				_ = artifact.Close()
				t.Fatal("Expected load error")
			}
			if !strings.Contains(err.Error(), path) {
				t.Errorf("error %q does not name the artifact path", err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	info := plugin.PluginInfo{
		Name:            plugin.ArtifactName,
		Schema:          "tf2_msgs/TFMessage",
		ProtocolVersion: plugin.ProtocolVersion,
	}
	executor := newTestExecutor(t, info)

	morph, err := executor.Resolve(plugin.FactoryName)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	out, err := morph.Morph([]byte("base_link"), "robot1/")
	if err != nil {
		t.Fatalf("Morph() error = %v", err)
	}
	if string(out) != "robot1/base_link" {
		t.Errorf("Morph() = %q", out)
	}
}

func TestResolveUnknownSymbol(t *testing.T) {
	executor := newTestExecutor(t, plugin.PluginInfo{ProtocolVersion: plugin.ProtocolVersion})

	if _, err := executor.Resolve("transform"); err == nil {
		t.Fatal("Expected error for unknown symbol")
	}
}

func TestResolveIncompatibleVersion(t *testing.T) {
	executor := newTestExecutor(t, plugin.PluginInfo{ProtocolVersion: "9.0.0"})

	_, err := executor.Resolve(plugin.FactoryName)
	if err == nil {
		t.Fatal("Expected error for incompatible protocol version")
	}
	if !errors.Is(err, protocol.ErrIncompatible) {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCloseIdempotent(t *testing.T) {
	executor := newTestExecutor(t, plugin.PluginInfo{ProtocolVersion: plugin.ProtocolVersion})

	if err := executor.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := executor.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := executor.Resolve(plugin.FactoryName); err == nil {
		t.Error("Resolve() after Close() should fail")
	}
}
