package protocol

import (
	"context"
	"os"
	"path/filepath"
	"testing"
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

func TestDetectArtifact(t *testing.T) {
	result, err := DetectArtifact(context.Background(), copyTestScript(t, "artifact-info.sh"))
	if err != nil {
		t.Fatalf("DetectArtifact() error = %v", err)
	}

	if result.Type != PluginTypeGoPlugin {
		t.Errorf("Type = %s, want %s", result.Type, PluginTypeGoPlugin)
	}
	if !result.Compatible {
		t.Errorf("Compatible = false (%s), want true", result.Reason)
	}
	if result.PluginInfo.Schema != "tf2_msgs/TFMessage" {
		t.Errorf("Schema = %q", result.PluginInfo.Schema)
	}
}

func TestDetectArtifactIncompatible(t *testing.T) {
	result, err := DetectArtifact(context.Background(), copyTestScript(t, "artifact-old.sh"))
	if err != nil {
		t.Fatalf("DetectArtifact() error = %v", err)
	}
	if result.Compatible {
		t.Error("Compatible = true for major version 9")
	}
	if result.Reason == "" {
		t.Error("Reason is empty for an incompatible artifact")
	}
}

func TestDetectArtifactErrors(t *testing.T) {
	if _, err := DetectArtifact(context.Background(), "/nonexistent/topic_rewriter"); err == nil {
		t.Error("Expected error for nonexistent artifact")
	}
	if _, err := DetectArtifact(context.Background(), copyTestScript(t, "artifact-garbage.sh")); err == nil {
		t.Error("Expected error for unparsable plugin info")
	}
}
