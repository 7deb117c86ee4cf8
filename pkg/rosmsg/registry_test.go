package rosmsg

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	return NewRegistry(filepath.Join("testdata", "share"))
}

// TestMD5 checks content hashes against the sums published by ROS.
func TestMD5(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"std_msgs/Header", "2176decaecbce78abc3b96ef049fabed"},
		{"geometry_msgs/Vector3", "4a842b65f413084dc2b10fb484ea7f17"},
		{"geometry_msgs/Quaternion", "a779879fadf0160734f906b8c19c7004"},
		{"geometry_msgs/Transform", "ac9eff44abf714214112b05d54a3cf9b"},
		{"geometry_msgs/TransformStamped", "b5764a33bfeb3588febc2682852579b0"},
		{"tf2_msgs/TFMessage", "94810edda583a504dfda3829e70d7eec"},
		{"diagnostic_msgs/KeyValue", "cf57fdc6617a881a88c16e768132149c"},
		{"diagnostic_msgs/DiagnosticStatus", "d0ce08bc6e5ba34c7754f563a9cabaf1"},
		{"sensor_msgs/Image", "060021388200f6f0f447d0fcd9c64743"},
	}

	reg := testRegistry(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := reg.MD5(tt.name)
			if err != nil {
				t.Fatalf("MD5(%q) error = %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("MD5(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestMD5Text(t *testing.T) {
	reg := testRegistry(t)

	text, err := reg.Text("geometry_msgs/TransformStamped")
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	want := "2176decaecbce78abc3b96ef049fabed header\n" +
		"string child_frame_id\n" +
		"ac9eff44abf714214112b05d54a3cf9b transform"
	if text != want {
		t.Errorf("Text() = %q, want %q", text, want)
	}
}

func TestMD5NotFound(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.MD5("nonexistent_msgs/Nothing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MD5() error = %v, want ErrNotFound", err)
	}
}

func TestMD5MissingNestedType(t *testing.T) {
	dir := t.TempDir()
	msgDir := filepath.Join(dir, "broken_msgs", "msg")
	if err := os.MkdirAll(msgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(msgDir, "Outer.msg"), []byte("Inner inner\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewRegistry(dir).MD5("broken_msgs/Outer")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("MD5() error = %v, want ErrNotFound", err)
	}
}

func TestRegistrySearchOrder(t *testing.T) {
	first := t.TempDir()
	msgDir := filepath.Join(first, "std_msgs", "msg")
	if err := os.MkdirAll(msgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	// A shadowing definition in an earlier search path wins.
	if err := os.WriteFile(filepath.Join(msgDir, "Header.msg"), []byte("uint32 seq\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(first, filepath.Join("testdata", "share"))
	spec, err := reg.Spec("std_msgs/Header")
	if err != nil {
		t.Fatalf("Spec() error = %v", err)
	}
	if len(spec.Fields) != 1 {
		t.Errorf("Spec() has %d fields, want 1 from the first search path", len(spec.Fields))
	}
}

func TestSpecInvalidName(t *testing.T) {
	reg := testRegistry(t)

	for _, name := range []string{"", "Header", "/Header", "std_msgs/", "a/b/c"} {
		if _, err := reg.Spec(name); err == nil {
			t.Errorf("Spec(%q) expected error", name)
		}
	}
}
