package version

import (
	"strings"
	"testing"
)

func setBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	Version, Commit, Date = version, commit, date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })
}

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		commit  string
		date    string
		want    string
		notWant string
	}{
		{"development build", "unknown", "unknown", "topicrelay version 1.2.0 (go", "commit:"},
		{"release build", "0123456789abcdef", "2025-01-02T03:04:05Z", "commit: 01234567, built: 2025-01-02T03:04:05Z", "89abcdef"},
		{"short commit", "abc", "2025-01-02T03:04:05Z", "commit: abc,", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, "1.2.0", tt.commit, tt.date)

			got := String()
			if !strings.Contains(got, tt.want) {
				t.Errorf("String() = %q, want it to contain %q", got, tt.want)
			}
			if tt.notWant != "" && strings.Contains(got, tt.notWant) {
				t.Errorf("String() = %q, should not contain %q", got, tt.notWant)
			}
			if !strings.Contains(got, "rewriter protocol") {
				t.Errorf("String() = %q, missing protocol version", got)
			}
		})
	}
}

func TestGetInfo(t *testing.T) {
	setBuild(t, "1.2.0", "abc", "now")

	info := GetInfo()
	if info.Version != "1.2.0" || info.Commit != "abc" || info.Date != "now" {
		t.Errorf("GetInfo() = %+v", info)
	}
	if info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("GetInfo() missing runtime information: %+v", info)
	}
	if Short() != "1.2.0" {
		t.Errorf("Short() = %q", Short())
	}
}
