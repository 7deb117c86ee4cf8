package rewriter

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFingerprintSplit(t *testing.T) {
	tests := []struct {
		schema  string
		wantPkg string
		wantTyp string
		wantOK  bool
	}{
		{schema: "tf2_msgs/TFMessage", wantPkg: "tf2_msgs", wantTyp: "TFMessage", wantOK: true},
		{schema: "a/b/c", wantPkg: "a", wantTyp: "b/c", wantOK: true},
		{schema: "TFMessage"},
		{schema: "/TFMessage"},
		{schema: "tf2_msgs/"},
		{schema: ""},
	}

	for _, tt := range tests {
		t.Run(tt.schema, func(t *testing.T) {
			pkg, typ, ok := Fingerprint{Schema: tt.schema}.Split()
			if pkg != tt.wantPkg || typ != tt.wantTyp || ok != tt.wantOK {
				t.Errorf("Split() = %q, %q, %v", pkg, typ, ok)
			}
		})
	}
}

func TestFingerprintHashHalves(t *testing.T) {
	high, low := Fingerprint{Hash: tfMD5}.HashHalves()
	if high != "94810edda583a504" || low != "dfda3829e70d7eec" {
		t.Errorf("HashHalves() = %q, %q", high, low)
	}
	if high+low != tfMD5 {
		t.Error("halves do not reassemble the hash")
	}
}

func TestFingerprintValidate(t *testing.T) {
	tests := []struct {
		name    string
		fp      Fingerprint
		wantErr bool
	}{
		{name: "valid", fp: Fingerprint{Schema: tfSchema, Hash: tfMD5}},
		{name: "digit in package", fp: Fingerprint{Schema: "tf2_msgs/TFMessage", Hash: tfMD5}},
		{name: "leading digit", fp: Fingerprint{Schema: "2tf/TFMessage", Hash: tfMD5}, wantErr: true},
		{name: "dash", fp: Fingerprint{Schema: "tf-msgs/TFMessage", Hash: tfMD5}, wantErr: true},
		{name: "dot dot", fp: Fingerprint{Schema: "../TFMessage", Hash: tfMD5}, wantErr: true},
		{name: "space", fp: Fingerprint{Schema: "tf2_msgs/TF Message", Hash: tfMD5}, wantErr: true},
		{name: "non hex", fp: Fingerprint{Schema: tfSchema, Hash: "zz810edda583a504dfda3829e70d7eec"}, wantErr: true},
		{name: "long hash", fp: Fingerprint{Schema: tfSchema, Hash: tfMD5 + "00"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := tt.fp.validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMalformedSchema) {
				t.Errorf("validate() error = %v, want ErrMalformedSchema", err)
			}
		})
	}
}

func TestArtifactDirRoundTrip(t *testing.T) {
	dir := ArtifactDir("/var/cache/topicrelay", "tf2_msgs", "TFMessage", tfMD5)
	if want := "/var/cache/topicrelay/tf2_msgs___TFMessage___" + tfMD5; dir != want {
		t.Fatalf("ArtifactDir() = %s, want %s", dir, want)
	}

	fp, ok := ParseArtifactDir(filepath.Base(dir))
	if !ok || fp != (Fingerprint{Schema: tfSchema, Hash: tfMD5}) {
		t.Errorf("ParseArtifactDir() = %v, %v", fp, ok)
	}

	for _, name := range []string{"tf2_msgs___TFMessage", "a___b___c___d", "tf2_msgs___TFMessage___nothex", "lost+found"} {
		if _, ok := ParseArtifactDir(name); ok {
			t.Errorf("ParseArtifactDir(%q) accepted", name)
		}
	}
}
