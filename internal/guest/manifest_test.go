package guest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/timetable-bridge/internal/testutil"
)

const validManifest = `
name: bk-timetable
version: 1.2.0
description: HCMUT timetable row parser
wasm:
  file: parser.wasm
  size: 42
`

// writeGuest lays out a guest directory. A nil image leaves the Wasm file out.
func writeGuest(t *testing.T, manifest string, image []byte) string {
	t.Helper()
	dir := t.TempDir()
	if manifest != "" {
		if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		if err := os.WriteFile(filepath.Join(dir, "parser.wasm"), image, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestParseManifest_Valid(t *testing.T) {
	dir := writeGuest(t, validManifest, testutil.EchoGuest())

	manifest, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if manifest.Name != "bk-timetable" {
		t.Errorf("expected Name 'bk-timetable', got '%s'", manifest.Name)
	}

	if manifest.Version != "1.2.0" {
		t.Errorf("expected Version '1.2.0', got '%s'", manifest.Version)
	}

	if manifest.Description != "HCMUT timetable row parser" {
		t.Errorf("unexpected Description '%s'", manifest.Description)
	}

	if manifest.Wasm.File != "parser.wasm" {
		t.Errorf("expected Wasm.File 'parser.wasm', got '%s'", manifest.Wasm.File)
	}

	if manifest.Wasm.Size != 42 {
		t.Errorf("expected Wasm.Size 42, got %d", manifest.Wasm.Size)
	}

	if manifest.Dir() != dir {
		t.Errorf("expected Dir '%s', got '%s'", dir, manifest.Dir())
	}

	if want := filepath.Join(dir, ManifestFile); manifest.Path() != want {
		t.Errorf("expected Path '%s', got '%s'", want, manifest.Path())
	}

	if want := filepath.Join(dir, "parser.wasm"); manifest.WasmPath() != want {
		t.Errorf("expected WasmPath '%s', got '%s'", want, manifest.WasmPath())
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	dir := writeGuest(t, "", testutil.EchoGuest())

	_, err := ParseManifest(dir)
	if err == nil {
		t.Fatal("ParseManifest() should fail without a manifest")
	}

	if _, ok := err.(*ManifestNotFoundError); !ok {
		t.Errorf("expected ManifestNotFoundError, got %T", err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	dir := writeGuest(t, "name: [bk-timetable\nversion: 1", testutil.EchoGuest())

	_, err := ParseManifest(dir)
	if err == nil {
		t.Fatal("ParseManifest() should fail for invalid YAML")
	}

	if _, ok := err.(*ManifestParseError); !ok {
		t.Errorf("expected ManifestParseError, got %T", err)
	}
}

func TestParseManifest_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{
			name:     "missing name",
			manifest: "version: 1.0.0\nwasm:\n  file: parser.wasm\n",
			field:    "name",
		},
		{
			name:     "blank version",
			manifest: "name: bk\nversion: '  '\nwasm:\n  file: parser.wasm\n",
			field:    "version",
		},
		{
			name:     "missing wasm file",
			manifest: "name: bk\nversion: 1.0.0\n",
			field:    "wasm.file",
		},
		{
			name:     "wasm file outside the guest directory",
			manifest: "name: bk\nversion: 1.0.0\nwasm:\n  file: ../parser.wasm\n",
			field:    "wasm.file",
		},
		{
			name:     "negative size",
			manifest: "name: bk\nversion: 1.0.0\nwasm:\n  file: parser.wasm\n  size: -1\n",
			field:    "wasm.size",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := writeGuest(t, tc.manifest, testutil.EchoGuest())

			_, err := ParseManifest(dir)
			validationErr, ok := err.(*ManifestValidationError)
			if !ok {
				t.Fatalf("expected ManifestValidationError, got %T (%v)", err, err)
			}

			if validationErr.Field != tc.field {
				t.Errorf("expected Field '%s', got '%s'", tc.field, validationErr.Field)
			}
		})
	}
}

func TestParseManifest_WasmNotFound(t *testing.T) {
	dir := writeGuest(t, validManifest, nil)

	_, err := ParseManifest(dir)
	if err == nil {
		t.Fatal("ParseManifest() should fail for missing Wasm file")
	}

	notFound, ok := err.(*WasmNotFoundError)
	if !ok {
		t.Fatalf("expected WasmNotFoundError, got %T", err)
	}

	if notFound.WasmFile != "parser.wasm" {
		t.Errorf("expected WasmFile 'parser.wasm', got '%s'", notFound.WasmFile)
	}
}

func TestManifestForFile(t *testing.T) {
	m := manifestForFile(filepath.Join("guests", "bk_timetable.wasm"))

	if m.Name != "bk_timetable" {
		t.Errorf("expected Name 'bk_timetable', got '%s'", m.Name)
	}

	if want := filepath.Join("guests", "bk_timetable.wasm"); m.WasmPath() != want {
		t.Errorf("expected WasmPath '%s', got '%s'", want, m.WasmPath())
	}
}
