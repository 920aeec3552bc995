package guest

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the name of the manifest inside a guest directory.
const ManifestFile = "manifest.yaml"

// Manifest represents a guest's manifest.yaml.
type Manifest struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description,omitempty"`
	Wasm        WasmConfig `yaml:"wasm"`

	// Directory containing the manifest.
	dir string
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size,omitempty"` // KB
}

// ParseManifest reads and validates manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// manifestForFile describes a bare .wasm file that has no manifest.
func manifestForFile(path string) *Manifest {
	base := filepath.Base(path)
	return &Manifest{
		Name:    strings.TrimSuffix(base, filepath.Ext(base)),
		Version: "0.0.0",
		Wasm:    WasmConfig{File: base},
		dir:     filepath.Dir(path),
	}
}

// Validate checks manifest fields.
func (m *Manifest) Validate() error {
	required := []struct {
		field, value string
	}{
		{"name", m.Name},
		{"version", m.Version},
		{"wasm.file", m.Wasm.File},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   r.field,
				Message: r.field + " is required",
			}
		}
	}

	if filepath.IsAbs(m.Wasm.File) || strings.HasPrefix(filepath.Clean(m.Wasm.File), "..") {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file must be relative to the manifest directory",
		}
	}

	if m.Wasm.Size < 0 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.size",
			Message: "wasm.size must not be negative",
		}
	}

	info, err := os.Stat(m.WasmPath())
	if err != nil || info.IsDir() {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
