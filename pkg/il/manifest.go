package il

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest is the artifact's embedded metadata: what the artifact is and
// how to enter it, without loading any code.
type Manifest struct {
	Name    string            `yaml:"name"`
	Version string            `yaml:"version"`
	Entry   string            `yaml:"entry"`
	Exports map[string]string `yaml:"exports,omitempty"` // export name -> owning module
}

// EncodeManifest serializes the manifest to YAML.
func EncodeManifest(m Manifest) ([]byte, error) {
	out, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return out, nil
}

// DecodeManifest parses a YAML manifest.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}
