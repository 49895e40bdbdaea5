package badge

import (
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultCatalogYAML []byte

type catalogFile struct {
	Badges []Definition `yaml:"badges"`
}

// DecodeDefinitions reads a YAML catalog document.
func DecodeDefinitions(r io.Reader) ([]Definition, error) {
	var f catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return f.Badges, nil
}

// LoadDefinitionsFile reads a catalog file, or the built-in catalog when path
// is empty.
func LoadDefinitionsFile(path string) ([]Definition, error) {
	if path == "" {
		return DefaultDefinitions()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()
	return DecodeDefinitions(f)
}

func DefaultDefinitions() ([]Definition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(defaultCatalogYAML, &f); err != nil {
		return nil, fmt.Errorf("decode built-in catalog: %w", err)
	}
	return f.Badges, nil
}
