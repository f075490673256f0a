package patterns

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema.json
var fileSchemaJSON []byte

// File is the on-disk layout of a pattern set.
type File struct {
	Version  int          `json:"version" yaml:"version"`
	Patterns []Definition `json:"patterns" yaml:"patterns"`
}

// Parse decodes a YAML pattern file and checks it against the file schema.
func Parse(data []byte) (File, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("decode pattern yaml: %w", err)
	}
	// yaml yields ints and map[string]any; JSON gives the validator float64s.
	js, err := json.Marshal(raw)
	if err != nil {
		return File{}, fmt.Errorf("encode pattern json: %w", err)
	}
	schema, err := common.CompileSchema("patterns.schema.json", fileSchemaJSON)
	if err != nil {
		return File{}, err
	}
	if err := schema.ValidateBytes(js); err != nil {
		return File{}, err
	}
	var f File
	if err := json.Unmarshal(js, &f); err != nil {
		return File{}, fmt.Errorf("decode pattern file: %w", err)
	}
	return f, nil
}

// Load reads and builds a registry from YAML.
func Load(r io.Reader, logger *slog.Logger) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read patterns: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return New(f.Patterns, logger), nil
}

// LoadFile builds a registry from a YAML file, or the built-in set when path
// is empty.
func LoadFile(path string, logger *slog.Logger) (*Registry, error) {
	if path == "" {
		return Default(logger), nil
	}
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open patterns: %w", err)
	}
	defer fh.Close()
	return Load(fh, logger)
}

// DefaultDefinitions returns the built-in pattern set.
func DefaultDefinitions() []Definition {
	f, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded patterns invalid: %v", err))
	}
	return f.Patterns
}

// Default builds a registry over the built-in pattern set.
func Default(logger *slog.Logger) *Registry {
	return New(DefaultDefinitions(), logger)
}
