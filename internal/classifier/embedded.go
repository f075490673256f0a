package classifier

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
)

// DefaultModelVersion is the built-in rule model.
const DefaultModelVersion = "rules-v1"

//go:embed models/*.json
var embeddedModels embed.FS

// EmbeddedLoader serves the models compiled into the binary, bound to the
// running feature schema.
type EmbeddedLoader struct {
	Schema features.Schema
}

func (l EmbeddedLoader) Load(_ context.Context, version string) (Model, error) {
	if version == "" {
		version = DefaultModelVersion
	}
	a, err := EmbeddedArtifact(version)
	if err != nil {
		return nil, err
	}
	bound, err := a.Bind(l.Schema)
	if err != nil {
		return nil, err
	}
	return NewLinearModel(bound)
}

// EmbeddedArtifact returns the unbound built-in artifact for version.
func EmbeddedArtifact(version string) (Artifact, error) {
	data, err := embeddedModels.ReadFile(path.Join("models", version+".json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Artifact{}, fmt.Errorf("%w: embedded model %q", common.ErrNotFound, version)
		}
		return Artifact{}, err
	}
	return DecodeArtifact(data)
}

// EmbeddedVersions lists the built-in model versions.
func EmbeddedVersions() []string {
	entries, _ := embeddedModels.ReadDir("models")
	var out []string
	for _, e := range entries {
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	return out
}
