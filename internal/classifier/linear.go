package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
)

// Artifact is the serialized form of a LinearModel.
type Artifact struct {
	Version       string                        `json:"version"`
	SchemaVersion string                        `json:"schema_version,omitempty"`
	Description   string                        `json:"description,omitempty"`
	CreatedAt     time.Time                     `json:"created_at,omitzero"`
	Labels        []string                      `json:"labels"`
	Bias          map[string]float64            `json:"bias"`
	Weights       map[string]map[string]float64 `json:"weights"`
}

// DecodeArtifact parses artifact JSON.
func DecodeArtifact(data []byte) (Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return a, nil
}

// Bind stamps an unbound artifact with the schema version after checking
// that every weight key exists in the schema. A bound artifact must already
// match the schema.
func (a Artifact) Bind(schema features.Schema) (Artifact, error) {
	if a.SchemaVersion != "" {
		if a.SchemaVersion != schema.Version {
			return Artifact{}, fmt.Errorf("%w: artifact %s built for %s, running %s",
				common.ErrSchemaMismatch, a.Version, a.SchemaVersion, schema.Version)
		}
		return a, nil
	}
	for label, ws := range a.Weights {
		for key := range ws {
			if !schema.Has(key) {
				return Artifact{}, fmt.Errorf("%w: artifact %s label %s uses unknown key %q",
					common.ErrSchemaMismatch, a.Version, label, key)
			}
		}
	}
	a.SchemaVersion = schema.Version
	return a, nil
}

// LinearModel scores each label as bias + sum(weight * value).
type LinearModel struct {
	version       string
	schemaVersion string
	labels        []constants.FieldType
	bias          []float64
	weights       []map[string]float64
}

// NewLinearModel validates a bound artifact.
func NewLinearModel(a Artifact) (*LinearModel, error) {
	if a.Version == "" {
		return nil, fmt.Errorf("%w: artifact has no version", common.ErrInvalidInput)
	}
	if a.SchemaVersion == "" {
		return nil, fmt.Errorf("%w: artifact %s is not bound to a feature schema", common.ErrInvalidInput, a.Version)
	}
	if len(a.Labels) == 0 {
		return nil, fmt.Errorf("%w: artifact %s has no labels", common.ErrInvalidInput, a.Version)
	}

	m := &LinearModel{version: a.Version, schemaVersion: a.SchemaVersion}
	for _, name := range a.Labels {
		f := constants.FieldType(name)
		if !f.Valid() {
			return nil, fmt.Errorf("%w: artifact %s has unknown label %q", common.ErrInvalidInput, a.Version, name)
		}
		if slices.Contains(m.labels, f) {
			return nil, fmt.Errorf("%w: artifact %s repeats label %q", common.ErrInvalidInput, a.Version, name)
		}
		m.labels = append(m.labels, f)
		m.bias = append(m.bias, a.Bias[name])
		m.weights = append(m.weights, a.Weights[name])
	}
	for name := range a.Weights {
		if !slices.Contains(a.Labels, name) {
			return nil, fmt.Errorf("%w: artifact %s has weights for undeclared label %q", common.ErrInvalidInput, a.Version, name)
		}
	}
	return m, nil
}

func (m *LinearModel) Version() string               { return m.version }
func (m *LinearModel) SchemaVersion() string         { return m.schemaVersion }
func (m *LinearModel) Labels() []constants.FieldType { return slices.Clone(m.labels) }

func (m *LinearModel) Score(ctx context.Context, fvs []entity.FeatureVector) ([][]float64, error) {
	out := make([][]float64, len(fvs))
	for i, fv := range fvs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if fv.SchemaVersion != m.schemaVersion {
			return nil, fmt.Errorf("%w: vector %s, model %s expects %s",
				common.ErrSchemaMismatch, fv.SchemaVersion, m.version, m.schemaVersion)
		}
		row := make([]float64, len(m.labels))
		for j := range m.labels {
			s := m.bias[j]
			for key, w := range m.weights[j] {
				s += w * fv.Values[key]
			}
			row[j] = s
		}
		out[i] = row
	}
	return out, nil
}
