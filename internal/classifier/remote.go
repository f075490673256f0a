package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Remote scoring service wire format.
type (
	describeRequest struct {
		Version string `json:"version,omitempty"`
	}
	describeResponse struct {
		Version       string   `json:"version"`
		SchemaVersion string   `json:"schema_version"`
		Labels        []string `json:"labels"`
	}
	remoteVector struct {
		Line   int                `json:"line"`
		Values map[string]float64 `json:"values"`
	}
	scoreRequest struct {
		Version       string         `json:"version"`
		SchemaVersion string         `json:"schema_version"`
		Vectors       []remoteVector `json:"vectors"`
	}
	scoreResponse struct {
		Version string      `json:"version"`
		Scores  [][]float64 `json:"scores"`
	}
)

const describeSchema = `{
  "type": "object",
  "required": ["version", "schema_version", "labels"],
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "schema_version": {"type": "string", "minLength": 1},
    "labels": {"type": "array", "minItems": 1, "items": {"type": "string"}, "uniqueItems": true}
  }
}`

const scoreSchema = `{
  "type": "object",
  "required": ["version", "scores"],
  "properties": {
    "version": {"type": "string"},
    "scores": {"type": "array", "items": {"type": "array", "items": {"type": "number"}}}
  }
}`

// RemoteConfig points at an HTTP scoring service.
type RemoteConfig struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
	Client  *http.Client
}

// RemoteLoader resolves versions against a scoring service.
type RemoteLoader struct {
	cfg      RemoteConfig
	describe *common.Schema
	score    *common.Schema
	logger   *slog.Logger
}

func NewRemoteLoader(cfg RemoteConfig, logger *slog.Logger) (*RemoteLoader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: remote classifier url is empty", common.ErrInvalidInput)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.Timeout}
	}
	ds, err := common.CompileSchema("describe.json", []byte(describeSchema))
	if err != nil {
		return nil, err
	}
	ss, err := common.CompileSchema("score.json", []byte(scoreSchema))
	if err != nil {
		return nil, err
	}
	return &RemoteLoader{cfg: cfg, describe: ds, score: ss, logger: logger}, nil
}

func (l *RemoteLoader) Load(ctx context.Context, version string) (Model, error) {
	raw, _, err := SendJSON(ctx, l.cfg.Client, l.cfg.BaseURL+"/v1/models/describe", describeRequest{Version: version}, l.cfg.Headers, l.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: describe model: %v", common.ErrCollaborator, err)
	}
	if err := l.describe.ValidateBytes(raw); err != nil {
		return nil, fmt.Errorf("describe model: %w", err)
	}
	var d describeResponse
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode describe response: %w", err)
	}
	if version != "" && d.Version != version {
		return nil, fmt.Errorf("%w: asked for model %s, service offers %s", common.ErrNotFound, version, d.Version)
	}

	m := &RemoteModel{loader: l, version: d.Version, schemaVersion: d.SchemaVersion}
	for _, name := range d.Labels {
		f := constants.FieldType(name)
		if !f.Valid() {
			return nil, fmt.Errorf("%w: remote model %s has unknown label %q", common.ErrInvalidInput, d.Version, name)
		}
		m.labels = append(m.labels, f)
	}
	return m, nil
}

// RemoteModel scores vectors through the service, pinned to one version.
type RemoteModel struct {
	loader        *RemoteLoader
	version       string
	schemaVersion string
	labels        []constants.FieldType
}

func (m *RemoteModel) Version() string               { return m.version }
func (m *RemoteModel) SchemaVersion() string         { return m.schemaVersion }
func (m *RemoteModel) Labels() []constants.FieldType { return slices.Clone(m.labels) }

func (m *RemoteModel) Score(ctx context.Context, fvs []entity.FeatureVector) ([][]float64, error) {
	req := scoreRequest{Version: m.version, SchemaVersion: m.schemaVersion}
	for _, fv := range fvs {
		if fv.SchemaVersion != m.schemaVersion {
			return nil, fmt.Errorf("%w: vector %s, model %s expects %s",
				common.ErrSchemaMismatch, fv.SchemaVersion, m.version, m.schemaVersion)
		}
		req.Vectors = append(req.Vectors, remoteVector{Line: fv.Line, Values: fv.Values})
	}

	l := m.loader
	raw, _, err := SendJSON(ctx, l.cfg.Client, l.cfg.BaseURL+"/v1/models/score", req, l.cfg.Headers, l.logger)
	if err != nil {
		return nil, fmt.Errorf("%w: score: %v", common.ErrCollaborator, err)
	}
	if err := l.score.ValidateBytes(raw); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}
	var resp scoreResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}
	if resp.Version != m.version {
		return nil, fmt.Errorf("%w: scored by %s, pinned to %s", common.ErrCollaborator, resp.Version, m.version)
	}
	if len(resp.Scores) != len(fvs) {
		return nil, fmt.Errorf("%w: got %d score rows for %d vectors", common.ErrCollaborator, len(resp.Scores), len(fvs))
	}
	for i, row := range resp.Scores {
		if len(row) != len(m.labels) {
			return nil, fmt.Errorf("%w: row %d has %d scores for %d labels", common.ErrCollaborator, i, len(row), len(m.labels))
		}
	}
	return resp.Scores, nil
}
