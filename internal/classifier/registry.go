package classifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Handle is a reference-counted pin on one loaded model. Callers that got a
// Handle from Acquire must Release it.
type Handle struct {
	model    Model
	topK     int
	loadedAt time.Time
	refs     atomic.Int64
	logger   *slog.Logger
}

func newHandle(m Model, topK int, logger *slog.Logger) *Handle {
	h := &Handle{model: m, topK: topK, loadedAt: time.Now(), logger: logger}
	h.refs.Store(1)
	return h
}

func (h *Handle) Version() string       { return h.model.Version() }
func (h *Handle) SchemaVersion() string { return h.model.SchemaVersion() }
func (h *Handle) LoadedAt() time.Time   { return h.loadedAt }

func (h *Handle) tryAcquire() bool {
	for {
		n := h.refs.Load()
		if n <= 0 {
			return false
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops one reference; the model is closed with the last one.
func (h *Handle) Release() {
	if h.refs.Add(-1) != 0 {
		return
	}
	if c, ok := h.model.(io.Closer); ok {
		if err := c.Close(); err != nil {
			h.logger.Warn("classifier.model.close_error", "version", h.Version(), "error", err)
		}
	}
	h.logger.Debug("classifier.model.retired", "version", h.Version())
}

func (h *Handle) Predict(ctx context.Context, fv entity.FeatureVector) (entity.PredictionResult, error) {
	out, err := h.PredictBatch(ctx, []entity.FeatureVector{fv})
	if err != nil {
		return entity.PredictionResult{}, err
	}
	return out[0], nil
}

func (h *Handle) PredictBatch(ctx context.Context, fvs []entity.FeatureVector) ([]entity.PredictionResult, error) {
	if len(fvs) == 0 {
		return nil, nil
	}
	raw, err := h.model.Score(ctx, fvs)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(fvs) {
		return nil, fmt.Errorf("model %s returned %d rows for %d vectors", h.Version(), len(raw), len(fvs))
	}
	labels := h.model.Labels()
	out := make([]entity.PredictionResult, len(fvs))
	for i := range fvs {
		p, err := NewPrediction(labels, raw[i], h.Version(), h.topK)
		if err != nil {
			return nil, fmt.Errorf("model %s line %d: %w", h.Version(), fvs[i].Line, err)
		}
		out[i] = p
	}
	return out, nil
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// SchemaVersion, when set, is required of every loaded model.
	SchemaVersion string
	TopK          int
}

// Registry is the Port implementation: one active model, swapped atomically.
// Loads are serialized; predictions never block on a load.
type Registry struct {
	loader  Loader
	cfg     RegistryConfig
	current atomic.Pointer[Handle]
	mu      sync.Mutex
	logger  *slog.Logger
}

func NewRegistry(loader Loader, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Registry{loader: loader, cfg: cfg, logger: logger}
}

// Load fetches version and makes it active. On failure the previous model
// stays active.
func (r *Registry) Load(ctx context.Context, version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	m, err := r.loader.Load(ctx, version)
	if err != nil {
		r.logger.Error("classifier.load.failed", "version", version, "error", err)
		return common.NewAppError(common.CodeModelSwap, fmt.Sprintf("load model %q", version), err)
	}
	if r.cfg.SchemaVersion != "" && m.SchemaVersion() != r.cfg.SchemaVersion {
		if c, ok := m.(io.Closer); ok {
			_ = c.Close()
		}
		err := fmt.Errorf("%w: model %s expects %s, extractor produces %s",
			common.ErrSchemaMismatch, m.Version(), m.SchemaVersion(), r.cfg.SchemaVersion)
		r.logger.Error("classifier.load.rejected", "version", m.Version(), "error", err)
		return common.NewAppError(common.CodeModelSwap, fmt.Sprintf("load model %q", version), err)
	}

	old := r.current.Swap(newHandle(m, r.cfg.TopK, r.logger))
	prev := ""
	if old != nil {
		prev = old.Version()
		old.Release()
	}
	r.logger.Info("classifier.model.active",
		"version", m.Version(),
		"previous", prev,
		"schema_version", m.SchemaVersion(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Acquire pins the active model. Every line of one document should be
// scored through a single Handle.
func (r *Registry) Acquire() (*Handle, error) {
	for {
		h := r.current.Load()
		if h == nil {
			return nil, common.ErrNoModel
		}
		if h.tryAcquire() {
			return h, nil
		}
	}
}

func (r *Registry) ActiveVersion() string {
	if h := r.current.Load(); h != nil {
		return h.Version()
	}
	return ""
}

func (r *Registry) Predict(ctx context.Context, fv entity.FeatureVector) (entity.PredictionResult, error) {
	h, err := r.Acquire()
	if err != nil {
		return entity.PredictionResult{}, err
	}
	defer h.Release()
	return h.Predict(ctx, fv)
}

func (r *Registry) PredictBatch(ctx context.Context, fvs []entity.FeatureVector) ([]entity.PredictionResult, error) {
	h, err := r.Acquire()
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return h.PredictBatch(ctx, fvs)
}
