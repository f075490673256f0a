package classifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/features"
)

// FromConfig builds a Registry for the configured backend and loads the
// configured version. The returned cleanup releases backend resources.
func FromConfig(ctx context.Context, cfg common.ClassifierConfig, schema features.Schema, topK int, logger *slog.Logger) (*Registry, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		loader  Loader
		cleanup = func() {}
	)
	switch cfg.Backend {
	case "", "embedded":
		loader = EmbeddedLoader{Schema: schema}
	case "bolt":
		store, err := OpenBoltStore(cfg.StorePath)
		if err != nil {
			return nil, nil, err
		}
		loader = store
		cleanup = func() {
			if err := store.Close(); err != nil {
				logger.Warn("classifier.store.close_error", "error", err)
			}
		}
	case "remote":
		rl, err := NewRemoteLoader(RemoteConfig{BaseURL: cfg.RemoteURL, Timeout: cfg.RemoteTimeout}, logger)
		if err != nil {
			return nil, nil, err
		}
		loader = rl
	default:
		return nil, nil, fmt.Errorf("%w: unknown classifier backend %q", common.ErrInvalidInput, cfg.Backend)
	}

	reg := NewRegistry(loader, RegistryConfig{SchemaVersion: schema.Version, TopK: topK}, logger)
	if err := reg.Load(ctx, cfg.ModelVersion); err != nil {
		cleanup()
		return nil, nil, err
	}
	return reg, cleanup, nil
}
