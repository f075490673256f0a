package classifier

import (
	"context"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// Port is what the pipeline depends on. Implementations must be safe for
// concurrent Predict calls while Load swaps the active model.
type Port interface {
	Predict(ctx context.Context, fv entity.FeatureVector) (entity.PredictionResult, error)
	PredictBatch(ctx context.Context, fvs []entity.FeatureVector) ([]entity.PredictionResult, error)
	Load(ctx context.Context, version string) error
	ActiveVersion() string
}

// Model is an immutable, versioned scorer. Score returns one raw score per
// label (in Labels order) for every vector.
type Model interface {
	Version() string
	SchemaVersion() string
	Labels() []constants.FieldType
	Score(ctx context.Context, fvs []entity.FeatureVector) ([][]float64, error)
}

// Loader resolves a model version. An empty version means the loader's default.
type Loader interface {
	Load(ctx context.Context, version string) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, version string) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, version string) (Model, error) {
	return f(ctx, version)
}
