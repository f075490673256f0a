package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type stubModel struct {
	version string
	schema  string
	winner  constants.FieldType
	closed  atomic.Bool
}

func (m *stubModel) Version() string               { return m.version }
func (m *stubModel) SchemaVersion() string         { return m.schema }
func (m *stubModel) Labels() []constants.FieldType { return constants.AllFields() }
func (m *stubModel) Close() error                  { m.closed.Store(true); return nil }

func (m *stubModel) Score(_ context.Context, fvs []entity.FeatureVector) ([][]float64, error) {
	out := make([][]float64, len(fvs))
	for i := range fvs {
		out[i] = make([]float64, len(constants.AllFields()))
		out[i][m.winner.Index()] = 4
	}
	return out, nil
}

type stubLoader struct {
	mu     sync.Mutex
	models map[string]*stubModel
	calls  int
}

func (l *stubLoader) Load(_ context.Context, version string) (Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	m, ok := l.models[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", common.ErrNotFound, version)
	}
	return m, nil
}

var _ = Describe("Registry", func() {
	var (
		loader *stubLoader
		reg    *Registry
		v1, v2 *stubModel
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		v1 = &stubModel{version: "v1", schema: "fs1-a", winner: constants.InvoiceNumber}
		v2 = &stubModel{version: "v2", schema: "fs1-a", winner: constants.GrossTotal}
		loader = &stubLoader{models: map[string]*stubModel{
			"v1":    v1,
			"v2":    v2,
			"other": {version: "other", schema: "fs1-b", winner: constants.Other},
		}}
		reg = NewRegistry(loader, RegistryConfig{SchemaVersion: "fs1-a"}, nil)
	})

	It("refuses to predict before a model is loaded", func() {
		Expect(reg.ActiveVersion()).To(BeEmpty())
		_, err := reg.Predict(ctx, entity.FeatureVector{})
		Expect(errors.Is(err, common.ErrNoModel)).To(BeTrue())
		_, err = reg.Acquire()
		Expect(errors.Is(err, common.ErrNoModel)).To(BeTrue())
	})

	It("swaps models and tags predictions with the version", func() {
		Expect(reg.Load(ctx, "v1")).To(Succeed())
		p, err := reg.Predict(ctx, entity.FeatureVector{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Label).To(Equal(constants.InvoiceNumber))
		Expect(p.ModelVersion).To(Equal("v1"))

		Expect(reg.Load(ctx, "v2")).To(Succeed())
		Expect(reg.ActiveVersion()).To(Equal("v2"))
		p, err = reg.Predict(ctx, entity.FeatureVector{})
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Label).To(Equal(constants.GrossTotal))
		Expect(p.ModelVersion).To(Equal("v2"))
	})

	It("keeps the active model when a load fails", func() {
		Expect(reg.Load(ctx, "v1")).To(Succeed())

		err := reg.Load(ctx, "missing")
		Expect(common.CodeOf(err)).To(Equal(common.CodeModelSwap))
		Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())

		err = reg.Load(ctx, "other")
		Expect(errors.Is(err, common.ErrSchemaMismatch)).To(BeTrue())
		Expect(reg.ActiveVersion()).To(Equal("v1"))
	})

	It("lets a pinned handle finish on the old model", func() {
		Expect(reg.Load(ctx, "v1")).To(Succeed())
		h, err := reg.Acquire()
		Expect(err).NotTo(HaveOccurred())

		Expect(reg.Load(ctx, "v2")).To(Succeed())
		Expect(v1.closed.Load()).To(BeFalse())

		preds, err := h.PredictBatch(ctx, []entity.FeatureVector{{Line: 0}, {Line: 1}})
		Expect(err).NotTo(HaveOccurred())
		for _, p := range preds {
			Expect(p.ModelVersion).To(Equal("v1"))
		}

		h.Release()
		Expect(v1.closed.Load()).To(BeTrue())
		Expect(v2.closed.Load()).To(BeFalse())
	})

	It("never mixes versions within one batch while swapping", func() {
		Expect(reg.Load(ctx, "v1")).To(Succeed())
		batch := make([]entity.FeatureVector, 20)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				for j := 0; j < 50; j++ {
					preds, err := reg.PredictBatch(ctx, batch)
					Expect(err).NotTo(HaveOccurred())
					for _, p := range preds {
						Expect(p.ModelVersion).To(Equal(preds[0].ModelVersion))
					}
				}
			}()
		}
		for j := 0; j < 50; j++ {
			Expect(reg.Load(ctx, []string{"v1", "v2"}[j%2])).To(Succeed())
		}
		wg.Wait()
	})
})

var _ = Describe("BoltStore", func() {
	var (
		store *BoltStore
		a     Artifact
	)

	BeforeEach(func() {
		var err error
		store, err = OpenBoltStore(filepath.Join(GinkgoT().TempDir(), "models.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)

		a = Artifact{
			Version:       "m1",
			SchemaVersion: "fs1-a",
			Labels:        []string{"GrossTotal", "Other"},
			Bias:          map[string]float64{"Other": 1},
			Weights:       map[string]map[string]float64{"GrossTotal": {"kw.GrossTotal": 3}},
		}
	})

	It("is empty until something is saved", func() {
		_, err := store.Load(context.Background(), "")
		Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
		infos, err := store.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(BeEmpty())
	})

	It("saves, lists and loads artifacts", func() {
		Expect(store.Save(a)).To(Succeed())
		b := a
		b.Version = "m2"
		Expect(store.Save(b)).To(Succeed())

		infos, err := store.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(HaveLen(2))
		Expect(infos[0].Version).To(Equal("m1"))
		Expect(infos[0].Active).To(BeTrue())
		Expect(infos[0].CreatedAt.IsZero()).To(BeFalse())
		Expect(infos[1].Active).To(BeFalse())

		m, err := store.Load(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Version()).To(Equal("m1"))

		Expect(store.SetActive("m2")).To(Succeed())
		m, err = store.Load(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		Expect(m.Version()).To(Equal("m2"))
		Expect(m.SchemaVersion()).To(Equal("fs1-a"))
	})

	It("guards the active version", func() {
		Expect(store.Save(a)).To(Succeed())
		Expect(errors.Is(store.Delete("m1"), common.ErrInvalidInput)).To(BeTrue())
		Expect(errors.Is(store.SetActive("nope"), common.ErrNotFound)).To(BeTrue())
	})

	It("rejects unbound artifacts", func() {
		a.SchemaVersion = ""
		Expect(store.Save(a)).NotTo(Succeed())
	})
})

var _ = Describe("RemoteLoader", func() {
	var (
		srv      *httptest.Server
		scoreFor func(n int) any
		loader   *RemoteLoader
	)

	BeforeEach(func() {
		scoreFor = func(n int) any {
			rows := make([][]float64, n)
			for i := range rows {
				rows[i] = []float64{0.1, 2.5}
			}
			return map[string]any{"version": "remote-3", "scores": rows}
		}
		mux := http.NewServeMux()
		mux.HandleFunc("/v1/models/describe", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"version": "remote-3", "schema_version": "fs1-a", "labels": []string{"NetTotal", "GrossTotal"},
			})
		})
		mux.HandleFunc("/v1/models/score", func(w http.ResponseWriter, r *http.Request) {
			var req scoreRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(scoreFor(len(req.Vectors)))
		})
		srv = httptest.NewServer(mux)
		DeferCleanup(srv.Close)

		var err error
		loader, err = NewRemoteLoader(RemoteConfig{BaseURL: srv.URL + "/"}, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	It("scores through the service", func() {
		reg := NewRegistry(loader, RegistryConfig{SchemaVersion: "fs1-a"}, nil)
		Expect(reg.Load(context.Background(), "")).To(Succeed())
		Expect(reg.ActiveVersion()).To(Equal("remote-3"))

		preds, err := reg.PredictBatch(context.Background(), []entity.FeatureVector{
			{Line: 0, SchemaVersion: "fs1-a"}, {Line: 1, SchemaVersion: "fs1-a"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(preds).To(HaveLen(2))
		Expect(preds[0].Label).To(Equal(constants.GrossTotal))
		Expect(preds[0].ModelVersion).To(Equal("remote-3"))
	})

	It("rejects a version it was not asked for", func() {
		_, err := loader.Load(context.Background(), "remote-2")
		Expect(errors.Is(err, common.ErrNotFound)).To(BeTrue())
	})

	It("rejects responses that fail validation", func() {
		scoreFor = func(int) any { return map[string]any{"scores": "nope"} }
		m, err := loader.Load(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		_, err = m.Score(context.Background(), []entity.FeatureVector{{SchemaVersion: "fs1-a"}})
		Expect(errors.Is(err, common.ErrValidation)).To(BeTrue())
	})

	It("rejects rows that do not match the label set", func() {
		scoreFor = func(int) any { return map[string]any{"version": "remote-3", "scores": [][]float64{{1}}} }
		m, err := loader.Load(context.Background(), "")
		Expect(err).NotTo(HaveOccurred())
		_, err = m.Score(context.Background(), []entity.FeatureVector{{SchemaVersion: "fs1-a"}})
		Expect(errors.Is(err, common.ErrCollaborator)).To(BeTrue())
	})

	It("requires a base url", func() {
		_, err := NewRemoteLoader(RemoteConfig{}, nil)
		Expect(errors.Is(err, common.ErrInvalidInput)).To(BeTrue())
	})
})
