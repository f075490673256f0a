package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

const (
	modelsBucket = "models"
	metaBucket   = "meta"
	activeKey    = "active"
)

// ModelInfo summarizes a stored artifact.
type ModelInfo struct {
	Version       string    `json:"version"`
	SchemaVersion string    `json:"schema_version"`
	Description   string    `json:"description,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	Active        bool      `json:"active"`
}

// BoltStore keeps versioned linear model artifacts in a bbolt file.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBoltStore opens or creates the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening model store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(modelsBucket)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(metaBucket)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Save stores a bound artifact, replacing any artifact with the same version.
// The first saved artifact becomes active.
func (s *BoltStore) Save(a Artifact) error {
	if _, err := NewLinearModel(a); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshaling artifact: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(modelsBucket)).Put([]byte(a.Version), data); err != nil {
			return err
		}
		meta := tx.Bucket([]byte(metaBucket))
		if meta.Get([]byte(activeKey)) == nil {
			return meta.Put([]byte(activeKey), []byte(a.Version))
		}
		return nil
	})
}

// SetActive marks version as the default returned by Load("").
func (s *BoltStore) SetActive(version string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(modelsBucket)).Get([]byte(version)) == nil {
			return fmt.Errorf("%w: model %q", common.ErrNotFound, version)
		}
		return tx.Bucket([]byte(metaBucket)).Put([]byte(activeKey), []byte(version))
	})
}

// Active returns the default version, or "" when the store is empty.
func (s *BoltStore) Active() (string, error) {
	var v string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v = string(tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey)))
		return nil
	})
	return v, err
}

// Artifact reads the stored artifact for version.
func (s *BoltStore) Artifact(version string) (Artifact, error) {
	var a Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(modelsBucket)).Get([]byte(version))
		if data == nil {
			return fmt.Errorf("%w: model %q", common.ErrNotFound, version)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// Load implements Loader.
func (s *BoltStore) Load(_ context.Context, version string) (Model, error) {
	if version == "" {
		active, err := s.Active()
		if err != nil {
			return nil, err
		}
		if active == "" {
			return nil, fmt.Errorf("%w: model store is empty", common.ErrNotFound)
		}
		version = active
	}
	a, err := s.Artifact(version)
	if err != nil {
		return nil, err
	}
	return NewLinearModel(a)
}

// List returns stored artifacts ordered by version.
func (s *BoltStore) List() ([]ModelInfo, error) {
	infos := make([]ModelInfo, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		active := string(tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey)))
		return tx.Bucket([]byte(modelsBucket)).ForEach(func(k, v []byte) error {
			var a Artifact
			if err := json.Unmarshal(v, &a); err != nil {
				return fmt.Errorf("unmarshaling artifact %s: %w", k, err)
			}
			infos = append(infos, ModelInfo{
				Version:       a.Version,
				SchemaVersion: a.SchemaVersion,
				Description:   a.Description,
				CreatedAt:     a.CreatedAt,
				Active:        a.Version == active,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Version < infos[j].Version })
	return infos, nil
}

// Delete removes version. The active version cannot be deleted.
func (s *BoltStore) Delete(version string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if string(tx.Bucket([]byte(metaBucket)).Get([]byte(activeKey))) == version {
			return fmt.Errorf("%w: model %q is active", common.ErrInvalidInput, version)
		}
		return tx.Bucket([]byte(modelsBucket)).Delete([]byte(version))
	})
}
