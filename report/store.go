package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"go.etcd.io/bbolt"
	"golang.org/x/exp/slices"
)

// DefaultStorePath is where runs are archived unless configured.
const DefaultStorePath = "~/.dtnsim/runs.db"

var runsBucket = []byte("runs")

// ErrRunNotFound is returned by RunStore.Get for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one archived run.
type RunRecord struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	Policy    string    `json:"policy"`
	StartedAt time.Time `json:"started_at"`
	// Wall is the real time the run took.
	Wall    time.Duration `json:"wall"`
	Summary Summary       `json:"summary"`
}

// RunStore archives run summaries in a bbolt file keyed by run id.
type RunStore struct {
	db *bbolt.DB
}

// OpenRunStore opens or creates the archive at path. "~" is expanded.
func OpenRunStore(path string) (*RunStore, error) {
	if path == "" {
		path = DefaultStorePath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("OpenRunStore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return nil, fmt.Errorf("OpenRunStore: %w", err)
	}
	db, err := bbolt.Open(expanded, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("OpenRunStore: open %s: %w", expanded, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("OpenRunStore: failed to create bucket: %w", err)
	}
	return &RunStore{db: db}, nil
}

// Close releases the file lock.
func (s *RunStore) Close() error {
	return s.db.Close()
}

// Put stores rec, assigning a fresh id when it has none, and returns the
// id used.
func (s *RunStore) Put(rec RunRecord) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("RunStore.Put: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).Put([]byte(rec.ID), data)
	})
	if err != nil {
		return "", fmt.Errorf("RunStore.Put: %w", err)
	}
	return rec.ID, nil
}

// Get loads one run.
func (s *RunStore) Get(id string) (RunRecord, error) {
	var rec RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(runsBucket).Get([]byte(id))
		if v == nil {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return json.Unmarshal(v, &rec)
	})
	return rec, err
}

// List returns every archived run, oldest first.
func (s *RunStore) List() ([]RunRecord, error) {
	var out []RunRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(runsBucket).ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("run %s: %w", k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b RunRecord) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out, nil
}
