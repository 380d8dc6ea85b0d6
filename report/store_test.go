package report

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "runs.db")
	s, err := OpenRunStore(path)
	require.NoError(t, err)

	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	late, err := s.Put(RunRecord{Scenario: "late", Policy: "prophet", StartedAt: start.Add(time.Hour), Summary: sampleSummary()})
	require.NoError(t, err)
	assert.NotEmpty(t, late)

	early, err := s.Put(RunRecord{ID: "fixed", Scenario: "early", Policy: "epidemic", StartedAt: start})
	require.NoError(t, err)
	assert.Equal(t, "fixed", early)

	got, err := s.Get(late)
	require.NoError(t, err)
	assert.Equal(t, "late", got.Scenario)
	assert.Equal(t, 10, got.Summary.Created)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)

	runs, err := s.List()
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "early", runs[0].Scenario)
	assert.Equal(t, "late", runs[1].Scenario)
	require.NoError(t, s.Close())

	reopened, err := OpenRunStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	runs, err = reopened.List()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
