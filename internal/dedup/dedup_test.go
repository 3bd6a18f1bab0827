// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pdiddy/analog-engine/pkg/types"
)

const registryPath = "data/discovered_pairs.json"

func writeRegistry(t *testing.T, fs afero.Fs, body string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, registryPath, []byte(body), 0o644))
}

func cand(m1, m2, p1, p2 int64, conf float64) types.CandidatePair {
	return types.CandidatePair{Mechanism1ID: m1, Mechanism2ID: m2, Paper1ID: p1, Paper2ID: p2, Confidence: conf}
}

func TestLoad_Missing(t *testing.T) {
	r, err := Load(afero.NewMemMapFs(), registryPath)
	require.NoError(t, err)
	assert.Zero(t, r.Len())
}

func TestLoad_NormalizesPairs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRegistry(t, fs, `{"discovered_pairs": [
		{"paper_1_id": 9, "paper_2_id": 4, "discovered_in_session": "s58", "similarity": 0.71, "rating": "excellent"},
		{"paper_1_id": 1, "paper_2_id": 2}
	], "metadata": {"total_pairs": 2}}`)

	r, err := Load(fs, registryPath)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())
	assert.True(t, r.Contains(4, 9))
	assert.True(t, r.Contains(9, 4))
	assert.False(t, r.Contains(1, 9))
	assert.Equal(t, []types.PairKey{{Low: 1, High: 2}, {Low: 4, High: 9}}, r.Keys())
	assert.Equal(t, "s58", r.Pairs()[0].DiscoveredInSession)
}

func TestLoad_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"duplicate in reverse order", `{"discovered_pairs": [{"paper_1_id": 1, "paper_2_id": 2}, {"paper_1_id": 2, "paper_2_id": 1}]}`},
		{"self pair", `{"discovered_pairs": [{"paper_1_id": 3, "paper_2_id": 3}]}`},
		{"missing id", `{"discovered_pairs": [{"paper_1_id": 3}]}`},
		{"count mismatch", `{"discovered_pairs": [{"paper_1_id": 1, "paper_2_id": 2}], "metadata": {"total_pairs": 5}}`},
		{"not json", `{"discovered_pairs": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeRegistry(t, fs, tt.body)
			_, err := Load(fs, registryPath)
			assert.ErrorIs(t, err, ErrCorruptRegistry)
		})
	}
}

func TestLoad_CorruptionListsAllProblems(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRegistry(t, fs, `{"discovered_pairs": [
		{"paper_1_id": 1, "paper_2_id": 2}, {"paper_1_id": 2, "paper_2_id": 1}, {"paper_1_id": 5, "paper_2_id": 5}
	]}`)
	_, err := Load(fs, registryPath)
	var ce *CorruptionError
	require.ErrorAs(t, err, &ce)
	assert.Len(t, ce.Problems, 2)
}

func TestFilter_RegistryDuplicateEitherOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRegistry(t, fs, `{"discovered_pairs": [{"paper_1_id": 20, "paper_2_id": 10}]}`)
	r, err := Load(fs, registryPath)
	require.NoError(t, err)

	cands := []types.CandidatePair{
		cand(1, 2, 10, 20, 0.9),
		cand(3, 4, 20, 10, 0.8),
		cand(5, 6, 10, 30, 0.7),
	}
	res := r.Filter(cands)
	assert.Equal(t, []types.CandidatePair{cands[2]}, res.New)
	assert.Equal(t, []types.CandidatePair{cands[0], cands[1]}, res.Duplicates)
	assert.Equal(t, 3, res.Stats.Original)
	assert.InDelta(t, 2.0/3.0, res.Stats.DuplicationRate, 1e-9)
	assert.True(t, res.Stats.Stale(0.5))
	assert.False(t, res.Stats.Stale(0.7))
}

func TestFilter_RepeatedPaperPairInBatch(t *testing.T) {
	r, err := Load(afero.NewMemMapFs(), registryPath)
	require.NoError(t, err)

	cands := []types.CandidatePair{
		cand(1, 2, 10, 20, 0.9),
		cand(7, 8, 20, 10, 0.6),
	}
	res := r.Filter(cands)
	assert.Equal(t, []types.CandidatePair{cands[0]}, res.New)
	assert.Equal(t, []types.CandidatePair{cands[1]}, res.Repeated)
	assert.Zero(t, res.Stats.DuplicationRate)
}

func TestFilter_Idempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRegistry(t, fs, `{"discovered_pairs": [{"paper_1_id": 1, "paper_2_id": 2}, {"paper_1_id": 3, "paper_2_id": 4}]}`)
	r, err := Load(fs, registryPath)
	require.NoError(t, err)

	cands := []types.CandidatePair{
		cand(1, 2, 2, 1, 0.9), cand(3, 4, 5, 6, 0.8), cand(5, 6, 4, 3, 0.7), cand(7, 8, 7, 8, 0.6),
	}
	first := r.Filter(cands)
	second := r.Filter(cands)
	assert.Equal(t, first.New, second.New)

	again := r.Filter(first.New)
	assert.Equal(t, first.New, again.New)
	assert.Empty(t, again.Duplicates)
	assert.Empty(t, again.Repeated)
}

func TestFilter_Empty(t *testing.T) {
	r, err := Load(afero.NewMemMapFs(), registryPath)
	require.NoError(t, err)
	res := r.Filter(nil)
	assert.Zero(t, res.Stats.DuplicationRate)
	assert.Empty(t, res.New)
}

// paperSet is a PaperIndex over a fixed set of IDs.
type paperSet map[int64]bool

func (s paperSet) MissingPapers(_ context.Context, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if !s[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

type failingIndex struct{}

func (failingIndex) MissingPapers(context.Context, []int64) ([]int64, error) {
	return nil, errors.New("database is locked")
}

func TestVerify(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRegistry(t, fs, `{"discovered_pairs": [
		{"paper_1_id": 2, "paper_2_id": 1},
		{"paper_1_id": 3, "paper_2_id": 9},
		{"paper_1_id": 7, "paper_2_id": 1}
	]}`)
	r, err := Load(fs, registryPath)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 7, 9}, r.PaperIDs())

	t.Run("all known", func(t *testing.T) {
		require.NoError(t, r.Verify(context.Background(), paperSet{1: true, 2: true, 3: true, 7: true, 9: true}))
	})

	t.Run("unknown papers", func(t *testing.T) {
		err := r.Verify(context.Background(), paperSet{1: true, 2: true, 3: true})
		require.ErrorIs(t, err, ErrUnknownPapers)
		var ref *ReferenceError
		require.True(t, errors.As(err, &ref))
		assert.Equal(t, []int64{7, 9}, ref.Missing)
		assert.Contains(t, err.Error(), "2 papers")
	})

	t.Run("index failure", func(t *testing.T) {
		err := r.Verify(context.Background(), failingIndex{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnknownPapers)
	})

	t.Run("empty registry", func(t *testing.T) {
		empty, err := Load(afero.NewMemMapFs(), registryPath)
		require.NoError(t, err)
		require.NoError(t, empty.Verify(context.Background(), failingIndex{}))
	})
}

func TestAppendAndSave(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeRegistry(t, fs, `{"discovered_pairs": [{"paper_1_id": 1, "paper_2_id": 2, "rating": "good"}]}`)
	r, err := Load(fs, registryPath)
	require.NoError(t, err)

	sum := r.Append([]types.DiscoveredPair{
		{Paper1ID: 2, Paper2ID: 1, Rating: "weak"},
		{Paper1ID: 5, Paper2ID: 3, DiscoveredInSession: "batch-7"},
		{Paper1ID: 5, Paper2ID: 3},
		{Paper1ID: 8, Paper2ID: 8},
		{Paper1ID: 0, Paper2ID: 4},
	})
	assert.Equal(t, AppendSummary{Added: 1, Existing: 2, Invalid: 2}, sum)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, r.Save(now))

	exists, err := afero.Exists(fs, registryPath+".tmp")
	require.NoError(t, err)
	assert.False(t, exists)

	reloaded, err := Load(fs, registryPath)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	assert.Equal(t, "good", reloaded.Pairs()[0].Rating, "existing entry unchanged")
	assert.True(t, reloaded.Contains(3, 5))

	raw, err := afero.ReadFile(fs, registryPath)
	require.NoError(t, err)
	var doc registryFile
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.NotNil(t, doc.Metadata)
	assert.Equal(t, 2, doc.Metadata.TotalPairs)
	assert.True(t, doc.Metadata.LastUpdated.Equal(now))
}

func TestDiscoveredFromCandidates(t *testing.T) {
	c := cand(1, 2, 30, 10, 0.8)
	c.Similarity = 0.66
	got := DiscoveredFromCandidates([]types.CandidatePair{c}, "batch-1")
	assert.Equal(t, []types.DiscoveredPair{{Paper1ID: 10, Paper2ID: 30, DiscoveredInSession: "batch-1", Similarity: 0.66}}, got)
}

func TestDecodeCandidates(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	t.Run("flat list", func(t *testing.T) {
		got, skipped, err := DecodeCandidates([]byte(`[
			{"mechanism_1_id": 1, "mechanism_2_id": 2, "paper_1_id": 10, "paper_2_id": 20, "confidence": 0.5}
		]`), logger)
		require.NoError(t, err)
		assert.Zero(t, skipped)
		require.Len(t, got, 1)
		assert.Equal(t, int64(10), got[0].Paper1ID)
		assert.Equal(t, 0.5, got[0].Confidence)
	})

	t.Run("wrapped nested", func(t *testing.T) {
		got, skipped, err := DecodeCandidates([]byte(`{"candidates": [
			{"paper_1": {"paper_id": 10, "domain": "q-bio"}, "paper_2": {"paper_id": 20, "domain": "econ"}, "similarity": 0.7},
			{"id": "c-9", "paper_1": {"domain": "q-bio"}},
			"not an object"
		]}`), logger)
		require.NoError(t, err)
		assert.Equal(t, 2, skipped)
		require.Len(t, got, 1)
		assert.Equal(t, types.NewPairKey(20, 10), got[0].PairKey())
		assert.Equal(t, "q-bio", got[0].Domain1)
		assert.Equal(t, "econ", got[0].Domain2)
	})

	t.Run("unrecognized", func(t *testing.T) {
		_, _, err := DecodeCandidates([]byte(`{"items": []}`), logger)
		assert.ErrorIs(t, err, ErrUnrecognizedFormat)
	})

	assert.Equal(t, 2, logs.FilterMessageSnippet("skipping").Len())
}
