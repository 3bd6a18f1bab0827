// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/analog-engine/internal/match"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) (*Store, string) {
	t.Helper()
	tmpDir := t.TempDir()
	extracted := filepath.Join(tmpDir, "extracted")
	require.NoError(t, os.MkdirAll(extracted, 0o755))

	store, err := NewStore(types.CorpusConfig{DataDir: tmpDir, ExtractedDir: extracted}, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, extracted
}

func writeExtraction(t *testing.T, dir, name string, file types.ExtractionFile) {
	t.Helper()
	data, err := yaml.Marshal(&file)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

// touch moves a file's mtime forward so re-ingestion sees a change.
func touch(t *testing.T, path string) {
	t.Helper()
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(path, later, later))
}

func sampleFile() types.ExtractionFile {
	return types.ExtractionFile{
		Paper: types.Paper{
			ID: 42, Domain: "q-bio.PE", Title: "Contagion on contact networks",
			Abstract: "We model epidemic spreading.",
		},
		Mechanisms: []types.ExtractedMechanism{
			{
				ID:            1001,
				Description:   "Infection spreads along edges; the outbreak size follows a power law.",
				CanonicalHint: "Contagion",
			},
			{
				ID:                    1002,
				Description:           "Recovery reduces susceptible pool",
				StructuralDescription: "A depletion term $dS/dt = -\\beta SI$ slows growth.",
			},
		},
	}
}

func ingest(t *testing.T, store *Store) (IngestSummary, string) {
	t.Helper()
	var buf strings.Builder
	sum, err := store.Ingest(context.Background(), &buf)
	require.NoError(t, err)
	return sum, buf.String()
}

// --- schema tests ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)

	for _, table := range []string{"papers", "mechanisms", "mechanisms_fts", "indexing_status", "checkpoints", "checkpoint_units"} {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table,
		).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s", table)
	}
}

// --- ingest tests ---

func TestIngest(t *testing.T) {
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())

	sum, out := ingest(t, store)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 2, sum.Mechanisms)
	assert.Contains(t, out, "indexing paper-42.yaml (paper 42, 2 mechanisms)")

	mechs, err := store.Mechanisms(context.Background(), MechanismFilter{})
	require.NoError(t, err)
	require.Len(t, mechs, 2)

	m := mechs[0]
	assert.Equal(t, int64(1001), m.ID)
	assert.Equal(t, int64(42), m.PaperID)
	assert.Equal(t, "q-bio.PE", m.Domain)
	assert.Equal(t, "Contagion", m.MechanismType)
	assert.Equal(t, "diffusion_process", m.CanonicalMechanism)
	assert.False(t, m.HasEquation)
	assert.Nil(t, m.FalsePositive)
	assert.Nil(t, m.Embedding)

	// No hint: category found in the match text; equation marker detected.
	m = mechs[1]
	assert.Equal(t, "growth_process", m.CanonicalMechanism)
	assert.True(t, m.HasEquation)
}

func TestIngestSkipsUnchanged(t *testing.T) {
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	sum, out := ingest(t, store)
	assert.Equal(t, 1, sum.Skipped)
	assert.Equal(t, 0, sum.Indexed)
	assert.Contains(t, out, "skipped paper-42.yaml")
}

func TestIngestUpdateKeepsUnchangedEmbeddings(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	file := sampleFile()
	writeExtraction(t, dir, "paper-42.yaml", file)
	ingest(t, store)

	mechs, err := store.Mechanisms(ctx, MechanismFilter{})
	require.NoError(t, err)
	fp := false
	for _, m := range mechs {
		m.Embedding = []float32{1, 2, 3}
		m.FalsePositive = &fp
	}
	_, err = store.SaveEmbeddings(ctx, mechs)
	require.NoError(t, err)
	_, err = store.SaveTags(ctx, mechs)
	require.NoError(t, err)

	// Change the second mechanism, drop nothing, add a third.
	file.Mechanisms[1].Description = "Recovery removes individuals from the susceptible pool"
	file.Mechanisms = append(file.Mechanisms, types.ExtractedMechanism{ID: 1003, Description: "Vaccination lowers transmission"})
	writeExtraction(t, dir, "paper-42.yaml", file)
	touch(t, filepath.Join(dir, "paper-42.yaml"))

	sum, _ := ingest(t, store)
	assert.Equal(t, 1, sum.Updated)

	mechs, err = store.Mechanisms(ctx, MechanismFilter{})
	require.NoError(t, err)
	require.Len(t, mechs, 3)
	assert.Equal(t, []float32{1, 2, 3}, mechs[0].Embedding)
	assert.NotNil(t, mechs[0].FalsePositive)
	assert.Nil(t, mechs[1].Embedding)
	assert.Nil(t, mechs[1].FalsePositive)
	assert.Nil(t, mechs[2].Embedding)
}

func TestIngestRemovesDroppedMechanisms(t *testing.T) {
	store, dir := testSetup(t)
	file := sampleFile()
	writeExtraction(t, dir, "paper-42.yaml", file)
	ingest(t, store)

	file.Mechanisms = file.Mechanisms[:1]
	writeExtraction(t, dir, "paper-42.yaml", file)
	touch(t, filepath.Join(dir, "paper-42.yaml"))
	ingest(t, store)

	mechs, err := store.Mechanisms(context.Background(), MechanismFilter{})
	require.NoError(t, err)
	require.Len(t, mechs, 1)
	assert.Equal(t, int64(1001), mechs[0].ID)
}

func TestIngestInvalidRecords(t *testing.T) {
	store, dir := testSetup(t)

	noDomain := sampleFile()
	noDomain.Paper.Domain = ""
	writeExtraction(t, dir, "a-no-domain.yaml", noDomain)

	badMech := sampleFile()
	badMech.Paper.ID = 43
	badMech.Mechanisms[0].ID = 2001
	badMech.Mechanisms[1] = types.ExtractedMechanism{ID: 2002}
	writeExtraction(t, dir, "b-bad-mech.yaml", badMech)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "c-garbage.yaml"), []byte("paper: [unclosed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	sum, out := ingest(t, store)
	assert.Equal(t, 2, sum.Failed)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 1, sum.Mechanisms)
	assert.Equal(t, 1, sum.InvalidMechanisms)
	assert.Equal(t, 3, sum.Total())
	assert.Contains(t, out, "failed  a-no-domain.yaml: invalid paper")
	assert.Contains(t, out, "failed  c-garbage.yaml: parse error")
}

func TestIngestRejectsMechanismOwnedByAnotherPaper(t *testing.T) {
	store, dir := testSetup(t)
	writeExtraction(t, dir, "a.yaml", types.ExtractionFile{
		Paper:      types.Paper{ID: 1, Domain: "q-bio.PE"},
		Mechanisms: []types.ExtractedMechanism{{ID: 7, Description: "Infection spreads along contact edges."}},
	})
	writeExtraction(t, dir, "b.yaml", types.ExtractionFile{
		Paper: types.Paper{ID: 2, Domain: "econ.GN"},
		Mechanisms: []types.ExtractedMechanism{
			{ID: 7, Description: "Defaults cascade across interbank exposures."},
			{ID: 8, Description: "Prices overshoot when supply responds with a lag."},
		},
	})

	sum, out := ingest(t, store)
	assert.Equal(t, 2, sum.Indexed)
	assert.Equal(t, 2, sum.Mechanisms)
	assert.Equal(t, 1, sum.InvalidMechanisms)
	assert.Contains(t, out, "skipped mechanism 7 in b.yaml: owned by paper 1")

	mechs, err := store.Mechanisms(context.Background(), MechanismFilter{})
	require.NoError(t, err)
	require.Len(t, mechs, 2)
	assert.Equal(t, int64(7), mechs[0].ID)
	assert.Equal(t, int64(1), mechs[0].PaperID)
	assert.Equal(t, "q-bio.PE", mechs[0].Domain)
	assert.Equal(t, "Infection spreads along contact edges.", mechs[0].Description)
	assert.Equal(t, int64(2), mechs[1].PaperID)
}

func TestMissingPapers(t *testing.T) {
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	missing, err := store.MissingPapers(context.Background(), []int64{7, 42, 3, 7})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, missing)

	missing, err = store.MissingPapers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestIngestNoMechanism(t *testing.T) {
	store, dir := testSetup(t)
	file := sampleFile()
	file.NoMechanism = true
	writeExtraction(t, dir, "paper-42.yaml", file)

	sum, _ := ingest(t, store)
	assert.Equal(t, 1, sum.Indexed)
	assert.Equal(t, 0, sum.Mechanisms)

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Papers)
	assert.Equal(t, 0, st.Mechanisms)
}

// --- write-back tests ---

func TestSaveScoresOnlyFillsNull(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	papers, err := store.Papers(ctx)
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Nil(t, papers[0].MechanismScore)

	seven := 7
	papers[0].MechanismScore = &seven
	papers[0].ScoreCategories = []string{"feedback", "network"}
	n, err := store.SaveScores(ctx, papers)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	three := 3
	papers[0].MechanismScore = &three
	n, err = store.SaveScores(ctx, papers)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	papers, err = store.Papers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, *papers[0].MechanismScore)
	assert.Equal(t, []string{"feedback", "network"}, papers[0].ScoreCategories)

	mechs, err := store.Mechanisms(ctx, MechanismFilter{MinPaperScore: 8})
	require.NoError(t, err)
	assert.Empty(t, mechs)
	mechs, err = store.Mechanisms(ctx, MechanismFilter{MinPaperScore: 5})
	require.NoError(t, err)
	assert.Len(t, mechs, 2)
}

func TestSaveEmbeddingsNeverOverwrites(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	mechs, err := store.Mechanisms(ctx, MechanismFilter{})
	require.NoError(t, err)
	mechs[0].Embedding = []float32{0.5, 0.25}
	n, err := store.SaveEmbeddings(ctx, mechs)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mechs[0].Embedding = []float32{9, 9}
	n, err = store.SaveEmbeddings(ctx, mechs)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	m, err := store.Mechanism(ctx, mechs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, m.Embedding)

	_, err = store.Mechanism(ctx, 999999)
	assert.ErrorIs(t, err, ErrMechanismNotFound)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	mechs, err := store.Mechanisms(ctx, MechanismFilter{})
	require.NoError(t, err)
	yes := true
	mechs[1].FalsePositive = &yes
	mechs[0].Embedding = []float32{1}
	_, err = store.SaveTags(ctx, mechs)
	require.NoError(t, err)
	_, err = store.SaveEmbeddings(ctx, mechs)
	require.NoError(t, err)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Papers: 1, Mechanisms: 2, Canonical: 2, Embedded: 1, FalsePositives: 1, Untagged: 1}, st)
}

// --- search and export tests ---

func TestSearch(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	results, err := store.Search(ctx, SearchOptions{Query: "outbreak"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1001), results[0].ID)
	assert.Equal(t, "Contagion on contact networks", results[0].PaperTitle)

	// Structural descriptions are indexed too.
	results, err = store.Search(ctx, SearchOptions{Query: "depletion"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(1002), results[0].ID)

	results, err = store.Search(ctx, SearchOptions{Canonical: "growth_process"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	results, err = store.Search(ctx, SearchOptions{Domain: "econ"})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchHidesFalsePositives(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	mechs, err := store.Mechanisms(ctx, MechanismFilter{})
	require.NoError(t, err)
	yes := true
	mechs[0].FalsePositive = &yes
	_, err = store.SaveTags(ctx, mechs)
	require.NoError(t, err)

	results, err := store.Search(ctx, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = store.Search(ctx, SearchOptions{IncludeFalsePositives: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	store, dir := testSetup(t)
	writeExtraction(t, dir, "paper-42.yaml", sampleFile())
	ingest(t, store)

	path, err := store.ExportYAML(ctx, SearchOptions{})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []ExportEntry
	require.NoError(t, yaml.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "Contagion on contact networks", entries[0].PaperTitle)

	path, err = store.ExportJSON(ctx, SearchOptions{Canonical: "diffusion_process"})
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": 1001`)
	assert.NotContains(t, string(data), `"id": 1002`)
}

// --- checkpoint tests ---

func TestCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := testSetup(t)

	cp, err := store.LoadCheckpoint(ctx, "batch-1")
	require.NoError(t, err)
	assert.Nil(t, cp)

	unit := match.UnitResult{
		Index:      0,
		Candidates: []types.CandidatePair{{Mechanism1ID: 1, Mechanism2ID: 2, Paper1ID: 10, Paper2ID: 20, Confidence: 0.6}},
		Stats:      match.PairStats{Comparisons: 3, Emitted: 1},
	}
	require.NoError(t, store.SaveUnit(ctx, "batch-1", "fp-a", unit))
	require.NoError(t, store.SaveUnit(ctx, "batch-1", "fp-a", match.UnitResult{Index: 2}))

	cp, err = store.LoadCheckpoint(ctx, "batch-1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, "fp-a", cp.Fingerprint)
	assert.Equal(t, 0, cp.LastIndex)
	assert.Len(t, cp.Units, 2)
	assert.Equal(t, unit, cp.Units[0])

	// A new fingerprint discards old units.
	require.NoError(t, store.SaveUnit(ctx, "batch-1", "fp-b", match.UnitResult{Index: 1}))
	cp, err = store.LoadCheckpoint(ctx, "batch-1")
	require.NoError(t, err)
	assert.Equal(t, "fp-b", cp.Fingerprint)
	assert.Len(t, cp.Units, 1)
	assert.Equal(t, -1, cp.LastIndex)

	require.NoError(t, store.ClearCheckpoint(ctx, "batch-1"))
	cp, err = store.LoadCheckpoint(ctx, "batch-1")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestLoadCheckpointCancelled(t *testing.T) {
	store, _ := testSetup(t)
	require.NoError(t, store.SaveUnit(context.Background(), "batch-1", "fp-a", match.UnitResult{Index: 0}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cp, err := store.LoadCheckpoint(ctx, "batch-1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, cp)

	cp, err = store.LoadCheckpoint(context.Background(), "batch-1")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Len(t, cp.Units, 1)
}
