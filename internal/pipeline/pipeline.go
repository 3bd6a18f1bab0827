// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs one discovery batch end to end.
// Implements: tag (false-positive filter) → embed → match → dedup → audit →
// write candidates, with per-stage summaries, the stale-registry guard and
// batch metrics.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/audit"
	"github.com/pdiddy/analog-engine/internal/corpus"
	"github.com/pdiddy/analog-engine/internal/dedup"
	"github.com/pdiddy/analog-engine/internal/embed"
	"github.com/pdiddy/analog-engine/internal/fpfilter"
	"github.com/pdiddy/analog-engine/internal/lexicon"
	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/internal/match"
	"github.com/pdiddy/analog-engine/internal/metrics"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// ErrStaleRegistry is returned when the duplication rate exceeds the stale
// threshold and the run was not forced. No output is written.
var ErrStaleRegistry = errors.New("duplication rate above stale threshold; re-validate the corpus and registry")

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Store    *corpus.Store
	Lexicon  *lexicon.Lexicon
	Strategy match.ScoreStrategy
	Trail    *audit.Trail
	// Embedder is optional. Without it mechanisms that lack an embedding
	// are skipped by the matcher.
	Embedder *embed.Service
	Fs       afero.Fs
	Metrics  *metrics.Batch
	Logger   *zap.Logger
}

// Options control one run.
type Options struct {
	// BatchID keys checkpoints and audit records. Empty generates one.
	BatchID string
	// Force writes output even when the registry looks stale or references
	// papers the corpus does not hold.
	Force bool
}

// Summary reports one run.
type Summary struct {
	BatchID    string
	Tag        fpfilter.TagSummary
	Embed      embed.Summary
	Match      match.Summary
	Candidates int
	Dedup      dedup.Stats
	Stale      bool
	Audit      audit.RecordSummary
	OutputPath string
	Duration   time.Duration

	// UnknownPapers counts registry paper IDs missing from the corpus in a
	// forced run.
	UnknownPapers int
}

// Output is the candidate document handed to curation.
type Output struct {
	BatchID        string                `json:"batch_id"`
	GeneratedAt    time.Time             `json:"generated_at"`
	Strategy       string                `json:"strategy"`
	LexiconVersion string                `json:"lexicon_version"`
	MinConfidence  float64               `json:"min_confidence"`
	Stats          dedup.Stats           `json:"stats"`
	Candidates     []types.CandidatePair `json:"candidates"`
}

// Pipeline runs batches against one corpus.
type Pipeline struct {
	cfg    types.PipelineConfig
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// New returns a pipeline.
func New(cfg types.PipelineConfig, deps Deps) *Pipeline {
	if deps.Fs == nil {
		deps.Fs = afero.NewOsFs()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewBatch()
	}
	return &Pipeline{
		cfg:    cfg,
		deps:   deps,
		logger: logging.OrNop(deps.Logger).Named("pipeline"),
		now:    time.Now,
	}
}

// Run executes one batch. A corrupt registry aborts the run before
// matching. A registry naming papers missing from the corpus aborts it too
// unless forced. A stale registry aborts before audit and output unless
// forced. An interrupted match leaves its checkpoint so the same BatchID resumes.
func (p *Pipeline) Run(ctx context.Context, opts Options, w io.Writer) (*Summary, error) {
	start := p.now()
	batchID := opts.BatchID
	if batchID == "" {
		batchID = p.now().UTC().Format("20060102") + "-" + uuid.NewString()[:8]
	}
	sum := &Summary{BatchID: batchID}
	log := p.logger.With(zap.String("batch_id", batchID))
	m := p.deps.Metrics
	fmt.Fprintf(w, "batch %s\n", batchID)

	reg, err := dedup.Load(p.deps.Fs, p.cfg.Dedup.RegistryPath)
	if err != nil {
		return sum, fmt.Errorf("loading registry: %w", err)
	}
	if err := reg.Verify(ctx, p.deps.Store); err != nil {
		var ref *dedup.ReferenceError
		if !errors.As(err, &ref) || !opts.Force {
			return sum, err
		}
		sum.UnknownPapers = len(ref.Missing)
		log.Warn("registry references papers missing from the corpus",
			zap.Int("missing", len(ref.Missing)), zap.Int64s("paper_ids", ref.Missing))
		fmt.Fprintf(w, "registry: %d papers not in the corpus (forced)\n", len(ref.Missing))
	}

	mechs, err := p.deps.Store.Mechanisms(ctx, corpus.MechanismFilter{})
	if err != nil {
		return sum, fmt.Errorf("loading mechanisms: %w", err)
	}

	fmt.Fprintln(w, "\n== tag ==")
	sum.Tag = fpfilter.New(p.deps.Lexicon, p.deps.Logger).Tag(mechs, w)
	if _, err := p.deps.Store.SaveTags(ctx, mechs); err != nil {
		return sum, fmt.Errorf("saving false-positive flags: %w", err)
	}

	if p.deps.Embedder != nil {
		fmt.Fprintln(w, "\n== embed ==")
		sum.Embed, err = p.deps.Embedder.EmbedMechanisms(ctx, mechs, w)
		if err != nil {
			return sum, err
		}
		if _, err := p.deps.Store.SaveEmbeddings(ctx, mechs); err != nil {
			return sum, fmt.Errorf("saving embeddings: %w", err)
		}
	}

	fmt.Fprintln(w, "\n== match ==")
	mc := p.cfg.Match
	matcher := match.New(p.deps.Strategy, p.deps.Lexicon, match.Options{
		MinConfidence: mc.MinConfidence,
		Scope:         mc.Scope,
		Workers:       mc.Workers,
		BatchID:       batchID,
		Checkpointer:  p.deps.Store,
	}, p.deps.Logger)
	res, err := matcher.Match(ctx, mechs, w)
	if err != nil {
		return sum, err
	}
	sum.Match = res.Summary
	sum.Candidates = len(res.Candidates)
	m.Comparisons.Add(float64(res.Summary.Pairs.Comparisons))
	m.GenericFiltered.Add(float64(res.Summary.Pairs.GenericFiltered))
	m.Candidates.Add(float64(len(res.Candidates)))
	m.Skipped(metrics.ReasonNoEmbedding, res.Summary.SkippedNoEmbedding)
	m.Skipped(metrics.ReasonFalsePositive, res.Summary.SkippedFalsePositive)

	fmt.Fprintln(w, "\n== dedup ==")
	filtered := reg.Filter(res.Candidates)
	sum.Dedup = filtered.Stats
	m.Duplicates.Add(float64(filtered.Stats.Duplicates))
	m.DuplicationRate.Set(filtered.Stats.DuplicationRate)
	fmt.Fprintf(w, "new: %d, duplicates: %d, repeated: %d, duplication rate: %.1f%%\n",
		filtered.Stats.New, filtered.Stats.Duplicates, filtered.Stats.Repeated, 100*filtered.Stats.DuplicationRate)

	if filtered.Stats.Stale(p.cfg.Dedup.StaleThreshold) {
		sum.Stale = true
		log.Warn("registry looks stale",
			zap.Float64("duplication_rate", filtered.Stats.DuplicationRate),
			zap.Float64("threshold", p.cfg.Dedup.StaleThreshold),
			zap.Bool("forced", opts.Force))
		if !opts.Force {
			p.finish(sum, start)
			return sum, fmt.Errorf("%w: %.1f%% > %.1f%%", ErrStaleRegistry,
				100*filtered.Stats.DuplicationRate, 100*p.cfg.Dedup.StaleThreshold)
		}
	}

	fmt.Fprintln(w, "\n== audit ==")
	byID := make(map[int64]*types.Mechanism, len(mechs))
	for _, mech := range mechs {
		byID[mech.ID] = mech
	}
	sum.Audit, err = p.deps.Trail.RecordBatch(ctx, batchID, filtered.New, byID, mc.MinConfidence, w)
	if err != nil {
		return sum, fmt.Errorf("recording audit trail: %w", err)
	}

	out := Output{
		BatchID:        batchID,
		GeneratedAt:    p.now().UTC(),
		Strategy:       p.deps.Strategy.Name(),
		LexiconVersion: p.deps.Lexicon.Version(),
		MinConfidence:  mc.MinConfidence,
		Stats:          filtered.Stats,
		Candidates:     filtered.New,
	}
	if out.Candidates == nil {
		out.Candidates = []types.CandidatePair{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return sum, fmt.Errorf("encoding candidates: %w", err)
	}
	if err := dedup.WriteFileAtomic(p.deps.Fs, p.cfg.Output.CandidatesPath, append(data, '\n')); err != nil {
		return sum, fmt.Errorf("writing candidates: %w", err)
	}
	sum.OutputPath = p.cfg.Output.CandidatesPath

	if err := p.deps.Store.ClearCheckpoint(ctx, batchID); err != nil {
		log.Warn("could not clear checkpoint", zap.Error(err))
	}

	p.finish(sum, start)
	fmt.Fprintf(w, "\nbatch %s: %d candidates written to %s (%d duplicates removed) in %s\n",
		batchID, len(filtered.New), sum.OutputPath, filtered.Stats.Duplicates, sum.Duration.Round(time.Millisecond))
	return sum, nil
}

// finish records the duration and writes the metrics textfile when one is
// configured. A metrics failure is logged, never returned.
func (p *Pipeline) finish(sum *Summary, start time.Time) {
	sum.Duration = p.now().Sub(start)
	p.deps.Metrics.BatchDuration.Set(sum.Duration.Seconds())
	if path := p.cfg.Output.MetricsTextfile; path != "" {
		if err := p.deps.Metrics.WriteTextfile(path); err != nil {
			p.logger.Warn("writing metrics textfile", zap.String("path", path), zap.Error(err))
		}
	}
}

// ReadOutput decodes a candidate document written by Run.
func ReadOutput(fs afero.Fs, path string) (*Output, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &out, nil
}
