// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package match implements the candidate matcher: it compares mechanisms
// across domains and emits ranked candidate pairs with a multi-factor
// confidence breakdown.
// Implements: match (mechanisms, min confidence → ranked candidates) with a
// pluggable ScoreStrategy, a curated domain-distance table, a generic-overlap
// prefilter, a bucketed worker pool, and checkpoint/resume per bucket.
package match

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/analog-engine/internal/lexicon"
	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// Uncategorized is the bucket for mechanisms with neither a canonical label
// nor a mechanism type.
const Uncategorized = "_uncategorized"

// PairStats counts pair-level decisions.
type PairStats struct {
	Comparisons     int `json:"comparisons"`
	SamePaper       int `json:"same_paper"`
	SameDomain      int `json:"same_domain"`
	GenericFiltered int `json:"generic_filtered"`
	BelowThreshold  int `json:"below_threshold"`
	Emitted         int `json:"emitted"`
}

func (s *PairStats) add(o PairStats) {
	s.Comparisons += o.Comparisons
	s.SamePaper += o.SamePaper
	s.SameDomain += o.SameDomain
	s.GenericFiltered += o.GenericFiltered
	s.BelowThreshold += o.BelowThreshold
	s.Emitted += o.Emitted
}

// Summary reports a matching run.
type Summary struct {
	Mechanisms           int
	Eligible             int
	SkippedNoEmbedding   int
	SkippedFalsePositive int
	Buckets              int
	ResumedUnits         int
	Pairs                PairStats
}

// Result is the output of Match.
type Result struct {
	Candidates []types.CandidatePair
	Summary    Summary
}

// Options configures a Matcher.
type Options struct {
	MinConfidence float64
	Scope         string
	Workers       int

	// BatchID keys the checkpoint. Checkpointing is off when BatchID is
	// empty or Checkpointer is nil.
	BatchID      string
	Checkpointer Checkpointer
}

// Matcher finds cross-domain candidate pairs.
type Matcher struct {
	strategy ScoreStrategy
	lex      *lexicon.Lexicon
	opts     Options
	logger   *zap.Logger
}

// New returns a matcher. A nil logger discards output.
func New(strategy ScoreStrategy, lex *lexicon.Lexicon, opts Options, logger *zap.Logger) *Matcher {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Scope == "" {
		opts.Scope = types.ScopeAll
	}
	return &Matcher{
		strategy: strategy,
		lex:      lex,
		opts:     opts,
		logger:   logging.OrNop(logger).Named("match"),
	}
}

type bucket struct {
	name  string
	mechs []*types.Mechanism
}

// Match compares every eligible pair and returns the candidates at or above
// the minimum confidence, sorted by confidence descending and then by
// mechanism IDs. Mechanisms without an embedding or flagged as false
// positives are skipped and counted. Progress lines go to w.
//
// When a checkpoint exists for the batch, units it already holds are reused.
// A checkpoint written for a different corpus or configuration yields
// ErrCheckpointMismatch. Cancelling ctx stops the batch after in-flight units
// are persisted.
func (m *Matcher) Match(ctx context.Context, mechs []*types.Mechanism, w io.Writer) (*Result, error) {
	sum := Summary{Mechanisms: len(mechs)}

	var eligible []*types.Mechanism
	for _, mech := range mechs {
		switch {
		case mech.IsFalsePositive():
			sum.SkippedFalsePositive++
		case !mech.HasEmbedding():
			sum.SkippedNoEmbedding++
			m.logger.Warn("skipping mechanism without embedding",
				zap.Int64("mechanism_id", mech.ID), zap.Int64("paper_id", mech.PaperID))
			fmt.Fprintf(w, "skipped %d: no embedding\n", mech.ID)
		default:
			eligible = append(eligible, mech)
		}
	}
	sum.Eligible = len(eligible)

	buckets := bucketize(eligible)
	sum.Buckets = len(buckets)
	fingerprint := m.fingerprint(buckets)

	done := make(map[int]UnitResult)
	if cp := m.opts.Checkpointer; cp != nil && m.opts.BatchID != "" {
		saved, err := cp.LoadCheckpoint(ctx, m.opts.BatchID)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoint %s: %w", m.opts.BatchID, err)
		}
		if saved != nil {
			if saved.Fingerprint != fingerprint {
				return nil, fmt.Errorf("batch %s: %w", m.opts.BatchID, ErrCheckpointMismatch)
			}
			for i, u := range saved.Units {
				done[i] = u
			}
			sum.ResumedUnits = len(done)
			m.logger.Info("resuming batch",
				zap.String("batch_id", m.opts.BatchID),
				zap.Int("completed_units", len(done)),
				zap.Int("last_index", saved.LastIndex))
		}
	}

	if err := m.runUnits(ctx, buckets, fingerprint, done, w); err != nil {
		return nil, err
	}

	var candidates []types.CandidatePair
	for i := range buckets {
		u := done[i]
		candidates = append(candidates, u.Candidates...)
		sum.Pairs.add(u.Stats)
	}
	SortCandidates(candidates)

	fmt.Fprintf(w, "\nmatched %d mechanisms in %d buckets: %d comparisons, %d generic-filtered, %d candidates (%d skipped without embedding, %d false positives)\n",
		sum.Eligible, sum.Buckets, sum.Pairs.Comparisons, sum.Pairs.GenericFiltered,
		len(candidates), sum.SkippedNoEmbedding, sum.SkippedFalsePositive)
	return &Result{Candidates: candidates, Summary: sum}, nil
}

// runUnits runs every unit not already in done on the worker pool. A single
// collector persists finished units, so workers share no mutable state.
func (m *Matcher) runUnits(ctx context.Context, buckets []bucket, fingerprint string, done map[int]UnitResult, w io.Writer) error {
	var pending []int
	for i := range buckets {
		if _, ok := done[i]; !ok {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Finished units are saved even after cancellation.
	saveCtx := context.WithoutCancel(ctx)
	results := make(chan UnitResult)
	var saveErr error
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for u := range results {
			done[u.Index] = u
			if m.opts.Checkpointer == nil || m.opts.BatchID == "" || saveErr != nil {
				continue
			}
			if err := m.opts.Checkpointer.SaveUnit(saveCtx, m.opts.BatchID, fingerprint, u); err != nil {
				saveErr = fmt.Errorf("saving checkpoint unit %d: %w", u.Index, err)
				cancel(saveErr)
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.Workers)
	for _, idx := range pending {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			u, err := m.runUnit(gctx, buckets, idx)
			if err != nil {
				return err
			}
			select {
			case results <- u:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	werr := g.Wait()
	close(results)
	<-collected

	if saveErr != nil {
		return saveErr
	}
	if werr != nil || len(done) < len(buckets) {
		fmt.Fprintf(w, "interrupted: %d of %d buckets complete\n", len(done), len(buckets))
		if werr == nil {
			werr = context.Cause(ctx)
		}
		if werr == nil {
			werr = context.Canceled
		}
		return fmt.Errorf("matching interrupted after %d of %d buckets: %w", len(done), len(buckets), werr)
	}
	return nil
}

// runUnit compares bucket idx against itself and, in the all scope, against
// every later bucket.
func (m *Matcher) runUnit(ctx context.Context, buckets []bucket, idx int) (UnitResult, error) {
	u := UnitResult{Index: idx}
	self := buckets[idx].mechs

	for i, a := range self {
		if err := ctx.Err(); err != nil {
			return u, err
		}
		for _, b := range self[i+1:] {
			m.compare(a, b, &u)
		}
		if m.opts.Scope != types.ScopeAll {
			continue
		}
		for _, other := range buckets[idx+1:] {
			for _, b := range other.mechs {
				m.compare(a, b, &u)
			}
		}
	}
	return u, nil
}

func (m *Matcher) compare(a, b *types.Mechanism, u *UnitResult) {
	if a.ID == b.ID {
		return
	}
	if a.ID > b.ID {
		a, b = b, a
	}
	switch {
	case a.PaperID == b.PaperID:
		u.Stats.SamePaper++
		return
	case a.Domain == b.Domain:
		u.Stats.SameDomain++
		return
	case m.lex.IsGenericOnlyOverlap(a.MatchText(), b.MatchText()):
		u.Stats.GenericFiltered++
		return
	}

	u.Stats.Comparisons++
	bd := m.strategy.Score(a, b)
	if bd.Confidence < m.opts.MinConfidence {
		u.Stats.BelowThreshold++
		return
	}
	u.Stats.Emitted++
	u.Candidates = append(u.Candidates, types.CandidatePair{
		Mechanism1ID: a.ID,
		Mechanism2ID: b.ID,
		Paper1ID:     a.PaperID,
		Paper2ID:     b.PaperID,
		Domain1:      a.Domain,
		Domain2:      b.Domain,
		Similarity:   bd.TextSimilarity,
		Confidence:   bd.Confidence,
		Breakdown:    bd,
	})
}

// SortCandidates orders candidates by confidence descending, then by
// mechanism IDs ascending.
func SortCandidates(c []types.CandidatePair) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].Confidence != c[j].Confidence {
			return c[i].Confidence > c[j].Confidence
		}
		if c[i].Mechanism1ID != c[j].Mechanism1ID {
			return c[i].Mechanism1ID < c[j].Mechanism1ID
		}
		return c[i].Mechanism2ID < c[j].Mechanism2ID
	})
}

// bucketize groups mechanisms by canonical label. Buckets are sorted by
// name and their members by ID, so unit indexes are stable across runs.
func bucketize(mechs []*types.Mechanism) []bucket {
	groups := make(map[string][]*types.Mechanism)
	for _, mech := range mechs {
		key := bucketKey(mech)
		groups[key] = append(groups[key], mech)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]bucket, len(names))
	for i, name := range names {
		members := groups[name]
		sort.Slice(members, func(a, b int) bool { return members[a].ID < members[b].ID })
		out[i] = bucket{name: name, mechs: members}
	}
	return out
}

// bucketKey groups by canonical label, then by the raw mechanism type hint.
func bucketKey(mech *types.Mechanism) string {
	if mech.CanonicalMechanism != "" {
		return mech.CanonicalMechanism
	}
	if t := strings.ToLower(strings.TrimSpace(mech.MechanismType)); t != "" {
		return t
	}
	return Uncategorized
}

// fingerprint identifies the corpus partition and the options that affect
// results, so a checkpoint is only resumed against the same inputs.
func (m *Matcher) fingerprint(buckets []bucket) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%.6f\n", m.strategy.Name(), m.opts.Scope, m.opts.MinConfidence)
	for _, b := range buckets {
		fmt.Fprintf(h, "[%s]", b.name)
		for _, mech := range b.mechs {
			fmt.Fprintf(h, "%d:%d:%s:%d;", mech.ID, mech.PaperID, mech.Domain, len(mech.Embedding))
		}
		fmt.Fprintln(h)
	}
	return hex.EncodeToString(h.Sum(nil))
}
