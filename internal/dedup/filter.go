// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package dedup

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/pkg/types"
)

// ErrUnrecognizedFormat is returned when a candidate document is neither a
// list nor an object with a "candidates" list.
var ErrUnrecognizedFormat = errors.New("unrecognized candidate file format")

// Stats summarizes a Filter call.
type Stats struct {
	Original        int     `json:"original_count"`
	New             int     `json:"new_count"`
	Duplicates      int     `json:"duplicates_count"`
	Repeated        int     `json:"repeated_in_batch"`
	DuplicationRate float64 `json:"duplication_rate"`
}

// Stale reports whether the duplication rate exceeds threshold, which
// suggests the corpus or registry needs re-validation.
func (s Stats) Stale(threshold float64) bool {
	return s.DuplicationRate > threshold
}

// FilterResult partitions a candidate list.
type FilterResult struct {
	New        []types.CandidatePair
	Duplicates []types.CandidatePair
	// Repeated holds candidates whose paper pair already appeared earlier in
	// the same input.
	Repeated []types.CandidatePair
	Stats    Stats
}

// Filter partitions candidates in one pass. A candidate whose paper pair is
// registered (in either order) goes to Duplicates. A later candidate for a
// paper pair already kept in this pass goes to Repeated, so each partner
// paper is surfaced once. Input order is preserved within each partition.
func (r *Registry) Filter(cands []types.CandidatePair) *FilterResult {
	res := &FilterResult{}
	kept := make(map[types.PairKey]struct{})

	for _, c := range cands {
		k := c.PairKey()
		if _, ok := r.keys[k]; ok {
			res.Duplicates = append(res.Duplicates, c)
			continue
		}
		if _, ok := kept[k]; ok {
			res.Repeated = append(res.Repeated, c)
			continue
		}
		kept[k] = struct{}{}
		res.New = append(res.New, c)
	}

	res.Stats = Stats{
		Original:   len(cands),
		New:        len(res.New),
		Duplicates: len(res.Duplicates),
		Repeated:   len(res.Repeated),
	}
	if len(cands) > 0 {
		res.Stats.DuplicationRate = float64(len(res.Duplicates)) / float64(len(cands))
	}
	return res
}

type paperRef struct {
	PaperID *int64 `json:"paper_id"`
	Domain  string `json:"domain"`
}

// wireCandidate accepts both the flat shape (paper_1_id, paper_2_id) and the
// nested shape (paper_1.paper_id, paper_2.paper_id).
type wireCandidate struct {
	ID           json.RawMessage      `json:"id"`
	Mechanism1ID int64                `json:"mechanism_1_id"`
	Mechanism2ID int64                `json:"mechanism_2_id"`
	Paper1ID     *int64               `json:"paper_1_id"`
	Paper2ID     *int64               `json:"paper_2_id"`
	Paper1       *paperRef            `json:"paper_1"`
	Paper2       *paperRef            `json:"paper_2"`
	Domain1      string               `json:"domain_1"`
	Domain2      string               `json:"domain_2"`
	Similarity   float64              `json:"similarity"`
	Confidence   float64              `json:"confidence"`
	Breakdown    types.ScoreBreakdown `json:"score_breakdown"`
}

func (w wireCandidate) normalize() (types.CandidatePair, bool) {
	c := types.CandidatePair{
		Mechanism1ID: w.Mechanism1ID,
		Mechanism2ID: w.Mechanism2ID,
		Domain1:      w.Domain1,
		Domain2:      w.Domain2,
		Similarity:   w.Similarity,
		Confidence:   w.Confidence,
		Breakdown:    w.Breakdown,
	}
	switch {
	case w.Paper1ID != nil && w.Paper2ID != nil:
		c.Paper1ID, c.Paper2ID = *w.Paper1ID, *w.Paper2ID
	case w.Paper1 != nil && w.Paper2 != nil && w.Paper1.PaperID != nil && w.Paper2.PaperID != nil:
		c.Paper1ID, c.Paper2ID = *w.Paper1.PaperID, *w.Paper2.PaperID
		if c.Domain1 == "" {
			c.Domain1 = w.Paper1.Domain
		}
		if c.Domain2 == "" {
			c.Domain2 = w.Paper2.Domain
		}
	default:
		return c, false
	}
	return c, true
}

// DecodeCandidates reads a candidate document in any accepted shape: a
// top-level list, or an object with a "candidates" list; each item either
// flat or nested. Items without recoverable paper IDs are skipped, logged,
// and counted in the second return value.
func DecodeCandidates(data []byte, logger *zap.Logger) ([]types.CandidatePair, int, error) {
	logger = logging.OrNop(logger).Named("dedup")

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		var wrapped struct {
			Candidates *[]json.RawMessage `json:"candidates"`
		}
		if err2 := json.Unmarshal(data, &wrapped); err2 != nil || wrapped.Candidates == nil {
			return nil, 0, ErrUnrecognizedFormat
		}
		items = *wrapped.Candidates
	}

	out := make([]types.CandidatePair, 0, len(items))
	skipped := 0
	for i, raw := range items {
		var w wireCandidate
		if err := json.Unmarshal(raw, &w); err != nil {
			logger.Warn("skipping malformed candidate", zap.Int("index", i), zap.Error(err))
			skipped++
			continue
		}
		c, ok := w.normalize()
		if !ok {
			logger.Warn("skipping candidate without paper ids",
				zap.Int("index", i), zap.ByteString("id", w.ID))
			skipped++
			continue
		}
		out = append(out, c)
	}
	return out, skipped, nil
}
