// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package match

import (
	"math"
	"unicode/utf8"

	"github.com/pdiddy/analog-engine/pkg/types"
)

// ScoreStrategy computes the confidence breakdown for a mechanism pair.
// Implementations must be symmetric in a and b and safe for concurrent use.
type ScoreStrategy interface {
	Name() string
	Score(a, b *types.Mechanism) types.ScoreBreakdown
}

// MultiFactorName identifies the default strategy in breakdowns.
const MultiFactorName = "multi_factor_v3"

// MultiFactor combines text similarity, domain distance, mathematical
// content and structural depth into one weighted confidence.
type MultiFactor struct {
	Weights             types.ScoreWeights
	Domains             *DomainTable
	MathLengthThreshold int
	DepthNormalizer     int
}

// NewMultiFactor returns the default strategy configured from cfg.
func NewMultiFactor(domains *DomainTable, cfg types.MatchConfig) *MultiFactor {
	mf := &MultiFactor{
		Weights:             cfg.Weights,
		Domains:             domains,
		MathLengthThreshold: cfg.MathLengthThreshold,
		DepthNormalizer:     cfg.DepthNormalizer,
	}
	if mf.Weights == (types.ScoreWeights{}) {
		mf.Weights = types.DefaultScoreWeights()
	}
	if mf.MathLengthThreshold <= 0 {
		mf.MathLengthThreshold = 100
	}
	if mf.DepthNormalizer <= 0 {
		mf.DepthNormalizer = 200
	}
	return mf
}

// Name implements ScoreStrategy.
func (mf *MultiFactor) Name() string { return MultiFactorName }

// Score implements ScoreStrategy.
func (mf *MultiFactor) Score(a, b *types.Mechanism) types.ScoreBreakdown {
	cos := CosineSimilarity(a.Embedding, b.Embedding)
	dist, bucket := mf.Domains.Distance(a.Domain, b.Domain)

	bd := types.ScoreBreakdown{
		Strategy:        MultiFactorName,
		Cosine:          cos,
		TextSimilarity:  math.Max(0, cos),
		DomainDistance:  dist,
		DomainBucket:    bucket,
		MathContent:     mf.mathContent(a, b),
		StructuralDepth: (mf.depth(a) + mf.depth(b)) / 2,
		Weights:         mf.Weights,
	}
	bd.Confidence = Confidence(bd, mf.Weights)
	return bd
}

// Confidence recomputes the weighted sum of a breakdown's components under
// w, capped at 1.
func Confidence(bd types.ScoreBreakdown, w types.ScoreWeights) float64 {
	c := w.TextSimilarity*bd.TextSimilarity +
		w.DomainDistance*bd.DomainDistance +
		w.MathContent*bd.MathContent +
		w.StructuralDepth*bd.StructuralDepth
	return math.Min(c, 1)
}

func (mf *MultiFactor) hasMath(m *types.Mechanism) bool {
	return m.HasEquation || utf8.RuneCountInString(m.MatchText()) > mf.MathLengthThreshold
}

func (mf *MultiFactor) mathContent(a, b *types.Mechanism) float64 {
	switch ma, mb := mf.hasMath(a), mf.hasMath(b); {
	case ma && mb:
		return 1
	case ma || mb:
		return 0.5
	default:
		return 0
	}
}

func (mf *MultiFactor) depth(m *types.Mechanism) float64 {
	return math.Min(float64(utf8.RuneCountInString(m.MatchText()))/float64(mf.DepthNormalizer), 1)
}
