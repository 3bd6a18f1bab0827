// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ScoreWeights are the coefficients of the multi-factor confidence formula.
type ScoreWeights struct {
	TextSimilarity  float64 `json:"text_similarity" yaml:"text_similarity" mapstructure:"text_similarity" validate:"gte=0,lte=1"`
	DomainDistance  float64 `json:"domain_distance" yaml:"domain_distance" mapstructure:"domain_distance" validate:"gte=0,lte=1"`
	MathContent     float64 `json:"math_content" yaml:"math_content" mapstructure:"math_content" validate:"gte=0,lte=1"`
	StructuralDepth float64 `json:"structural_depth" yaml:"structural_depth" mapstructure:"structural_depth" validate:"gte=0,lte=1"`
}

// DefaultScoreWeights returns the 0.5/0.2/0.15/0.15 weighting.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		TextSimilarity:  0.5,
		DomainDistance:  0.2,
		MathContent:     0.15,
		StructuralDepth: 0.15,
	}
}

// ScoreBreakdown records every factor that contributed to a pair's confidence.
type ScoreBreakdown struct {
	// Strategy names the scoring strategy that produced the breakdown.
	Strategy string `json:"strategy" yaml:"strategy"`

	// Cosine is the raw cosine similarity in [-1, 1].
	Cosine float64 `json:"cosine" yaml:"cosine"`

	// TextSimilarity is the cosine similarity mapped into [0, 1].
	TextSimilarity float64 `json:"text_similarity" yaml:"text_similarity"`

	// DomainDistance is the curated distance between the two domains.
	DomainDistance float64 `json:"domain_distance" yaml:"domain_distance"`

	// DomainBucket names the distance-table rule that applied.
	DomainBucket string `json:"domain_bucket" yaml:"domain_bucket"`

	// MathContent is 1, 0.5 or 0.
	MathContent float64 `json:"math_content" yaml:"math_content"`

	// StructuralDepth is the averaged description-length factor.
	StructuralDepth float64 `json:"structural_depth" yaml:"structural_depth"`

	// Weights are the coefficients used for this breakdown.
	Weights ScoreWeights `json:"weights" yaml:"weights"`

	// Confidence is the weighted sum, capped at 1.
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// CandidatePair is a computed cross-domain pair. Mechanism1ID is always
// smaller than Mechanism2ID and Domain1 differs from Domain2.
type CandidatePair struct {
	Mechanism1ID int64          `json:"mechanism_1_id" yaml:"mechanism_1_id"`
	Mechanism2ID int64          `json:"mechanism_2_id" yaml:"mechanism_2_id"`
	Paper1ID     int64          `json:"paper_1_id" yaml:"paper_1_id"`
	Paper2ID     int64          `json:"paper_2_id" yaml:"paper_2_id"`
	Domain1      string         `json:"domain_1" yaml:"domain_1"`
	Domain2      string         `json:"domain_2" yaml:"domain_2"`
	Similarity   float64        `json:"similarity" yaml:"similarity"`
	Confidence   float64        `json:"confidence" yaml:"confidence"`
	Breakdown    ScoreBreakdown `json:"score_breakdown" yaml:"score_breakdown"`
}

// PairKey returns the normalized paper pair of the candidate.
func (c CandidatePair) PairKey() PairKey {
	return NewPairKey(c.Paper1ID, c.Paper2ID)
}

// PairKey is the unit of deduplication: a paper pair with the lower ID first.
type PairKey struct {
	Low  int64 `json:"paper_1_id" yaml:"paper_1_id"`
	High int64 `json:"paper_2_id" yaml:"paper_2_id"`
}

// NewPairKey normalizes a paper pair to (min, max) form.
func NewPairKey(a, b int64) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// DiscoveredPair is one entry of the discovery registry.
type DiscoveredPair struct {
	Paper1ID            int64   `json:"paper_1_id" yaml:"paper_1_id" validate:"required"`
	Paper2ID            int64   `json:"paper_2_id" yaml:"paper_2_id" validate:"required"`
	DiscoveredInSession string  `json:"discovered_in_session,omitempty" yaml:"discovered_in_session,omitempty"`
	Similarity          float64 `json:"similarity,omitempty" yaml:"similarity,omitempty"`
	Rating              string  `json:"rating,omitempty" yaml:"rating,omitempty"`
}

// Key returns the normalized pair key.
func (d DiscoveredPair) Key() PairKey {
	return NewPairKey(d.Paper1ID, d.Paper2ID)
}

// FilterOutcome is "passed" or "failed" in audit records.
type FilterOutcome string

const (
	FilterPassed FilterOutcome = "passed"
	FilterFailed FilterOutcome = "failed"
)

// AuditFilters records which filters a pair went through.
type AuditFilters struct {
	FalsePositiveCheck  FilterOutcome `json:"false_positive_check" yaml:"false_positive_check"`
	GenericOverlapCheck FilterOutcome `json:"generic_overlap_check" yaml:"generic_overlap_check"`
	DomainBucket        string        `json:"domain_bucket" yaml:"domain_bucket"`
	EquationBonus       bool          `json:"equation_bonus" yaml:"equation_bonus"`
	MinConfidence       float64       `json:"min_confidence" yaml:"min_confidence"`
}

// AuditRecord is the immutable decision trail for one emitted candidate.
type AuditRecord struct {
	ID                   string         `json:"id" yaml:"id"`
	BatchID              string         `json:"batch_id" yaml:"batch_id"`
	Mechanism1ID         int64          `json:"mechanism_1_id" yaml:"mechanism_1_id"`
	Mechanism2ID         int64          `json:"mechanism_2_id" yaml:"mechanism_2_id"`
	Paper1ID             int64          `json:"paper_1_id" yaml:"paper_1_id"`
	Paper2ID             int64          `json:"paper_2_id" yaml:"paper_2_id"`
	Domains              [2]string      `json:"domains" yaml:"domains"`
	Breakdown            ScoreBreakdown `json:"score_breakdown" yaml:"score_breakdown"`
	CanonicalMechanism   string         `json:"canonical_mechanism,omitempty" yaml:"canonical_mechanism,omitempty"`
	SharedHighValueTerms []string       `json:"shared_high_value_terms" yaml:"shared_high_value_terms"`
	SharedKeywords       []string       `json:"shared_keywords" yaml:"shared_keywords"`
	Filters              AuditFilters   `json:"filters" yaml:"filters"`
	LexiconVersion       string         `json:"lexicon_version" yaml:"lexicon_version"`
	CreatedAt            time.Time      `json:"created_at" yaml:"created_at"`
}

// Rating is a curator's verdict on an audited pair.
type Rating string

const (
	RatingBreakthrough  Rating = "breakthrough"
	RatingExcellent     Rating = "excellent"
	RatingGood          Rating = "good"
	RatingWeak          Rating = "weak"
	RatingFalsePositive Rating = "false_positive"
)

// ValidRatings is the set of accepted Rating values.
var ValidRatings = map[Rating]bool{
	RatingBreakthrough:  true,
	RatingExcellent:     true,
	RatingGood:          true,
	RatingWeak:          true,
	RatingFalsePositive: true,
}
