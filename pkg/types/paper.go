// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the analog-engine pipeline:
// papers and mechanisms (corpus), candidate pairs with score breakdowns
// (matching), discovery registry entries (deduplication), audit records,
// and stage configuration.
package types

import (
	"strings"
	"time"
)

// Paper holds the metadata of an ingested paper. Papers are created by
// ingestion and mutated only to set MechanismScore.
type Paper struct {
	// ID is the numeric paper identifier shared with the discovery registry.
	ID int64 `json:"id" yaml:"id" validate:"required"`

	// Domain is the hierarchical category string (e.g. "cs.AI", "q-bio.PE").
	Domain string `json:"domain" yaml:"domain" validate:"required"`

	// Title is the paper title.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract. May be empty.
	Abstract string `json:"abstract" yaml:"abstract"`

	// MechanismScore is the mechanism-richness score (0-10). Nil until scored.
	MechanismScore *int `json:"mechanism_score,omitempty" yaml:"mechanism_score,omitempty"`

	// ScoreCategories lists the indicator categories found when scoring.
	ScoreCategories []string `json:"score_categories,omitempty" yaml:"score_categories,omitempty"`
}

// TopLevelField returns the part of the domain before the first dot
// ("cs.AI" → "cs", "q-bio" → "q-bio").
func (p Paper) TopLevelField() string {
	return TopLevelField(p.Domain)
}

// TopLevelField returns the part of a domain label before the first dot.
func TopLevelField(domain string) string {
	if i := strings.IndexByte(domain, '.'); i >= 0 {
		return domain[:i]
	}
	return domain
}

// Mechanism is a domain-neutral causal-process description extracted from
// one paper. The embedding is attached after extraction and never changes
// afterward.
type Mechanism struct {
	// ID is the mechanism identifier. Candidate pairs order on it.
	ID int64 `json:"id" yaml:"id" validate:"required"`

	// PaperID identifies the owning paper.
	PaperID int64 `json:"paper_id" yaml:"paper_id"`

	// Domain is copied from the owning paper.
	Domain string `json:"domain" yaml:"domain"`

	// Description is the mechanism as extracted.
	Description string `json:"description" yaml:"description" validate:"required"`

	// StructuralDescription is a domain-neutral paraphrase. Optional.
	StructuralDescription string `json:"structural_description,omitempty" yaml:"structural_description,omitempty"`

	// MechanismType is the raw type label supplied by extraction.
	MechanismType string `json:"mechanism_type,omitempty" yaml:"mechanism_type,omitempty"`

	// CanonicalMechanism is the normalized category label. Empty when unknown.
	CanonicalMechanism string `json:"canonical_mechanism,omitempty" yaml:"canonical_mechanism,omitempty"`

	// HasEquation reports whether the mechanism carries mathematical content.
	HasEquation bool `json:"has_equation" yaml:"has_equation"`

	// FalsePositive is set once by the false-positive filter. Nil means the
	// mechanism has not been checked yet.
	FalsePositive *bool `json:"false_positive,omitempty" yaml:"false_positive,omitempty"`

	// Embedding is the fixed-length vector for the match text. Nil until embedded.
	Embedding []float32 `json:"-" yaml:"-"`

	// CreatedAt records the extraction event.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// MatchText returns the text used for similarity, overlap and depth: the
// structural description when present, otherwise the raw description.
func (m *Mechanism) MatchText() string {
	if strings.TrimSpace(m.StructuralDescription) != "" {
		return m.StructuralDescription
	}
	return m.Description
}

// IsFalsePositive reports whether the filter flagged the mechanism.
func (m *Mechanism) IsFalsePositive() bool {
	return m.FalsePositive != nil && *m.FalsePositive
}

// HasEmbedding reports whether an embedding is attached.
func (m *Mechanism) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// ExtractedMechanism is one mechanism as produced by the external
// extraction step (human or LLM).
type ExtractedMechanism struct {
	ID                    int64  `json:"id" yaml:"id" validate:"required"`
	Description           string `json:"description" yaml:"description" validate:"required"`
	StructuralDescription string `json:"structural_description,omitempty" yaml:"structural_description,omitempty"`
	CanonicalHint         string `json:"canonical_mechanism_hint,omitempty" yaml:"canonical_mechanism_hint,omitempty"`
	HasEquation           bool   `json:"has_equation" yaml:"has_equation"`
}

// ExtractionFile is the on-disk shape of one paper's extraction output.
// NoMechanism is the explicit "nothing found" signal.
type ExtractionFile struct {
	Paper       Paper                `json:"paper" yaml:"paper"`
	Mechanisms  []ExtractedMechanism `json:"mechanisms" yaml:"mechanisms" validate:"dive"`
	NoMechanism bool                 `json:"no_mechanism,omitempty" yaml:"no_mechanism,omitempty"`
}
