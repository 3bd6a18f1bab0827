// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fpfilter implements the per-mechanism false-positive classifier.
// Implements: is_false_positive (description, mechanism type) and batch
// tagging that sets Mechanism.FalsePositive exactly once.
//
// The classifier looks at one record at a time. Cross-record overlap checks
// live in the matcher's generic-overlap prefilter.
package fpfilter

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pdiddy/analog-engine/internal/logging"
	"github.com/pdiddy/analog-engine/internal/lexicon"
	"github.com/pdiddy/analog-engine/pkg/types"
)

const (
	// MaxBlocklistRatio is the share of meaningful words that may come from
	// the false-positive vocabulary before a description is rejected.
	MaxBlocklistRatio = 0.4

	// ShortMetricLength is the length below which a description carrying a
	// digit and a blocklist term is treated as a metric.
	ShortMetricLength = 50

	minMeaningfulRunes = 5
)

// Reason explains why a description was flagged.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonLowSignalType  Reason = "low_signal_type"
	ReasonNoContent      Reason = "no_meaningful_words"
	ReasonBlocklistRatio Reason = "blocklist_ratio"
	ReasonShortMetric    Reason = "short_metric"
)

// Filter classifies mechanism descriptions.
type Filter struct {
	lex    *lexicon.Lexicon
	logger *zap.Logger
}

// New returns a filter over lex. A nil logger discards output.
func New(lex *lexicon.Lexicon, logger *zap.Logger) *Filter {
	return &Filter{lex: lex, logger: logging.OrNop(logger).Named("fpfilter")}
}

// IsFalsePositive reports whether description is boilerplate rather than a
// mechanism. mechanismType may be empty.
func (f *Filter) IsFalsePositive(description, mechanismType string) bool {
	return f.Classify(description, mechanismType) != ReasonNone
}

// Classify returns the first rule that rejects description, or ReasonNone.
func (f *Filter) Classify(description, mechanismType string) Reason {
	structural := f.lex.HasStructuralIndicator(description)

	if f.lex.IsLowSignalType(mechanismType) && !structural {
		return ReasonLowSignalType
	}

	meaningful := countMeaningfulWords(description)
	if meaningful == 0 {
		return ReasonNoContent
	}

	fpTerms := f.lex.CountFalsePositiveTerms(description)
	if float64(fpTerms)/float64(meaningful) > MaxBlocklistRatio && !structural {
		return ReasonBlocklistRatio
	}

	if utf8.RuneCountInString(description) < ShortMetricLength && hasDigit(description) && fpTerms > 0 {
		return ReasonShortMetric
	}
	return ReasonNone
}

// TagSummary reports a tagging pass.
type TagSummary struct {
	Checked       int
	FalsePositive int
	AlreadyTagged int
}

// Total returns the number of mechanisms seen.
func (s TagSummary) Total() int {
	return s.Checked + s.AlreadyTagged
}

// Tag classifies every mechanism whose FalsePositive flag is unset and sets
// it. Mechanisms that already carry a flag are left alone.
func (f *Filter) Tag(mechs []*types.Mechanism, w io.Writer) TagSummary {
	var sum TagSummary
	for _, m := range mechs {
		if m.FalsePositive != nil {
			sum.AlreadyTagged++
			continue
		}
		reason := f.Classify(m.MatchText(), m.MechanismType)
		flagged := reason != ReasonNone
		m.FalsePositive = &flagged
		sum.Checked++
		if flagged {
			sum.FalsePositive++
			f.logger.Debug("flagged mechanism",
				zap.Int64("mechanism_id", m.ID),
				zap.String("reason", string(reason)))
			fmt.Fprintf(w, "flagged %d: %s\n", m.ID, reason)
		}
	}
	fmt.Fprintf(w, "\nchecked %d, flagged %d, already tagged %d\n",
		sum.Checked, sum.FalsePositive, sum.AlreadyTagged)
	return sum
}

func countMeaningfulWords(text string) int {
	n := 0
	for _, w := range strings.Fields(text) {
		w = strings.TrimFunc(w, unicode.IsPunct)
		if utf8.RuneCountInString(w) >= minMeaningfulRunes {
			n++
		}
	}
	return n
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
