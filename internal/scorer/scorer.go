// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scorer implements the mechanism-richness scorer that decides
// which papers proceed to mechanism extraction.
// Implements: score (abstract → 0-10 plus categories), batch corpus
// scoring with per-domain statistics, and extraction-candidate selection.
package scorer

import (
	_ "embed"
	"fmt"
	"io"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/analog-engine/pkg/types"
)

// MaxScore caps the richness score.
const MaxScore = 10

//go:embed indicators.yaml
var indicatorsYAML []byte

type category struct {
	Name     string   `yaml:"name"`
	Triggers []string `yaml:"triggers"`
}

// Scorer rates abstracts against a fixed, ordered indicator table.
// A Scorer is immutable after construction.
type Scorer struct {
	version    string
	categories []category
}

// Result is the outcome of scoring one abstract.
type Result struct {
	Score      int
	Categories []string
}

// New returns a scorer over the embedded indicator table.
func New() (*Scorer, error) {
	var doc struct {
		Version    string     `yaml:"version"`
		Categories []category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(indicatorsYAML, &doc); err != nil {
		return nil, fmt.Errorf("parsing indicator table: %w", err)
	}
	for i := range doc.Categories {
		for j, t := range doc.Categories[i].Triggers {
			doc.Categories[i].Triggers[j] = strings.ToLower(t)
		}
	}
	return &Scorer{version: doc.Version, categories: doc.Categories}, nil
}

// MustNew is New for callers that treat a broken embedded table as a bug.
func MustNew() *Scorer {
	s, err := New()
	if err != nil {
		panic(err)
	}
	return s
}

// Version returns the indicator table version.
func (s *Scorer) Version() string { return s.version }

// Score rates an abstract. Each indicator category found adds one point,
// three or more categories add a bonus point, five or more add another,
// and the total is capped at MaxScore. An empty abstract scores 0.
func (s *Scorer) Score(abstract string) Result {
	if strings.TrimSpace(abstract) == "" {
		return Result{}
	}
	lower := strings.ToLower(abstract)

	var found []string
	for _, c := range s.categories {
		for _, t := range c.Triggers {
			if strings.Contains(lower, t) {
				found = append(found, c.Name)
				break
			}
		}
	}

	score := len(found)
	if len(found) >= 3 {
		score++
	}
	if len(found) >= 5 {
		score++
	}
	return Result{Score: min(score, MaxScore), Categories: found}
}

// Assessment grades a domain by its average score.
type Assessment string

const (
	AssessmentExcellent Assessment = "EXCELLENT"
	AssessmentGood      Assessment = "GOOD"
	AssessmentFair      Assessment = "FAIR"
	AssessmentPoor      Assessment = "POOR"
)

func assess(avg float64) Assessment {
	switch {
	case avg >= 5:
		return AssessmentExcellent
	case avg >= 3.5:
		return AssessmentGood
	case avg >= 2:
		return AssessmentFair
	default:
		return AssessmentPoor
	}
}

// DomainStats aggregates scores per domain.
type DomainStats struct {
	Domain         string
	Papers         int
	AvgScore       float64
	HighValueCount int
	Assessment     Assessment
}

// CorpusSummary reports the result of a batch scoring run.
type CorpusSummary struct {
	Scored       int
	Skipped      int
	Distribution [MaxScore + 1]int
	Domains      []DomainStats
	HighValue    int

	// Invalid counts papers whose stored score lies outside 0..MaxScore.
	// They are left as is and excluded from the statistics.
	Invalid int
}

// Total returns the number of papers considered.
func (s CorpusSummary) Total() int {
	return s.Scored + s.Skipped + s.Invalid
}

// ScoreCorpus scores every paper whose MechanismScore is nil, setting the
// score and categories in place. Papers that already carry a score are
// counted as skipped but still contribute to the statistics; a stored score
// outside 0..MaxScore is counted as invalid instead. highValue is
// the threshold for the high-value count. A progress line per skipped paper
// and a distribution table go to w.
func (s *Scorer) ScoreCorpus(papers []*types.Paper, highValue int, w io.Writer) CorpusSummary {
	var sum CorpusSummary
	byDomain := make(map[string][]int)

	for _, p := range papers {
		switch {
		case p.MechanismScore != nil && (*p.MechanismScore < 0 || *p.MechanismScore > MaxScore):
			fmt.Fprintf(w, "invalid %d: stored score %d outside 0..%d\n", p.ID, *p.MechanismScore, MaxScore)
			sum.Invalid++
			continue
		case p.MechanismScore != nil:
			fmt.Fprintf(w, "skipped %d (already scored)\n", p.ID)
			sum.Skipped++
		default:
			r := s.Score(p.Abstract)
			score := r.Score
			p.MechanismScore = &score
			p.ScoreCategories = r.Categories
			sum.Scored++
		}
		score := *p.MechanismScore
		sum.Distribution[score]++
		if score >= highValue {
			sum.HighValue++
		}
		byDomain[p.Domain] = append(byDomain[p.Domain], score)
	}

	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		scores := byDomain[d]
		total, high := 0, 0
		for _, sc := range scores {
			total += sc
			if sc >= highValue {
				high++
			}
		}
		avg := float64(total) / float64(len(scores))
		sum.Domains = append(sum.Domains, DomainStats{
			Domain:         d,
			Papers:         len(scores),
			AvgScore:       avg,
			HighValueCount: high,
			Assessment:     assess(avg),
		})
	}

	for score := MaxScore; score >= 0; score-- {
		if n := sum.Distribution[score]; n > 0 {
			fmt.Fprintf(w, "%2d/10: %d papers\n", score, n)
		}
	}
	fmt.Fprintf(w, "\nscored %d, skipped %d, invalid %d, %d at or above %d\n",
		sum.Scored, sum.Skipped, sum.Invalid, sum.HighValue, highValue)
	return sum
}

// Select returns the papers scoring at least minScore, highest score
// first and by ID within a score. Unscored papers are never selected.
func Select(papers []*types.Paper, minScore int) []*types.Paper {
	var out []*types.Paper
	for _, p := range papers {
		if p.MechanismScore != nil && *p.MechanismScore >= minScore {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := *out[i].MechanismScore, *out[j].MechanismScore
		if si != sj {
			return si > sj
		}
		return out[i].ID < out[j].ID
	})
	return out
}
