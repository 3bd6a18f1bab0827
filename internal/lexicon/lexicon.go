// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package lexicon implements the synonym normalizer: canonical mechanism
// categories, the high-value and generic term buckets, and the
// false-positive vocabulary shared with the per-mechanism filter.
//
// A Lexicon is loaded once from versioned YAML (the embedded default or an
// override file) and is read-only afterward, so it is safe to share across
// matcher workers.
package lexicon

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode"

	"go.yaml.in/yaml/v3"
)

//go:embed lexicon.yaml
var defaultYAML []byte

// ErrInvalidLexicon is returned when a lexicon document fails validation.
var ErrInvalidLexicon = errors.New("invalid lexicon")

// Category is one canonical mechanism label with its synonym phrases.
type Category struct {
	Name     string   `yaml:"name"`
	Synonyms []string `yaml:"synonyms"`
}

type document struct {
	Version              string     `yaml:"version"`
	Categories           []Category `yaml:"categories"`
	HighValue            []string   `yaml:"high_value"`
	Generic              []string   `yaml:"generic"`
	FalsePositiveTerms   []string   `yaml:"false_positive_terms"`
	StructuralIndicators []string   `yaml:"structural_indicators"`
	LowSignalTypes       []string   `yaml:"low_signal_types"`
	EquationMarkers      []string   `yaml:"equation_markers"`
}

// Lexicon is the immutable lookup structure built from a document. All
// phrases are stored lowercased.
type Lexicon struct {
	version    string
	categories []Category
	exact      map[string]string
	highValue  []string
	generic    []string
	fpTerms    []string
	indicators []string
	lowSignal  map[string]bool
	eqMarkers  []string
}

var loadDefault = sync.OnceValues(func() (*Lexicon, error) {
	return Parse(defaultYAML)
})

// Default returns the embedded lexicon. It is parsed on first use.
func Default() *Lexicon {
	lx, err := loadDefault()
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return lx
}

// Load returns the lexicon at path, or the embedded default when path is
// empty.
func Load(path string) (*Lexicon, error) {
	if path == "" {
		return loadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon %s: %w", path, err)
	}
	lx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lx, nil
}

// Parse builds a Lexicon from YAML.
func Parse(data []byte) (*Lexicon, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing lexicon: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidLexicon)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("%w: no categories", ErrInvalidLexicon)
	}

	lx := &Lexicon{
		version:    doc.Version,
		exact:      make(map[string]string),
		highValue:  lowerAll(doc.HighValue),
		generic:    lowerAll(doc.Generic),
		fpTerms:    lowerAll(doc.FalsePositiveTerms),
		indicators: lowerAll(doc.StructuralIndicators),
		lowSignal:  make(map[string]bool, len(doc.LowSignalTypes)),
		eqMarkers:  lowerAll(doc.EquationMarkers),
	}
	for _, t := range doc.LowSignalTypes {
		lx.lowSignal[strings.ToLower(strings.TrimSpace(t))] = true
	}

	seen := make(map[string]bool, len(doc.Categories))
	for _, c := range doc.Categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: category without a name", ErrInvalidLexicon)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate category %q", ErrInvalidLexicon, name)
		}
		seen[name] = true

		syns := lowerAll(c.Synonyms)
		lx.categories = append(lx.categories, Category{Name: name, Synonyms: syns})

		// Earlier categories keep their exact-match claims.
		if _, ok := lx.exact[strings.ToLower(name)]; !ok {
			lx.exact[strings.ToLower(name)] = name
		}
		for _, s := range syns {
			if _, ok := lx.exact[s]; !ok {
				lx.exact[s] = name
			}
		}
	}
	return lx, nil
}

// Version returns the document version recorded in audit records.
func (lx *Lexicon) Version() string { return lx.version }

// Categories returns the canonical category names in priority order.
func (lx *Lexicon) Categories() []string {
	out := make([]string, len(lx.categories))
	for i, c := range lx.categories {
		out[i] = c.Name
	}
	return out
}

// Lookup maps a raw mechanism-type label to its canonical category. Exact
// case-insensitive matches against a synonym or a category name win.
// Otherwise the longest synonym contained in the label decides, with ties
// going to the earlier category.
func (lx *Lexicon) Lookup(label string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	if key == "" {
		return "", false
	}
	if name, ok := lx.exact[key]; ok {
		return name, true
	}

	best, bestLen := "", 0
	for _, c := range lx.categories {
		for _, s := range c.Synonyms {
			if len(s) > bestLen && strings.Contains(key, s) {
				best, bestLen = c.Name, len(s)
			}
		}
	}
	return best, best != ""
}

// Canonicalize returns the canonical category for label, or label unchanged
// when nothing matches.
func (lx *Lexicon) Canonicalize(label string) string {
	if name, ok := lx.Lookup(label); ok {
		return name
	}
	return label
}

// ExtractCategories returns every category with a synonym present in text,
// in priority order.
func (lx *Lexicon) ExtractCategories(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, c := range lx.categories {
		for _, s := range c.Synonyms {
			if strings.Contains(lower, s) {
				found = append(found, c.Name)
				break
			}
		}
	}
	return found
}

// HighValueTerms returns the high-value technical terms present in text.
func (lx *Lexicon) HighValueTerms(text string) []string {
	return containedTerms(lx.highValue, strings.ToLower(text))
}

// SharedHighValueTerms returns the high-value terms present in both texts.
func (lx *Lexicon) SharedHighValueTerms(a, b string) []string {
	return sharedTerms(lx.highValue, strings.ToLower(a), strings.ToLower(b))
}

// SharedGenericTerms returns the generic academic terms present in both texts.
func (lx *Lexicon) SharedGenericTerms(a, b string) []string {
	return sharedTerms(lx.generic, strings.ToLower(a), strings.ToLower(b))
}

// IsGenericOnlyOverlap reports whether a and b share at least one generic
// term and no high-value term.
func (lx *Lexicon) IsGenericOnlyOverlap(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	for _, t := range lx.highValue {
		if strings.Contains(la, t) && strings.Contains(lb, t) {
			return false
		}
	}
	for _, t := range lx.generic {
		if strings.Contains(la, t) && strings.Contains(lb, t) {
			return true
		}
	}
	return false
}

// MentionsEquation reports whether text carries an equation marker.
func (lx *Lexicon) MentionsEquation(text string) bool {
	return len(containedTerms(lx.eqMarkers, strings.ToLower(text))) > 0
}

// IsLowSignalType reports whether a mechanism type needs a structural
// indicator to survive the false-positive filter.
func (lx *Lexicon) IsLowSignalType(mechanismType string) bool {
	return lx.lowSignal[strings.ToLower(strings.TrimSpace(mechanismType))]
}

// HasStructuralIndicator reports whether text contains a causal or
// process phrase.
func (lx *Lexicon) HasStructuralIndicator(text string) bool {
	return len(containedTerms(lx.indicators, strings.ToLower(text))) > 0
}

// CountFalsePositiveTerms counts the distinct false-positive terms that
// occur in text at a word start, so "present" does not match inside
// "represents".
func (lx *Lexicon) CountFalsePositiveTerms(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, t := range lx.fpTerms {
		if containsAtWordStart(lower, t) {
			n++
		}
	}
	return n
}

func containsAtWordStart(s, term string) bool {
	for off := 0; off < len(s); {
		i := strings.Index(s[off:], term)
		if i < 0 {
			return false
		}
		i += off
		if i == 0 || !isLetterBefore(s[:i]) {
			return true
		}
		off = i + 1
	}
	return false
}

func isLetterBefore(prefix string) bool {
	r := []rune(prefix)
	return unicode.IsLetter(r[len(r)-1])
}

func containedTerms(terms []string, lower string) []string {
	var out []string
	for _, t := range terms {
		if strings.Contains(lower, t) {
			out = append(out, t)
		}
	}
	return out
}

func sharedTerms(terms []string, a, b string) []string {
	var out []string
	for _, t := range terms {
		if strings.Contains(a, t) && strings.Contains(b, t) {
			out = append(out, t)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
