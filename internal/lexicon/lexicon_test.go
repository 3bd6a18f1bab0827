// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lexicon

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Loads(t *testing.T) {
	lx := Default()
	assert.Equal(t, "v1.2", lx.Version())
	assert.Contains(t, lx.Categories(), "gauge_theory")
	assert.Equal(t, "feedback_loop", lx.Categories()[0])
	assert.Same(t, lx, Default())
}

func TestCanonicalize(t *testing.T) {
	lx := Default()
	tests := []struct {
		in, want string
	}{
		{"feedback", "feedback_loop"},
		{"Reinforcement", "feedback_loop"},
		{"network effects", "network_effect"},
		{"quantum-classical", "quantum_classical_optimization"},
		{"  Negative Feedback ", "negative_feedback"},
		{"feedback_loop", "feedback_loop"},
		// Shared synonym: the earlier category wins.
		{"amplification", "feedback_loop"},
		// Substring fallback prefers the longest synonym.
		{"a denoising diffusion sampler", "diffusion_generative"},
		{"lattice gauge simulations", "gauge_theory"},
		{"something unrelated", "something unrelated"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, lx.Canonicalize(tt.in))
		})
	}
}

func TestLookup_NoMatch(t *testing.T) {
	_, ok := Default().Lookup("paperwork")
	assert.False(t, ok)
}

func TestExtractCategories(t *testing.T) {
	lx := Default()
	got := lx.ExtractCategories("We study positive feedback loops and network effects in scaling laws.")
	assert.Equal(t, []string{"feedback_loop", "positive_feedback", "network_effect", "scaling_law"}, got)
	assert.Empty(t, lx.ExtractCategories(""))
}

func TestHighValueTerms(t *testing.T) {
	got := Default().HighValueTerms("Quantum annealing combined with graph neural networks.")
	assert.Equal(t, []string{"quantum annealing", "graph neural network"}, got)
}

func TestIsGenericOnlyOverlap(t *testing.T) {
	lx := Default()

	a := "We present a model of the system."
	b := "A network model improves performance."
	assert.True(t, lx.IsGenericOnlyOverlap(a, b))

	c := "A model of gauge theory confinement."
	d := "Gauge theory model of market frictions."
	assert.False(t, lx.IsGenericOnlyOverlap(c, d), "shared high-value term keeps the pair")

	assert.False(t, lx.IsGenericOnlyOverlap("predators oscillate", "prices oscillate"),
		"no generic overlap at all is not a generic-only overlap")
}

func TestSharedTerms(t *testing.T) {
	lx := Default()
	a := "Nash equilibrium in a phase transition model"
	b := "phase transition of a Nash equilibrium network model"
	assert.Equal(t, []string{"phase transition", "nash equilibrium"}, lx.SharedHighValueTerms(a, b))
	assert.Equal(t, []string{"model"}, lx.SharedGenericTerms(a, b))
}

func TestMentionsEquation(t *testing.T) {
	lx := Default()
	assert.True(t, lx.MentionsEquation("governed by $dx/dt = rx$"))
	assert.True(t, lx.MentionsEquation(`the \frac{a}{b} ratio`))
	assert.True(t, lx.MentionsEquation("a closed-form Formula"))
	assert.False(t, lx.MentionsEquation("prices rise when demand rises"))
}

func TestCountFalsePositiveTerms(t *testing.T) {
	lx := Default()
	assert.Equal(t, 5, lx.CountFalsePositiveTerms("We present a novel model and system for optimization."))
	assert.Equal(t, 0, lx.CountFalsePositiveTerms("the lattice represents coupled spins"))
	assert.Equal(t, 1, lx.CountFalsePositiveTerms("data-driven"))
}

func TestParse_Rejects(t *testing.T) {
	_, err := Parse([]byte("categories: [{name: a}]"))
	assert.ErrorIs(t, err, ErrInvalidLexicon)

	_, err = Parse([]byte(`version: "x"`))
	assert.ErrorIs(t, err, ErrInvalidLexicon)

	_, err = Parse([]byte("version: x\ncategories: [{name: a}, {name: a}]"))
	assert.ErrorIs(t, err, ErrInvalidLexicon)

	_, err = Parse([]byte("version: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	doc := `version: "test-1"
categories:
  - name: ripple
    synonyms: [ripple, wave]
generic: [model]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	lx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-1", lx.Version())
	assert.Equal(t, "ripple", lx.Canonicalize("wave"))

	def, err := Load("")
	require.NoError(t, err)
	assert.Same(t, Default(), def)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
