// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTopLevelField(t *testing.T) {
	tests := []struct {
		domain string
		want   string
	}{
		{"cs.AI", "cs"},
		{"q-bio.PE", "q-bio"},
		{"q-bio", "q-bio"},
		{"cond-mat.stat-mech", "cond-mat"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TopLevelField(tt.domain), tt.domain)
	}
	assert.Equal(t, "econ", Paper{Domain: "econ.GN"}.TopLevelField())
}

func TestMechanism_MatchText(t *testing.T) {
	m := &Mechanism{Description: "raw text", StructuralDescription: "  "}
	assert.Equal(t, "raw text", m.MatchText())

	m.StructuralDescription = "neutral paraphrase"
	assert.Equal(t, "neutral paraphrase", m.MatchText())
}

func TestMechanism_Flags(t *testing.T) {
	m := &Mechanism{}
	assert.False(t, m.IsFalsePositive())
	assert.False(t, m.HasEmbedding())

	no, yes := false, true
	m.FalsePositive = &no
	assert.False(t, m.IsFalsePositive())
	m.FalsePositive = &yes
	assert.True(t, m.IsFalsePositive())

	m.Embedding = []float32{0.1}
	assert.True(t, m.HasEmbedding())
}

func TestPairKey_OrderInsensitive(t *testing.T) {
	assert.Equal(t, NewPairKey(7, 3), NewPairKey(3, 7))
	assert.Equal(t, PairKey{Low: 3, High: 7}, CandidatePair{Paper1ID: 7, Paper2ID: 3}.PairKey())
	assert.Equal(t, PairKey{Low: 3, High: 7}, DiscoveredPair{Paper1ID: 3, Paper2ID: 7}.Key())
}

func TestDefaultPipelineConfig(t *testing.T) {
	cfg := DefaultPipelineConfig()
	w := cfg.Match.Weights
	assert.InDelta(t, 1.0, w.TextSimilarity+w.DomainDistance+w.MathContent+w.StructuralDepth, 1e-9)
	assert.Equal(t, ScopeAll, cfg.Match.Scope)
	assert.Equal(t, 0.35, cfg.Match.MinConfidence)
	assert.Empty(t, cfg.Embedding.BaseURL)
}
