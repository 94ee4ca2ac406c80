package serializer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/graph"
	"axiomforge/internal/serializer"
	"axiomforge/internal/types"
)

func buildGraph(t *testing.T) *graph.KnowledgeGraph {
	t.Helper()
	g := graph.New(graph.DefaultConfig(), nil)
	_, err := g.UpsertEntity(&types.Entity{ID: "marketx", Type: types.EntityCompany, Label: "MarketX", Confidence: 0.9})
	require.NoError(t, err)
	_, err = g.UpsertEntity(&types.Entity{ID: "widget", Type: types.EntityProduct, Label: "Widget Pro", Confidence: 0.7})
	require.NoError(t, err)
	g.RegisterSource(&types.Source{ID: "s1", AuthorityTier: types.AuthorityOfficial})
	_, err = g.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "marketx", Predicate: "makes", Object: "widget", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "x"}},
	})
	require.NoError(t, err)
	return g
}

func TestSerialize_MarkdownWithinBudget(t *testing.T) {
	g := buildGraph(t)
	s := serializer.New(serializer.DefaultWeights(), nil)

	result, err := s.Serialize(g, "Tell me about MarketX", nil, 500, serializer.FormatMarkdown)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "MarketX")
	assert.Contains(t, result.Text, "nodes=")
	assert.False(t, result.Truncated)
}

func TestSerialize_EmptyDocumentWhenNoMatch(t *testing.T) {
	g := buildGraph(t)
	s := serializer.New(serializer.DefaultWeights(), nil)

	result, err := s.Serialize(g, "completely unrelated topic zzz", nil, 500, serializer.FormatMarkdown)
	require.NoError(t, err)
	assert.Equal(t, 0, result.NodeCount)
	assert.Contains(t, result.Text, "nodes=0 edges=0")
}

func TestSerialize_RespectsTokenBudget(t *testing.T) {
	g := buildGraph(t)
	s := serializer.New(serializer.DefaultWeights(), nil)

	result, err := s.Serialize(g, "MarketX", []string{"marketx"}, 5, serializer.FormatMarkdown)
	require.NoError(t, err)
	assert.True(t, result.Truncated)
}

func TestSerialize_JSONFormatIsSelfDescribing(t *testing.T) {
	g := buildGraph(t)
	s := serializer.New(serializer.DefaultWeights(), nil)

	result, err := s.Serialize(g, "MarketX", []string{"marketx"}, 500, serializer.FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, result.Text, "snapshot_id")
	assert.Contains(t, result.Text, "seed_ids")
}

func TestWhitespaceTokenizer_CountsWordsAndPunctuation(t *testing.T) {
	tok := serializer.WhitespaceTokenizer{}
	n := tok.Count("hello, world!")
	assert.Greater(t, n, 0)
}

func TestSerialize_NarrativeContainsProvenance(t *testing.T) {
	g := buildGraph(t)
	s := serializer.New(serializer.DefaultWeights(), nil)
	result, err := s.Serialize(g, "MarketX", []string{"marketx"}, 500, serializer.FormatNarrative)
	require.NoError(t, err)
	assert.True(t, strings.Contains(result.Text, "Provenance"))
}
