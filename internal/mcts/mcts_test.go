package mcts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/coverage"
	"axiomforge/internal/graph"
	"axiomforge/internal/mcts"
	"axiomforge/internal/tot"
	"axiomforge/internal/types"
)

type fixedEvaluator struct {
	byNode map[string]mcts.NodeInputs
	fallback mcts.NodeInputs
}

func (f *fixedEvaluator) Inputs(ctx context.Context, nodeID string) (mcts.NodeInputs, error) {
	if v, ok := f.byNode[nodeID]; ok {
		return v, nil
	}
	return f.fallback, nil
}

func buildTree(t *testing.T) (*tot.Tree, string, []string) {
	t.Helper()
	tree := tot.New(tot.DefaultLimits())
	root, err := tree.CreateRoot("root question")
	require.NoError(t, err)
	a, err := tree.Expand(root.ID, "A", false)
	require.NoError(t, err)
	b, err := tree.Expand(root.ID, "B", false)
	require.NoError(t, err)
	c, err := tree.Expand(root.ID, "C", false)
	require.NoError(t, err)
	return tree, root.ID, []string{a.ID, b.ID, c.ID}
}

// TestSelectChild_CoverageGuidedPreference mirrors spec scenario S4: three
// children with identical visits/value but very different coverage should
// prefer the most under-covered child deterministically.
func TestSelectChild_CoverageGuidedPreference(t *testing.T) {
	g := graph.New(graph.DefaultConfig(), nil)
	tree, rootID, childIDs := buildTree(t)
	analyzer := coverage.New(g, tree, coverage.DefaultWeights(), coverage.SessionParams{MaxDepth: 10, BranchingFactor: 4, TotalAxioms: 1})

	_, err := tree.Answer(childIDs[0], "a", nil, nil) // low coverage (no entities)
	require.NoError(t, err)
	_, err = tree.Answer(childIDs[1], "b", nil, nil) // low coverage
	require.NoError(t, err)
	_, err = g.UpsertEntity(&types.Entity{ID: "e1", Type: types.EntityConcept})
	require.NoError(t, err)
	_, err = tree.Answer(childIDs[2], "c", []string{"e1"}, []string{"ax1"}) // higher coverage attempt
	require.NoError(t, err)

	eval := &fixedEvaluator{fallback: mcts.NodeInputs{Confidence: 0.5, RiskNormalizer: 1}}
	search := mcts.New(tree, analyzer, eval, mcts.DefaultParams(), rootID)

	completed, err := search.Iterate(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, completed)

	// A and B tie at the lowest coverage; C's tested axiom raises its
	// coverage, shrinking its gap bonus, so C is never the one selected.
	assert.Equal(t, 1, search.Stats(childIDs[0]).Visits+search.Stats(childIDs[1]).Visits)
	assert.Equal(t, 0, search.Stats(childIDs[2]).Visits)
}

func TestIterate_BackpropagatesToAncestors(t *testing.T) {
	g := graph.New(graph.DefaultConfig(), nil)
	tree, rootID, _ := buildTree(t)
	analyzer := coverage.New(g, tree, coverage.DefaultWeights(), coverage.SessionParams{MaxDepth: 10, BranchingFactor: 4, TotalAxioms: 1})
	eval := &fixedEvaluator{fallback: mcts.NodeInputs{Confidence: 0.8, ROIPerHour: 50, RiskNormalizer: 1}}
	search := mcts.New(tree, analyzer, eval, mcts.DefaultParams(), rootID)

	for i := 0; i < 5; i++ {
		_, err := search.Iterate(context.Background(), 1)
		require.NoError(t, err)
	}

	rootStats := search.Stats(rootID)
	assert.GreaterOrEqual(t, rootStats.Visits, 1)
}

func TestIterate_RespectsCancellation(t *testing.T) {
	g := graph.New(graph.DefaultConfig(), nil)
	tree, rootID, _ := buildTree(t)
	analyzer := coverage.New(g, tree, coverage.DefaultWeights(), coverage.SessionParams{MaxDepth: 10, BranchingFactor: 4, TotalAxioms: 1})
	eval := &fixedEvaluator{fallback: mcts.NodeInputs{Confidence: 0.5, RiskNormalizer: 1}}
	search := mcts.New(tree, analyzer, eval, mcts.DefaultParams(), rootID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	completed, err := search.Iterate(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, completed)
}

func TestBestPath_ReturnsRootToLeaf(t *testing.T) {
	g := graph.New(graph.DefaultConfig(), nil)
	tree, rootID, _ := buildTree(t)
	analyzer := coverage.New(g, tree, coverage.DefaultWeights(), coverage.SessionParams{MaxDepth: 10, BranchingFactor: 4, TotalAxioms: 1})
	eval := &fixedEvaluator{fallback: mcts.NodeInputs{Confidence: 0.5, RiskNormalizer: 1}}
	search := mcts.New(tree, analyzer, eval, mcts.DefaultParams(), rootID)

	_, err := search.Iterate(context.Background(), 3)
	require.NoError(t, err)

	path, err := search.BestPath()
	require.NoError(t, err)
	assert.Equal(t, rootID, path[0])
}

func TestSuggestions_OrdersByGapDescending(t *testing.T) {
	g := graph.New(graph.DefaultConfig(), nil)
	tree, rootID, childIDs := buildTree(t)
	analyzer := coverage.New(g, tree, coverage.DefaultWeights(), coverage.SessionParams{MaxDepth: 10, BranchingFactor: 4, TotalAxioms: 1})
	eval := &fixedEvaluator{fallback: mcts.NodeInputs{Confidence: 0.5, RiskNormalizer: 1}}
	search := mcts.New(tree, analyzer, eval, mcts.DefaultParams(), rootID)
	_ = childIDs

	suggestions, err := search.Suggestions(2)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(suggestions), 2)
	if len(suggestions) == 2 {
		assert.GreaterOrEqual(t, suggestions[0].Gap, suggestions[1].Gap)
	}
}
