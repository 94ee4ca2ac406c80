package coverage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/coverage"
	"axiomforge/internal/graph"
	"axiomforge/internal/tot"
	"axiomforge/internal/types"
)

func setup(t *testing.T) (*graph.KnowledgeGraph, *tot.Tree, *coverage.Analyzer) {
	t.Helper()
	g := graph.New(graph.DefaultConfig(), nil)
	_, err := g.UpsertEntity(&types.Entity{ID: "a", Type: types.EntityCompany})
	require.NoError(t, err)
	_, err = g.UpsertEntity(&types.Entity{ID: "b", Type: types.EntityProduct})
	require.NoError(t, err)
	g.RegisterSource(&types.Source{ID: "s1", AuthorityTier: types.AuthorityOfficial})
	_, err = g.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "a", Predicate: "makes", Object: "b", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "x"}},
	})
	require.NoError(t, err)

	tree := tot.New(tot.DefaultLimits())
	params := coverage.SessionParams{MaxDepth: 10, BranchingFactor: 4, TotalAxioms: 2}
	analyzer := coverage.New(g, tree, coverage.DefaultWeights(), params)
	return g, tree, analyzer
}

func TestCompute_ZeroEntitiesYieldsZeroDensity(t *testing.T) {
	_, tree, analyzer := setup(t)
	root, _ := tree.CreateRoot("root")

	snap, err := analyzer.Compute(root.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.0, snap.EntityDensity)
}

func TestCompute_WithEntitiesYieldsPositiveDensity(t *testing.T) {
	_, tree, analyzer := setup(t)
	root, _ := tree.CreateRoot("root")
	_, err := tree.Answer(root.ID, "answer", []string{"a", "b"}, []string{"ax1"})
	require.NoError(t, err)

	snap, err := analyzer.Compute(root.ID)
	require.NoError(t, err)
	assert.Greater(t, snap.EntityDensity, 0.0)
	assert.Greater(t, snap.Overall, 0.0)
}

func TestCompute_CachesPerSnapshotID(t *testing.T) {
	g, tree, analyzer := setup(t)
	root, _ := tree.CreateRoot("root")
	_, err := tree.Answer(root.ID, "answer", []string{"a"}, nil)
	require.NoError(t, err)

	first, err := analyzer.Compute(root.ID)
	require.NoError(t, err)

	_, err = g.UpsertEntity(&types.Entity{ID: "c", Type: types.EntityConcept})
	require.NoError(t, err)

	second, err := analyzer.Compute(root.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.SnapshotID, second.SnapshotID)
}

func TestAxiomCoverage_BoostsWithRecordedMeanScore(t *testing.T) {
	_, tree, analyzer := setup(t)
	root, _ := tree.CreateRoot("root")
	_, err := tree.Answer(root.ID, "answer", []string{"a"}, []string{"ax1"})
	require.NoError(t, err)
	neutral, err := analyzer.Compute(root.ID)
	require.NoError(t, err)

	child, _ := tree.Expand(root.ID, "child", false)
	_, err = tree.Answer(child.ID, "answer", []string{"a"}, []string{"ax1"})
	require.NoError(t, err)
	require.NoError(t, tree.RecordAxiomScore(child.ID, -1.0))
	penalized, err := analyzer.Compute(child.ID)
	require.NoError(t, err)

	assert.Less(t, penalized.AxiomCoverage, neutral.AxiomCoverage)
}

func TestIdentifyGaps_SortsByWorstFirst(t *testing.T) {
	_, tree, analyzer := setup(t)
	root, _ := tree.CreateRoot("root")
	child, _ := tree.Expand(root.ID, "child", false)
	_, err := tree.Answer(child.ID, "answer", []string{"a", "b"}, []string{"ax1", "ax2"})
	require.NoError(t, err)

	gaps, err := analyzer.IdentifyGaps(1.1)
	require.NoError(t, err)
	require.NotEmpty(t, gaps)
	for i := 1; i < len(gaps); i++ {
		assert.GreaterOrEqual(t, 1-gaps[i-1].Overall, 1-gaps[i].Overall)
	}
}
