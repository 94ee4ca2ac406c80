package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/graph"
	"axiomforge/internal/types"
)

// stubResolver lets each test control the resolution outcome directly,
// mirroring the teacher's llm_mock.go deterministic-stub pattern.
type stubResolver struct {
	res *graph.Resolution
	err error
}

func (s *stubResolver) Resolve(ctx context.Context, existing, incoming *types.ClaimEdge, sources map[string]*types.Source) (*graph.Resolution, error) {
	return s.res, s.err
}

func newTestGraph(t *testing.T, r graph.Resolver) *graph.KnowledgeGraph {
	t.Helper()
	return graph.New(graph.DefaultConfig(), r)
}

func mustEntity(t *testing.T, kg *graph.KnowledgeGraph, id string, typ types.EntityType) *types.Entity {
	t.Helper()
	e, err := kg.UpsertEntity(&types.Entity{ID: id, Type: typ, Label: id, Confidence: 0.8})
	require.NoError(t, err)
	return e
}

func registerSource(kg *graph.KnowledgeGraph, id string, tier types.AuthorityTier) {
	kg.RegisterSource(&types.Source{ID: id, URI: "https://example.test/" + id, AuthorityTier: tier})
}

func TestUpsertEntity_InsertAndMerge(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "e1", types.EntityCompany)

	merged, err := kg.UpsertEntity(&types.Entity{ID: "e1", Confidence: 0.95, Sources: []string{"s1"}})
	require.NoError(t, err)
	assert.Equal(t, 0.95, merged.Confidence)
	assert.Contains(t, merged.Sources, "s1")

	// Confidence never decreases on upsert.
	lowered, err := kg.UpsertEntity(&types.Entity{ID: "e1", Confidence: 0.1})
	require.NoError(t, err)
	assert.Equal(t, 0.95, lowered.Confidence)
}

func TestAddClaim_PlainInsertNoParallel(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "marketx", types.EntityCompany)
	mustEntity(t, kg, "q1", types.EntityQuantity)
	registerSource(kg, "src1", types.AuthorityOfficial)

	outcome, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Object: "q1",
		Weight: 0.2, BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "src1", Snippet: "grew 20%"}},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Inserted)
}

func TestAddClaim_DuplicateIsIdempotent(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "marketx", types.EntityCompany)
	mustEntity(t, kg, "q1", types.EntityQuantity)
	registerSource(kg, "src1", types.AuthorityOfficial)

	edge := &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Object: "q1",
		Weight: 0.2, BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "src1", Snippet: "grew 20%"}},
	}
	first, err := kg.AddClaim(context.Background(), edge)
	require.NoError(t, err)

	second, err := kg.AddClaim(context.Background(), edge)
	require.NoError(t, err)
	assert.True(t, second.Merged)
	assert.Equal(t, first.EdgeID, second.EdgeID)
}

// TestAddClaim_QuantityConflictTriggersResolver covers scenario S1: two
// different growth-rate values for the same subject/predicate must still be
// recognized as parallel (quantity targets normalize on kind, not value).
func TestAddClaim_QuantityConflictTriggersResolver(t *testing.T) {
	resolver := &stubResolver{res: &graph.Resolution{
		Action: graph.ActionWinner, WinnerIsIncoming: false, Tier: "T1", Margin: 0.3,
		Kind: types.ConflictNumeric,
	}}
	kg := newTestGraph(t, resolver)
	mustEntity(t, kg, "marketx", types.EntityCompany)
	mustEntity(t, kg, "q1", types.EntityQuantity)
	mustEntity(t, kg, "q2", types.EntityQuantity)
	registerSource(kg, "official", types.AuthorityOfficial)
	registerSource(kg, "social", types.AuthoritySocial)

	_, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Object: "q1",
		Weight: 0.2, BaseConfidence: 0.9,
		Evidence: []types.EvidenceItem{{SourceID: "official", Snippet: "+20%"}},
	})
	require.NoError(t, err)

	outcome, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Object: "q2",
		Weight: -0.05, BaseConfidence: 0.6,
		Evidence: []types.EvidenceItem{{SourceID: "social", Snippet: "-5%"}},
	})
	require.NoError(t, err)
	assert.True(t, outcome.Conflicted)
	assert.NotEmpty(t, outcome.ConflictID)

	conflicts := kg.ListConflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, types.ConflictResolved, conflicts[0].Status)
}

func TestAddClaim_EscalateCreatesResearchQuestion(t *testing.T) {
	resolver := &stubResolver{res: &graph.Resolution{
		Action: graph.ActionEscalate, Tier: "T3", Kind: types.ConflictSemantic,
		ResearchQuestion: "Which growth_rate figure for marketx is correct?",
	}}
	kg := newTestGraph(t, resolver)
	mustEntity(t, kg, "marketx", types.EntityCompany)
	mustEntity(t, kg, "q1", types.EntityQuantity)
	mustEntity(t, kg, "q2", types.EntityQuantity)
	registerSource(kg, "src1", types.AuthorityGeneral)
	registerSource(kg, "src2", types.AuthorityGeneral)

	_, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Object: "q1", BaseConfidence: 0.7,
		Evidence: []types.EvidenceItem{{SourceID: "src1", Snippet: "a"}},
	})
	require.NoError(t, err)
	outcome, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Object: "q2", BaseConfidence: 0.7,
		Evidence: []types.EvidenceItem{{SourceID: "src2", Snippet: "b"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, outcome.ConflictID)

	q, ok := kg.ResearchQuestionFor(outcome.ConflictID)
	require.True(t, ok)
	assert.Contains(t, q, "growth_rate")
}

func TestGetNeighbors_And_EgoSubgraph(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "a", types.EntityCompany)
	mustEntity(t, kg, "b", types.EntityProduct)
	mustEntity(t, kg, "c", types.EntityConcept)
	registerSource(kg, "s1", types.AuthorityOfficial)

	_, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "a", Predicate: "makes", Object: "b", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "a makes b"}},
	})
	require.NoError(t, err)
	_, err = kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "b", Predicate: "relates_to", Object: "c", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "b relates to c"}},
	})
	require.NoError(t, err)

	neighbors, err := kg.GetNeighbors("a", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, neighbors)

	sub, err := kg.EgoSubgraph([]string{"a"}, 2, 10)
	require.NoError(t, err)
	assert.Len(t, sub.Entities, 3)
	assert.Len(t, sub.Edges, 2)
}

func TestPageRank_Deterministic(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "a", types.EntityCompany)
	mustEntity(t, kg, "b", types.EntityProduct)
	registerSource(kg, "s1", types.AuthorityOfficial)
	_, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "a", Predicate: "makes", Object: "b", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "x"}},
	})
	require.NoError(t, err)

	r1 := kg.PageRank(nil)
	r2 := kg.PageRank(nil)
	assert.Equal(t, r1, r2)
	assert.Greater(t, r1["b"], 0.0)
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "a", types.EntityCompany)
	mustEntity(t, kg, "b", types.EntityProduct)
	registerSource(kg, "s1", types.AuthorityOfficial)
	_, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "a", Predicate: "makes", Object: "b", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "x"}},
	})
	require.NoError(t, err)

	snap := kg.Snapshot()

	kg2 := newTestGraph(t, nil)
	require.NoError(t, kg2.Restore(snap))

	neighbors, err := kg2.GetNeighbors("a", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, neighbors)
	assert.Equal(t, kg.SnapshotID(), kg2.SnapshotID())
}

func TestAddClaim_UnknownEntity(t *testing.T) {
	kg := newTestGraph(t, nil)
	mustEntity(t, kg, "a", types.EntityCompany)
	registerSource(kg, "s1", types.AuthorityOfficial)

	_, err := kg.AddClaim(context.Background(), &types.ClaimEdge{
		Subject: "a", Predicate: "makes", Object: "missing", BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "s1", Snippet: "x"}},
	})
	assert.Error(t, err)
}
