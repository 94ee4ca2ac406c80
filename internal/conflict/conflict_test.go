package conflict_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axiomforge/internal/conflict"
	"axiomforge/internal/graph"
	"axiomforge/internal/types"
)

func src(id string, tier types.AuthorityTier) *types.Source {
	return &types.Source{ID: id, AuthorityTier: tier}
}

func TestResolve_T1AuthorityWinner(t *testing.T) {
	r := conflict.New()
	sources := map[string]*types.Source{
		"official": src("official", types.AuthorityOfficial),
		"social":    src("social", types.AuthoritySocial),
	}
	existing := &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Weight: 0.2, BaseConfidence: 0.9,
		Evidence: []types.EvidenceItem{{SourceID: "social", Snippet: "+20%"}},
	}
	incoming := &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Weight: -0.05, BaseConfidence: 0.6,
		Evidence: []types.EvidenceItem{{SourceID: "official", Snippet: "-5%"}},
	}
	res, err := r.Resolve(context.Background(), existing, incoming, sources)
	require.NoError(t, err)
	assert.Equal(t, graph.ActionWinner, res.Action)
	assert.True(t, res.WinnerIsIncoming)
	assert.Equal(t, "T1", res.Tier)
}

func TestResolve_T2RecencyWinner(t *testing.T) {
	r := conflict.New()
	sources := map[string]*types.Source{
		"a": src("a", types.AuthorityGeneral),
		"b": src("b", types.AuthorityGeneral),
	}
	now := time.Now()
	existing := &types.ClaimEdge{
		Subject: "marketx", Predicate: "valuation", Weight: 0.6, BaseConfidence: 0.7,
		Evidence: []types.EvidenceItem{{SourceID: "a", Snippet: "old", Timestamp: now.Add(-365 * 24 * time.Hour)}},
	}
	incoming := &types.ClaimEdge{
		Subject: "marketx", Predicate: "valuation", Weight: -0.6, BaseConfidence: 0.7,
		Evidence: []types.EvidenceItem{{SourceID: "b", Snippet: "new", Timestamp: now}},
	}
	res, err := r.Resolve(context.Background(), existing, incoming, sources)
	require.NoError(t, err)
	assert.Equal(t, graph.ActionWinner, res.Action)
	assert.True(t, res.WinnerIsIncoming)
	assert.Equal(t, "T2", res.Tier)
}

func TestResolve_T3Escalates(t *testing.T) {
	r := conflict.New()
	now := time.Now()
	sources := map[string]*types.Source{
		"a": src("a", types.AuthorityGeneral),
		"b": src("b", types.AuthorityGeneral),
	}
	existing := &types.ClaimEdge{
		Subject: "marketx", Predicate: "valuation", Weight: 0.6, BaseConfidence: 0.7,
		Evidence: []types.EvidenceItem{{SourceID: "a", Snippet: "x", Timestamp: now}},
	}
	incoming := &types.ClaimEdge{
		Subject: "marketx", Predicate: "valuation", Weight: -0.6, BaseConfidence: 0.7,
		Evidence: []types.EvidenceItem{{SourceID: "b", Snippet: "y", Timestamp: now}},
	}
	res, err := r.Resolve(context.Background(), existing, incoming, sources)
	require.NoError(t, err)
	assert.Equal(t, graph.ActionEscalate, res.Action)
	assert.Equal(t, "T3", res.Tier)
	assert.Contains(t, res.ResearchQuestion, "marketx")
}

func TestResolve_CompatibleClaimsMerge(t *testing.T) {
	r := conflict.New()
	sources := map[string]*types.Source{
		"a": src("a", types.AuthorityGeneral),
		"b": src("b", types.AuthorityGeneral),
	}
	existing := &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Weight: 0.2, BaseConfidence: 0.8,
		Evidence: []types.EvidenceItem{{SourceID: "a", Snippet: "+20%"}},
	}
	incoming := &types.ClaimEdge{
		Subject: "marketx", Predicate: "growth_rate", Weight: 0.22, BaseConfidence: 0.75,
		Evidence: []types.EvidenceItem{{SourceID: "b", Snippet: "+22%"}},
	}
	res, err := r.Resolve(context.Background(), existing, incoming, sources)
	require.NoError(t, err)
	assert.Equal(t, graph.ActionMerge, res.Action)
	assert.LessOrEqual(t, res.MergedEdge.BaseConfidence, 0.95)
}
