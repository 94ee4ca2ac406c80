package axiom_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"axiomforge/internal/axiom"
	"axiomforge/internal/types"
)

func growthAxiom() types.Axiom {
	return types.Axiom{
		ID: "ax-growth", Name: "favors growth", Priority: 5,
		Matcher: types.AxiomMatcher{
			PositiveTerms: []string{"growth"},
			NegativeTerms: []string{"decline"},
			NumericRules: []types.NumericRule{
				{Field: "weight", Operator: "gt", Threshold: 0, Polarity: 1},
				{Field: "weight", Operator: "lt", Threshold: 0, Polarity: -1},
			},
		},
	}
}

func TestScore_PositiveAndNegativeTerms(t *testing.T) {
	j := axiom.New([]types.Axiom{growthAxiom()})

	pos := j.Score(axiom.Scorable{Text: "growth_rate", Numeric: map[string]float64{"weight": 0.5}})
	assert.Greater(t, pos.PerAxiom["ax-growth"], 0.0)

	neg := j.Score(axiom.Scorable{Text: "decline_rate", Numeric: map[string]float64{"weight": -0.5}})
	assert.Less(t, neg.PerAxiom["ax-growth"], 0.0)
}

func TestScore_EmptyAxiomSetYieldsZero(t *testing.T) {
	j := axiom.New(nil)
	set := j.Score(axiom.Scorable{Text: "anything"})
	assert.Equal(t, 0.0, set.Aggregate)
	assert.Empty(t, set.PerAxiom)
}

func TestScore_AggregateIsPriorityWeighted(t *testing.T) {
	high := types.Axiom{ID: "high", Priority: 10, Matcher: types.AxiomMatcher{PositiveTerms: []string{"alpha"}}}
	low := types.Axiom{ID: "low", Priority: 1, Matcher: types.AxiomMatcher{NegativeTerms: []string{"alpha"}}}
	j := axiom.New([]types.Axiom{high, low})

	set := j.Score(axiom.Scorable{Text: "alpha signal"})
	// high-priority positive match should dominate low-priority negative match.
	assert.Greater(t, set.Aggregate, 0.0)
}

func TestScore_ClampsToRange(t *testing.T) {
	manyPositive := types.Axiom{
		ID: "many", Priority: 5,
		Matcher: types.AxiomMatcher{PositiveTerms: []string{"a", "b", "c"}},
	}
	j := axiom.New([]types.Axiom{manyPositive})
	set := j.Score(axiom.Scorable{Text: "a b c"})
	assert.LessOrEqual(t, set.PerAxiom["many"], 1.0)
	assert.GreaterOrEqual(t, set.PerAxiom["many"], -1.0)
}

func TestFromEdge_And_FromEntity(t *testing.T) {
	edge := &types.ClaimEdge{Predicate: "grows", Weight: 0.4, BaseConfidence: 0.7}
	s := axiom.FromEdge(edge)
	assert.Equal(t, "grows", s.Text)
	assert.Contains(t, s.Predicates, "grows")

	ent := &types.Entity{Label: "MarketX", Confidence: 0.9}
	es := axiom.FromEntity(ent)
	assert.Equal(t, "MarketX", es.Text)
}
