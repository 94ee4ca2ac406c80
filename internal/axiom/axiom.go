// Package axiom implements AxiomJudge: scoring entities, claim edges, and
// reasoning paths against a user-supplied set of value axioms.
//
// Each axiom carries a tagged-variant matcher (spec's Design Notes §9:
// "dynamic dispatch becomes a tagged-variant matcher") with three clause
// kinds — keyword, predicate, and numeric — each contributing a signed score
// in [-1,1] when it matches. Scoring is a pure function of (subject, axiom):
// no hidden state, no I/O, fully deterministic given the same inputs.
package axiom

import (
	"strings"

	"axiomforge/internal/types"
)

// Scorable is anything AxiomJudge can evaluate: a claim edge or an entity.
// Both internal/types.ClaimEdge and internal/types.Entity are adapted to it
// via the FromEdge/FromEntity constructors below rather than a shared interface,
// since their textual surface differs.
type Scorable struct {
	Text       string   // label / predicate+object description used for keyword matching
	Predicates []string // predicate names present (edges: one; entities: none)
	Numeric    map[string]float64
}

// FromEdge builds a Scorable view of a claim edge.
func FromEdge(e *types.ClaimEdge) Scorable {
	return Scorable{
		Text:       e.Predicate,
		Predicates: []string{e.Predicate},
		Numeric: map[string]float64{
			"weight":          e.Weight,
			"base_confidence": e.BaseConfidence,
		},
	}
}

// FromEntity builds a Scorable view of an entity.
func FromEntity(e *types.Entity) Scorable {
	return Scorable{
		Text: e.Label,
		Numeric: map[string]float64{
			"confidence":      e.Confidence,
			"axiom_alignment": e.AxiomAlignment,
		},
	}
}

// Judge evaluates scorables against a fixed set of axioms.
type Judge struct {
	axioms []types.Axiom
}

// New constructs a Judge over the given axiom set. The set is treated as
// immutable for the lifetime of the Judge (spec: "immutable within a
// research session").
func New(axioms []types.Axiom) *Judge {
	cp := make([]types.Axiom, len(axioms))
	copy(cp, axioms)
	return &Judge{axioms: cp}
}

// Axioms returns a copy of the configured axiom set.
func (j *Judge) Axioms() []types.Axiom {
	out := make([]types.Axiom, len(j.axioms))
	copy(out, j.axioms)
	return out
}

// Score evaluates s against every configured axiom and returns the
// per-axiom scores plus a priority-weighted aggregate in [-1,1].
func (j *Judge) Score(s Scorable) types.AxiomScoreSet {
	set := types.AxiomScoreSet{PerAxiom: make(map[string]float64, len(j.axioms))}
	if len(j.axioms) == 0 {
		return set
	}

	var weightedSum, weightSum float64
	for _, ax := range j.axioms {
		score := scoreMatcher(ax.Matcher, s)
		set.PerAxiom[ax.ID] = score

		w := float64(priorityWeight(ax.Priority))
		weightedSum += score * w
		weightSum += w
	}
	if weightSum > 0 {
		set.Aggregate = types.Clamp(weightedSum/weightSum, -1, 1)
	}
	return set
}

// priorityWeight maps a 1..10 priority into a linear weight; priority is
// clamped to the documented range so malformed axiom files never produce a
// negative or zero-dominant weight.
func priorityWeight(priority int) int {
	if priority < 1 {
		return 1
	}
	if priority > 10 {
		return 10
	}
	return priority
}

// scoreMatcher evaluates one axiom's matcher against a scorable, clipping
// the summed clause contributions to [-1,1] (spec: "per-axiom clipped sum").
func scoreMatcher(m types.AxiomMatcher, s Scorable) float64 {
	var sum float64
	lowerText := strings.ToLower(s.Text)

	for _, term := range m.PositiveTerms {
		if term == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(term)) {
			sum += 1
		}
	}
	for _, term := range m.NegativeTerms {
		if term == "" {
			continue
		}
		if strings.Contains(lowerText, strings.ToLower(term)) {
			sum -= 1
		}
	}
	for _, pred := range m.Predicates {
		for _, have := range s.Predicates {
			if strings.EqualFold(pred, have) {
				sum += 1
				break
			}
		}
	}
	for _, rule := range m.NumericRules {
		v, ok := s.Numeric[rule.Field]
		if !ok {
			continue
		}
		if numericRuleMatches(rule, v) {
			sum += rule.Polarity
		}
	}

	return types.Clamp(sum/matcherNorm(m), -1, 1)
}

// matcherNorm returns the number of clauses in the matcher (minimum 1), used
// to normalize the clipped sum so axioms with many clauses don't
// automatically dominate ones with few.
func matcherNorm(m types.AxiomMatcher) float64 {
	n := len(m.PositiveTerms) + len(m.NegativeTerms) + len(m.Predicates) + len(m.NumericRules)
	if n == 0 {
		return 1
	}
	return float64(n)
}

func numericRuleMatches(rule types.NumericRule, v float64) bool {
	switch rule.Operator {
	case "gt":
		return v > rule.Threshold
	case "gte":
		return v >= rule.Threshold
	case "lt":
		return v < rule.Threshold
	case "lte":
		return v <= rule.Threshold
	case "eq":
		return v == rule.Threshold
	default:
		return false
	}
}
