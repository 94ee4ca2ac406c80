// Package mcts implements coverage-guided Monte Carlo Tree Search over the
// Tree of Thoughts: selection biased by both the standard UCB1 exploration
// term and a coverage "gap bonus" that pulls search toward under-explored
// regions of the graph, a multi-dimensional node evaluation function, and
// backpropagation of value up the tree.
//
// Grounded on the select -> expand -> simulate -> backpropagate loop shape
// found in the pack's kart-io-sentinel-x tree-of-thoughts agent
// (monteCarloSearch/selectNode/backpropagate), adapted to the spec's exact
// UCB1 + gap_bonus selection formula and evaluation weights.
package mcts

import (
	"context"
	"math"
	"sort"
	"sync"

	"axiomforge/internal/coverage"
	"axiomforge/internal/errs"
	"axiomforge/internal/tot"
	"axiomforge/internal/types"
)

// Params configures the selection/evaluation formulas (spec §4.6).
type Params struct {
	C              float64 // UCB1 exploration constant, default sqrt(2)
	Lambda         float64 // gap bonus multiplier, default 1
	CoverageWeight float64 // in [0,1], default 0.5

	// Evaluation weights, default 0.15/0.35/0.20/0.30.
	WConfidence, WROI, WRisk, WAxiom float64
}

// DefaultParams matches the spec's stated defaults.
func DefaultParams() Params {
	return Params{
		C: math.Sqrt2 * 1, Lambda: 1, CoverageWeight: 0.5,
		WConfidence: 0.15, WROI: 0.35, WRisk: 0.20, WAxiom: 0.30,
	}
}

// NodeInputs is external, per-node information the MCTS evaluation function
// needs but cannot derive from the tree alone (confidence/ROI/risk/axiom
// alignment of the node's grounded claims). The caller (Orchestrator)
// supplies this, typically backed by the KnowledgeGraph and AxiomJudge.
type NodeInputs struct {
	Confidence   float64 // mean confidence of node's grounded entities/edges
	ROIPerHour   float64 // extracted from claims, or from an external simulator
	DisputeCount int     // disputed edges touching node entities
	AxiomViolations int
	RiskNormalizer  float64 // defaults to 1 if zero
	AxiomAlignment  float64 // [-1,1], mean axiom score of node's claims
}

// Evaluator supplies NodeInputs for a ToT node id; implemented by whichever
// layer has access to the graph and axiom judge (kept out of this package to
// avoid an import cycle and to keep evaluate() a pure function of its
// inputs).
type Evaluator interface {
	Inputs(ctx context.Context, nodeID string) (NodeInputs, error)
}

// Search runs coverage-guided MCTS over a shared ToT tree.
type Search struct {
	mu        sync.Mutex
	tree      *tot.Tree
	coverageA *coverage.Analyzer
	eval      Evaluator
	params    Params
	stats     map[string]*types.MCTSStats
	rootID    string
}

// New constructs a Search rooted at rootID.
func New(tree *tot.Tree, coverageA *coverage.Analyzer, eval Evaluator, params Params, rootID string) *Search {
	return &Search{
		tree: tree, coverageA: coverageA, eval: eval, params: params,
		stats: make(map[string]*types.MCTSStats), rootID: rootID,
	}
}

func (s *Search) statsFor(nodeID string) *types.MCTSStats {
	st, ok := s.stats[nodeID]
	if !ok {
		st = &types.MCTSStats{}
		s.stats[nodeID] = st
	}
	return st
}

// Stats returns a copy of a node's transient MCTS statistics.
func (s *Search) Stats(nodeID string) types.MCTSStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsFor(nodeID)
	return *st
}

// Iterate runs up to n select-expand-evaluate-backprop iterations, returning
// early (with whatever progress was made) if ctx is cancelled — the core's
// "MCTS partial results are always returned even on timeout" contract.
func (s *Search) Iterate(ctx context.Context, n int) (int, error) {
	completed := 0
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return completed, nil
		default:
		}
		if err := s.iterateOnce(ctx); err != nil {
			if errs.Is(err, errs.BranchLimit) {
				// Tree exhausted at current limits: not an error condition,
				// stop iterating early and report partial progress.
				return completed, nil
			}
			return completed, err
		}
		completed++
	}
	return completed, nil
}

func (s *Search) iterateOnce(ctx context.Context) error {
	leaf, path, err := s.selectLeaf(s.rootID)
	if err != nil {
		return err
	}

	expanded := leaf
	children, err := s.tree.Children(leaf)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		node, err := s.tree.Get(leaf)
		if err != nil {
			return err
		}
		if node.Status == types.ToTOpen || node.Status == types.ToTExpanded {
			if _, err := s.tree.Expand(leaf, node.Question+" — follow-up", false); err == nil {
				kids, _ := s.tree.Children(leaf)
				if len(kids) > 0 {
					expanded = kids[len(kids)-1].ID
					path = append(path, expanded)
				}
			}
		}
	}

	value, err := s.evaluate(ctx, expanded)
	if err != nil {
		return err
	}
	s.backprop(path, value)
	return nil
}

// selectLeaf walks from root to a leaf using UCB1+gap_bonus selection,
// returning the leaf id and the full root-to-leaf path (inclusive).
func (s *Search) selectLeaf(nodeID string) (string, []string, error) {
	path := []string{nodeID}
	current := nodeID
	for {
		children, err := s.tree.Children(current)
		if err != nil {
			return "", nil, err
		}
		if len(children) == 0 {
			return current, path, nil
		}
		next, err := s.selectChild(current, children)
		if err != nil {
			return "", nil, err
		}
		path = append(path, next)
		current = next
	}
}

// selectChild scores every child with U = exploitation + C·exploration +
// λ·gap_bonus and returns the highest-scoring one, tie-breaking lexically on
// node id for determinism (spec §4.6, scenario S4).
func (s *Search) selectChild(parentID string, children []*types.ToTNode) (string, error) {
	s.mu.Lock()
	parentVisits := s.statsFor(parentID).Visits
	s.mu.Unlock()

	type scored struct {
		id    string
		score float64
	}
	scores := make([]scored, 0, len(children))
	for _, c := range children {
		s.mu.Lock()
		st := s.statsFor(c.ID)
		visits, valueSum := st.Visits, st.ValueSum
		s.mu.Unlock()

		exploitation := 0.0
		if visits > 0 {
			exploitation = valueSum / float64(visits)
		}
		exploration := math.Sqrt(math.Log(float64(parentVisits)+1) / float64(maxInt(visits, 1)))

		cov, err := s.coverageA.Compute(c.ID)
		if err != nil {
			return "", err
		}
		gapBonus := (1 - cov.Overall) * s.params.CoverageWeight

		u := exploitation + s.params.C*exploration + s.params.Lambda*gapBonus
		scores = append(scores, scored{id: c.ID, score: u})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].id < scores[j].id
	})
	return scores[0].id, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// evaluate computes U_node per spec §4.6's multi-dimensional formula.
func (s *Search) evaluate(ctx context.Context, nodeID string) (float64, error) {
	inputs, err := s.eval.Inputs(ctx, nodeID)
	if err != nil {
		return 0, err
	}
	roiNorm := math.Min(1, inputs.ROIPerHour/100)

	normalizer := inputs.RiskNormalizer
	if normalizer <= 0 {
		normalizer = 1
	}
	risk := types.Clamp(float64(inputs.DisputeCount+inputs.AxiomViolations)/normalizer, 0, 1)

	u := s.params.WConfidence*inputs.Confidence +
		s.params.WROI*roiNorm +
		s.params.WRisk*(1-risk) +
		s.params.WAxiom*inputs.AxiomAlignment
	return u, nil
}

// backprop adds value to value_sum and increments visits for every node on
// path (root to leaf inclusive).
func (s *Search) backprop(path []string, value float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range path {
		st := s.statsFor(id)
		st.Visits++
		st.ValueSum += value
	}
}

// BestPath returns the root-to-leaf path with the highest mean value at each
// step (the tree's current best recommendation).
func (s *Search) BestPath() ([]string, error) {
	path := []string{s.rootID}
	current := s.rootID
	for {
		children, err := s.tree.Children(current)
		if err != nil {
			return nil, err
		}
		if len(children) == 0 {
			return path, nil
		}
		s.mu.Lock()
		var best string
		var bestMean = math.Inf(-1)
		ids := make([]string, 0, len(children))
		for _, c := range children {
			ids = append(ids, c.ID)
		}
		sort.Strings(ids)
		for _, id := range ids {
			st := s.statsFor(id)
			mean := st.Mean()
			if mean > bestMean {
				bestMean = mean
				best = id
			}
		}
		s.mu.Unlock()
		if best == "" {
			return path, nil
		}
		path = append(path, best)
		current = best
	}
}

// Suggestion is one coverage-gap recommendation from suggestions(top_k).
type Suggestion struct {
	NodeID string
	Reason string
	Gap    float64 // 1 - coverage_overall
}

// Suggestions returns the top_k ToT nodes with the lowest coverage_overall,
// tie-broken by shallower depth first.
func (s *Search) Suggestions(topK int) ([]Suggestion, error) {
	nodes := s.tree.All()
	type scored struct {
		node types.ToTNode
		snap types.CoverageSnapshot
	}
	scoredNodes := make([]scored, 0, len(nodes))
	for _, n := range nodes {
		snap, err := s.coverageA.Compute(n.ID)
		if err != nil {
			return nil, err
		}
		scoredNodes = append(scoredNodes, scored{node: *n, snap: snap})
	}
	sort.Slice(scoredNodes, func(i, j int) bool {
		gi, gj := 1-scoredNodes[i].snap.Overall, 1-scoredNodes[j].snap.Overall
		if gi != gj {
			return gi > gj
		}
		return scoredNodes[i].node.Depth < scoredNodes[j].node.Depth
	})
	if topK > 0 && len(scoredNodes) > topK {
		scoredNodes = scoredNodes[:topK]
	}
	out := make([]Suggestion, 0, len(scoredNodes))
	for _, sc := range scoredNodes {
		out = append(out, Suggestion{
			NodeID: sc.node.ID,
			Gap:     1 - sc.snap.Overall,
			Reason:  lowestDimensionReason(sc.snap),
		})
	}
	return out, nil
}

func lowestDimensionReason(s types.CoverageSnapshot) string {
	lowest := "entity_density"
	min := s.EntityDensity
	if s.ExplorationDepth < min {
		lowest, min = "exploration_depth", s.ExplorationDepth
	}
	if s.AxiomCoverage < min {
		lowest, min = "axiom_coverage", s.AxiomCoverage
	}
	if s.NeighborCoverage < min {
		lowest = "neighbor_coverage"
	}
	return "lowest dimension: " + lowest
}
