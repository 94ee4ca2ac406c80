// Package coverage implements CoverageAnalyzer: a four-dimensional score per
// ToT node (entity_density, exploration_depth, axiom_coverage,
// neighbor_coverage) plus an aggregate, cached per (node_id, snapshot_id) so
// a graph mutation invalidates every cache entry simply by changing the key
// (spec's Open Question (c): "global-on-write").
//
// Grounded on the teacher's internal/metacognition/self_eval.go
// multi-dimension weighted-aggregate pattern and internal/metrics/
// collector.go's cache-keyed-by-version idiom.
package coverage

import (
	"sort"
	"sync"

	"axiomforge/internal/errs"
	"axiomforge/internal/graph"
	"axiomforge/internal/tot"
	"axiomforge/internal/types"
)

// Weights configures the four-dimension aggregate (spec §4.7 defaults).
type Weights struct {
	Entity, Depth, Axiom, Neighbor float64
}

// DefaultWeights matches the spec's fixed aggregate formula:
// overall = 0.3·entity + 0.2·depth + 0.3·axiom + 0.2·neighbor.
func DefaultWeights() Weights {
	return Weights{Entity: 0.3, Depth: 0.2, Axiom: 0.3, Neighbor: 0.2}
}

// SessionParams are the session-configured knobs the dimensions need.
type SessionParams struct {
	MaxDepth        int
	BranchingFactor int
	TotalAxioms     int
}

// Analyzer computes and caches coverage snapshots.
type Analyzer struct {
	mu      sync.Mutex
	g       *graph.KnowledgeGraph
	tree    *tot.Tree
	weights Weights
	params  SessionParams
	cache   map[string]types.CoverageSnapshot // key: node_id + "@" + snapshot_id
}

// New constructs an Analyzer bound to a graph and tree (both already owned
// elsewhere; Analyzer only reads from them).
func New(g *graph.KnowledgeGraph, tree *tot.Tree, weights Weights, params SessionParams) *Analyzer {
	return &Analyzer{g: g, tree: tree, weights: weights, params: params, cache: make(map[string]types.CoverageSnapshot)}
}

func cacheKey(nodeID string, snapshotID int64) string {
	return nodeID + "@" + itoa(snapshotID)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Compute returns the coverage snapshot for a node, using the cache when the
// graph hasn't mutated since the last computation for that node.
func (a *Analyzer) Compute(nodeID string) (types.CoverageSnapshot, error) {
	node, err := a.tree.Get(nodeID)
	if err != nil {
		return types.CoverageSnapshot{}, err
	}
	snapID := a.g.SnapshotID()
	key := cacheKey(nodeID, snapID)

	a.mu.Lock()
	if cached, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	entityDensity, err := a.entityDensity(node)
	if err != nil {
		return types.CoverageSnapshot{}, err
	}
	depth := a.explorationDepth(node)
	axiomCov := a.axiomCoverage(node)
	neighborCov, err := a.neighborCoverage(node)
	if err != nil {
		return types.CoverageSnapshot{}, err
	}

	overall := a.weights.Entity*entityDensity + a.weights.Depth*depth +
		a.weights.Axiom*axiomCov + a.weights.Neighbor*neighborCov

	snap := types.CoverageSnapshot{
		NodeID: nodeID, SnapshotID: snapID,
		EntityDensity: entityDensity, ExplorationDepth: depth,
		AxiomCoverage: axiomCov, NeighborCoverage: neighborCov,
		Overall: types.Clamp(overall, 0, 1),
	}

	a.mu.Lock()
	a.cache[key] = snap
	a.mu.Unlock()
	return snap, nil
}

// entityDensity is the density (edges / possible edges) of the induced
// subgraph on graph_entities ∪ 1-hop neighbors; 0 if no entities.
func (a *Analyzer) entityDensity(node *types.ToTNode) (float64, error) {
	if len(node.GraphEntities) == 0 {
		return 0, nil
	}
	seeds := append([]string{}, node.GraphEntities...)
	sub, err := a.g.EgoSubgraph(seeds, 1, 0)
	if err != nil {
		if errs.Is(err, errs.UnknownEntity) {
			return 0, nil
		}
		return 0, err
	}
	n := len(sub.Entities)
	if n < 2 {
		return 0, nil
	}
	maxEdges := float64(n * (n - 1))
	return types.Clamp(float64(len(sub.Edges))/maxEdges, 0, 1), nil
}

// explorationDepth = 0.6·depth/max_depth + 0.4·children_answered/branching_factor.
func (a *Analyzer) explorationDepth(node *types.ToTNode) float64 {
	maxDepth := a.params.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1
	}
	branching := a.params.BranchingFactor
	if branching <= 0 {
		branching = 1
	}

	children, _ := a.tree.Children(node.ID)
	answered := 0
	for _, c := range children {
		if c.Status == types.ToTAnswered {
			answered++
		}
	}

	depthTerm := float64(node.Depth) / float64(maxDepth)
	childTerm := float64(answered) / float64(branching)
	return types.Clamp(0.6*depthTerm+0.4*childTerm, 0, 1)
}

// axiomCoverage = (tested/total) boosted multiplicatively by mean score
// (spec Open Question (b) resolution).
func (a *Analyzer) axiomCoverage(node *types.ToTNode) float64 {
	total := a.params.TotalAxioms
	if total <= 0 {
		return 0
	}
	tested := len(node.TestedAxioms)
	breadth := types.Clamp(float64(tested)/float64(total), 0, 1)
	// meanScoreNorm defaults to neutral (1.0, the top of the formula's
	// 0.5..1.0 range) so breadth alone drives the score until a mean axiom
	// score has actually been recorded for this node.
	meanScoreNorm := 1.0
	if v, ok := node_meanAxiomScore(node); ok {
		meanScoreNorm = (v + 1) / 2 // map [-1,1] onto [0,1]
	}
	return types.Clamp(breadth*(0.5+0.5*meanScoreNorm), 0, 1)
}

// node_meanAxiomScore reads the mean AxiomJudge score recorded on the node
// (range [-1,1]) by the orchestrator's MCTS evaluator via
// tot.Tree.RecordAxiomScore, once axioms have actually been tested against
// it.
func node_meanAxiomScore(node *types.ToTNode) (float64, bool) {
	if !node.AxiomScoreRecorded {
		return 0, false
	}
	return node.MeanAxiomScore, true
}

// neighborCoverage = fraction of 1-hop neighbors of graph_entities that
// appear in the graph_entities of any answered ToT node.
func (a *Analyzer) neighborCoverage(node *types.ToTNode) (float64, error) {
	if len(node.GraphEntities) == 0 {
		return 0, nil
	}
	neighborSet := map[string]struct{}{}
	for _, e := range node.GraphEntities {
		neighbors, err := a.g.GetNeighbors(e, 1)
		if err != nil {
			if errs.Is(err, errs.UnknownEntity) {
				continue
			}
			return 0, err
		}
		for _, n := range neighbors {
			neighborSet[n] = struct{}{}
		}
	}
	if len(neighborSet) == 0 {
		return 0, nil
	}

	covered := map[string]struct{}{}
	for _, n := range a.tree.All() {
		if n.Status != types.ToTAnswered {
			continue
		}
		for _, e := range n.GraphEntities {
			if _, ok := neighborSet[e]; ok {
				covered[e] = struct{}{}
			}
		}
	}
	return types.Clamp(float64(len(covered))/float64(len(neighborSet)), 0, 1), nil
}

// Gap is one under-covered node with a human-readable reason.
type Gap struct {
	Node    types.ToTNode
	Overall float64
	Reason  string
}

// IdentifyGaps returns nodes with overall < threshold, sorted descending by
// (1 - overall).
func (a *Analyzer) IdentifyGaps(threshold float64) ([]Gap, error) {
	var gaps []Gap
	for _, n := range a.tree.All() {
		snap, err := a.Compute(n.ID)
		if err != nil {
			return nil, err
		}
		if snap.Overall < threshold {
			gaps = append(gaps, Gap{Node: *n, Overall: snap.Overall, Reason: lowestDimensionReason(snap)})
		}
	}
	sort.Slice(gaps, func(i, j int) bool {
		gi, gj := 1-gaps[i].Overall, 1-gaps[j].Overall
		return gi > gj
	})
	return gaps, nil
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
