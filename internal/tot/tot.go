// Package tot implements the Tree of Thoughts: a question/answer tree
// anchored to the knowledge graph, with an explicit node state machine
// (open -> expanded -> answered -> (pruned?)) and an orthogonal "research"
// tag for nodes spun up to investigate an escalated conflict.
//
// Grounded on the teacher's internal/modes/tree.go branch-creation/lookup
// pattern, adapted from free-form thought branches to the spec's fixed
// question/answer node shape with idempotent expansion.
package tot

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"axiomforge/internal/errs"
	"axiomforge/internal/types"
)

// Limits bounds tree growth (spec §4.5 "branch/depth limits").
type Limits struct {
	MaxDepth         int
	MaxChildrenPerNode int
}

// DefaultLimits mirrors the teacher's tree mode defaults.
func DefaultLimits() Limits {
	return Limits{MaxDepth: 12, MaxChildrenPerNode: 8}
}

// Tree owns the full set of ToT nodes for one research session.
type Tree struct {
	mu       sync.Mutex
	limits   Limits
	nodes    map[string]*types.ToTNode
	children map[string][]string

	// expansionIndex de-duplicates expand() calls keyed by
	// (parent_id, sha256(question)) so repeated identical expansion
	// requests are idempotent (spec property: "expansion is idempotent").
	expansionIndex map[string]string
}

// New creates an empty tree.
func New(limits Limits) *Tree {
	return &Tree{
		limits:         limits,
		nodes:          make(map[string]*types.ToTNode),
		children:       make(map[string][]string),
		expansionIndex: make(map[string]string),
	}
}

// CreateRoot creates the tree's root question node.
func (t *Tree) CreateRoot(question string) (*types.ToTNode, error) {
	if question == "" {
		return nil, errs.New(errs.InvalidInput, "root question must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	node := &types.ToTNode{
		ID: uuid.NewString(), Question: question, Depth: 0,
		Status: types.ToTOpen, CreatedAt: now, UpdatedAt: now,
	}
	t.nodes[node.ID] = node
	cp := *node
	return &cp, nil
}

func questionHash(parentID, question string) string {
	sum := sha256.Sum256([]byte(parentID + "\x00" + question))
	return hex.EncodeToString(sum[:])
}

// Expand creates a child question node under parentID. Calling Expand twice
// with the same (parentID, question) pair returns the original child rather
// than creating a duplicate (idempotence).
func (t *Tree) Expand(parentID, question string, research bool) (*types.ToTNode, error) {
	if question == "" {
		return nil, errs.New(errs.InvalidInput, "expansion question must not be empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, errs.Newf(errs.UnknownEntity, "tot node %q not found", parentID)
	}
	if parent.Status == types.ToTPruned {
		return nil, errs.Newf(errs.InvalidInput, "cannot expand pruned node %q", parentID)
	}
	key := questionHash(parentID, question)
	if existingID, ok := t.expansionIndex[key]; ok {
		cp := *t.nodes[existingID]
		return &cp, nil
	}

	if parent.Depth+1 > t.limits.MaxDepth {
		return nil, errs.Newf(errs.BranchLimit, "max depth %d exceeded", t.limits.MaxDepth)
	}
	if len(t.children[parentID]) >= t.limits.MaxChildrenPerNode {
		return nil, errs.Newf(errs.BranchLimit, "max children %d exceeded for node %q", t.limits.MaxChildrenPerNode, parentID)
	}

	now := time.Now()
	child := &types.ToTNode{
		ID: uuid.NewString(), ParentID: parentID, Question: question,
		Depth: parent.Depth + 1, Status: types.ToTOpen, Research: research,
		CreatedAt: now, UpdatedAt: now,
	}
	t.nodes[child.ID] = child
	t.children[parentID] = append(t.children[parentID], child.ID)
	t.expansionIndex[key] = child.ID

	if parent.Status == types.ToTOpen {
		parent.Status = types.ToTExpanded
		parent.UpdatedAt = now
	}

	cp := *child
	return &cp, nil
}

// Answer records a response on a node and moves it to the "answered" state,
// attaching any graph entities/axioms that grounded the answer.
func (t *Tree) Answer(nodeID, response string, graphEntities, testedAxioms []string) (*types.ToTNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[nodeID]
	if !ok {
		return nil, errs.Newf(errs.UnknownEntity, "tot node %q not found", nodeID)
	}
	if node.Status == types.ToTPruned {
		return nil, errs.Newf(errs.InvalidInput, "cannot answer pruned node %q", nodeID)
	}
	node.Response = response
	node.GraphEntities = append(append([]string{}, node.GraphEntities...), graphEntities...)
	node.TestedAxioms = append(append([]string{}, node.TestedAxioms...), testedAxioms...)
	node.Status = types.ToTAnswered
	node.UpdatedAt = time.Now()

	cp := *node
	return &cp, nil
}

// RecordAxiomScore stores the mean AxiomJudge score across a node's
// graph_entities, computed by a caller that holds an AxiomJudge (the
// orchestrator's MCTS evaluator). Feeds CoverageAnalyzer's axiom_coverage
// mean-score boost.
func (t *Tree) RecordAxiomScore(nodeID string, meanScore float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[nodeID]
	if !ok {
		return errs.Newf(errs.UnknownEntity, "tot node %q not found", nodeID)
	}
	node.MeanAxiomScore = meanScore
	node.AxiomScoreRecorded = true
	node.UpdatedAt = time.Now()
	return nil
}

// Prune marks a node (and, cascading, every descendant not already pruned,
// answered ones included) as pruned with the given reason.
func (t *Tree) Prune(nodeID, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[nodeID]
	if !ok {
		return errs.Newf(errs.UnknownEntity, "tot node %q not found", nodeID)
	}
	now := time.Now()
	var cascade func(id string)
	cascade = func(id string) {
		n := t.nodes[id]
		if n == nil || n.Status == types.ToTPruned {
			return
		}
		n.Status = types.ToTPruned
		n.PruneReason = reason
		n.UpdatedAt = now
		for _, childID := range t.children[id] {
			cascade(childID)
		}
	}
	cascade(nodeID)
	_ = node
	return nil
}

// Get returns a deep copy of a node.
func (t *Tree) Get(nodeID string) (*types.ToTNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[nodeID]
	if !ok {
		return nil, errs.Newf(errs.UnknownEntity, "tot node %q not found", nodeID)
	}
	cp := *n
	return &cp, nil
}

// Children returns deep copies of a node's direct children, in creation order.
func (t *Tree) Children(nodeID string) ([]*types.ToTNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.nodes[nodeID]; !ok {
		return nil, errs.Newf(errs.UnknownEntity, "tot node %q not found", nodeID)
	}
	ids := t.children[nodeID]
	out := make([]*types.ToTNode, 0, len(ids))
	for _, id := range ids {
		cp := *t.nodes[id]
		out = append(out, &cp)
	}
	return out, nil
}

// Path returns the root-to-node chain of question nodes (inclusive).
func (t *Tree) Path(nodeID string) ([]*types.ToTNode, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var chain []*types.ToTNode
	cur, ok := t.nodes[nodeID]
	if !ok {
		return nil, errs.Newf(errs.UnknownEntity, "tot node %q not found", nodeID)
	}
	for cur != nil {
		cp := *cur
		chain = append([]*types.ToTNode{&cp}, chain...)
		if cur.ParentID == "" {
			break
		}
		cur = t.nodes[cur.ParentID]
	}
	return chain, nil
}

// All returns deep copies of every node in the tree, for coverage/MCTS scans.
func (t *Tree) All() []*types.ToTNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*types.ToTNode, 0, len(t.nodes))
	for _, n := range t.nodes {
		cp := *n
		out = append(out, &cp)
	}
	return out
}
