// Package graph implements the weighted, source-attributed, conflict-aware
// knowledge graph: the system's single source of truth for entities, claim
// edges, sources, and conflict records.
//
// The graph engine is github.com/dominikbraun/graph, used exactly as the
// teacher's Graph-of-Thoughts controller uses it (in-memory directed graph
// keyed by string identity) — it tracks topology only; the rich, possibly
// multi-edge claim data lives in KnowledgeGraph's own maps, since the library
// graph does not support parallel edges between the same pair of vertices.
package graph

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	dgraph "github.com/dominikbraun/graph"
	"github.com/google/uuid"

	"axiomforge/internal/errs"
	"axiomforge/internal/types"
)

// Config bounds the graph's resource usage.
type Config struct {
	// NodeCap is the entity count above which CapacityExceeded reports true
	// and ArchiveOldestLeaves removes the lowest-PageRank, oldest leaf nodes.
	// UpsertEntity and AddClaim call neither, so the cap is not enforced on
	// insert.
	NodeCap int
	// DampingFactor is PageRank's damping factor (spec leaves this
	// unspecified; 0.85 is the conventional default).
	DampingFactor float64
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{NodeCap: 5000, DampingFactor: 0.85}
}

// Resolver decides how to reconcile a newly-ingested claim edge against an
// existing parallel claim. Implemented by internal/conflict.Resolver; defined
// here (rather than imported) so this package never depends on conflict.
type Resolver interface {
	Resolve(ctx context.Context, existing, incoming *types.ClaimEdge, sources map[string]*types.Source) (*Resolution, error)
}

// ResolutionAction is the outcome of a Resolver decision.
type ResolutionAction string

const (
	ActionMerge    ResolutionAction = "merge"
	ActionWinner   ResolutionAction = "winner"
	ActionEscalate ResolutionAction = "escalate"
)

// Resolution is what a Resolver returns for a parallel-claim conflict.
type Resolution struct {
	Action ResolutionAction

	// For ActionMerge: the combined edge replacing `existing` in place.
	MergedEdge *types.ClaimEdge

	// For ActionWinner: whether the incoming edge is the winner (otherwise
	// the existing edge wins).
	WinnerIsIncoming bool

	Tier             string  // "T1", "T2", "T3"
	Margin           float64 // winning margin (T1) or 0
	Kind             types.ConflictKind
	ResearchQuestion string // for ActionEscalate
	Note             string
}

// AddClaimOutcome reports what add_claim actually did.
type AddClaimOutcome struct {
	Inserted   bool
	Merged     bool
	Conflicted bool
	EdgeID     string
	ConflictID string
}

// KnowledgeGraph is the weighted, source-attributed, conflict-aware
// knowledge graph. All mutation funnels through a single mutex-guarded
// writer (spec §5); reads return deep copies.
type KnowledgeGraph struct {
	mu sync.Mutex

	cfg      Config
	resolver Resolver

	g dgraph.Graph[string, string] // topology only, vertex = entity id

	entities map[string]*types.Entity
	edges    map[string]*types.ClaimEdge
	sources  map[string]*types.Source
	conflict map[string]*types.Conflict

	// parallelIndex maps a normalized (subject,predicate,object) key to the
	// edge IDs sharing that key, in insertion order.
	parallelIndex map[string][]string

	// adjOut/adjIn index outgoing/incoming edge IDs per entity for
	// get_neighbors/ego_subgraph BFS.
	adjOut map[string][]string
	adjIn  map[string][]string

	snapshotID int64
}

// New creates an empty knowledge graph.
func New(cfg Config, resolver Resolver) *KnowledgeGraph {
	return &KnowledgeGraph{
		cfg:           cfg,
		resolver:      resolver,
		g:             dgraph.New(dgraph.StringHash, dgraph.Directed()),
		entities:      make(map[string]*types.Entity),
		edges:         make(map[string]*types.ClaimEdge),
		sources:       make(map[string]*types.Source),
		conflict:      make(map[string]*types.Conflict),
		parallelIndex: make(map[string][]string),
		adjOut:        make(map[string][]string),
		adjIn:         make(map[string][]string),
	}
}

// SnapshotID returns the current monotonic mutation counter, used by
// downstream caches (coverage, serializer) to invalidate on write.
func (kg *KnowledgeGraph) SnapshotID() int64 {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	return kg.snapshotID
}

func (kg *KnowledgeGraph) bumpSnapshot() {
	kg.snapshotID++
}

// RegisterSource records a source in the registry. Sources are never mutated
// once created.
func (kg *KnowledgeGraph) RegisterSource(src *types.Source) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	if src.ID == "" {
		src.ID = uuid.NewString()
	}
	if src.Timestamp.IsZero() {
		src.Timestamp = time.Now()
	}
	kg.sources[src.ID] = src
}

// GetSource returns a copy of a registered source.
func (kg *KnowledgeGraph) GetSource(id string) (*types.Source, bool) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	s, ok := kg.sources[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// UpsertEntity inserts or updates an entity. Confidence is only ever raised
// through merge_evidence (see MergeEvidence); a bare Upsert on an existing id
// updates mutable attributes (label, sources, metadata) without touching
// confidence unless the caller explicitly supplies a higher value.
func (kg *KnowledgeGraph) UpsertEntity(e *types.Entity) (*types.Entity, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	kg.mu.Lock()
	defer kg.mu.Unlock()

	existing, ok := kg.entities[e.ID]
	if !ok {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		cp := *e
		kg.entities[e.ID] = &cp
		if err := kg.g.AddVertex(e.ID); err != nil && err != dgraph.ErrVertexAlreadyExists {
			return nil, errs.Wrap(errs.Internal, "add vertex", err)
		}
		kg.bumpSnapshot()
		out := *kg.entities[e.ID]
		return &out, nil
	}

	// Update mutable attributes; merge source sets; keep higher confidence.
	merged := *existing
	if e.Label != "" {
		merged.Label = e.Label
	}
	if e.Type != "" {
		merged.Type = e.Type
	}
	merged.Sources = unionStrings(merged.Sources, e.Sources)
	if e.Confidence > merged.Confidence {
		merged.Confidence = e.Confidence
	}
	if e.Metadata != nil {
		if merged.Metadata == nil {
			merged.Metadata = types.Metadata{}
		}
		for k, v := range e.Metadata {
			merged.Metadata[k] = v
		}
	}
	kg.entities[e.ID] = &merged
	kg.bumpSnapshot()
	out := merged
	return &out, nil
}

// GetEntity returns a deep copy of an entity, or UnknownEntity.
func (kg *KnowledgeGraph) GetEntity(id string) (*types.Entity, error) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	e, ok := kg.entities[id]
	if !ok {
		return nil, errs.Newf(errs.UnknownEntity, "entity %q not found", id)
	}
	cp := *e
	return &cp, nil
}

// MergeEvidence raises an entity's confidence and disputed/axiom_alignment
// derived fields; this is the only sanctioned path for confidence increases
// (spec §3 invariant).
func (kg *KnowledgeGraph) MergeEvidence(id string, newConfidence float64, axiomAlignment *float64, disputed *bool) error {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	e, ok := kg.entities[id]
	if !ok {
		return errs.Newf(errs.UnknownEntity, "entity %q not found", id)
	}
	if newConfidence > e.Confidence {
		e.Confidence = newConfidence
	}
	if axiomAlignment != nil {
		e.AxiomAlignment = types.Clamp(*axiomAlignment, -1, 1)
	}
	if disputed != nil {
		e.Disputed = *disputed
	}
	kg.bumpSnapshot()
	return nil
}

// normalizeObjectKey decides what "object-normalized" means for the parallel
// edge lookup (spec §4.1): for quantity-typed targets, claims disagree on
// *value* while sharing the same (subject, predicate) slot, so the value
// itself is excluded from the identity key — only the target's declared
// "kind" (falling back to the predicate name) distinguishes one quantity
// slot from another. For every other entity type, the target's identity is
// the object.
func (kg *KnowledgeGraph) normalizeObjectKey(predicate string, target *types.Entity) string {
	if target != nil && target.Type == types.EntityQuantity {
		if kind, ok := target.Metadata["kind"].(string); ok && kind != "" {
			return "quantity:" + kind
		}
		return "quantity:" + predicate
	}
	if target != nil {
		return target.ID
	}
	return ""
}

func parallelKey(subject, predicate, objectNorm string) string {
	return subject + "\x00" + predicate + "\x00" + objectNorm
}

// AddClaim inserts a claim edge, invoking the Resolver when a parallel claim
// already exists (spec §4.1 contract). Insertion is atomic from the caller's
// perspective: the whole decision runs under the graph's single writer lock.
func (kg *KnowledgeGraph) AddClaim(ctx context.Context, edge *types.ClaimEdge) (*AddClaimOutcome, error) {
	if edge.Subject == "" || edge.Object == "" || edge.Predicate == "" {
		return nil, errs.New(errs.InvalidInput, "claim edge requires subject, predicate, object")
	}
	if len(edge.Evidence) == 0 {
		return nil, errs.New(errs.InvalidInput, "claim edge requires at least one evidence item")
	}

	kg.mu.Lock()
	defer kg.mu.Unlock()

	if _, ok := kg.entities[edge.Subject]; !ok {
		return nil, errs.Newf(errs.UnknownEntity, "subject %q not found", edge.Subject)
	}
	target, ok := kg.entities[edge.Object]
	if !ok {
		return nil, errs.Newf(errs.UnknownEntity, "object %q not found", edge.Object)
	}
	for _, ev := range edge.Evidence {
		if _, ok := kg.sources[ev.SourceID]; !ok {
			return nil, errs.Newf(errs.InvalidInput, "evidence references unknown source %q", ev.SourceID)
		}
	}

	objNorm := kg.normalizeObjectKey(edge.Predicate, target)
	key := parallelKey(edge.Subject, edge.Predicate, objNorm)
	existingIDs := kg.parallelIndex[key]

	// Find the current non-disputed edge for this key, if any.
	var existing *types.ClaimEdge
	for _, id := range existingIDs {
		if e := kg.edges[id]; e != nil && !e.Disputed {
			existing = e
			break
		}
	}

	if existing == nil {
		// No live parallel claim: plain insert. Still check exact duplicate
		// (idempotence, spec property #8): identical (subject,predicate,
		// object,evidence) already present and disputed=false.
		if dupID := kg.findExactDuplicate(edge); dupID != "" {
			return &AddClaimOutcome{Merged: true, EdgeID: dupID}, nil
		}
		id := kg.insertEdge(edge, false)
		kg.parallelIndex[key] = append(kg.parallelIndex[key], id)
		kg.bumpSnapshot()
		return &AddClaimOutcome{Inserted: true, EdgeID: id}, nil
	}

	if dupID := kg.findExactDuplicate(edge); dupID != "" && dupID == existing.ID {
		return &AddClaimOutcome{Merged: true, EdgeID: dupID}, nil
	}

	if kg.resolver == nil {
		return nil, errs.New(errs.Internal, "no conflict resolver configured")
	}
	res, err := kg.resolver.Resolve(ctx, existing, edge, kg.sources)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "conflict resolution failed", err)
	}

	conflictID := uuid.NewString()
	now := time.Now()
	record := &types.Conflict{
		ID:        conflictID,
		Kind:      res.Kind,
		CreatedAt: now,
		UpdatedAt: now,
	}

	switch res.Action {
	case ActionMerge:
		res.MergedEdge.ID = existing.ID
		res.MergedEdge.Disputed = false
		res.MergedEdge.ResolutionHistory = append(existing.ResolutionHistory, types.ResolutionEvent{
			Tier: res.Tier, Note: "merge:" + res.Note, Timestamp: now,
		})
		kg.edges[existing.ID] = res.MergedEdge
		record.Status = types.ConflictResolved
		record.Winner = existing.ID
		record.EdgeIDs = []string{existing.ID}
		record.History = res.MergedEdge.ResolutionHistory
		kg.conflict[conflictID] = record
		kg.bumpSnapshot()
		return &AddClaimOutcome{Merged: true, EdgeID: existing.ID, ConflictID: conflictID}, nil

	case ActionWinner:
		incomingID := kg.insertEdge(edge, true)
		kg.parallelIndex[key] = append(kg.parallelIndex[key], incomingID)

		var winnerID, loserID string
		if res.WinnerIsIncoming {
			winnerID, loserID = incomingID, existing.ID
		} else {
			winnerID, loserID = existing.ID, incomingID
		}
		winner := kg.edges[winnerID]
		loser := kg.edges[loserID]
		winner.Disputed = false
		winner.BaseConfidence = types.Clamp(winner.BaseConfidence+0.05, 0, 0.95)
		winner.ResolutionHistory = append(winner.ResolutionHistory, types.ResolutionEvent{
			Tier: res.Tier, Winner: winnerID, Margin: res.Margin, Timestamp: now,
		})
		loser.Disputed = true
		loser.Weight = loser.Weight * 0.25
		loser.ResolutionHistory = append(loser.ResolutionHistory, types.ResolutionEvent{
			Tier: res.Tier, Winner: winnerID, Margin: res.Margin, Timestamp: now,
		})

		record.Status = types.ConflictResolved
		record.Winner = winnerID
		record.EdgeIDs = []string{existing.ID, incomingID}
		record.History = append(append([]types.ResolutionEvent{}, winner.ResolutionHistory...), loser.ResolutionHistory...)
		kg.conflict[conflictID] = record
		kg.bumpSnapshot()
		return &AddClaimOutcome{Conflicted: true, EdgeID: winnerID, ConflictID: conflictID}, nil

	case ActionEscalate:
		incomingID := kg.insertEdge(edge, true)
		kg.parallelIndex[key] = append(kg.parallelIndex[key], incomingID)
		existing.Disputed = true
		event := types.ResolutionEvent{Tier: res.Tier, Note: res.ResearchQuestion, Timestamp: now}
		existing.ResolutionHistory = append(existing.ResolutionHistory, event)
		incoming := kg.edges[incomingID]
		incoming.ResolutionHistory = append(incoming.ResolutionHistory, event)

		record.Status = types.ConflictEscalated
		record.EdgeIDs = []string{existing.ID, incomingID}
		record.History = []types.ResolutionEvent{event}
		kg.conflict[conflictID] = record
		kg.bumpSnapshot()
		return &AddClaimOutcome{Conflicted: true, EdgeID: incomingID, ConflictID: conflictID}, nil

	default:
		return nil, errs.Newf(errs.Internal, "unknown resolution action %q", res.Action)
	}
}

// ResearchQuestionFor returns the templated research question recorded for an
// escalated conflict, if any, so the Orchestrator can spin up a ToT node.
func (kg *KnowledgeGraph) ResearchQuestionFor(conflictID string) (string, bool) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	c, ok := kg.conflict[conflictID]
	if !ok {
		return "", false
	}
	for _, h := range c.History {
		if h.Note != "" {
			return h.Note, true
		}
	}
	return "", false
}

// LinkConflictResearchNode records which ToT node was spun up to research an
// escalated conflict.
func (kg *KnowledgeGraph) LinkConflictResearchNode(conflictID, nodeID string) error {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	c, ok := kg.conflict[conflictID]
	if !ok {
		return errs.Newf(errs.InvalidInput, "conflict %q not found", conflictID)
	}
	c.ResearchNodeID = nodeID
	c.UpdatedAt = time.Now()
	return nil
}

// GetConflict returns a deep copy of a conflict record.
func (kg *KnowledgeGraph) GetConflict(id string) (*types.Conflict, error) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	c, ok := kg.conflict[id]
	if !ok {
		return nil, errs.Newf(errs.InvalidInput, "conflict %q not found", id)
	}
	cp := *c
	return &cp, nil
}

// ListConflicts returns deep copies of every conflict record, newest first.
func (kg *KnowledgeGraph) ListConflicts() []*types.Conflict {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	out := make([]*types.Conflict, 0, len(kg.conflict))
	for _, c := range kg.conflict {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// ResolveIntervention applies a human decision to an escalated conflict
// (spec §6 session API surface).
func (kg *KnowledgeGraph) ResolveIntervention(conflictID string, choice types.InterventionChoice) error {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	c, ok := kg.conflict[conflictID]
	if !ok {
		return errs.Newf(errs.InvalidInput, "conflict %q not found", conflictID)
	}
	if len(c.EdgeIDs) < 2 {
		return errs.New(errs.Internal, "escalated conflict missing both edges")
	}
	a, b := kg.edges[c.EdgeIDs[0]], kg.edges[c.EdgeIDs[1]]
	now := time.Now()
	switch choice {
	case types.InterventionKeepA:
		a.Disputed = false
		b.Disputed = true
		b.Weight = b.Weight * 0.25
		c.Winner = a.ID
		c.Status = types.ConflictResolved
	case types.InterventionKeepB:
		b.Disputed = false
		a.Disputed = true
		a.Weight = a.Weight * 0.25
		c.Winner = b.ID
		c.Status = types.ConflictResolved
	case types.InterventionBoth:
		a.Disputed = true
		b.Disputed = true
		c.Status = types.ConflictBothDisputed
	case types.InterventionEscalate:
		c.Status = types.ConflictEscalated
	default:
		return errs.Newf(errs.InvalidInput, "unknown intervention choice %q", choice)
	}
	c.History = append(c.History, types.ResolutionEvent{Tier: "human", Note: string(choice), Timestamp: now})
	c.UpdatedAt = now
	kg.bumpSnapshot()
	return nil
}

func (kg *KnowledgeGraph) findExactDuplicate(edge *types.ClaimEdge) string {
	key := parallelKey(edge.Subject, edge.Predicate, kg.normalizeObjectKey(edge.Predicate, kg.entities[edge.Object]))
	for _, id := range kg.parallelIndex[key] {
		e := kg.edges[id]
		if e == nil || e.Object != edge.Object {
			continue
		}
		if sameEvidence(e.Evidence, edge.Evidence) {
			return id
		}
	}
	return ""
}

func sameEvidence(a, b []types.EvidenceItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].SourceID != b[i].SourceID || a[i].Snippet != b[i].Snippet {
			return false
		}
	}
	return true
}

// insertEdge assigns an ID, stores the edge, and maintains the adjacency
// indices and topology graph. Caller holds kg.mu.
func (kg *KnowledgeGraph) insertEdge(edge *types.ClaimEdge, disputed bool) string {
	cp := *edge
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.Disputed = disputed
	cp.Weight = types.Clamp(cp.Weight, -1, 1)
	kg.edges[cp.ID] = &cp

	if err := kg.g.AddEdge(cp.Subject, cp.Object); err != nil && err != dgraph.ErrEdgeAlreadyExists {
		log.Printf("[WARN] graph: topology edge %s->%s: %v", cp.Subject, cp.Object, err)
	}
	kg.adjOut[cp.Subject] = append(kg.adjOut[cp.Subject], cp.ID)
	kg.adjIn[cp.Object] = append(kg.adjIn[cp.Object], cp.ID)
	return cp.ID
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// SearchLabel returns entity IDs whose label shares at least one
// case-insensitive word with query, sorted by descending confidence then id.
// Used by the serializer's simple term-lookup seed extraction (spec §4.2
// step 1) when the caller supplies no explicit focus_ids.
func (kg *KnowledgeGraph) SearchLabel(query string) []string {
	terms := splitWords(query)
	if len(terms) == 0 {
		return nil
	}
	kg.mu.Lock()
	defer kg.mu.Unlock()

	type cand struct {
		id         string
		confidence float64
	}
	var matches []cand
	for id, e := range kg.entities {
		labelWords := splitWords(e.Label)
		if hasOverlap(terms, labelWords) {
			matches = append(matches, cand{id: id, confidence: e.Confidence})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].confidence != matches[j].confidence {
			return matches[i].confidence > matches[j].confidence
		}
		return matches[i].id < matches[j].id
	})
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.id
	}
	return out
}

func splitWords(s string) map[string]struct{} {
	out := make(map[string]struct{})
	word := make([]rune, 0, 16)
	flush := func() {
		if len(word) > 0 {
			out[string(word)] = struct{}{}
			word = word[:0]
		}
	}
	for _, r := range s {
		lr := r
		if lr >= 'A' && lr <= 'Z' {
			lr += 'a' - 'A'
		}
		if (lr >= 'a' && lr <= 'z') || (lr >= '0' && lr <= '9') {
			word = append(word, lr)
		} else {
			flush()
		}
	}
	flush()
	return out
}

func hasOverlap(a, b map[string]struct{}) bool {
	for w := range a {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}

// GetEdge returns a deep copy of an edge.
func (kg *KnowledgeGraph) GetEdge(id string) (*types.ClaimEdge, error) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	e, ok := kg.edges[id]
	if !ok {
		return nil, errs.Newf(errs.InvalidInput, "edge %q not found", id)
	}
	cp := *e
	return &cp, nil
}

// FindParallelClaims returns every edge sharing the (subject, predicate,
// object-normalized) key of the given pattern edge.
func (kg *KnowledgeGraph) FindParallelClaims(subject, predicate, object string) []*types.ClaimEdge {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	target := kg.entities[object]
	objNorm := kg.normalizeObjectKey(predicate, target)
	key := parallelKey(subject, predicate, objNorm)
	ids := kg.parallelIndex[key]
	out := make([]*types.ClaimEdge, 0, len(ids))
	for _, id := range ids {
		if e := kg.edges[id]; e != nil {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// GetNeighbors returns entity IDs reachable from id within depth hops,
// following claim edges in either direction (spec §4.1).
func (kg *KnowledgeGraph) GetNeighbors(id string, depth int) ([]string, error) {
	kg.mu.Lock()
	defer kg.mu.Unlock()
	if _, ok := kg.entities[id]; !ok {
		return nil, errs.Newf(errs.UnknownEntity, "entity %q not found", id)
	}
	visited := kg.bfs([]string{id}, depth)
	delete(visited, id)
	out := make([]string, 0, len(visited))
	for v := range visited {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// bfs performs a deterministic breadth-first expansion from seeds up to
// depth hops. Caller holds kg.mu. Determinism: adjacency lists are walked in
// insertion order and the frontier is deduplicated via a visited set, so
// fixed seeds + fixed insertion order always produce the same result.
func (kg *KnowledgeGraph) bfs(seeds []string, depth int) map[string]struct{} {
	visited := make(map[string]struct{}, len(seeds))
	frontier := make([]string, 0, len(seeds))
	for _, s := range seeds {
		if _, ok := kg.entities[s]; !ok {
			continue
		}
		if _, ok := visited[s]; !ok {
			visited[s] = struct{}{}
			frontier = append(frontier, s)
		}
	}
	for d := 0; d < depth && len(frontier) > 0; d++ {
		next := make([]string, 0)
		for _, v := range frontier {
			for _, eid := range kg.adjOut[v] {
				e := kg.edges[eid]
				if e == nil {
					continue
				}
				if _, ok := visited[e.Object]; !ok {
					visited[e.Object] = struct{}{}
					next = append(next, e.Object)
				}
			}
			for _, eid := range kg.adjIn[v] {
				e := kg.edges[eid]
				if e == nil {
					continue
				}
				if _, ok := visited[e.Subject]; !ok {
					visited[e.Subject] = struct{}{}
					next = append(next, e.Subject)
				}
			}
		}
		sort.Strings(next)
		frontier = next
	}
	return visited
}

// EgoSubgraph returns the induced subgraph reachable from seeds within depth
// hops, truncated to limit nodes by descending PageRank (spec §4.1).
func (kg *KnowledgeGraph) EgoSubgraph(seeds []string, depth, limit int) (*Subgraph, error) {
	kg.mu.Lock()
	for _, s := range seeds {
		if _, ok := kg.entities[s]; !ok {
			kg.mu.Unlock()
			return nil, errs.Newf(errs.UnknownEntity, "seed entity %q not found", s)
		}
	}
	visited := kg.bfs(seeds, depth)
	kg.mu.Unlock()

	ranks := kg.PageRank(nil)

	nodeIDs := make([]string, 0, len(visited))
	for v := range visited {
		nodeIDs = append(nodeIDs, v)
	}
	sort.Slice(nodeIDs, func(i, j int) bool {
		if ranks[nodeIDs[i]] != ranks[nodeIDs[j]] {
			return ranks[nodeIDs[i]] > ranks[nodeIDs[j]]
		}
		return nodeIDs[i] < nodeIDs[j] // deterministic tie-break
	})
	if limit > 0 && len(nodeIDs) > limit {
		nodeIDs = nodeIDs[:limit]
	}
	keep := make(map[string]struct{}, len(nodeIDs))
	for _, id := range nodeIDs {
		keep[id] = struct{}{}
	}

	kg.mu.Lock()
	defer kg.mu.Unlock()
	entities := make([]*types.Entity, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		cp := *kg.entities[id]
		entities = append(entities, &cp)
	}
	edges := make([]*types.ClaimEdge, 0)
	for _, e := range kg.edges {
		if _, ok := keep[e.Subject]; !ok {
			continue
		}
		if _, ok := keep[e.Object]; !ok {
			continue
		}
		cp := *e
		edges = append(edges, &cp)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return &Subgraph{Entities: entities, Edges: edges}, nil
}

// Subgraph is an induced view of the knowledge graph.
type Subgraph struct {
	Entities []*types.Entity
	Edges    []*types.ClaimEdge
}

// PageRank computes PageRank over the entity graph (unweighted out-degree).
// When seeds is non-empty, a personalized PageRank is computed: the random
// restart jumps to a uniform distribution over seeds instead of the whole
// graph.
func (kg *KnowledgeGraph) PageRank(seeds []string) map[string]float64 {
	kg.mu.Lock()
	ids := make([]string, 0, len(kg.entities))
	for id := range kg.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	adj := make(map[string][]string, len(ids))
	for _, id := range ids {
		outs := make([]string, 0, len(kg.adjOut[id]))
		for _, eid := range kg.adjOut[id] {
			if e := kg.edges[eid]; e != nil {
				outs = append(outs, e.Object)
			}
		}
		adj[id] = outs
	}
	d := kg.cfg.DampingFactor
	kg.mu.Unlock()

	n := len(ids)
	if n == 0 {
		return map[string]float64{}
	}
	if d <= 0 {
		d = 0.85
	}

	restart := make(map[string]float64, n)
	if len(seeds) > 0 {
		share := 1.0 / float64(len(seeds))
		for _, s := range seeds {
			restart[s] += share
		}
	} else {
		share := 1.0 / float64(n)
		for _, id := range ids {
			restart[id] = share
		}
	}

	rank := make(map[string]float64, n)
	for _, id := range ids {
		rank[id] = 1.0 / float64(n)
	}

	const iterations = 40
	for it := 0; it < iterations; it++ {
		next := make(map[string]float64, n)
		for id, r := range restart {
			next[id] = (1 - d) * r
		}
		for _, id := range ids {
			outs := adj[id]
			if len(outs) == 0 {
				// Dangling node: redistribute its mass per the restart
				// distribution, the standard PageRank fix.
				share := rank[id]
				for rid, r := range restart {
					next[rid] += d * share * r
				}
				continue
			}
			share := d * rank[id] / float64(len(outs))
			for _, target := range outs {
				next[target] += share
			}
		}
		rank = next
	}
	return rank
}

// CapacityExceeded reports whether the graph is over its configured node
// cap (spec §4.1 failure mode). It archives nothing itself;
// ArchiveOldestLeaves does that.
func (kg *KnowledgeGraph) CapacityExceeded() bool {
	kg.mu.Lock()
	n := len(kg.entities)
	cap := kg.cfg.NodeCap
	kg.mu.Unlock()
	return cap > 0 && n > cap
}

// ArchiveOldestLeaves removes leaf entities (no outgoing edges) with the
// lowest PageRank until the graph is back at or under its node cap, or there
// are no more leaves to remove.
func (kg *KnowledgeGraph) ArchiveOldestLeaves() []string {
	if !kg.CapacityExceeded() {
		return nil
	}
	ranks := kg.PageRank(nil)

	kg.mu.Lock()
	defer kg.mu.Unlock()

	type cand struct {
		id   string
		rank float64
		at   time.Time
	}
	leaves := make([]cand, 0)
	for id, e := range kg.entities {
		if len(kg.adjOut[id]) > 0 {
			continue
		}
		leaves = append(leaves, cand{id: id, rank: ranks[id], at: e.CreatedAt})
	}
	sort.Slice(leaves, func(i, j int) bool {
		if leaves[i].rank != leaves[j].rank {
			return leaves[i].rank < leaves[j].rank
		}
		return leaves[i].at.Before(leaves[j].at)
	})

	removed := make([]string, 0)
	target := len(kg.entities) - kg.cfg.NodeCap
	for i := 0; i < len(leaves) && i < target; i++ {
		id := leaves[i].id
		delete(kg.entities, id)
		delete(kg.adjOut, id)
		delete(kg.adjIn, id)
		_ = kg.g.RemoveVertex(id)
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		kg.bumpSnapshot()
	}
	return removed
}
