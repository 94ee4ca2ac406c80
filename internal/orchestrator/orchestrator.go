// Package orchestrator implements the Orchestrator: the owner of a research
// session's lifecycle, driving the four-phase cycle (Exploration ->
// Grounding -> Reasoning -> Synthesis) and exposing the session API surface
// the core presents to callers. The Orchestrator never mutates the graph
// directly — it calls EvidenceIngest, drives MCTS iterations, and surfaces
// intervention requests for escalated conflicts.
//
// Generalizes the teacher's internal/orchestration workflow engine
// (Workflow/WorkflowStep/ReasoningContext/WorkflowResult, free-form
// sequential/parallel steps) into the spec's four fixed phases, and wires
// it to a thin outer server the way cmd/server/main.go + internal/server/
// server.go wire the teacher's UnifiedServer.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"axiomforge/internal/axiom"
	"axiomforge/internal/config"
	"axiomforge/internal/conflict"
	"axiomforge/internal/coverage"
	"axiomforge/internal/errs"
	"axiomforge/internal/governor"
	"axiomforge/internal/graph"
	"axiomforge/internal/ingest"
	"axiomforge/internal/mcts"
	"axiomforge/internal/modelregistry"
	"axiomforge/internal/persistence"
	"axiomforge/internal/serializer"
	"axiomforge/internal/tot"
	"axiomforge/internal/types"
)

// Phase names the four fixed stages of a research cycle (spec §4.9).
type Phase string

const (
	PhaseExploration Phase = "exploration"
	PhaseGrounding   Phase = "grounding"
	PhaseReasoning   Phase = "reasoning"
	PhaseSynthesis   Phase = "synthesis"
)

// Session owns one research session's full component graph.
type Session struct {
	mu sync.Mutex

	cfg      config.Config
	graph    *graph.KnowledgeGraph
	tree     *tot.Tree
	judge    *axiom.Judge
	resolver *conflict.Resolver
	coverage *coverage.Analyzer
	search   *mcts.Search
	gov      *governor.Governor
	registry *modelregistry.Registry
	ingestor ingest.EvidenceIngest
	serial   *serializer.Serializer

	rootID      string
	sessionID   string
	totalAxioms int
	store       *persistence.SnapshotStore

	eventsMu sync.Mutex
	events   []types.SessionEvent
}

// logEvent appends an entry to the session's append-only event log.
func (s *Session) logEvent(kind, detail string) {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	s.events = append(s.events, types.SessionEvent{Kind: kind, Detail: detail, At: time.Now()})
}

// Events returns a copy of the session's event log (spec §8 scenario S5).
func (s *Session) Events() []types.SessionEvent {
	s.eventsMu.Lock()
	defer s.eventsMu.Unlock()
	out := make([]types.SessionEvent, len(s.events))
	copy(out, s.events)
	return out
}

// AttachStore binds a SnapshotStore so the session's graph can be written to
// disk via Persist. Session has no method that reads a stored snapshot back;
// that is SnapshotStore.LoadSnapshot. Optional — a session with no store
// attached behaves exactly as before.
func (s *Session) AttachStore(sessionID string, store *persistence.SnapshotStore) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	s.store = store
}

// Persist writes the session's current graph snapshot to the attached
// SnapshotStore. A no-op if no store is attached.
func (s *Session) Persist() error {
	s.mu.Lock()
	store, sessionID := s.store, s.sessionID
	s.mu.Unlock()
	if store == nil {
		return nil
	}
	return store.SaveSnapshot(sessionID, s.graph.ToJSONSnapshot())
}

// CreateSession wires the full core per spec §6's create/initialize
// contract: {branching_factor, max_depth, axioms[]}.
func CreateSession(question string, sessionParams config.SessionParams, axioms []types.Axiom, cfg config.Config) (*Session, error) {
	if question == "" {
		return nil, errs.New(errs.InvalidInput, "session requires a root question")
	}

	resolver := conflict.New()
	g := graph.New(cfg.Graph, resolver)
	tree := tot.New(sessionParams.ToToTLimits())
	judge := axiom.New(axioms)
	gov := governor.New(cfg.Governor)
	registry := modelregistry.New(gov, nil, cfg.Timeouts)
	ingestor := ingest.New(g, nil)
	serial := serializer.New(cfg.Serializer, nil)

	params := coverage.SessionParams{
		MaxDepth: sessionParams.ToToTLimits().MaxDepth,
		BranchingFactor: sessionParams.ToToTLimits().MaxChildrenPerNode,
		TotalAxioms: len(axioms),
	}
	coverageA := coverage.New(g, tree, cfg.Coverage, params)

	root, err := tree.CreateRoot(question)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg: cfg, graph: g, tree: tree, judge: judge, resolver: resolver,
		coverage: coverageA, gov: gov, registry: registry, ingestor: ingestor,
		serial: serial, rootID: root.ID, totalAxioms: len(axioms),
	}
	s.search = mcts.New(tree, coverageA, &graphEvaluator{s: s}, cfg.MCTS, root.ID)
	return s, nil
}

// RootID returns the session's root ToT node id.
func (s *Session) RootID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootID
}

// Graph exposes the session's knowledge graph for read-only use by callers
// needing direct queries beyond the session API surface (e.g. a serializer
// call with explicit focus_ids).
func (s *Session) Graph() *graph.KnowledgeGraph { return s.graph }

// Tree exposes the session's Tree of Thoughts.
func (s *Session) Tree() *tot.Tree { return s.tree }

// Judge exposes the session's AxiomJudge.
func (s *Session) Judge() *axiom.Judge { return s.judge }

// Ingest runs EvidenceIngest.IngestStructured as part of the Grounding
// phase (spec: "[orchestrator] calls EvidenceIngest").
func (s *Session) Ingest(ctx context.Context, triplets []ingest.Triplet, source *types.Source) ([]ingest.Outcome, error) {
	return s.ingestor.IngestStructured(ctx, triplets, source)
}

// IngestText runs EvidenceIngest.IngestText.
func (s *Session) IngestText(ctx context.Context, text string, source *types.Source, hintEntities []string) ([]ingest.Outcome, error) {
	return s.ingestor.IngestText(ctx, text, source, hintEntities)
}

// AdvanceMCTS drives iterations of coverage-guided MCTS over the session's
// ToT tree (spec §6 "advance MCTS with {iterations, coverage_weight?}").
func (s *Session) AdvanceMCTS(ctx context.Context, iterations int, coverageWeight *float64) (int, error) {
	s.mu.Lock()
	if coverageWeight != nil {
		s.cfg.MCTS.CoverageWeight = *coverageWeight
		s.search = mcts.New(s.tree, s.coverage, &graphEvaluator{s: s}, s.cfg.MCTS, s.rootID)
	}
	search := s.search
	s.mu.Unlock()

	return search.Iterate(ctx, iterations)
}

// CoverageReport runs identify_gaps over the session's ToT tree.
func (s *Session) CoverageReport(threshold float64) ([]coverage.Gap, error) {
	return s.coverage.IdentifyGaps(threshold)
}

// GraphSnapshot returns the spec §6 JSON snapshot of the knowledge graph.
func (s *Session) GraphSnapshot() *graph.JSONSnapshot {
	return s.graph.ToJSONSnapshot()
}

// ToTSnapshot returns every node currently in the session's tree.
func (s *Session) ToTSnapshot() []*types.ToTNode {
	return s.tree.All()
}

// PendingInterventions returns every escalated conflict awaiting a human
// decision.
func (s *Session) PendingInterventions() []*types.Conflict {
	var out []*types.Conflict
	for _, c := range s.graph.ListConflicts() {
		if c.Status == types.ConflictEscalated {
			out = append(out, c)
		}
	}
	return out
}

// ResolveIntervention applies a human decision to an escalated conflict
// (spec §6: one of {keep_a, keep_b, both_disputed, escalate_research}).
func (s *Session) ResolveIntervention(conflictID string, choice types.InterventionChoice) error {
	return s.graph.ResolveIntervention(conflictID, choice)
}

// Synthesize runs the Synthesis phase: serialize the session's best-path
// context into the requested format and, if a registry is configured, run
// it through the reason tier to produce a final recommendation.
func (s *Session) Synthesize(ctx context.Context, question string, focusIDs []string, tokenBudget int, format serializer.Format) (string, error) {
	view, err := s.serial.Serialize(s.graph, question, focusIDs, tokenBudget, format)
	if err != nil {
		return "", err
	}

	tier := s.gov.SelectTier(governor.TaskReason)
	if tier != governor.TierReason {
		s.logEvent(types.EventResourceDowngraded,
			fmt.Sprintf("requested tier %s downgraded to %s under memory pressure", governor.TierReason, tier))
	}

	answer, err := s.registry.Generate(ctx, view.Text, tier, tokenBudget)
	if err != nil {
		return "", err
	}
	return answer, nil
}

// RunCycle executes one full Exploration -> Grounding -> Reasoning ->
// Synthesis pass (spec §4.9), returning the synthesis text. Evidence for
// Grounding must already have been supplied via Ingest/IngestText before
// calling RunCycle; RunCycle itself ingests nothing.
func (s *Session) RunCycle(ctx context.Context, mctsIterations int, format serializer.Format, tokenBudget int) (string, error) {
	root, err := s.tree.Get(s.RootID())
	if err != nil {
		return "", err
	}

	// Exploration: expand the root with a generic follow-up if it hasn't
	// been expanded yet, so MCTS has somewhere to select.
	if root.Status == types.ToTOpen {
		if _, err := s.tree.Expand(root.ID, root.Question+" — initial exploration", false); err != nil {
			return "", fmt.Errorf("exploration phase: %w", err)
		}
	}

	// Grounding: evidence ingest is caller-driven (see Ingest/IngestText);
	// this phase is a no-op here beyond making sure the graph is
	// queryable, matching the spec's "Orchestrator never mutates the
	// graph directly" contract.

	// Reasoning: drive MCTS iterations.
	if _, err := s.AdvanceMCTS(ctx, mctsIterations, nil); err != nil {
		return "", fmt.Errorf("reasoning phase: %w", err)
	}

	// Synthesis: serialize the best path's grounded entities and generate.
	best, err := s.search.BestPath()
	if err != nil {
		return "", fmt.Errorf("synthesis phase: %w", err)
	}
	var focus []string
	for _, nodeID := range best {
		n, err := s.tree.Get(nodeID)
		if err != nil {
			continue
		}
		focus = append(focus, n.GraphEntities...)
	}
	return s.Synthesize(ctx, root.Question, focus, tokenBudget, format)
}

// graphEvaluator supplies mcts.NodeInputs from the session's graph and
// axiom judge, implementing mcts.Evaluator without introducing an import
// cycle between internal/mcts and internal/graph/internal/axiom.
type graphEvaluator struct {
	s *Session
}

func (e *graphEvaluator) Inputs(ctx context.Context, nodeID string) (mcts.NodeInputs, error) {
	node, err := e.s.tree.Get(nodeID)
	if err != nil {
		return mcts.NodeInputs{}, err
	}
	if len(node.GraphEntities) == 0 {
		return mcts.NodeInputs{Confidence: 0.5, RiskNormalizer: 1}, nil
	}

	var confidenceSum, axiomSum, axiomScoreSum float64
	var disputeCount, axiomViolations int
	seenDisputed := make(map[string]struct{})
	for _, entityID := range node.GraphEntities {
		ent, err := e.s.graph.GetEntity(entityID)
		if err != nil {
			continue
		}
		confidenceSum += ent.Confidence
		axiomSum += ent.AxiomAlignment
		if ent.Disputed {
			disputeCount++
		}

		score := e.s.judge.Score(axiom.FromEntity(ent))
		axiomScoreSum += score.Aggregate
		if score.Aggregate < 0 {
			axiomViolations++
		}

		if sub, err := e.s.graph.EgoSubgraph([]string{entityID}, 1, 0); err == nil {
			for _, edge := range sub.Edges {
				if !edge.Disputed || (edge.Subject != entityID && edge.Object != entityID) {
					continue
				}
				if _, ok := seenDisputed[edge.ID]; !ok {
					seenDisputed[edge.ID] = struct{}{}
					disputeCount++
				}
			}
		}
	}
	n := float64(len(node.GraphEntities))
	if len(node.TestedAxioms) > 0 {
		_ = e.s.tree.RecordAxiomScore(nodeID, axiomScoreSum/n)
	}
	return mcts.NodeInputs{
		Confidence:      confidenceSum / n,
		AxiomAlignment:  axiomSum / n,
		DisputeCount:    disputeCount,
		AxiomViolations: axiomViolations,
		RiskNormalizer:  n,
	}, nil
}
