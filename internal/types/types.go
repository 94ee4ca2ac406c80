// Package types defines the core data structures for the axiomforge reasoning
// core: entities and claim edges in the knowledge graph, axioms, sources,
// tree-of-thoughts nodes, MCTS statistics, conflicts, and coverage snapshots.
//
// These types are shared across every component in internal/ (graph, axiom,
// conflict, serializer, tot, mcts, coverage, governor, orchestrator) and carry
// JSON tags; the graph's JSON snapshot exports only a subset of their fields.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is a free-form attribute bag attached to most records.
type Metadata map[string]any

// EntityType categorizes a knowledge graph node.
type EntityType string

const (
	EntityCompany  EntityType = "company"
	EntityProduct  EntityType = "product"
	EntityClaim    EntityType = "claim"
	EntityQuantity EntityType = "quantity"
	EntityPerson   EntityType = "person"
	EntityConcept  EntityType = "concept"
)

// Entity is a node in the knowledge graph.
type Entity struct {
	ID              string     `json:"id"`
	Type            EntityType `json:"type"`
	Label           string     `json:"label"`
	Confidence      float64    `json:"confidence"`
	Sources         []string   `json:"sources"`
	CreatedAt       time.Time  `json:"created_at"`
	AxiomAlignment  float64    `json:"axiom_alignment"` // derived, [-1,1]
	Disputed        bool       `json:"disputed"`        // derived
	Metadata        Metadata   `json:"metadata,omitempty"`
}

// AuthorityTier is a fixed mapping from source class to a trust weight.
type AuthorityTier float64

// Standard authority tiers, official -> social.
const (
	AuthorityOfficial  AuthorityTier = 1.0
	AuthorityEstablished AuthorityTier = 0.9
	AuthorityGeneral   AuthorityTier = 0.7
	AuthoritySocial    AuthorityTier = 0.5
)

// Source is an evidence provenance record. Created on ingest, never mutated.
type Source struct {
	ID            string        `json:"id"`
	URI           string        `json:"uri"`
	AuthorityTier AuthorityTier `json:"authority_tier"`
	Timestamp     time.Time     `json:"timestamp"`
}

// EvidenceItem attaches a snippet of evidence to a claim edge.
type EvidenceItem struct {
	SourceID      string        `json:"source_id"`
	Snippet       string        `json:"snippet"`
	Timestamp     time.Time     `json:"timestamp"`
	AuthorityTier AuthorityTier `json:"authority_tier"`
}

// ResolutionEvent records one step of a conflict's resolution history.
type ResolutionEvent struct {
	Tier      string    `json:"tier"` // "T1", "T2", "T3", or "human"
	Winner    string    `json:"winner,omitempty"`
	Margin    float64   `json:"margin,omitempty"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClaimEdge is a directed, labeled multigraph edge (subject, predicate, object).
type ClaimEdge struct {
	ID                string             `json:"id"`
	Subject           string             `json:"source"` // entity id
	Predicate         string             `json:"predicate"`
	Object            string             `json:"target"` // entity id
	Weight            float64            `json:"weight"`          // [-1,1], final weight
	BaseConfidence    float64            `json:"base_confidence"` // [0,1]
	AxiomScores       map[string]float64 `json:"axiom_scores"`    // axiom_id -> score [-1,1]
	Evidence          []EvidenceItem     `json:"evidence"`
	Disputed          bool               `json:"disputed"`
	ResolutionHistory []ResolutionEvent  `json:"resolution_history,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
}

// NumericRule is one numeric clause of an axiom matcher.
type NumericRule struct {
	Field     string  `json:"field"`    // attribute name to compare, e.g. "weight"
	Operator  string  `json:"operator"` // "gt", "lt", "gte", "lte", "eq"
	Threshold float64 `json:"threshold"`
	Polarity  float64 `json:"polarity"` // contribution sign/magnitude when the rule matches, [-1,1]
}

// AxiomMatcher is the tagged-variant structural matcher for an axiom: keyword,
// predicate, and numeric clauses, each contributing a signed score on match.
type AxiomMatcher struct {
	PositiveTerms []string      `json:"positive_terms"`
	NegativeTerms []string      `json:"negative_terms"`
	Predicates    []string      `json:"predicates"`
	NumericRules  []NumericRule `json:"numeric_rules"`
}

// Axiom is a user-defined value rule. Immutable within a research session.
type Axiom struct {
	ID          string       `json:"axiom_id"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Priority    int          `json:"priority"` // 1..10
	Matcher     AxiomMatcher `json:"matcher"`
}

// AxiomScoreSet is the output of AxiomJudge.Score.
type AxiomScoreSet struct {
	PerAxiom  map[string]float64 `json:"per_axiom"`  // axiom_id -> score [-1,1]
	Aggregate float64            `json:"aggregate"`  // [-1,1]
}

// ToTStatus is the ToT node state machine: open -> expanded -> answered -> (pruned?).
type ToTStatus string

const (
	ToTOpen     ToTStatus = "open"
	ToTExpanded ToTStatus = "expanded"
	ToTAnswered ToTStatus = "answered"
	ToTPruned   ToTStatus = "pruned"
)

// ToTNode is a node in the Tree of Thoughts. Research is an orthogonal tag,
// not part of the primary state machine.
type ToTNode struct {
	ID            string    `json:"node_id"`
	ParentID      string    `json:"parent_id,omitempty"`
	Question      string    `json:"question"`
	Response      string    `json:"response,omitempty"`
	GraphEntities []string  `json:"graph_entities"`
	TestedAxioms  []string  `json:"tested_axioms"`
	Depth         int       `json:"depth"`
	Status        ToTStatus `json:"status"`
	Research      bool      `json:"research"`
	PruneReason   string    `json:"prune_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	// MeanAxiomScore is the mean AxiomJudge.Score().Aggregate (range [-1,1])
	// across this node's graph_entities, recorded once axioms have been
	// tested against it. AxiomScoreRecorded distinguishes "never scored"
	// from "scored at exactly 0".
	MeanAxiomScore     float64 `json:"mean_axiom_score,omitempty"`
	AxiomScoreRecorded bool    `json:"axiom_score_recorded,omitempty"`
}

// MCTSStats holds transient, recomputable-from-tree-and-graph search
// statistics for one ToT node.
type MCTSStats struct {
	Visits           int      `json:"visits"`
	ValueSum         float64  `json:"value_sum"`
	ChildrenExpanded []string `json:"children_expanded"`
}

// Mean returns the exploitation term value_sum / max(visits, 1).
func (s *MCTSStats) Mean() float64 {
	if s.Visits <= 0 {
		return 0
	}
	return s.ValueSum / float64(s.Visits)
}

// ConflictKind categorizes the nature of a detected contradiction.
type ConflictKind string

const (
	ConflictAntonym  ConflictKind = "antonym"
	ConflictNumeric  ConflictKind = "numeric"
	ConflictTemporal ConflictKind = "temporal"
	ConflictSemantic ConflictKind = "semantic"
)

// ConflictStatus tracks a conflict record's lifecycle. Never deleted (audit).
type ConflictStatus string

const (
	ConflictOpen         ConflictStatus = "open"
	ConflictResolved     ConflictStatus = "resolved"
	ConflictEscalated    ConflictStatus = "escalated"
	ConflictBothDisputed ConflictStatus = "both_disputed"
)

// Conflict is a first-class record of a detected contradiction between two or
// more competing claim edges.
type Conflict struct {
	ID        string            `json:"id"`
	EdgeIDs   []string          `json:"edges"`
	Kind      ConflictKind      `json:"kind"`
	Status    ConflictStatus    `json:"status"`
	Winner    string            `json:"winner,omitempty"`
	ResearchNodeID string       `json:"research_node_id,omitempty"`
	History   []ResolutionEvent `json:"history"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CoverageSnapshot is the four-dimensional coverage score for a ToT node,
// cached per (node_id, snapshot_id).
type CoverageSnapshot struct {
	NodeID           string  `json:"node_id"`
	SnapshotID       int64   `json:"snapshot_id"`
	EntityDensity    float64 `json:"entity_density"`
	ExplorationDepth float64 `json:"exploration_depth"`
	AxiomCoverage    float64 `json:"axiom_coverage"`
	NeighborCoverage float64 `json:"neighbor_coverage"`
	Overall          float64 `json:"overall"`
	ComputedAt       time.Time `json:"computed_at"`
}

// InterventionChoice is a human resolution of a pending intervention.
type InterventionChoice string

const (
	InterventionKeepA     InterventionChoice = "keep_a"
	InterventionKeepB     InterventionChoice = "keep_b"
	InterventionBoth      InterventionChoice = "both_disputed"
	InterventionEscalate  InterventionChoice = "escalate_research"
)

// SessionEvent is one entry in a session's append-only event log (spec §8
// scenario S5: "a resource_downgraded event is recorded in the session log").
type SessionEvent struct {
	Kind   string    `json:"kind"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// EventResourceDowngraded fires when ResourceGovernor.SelectTier returns a
// cheaper tier than the one a caller requested.
const EventResourceDowngraded = "resource_downgraded"

// ParseAxiomFile parses the JSON axiom file format (spec §6):
// {axiom_id, name, description, priority:1-10, matcher:{positive_terms[],
// negative_terms[], predicates[], numeric_rules[]}}. Callers supply bytes
// directly; this package does no file-system access.
func ParseAxiomFile(data []byte) (*Axiom, error) {
	var raw struct {
		AxiomID     string       `json:"axiom_id"`
		Name        string       `json:"name"`
		Description string       `json:"description"`
		Priority    int          `json:"priority"`
		Matcher     AxiomMatcher `json:"matcher"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse axiom file: %w", err)
	}
	if raw.AxiomID == "" {
		return nil, fmt.Errorf("parse axiom file: axiom_id is required")
	}
	if raw.Priority < 1 || raw.Priority > 10 {
		return nil, fmt.Errorf("parse axiom file: priority must be in 1..10, got %d", raw.Priority)
	}
	return &Axiom{
		ID:          raw.AxiomID,
		Name:        raw.Name,
		Description: raw.Description,
		Priority:    raw.Priority,
		Matcher:     raw.Matcher,
	}, nil
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
