package graph

import (
	"encoding/json"
	"time"

	"axiomforge/internal/errs"
	"axiomforge/internal/types"
)

// SnapshotSchemaVersion is the wire format version for ToJSONSnapshot.
const SnapshotSchemaVersion = 1

// JSONSnapshot is the exact wire schema from spec §6.
type JSONSnapshot struct {
	SchemaVersion int                 `json:"schema_version"`
	SnapshotID    int64               `json:"snapshot_id"`
	CreatedAt     time.Time           `json:"created_at"`
	Entities      []jsonEntity        `json:"entities"`
	Edges         []jsonEdge          `json:"edges"`
	Sources       []jsonSource        `json:"sources"`
	Conflicts     []jsonConflict      `json:"conflicts"`
}

type jsonEntity struct {
	ID             string   `json:"id"`
	Type           string   `json:"type"`
	Confidence     float64  `json:"confidence"`
	AxiomAlignment float64  `json:"axiom_alignment"`
	Disputed       bool     `json:"disputed"`
	Sources        []string `json:"sources"`
}

type jsonEvidence struct {
	SourceID  string    `json:"source_id"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
}

type jsonEdge struct {
	ID             string             `json:"id"`
	Subject        string             `json:"source"`
	Predicate      string             `json:"predicate"`
	Object         string             `json:"target"`
	Weight         float64            `json:"weight"`
	BaseConfidence float64            `json:"base_confidence"`
	AxiomScores    map[string]float64 `json:"axiom_scores"`
	Disputed       bool               `json:"disputed"`
	Evidence       []jsonEvidence     `json:"evidence"`
}

type jsonSource struct {
	ID            string  `json:"id"`
	URI           string  `json:"uri"`
	AuthorityTier float64 `json:"authority_tier"`
	Timestamp     time.Time `json:"timestamp"`
}

type jsonConflict struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Edges  []string `json:"edges"`
	Kind   string   `json:"kind"`
	Winner string   `json:"winner,omitempty"`
}

// ToJSONSnapshot projects the live graph into the spec's wire schema. This is
// a lossy, one-way view (resolution history, timestanps on entities, etc are
// dropped) used for export; Snapshot/Restore below is the full-fidelity pair
// used for internal round-tripping.
func (kg *KnowledgeGraph) ToJSONSnapshot() *JSONSnapshot {
	kg.mu.Lock()
	defer kg.mu.Unlock()

	out := &JSONSnapshot{
		SchemaVersion: SnapshotSchemaVersion,
		SnapshotID:    kg.snapshotID,
		CreatedAt:     time.Now(),
	}
	for _, e := range kg.entities {
		out.Entities = append(out.Entities, jsonEntity{
			ID: e.ID, Type: string(e.Type), Confidence: e.Confidence,
			AxiomAlignment: e.AxiomAlignment, Disputed: e.Disputed, Sources: e.Sources,
		})
	}
	for _, e := range kg.edges {
		je := jsonEdge{
			ID: e.ID, Subject: e.Subject, Predicate: e.Predicate, Object: e.Object,
			Weight: e.Weight, BaseConfidence: e.BaseConfidence, AxiomScores: e.AxiomScores,
			Disputed: e.Disputed,
		}
		for _, ev := range e.Evidence {
			je.Evidence = append(je.Evidence, jsonEvidence{
				SourceID: ev.SourceID, Snippet: ev.Snippet, Timestamp: ev.Timestamp,
			})
		}
		out.Edges = append(out.Edges, je)
	}
	for _, s := range kg.sources {
		out.Sources = append(out.Sources, jsonSource{
			ID: s.ID, URI: s.URI, AuthorityTier: float64(s.AuthorityTier), Timestamp: s.Timestamp,
		})
	}
	for _, c := range kg.conflict {
		out.Conflicts = append(out.Conflicts, jsonConflict{
			ID: c.ID, Status: string(c.Status), Edges: c.EdgeIDs, Kind: string(c.Kind), Winner: c.Winner,
		})
	}
	return out
}

// MarshalSnapshotJSON renders ToJSONSnapshot as indented JSON bytes.
func (kg *KnowledgeGraph) MarshalSnapshotJSON() ([]byte, error) {
	snap := kg.ToJSONSnapshot()
	b, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "marshal snapshot", err)
	}
	return b, nil
}

// internalState is the full-fidelity round-trip representation used by
// Snapshot/Restore (property #7: export then import reproduces an
// isomorphic graph).
type internalState struct {
	SnapshotID    int64
	Entities      map[string]*types.Entity
	Edges         map[string]*types.ClaimEdge
	Sources       map[string]*types.Source
	Conflicts     map[string]*types.Conflict
	ParallelIndex map[string][]string
	AdjOut        map[string][]string
	AdjIn         map[string][]string
}

// Snapshot captures full internal state for round-trip testing/backup. The
// returned value is independent of the live graph (deep copied).
func (kg *KnowledgeGraph) Snapshot() *internalState {
	kg.mu.Lock()
	defer kg.mu.Unlock()

	st := &internalState{
		SnapshotID:    kg.snapshotID,
		Entities:      make(map[string]*types.Entity, len(kg.entities)),
		Edges:         make(map[string]*types.ClaimEdge, len(kg.edges)),
		Sources:       make(map[string]*types.Source, len(kg.sources)),
		Conflicts:     make(map[string]*types.Conflict, len(kg.conflict)),
		ParallelIndex: make(map[string][]string, len(kg.parallelIndex)),
		AdjOut:        make(map[string][]string, len(kg.adjOut)),
		AdjIn:         make(map[string][]string, len(kg.adjIn)),
	}
	for k, v := range kg.entities {
		cp := *v
		st.Entities[k] = &cp
	}
	for k, v := range kg.edges {
		cp := *v
		st.Edges[k] = &cp
	}
	for k, v := range kg.sources {
		cp := *v
		st.Sources[k] = &cp
	}
	for k, v := range kg.conflict {
		cp := *v
		st.Conflicts[k] = &cp
	}
	for k, v := range kg.parallelIndex {
		st.ParallelIndex[k] = append([]string{}, v...)
	}
	for k, v := range kg.adjOut {
		st.AdjOut[k] = append([]string{}, v...)
	}
	for k, v := range kg.adjIn {
		st.AdjIn[k] = append([]string{}, v...)
	}
	return st
}

// Restore replaces the graph's contents with a previously captured snapshot,
// rebuilding the topology graph from scratch.
func (kg *KnowledgeGraph) Restore(st *internalState) error {
	kg.mu.Lock()
	defer kg.mu.Unlock()

	g := newStringGraph()
	for id := range st.Entities {
		if err := g.AddVertex(id); err != nil {
			return errs.Wrap(errs.Internal, "restore: add vertex", err)
		}
	}
	for _, e := range st.Edges {
		if err := g.AddEdge(e.Subject, e.Object); err != nil && !isAlreadyExists(err) {
			return errs.Wrap(errs.Internal, "restore: add edge", err)
		}
	}

	kg.g = g
	kg.entities = st.Entities
	kg.edges = st.Edges
	kg.sources = st.Sources
	kg.conflict = st.Conflicts
	kg.parallelIndex = st.ParallelIndex
	kg.adjOut = st.AdjOut
	kg.adjIn = st.AdjIn
	kg.snapshotID = st.SnapshotID
	return nil
}
