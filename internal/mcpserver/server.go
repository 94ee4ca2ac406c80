// Package mcpserver exposes an orchestrator.Session's API surface over the
// Model Context Protocol, mirroring the teacher's internal/server package:
// one UnifiedServer-shaped type coordinating state, mcp.AddTool registration
// per operation, typed request/response structs, and a toJSONContent helper
// for building mcp.CallToolResult payloads.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"axiomforge/internal/config"
	"axiomforge/internal/coverage"
	"axiomforge/internal/graph"
	"axiomforge/internal/orchestrator"
	"axiomforge/internal/persistence"
	"axiomforge/internal/types"
)

// Server coordinates every live research session and exposes the spec's
// session API surface as MCP tools.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*orchestrator.Session
	cfg      config.Config
	store    *persistence.SnapshotStore
}

// New constructs a Server. store may be nil, in which case sessions are not
// persisted across restarts.
func New(cfg config.Config, store *persistence.SnapshotStore) *Server {
	return &Server{sessions: make(map[string]*orchestrator.Session), cfg: cfg, store: store}
}

// RegisterTools registers the five session-API tools on an MCP server.
func (s *Server) RegisterTools(mcpServer *mcp.Server) {
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "create-session",
		Description: "Create a research session with a root question, branching_factor, max_depth, and axioms",
	}, s.handleCreateSession)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "advance-mcts",
		Description: "Run coverage-guided MCTS iterations over a session's tree of thoughts",
	}, s.handleAdvanceMCTS)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "coverage-report",
		Description: "List tree-of-thoughts nodes below a coverage threshold, ranked by gap size",
	}, s.handleCoverageReport)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "graph-snapshot",
		Description: "Return the session's knowledge graph as a JSON snapshot",
	}, s.handleGraphSnapshot)

	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "resolve-intervention",
		Description: "Apply a human decision to an escalated conflict (keep_a, keep_b, both_disputed, escalate_research)",
	}, s.handleResolveIntervention)
}

func (s *Server) getSession(id string) (*orchestrator.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", id)
	}
	return sess, nil
}

type axiomInput struct {
	AxiomID     string             `json:"axiom_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Priority    int                `json:"priority"`
	Matcher     types.AxiomMatcher `json:"matcher"`
}

type CreateSessionRequest struct {
	Question        string       `json:"question"`
	BranchingFactor int          `json:"branching_factor,omitempty"`
	MaxDepth        int          `json:"max_depth,omitempty"`
	Axioms          []axiomInput `json:"axioms,omitempty"`
}

type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	RootID    string `json:"root_id"`
}

func (s *Server) handleCreateSession(ctx context.Context, req *mcp.CallToolRequest, input CreateSessionRequest) (*mcp.CallToolResult, *CreateSessionResponse, error) {
	axioms := make([]types.Axiom, 0, len(input.Axioms))
	for _, a := range input.Axioms {
		axioms = append(axioms, types.Axiom{ID: a.AxiomID, Name: a.Name, Description: a.Description, Priority: a.Priority, Matcher: a.Matcher})
	}

	sess, err := orchestrator.CreateSession(input.Question, config.SessionParams{
		BranchingFactor: input.BranchingFactor, MaxDepth: input.MaxDepth,
	}, axioms, s.cfg)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	if s.store != nil {
		sess.AttachStore(id, s.store)
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	resp := &CreateSessionResponse{SessionID: id, RootID: sess.RootID()}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type AdvanceMCTSRequest struct {
	SessionID      string   `json:"session_id"`
	Iterations     int      `json:"iterations"`
	CoverageWeight *float64 `json:"coverage_weight,omitempty"`
}

type AdvanceMCTSResponse struct {
	Completed int `json:"completed"`
}

func (s *Server) handleAdvanceMCTS(ctx context.Context, req *mcp.CallToolRequest, input AdvanceMCTSRequest) (*mcp.CallToolResult, *AdvanceMCTSResponse, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	completed, err := sess.AdvanceMCTS(ctx, input.Iterations, input.CoverageWeight)
	if err != nil {
		return nil, nil, err
	}
	_ = sess.Persist()
	resp := &AdvanceMCTSResponse{Completed: completed}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type CoverageReportRequest struct {
	SessionID string  `json:"session_id"`
	Threshold float64 `json:"threshold"`
}

type CoverageReportResponse struct {
	Gaps []coverage.Gap `json:"gaps"`
}

func (s *Server) handleCoverageReport(ctx context.Context, req *mcp.CallToolRequest, input CoverageReportRequest) (*mcp.CallToolResult, *CoverageReportResponse, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	gaps, err := sess.CoverageReport(input.Threshold)
	if err != nil {
		return nil, nil, err
	}
	resp := &CoverageReportResponse{Gaps: gaps}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

type GraphSnapshotRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleGraphSnapshot(ctx context.Context, req *mcp.CallToolRequest, input GraphSnapshotRequest) (*mcp.CallToolResult, *graph.JSONSnapshot, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	snap := sess.GraphSnapshot()
	return &mcp.CallToolResult{Content: toJSONContent(snap)}, nil, nil
}

type ResolveInterventionRequest struct {
	SessionID  string                   `json:"session_id"`
	ConflictID string                   `json:"conflict_id"`
	Choice     types.InterventionChoice `json:"choice"`
}

type ResolveInterventionResponse struct {
	OK bool `json:"ok"`
}

func (s *Server) handleResolveIntervention(ctx context.Context, req *mcp.CallToolRequest, input ResolveInterventionRequest) (*mcp.CallToolResult, *ResolveInterventionResponse, error) {
	sess, err := s.getSession(input.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if err := sess.ResolveIntervention(input.ConflictID, input.Choice); err != nil {
		return nil, nil, err
	}
	_ = sess.Persist()
	resp := &ResolveInterventionResponse{OK: true}
	return &mcp.CallToolResult{Content: toJSONContent(resp)}, resp, nil
}

func toJSONContent(data interface{}) []mcp.Content {
	jsonData, err := json.Marshal(data)
	if err != nil {
		errData := map[string]string{"error": err.Error()}
		jsonData, _ = json.Marshal(errData)
	}
	return []mcp.Content{&mcp.TextContent{Text: string(jsonData)}}
}
