// Package serializer implements GraphSerializer: projecting a token-budgeted,
// self-describing view of a knowledge graph ego-subgraph into markdown,
// narrative, or JSON text for the next LLM call.
//
// Grounded on the teacher's internal/knowledge/knowledge_graph.go
// HybridSearchWithThreshold rank-then-truncate shape, and on
// internal/server/formatters.go's "stream into a bounded textual format"
// idiom.
package serializer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"axiomforge/internal/graph"
	"axiomforge/internal/types"
)

// Format selects the output representation.
type Format string

const (
	FormatMarkdown  Format = "markdown"
	FormatNarrative Format = "narrative"
	FormatJSON      Format = "json"
)

// Weights configures the ranking formula: α·PageRank + β·keyword_overlap + γ·confidence.
type Weights struct {
	Alpha, Beta, Gamma float64
}

// DefaultWeights gives PageRank and confidence equal primary weight, with a
// smaller term for lexical overlap with the question (the spec leaves exact
// values to the implementer and only requires they be documented).
func DefaultWeights() Weights {
	return Weights{Alpha: 0.4, Beta: 0.2, Gamma: 0.4}
}

// Tokenizer measures the "token" length of a string; injected so the budget
// can later be driven by a real model tokenizer. WhitespaceTokenizer below,
// the default, is a whitespace+punctuation heuristic — the spec requires only "measured via an
// injected tokenizer interface", not a specific algorithm.
type Tokenizer interface {
	Count(s string) int
}

// WhitespaceTokenizer counts each run of ASCII letters and digits as one
// token and every other character except space, tab and newline as a token
// of its own, which approximates subword token counts closely enough for local budget
// enforcement without pulling in a model-specific vocabulary.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Count(s string) int {
	n := 0
	inToken := false
	for _, r := range s {
		isWord := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if isWord {
			if !inToken {
				n++
				inToken = true
			}
		} else {
			inToken = false
			if r != ' ' && r != '\t' && r != '\n' {
				n++ // punctuation tokenizes separately
			}
		}
	}
	return n
}

// Serializer produces token-budgeted graph views.
type Serializer struct {
	weights   Weights
	tokenizer Tokenizer
}

// New constructs a Serializer with the given ranking weights and tokenizer.
// A nil tokenizer defaults to WhitespaceTokenizer.
func New(weights Weights, tokenizer Tokenizer) *Serializer {
	if tokenizer == nil {
		tokenizer = WhitespaceTokenizer{}
	}
	return &Serializer{weights: weights, tokenizer: tokenizer}
}

// Result is the output of Serialize.
type Result struct {
	Text      string
	NodeCount int
	EdgeCount int
	Truncated bool
}

// Serialize builds a token-budgeted view of g relevant to question, per
// spec §4.2's five-step algorithm.
func (s *Serializer) Serialize(g *graph.KnowledgeGraph, question string, focusIDs []string, tokenBudget int, format Format) (*Result, error) {
	seeds := focusIDs
	if len(seeds) == 0 {
		seeds = s.matchSeeds(g, question)
	}

	if len(seeds) == 0 {
		return s.emptyDocument(g, question, format), nil
	}

	sub, err := g.EgoSubgraph(seeds, 2, 50)
	if err != nil {
		return nil, err
	}
	ranks := g.PageRank(seeds)

	ranked := s.rankNodes(sub.Entities, ranks, question)

	edgeByID := make(map[string]*types.ClaimEdge, len(sub.Edges))
	edgesBySubject := make(map[string][]*types.ClaimEdge)
	for _, e := range sub.Edges {
		edgeByID[e.ID] = e
		edgesBySubject[e.Subject] = append(edgesBySubject[e.Subject], e)
	}

	return s.stream(g.SnapshotID(), seeds, ranked, edgesBySubject, question, tokenBudget, format), nil
}

// matchSeeds does simple term lookup: entities whose label shares a word
// with the question (spec §4.2 step 1).
func (s *Serializer) matchSeeds(g *graph.KnowledgeGraph, question string) []string {
	return g.SearchLabel(question)
}

type rankedNode struct {
	entity *types.Entity
	score  float64
}

func (s *Serializer) rankNodes(entities []*types.Entity, ranks map[string]float64, question string) []rankedNode {
	qWords := wordSet(question)
	out := make([]rankedNode, 0, len(entities))
	for _, e := range entities {
		overlap := keywordOverlap(e.Label, qWords)
		score := s.weights.Alpha*ranks[e.ID] + s.weights.Beta*overlap + s.weights.Gamma*e.Confidence
		out = append(out, rankedNode{entity: e, score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		return out[i].entity.ID < out[j].entity.ID // deterministic tie-break
	})
	return out
}

func wordSet(s string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

func keywordOverlap(label string, qWords map[string]struct{}) float64 {
	labelWords := wordSet(label)
	if len(labelWords) == 0 {
		return 0
	}
	hits := 0
	for w := range labelWords {
		if _, ok := qWords[w]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(labelWords))
}

// stream renders nodes+edges into the chosen format until the token budget
// is exhausted, cutting on edge boundaries (never mid-edge), then appends
// the trailing summary line.
func (s *Serializer) stream(snapshotID int64, seeds []string, ranked []rankedNode, edgesBySubject map[string][]*types.ClaimEdge, question string, budget int, format Format) *Result {
	var b strings.Builder
	header := s.renderHeader(snapshotID, seeds, format)
	b.WriteString(header)
	used := s.tokenizer.Count(header)

	nodeCount, edgeCount := 0, 0
	truncated := false

outer:
	for _, rn := range ranked {
		nodeBlock := s.renderNode(rn.entity, format)
		if used+s.tokenizer.Count(nodeBlock) > budget {
			truncated = true
			break
		}
		b.WriteString(nodeBlock)
		used += s.tokenizer.Count(nodeBlock)
		nodeCount++

		for _, e := range edgesBySubject[rn.entity.ID] {
			edgeBlock := s.renderEdge(e, format)
			if used+s.tokenizer.Count(edgeBlock) > budget {
				truncated = true
				break outer
			}
			b.WriteString(edgeBlock)
			used += s.tokenizer.Count(edgeBlock)
			edgeCount++
		}
	}
	if nodeCount < len(ranked) {
		truncated = true
	}

	summary := fmt.Sprintf("nodes=%d edges=%d truncated=%t\n", nodeCount, edgeCount, truncated)
	b.WriteString(summary)

	return &Result{Text: b.String(), NodeCount: nodeCount, EdgeCount: edgeCount, Truncated: truncated}
}

func (s *Serializer) renderHeader(snapshotID int64, seeds []string, format Format) string {
	switch format {
	case FormatJSON:
		meta, _ := json.Marshal(map[string]any{
			"snapshot_id": snapshotID, "seed_ids": seeds,
			"ranking_weights": s.weights,
		})
		return string(meta) + "\n"
	case FormatNarrative:
		return fmt.Sprintf("Provenance: snapshot %d, seeds %v, weights α=%.2f β=%.2f γ=%.2f.\n",
			snapshotID, seeds, s.weights.Alpha, s.weights.Beta, s.weights.Gamma)
	default: // markdown
		return fmt.Sprintf("# Graph view\n_snapshot=%d seeds=%v weights(α,β,γ)=(%.2f,%.2f,%.2f)_\n\n",
			snapshotID, seeds, s.weights.Alpha, s.weights.Beta, s.weights.Gamma)
	}
}

func (s *Serializer) renderNode(e *types.Entity, format Format) string {
	switch format {
	case FormatJSON:
		b, _ := json.Marshal(map[string]any{
			"id": e.ID, "type": e.Type, "label": e.Label, "confidence": e.Confidence,
		})
		return string(b) + "\n"
	case FormatNarrative:
		return fmt.Sprintf("%s (%s) is known with confidence %.2f.\n", e.Label, e.Type, e.Confidence)
	default:
		return fmt.Sprintf("- **%s** (`%s`, confidence=%.2f)\n", e.Label, e.Type, e.Confidence)
	}
}

func (s *Serializer) renderEdge(e *types.ClaimEdge, format Format) string {
	switch format {
	case FormatJSON:
		b, _ := json.Marshal(map[string]any{
			"source": e.Subject, "predicate": e.Predicate, "target": e.Object,
			"weight": e.Weight, "disputed": e.Disputed,
		})
		return string(b) + "\n"
	case FormatNarrative:
		disputed := ""
		if e.Disputed {
			disputed = " (disputed)"
		}
		return fmt.Sprintf("  - %s %s %s%s.\n", e.Subject, e.Predicate, e.Object, disputed)
	default:
		disputed := ""
		if e.Disputed {
			disputed = " _(disputed)_"
		}
		return fmt.Sprintf("  - %s → %s → %s%s\n", e.Subject, e.Predicate, e.Object, disputed)
	}
}

// emptyDocument implements the spec's "if no node matches, return an
// empty-but-well-formed document rather than erroring" failure mode.
func (s *Serializer) emptyDocument(g *graph.KnowledgeGraph, question string, format Format) *Result {
	header := s.renderHeader(g.SnapshotID(), nil, format)
	summary := "nodes=0 edges=0 truncated=false\n"
	return &Result{Text: header + summary, NodeCount: 0, EdgeCount: 0, Truncated: false}
}
