// Package ingest implements EvidenceIngest: turning externally-supplied
// triplets or free text into knowledge graph entities and claim edges.
//
// Adapted from the teacher's internal/knowledge/extraction package: its
// ExtractedEntity/ExtractedRelationship records become this package's
// Triplet; its regex-then-optional-LLM hybrid extractor becomes
// ingest_text's extract-tier pipeline (RegexExtractor ships directly;
// an extract-tier modelregistry.Generator can be layered on top via the
// Extractor interface).
package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"axiomforge/internal/errs"
	"axiomforge/internal/graph"
	"axiomforge/internal/types"
)

// Triplet is the wire shape EvidenceIngest consumes (spec §6).
type Triplet struct {
	Subject         string
	Predicate       string
	Object          string
	Confidence      float64
	EvidenceSnippet string
	Timestamp       time.Time
}

// Outcome reports what happened to one triplet.
type Outcome struct {
	Inserted   bool
	Merged     bool
	Conflicted bool
	Err        error
}

// Extractor turns free text into triplets. RegexExtractor is the default,
// deterministic implementation; a caller may supply one backed by
// modelregistry.Registry.Generate at the extract tier for richer extraction.
type Extractor interface {
	Extract(ctx context.Context, text string, hintEntities []string) ([]Triplet, error)
}

// EvidenceIngest is the interface the Orchestrator and external callers use
// to get evidence into the graph.
type EvidenceIngest interface {
	IngestStructured(ctx context.Context, triplets []Triplet, source *types.Source) ([]Outcome, error)
	IngestText(ctx context.Context, text string, source *types.Source, hintEntities []string) ([]Outcome, error)
}

// CoreIngestor is the default EvidenceIngest implementation.
type CoreIngestor struct {
	g         *graph.KnowledgeGraph
	extractor Extractor
}

// New constructs a CoreIngestor bound to a graph. A nil extractor defaults
// to RegexExtractor.
func New(g *graph.KnowledgeGraph, extractor Extractor) *CoreIngestor {
	if extractor == nil {
		extractor = RegexExtractor{}
	}
	return &CoreIngestor{g: g, extractor: extractor}
}

var _ EvidenceIngest = (*CoreIngestor)(nil)

// IngestStructured inserts each triplet as an entity pair + claim edge.
func (c *CoreIngestor) IngestStructured(ctx context.Context, triplets []Triplet, source *types.Source) ([]Outcome, error) {
	if source == nil {
		return nil, errs.New(errs.InvalidInput, "ingest requires a source")
	}
	c.g.RegisterSource(source)

	outcomes := make([]Outcome, len(triplets))
	for i, tr := range triplets {
		select {
		case <-ctx.Done():
			outcomes[i] = Outcome{Err: errs.Wrap(errs.Cancelled, "ingest cancelled", ctx.Err())}
			continue
		default:
		}
		outcomes[i] = c.ingestOne(ctx, tr, source)
	}
	return outcomes, nil
}

func (c *CoreIngestor) ingestOne(ctx context.Context, tr Triplet, source *types.Source) Outcome {
	subjectID := slug(tr.Subject)
	objectID := slug(tr.Object)

	if _, err := c.g.UpsertEntity(&types.Entity{ID: subjectID, Type: types.EntityConcept, Label: tr.Subject, Confidence: tr.Confidence, Sources: []string{source.ID}}); err != nil {
		return Outcome{Err: err}
	}
	objType := types.EntityConcept
	if looksNumeric(tr.Object) {
		objType = types.EntityQuantity
	}
	if _, err := c.g.UpsertEntity(&types.Entity{ID: objectID, Type: objType, Label: tr.Object, Confidence: tr.Confidence, Sources: []string{source.ID}}); err != nil {
		return Outcome{Err: err}
	}

	ts := tr.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	edge := &types.ClaimEdge{
		Subject: subjectID, Predicate: tr.Predicate, Object: objectID,
		Weight: normalizedWeight(tr), BaseConfidence: tr.Confidence,
		Evidence: []types.EvidenceItem{{
			SourceID: source.ID, Snippet: tr.EvidenceSnippet, Timestamp: ts, AuthorityTier: source.AuthorityTier,
		}},
	}
	result, err := c.g.AddClaim(ctx, edge)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Inserted: result.Inserted, Merged: result.Merged, Conflicted: result.Conflicted}
}

// normalizedWeight maps a triplet's declared confidence and any signed
// quantity in the object text into the edge's [-1,1] weight; objects with no
// parseable sign/magnitude get a neutral positive weight scaled by confidence.
func normalizedWeight(tr Triplet) float64 {
	if v, ok := parseSignedNumber(tr.Object); ok {
		return types.Clamp(v/100, -1, 1)
	}
	return types.Clamp(tr.Confidence, -1, 1)
}

func looksNumeric(s string) bool {
	_, ok := parseSignedNumber(s)
	return ok
}

var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

func parseSignedNumber(s string) (float64, bool) {
	m := numberPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func slug(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// IngestText runs the extractor over text, then ingests the resulting triplets.
func (c *CoreIngestor) IngestText(ctx context.Context, text string, source *types.Source, hintEntities []string) ([]Outcome, error) {
	triplets, err := c.extractor.Extract(ctx, text, hintEntities)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "extraction failed", err)
	}
	return c.IngestStructured(ctx, triplets, source)
}

// RegexExtractor is a deterministic pattern-based extractor, grounded on the
// teacher's internal/knowledge/extraction/regex_extractor.go: it looks for
// "<subject> <verb-predicate> <object>" clauses and simple percentage/
// quantity statements, with no model call involved.
type RegexExtractor struct{}

var (
	verbPattern = regexp.MustCompile(`(?i)\b([A-Z][\w\s]{1,40}?)\s+(grew|declined|increased|decreased|reported|announced|makes|produces|acquired)\s+([\w\s.%+-]{1,60})`)
	pctPattern  = regexp.MustCompile(`(?i)\b([A-Z][\w\s]{1,40}?)\s+(?:growth_rate|growth rate)\D{0,10}([+-]?\d+(\.\d+)?%?)`)
)

func (RegexExtractor) Extract(ctx context.Context, text string, hintEntities []string) ([]Triplet, error) {
	var out []Triplet
	now := time.Now()

	for _, m := range verbPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, Triplet{
			Subject: strings.TrimSpace(m[1]), Predicate: strings.ToLower(m[2]),
			Object: strings.TrimSpace(m[3]), Confidence: 0.6,
			EvidenceSnippet: strings.TrimSpace(m[0]), Timestamp: now,
		})
	}
	for _, m := range pctPattern.FindAllStringSubmatch(text, -1) {
		out = append(out, Triplet{
			Subject: strings.TrimSpace(m[1]), Predicate: "growth_rate",
			Object: m[2], Confidence: 0.7,
			EvidenceSnippet: strings.TrimSpace(m[0]), Timestamp: now,
		})
	}
	return out, nil
}
