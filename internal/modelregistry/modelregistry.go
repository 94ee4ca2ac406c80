// Package modelregistry implements ModelRegistry: the two-tier generation
// seam (extract/reason) that every LLM call in the core funnels through.
//
// Generalizes the teacher's internal/modes.LLMClient family
// (llm_client.go's interface, llm_mock.go's deterministic stub) into the
// spec's single generate(prompt, tier, budget) contract. No automatic
// external API calls are wired (the spec's Non-goals forbid it); the
// default Generator is a local deterministic stand-in, and the interface is
// the integration seam for a real backend.
package modelregistry

import (
	"context"
	"fmt"
	"time"

	"axiomforge/internal/errs"
	"axiomforge/internal/governor"
)

// Generator produces text for a prompt. Implementations may be a local
// model binding, a subprocess, or (for tests) a canned responder.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier governor.Tier, tokenBudget int) (string, error)
}

// Timeouts configures per-tier default timeouts (spec §5: extract 30s, reason 120s).
type Timeouts struct {
	Extract time.Duration
	Reason  time.Duration
}

// DefaultTimeouts matches the spec's stated defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{Extract: 30 * time.Second, Reason: 120 * time.Second}
}

// Registry binds a Generator to the ResourceGovernor, enforcing the
// "only the governor's run_exclusive grants access to a tier" rule.
type Registry struct {
	gov      *governor.Governor
	gen      Generator
	timeouts Timeouts
}

// New constructs a Registry. A nil Generator defaults to MockGenerator, the
// deterministic local stand-in used for tests and offline operation.
func New(gov *governor.Governor, gen Generator, timeouts Timeouts) *Registry {
	if gen == nil {
		gen = MockGenerator{}
	}
	return &Registry{gov: gov, gen: gen, timeouts: timeouts}
}

// Generate runs a prompt through the appropriate tier, respecting the
// tier's default timeout and the governor's mutual exclusion.
func (r *Registry) Generate(ctx context.Context, prompt string, tier governor.Tier, tokenBudget int) (string, error) {
	timeout := r.timeouts.Extract
	if tier == governor.TierReason {
		timeout = r.timeouts.Reason
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var out string
	err := r.gov.RunExclusive(tctx, tier, func(execCtx context.Context) error {
		text, genErr := r.gen.Generate(execCtx, prompt, tier, tokenBudget)
		if genErr != nil {
			return genErr
		}
		out = text
		return nil
	})
	if err != nil {
		if tctx.Err() != nil {
			return "", errs.Wrap(errs.Timeout, fmt.Sprintf("generate timed out after %s on tier %s", timeout, tier), tctx.Err())
		}
		return "", errs.Wrap(errs.ModelUnavailable, "generate failed", err)
	}
	return out, nil
}

// MockGenerator is a deterministic local generator used when no real model
// backend is configured, mirroring the teacher's llm_mock.go contract:
// same input always yields the same output, no network calls.
type MockGenerator struct{}

func (MockGenerator) Generate(ctx context.Context, prompt string, tier governor.Tier, tokenBudget int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return fmt.Sprintf("[mock:%s] %s", tier, truncate(prompt, tokenBudget)), nil
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max]
}
