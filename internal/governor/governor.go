// Package governor implements ResourceGovernor: the sole owner of model
// load/unload decisions, gating access to the two model tiers behind a
// process-wide mutual-exclusion lock and downgrading to the cheaper tier
// under memory pressure.
//
// Grounded on the teacher's internal/reinforcement/monitoring.go
// observe-then-gate shape (read system state, compare to thresholds, act)
// and internal/orchestration/workflow.go's context-cancellation discipline
// for the pause/resume broadcast around exclusive sections.
package governor

import (
	"bufio"
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"axiomforge/internal/errs"
)

// Tier is a model size class.
type Tier string

const (
	TierExtract Tier = "extract" // small model, ~6 GB VRAM budget
	TierReason  Tier = "reason"  // large model, ~9-10 GB VRAM budget
)

// TaskKind describes the work a caller wants a tier for.
type TaskKind string

const (
	TaskExtract TaskKind = "extract"
	TaskReason  TaskKind = "reason"
)

// Usage is a snapshot of host resource pressure.
type Usage struct {
	FreeRAMBytes  uint64
	SwapUsedBytes uint64
	VRAMBudgetMB  map[Tier]int
}

// Config bounds tier downgrade policy and budgets.
type Config struct {
	SwapDowngradeThreshold uint64 // downgrade reason->extract if swap exceeds this
	MinFreeRAMBytes        uint64 // downgrade reason->extract if free RAM under this
	IdleUnloadAfter        time.Duration
	VRAMBudgetMB           map[Tier]int
}

// DefaultConfig matches spec §4.8's stated policy: downgrade if swap > 1 GB
// or free RAM < 2 GB; unload a model idle for more than 5 minutes.
func DefaultConfig() Config {
	const gb = 1 << 30
	return Config{
		SwapDowngradeThreshold: 1 * gb,
		MinFreeRAMBytes:        2 * gb,
		IdleUnloadAfter:        5 * time.Minute,
		VRAMBudgetMB:           map[Tier]int{TierExtract: 6144, TierReason: 10240},
	}
}

// Subscriber receives pause/resume broadcasts around a reason-tier exclusive
// section (e.g. a frontend poller).
type Subscriber interface {
	Pause()
	Resume()
}

// Governor is the sole model load/unload authority.
type Governor struct {
	cfg Config
	mu  sync.Mutex // process-wide exclusive lock for run_exclusive

	subMu       sync.Mutex
	subscribers []Subscriber

	loadedMu   sync.Mutex
	loaded     map[Tier]time.Time // tier -> last-used time; absent = unloaded
}

// New constructs a Governor.
func New(cfg Config) *Governor {
	return &Governor{cfg: cfg, loaded: make(map[Tier]time.Time)}
}

// Subscribe registers a subscriber for pause/resume broadcasts.
func (g *Governor) Subscribe(s Subscriber) {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	g.subscribers = append(g.subscribers, s)
}

func (g *Governor) broadcastPause() {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, s := range g.subscribers {
		s.Pause()
	}
}

func (g *Governor) broadcastResume() {
	g.subMu.Lock()
	defer g.subMu.Unlock()
	for _, s := range g.subscribers {
		s.Resume()
	}
}

// Check reads current RAM/swap pressure. VRAM is reported as the configured
// per-tier budgets, since this module performs no GPU queries itself
// (no pack example wires a CUDA/GPU telemetry library — see DESIGN.md).
func (g *Governor) Check() Usage {
	freeRAM, swapUsed := readMemInfo()
	return Usage{FreeRAMBytes: freeRAM, SwapUsedBytes: swapUsed, VRAMBudgetMB: g.cfg.VRAMBudgetMB}
}

// SelectTier picks a tier for the given task kind, downgrading reason to
// extract under memory pressure.
func (g *Governor) SelectTier(task TaskKind) Tier {
	if task == TaskExtract {
		return TierExtract
	}
	usage := g.Check()
	if usage.SwapUsedBytes > g.cfg.SwapDowngradeThreshold || usage.FreeRAMBytes < g.cfg.MinFreeRAMBytes {
		return TierExtract
	}
	return TierReason
}

// RunExclusive acquires the process-wide lock, broadcasts pause/resume
// around loading the "reason" tier, marks the tier as just-used, and runs
// fn. No two reason-tier calls ever run concurrently because the lock is
// shared across all tiers — the spec's "single writer" discipline applied
// to model execution, not just graph mutation.
func (g *Governor) RunExclusive(ctx context.Context, tier Tier, fn func(ctx context.Context) error) error {
	select {
	case <-ctx.Done():
		return errs.Wrap(errs.Cancelled, "run_exclusive cancelled before acquiring lock", ctx.Err())
	default:
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if tier == TierReason {
		g.broadcastPause()
		defer g.broadcastResume()
	}

	g.loadedMu.Lock()
	g.loaded[tier] = time.Now()
	g.loadedMu.Unlock()

	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return errs.Wrap(errs.Cancelled, "run_exclusive cancelled", ctx.Err())
		}
		return err
	}
	return nil
}

// IdleTiers returns tiers that have been loaded but not used within the
// configured idle-unload window, per spec §4.8 ("SHOULD be unloaded").
func (g *Governor) IdleTiers(now time.Time) []Tier {
	g.loadedMu.Lock()
	defer g.loadedMu.Unlock()
	var idle []Tier
	for tier, lastUsed := range g.loaded {
		if now.Sub(lastUsed) > g.cfg.IdleUnloadAfter {
			idle = append(idle, tier)
		}
	}
	return idle
}

// Unload marks a tier as no longer loaded.
func (g *Governor) Unload(tier Tier) {
	g.loadedMu.Lock()
	defer g.loadedMu.Unlock()
	delete(g.loaded, tier)
}

// readMemInfo reads free RAM and used swap. On Linux it parses
// /proc/meminfo; elsewhere (or on parse failure) it falls back to
// runtime.MemStats, which only reports this process's own footprint but
// keeps the governor functional without a cross-platform host-metrics
// dependency (see DESIGN.md for why no pack library is substituted here).
func readMemInfo() (freeRAM, swapUsed uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return fallbackMemStats()
	}
	defer f.Close()

	var memAvailable, swapTotal, swapFree uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		val, convErr := strconv.ParseUint(fields[1], 10, 64)
		if convErr != nil {
			continue
		}
		val *= 1024 // kB -> bytes
		switch fields[0] {
		case "MemAvailable:":
			memAvailable = val
		case "SwapTotal:":
			swapTotal = val
		case "SwapFree:":
			swapFree = val
		}
	}
	if memAvailable == 0 {
		return fallbackMemStats()
	}
	if swapTotal > swapFree {
		swapUsed = swapTotal - swapFree
	}
	return memAvailable, swapUsed
}

func fallbackMemStats() (uint64, uint64) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	// Not a real "free RAM" figure, but keeps select_tier conservative
	// (treats process headroom as the proxy) when /proc is unavailable.
	return ms.Sys - ms.HeapInuse, 0
}
