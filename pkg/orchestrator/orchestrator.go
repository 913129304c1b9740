// Package orchestrator owns the workspace-level research loop (§4.10):
// it serializes cycles on a single workspace with a cycle mutex (P10),
// accumulates cost/cycle-count state across runs, and drives the
// repeated-cycle entry points (RunCycles, RunUntilComplete) on top of
// the single-cycle pkg/cycle.Executor.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
)

// Store is the subset of pkg/store's Store the Orchestrator needs
// directly: the cycle Executor it delegates to carries its own, wider
// Store requirement (cycle.Store) satisfied separately by the same
// concrete store at composition time.
type Store interface {
	GetActive(ctx context.Context, workspaceID string) ([]*graph.Direction, error)
}

// Executor is the single-cycle runner the Orchestrator drives. Concrete
// callers pass a *cycle.Executor; tests may substitute a stub.
type Executor interface {
	Run(ctx context.Context, cycleID int, targetIDOverride, cycleInstruction string) (*models.CycleRecord, error)
}

// Summary is GetSummary's return shape: the Orchestrator's accumulated,
// in-memory view of everything it has run since the last Reset.
type Summary struct {
	WorkspaceID    string
	CyclesRun      int
	CyclesSucceeded int
	CyclesFailed   int
	TotalCostUSD   float64
	LastCycle      *models.CycleRecord
}

// Orchestrator serializes cycle execution for one workspace (P10: at
// most one RunCycle in flight at a time) and tracks cumulative
// cost/cycle-count state across runs. Mirrors the teacher's
// SubAgentRunner reservation idiom (pkg/agent/orchestrator/runner.go
// Dispatch/completeSubAgent) scaled down to a single in-flight slot
// instead of a concurrency pool, since only one cycle may run per
// workspace at a time.
type Orchestrator struct {
	store       Store
	executor    Executor
	workspaceID string

	mu            sync.Mutex
	running       bool
	activeCycleID int
	nextCycleID   int

	cyclesRun       int
	cyclesSucceeded int
	cyclesFailed    int
	totalCostUSD    float64
	lastCycle       *models.CycleRecord
}

// Options configures an Orchestrator.
type Options struct {
	Store       Store
	Executor    Executor
	WorkspaceID string
}

// New builds an Orchestrator. nextCycleID starts at 1; callers resuming
// a workspace with existing cycle records should call SetNextCycleID.
func New(opts Options) *Orchestrator {
	return &Orchestrator{
		store:       opts.Store,
		executor:    opts.Executor,
		workspaceID: opts.WorkspaceID,
		nextCycleID: 1,
	}
}

// SetNextCycleID overrides the next cycle ID to be assigned, used when
// resuming a workspace that already has persisted cycle records.
func (o *Orchestrator) SetNextCycleID(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextCycleID = id
}

// RunCycle runs one cycle against the workspace. It fails fast with
// researrors.CycleAlreadyRunningError if another cycle is already
// in flight (P10) rather than queuing, matching the teacher's
// reserve-then-release pattern in SubAgentRunner.Dispatch.
func (o *Orchestrator) RunCycle(ctx context.Context, targetID, cycleInstruction string) (*models.CycleRecord, error) {
	o.mu.Lock()
	if o.running {
		active := o.activeCycleID
		o.mu.Unlock()
		return nil, &researrors.CycleAlreadyRunningError{WorkspaceID: o.workspaceID, ActiveCycleID: active}
	}
	cycleID := o.nextCycleID
	o.nextCycleID++
	o.running = true
	o.activeCycleID = cycleID
	o.mu.Unlock()

	// Release the reservation on every path, success or failure, so the
	// next RunCycle call is never blocked by this one's outcome.
	defer func() {
		o.mu.Lock()
		o.running = false
		o.activeCycleID = 0
		o.mu.Unlock()
	}()

	rec, err := o.executor.Run(ctx, cycleID, targetID, cycleInstruction)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: run cycle %d: %w", cycleID, err)
	}

	o.mu.Lock()
	o.cyclesRun++
	if rec.Success {
		o.cyclesSucceeded++
	} else {
		o.cyclesFailed++
	}
	o.totalCostUSD += rec.TotalCostUSD
	o.lastCycle = rec
	o.mu.Unlock()

	return rec, nil
}

// RunCycles runs n cycles sequentially. If stopOnError is true, it
// stops as soon as a cycle comes back with Success=false (the returned
// slice holds every cycle run up to and including that one); otherwise
// it runs all n regardless of individual cycle outcomes.
func (o *Orchestrator) RunCycles(ctx context.Context, n int, stopOnError bool) ([]*models.CycleRecord, error) {
	recs := make([]*models.CycleRecord, 0, n)
	for i := 0; i < n; i++ {
		rec, err := o.RunCycle(ctx, "", "")
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
		if stopOnError && !rec.Success {
			break
		}
	}
	return recs, nil
}

// RunUntilComplete runs cycles until the average confidence across
// active directions reaches minAvgConfidence or maxCycles is hit,
// whichever comes first. The threshold is evaluated before each cycle
// starts, not after, so a cycle that pushes the average over the
// threshold is still the last one run (§4.10).
func (o *Orchestrator) RunUntilComplete(ctx context.Context, minAvgConfidence float64, maxCycles int) ([]*models.CycleRecord, error) {
	recs := make([]*models.CycleRecord, 0, maxCycles)
	for i := 0; i < maxCycles; i++ {
		avg, err := o.averageActiveConfidence(ctx)
		if err != nil {
			return recs, err
		}
		if avg >= minAvgConfidence {
			break
		}
		rec, err := o.RunCycle(ctx, "", "")
		if err != nil {
			return recs, err
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

func (o *Orchestrator) averageActiveConfidence(ctx context.Context) (float64, error) {
	active, err := o.store.GetActive(ctx, o.workspaceID)
	if err != nil {
		return 0, fmt.Errorf("orchestrator: get active directions: %w", err)
	}
	if len(active) == 0 {
		return 0, nil
	}
	var sum float64
	for _, d := range active {
		sum += d.Confidence
	}
	return sum / float64(len(active)), nil
}

// GetSummary returns the Orchestrator's cumulative in-memory state
// since the last Reset.
func (o *Orchestrator) GetSummary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Summary{
		WorkspaceID:     o.workspaceID,
		CyclesRun:       o.cyclesRun,
		CyclesSucceeded: o.cyclesSucceeded,
		CyclesFailed:    o.cyclesFailed,
		TotalCostUSD:    o.totalCostUSD,
		LastCycle:       o.lastCycle,
	}
}

// Reset clears the Orchestrator's in-memory counters (cycle count,
// cumulative cost, last-cycle pointer). It never touches the Store or
// the direction graph — those persist independently of this process's
// bookkeeping.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cyclesRun = 0
	o.cyclesSucceeded = 0
	o.cyclesFailed = 0
	o.totalCostUSD = 0
	o.lastCycle = nil
}

// IsRunning reports whether a cycle is currently in flight for this
// workspace.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}
