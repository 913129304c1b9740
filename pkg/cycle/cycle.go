// Package cycle implements the Cycle Executor (§4.9): the single-cycle
// state machine that takes a workspace's direction graph through
// SELECTING → DISPATCHING → SYNTHESIZING → MERGING → REASSESSING →
// PERSISTING → DONE, or FAILED if dispatching yields no usable output.
package cycle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeready-toolchain/research-engine/pkg/config"
	"github.com/codeready-toolchain/research-engine/pkg/events"
	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/lead"
	"github.com/codeready-toolchain/research-engine/pkg/merge"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	researchcontext "github.com/codeready-toolchain/research-engine/pkg/context"
	"github.com/codeready-toolchain/research-engine/pkg/views"
	"github.com/codeready-toolchain/research-engine/pkg/worker"
)

// State names the Cycle Executor's state-machine steps (§4.9), used
// both for progress events and for CycleRecord.FailedStage.
type State string

const (
	StateIdle         State = "IDLE"
	StateSelecting    State = "SELECTING"
	StateDispatching  State = "DISPATCHING"
	StateSynthesizing State = "SYNTHESIZING"
	StateMerging      State = "MERGING"
	StateReassessing  State = "REASSESSING"
	StatePersisting   State = "PERSISTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// progressPercent is the per-step progress emitted alongside cycle.step
// events (§4.9).
var progressPercent = map[State]int{
	StateSelecting:    10,
	StateDispatching:  25,
	StateSynthesizing: 60,
	StateMerging:      80,
	StateReassessing:  90,
	StatePersisting:   95,
	StateDone:         100,
}

const weakestNForSelect = 10

// Store is the subset of pkg/store's Store the Cycle Executor needs,
// composed from the narrower interfaces its collaborators already
// declare (researchcontext.Store embeds views.Store).
type Store interface {
	researchcontext.Store
	merge.Store
	GetRoots(ctx context.Context, workspaceID string) ([]*graph.Direction, error)
	GetActive(ctx context.Context, workspaceID string) ([]*graph.Direction, error)
	EnsureWorkspace(ctx context.Context, workspaceID, name string) error
	SaveCycleRecord(ctx context.Context, rec *models.CycleRecord) error
}

// Executor runs one cycle at a time for one workspace. Lead calls go
// through lead; each entry in workers is dispatched in parallel
// during DISPATCHING.
type Executor struct {
	store       Store
	lead        *lead.Lead
	workers     []*worker.Worker
	bus         *events.Bus
	thresholds  merge.Thresholds
	mission     string
	workspaceID string
	rawDir      string // base directory for raw/{yyyy-mm-dd}/cycle_{k}.md transcripts
}

// Options configures an Executor.
type Options struct {
	Store       Store
	Lead        *lead.Lead
	Workers     []*worker.Worker
	Bus         *events.Bus
	Thresholds  config.Thresholds
	Mission     string
	WorkspaceID string
	RawDir      string // defaults to "raw" if empty
}

// New builds an Executor.
func New(opts Options) *Executor {
	rawDir := opts.RawDir
	if rawDir == "" {
		rawDir = "raw"
	}
	return &Executor{
		store:       opts.Store,
		lead:        opts.Lead,
		workers:     opts.Workers,
		bus:         opts.Bus,
		thresholds:  merge.Thresholds{MergeThreshold: opts.Thresholds.MergeThreshold, DedupThreshold: opts.Thresholds.DedupThreshold, ConfidenceDiscount: opts.Thresholds.ConfidenceDiscount},
		mission:     opts.Mission,
		workspaceID: opts.WorkspaceID,
		rawDir:      rawDir,
	}
}

// Run executes a single cycle end to end (§4.9) and returns its
// CycleRecord; the record is persisted only when the cycle succeeds.
// The returned error is always nil: a failure at any step, SELECTING
// included, and a recovered panic are captured as Success=false with
// FailedStage set on the returned record, matching Lead's own
// never-raise convention (§4.6, §9).
func (e *Executor) Run(ctx context.Context, cycleID int, targetIDOverride, cycleInstruction string) (out *models.CycleRecord, err error) {
	start := time.Now()
	rec := &models.CycleRecord{
		CycleID:     cycleID,
		WorkspaceID: e.workspaceID,
		CreatedAt:   start,
	}

	state := StateSelecting

	defer func() {
		if r := recover(); r != nil {
			out, err = e.failCycle(rec, state, fmt.Errorf("panic: %v", r)), nil
		}
	}()

	target, selectResult, err := e.selecting(ctx, cycleID, targetIDOverride, cycleInstruction)
	if err != nil {
		return e.failCycle(rec, state, err), nil
	}
	rec.TargetDirectionID = target.ID
	rec.TargetClaim = target.Claim
	rec.SelectionStrategy = "lead_select"
	rec.SelectionReasoning = selectResult.Reasoning
	if selectResult.UsedFallback {
		rec.SelectionStrategy = "fallback"
	}

	e.bus.Emit(e.workspaceID, events.TypeCycleStarted, map[string]any{
		"cycle_id": cycleID, "target_id": target.ID, "progress": progressPercent[StateSelecting],
	})

	state = StateDispatching
	e.emitStep(state)
	outputs, allFailed, err := e.dispatching(ctx, target, cycleInstruction)
	rec.WorkerOutputs = outputs
	if err != nil || allFailed {
		failErr := err
		if failErr == nil {
			failErr = fmt.Errorf("all %d workers failed", len(e.workers))
		}
		return e.failCycle(rec, state, failErr), nil
	}

	state = StateSynthesizing
	e.emitStep(state)
	synth := e.synthesizing(ctx, target, outputs, cycleInstruction)
	rec.SynthesisReasoning = synth.SynthesisReasoning
	rec.ConsensusClaims = synth.ConsensusDirections
	rec.Contradictions = synth.Contradictions

	state = StateMerging
	e.emitStep(state)
	mergeResult, err := e.merging(ctx, target.ID, synth.Directions, cycleID)
	if err != nil {
		return e.failCycle(rec, state, err), nil
	}
	rec.CreatedDirectionIDs = mergeResult.CreatedIDs
	rec.UpdatedDirectionIDs = mergeResult.UpdatedIDs
	rec.SkippedDirectionIDs = mergeResult.SkippedIDs
	rec.MergeCreated = len(mergeResult.CreatedIDs)
	rec.MergeUpdated = len(mergeResult.UpdatedIDs)
	rec.MergeSkipped = len(mergeResult.SkippedIDs)

	state = StateReassessing
	e.emitStep(state)
	if err := e.reassessing(ctx, target, synth); err != nil {
		return e.failCycle(rec, state, err), nil
	}

	state = StatePersisting
	e.emitStep(state)
	rec.Duration = time.Since(start)
	rec.Success = true
	e.sumCosts(rec)

	if err := e.store.SaveCycleRecord(ctx, rec); err != nil {
		return e.failCycle(rec, state, fmt.Errorf("persist cycle record: %w", err)), nil
	}
	e.writeTranscript(rec)

	state = StateDone
	e.emitStep(state)

	e.bus.Emit(e.workspaceID, events.TypeCycleCompleted, map[string]any{
		"cycle_id": cycleID, "progress": progressPercent[StatePersisting],
	})
	return rec, nil
}

func (e *Executor) emitStep(state State) {
	e.bus.Emit(e.workspaceID, events.TypeCycleStep, map[string]any{
		"state": string(state), "progress": progressPercent[state],
	})
}

// failCycle marks rec as failed at the given step, emits cycle.failed,
// and returns rec. Already-persisted partial state (i.e. anything the
// merge/reassess steps already wrote to the Store) is left untouched
// (§4.9 "Cancellation").
func (e *Executor) failCycle(rec *models.CycleRecord, state State, cause error) *models.CycleRecord {
	rec.Success = false
	rec.Error = cause.Error()
	rec.FailedStage = string(state)
	rec.Duration = time.Since(rec.CreatedAt)
	e.sumCosts(rec)

	e.bus.Emit(e.workspaceID, events.TypeCycleFailed, map[string]any{
		"cycle_id": rec.CycleID, "step": string(state), "error": cause.Error(),
	})
	return rec
}

func (e *Executor) sumCosts(rec *models.CycleRecord) {
	var agentCost float64
	for _, o := range rec.WorkerOutputs {
		agentCost += o.Cost
	}
	rec.ResearchAgentsCostUSD = agentCost
	rec.TotalCostUSD = rec.LeadLLMCostUSD + agentCost
}

// selecting implements step 1 (§4.9). On an empty graph it bootstraps a
// root direction and returns it as the target without calling
// Lead.Select; otherwise it uses targetIDOverride when set, or calls
// Lead.Select.
func (e *Executor) selecting(ctx context.Context, cycleID int, targetIDOverride, cycleInstruction string) (*graph.Direction, lead.SelectResult, error) {
	if err := e.store.EnsureWorkspace(ctx, e.workspaceID, e.workspaceID); err != nil {
		return nil, lead.SelectResult{}, fmt.Errorf("ensure workspace: %w", err)
	}

	roots, err := e.store.GetRoots(ctx, e.workspaceID)
	if err != nil {
		return nil, lead.SelectResult{}, fmt.Errorf("get roots: %w", err)
	}
	if len(roots) == 0 {
		root := graph.NewDirection(e.workspaceID, firstSentence(e.mission), cycleID)
		root.Description = e.mission
		root.Importance = 1
		if err := e.store.Create(ctx, root); err != nil {
			return nil, lead.SelectResult{}, fmt.Errorf("bootstrap root: %w", err)
		}
		return root, lead.SelectResult{SelectedDirectionID: root.ID, Reasoning: "bootstrap: empty graph"}, nil
	}

	if targetIDOverride != "" {
		target, err := e.store.Get(ctx, e.workspaceID, targetIDOverride)
		if err != nil {
			return nil, lead.SelectResult{}, fmt.Errorf("get override target %q: %w", targetIDOverride, err)
		}
		return target, lead.SelectResult{SelectedDirectionID: target.ID, Reasoning: "explicit target override"}, nil
	}

	summary, err := views.Summary(ctx, e.store, e.workspaceID)
	if err != nil {
		return nil, lead.SelectResult{}, fmt.Errorf("summary view: %w", err)
	}
	weakest, err := weakestNText(ctx, e.store, e.workspaceID)
	if err != nil {
		return nil, lead.SelectResult{}, fmt.Errorf("weakest-n view: %w", err)
	}
	active, err := e.store.GetActive(ctx, e.workspaceID)
	if err != nil {
		return nil, lead.SelectResult{}, fmt.Errorf("get active: %w", err)
	}

	candidates := make([]lead.Candidate, 0, len(active))
	now := time.Now()
	for _, d := range active {
		candidates = append(candidates, lead.Candidate{
			IDPrefix:      d.ID,
			Claim:         d.Claim,
			Confidence:    d.Confidence,
			Importance:    d.Importance,
			Depth:         d.Depth,
			StalenessHrs:  d.Staleness(now).Hours(),
			ChildrenCount: len(d.Children),
		})
	}

	result := e.lead.Select(ctx, lead.SelectInput{
		SummaryView:   summary,
		WeakestN:      weakest,
		Candidates:    candidates,
		CycleOverride: cycleInstruction,
	})

	target, err := e.store.Get(ctx, e.workspaceID, result.SelectedDirectionID)
	if err != nil {
		return nil, lead.SelectResult{}, fmt.Errorf("get selected target %q: %w", result.SelectedDirectionID, err)
	}
	return target, result, nil
}

// weakestNText renders views.WeakestN's scored list as text, the way
// pkg/context/builder.go's buildWeakestNodes does for worker prompts.
func weakestNText(ctx context.Context, st views.Store, workspaceID string) (string, error) {
	scored, err := views.WeakestN(ctx, st, workspaceID, weakestNForSelect)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, s := range scored {
		fmt.Fprintf(&b, "- (%.3f) %s\n", s.Score, s.Direction.Claim)
	}
	return b.String(), nil
}

func firstSentence(mission string) string {
	mission = strings.TrimSpace(mission)
	if mission == "" {
		return "Investigate the project's north star"
	}
	if idx := strings.IndexAny(mission, ".!?"); idx != -1 {
		return strings.TrimSpace(mission[:idx+1])
	}
	return mission
}

// dispatching implements step 2 (§4.9): build the focused view, launch
// every worker in parallel, and collect outputs. allFailed is true when
// every worker's output has Failed=true.
func (e *Executor) dispatching(ctx context.Context, target *graph.Direction, cycleInstruction string) (outputs []models.WorkerOutput, allFailed bool, err error) {
	focused, ferr := views.Focused(ctx, e.store, e.workspaceID, target.ID)
	if ferr != nil {
		return nil, false, fmt.Errorf("focused view: %w", ferr)
	}

	if len(e.workers) == 0 {
		return nil, false, fmt.Errorf("no workers configured")
	}

	outputs = make([]models.WorkerOutput, len(e.workers))
	// Workers are gathered with an errgroup rather than a bare
	// WaitGroup (matching the pack's batch-consultation gathering
	// pattern), but a worker's own failure never aborts its siblings:
	// worker.Run already reduces any failure to a Failed output, so
	// eg.Go's func always returns nil and Wait only ever joins.
	eg, egCtx := errgroup.WithContext(ctx)
	for i, w := range e.workers {
		i, w := i, w
		e.bus.Emit(e.workspaceID, events.TypeAgentStarted, map[string]any{"agent": w.Name()})
		eg.Go(func() error {
			out := w.Run(egCtx, worker.Input{FocusedView: focused, CycleOverride: cycleInstruction})
			outputs[i] = out
			for _, s := range out.Searches {
				e.bus.Emit(e.workspaceID, events.TypeAgentSearch, map[string]any{"agent": w.Name(), "query": s.Query})
			}
			e.bus.Emit(e.workspaceID, events.TypeAgentCompleted, map[string]any{"agent": w.Name(), "failed": out.Failed})
			return nil
		})
	}
	_ = eg.Wait()

	failedCount := 0
	for _, o := range outputs {
		if o.Failed {
			failedCount++
		}
	}
	return outputs, failedCount == len(outputs), nil
}

// synthesizing implements step 3 (§4.9): only non-failed worker outputs
// feed Lead.Synthesize.
func (e *Executor) synthesizing(ctx context.Context, target *graph.Direction, outputs []models.WorkerOutput, cycleInstruction string) lead.SynthesizeResult {
	e.bus.Emit(e.workspaceID, events.TypeSynthesisStarted, nil)

	var texts, critiques []string
	for _, o := range outputs {
		if o.Failed {
			continue
		}
		texts = append(texts, o.RawText)
		critiques = append(critiques, o.Critique)
	}

	result := e.lead.Synthesize(ctx, lead.SynthesizeInput{
		WorkerRawTexts: texts,
		SelfCritiques:  critiques,
		TargetClaim:    target.Claim,
		TargetDepth:    target.Depth,
		CycleOverride:  cycleInstruction,
	})

	e.bus.Emit(e.workspaceID, events.TypeSynthesisCompleted, map[string]any{
		"consensus_count":     len(result.ConsensusDirections),
		"contradiction_count": len(result.Contradictions),
	})
	return result
}

// merging implements step 4 (§4.9), emitting node.created/node.updated
// for each resulting direction.
func (e *Executor) merging(ctx context.Context, targetID string, directions []lead.SynthesizedDirection, cycleID int) (merge.Result, error) {
	result, err := merge.ApplyWithThresholds(ctx, e.store, e.workspaceID, targetID, directions, cycleID, e.thresholds)
	if err != nil {
		return result, err
	}
	for _, id := range result.CreatedIDs {
		e.bus.Emit(e.workspaceID, events.TypeNodeCreated, map[string]any{"id": id})
	}
	for _, id := range result.UpdatedIDs {
		e.bus.Emit(e.workspaceID, events.TypeNodeUpdated, map[string]any{"id": id})
	}
	return result, nil
}

// reassessing implements step 5 (§4.9): ask Lead whether the target
// should keep being pursued, then apply the verdict.
func (e *Executor) reassessing(ctx context.Context, target *graph.Direction, synth lead.SynthesizeResult) error {
	var previews []string
	for _, d := range synth.Directions {
		previews = append(previews, d.Claim)
	}
	var evidence []string
	for _, d := range synth.Directions {
		evidence = append(evidence, d.EvidenceSummary)
	}

	result := e.lead.Reassess(ctx, lead.ReassessInput{
		TargetClaim:        target.Claim,
		PreviousConfidence: target.Confidence,
		PreviousImportance: target.Importance,
		PreviousStatus:     string(target.Status),
		SynthesizedPreview: strings.Join(previews, "; "),
		Consensus:          synth.ConsensusDirections,
		Contradictions:     synth.Contradictions,
		EvidenceSummaries:  evidence,
	})

	target.Confidence = result.Confidence
	target.Importance = result.Importance
	if result.Status != "" {
		target.Status = graph.Status(result.Status)
	}
	if result.Action == lead.ActionClose {
		target.Status = graph.StatusCompleted
	}
	target.UpdatedAt = time.Now().UTC()

	return e.store.Update(ctx, target)
}

// writeTranscript writes raw/{yyyy-mm-dd}/cycle_{k}.md: one section per
// worker (name, model, metrics, raw output, self-critique) plus the
// synthesis record (§4.9 step 6, §6). Failures are logged, not fatal —
// the cycle is already committed by the time this runs.
func (e *Executor) writeTranscript(rec *models.CycleRecord) {
	dir := filepath.Join(e.rawDir, rec.CreatedAt.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Cycle %d\n\n", rec.CycleID)
	fmt.Fprintf(&b, "Target: %s\n\n", rec.TargetClaim)

	ordered := make([]models.WorkerOutput, len(rec.WorkerOutputs))
	copy(ordered, rec.WorkerOutputs)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].AgentName < ordered[j].AgentName })

	for _, o := range ordered {
		fmt.Fprintf(&b, "## %s (%s)\n\n", o.AgentName, o.Model)
		fmt.Fprintf(&b, "cost=$%.4f duration=%s tokens_in=%d tokens_out=%d failed=%t\n\n", o.Cost, o.Duration, o.TokensInput, o.TokensOutput, o.Failed)
		b.WriteString(o.RawText)
		b.WriteString("\n\n")
		if o.Critique != "" {
			fmt.Fprintf(&b, "**Self-critique:** %s\n\n", o.Critique)
		}
	}

	fmt.Fprintf(&b, "## Synthesis\n\n%s\n\n", rec.SynthesisReasoning)
	for _, c := range rec.ConsensusClaims {
		fmt.Fprintf(&b, "- consensus: %s\n", c)
	}
	for _, c := range rec.Contradictions {
		fmt.Fprintf(&b, "- contradiction: %s\n", c)
	}

	path := filepath.Join(dir, fmt.Sprintf("cycle_%d.md", rec.CycleID))
	_ = os.WriteFile(path, []byte(b.String()), 0o644)
}
