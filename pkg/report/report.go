// Package report implements the Report Synthesizer (§4.11): a single
// LLM call, tools=[], max_iterations=1, that turns a workspace's
// direction graph and cycle history into a narrative Markdown report.
// Input sections are assembled in parallel under fixed character
// budgets, the same pattern pkg/context/builder.go uses for worker
// prompts.
package report

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/llmadapter"
	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
	"github.com/codeready-toolchain/research-engine/pkg/textbudget"
	"github.com/codeready-toolchain/research-engine/pkg/views"
)

const (
	budgetNodeListing     = 40000
	budgetCycleSummaries  = 12000
	budgetContradictions  = 4000
	budgetOpenQuestions   = 4000

	// briefListingThreshold is the total-node count past which
	// low-importance nodes collapse to claim-only lines (§4.11).
	briefListingThreshold = 100
	briefImportanceCutoff = 0.4
	evidencePreview       = 2

	maxCyclesConsidered = 20
	maxCritiques        = 10
)

// Store is the subset of pkg/store's Store the Report Synthesizer needs.
type Store interface {
	views.Store
	ListCycleRecords(ctx context.Context, workspaceID string, filters models.CycleRecordFilters) ([]*models.CycleRecord, error)
	GetRecentCritiques(ctx context.Context, workspaceID string, limit int) ([]string, error)
	GetReportMetadata(ctx context.Context, workspaceID string) (*models.ReportMetadata, error)
	SaveReportMetadata(ctx context.Context, meta *models.ReportMetadata) error
}

// frontMatter is the YAML block prepended to every generated report.
type frontMatter struct {
	Generated     time.Time `yaml:"generated"`
	Nodes         int       `yaml:"nodes"`
	Cycles        int       `yaml:"cycles"`
	AvgConfidence float64   `yaml:"avg_confidence"`
}

// Synthesizer generates one workspace's narrative report. Only one
// generation may run at a time per Synthesizer (§4.11, §5 "one report
// mutex in the Report Synthesizer"); a concurrent call is rejected with
// researrors.ReportBusyError rather than queued.
type Synthesizer struct {
	store       Store
	adapter     llmadapter.LLMAdapter
	workspaceID string

	mu      sync.Mutex
	running bool
}

// Options configures a Synthesizer.
type Options struct {
	Store       Store
	Adapter     llmadapter.LLMAdapter
	WorkspaceID string
}

// New builds a Synthesizer.
func New(opts Options) *Synthesizer {
	return &Synthesizer{store: opts.Store, adapter: opts.Adapter, workspaceID: opts.WorkspaceID}
}

// Generate produces and persists a new report. It fails early (before
// reserving the mutex slot's expensive work) if the workspace has no
// active directions, and rejects a concurrent call with
// researrors.ReportBusyError rather than blocking (§4.11).
func (s *Synthesizer) Generate(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return "", &researrors.ReportBusyError{WorkspaceID: s.workspaceID}
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	active, err := s.store.GetActive(ctx, s.workspaceID)
	if err != nil {
		return "", fmt.Errorf("report: get active directions: %w", err)
	}
	if len(active) == 0 {
		return "", fmt.Errorf("report: workspace %q has zero active directions", s.workspaceID)
	}

	successTrue := true
	cycles, err := s.store.ListCycleRecords(ctx, s.workspaceID, models.CycleRecordFilters{Success: &successTrue, Limit: maxCyclesConsidered})
	if err != nil {
		return "", fmt.Errorf("report: list cycle records: %w", err)
	}

	sections := s.buildSections(ctx, cycles)

	rawText, err := s.callLLM(ctx, sections)
	if err != nil {
		return "", fmt.Errorf("report: generate: %w", err)
	}

	var avgConf float64
	for _, d := range active {
		avgConf += d.Confidence
	}
	avgConf /= float64(len(active))

	wrapped := wrap(rawText, frontMatter{
		Generated:     time.Now().UTC(),
		Nodes:         len(active),
		Cycles:        len(cycles),
		AvgConfidence: avgConf,
	})

	meta, err := s.store.GetReportMetadata(ctx, s.workspaceID)
	if err != nil {
		return "", fmt.Errorf("report: get report metadata: %w", err)
	}
	now := time.Now().UTC()
	meta.WorkspaceID = s.workspaceID
	meta.LastGeneratedAt = &now
	meta.Markdown = wrapped
	if err := s.store.SaveReportMetadata(ctx, meta); err != nil {
		return "", fmt.Errorf("report: save report metadata: %w", err)
	}

	return wrapped, nil
}

// sections holds the four parallel-assembled, budgeted inputs (§4.11).
type sections struct {
	NodeListing    string
	CycleSummaries string
	Contradictions string
	OpenQuestions  string
}

// buildSections assembles the four input sections concurrently, each
// recovering to an empty string on its own failure so one bad section
// never blocks report generation (mirrors pkg/context/builder.go's
// Build).
func (s *Synthesizer) buildSections(ctx context.Context, cycles []*models.CycleRecord) sections {
	var wg sync.WaitGroup
	var result sections

	parts := []struct {
		target *string
		fn     func() string
	}{
		{&result.NodeListing, func() string { return s.buildNodeListing(ctx) }},
		{&result.CycleSummaries, func() string { return buildCycleSummaries(cycles) }},
		{&result.Contradictions, func() string { return buildContradictions(cycles) }},
		{&result.OpenQuestions, func() string { return s.buildOpenQuestions(ctx) }},
	}

	for _, p := range parts {
		wg.Add(1)
		go func(target *string, fn func() string) {
			defer wg.Done()
			defer func() {
				if recover() != nil {
					*target = ""
				}
			}()
			*target = fn()
		}(p.target, p.fn)
	}
	wg.Wait()

	return result
}

// buildNodeListing renders the full direction tree (§4.11). Once the
// tree holds more than briefListingThreshold nodes, directions with
// importance < briefImportanceCutoff collapse to a claim-only line;
// otherwise every direction shows up to evidencePreview evidence lines.
func (s *Synthesizer) buildNodeListing(ctx context.Context) string {
	roots, err := s.store.GetRoots(ctx, s.workspaceID)
	if err != nil {
		return ""
	}

	all := collectTree(ctx, s.store, s.workspaceID, roots)
	brief := len(all) > briefListingThreshold

	var b strings.Builder
	for _, n := range all {
		fmt.Fprintf(&b, "%s- %s (conf=%.2f importance=%.2f depth=%d)\n",
			strings.Repeat("  ", n.depth), n.dir.Claim, n.dir.Confidence, n.dir.Importance, n.dir.Depth)

		if brief && n.dir.Importance < briefImportanceCutoff {
			continue
		}
		for i, ev := range n.dir.Evidence {
			if i >= evidencePreview {
				break
			}
			fmt.Fprintf(&b, "%s  evidence: %s\n", strings.Repeat("  ", n.depth), ev.Text)
		}
	}

	return textbudget.Truncate(b.String(), budgetNodeListing)
}

type treeNode struct {
	dir   *graph.Direction
	depth int
}

// collectTree walks the whole non-terminal tree from roots in store
// order, depth-first, so the listing always reflects the graph's
// current shape regardless of how many nodes it holds.
func collectTree(ctx context.Context, st Store, workspaceID string, roots []*graph.Direction) []treeNode {
	var all []treeNode
	var walk func(d *graph.Direction, depth int)
	walk = func(d *graph.Direction, depth int) {
		all = append(all, treeNode{dir: d, depth: depth})
		children, err := st.GetChildren(ctx, workspaceID, d.ID)
		if err != nil {
			return
		}
		for _, c := range children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
	return all
}

// buildCycleSummaries renders cycles (newest-first from ListCycleRecords)
// in chronological order, same shape as pkg/context's cycle summaries.
func buildCycleSummaries(cycles []*models.CycleRecord) string {
	ordered := make([]*models.CycleRecord, len(cycles))
	copy(ordered, cycles)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	var b strings.Builder
	for _, c := range ordered {
		fmt.Fprintf(&b, "- Cycle %d: target=%q created=%d updated=%d\n", c.CycleID, c.TargetClaim, len(c.CreatedDirectionIDs), len(c.UpdatedDirectionIDs))
		if c.SynthesisReasoning != "" {
			fmt.Fprintf(&b, "  reasoning: %s\n", c.SynthesisReasoning)
		}
		for _, consensus := range c.ConsensusClaims {
			fmt.Fprintf(&b, "  consensus: %s\n", consensus)
		}
	}
	return textbudget.Truncate(b.String(), budgetCycleSummaries)
}

func buildContradictions(cycles []*models.CycleRecord) string {
	var b strings.Builder
	for _, c := range cycles {
		for _, contradiction := range c.Contradictions {
			fmt.Fprintf(&b, "- (cycle %d) %s\n", c.CycleID, contradiction)
		}
	}
	return textbudget.Truncate(b.String(), budgetContradictions)
}

func (s *Synthesizer) buildOpenQuestions(ctx context.Context) string {
	critiques, err := s.store.GetRecentCritiques(ctx, s.workspaceID, maxCritiques)
	if err != nil {
		return ""
	}
	return textbudget.Truncate(strings.Join(critiques, "\n"), budgetOpenQuestions)
}

// callLLM makes the one-shot report generation call: tools=[],
// max_iterations=1 (§4.11), same calling convention as pkg/lead's
// stateless protocol calls.
func (s *Synthesizer) callLLM(ctx context.Context, sec sections) (string, error) {
	out, err := s.adapter.Run(ctx, llmadapter.CompletionRequest{
		SystemPrompt:  systemPrompt(),
		UserPrompt:    userPrompt(sec),
		Tools:         nil,
		MaxIterations: 1,
	})
	if err != nil {
		return "", err
	}
	return out.RawText, nil
}

func systemPrompt() string {
	var b strings.Builder
	b.WriteString("You are the research team's report writer. Produce a narrative Markdown report ")
	b.WriteString("from the research graph and cycle history below, with exactly these sections, in order:\n")
	b.WriteString("1. Executive Summary\n2. Key Findings (grouped by theme)\n3. Contradictions and Debates\n")
	b.WriteString("4. Open Questions and Gaps\n5. Methodology Note\n")
	b.WriteString("Write for a reader who has not seen the raw data. Be precise about confidence levels; ")
	b.WriteString("do not overstate certainty the graph doesn't support.\n")
	return b.String()
}

func userPrompt(sec sections) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Direction Graph\n%s\n\n", sec.NodeListing)
	fmt.Fprintf(&b, "## Cycle History\n%s\n\n", sec.CycleSummaries)
	fmt.Fprintf(&b, "## Contradictions\n%s\n\n", sec.Contradictions)
	fmt.Fprintf(&b, "## Open Questions (from worker self-critiques)\n%s\n\n", sec.OpenQuestions)
	return b.String()
}

// wrap prepends the YAML front matter and appends the regeneration
// footer (§4.11). Front matter marshal failure degrades to an empty
// block rather than failing the whole report.
func wrap(rawText string, fm frontMatter) string {
	yamlBytes, err := yaml.Marshal(fm)
	frontMatterBlock := ""
	if err == nil {
		frontMatterBlock = string(yamlBytes)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString(frontMatterBlock)
	b.WriteString("---\n\n")
	b.WriteString(strings.TrimSpace(rawText))
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "_Regenerate this report at any time; it reflects the graph as of %s._\n", fm.Generated.Format(time.RFC3339))
	return b.String()
}
