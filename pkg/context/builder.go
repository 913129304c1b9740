// Package researchcontext assembles the Research Context Builder output
// (§4.5): six token-budgeted sections of prior-cycle knowledge injected
// into worker prompts. Named researchcontext (not "context") so callers
// never have to alias it against the standard library's context package.
package researchcontext

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/codeready-toolchain/research-engine/pkg/models"
	"github.com/codeready-toolchain/research-engine/pkg/textbudget"
	"github.com/codeready-toolchain/research-engine/pkg/views"
)

const (
	budgetGraphSummary    = 3200
	budgetCycleSummaries  = 4800
	budgetSearchHistory   = 2400
	budgetContradictions  = 1600
	budgetWeakestNodes    = 1600
	budgetOpenQuestions   = 2400

	maxCycleSummaries = 10
	maxCritiques      = 10
	weakestN          = 10
)

// Store is the subset of pkg/store's Store that context building needs.
type Store interface {
	views.Store
	ListCycleRecords(ctx context.Context, workspaceID string, filters models.CycleRecordFilters) ([]*models.CycleRecord, error)
	GetAllSearchQueries(ctx context.Context, workspaceID string, limit int) ([]string, error)
	GetRecentCritiques(ctx context.Context, workspaceID string, limit int) ([]string, error)
}

// Context is the assembled, budgeted research context for one cycle.
type Context struct {
	GraphSummary    string
	CycleSummaries  string
	SearchHistory   string
	Contradictions  string
	WeakestNodes    string
	OpenQuestions   string
}

// Empty reports whether every section is empty, i.e. the "empty render"
// the spec mandates when no prior successful cycle exists.
func (c Context) Empty() bool {
	return c.GraphSummary == "" && c.CycleSummaries == "" && c.SearchHistory == "" &&
		c.Contradictions == "" && c.WeakestNodes == "" && c.OpenQuestions == ""
}

// Render concatenates the six sections under their own headings, for
// direct embedding into a worker or Lead prompt.
func (c Context) Render() string {
	var b strings.Builder
	sections := []struct {
		title string
		body  string
	}{
		{"Graph Summary", c.GraphSummary},
		{"Prior Cycle Summaries", c.CycleSummaries},
		{"Search History", c.SearchHistory},
		{"Contradictions", c.Contradictions},
		{"Weakest Directions", c.WeakestNodes},
		{"Open Questions", c.OpenQuestions},
	}
	for _, s := range sections {
		if s.body == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", s.title, s.body)
	}
	return b.String()
}

// Build assembles the six sections in parallel under fixed character
// budgets. It triggers only when prior successful cycles exist; an error
// building any one section yields an empty string for that section only
// — it never fails cycle execution (§4.5).
func Build(ctx context.Context, st Store, workspaceID string) (Context, error) {
	successTrue := true
	priorCycles, err := st.ListCycleRecords(ctx, workspaceID, models.CycleRecordFilters{Success: &successTrue})
	if err != nil || len(priorCycles) == 0 {
		return Context{}, nil
	}

	var wg sync.WaitGroup
	var result Context

	sections := []struct {
		target *string
		fn     func() string
	}{
		{&result.GraphSummary, func() string { return buildGraphSummary(ctx, st, workspaceID) }},
		{&result.CycleSummaries, func() string { return buildCycleSummaries(priorCycles) }},
		{&result.SearchHistory, func() string { return buildSearchHistory(ctx, st, workspaceID) }},
		{&result.Contradictions, func() string { return buildContradictions(priorCycles) }},
		{&result.WeakestNodes, func() string { return buildWeakestNodes(ctx, st, workspaceID) }},
		{&result.OpenQuestions, func() string { return buildOpenQuestions(ctx, st, workspaceID) }},
	}

	for _, sec := range sections {
		wg.Add(1)
		go func(target *string, fn func() string) {
			defer wg.Done()
			defer func() {
				if recover() != nil {
					*target = ""
				}
			}()
			*target = fn()
		}(sec.target, sec.fn)
	}
	wg.Wait()

	return result, nil
}

func buildGraphSummary(ctx context.Context, st Store, workspaceID string) string {
	summary, err := views.Summary(ctx, st, workspaceID)
	if err != nil {
		return ""
	}
	return textbudget.Truncate(summary, budgetGraphSummary)
}

func buildCycleSummaries(cycles []*models.CycleRecord) string {
	// cycles arrives newest-first from ListCycleRecords; the spec wants
	// the last 10 in chronological order.
	n := len(cycles)
	if n > maxCycleSummaries {
		n = maxCycleSummaries
	}
	recent := make([]*models.CycleRecord, n)
	copy(recent, cycles[:n])
	sort.Slice(recent, func(i, j int) bool { return recent[i].CreatedAt.Before(recent[j].CreatedAt) })

	var b strings.Builder
	for _, c := range recent {
		fmt.Fprintf(&b, "- Cycle %d: target=%q created=%d updated=%d\n",
			c.CycleID, claimPreview(c.TargetClaim), len(c.CreatedDirectionIDs), len(c.UpdatedDirectionIDs))
		fmt.Fprintf(&b, "  reasoning: %s\n", claimPreview(c.SynthesisReasoning))
		for i, consensus := range c.ConsensusClaims {
			if i >= 3 {
				break
			}
			fmt.Fprintf(&b, "  consensus: %s\n", consensus)
		}
	}
	return textbudget.Truncate(b.String(), budgetCycleSummaries)
}

func buildSearchHistory(ctx context.Context, st Store, workspaceID string) string {
	queries, err := st.GetAllSearchQueries(ctx, workspaceID, 0)
	if err != nil {
		return ""
	}

	seen := make(map[string]bool, len(queries))
	var unique []string
	for _, q := range queries {
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, q)
	}

	return textbudget.Truncate(strings.Join(unique, "\n"), budgetSearchHistory)
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

func buildWeakestNodes(ctx context.Context, st Store, workspaceID string) string {
	scored, err := views.WeakestN(ctx, st, workspaceID, weakestN)
	if err != nil {
		return ""
	}
	var b strings.Builder
	for _, s := range scored {
		fmt.Fprintf(&b, "- (%.3f) %s\n", s.Score, claimPreview(s.Direction.Claim))
	}
	return textbudget.Truncate(b.String(), budgetWeakestNodes)
}

func buildOpenQuestions(ctx context.Context, st Store, workspaceID string) string {
	critiques, err := st.GetRecentCritiques(ctx, workspaceID, maxCritiques)
	if err != nil {
		return ""
	}
	return textbudget.Truncate(strings.Join(critiques, "\n"), budgetOpenQuestions)
}

func claimPreview(s string) string {
	const previewLen = 120
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "…"
}
