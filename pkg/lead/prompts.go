package lead

import (
	"fmt"
	"strings"
)

func selectSystemPrompt(in SelectInput) string {
	var b strings.Builder
	b.WriteString("You are the Lead of an autonomous research engine. Pick the single direction the team should investigate next.\n\n")
	b.WriteString("Guidance:\n")
	b.WriteString("- If a cycle override instruction is present, honor it first.\n")
	b.WriteString("- Maintain portfolio breadth across the direction tree; don't fixate on one branch.\n")
	b.WriteString("- Prefer exploration at shallow depth; prefer exploitation (deepening) on directions with low confidence but high importance.\n")
	b.WriteString("- Factor in staleness: a direction untouched for a long time is a candidate for revisiting.\n")
	b.WriteString("- Progress the concreteness ladder: depth 0 = thesis, depth 1 = wedge/segment, depth 2 = buyer/workflow, depth 3+ = named targets.\n\n")
	b.WriteString("Respond with strict JSON only: {\"selected_node_id\": string, \"reasoning\": string}. ")
	b.WriteString("selected_node_id may be a full id or an unambiguous id prefix from the candidates.\n")
	if in.CycleOverride != "" {
		fmt.Fprintf(&b, "\nCycle override instruction: %s\n", in.CycleOverride)
	}
	return b.String()
}

func selectUserPrompt(in SelectInput) string {
	var b strings.Builder
	b.WriteString("## Graph Summary\n")
	b.WriteString(in.SummaryView)
	b.WriteString("\n\n## Weakest Directions\n")
	b.WriteString(in.WeakestN)
	b.WriteString("\n\n## Candidates\n")
	for _, c := range in.Candidates {
		fmt.Fprintf(&b, "- id=%s claim=%q conf=%.2f imp=%.2f depth=%d staleness_hrs=%.1f children=%d\n",
			c.IDPrefix, c.Claim, c.Confidence, c.Importance, c.Depth, c.StalenessHrs, c.ChildrenCount)
	}
	if in.ReportExcerpt != "" {
		fmt.Fprintf(&b, "\n## Latest Report Excerpt\n%s\n", in.ReportExcerpt)
	}
	if in.LastSelectedID != "" {
		fmt.Fprintf(&b, "\nLast selected: %s\n", in.LastSelectedID)
	}
	if len(in.ExcludedIDs) > 0 {
		fmt.Fprintf(&b, "Excluded ids (do not select): %s\n", strings.Join(in.ExcludedIDs, ", "))
	}
	return b.String()
}

func synthesizeSystemPrompt(in SynthesizeInput) string {
	var b strings.Builder
	b.WriteString("You are the Lead synthesizing raw research worker output into graph directions.\n\n")
	b.WriteString("For each distinct finding worth tracking, produce a direction with: claim (<=120 chars), ")
	b.WriteString("description (Markdown, 350-700 words), stance (support|mixed|disconfirm), ")
	b.WriteString("direction_outcome (pursue|complete), confidence, importance, reasoning, evidence_summary, tags.\n")
	b.WriteString("Next actions named inside a description must be executable by this research engine: web search, ")
	b.WriteString("source analysis, contradiction resolution, or evidence gathering. Do not propose product, customer, ")
	b.WriteString("or operational actions.\n\n")
	b.WriteString("Respond with strict JSON only: {\"directions\": [...], \"synthesis_reasoning\": string, ")
	b.WriteString("\"consensus_directions\": [string], \"contradictions\": [string]}.\n")
	if in.CycleOverride != "" {
		fmt.Fprintf(&b, "\nCycle override instruction: %s\n", in.CycleOverride)
	}
	return b.String()
}

func synthesizeUserPrompt(in SynthesizeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Target Direction\nClaim: %s\nDepth: %d\n\n", in.TargetClaim, in.TargetDepth)
	b.WriteString("## Worker Output\n")
	for i, text := range in.WorkerRawTexts {
		fmt.Fprintf(&b, "### Worker %d\n%s\n\n", i+1, text)
	}
	if len(in.SelfCritiques) > 0 {
		b.WriteString("## Self-Critiques\n")
		for i, c := range in.SelfCritiques {
			fmt.Fprintf(&b, "- Worker %d: %s\n", i+1, c)
		}
	}
	return b.String()
}

func reassessSystemPrompt(in ReassessInput) string {
	return "You are the Lead reassessing a target direction after synthesis and merge. Decide the next action " +
		"(diverge|deepen|close), and the direction's confidence, importance, and status (active|completed|closed). " +
		"Respond with strict JSON only: {\"action\": string, \"confidence\": number, \"importance\": number, " +
		"\"status\": string, \"reasoning\": string}."
}

func reassessUserPrompt(in ReassessInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Target\nClaim: %s\nPrevious confidence: %.2f\nPrevious importance: %.2f\nPrevious status: %s\n\n",
		in.TargetClaim, in.PreviousConfidence, in.PreviousImportance, in.PreviousStatus)
	fmt.Fprintf(&b, "## Synthesized Directions Preview\n%s\n\n", in.SynthesizedPreview)
	if len(in.Consensus) > 0 {
		fmt.Fprintf(&b, "## Consensus\n%s\n\n", strings.Join(in.Consensus, "\n"))
	}
	if len(in.Contradictions) > 0 {
		fmt.Fprintf(&b, "## Contradictions\n%s\n\n", strings.Join(in.Contradictions, "\n"))
	}
	if len(in.EvidenceSummaries) > 0 {
		fmt.Fprintf(&b, "## Worker Evidence Summaries\n%s\n", strings.Join(in.EvidenceSummaries, "\n"))
	}
	return b.String()
}
