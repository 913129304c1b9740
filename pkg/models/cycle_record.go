package models

import "time"

// SearchRecord is one web_search tool call made by a worker during a
// cycle (§3 WorkerOutput.SearchRecord).
type SearchRecord struct {
	Query   string    `json:"query"`
	Engine  string    `json:"engine"`
	Time    time.Time `json:"time"`
	Summary string    `json:"summary"`
	URLs    []string  `json:"urls"`
}

// WorkerOutput is the raw, read-only result of one Research Worker's
// tool-use loop (§3, §4.7).
type WorkerOutput struct {
	AgentName string `json:"agent_name"`
	Model     string `json:"model"`

	RawText  string         `json:"raw_text"`
	Critique string         `json:"critique"`
	Searches []SearchRecord `json:"searches"`

	Cost     float64       `json:"cost_usd"`
	Duration time.Duration `json:"duration"`

	TokensTotal  int `json:"tokens_total"`
	TokensInput  int `json:"tokens_input"`
	TokensOutput int `json:"tokens_output"`

	Failed bool `json:"failed"`
}

// CycleRecord is the persisted outcome of one Cycle Executor run (§3).
type CycleRecord struct {
	CycleID     int    `json:"cycle_id"`
	WorkspaceID string `json:"workspace_id"`

	TargetDirectionID string `json:"target_direction_id"`
	TargetClaim       string `json:"target_claim"`

	SynthesisReasoning  string   `json:"synthesis_reasoning"`
	ConsensusClaims     []string `json:"consensus_claims"`
	Contradictions      []string `json:"contradictions"`
	CreatedDirectionIDs []string `json:"created_direction_ids"`
	UpdatedDirectionIDs []string `json:"updated_direction_ids"`
	SkippedDirectionIDs []string `json:"skipped_direction_ids"`

	MergeCreated int `json:"merge_created"`
	MergeUpdated int `json:"merge_updated"`
	MergeSkipped int `json:"merge_skipped"`

	WorkerOutputs []WorkerOutput `json:"worker_outputs"`

	TotalCostUSD         float64 `json:"total_cost_usd"`
	LeadLLMCostUSD       float64 `json:"lead_llm_cost_usd"`
	ResearchAgentsCostUSD float64 `json:"research_agents_cost_usd"`

	Duration time.Duration `json:"duration"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	// FailedStage names the state-machine step active when Success is
	// false (e.g. "DISPATCHING"), per spec.md §7's user-visible behavior
	// requirement that the cycle record capture the failing stage.
	FailedStage string `json:"failed_stage,omitempty"`

	SelectionStrategy  string `json:"selection_strategy"`
	SelectionReasoning string `json:"selection_reasoning"`

	CreatedAt time.Time `json:"created_at"`
}

// CycleRecordFilters narrows ListCycleRecords queries (§4.1).
type CycleRecordFilters struct {
	MinCost    *float64
	MaxCost    *float64
	TargetID   string
	Success    *bool
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	TextSearch string
	Limit      int
}
