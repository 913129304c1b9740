// Package lead implements the three stateless Lead Protocol calls
// (§4.6): Select, Synthesize, and Reassess. Each is one LLM call with
// tools=[] and one iteration, parses a strict JSON contract out of the
// response, and falls back to a documented default on any parse or
// validation failure — never propagating a raising error into cycle
// logic (§9).
package lead

// Stance is a synthesized direction's relationship to its evidence.
type Stance string

const (
	StanceSupport    Stance = "support"
	StanceMixed      Stance = "mixed"
	StanceDisconfirm Stance = "disconfirm"
)

// Outcome is what a synthesized direction recommends doing next.
type Outcome string

const (
	OutcomePursue   Outcome = "pursue"
	OutcomeComplete Outcome = "complete"
)

// Action is Reassess's recommended next move for the target direction.
type Action string

const (
	ActionDiverge Action = "diverge"
	ActionDeepen  Action = "deepen"
	ActionClose   Action = "close"
)

// Candidate is one of up-to-30 directions offered to Select (§4.6.1).
type Candidate struct {
	IDPrefix      string
	Claim         string
	Confidence    float64
	Importance    float64
	Depth         int
	StalenessHrs  float64
	ChildrenCount int
}

// SelectInput is everything Select needs to pick the next target.
type SelectInput struct {
	SummaryView        string
	WeakestN           string
	Candidates         []Candidate
	ReportExcerpt      string
	LastSelectedID     string
	ExcludedIDs        []string
	CycleOverride      string
}

// SelectResult is Select's outcome, always populated — either from the
// model's JSON contract or the documented fallback (§4.6.1).
type SelectResult struct {
	SelectedDirectionID string
	Reasoning           string
	UsedFallback        bool
}

// SynthesizedDirection is one direction Synthesize proposes merging
// into the graph (§4.6.2).
type SynthesizedDirection struct {
	Claim            string
	Description      string
	Stance           Stance
	DirectionOutcome Outcome
	Confidence       float64
	Importance       float64
	Reasoning        string
	EvidenceSummary  string
	Tags             []string
}

// SynthesizeInput is everything Synthesize needs to reconcile worker
// output into candidate graph directions.
type SynthesizeInput struct {
	WorkerRawTexts  []string
	SelfCritiques   []string
	TargetClaim     string
	TargetDepth     int
	CycleOverride   string
}

// SynthesizeResult is Synthesize's outcome (§4.6.2).
type SynthesizeResult struct {
	Directions          []SynthesizedDirection
	SynthesisReasoning  string
	ConsensusDirections []string
	Contradictions      []string
	UsedFallback        bool
}

// ReassessInput is everything Reassess needs to judge whether the
// target direction should keep being pursued (§4.6.3).
type ReassessInput struct {
	TargetClaim        string
	PreviousConfidence float64
	PreviousImportance float64
	PreviousStatus     string
	SynthesizedPreview string
	Consensus          []string
	Contradictions     []string
	EvidenceSummaries  []string
}

// ReassessResult is Reassess's outcome (§4.6.3).
type ReassessResult struct {
	Action       Action
	Confidence   float64
	Importance   float64
	Status       string
	Reasoning    string
	UsedFallback bool
}
