// Package graph defines the direction-graph data model: directions,
// evidence, and the validation rules that keep them consistent.
package graph

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Direction.
type Status string

// Direction statuses. Killed and Merged are terminal (I4): once reached,
// a direction is excluded from active listings and never re-activated.
const (
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusClosed      Status = "closed"
	StatusKilled      Status = "killed"
	StatusMerged      Status = "merged"
	StatusSpeculative Status = "speculative"
)

// Terminal reports whether the status is a terminal one (I4).
func (s Status) Terminal() bool {
	return s == StatusKilled || s == StatusMerged
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusClosed, StatusKilled, StatusMerged, StatusSpeculative:
		return true
	default:
		return false
	}
}

// Kind tags a node's origin. The current model always uses KindDirection;
// the legacy kinds are recognized only so migrations can normalize old rows.
type Kind string

const (
	KindDirection Kind = "direction"

	// Legacy kinds, migrated to KindDirection on read (see pkg/store/migrate.go).
	KindQuestion   Kind = "question"
	KindHypothesis Kind = "hypothesis"
	KindSupporting Kind = "supporting"
	KindOpposing   Kind = "opposing"
)

// NormalizeKind maps a legacy kind to the current model. Unknown values
// also normalize to KindDirection: the model has exactly one kind today.
func NormalizeKind(k Kind) Kind {
	return KindDirection
}

// Evidence is a (text, source) pair attached to a Direction, optionally
// witnessed by more than one agent (§3).
type Evidence struct {
	Text       string    `json:"text" validate:"required"`
	Source     string    `json:"source" validate:"required"`
	ObservedAt time.Time `json:"observed_at"`
	VerifiedBy []string  `json:"verified_by,omitempty"`
}

// Direction is a strategic research path: a graph node with a claim,
// supporting evidence, and derived confidence (§3).
type Direction struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	ParentID    string `json:"parent_id,omitempty"`

	Claim       string `json:"claim" validate:"required,min=1"`
	Description string `json:"description,omitempty"`

	Confidence float64 `json:"confidence"`
	Importance float64 `json:"importance"`
	Depth      int     `json:"depth"`

	Status Status `json:"status"`
	Kind   Kind   `json:"kind"`

	Children []string `json:"children"`
	Tags     []string `json:"tags,omitempty"`
	Evidence []Evidence `json:"evidence,omitempty"`
	Sources  []string `json:"sources,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CreatedByCycle int `json:"created_by_cycle"`
	UpdatedByCycle int `json:"updated_by_cycle"`
}

// Staleness is the time elapsed since the direction was last updated (§3).
func (d *Direction) Staleness(now time.Time) time.Duration {
	return now.Sub(d.UpdatedAt)
}

// IsRoot reports whether d has no parent.
func (d *Direction) IsRoot() bool {
	return d.ParentID == ""
}

// NewDirection constructs a Direction with a fresh id and sane defaults,
// ready for Validate. Callers set Confidence/Importance/Depth/ParentID
// themselves — zero values are valid (I3: confidence/importance default
// to 0, depth to 0).
func NewDirection(workspaceID, claim string, cycleID int) *Direction {
	now := time.Now()
	return &Direction{
		ID:             uuid.NewString(),
		WorkspaceID:    workspaceID,
		Claim:          claim,
		Status:         StatusActive,
		Kind:           KindDirection,
		Children:       []string{},
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedByCycle: cycleID,
		UpdatedByCycle: cycleID,
	}
}

// Validate enforces I3 (ranges) and the non-empty claim rule. It does not
// check I1/I2 (parent existence, child-list agreement) — those are
// cross-node invariants enforced by the Store within a transaction.
func (d *Direction) Validate() error {
	if d.Claim == "" {
		return fmt.Errorf("%w: claim must not be empty", ErrInvalidDirection)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f out of [0,1]", ErrInvalidDirection, d.Confidence)
	}
	if d.Importance < 0 || d.Importance > 1 {
		return fmt.Errorf("%w: importance %.3f out of [0,1]", ErrInvalidDirection, d.Importance)
	}
	if d.Depth < 0 {
		return fmt.Errorf("%w: depth %d is negative", ErrInvalidDirection, d.Depth)
	}
	if !d.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidDirection, d.Status)
	}
	return nil
}

// ClampConfidence clamps v into [0, cap], defaulting cap to 0.95 (the
// propagation ceiling used throughout §4.3) when cap <= 0.
func ClampConfidence(v, cap float64) float64 {
	if cap <= 0 {
		cap = 0.95
	}
	if v < 0 {
		return 0
	}
	if v > cap {
		return cap
	}
	return v
}

// Clamp01 clamps v into [0, 1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
