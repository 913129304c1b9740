package models

import "time"

// ContextDocument is a user-supplied reference file attached to a
// workspace and injected into worker prompts (§3).
type ContextDocument struct {
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Filename    string    `json:"filename" db:"filename"`
	Content     string    `json:"content" db:"content"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ReportMetadata tracks a workspace's on-demand narrative report state
// (§3, §4.11).
type ReportMetadata struct {
	WorkspaceID          string        `json:"workspace_id" db:"workspace_id"`
	RegenerationInterval time.Duration `json:"regeneration_interval" db:"regeneration_interval_seconds"`
	LastGeneratedAt      *time.Time    `json:"last_generated_at,omitempty" db:"last_generated_at"`
	Markdown             string        `json:"markdown,omitempty" db:"markdown"`
}
