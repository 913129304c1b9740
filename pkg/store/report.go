package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/models"
)

// GetReportMetadata returns workspaceID's report metadata, or a fresh
// zero-value record (regeneration interval left at the caller's default)
// when none has been saved yet.
func (s *Store) GetReportMetadata(ctx context.Context, workspaceID string) (*models.ReportMetadata, error) {
	var meta models.ReportMetadata
	err := s.db.GetContext(ctx, &meta, `
		SELECT workspace_id, regeneration_interval_seconds, last_generated_at, markdown
		FROM report_metadata WHERE workspace_id=?`, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ReportMetadata{WorkspaceID: workspaceID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get report metadata: %w", err)
	}
	meta.RegenerationInterval *= time.Second
	return &meta, nil
}

// SaveReportMetadata upserts a workspace's report metadata.
func (s *Store) SaveReportMetadata(ctx context.Context, meta *models.ReportMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO report_metadata (workspace_id, regeneration_interval_seconds, last_generated_at, markdown)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(workspace_id) DO UPDATE SET
			regeneration_interval_seconds=excluded.regeneration_interval_seconds,
			last_generated_at=excluded.last_generated_at,
			markdown=excluded.markdown`,
		meta.WorkspaceID, int64(meta.RegenerationInterval/time.Second), meta.LastGeneratedAt, meta.Markdown)
	if err != nil {
		return fmt.Errorf("save report metadata: %w", err)
	}
	return nil
}
