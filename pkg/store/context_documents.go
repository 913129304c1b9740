package store

import (
	"context"
	"fmt"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/models"
)

// UpsertContextDocuments replaces-or-inserts each document by filename
// within workspaceID.
func (s *Store) UpsertContextDocuments(ctx context.Context, workspaceID string, docs []models.ContextDocument) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert context documents: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, doc := range docs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO context_documents (workspace_id, filename, content, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(workspace_id, filename) DO UPDATE SET
				content=excluded.content, updated_at=excluded.updated_at`,
			workspaceID, doc.Filename, doc.Content, now)
		if err != nil {
			return fmt.Errorf("upsert context document %q: %w", doc.Filename, err)
		}
	}
	return tx.Commit()
}

// GetContextDocuments returns every context document attached to
// workspaceID.
func (s *Store) GetContextDocuments(ctx context.Context, workspaceID string) ([]models.ContextDocument, error) {
	var docs []models.ContextDocument
	err := s.db.SelectContext(ctx, &docs, `
		SELECT workspace_id, filename, content, updated_at
		FROM context_documents WHERE workspace_id=? ORDER BY filename ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get context documents: %w", err)
	}
	return docs, nil
}
