package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeready-toolchain/research-engine/pkg/models"
)

// GetAllSearchQueries returns up to limit search queries across every
// cycle in workspaceID, newest-first, by scanning each cycle's
// agent_outputs_json for SearchRecords. Deduplication of case-folded
// queries (§4.5) is the caller's job (pkg/context); this returns the raw
// ordered history.
func (s *Store) GetAllSearchQueries(ctx context.Context, workspaceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT agent_outputs_json FROM cycle_outputs
		WHERE workspace_id=? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get all search queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("get all search queries: scan: %w", err)
		}
		var outputs []models.WorkerOutput
		if err := json.Unmarshal([]byte(raw), &outputs); err != nil {
			continue
		}
		for _, o := range outputs {
			for _, sr := range o.Searches {
				queries = append(queries, sr.Query)
				if len(queries) >= limit {
					return queries, rows.Err()
				}
			}
		}
	}
	return queries, rows.Err()
}

// GetRecentCritiques returns up to limit self-critiques across every
// cycle, newest-first.
func (s *Store) GetRecentCritiques(ctx context.Context, workspaceID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT agent_outputs_json FROM cycle_outputs
		WHERE workspace_id=? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("get recent critiques: %w", err)
	}
	defer rows.Close()

	var critiques []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("get recent critiques: scan: %w", err)
		}
		var outputs []models.WorkerOutput
		if err := json.Unmarshal([]byte(raw), &outputs); err != nil {
			continue
		}
		for _, o := range outputs {
			if o.Critique == "" {
				continue
			}
			critiques = append(critiques, o.Critique)
			if len(critiques) >= limit {
				return critiques, rows.Err()
			}
		}
	}
	return critiques, rows.Err()
}
