package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/models"
)

type cycleRow struct {
	CycleID               int            `db:"cycle_id"`
	WorkspaceID           string         `db:"workspace_id"`
	TargetNodeID          string         `db:"target_node_id"`
	TargetClaim           string         `db:"target_claim"`
	SynthesisReasoning    string         `db:"synthesis_reasoning"`
	ConsensusFindingsJSON string         `db:"consensus_findings_json"`
	ContradictionsJSON    string         `db:"contradictions_json"`
	TotalCostUSD          float64        `db:"total_cost_usd"`
	LeadLLMCostUSD        float64        `db:"lead_llm_cost_usd"`
	ResearchAgentsCostUSD float64        `db:"research_agents_cost_usd"`
	DurationSeconds       float64        `db:"duration_seconds"`
	Success               bool           `db:"success"`
	ErrorMessage          sql.NullString `db:"error_message"`
	FailedStage           sql.NullString `db:"failed_stage"`
	SelectionStrategy     string         `db:"selection_strategy"`
	SelectionReasoning    string         `db:"selection_reasoning"`
	CreatedDirectionsJSON string         `db:"created_directions_json"`
	UpdatedDirectionsJSON string         `db:"updated_directions_json"`
	SkippedDirectionsJSON string         `db:"skipped_directions_json"`
	AgentOutputsJSON      string         `db:"agent_outputs_json"`
	CreatedAt             time.Time      `db:"created_at"`
}

func (r cycleRow) decode() (*models.CycleRecord, error) {
	rec := &models.CycleRecord{
		CycleID:               r.CycleID,
		WorkspaceID:           r.WorkspaceID,
		TargetDirectionID:     r.TargetNodeID,
		TargetClaim:           r.TargetClaim,
		SynthesisReasoning:    r.SynthesisReasoning,
		TotalCostUSD:          r.TotalCostUSD,
		LeadLLMCostUSD:        r.LeadLLMCostUSD,
		ResearchAgentsCostUSD: r.ResearchAgentsCostUSD,
		Duration:              time.Duration(r.DurationSeconds * float64(time.Second)),
		Success:               r.Success,
		Error:                 r.ErrorMessage.String,
		FailedStage:           r.FailedStage.String,
		SelectionStrategy:     r.SelectionStrategy,
		SelectionReasoning:    r.SelectionReasoning,
		CreatedAt:             r.CreatedAt,
	}
	fields := []struct {
		raw string
		dst *[]string
	}{
		{r.ConsensusFindingsJSON, &rec.ConsensusClaims},
		{r.ContradictionsJSON, &rec.Contradictions},
		{r.CreatedDirectionsJSON, &rec.CreatedDirectionIDs},
		{r.UpdatedDirectionsJSON, &rec.UpdatedDirectionIDs},
		{r.SkippedDirectionsJSON, &rec.SkippedDirectionIDs},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decode cycle %d: %w", r.CycleID, err)
		}
	}
	if r.AgentOutputsJSON != "" {
		if err := json.Unmarshal([]byte(r.AgentOutputsJSON), &rec.WorkerOutputs); err != nil {
			return nil, fmt.Errorf("decode cycle %d worker outputs: %w", r.CycleID, err)
		}
	}
	return rec, nil
}

// SaveCycleRecord persists rec atomically (I5: the caller is responsible
// for assigning a strictly monotonic cycle id before calling this).
func (s *Store) SaveCycleRecord(ctx context.Context, rec *models.CycleRecord) error {
	marshal := func(v any) (string, error) {
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	consensusJSON, err := marshal(rec.ConsensusClaims)
	if err != nil {
		return fmt.Errorf("save cycle record %d: %w", rec.CycleID, err)
	}
	contradictionsJSON, err := marshal(rec.Contradictions)
	if err != nil {
		return fmt.Errorf("save cycle record %d: %w", rec.CycleID, err)
	}
	createdJSON, _ := marshal(rec.CreatedDirectionIDs)
	updatedJSON, _ := marshal(rec.UpdatedDirectionIDs)
	skippedJSON, _ := marshal(rec.SkippedDirectionIDs)
	outputsJSON, err := marshal(rec.WorkerOutputs)
	if err != nil {
		return fmt.Errorf("save cycle record %d: %w", rec.CycleID, err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cycle_outputs (
			cycle_id, workspace_id, target_node_id, target_claim, synthesis_reasoning,
			consensus_findings_json, contradictions_json, total_cost_usd, lead_llm_cost_usd,
			research_agents_cost_usd, duration_seconds, success, error_message, failed_stage,
			selection_strategy, selection_reasoning, created_directions_json,
			updated_directions_json, skipped_directions_json, agent_outputs_json, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(workspace_id, cycle_id) DO UPDATE SET
			target_node_id=excluded.target_node_id,
			target_claim=excluded.target_claim,
			synthesis_reasoning=excluded.synthesis_reasoning,
			consensus_findings_json=excluded.consensus_findings_json,
			contradictions_json=excluded.contradictions_json,
			total_cost_usd=excluded.total_cost_usd,
			lead_llm_cost_usd=excluded.lead_llm_cost_usd,
			research_agents_cost_usd=excluded.research_agents_cost_usd,
			duration_seconds=excluded.duration_seconds,
			success=excluded.success,
			error_message=excluded.error_message,
			failed_stage=excluded.failed_stage,
			selection_strategy=excluded.selection_strategy,
			selection_reasoning=excluded.selection_reasoning,
			created_directions_json=excluded.created_directions_json,
			updated_directions_json=excluded.updated_directions_json,
			skipped_directions_json=excluded.skipped_directions_json,
			agent_outputs_json=excluded.agent_outputs_json`,
		rec.CycleID, rec.WorkspaceID, rec.TargetDirectionID, rec.TargetClaim, rec.SynthesisReasoning,
		consensusJSON, contradictionsJSON, rec.TotalCostUSD, rec.LeadLLMCostUSD,
		rec.ResearchAgentsCostUSD, rec.Duration.Seconds(), rec.Success, nullableString(rec.Error),
		nullableString(rec.FailedStage), rec.SelectionStrategy, rec.SelectionReasoning, createdJSON,
		updatedJSON, skippedJSON, outputsJSON, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("save cycle record %d: %w", rec.CycleID, err)
	}
	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// GetCycleRecord returns one cycle record by id within workspaceID.
func (s *Store) GetCycleRecord(ctx context.Context, workspaceID string, cycleID int) (*models.CycleRecord, error) {
	var row cycleRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM cycle_outputs WHERE workspace_id=? AND cycle_id=?`, workspaceID, cycleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cycle record %d: %w", cycleID, errNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cycle record %d: %w", cycleID, err)
	}
	return row.decode()
}

// ListCycleRecords returns cycle records matching filters, newest first.
func (s *Store) ListCycleRecords(ctx context.Context, workspaceID string, filters models.CycleRecordFilters) ([]*models.CycleRecord, error) {
	query := `SELECT * FROM cycle_outputs WHERE workspace_id=?`
	args := []any{workspaceID}

	if filters.MinCost != nil {
		query += ` AND total_cost_usd >= ?`
		args = append(args, *filters.MinCost)
	}
	if filters.MaxCost != nil {
		query += ` AND total_cost_usd <= ?`
		args = append(args, *filters.MaxCost)
	}
	if filters.TargetID != "" {
		query += ` AND target_node_id = ?`
		args = append(args, filters.TargetID)
	}
	if filters.Success != nil {
		query += ` AND success = ?`
		args = append(args, *filters.Success)
	}
	if filters.CreatedAfter != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filters.CreatedAfter)
	}
	if filters.CreatedBefore != nil {
		query += ` AND created_at <= ?`
		args = append(args, *filters.CreatedBefore)
	}
	if filters.TextSearch != "" {
		query += ` AND synthesis_reasoning LIKE ?`
		args = append(args, "%"+strings.ReplaceAll(filters.TextSearch, "%", "")+"%")
	}

	query += ` ORDER BY created_at DESC`
	if filters.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filters.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list cycle records: %w", err)
	}
	defer rows.Close()

	var out []*models.CycleRecord
	for rows.Next() {
		var row cycleRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("list cycle records: scan: %w", err)
		}
		rec, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteCycle removes a cycle record and its audit rows but leaves graph
// nodes intact, per the admin `cycle remove` operation.
func (s *Store) DeleteCycle(ctx context.Context, workspaceID string, cycleID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete cycle %d: begin tx: %w", cycleID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cycle_outputs WHERE workspace_id=? AND cycle_id=?`, workspaceID, cycleID); err != nil {
		return fmt.Errorf("delete cycle %d: %w", cycleID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM graph_operations WHERE workspace_id=? AND cycle_id=?`, workspaceID, cycleID); err != nil {
		return fmt.Errorf("delete cycle %d: audit: %w", cycleID, err)
	}
	return tx.Commit()
}
