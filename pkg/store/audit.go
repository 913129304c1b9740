package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// writeAudit appends an append-only graph_operations row recording the
// operation and the resulting fingerprint of the node (I7).
func writeAudit(ctx context.Context, tx *sqlx.Tx, workspaceID string, cycleID int, operation, nodeID, afterJSON string) error {
	details, err := json.Marshal(map[string]string{"after": afterJSON})
	if err != nil {
		return fmt.Errorf("write audit: marshal details: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO graph_operations (workspace_id, timestamp, cycle_id, operation, node_id, details_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		workspaceID, time.Now().UTC(), cycleID, operation, nodeID, string(details))
	if err != nil {
		return fmt.Errorf("write audit: insert: %w", err)
	}
	return nil
}
