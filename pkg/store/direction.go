package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/codeready-toolchain/research-engine/pkg/graph"
	"github.com/codeready-toolchain/research-engine/pkg/researrors"
	"github.com/jmoiron/sqlx"
)

// directionRow is the scalar-projection shape of a nodes row (§6:
// "data_json holds the full serialized direction; scalar columns are
// projections for indexing").
type directionRow struct {
	ID          string `db:"id"`
	WorkspaceID string `db:"workspace_id"`
	ParentID    sql.NullString `db:"parent_id"`
	Claim       string `db:"claim"`
	Confidence  float64 `db:"confidence"`
	Importance  float64 `db:"importance"`
	Depth       int    `db:"depth"`
	Status      string `db:"status"`
	NodeType    string `db:"node_type"`
	DataJSON    string `db:"data_json"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	CreatedByCycle int `db:"created_by_cycle"`
	UpdatedByCycle int `db:"updated_by_cycle"`
}

func (r directionRow) decode() (*graph.Direction, error) {
	var d graph.Direction
	if err := json.Unmarshal([]byte(r.DataJSON), &d); err != nil {
		return nil, fmt.Errorf("decode direction %q: %w", r.ID, err)
	}
	return &d, nil
}

func encodeDirection(d *graph.Direction) (string, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encode direction %q: %w", d.ID, err)
	}
	return string(body), nil
}

func nullableParent(parentID string) sql.NullString {
	if parentID == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: parentID, Valid: true}
}

// Create inserts a direction with validated attributes, appends its id
// to the parent's child list in the same transaction, writes an audit
// record, and (via the nodes_fts triggers) updates the full-text index.
func (s *Store) Create(ctx context.Context, d *graph.Direction) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", err, d)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create %q: begin tx: %w", d.ID, err)
	}
	defer tx.Rollback()

	if d.ParentID != "" {
		if err := appendChild(ctx, tx, d.WorkspaceID, d.ParentID, d.ID); err != nil {
			return fmt.Errorf("create %q: %w", d.ID, err)
		}
	}

	dataJSON, err := encodeDirection(d)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, workspace_id, parent_id, claim, confidence, importance,
			depth, status, node_type, data_json, created_at, updated_at,
			created_by_cycle, updated_by_cycle)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.WorkspaceID, nullableParent(d.ParentID), d.Claim, d.Confidence, d.Importance,
		d.Depth, string(d.Status), string(d.Kind), dataJSON, d.CreatedAt, d.UpdatedAt,
		d.CreatedByCycle, d.UpdatedByCycle)
	if err != nil {
		return fmt.Errorf("create %q: insert: %w", d.ID, err)
	}

	if err := writeAudit(ctx, tx, d.WorkspaceID, d.UpdatedByCycle, "create", d.ID, dataJSON); err != nil {
		return fmt.Errorf("create %q: %w", d.ID, err)
	}

	return tx.Commit()
}

// Update replaces a direction's attributes by id within its owning
// workspace, bumps updated_at, maintains I2 when parent_id changes
// (removing the child from its old parent and adding it to the new
// one), and appends an audit record.
func (s *Store) Update(ctx context.Context, d *graph.Direction) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", err, d)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update %q: begin tx: %w", d.ID, err)
	}
	defer tx.Rollback()

	existing, err := getForUpdate(ctx, tx, d.WorkspaceID, d.ID)
	if err != nil {
		return fmt.Errorf("update %q: %w", d.ID, err)
	}

	if existing.ParentID != d.ParentID {
		if existing.ParentID != "" {
			if err := removeChild(ctx, tx, d.WorkspaceID, existing.ParentID, d.ID); err != nil {
				return fmt.Errorf("update %q: %w", d.ID, err)
			}
		}
		if d.ParentID != "" {
			if err := appendChild(ctx, tx, d.WorkspaceID, d.ParentID, d.ID); err != nil {
				return fmt.Errorf("update %q: %w", d.ID, err)
			}
		}
	}

	d.UpdatedAt = time.Now().UTC()
	dataJSON, err := encodeDirection(d)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE nodes SET parent_id=?, claim=?, confidence=?, importance=?, depth=?,
			status=?, node_type=?, data_json=?, updated_at=?, updated_by_cycle=?
		WHERE id=? AND workspace_id=?`,
		nullableParent(d.ParentID), d.Claim, d.Confidence, d.Importance, d.Depth,
		string(d.Status), string(d.Kind), dataJSON, d.UpdatedAt, d.UpdatedByCycle,
		d.ID, d.WorkspaceID)
	if err != nil {
		return fmt.Errorf("update %q: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", graph.ErrNotFound, d.ID)
	}

	if err := writeAudit(ctx, tx, d.WorkspaceID, d.UpdatedByCycle, "update", d.ID, dataJSON); err != nil {
		return fmt.Errorf("update %q: %w", d.ID, err)
	}

	return tx.Commit()
}

// Kill sets status=killed, appends a killed:{reason} tag, and writes an
// audit record. Killed nodes are excluded from every active listing (I4).
func (s *Store) Kill(ctx context.Context, workspaceID, id, reason string, cycleID int) error {
	d, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return fmt.Errorf("kill %q: %w", id, err)
	}
	d.Status = graph.StatusKilled
	d.Tags = append(d.Tags, fmt.Sprintf("killed:%s", reason))
	d.UpdatedByCycle = cycleID
	return s.Update(ctx, d)
}

// Get returns a single direction by id within workspaceID.
func (s *Store) Get(ctx context.Context, workspaceID, id string) (*graph.Direction, error) {
	var row directionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, workspace_id, parent_id, claim, confidence, importance, depth,
			status, node_type, data_json, created_at, updated_at, created_by_cycle, updated_by_cycle
		FROM nodes WHERE id=? AND workspace_id=?`, id, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", graph.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", id, err)
	}
	return row.decode()
}

func getForUpdate(ctx context.Context, tx *sqlx.Tx, workspaceID, id string) (*graph.Direction, error) {
	var row directionRow
	err := tx.GetContext(ctx, &row, `
		SELECT id, workspace_id, parent_id, claim, confidence, importance, depth,
			status, node_type, data_json, created_at, updated_at, created_by_cycle, updated_by_cycle
		FROM nodes WHERE id=? AND workspace_id=?`, id, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", graph.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.decode()
}

// GetChildren returns the non-terminal children of parentID (I4: killed
// and merged nodes are excluded from every active listing).
func (s *Store) GetChildren(ctx context.Context, workspaceID, parentID string) ([]*graph.Direction, error) {
	return s.queryDirections(ctx, `
		SELECT id, workspace_id, parent_id, claim, confidence, importance, depth,
			status, node_type, data_json, created_at, updated_at, created_by_cycle, updated_by_cycle
		FROM nodes WHERE workspace_id=? AND parent_id=? AND status NOT IN ('killed','merged')
		ORDER BY created_at ASC`, workspaceID, parentID)
}

// GetRoots returns non-terminal directions with no parent.
func (s *Store) GetRoots(ctx context.Context, workspaceID string) ([]*graph.Direction, error) {
	return s.queryDirections(ctx, `
		SELECT id, workspace_id, parent_id, claim, confidence, importance, depth,
			status, node_type, data_json, created_at, updated_at, created_by_cycle, updated_by_cycle
		FROM nodes WHERE workspace_id=? AND parent_id IS NULL AND status NOT IN ('killed','merged')
		ORDER BY created_at ASC`, workspaceID)
}

// GetActive returns every direction with status='active' in the workspace.
func (s *Store) GetActive(ctx context.Context, workspaceID string) ([]*graph.Direction, error) {
	return s.queryDirections(ctx, `
		SELECT id, workspace_id, parent_id, claim, confidence, importance, depth,
			status, node_type, data_json, created_at, updated_at, created_by_cycle, updated_by_cycle
		FROM nodes WHERE workspace_id=? AND status='active'
		ORDER BY depth ASC`, workspaceID)
}

// CountActive returns the count of status='active' directions.
func (s *Store) CountActive(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM nodes WHERE workspace_id=? AND status='active'`, workspaceID)
	if err != nil {
		return 0, fmt.Errorf("count active: %w", err)
	}
	return n, nil
}

// SearchByText runs a full-text query over claims via the nodes_fts
// virtual table and returns best-ranked matches, best match first.
func (s *Store) SearchByText(ctx context.Context, workspaceID, query string, limit int) ([]*graph.Direction, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT n.id, n.workspace_id, n.parent_id, n.claim, n.confidence, n.importance, n.depth,
			n.status, n.node_type, n.data_json, n.created_at, n.updated_at, n.created_by_cycle, n.updated_by_cycle
		FROM nodes_fts f
		JOIN nodes n ON n.id = f.id
		WHERE f.claim MATCH ? AND n.workspace_id = ?
		ORDER BY bm25(f) LIMIT ?`, query, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("search by text %q: %w", query, err)
	}
	defer rows.Close()

	var out []*graph.Direction
	for rows.Next() {
		var row directionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("search by text %q: scan: %w", query, err)
		}
		d, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) queryDirections(ctx context.Context, q string, args ...any) ([]*graph.Direction, error) {
	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query directions: %w", err)
	}
	defer rows.Close()

	var out []*graph.Direction
	for rows.Next() {
		var row directionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("query directions: scan: %w", err)
		}
		d, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// appendChild loads parentID's Direction, appends childID to its
// Children list if absent, and writes it back — all within tx (I2).
func appendChild(ctx context.Context, tx *sqlx.Tx, workspaceID, parentID, childID string) error {
	parent, err := getForUpdate(ctx, tx, workspaceID, parentID)
	if err != nil {
		return invariantErr("I1", fmt.Sprintf("parent %q not found while appending child %q: %v", parentID, childID, err))
	}
	for _, c := range parent.Children {
		if c == childID {
			return nil
		}
	}
	parent.Children = append(parent.Children, childID)
	return writeChildren(ctx, tx, parent)
}

// removeChild removes childID from parentID's Children list.
func removeChild(ctx context.Context, tx *sqlx.Tx, workspaceID, parentID, childID string) error {
	parent, err := getForUpdate(ctx, tx, workspaceID, parentID)
	if errors.Is(err, graph.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	filtered := parent.Children[:0]
	for _, c := range parent.Children {
		if c != childID {
			filtered = append(filtered, c)
		}
	}
	parent.Children = filtered
	return writeChildren(ctx, tx, parent)
}

func writeChildren(ctx context.Context, tx *sqlx.Tx, d *graph.Direction) error {
	dataJSON, err := encodeDirection(d)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE nodes SET data_json=? WHERE id=? AND workspace_id=?`,
		dataJSON, d.ID, d.WorkspaceID)
	return err
}

func invariantErr(invariant, detail string) error {
	return &researrors.StoreInvariantError{Invariant: invariant, Detail: detail}
}
