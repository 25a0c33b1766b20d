package database

import "context"

type Workspace struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id"`
	Shared  bool   `json:"shared"`
	Role    int16  `json:"role"`
}

// ListWorkspacesForUser returns the workspaces userID is a member of.
func (db *DB) ListWorkspacesForUser(ctx context.Context, userID int64) ([]Workspace, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT w.id, w.name, w.owner_id, w.shared, m.role
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.name, w.id
	`, userID)
	if err != nil {
		return nil, mapErr("list workspaces", err)
	}
	defer rows.Close()

	workspaces := []Workspace{}
	for rows.Next() {
		var w Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.OwnerID, &w.Shared, &w.Role); err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}
	return workspaces, rows.Err()
}

// IsWorkspaceMember reports whether userID belongs to workspaceID.
func (db *DB) IsWorkspaceMember(ctx context.Context, workspaceID, userID int64) (bool, error) {
	var ok bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM workspace_members WHERE workspace_id = $1 AND user_id = $2)
	`, workspaceID, userID).Scan(&ok)
	if err != nil {
		return false, mapErr("check membership", err)
	}
	return ok, nil
}
