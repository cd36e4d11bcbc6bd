package state

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/yieldworks/mvault/internal/types"
)

// SaveVaultSnapshot persists one aggregate vault snapshot.
func SaveVaultSnapshot(snap types.VaultSnapshot) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	strategiesJSON, err := json.Marshal(snap.Strategies)
	if err != nil {
		return fmt.Errorf("failed to marshal strategy snapshots: %w", err)
	}

	stmt := `
		INSERT INTO vault_snapshots (snapshot_id, created_at, total_assets, idle_assets, strategies)
		VALUES ($1, $2, $3, $4, $5);`
	_, err = DB.Exec(stmt, snap.ID, time.Unix(snap.Timestamp, 0).UTC(),
		snap.TotalAssets.String(), snap.IdleAssets.String(), strategiesJSON)
	if err != nil {
		return fmt.Errorf("failed to save vault snapshot: %w", err)
	}
	return nil
}

// GetRecentSnapshots returns the latest snapshots, newest first.
func GetRecentSnapshots(limit int) ([]types.VaultSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stmt := `
		SELECT snapshot_id, created_at, total_assets, idle_assets, strategies
		FROM vault_snapshots
		ORDER BY created_at DESC
		LIMIT $1;`
	rows, err := DB.Query(stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []types.VaultSnapshot
	for rows.Next() {
		var snap types.VaultSnapshot
		var createdAt time.Time
		var total, idle string
		var strategiesJSON []byte
		if err := rows.Scan(&snap.ID, &createdAt, &total, &idle, &strategiesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan vault snapshot: %w", err)
		}
		snap.Timestamp = createdAt.Unix()
		if snap.TotalAssets, err = parseNumeric(total); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		if snap.IdleAssets, err = parseNumeric(idle); err != nil {
			return nil, fmt.Errorf("snapshot %s: %w", snap.ID, err)
		}
		if len(strategiesJSON) > 0 {
			if err := json.Unmarshal(strategiesJSON, &snap.Strategies); err != nil {
				return nil, fmt.Errorf("snapshot %s: failed to unmarshal strategies: %w", snap.ID, err)
			}
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
