package state

import (
	"database/sql"
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
)

// PGOutflowStore persists the limiter's config and slot deltas.
type PGOutflowStore struct{}

var _ vault.OutflowStore = PGOutflowStore{}

func (PGOutflowStore) SaveConfig(slotSizeSeconds int64, limit sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	stmt := `
		INSERT INTO outflow_limit_config (id, slot_size_seconds, limit_amount, updated_at)
		VALUES (1, $1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (id) DO UPDATE
		SET slot_size_seconds = EXCLUDED.slot_size_seconds,
		    limit_amount = EXCLUDED.limit_amount,
		    updated_at = CURRENT_TIMESTAMP;`
	if _, err := DB.Exec(stmt, slotSizeSeconds, limit.String()); err != nil {
		return fmt.Errorf("failed to save outflow limit config: %w", err)
	}
	return nil
}

func (PGOutflowStore) SaveDelta(slotSizeSeconds, slotIndex int64, delta sdkmath.Int) error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	stmt := `
		INSERT INTO outflow_deltas (slot_size_seconds, slot_index, delta, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (slot_size_seconds, slot_index) DO UPDATE
		SET delta = EXCLUDED.delta, updated_at = CURRENT_TIMESTAMP;`
	if _, err := DB.Exec(stmt, slotSizeSeconds, slotIndex, delta.String()); err != nil {
		return fmt.Errorf("failed to save outflow delta: %w", err)
	}
	return nil
}

// LoadOutflowConfig returns the persisted limiter configuration, or a zero
// config when none has been saved yet.
func LoadOutflowConfig() (types.OutflowLimitConfig, error) {
	if DB == nil {
		return types.OutflowLimitConfig{}, fmt.Errorf("database not initialized")
	}

	var slotSize int64
	var limitStr string
	row := DB.QueryRow(`SELECT slot_size_seconds, limit_amount FROM outflow_limit_config WHERE id = 1;`)
	if err := row.Scan(&slotSize, &limitStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.OutflowLimitConfig{Limit: sdkmath.ZeroInt()}, nil
		}
		return types.OutflowLimitConfig{}, fmt.Errorf("failed to load outflow limit config: %w", err)
	}

	limit, err := parseNumeric(limitStr)
	if err != nil {
		return types.OutflowLimitConfig{}, err
	}
	return types.OutflowLimitConfig{SlotSizeSeconds: slotSize, Limit: limit}, nil
}

// LoadOutflowDeltas returns every persisted delta under the given slot size.
// Rows keyed under other slot sizes are left untouched; they are unreachable
// by construction once the slot size changes.
func LoadOutflowDeltas(slotSizeSeconds int64) (map[int64]sdkmath.Int, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := DB.Query(`SELECT slot_index, delta FROM outflow_deltas WHERE slot_size_seconds = $1;`, slotSizeSeconds)
	if err != nil {
		return nil, fmt.Errorf("failed to load outflow deltas: %w", err)
	}
	defer rows.Close()

	deltas := make(map[int64]sdkmath.Int)
	for rows.Next() {
		var idx int64
		var deltaStr string
		if err := rows.Scan(&idx, &deltaStr); err != nil {
			return nil, fmt.Errorf("failed to scan outflow delta: %w", err)
		}
		delta, err := parseNumeric(deltaStr)
		if err != nil {
			return nil, err
		}
		deltas[idx] = delta
	}
	return deltas, rows.Err()
}
