package state

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
)

// PGRecorder persists vault events to PostgreSQL. Per the Recorder contract
// a failed insert never fails the emitting operation; it is logged and
// dropped.
type PGRecorder struct{}

var _ vault.Recorder = PGRecorder{}

func (PGRecorder) Record(ev types.Event) {
	if DB == nil {
		log.Warn().Str("kind", string(ev.Kind)).Msg("Database not initialized, dropping event")
		return
	}

	stmt := `
		INSERT INTO vault_events (event_id, kind, created_at, slot, adapter_id, amount, before_delta, after_delta, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`
	_, err := DB.Exec(stmt,
		ev.ID, string(ev.Kind), ev.Timestamp, ev.Slot, ev.AdapterID.String(),
		ev.Amount.String(), ev.Before.String(), ev.After.String(), ev.Note,
	)
	if err != nil {
		log.Error().Err(err).Str("kind", string(ev.Kind)).Msg("Failed to persist vault event")
	}
}

// GetRecentEvents returns the latest events, newest first.
func GetRecentEvents(limit int) ([]types.Event, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stmt := `
		SELECT event_id, kind, created_at, slot, adapter_id, amount, before_delta, after_delta, COALESCE(note, '')
		FROM vault_events
		ORDER BY created_at DESC
		LIMIT $1;`
	rows, err := DB.Query(stmt, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query vault events: %w", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var ev types.Event
		var kind, adapterID, amount, before, after string
		if err := rows.Scan(&ev.ID, &kind, &ev.Timestamp, &ev.Slot, &adapterID, &amount, &before, &after, &ev.Note); err != nil {
			return nil, fmt.Errorf("failed to scan vault event: %w", err)
		}
		ev.Kind = types.EventKind(kind)
		ev.AdapterID = types.AdapterID(adapterID)
		if ev.Amount, err = parseNumeric(amount); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if ev.Before, err = parseNumeric(before); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		if ev.After, err = parseNumeric(after); err != nil {
			return nil, fmt.Errorf("event %s: %w", ev.ID, err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func parseNumeric(s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid numeric value %q", s)
	}
	return v, nil
}
