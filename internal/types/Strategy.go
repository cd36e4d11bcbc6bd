package types

import (
	sdkmath "cosmossdk.io/math"
)

// AdapterID uniquely identifies a strategy adapter instance. Two active
// strategies may never share an AdapterID.
type AdapterID string

func (id AdapterID) String() string {
	return string(id)
}

// StrategySnapshot is the externally visible view of one active strategy slot.
type StrategySnapshot struct {
	Slot          int         `json:"slot"`
	AdapterID     AdapterID   `json:"adapter_id"`
	RegionID      string      `json:"region_id"`
	ManagedAssets sdkmath.Int `json:"managed_assets"`
}

// VaultSnapshot captures the aggregate state of the vault at a point in time.
// Persisted periodically by the reporter and on demand via the web API.
type VaultSnapshot struct {
	ID          string             `json:"id"`
	Timestamp   int64              `json:"timestamp"`
	TotalAssets sdkmath.Int        `json:"total_assets"`
	IdleAssets  sdkmath.Int        `json:"idle_assets"`
	Strategies  []StrategySnapshot `json:"strategies"`
}
