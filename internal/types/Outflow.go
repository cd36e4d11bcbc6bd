package types

import (
	sdkmath "cosmossdk.io/math"
)

// ParseAmount parses a base-10 integer asset amount.
func ParseAmount(s string) (sdkmath.Int, bool) {
	return sdkmath.NewIntFromString(s)
}

// OutflowSlot keys one bucket of the rate-limiter ledger. Changing the slot
// size produces a disjoint keyspace, which orphans every previously written
// bucket; that reset is deliberate behavior of the limiter.
type OutflowSlot struct {
	SlotSizeSeconds int64 `json:"slot_size_seconds"`
	Index           int64 `json:"index"`
}

// OutflowLimitConfig is the limiter configuration: the bucket duration and
// the maximum net outflow tolerated across two consecutive buckets.
type OutflowLimitConfig struct {
	SlotSizeSeconds int64       `json:"slot_size_seconds"`
	Limit           sdkmath.Int `json:"limit"`
}
