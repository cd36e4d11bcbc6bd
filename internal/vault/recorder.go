package vault

import (
	sdkmath "cosmossdk.io/math"

	"github.com/yieldworks/mvault/internal/types"
)

// Recorder receives every observable event the engine emits. Implementations
// must not fail the calling operation; persistence problems are theirs to
// log and swallow.
type Recorder interface {
	Record(ev types.Event)
}

// OutflowStore persists the rate-limiter ledger. Writes are best effort:
// the in-memory ledger is authoritative within a process lifetime and the
// store exists so a restart can restore the current window.
type OutflowStore interface {
	SaveConfig(slotSizeSeconds int64, limit sdkmath.Int) error
	SaveDelta(slotSizeSeconds, slotIndex int64, delta sdkmath.Int) error
}

// NopRecorder discards events. Used when no persistence is configured.
type NopRecorder struct{}

func (NopRecorder) Record(types.Event) {}
