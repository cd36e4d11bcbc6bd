package vault

import (
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/yieldworks/mvault/internal/types"
)

// outflowKey addresses one bucket of the limiter ledger. The slot size is
// part of the key: reconfiguring the slot size moves all writes to a fresh,
// disjoint keyspace, so previously accumulated deltas become unreachable and
// the effective window resets. That reset is documented behavior, kept on
// purpose.
type outflowKey struct {
	slotSize int64
	index    int64
}

// Limiter is a sliding two-bucket net-outflow rate limit. Inflows add to the
// current bucket, outflows subtract, and a withdrawal is rejected when the
// current plus previous bucket together fall below -limit. The two-bucket
// coarseness is intentional: bounded memory and an O(1) check, not an exact
// sliding log.
type Limiter struct {
	slotSizeSeconds int64
	limit           sdkmath.Int

	deltas map[outflowKey]sdkmath.Int

	store OutflowStore
	now   func() time.Time
	log   zerolog.Logger
}

func newLimiter(store OutflowStore, now func() time.Time, log zerolog.Logger) *Limiter {
	return &Limiter{
		limit:  sdkmath.ZeroInt(),
		deltas: make(map[outflowKey]sdkmath.Int),
		store:  store,
		now:    now,
		log:    log,
	}
}

// MakeOutflowSlot derives the bucket index for a timestamp under a given
// slot size. Floor division, so pre-epoch timestamps still bucket correctly.
func MakeOutflowSlot(slotSizeSeconds int64, ts time.Time) int64 {
	unix := ts.Unix()
	idx := unix / slotSizeSeconds
	if unix%slotSizeSeconds != 0 && unix < 0 {
		idx--
	}
	return idx
}

func (l *Limiter) configured() bool {
	return l.slotSizeSeconds > 0
}

// configure installs a slot size and limit. Existing deltas keyed under a
// different slot size stay in the map but can never be read again.
func (l *Limiter) configure(slotSize time.Duration, limit sdkmath.Int) error {
	seconds := int64(slotSize / time.Second)
	if seconds <= 0 {
		return fmt.Errorf("outflow slot size must be at least one second, got %s", slotSize)
	}
	if limit.IsNil() || limit.IsNegative() {
		return fmt.Errorf("outflow limit must be non-negative, got %s", limit)
	}

	l.slotSizeSeconds = seconds
	l.limit = limit
	l.persistConfig()
	l.log.Info().Int64("slotSizeSeconds", seconds).Str("limit", limit.String()).Msg("Outflow limit configured")
	return nil
}

func (l *Limiter) currentKey() outflowKey {
	return outflowKey{
		slotSize: l.slotSizeSeconds,
		index:    MakeOutflowSlot(l.slotSizeSeconds, l.now()),
	}
}

func (l *Limiter) deltaAt(key outflowKey) sdkmath.Int {
	if d, ok := l.deltas[key]; ok {
		return d
	}
	return sdkmath.ZeroInt()
}

// recordInflow credits the current bucket and returns the key it wrote, so
// a later cancel hits the same bucket even if the clock has since crossed a
// slot boundary. Returns the zero key while unconfigured.
func (l *Limiter) recordInflow(assets sdkmath.Int) outflowKey {
	if !l.configured() {
		return outflowKey{}
	}
	key := l.currentKey()
	l.deltas[key] = l.deltaAt(key).Add(assets)
	l.persistDelta(key)
	return key
}

// recordOutflow debits the current bucket, then checks the two-bucket
// window. On a breach the debit is rolled back and ErrLimitReached returned;
// nothing is persisted for the rejected transaction.
func (l *Limiter) recordOutflow(assets sdkmath.Int) (outflowKey, error) {
	if !l.configured() {
		return outflowKey{}, nil
	}
	key := l.currentKey()
	l.deltas[key] = l.deltaAt(key).Sub(assets)

	prev := outflowKey{slotSize: key.slotSize, index: key.index - 1}
	combined := l.deltaAt(key).Add(l.deltaAt(prev))
	if combined.LT(l.limit.Neg()) {
		l.deltas[key] = l.deltaAt(key).Add(assets)
		return outflowKey{}, fmt.Errorf("%w: window net flow %s would breach -%s", ErrLimitReached, combined, l.limit)
	}
	l.persistDelta(key)
	return key, nil
}

// cancelInflow and cancelOutflow undo a previously recorded flow when the
// surrounding operation fails after the limiter write. They take the key the
// record returned; the zero key (unconfigured record) is a no-op.
func (l *Limiter) cancelInflow(key outflowKey, assets sdkmath.Int) {
	if key.slotSize == 0 {
		return
	}
	l.deltas[key] = l.deltaAt(key).Sub(assets)
	l.persistDelta(key)
}

func (l *Limiter) cancelOutflow(key outflowKey, assets sdkmath.Int) {
	if key.slotSize == 0 {
		return
	}
	l.deltas[key] = l.deltaAt(key).Add(assets)
	l.persistDelta(key)
}

// changeDelta is the admin override for a bucket. Returns the previous value
// so the caller can emit the before/after audit event.
func (l *Limiter) changeDelta(slotIndex int64, newDelta sdkmath.Int) (sdkmath.Int, error) {
	if !l.configured() {
		return sdkmath.Int{}, ErrOutflowLimitNotConfigured
	}
	if newDelta.IsNil() {
		return sdkmath.Int{}, fmt.Errorf("new delta must not be nil")
	}
	key := outflowKey{slotSize: l.slotSizeSeconds, index: slotIndex}
	before := l.deltaAt(key)
	l.deltas[key] = newDelta
	l.persistDelta(key)
	return before, nil
}

func (l *Limiter) config() types.OutflowLimitConfig {
	return types.OutflowLimitConfig{
		SlotSizeSeconds: l.slotSizeSeconds,
		Limit:           l.limit,
	}
}

func (l *Limiter) delta(slotIndex int64) sdkmath.Int {
	return l.deltaAt(outflowKey{slotSize: l.slotSizeSeconds, index: slotIndex})
}

// restore seeds the limiter from persisted state at boot.
func (l *Limiter) restore(cfg types.OutflowLimitConfig, deltas map[int64]sdkmath.Int) {
	l.slotSizeSeconds = cfg.SlotSizeSeconds
	if cfg.Limit.IsNil() {
		l.limit = sdkmath.ZeroInt()
	} else {
		l.limit = cfg.Limit
	}
	for idx, d := range deltas {
		l.deltas[outflowKey{slotSize: cfg.SlotSizeSeconds, index: idx}] = d
	}
}

// Persistence is write-through and best effort: the in-memory ledger is
// authoritative, failures are logged and the transaction proceeds.
func (l *Limiter) persistConfig() {
	if l.store == nil {
		return
	}
	if err := l.store.SaveConfig(l.slotSizeSeconds, l.limit); err != nil {
		l.log.Error().Err(err).Msg("Failed to persist outflow limit config")
	}
}

func (l *Limiter) persistDelta(key outflowKey) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveDelta(key.slotSize, key.index, l.deltaAt(key)); err != nil {
		l.log.Error().Err(err).Int64("slotIndex", key.index).Msg("Failed to persist outflow delta")
	}
}
