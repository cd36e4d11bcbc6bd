package state

import (
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/yieldworks/mvault/internal/types"
	"github.com/yieldworks/mvault/internal/vault"
)

// MemoryRecorder keeps events in memory. Used by tests and when the process
// runs without a database.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []types.Event
}

var _ vault.Recorder = (*MemoryRecorder)(nil)

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (r *MemoryRecorder) Record(ev types.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns all recorded events, oldest first.
func (r *MemoryRecorder) Events() []types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Event(nil), r.events...)
}

// RecentEvents returns up to limit events, newest first.
func (r *MemoryRecorder) RecentEvents(limit int) ([]types.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.events)
	if limit > n {
		limit = n
	}
	out := make([]types.Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, r.events[i])
	}
	return out, nil
}

type outflowMemKey struct {
	slotSize int64
	index    int64
}

// MemoryOutflowStore is the in-memory OutflowStore counterpart.
type MemoryOutflowStore struct {
	mu              sync.Mutex
	slotSizeSeconds int64
	limit           sdkmath.Int
	deltas          map[outflowMemKey]sdkmath.Int
}

var _ vault.OutflowStore = (*MemoryOutflowStore)(nil)

func NewMemoryOutflowStore() *MemoryOutflowStore {
	return &MemoryOutflowStore{deltas: make(map[outflowMemKey]sdkmath.Int)}
}

func (s *MemoryOutflowStore) SaveConfig(slotSizeSeconds int64, limit sdkmath.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotSizeSeconds = slotSizeSeconds
	s.limit = limit
	return nil
}

func (s *MemoryOutflowStore) SaveDelta(slotSizeSeconds, slotIndex int64, delta sdkmath.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas[outflowMemKey{slotSizeSeconds, slotIndex}] = delta
	return nil
}

// Delta returns the stored delta for a bucket, zero if absent.
func (s *MemoryOutflowStore) Delta(slotSizeSeconds, slotIndex int64) sdkmath.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.deltas[outflowMemKey{slotSizeSeconds, slotIndex}]; ok {
		return d
	}
	return sdkmath.ZeroInt()
}

// Config returns the stored limiter configuration.
func (s *MemoryOutflowStore) Config() types.OutflowLimitConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	limit := s.limit
	if limit.IsNil() {
		limit = sdkmath.ZeroInt()
	}
	return types.OutflowLimitConfig{SlotSizeSeconds: s.slotSizeSeconds, Limit: limit}
}
