package vault

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/types"
)

// regionNamespace salts region-id derivation so ids cannot collide with any
// other identifier space the host might expose.
const regionNamespace = "mvault/strategy-region/v1"

// DeriveRegionID deterministically derives the storage-region identifier for
// an adapter identity. Distinct identities always map to distinct regions;
// the registry's no-duplicates rule guarantees no two active slots share one.
func DeriveRegionID(id types.AdapterID) string {
	h := sha256.New()
	h.Write([]byte(regionNamespace))
	h.Write([]byte{0})
	h.Write([]byte(id))
	return hex.EncodeToString(h.Sum(nil))
}

// regionStore owns every adapter's private storage partition. Adapters only
// ever see the region handle granted to them at connect time.
type regionStore struct {
	data map[string][]byte
}

func newRegionStore() *regionStore {
	return &regionStore{data: make(map[string][]byte)}
}

// create resets and returns the region for an adapter identity. Called on
// connect; a replace overwrites whatever the previous occupant stored.
func (s *regionStore) create(id types.AdapterID) *region {
	regionID := DeriveRegionID(id)
	s.data[regionID] = nil
	return &region{store: s, id: regionID}
}

func (s *regionStore) destroy(id types.AdapterID) {
	delete(s.data, DeriveRegionID(id))
}

// read returns a region's raw bytes. The authorized set is the derived ids of
// the currently active strategies; anything else is rejected so one adapter
// (or an outside caller) cannot read another adapter's configuration through
// the host's generic storage-exposure hook.
func (s *regionStore) read(regionID string, authorized map[string]bool) ([]byte, error) {
	if !authorized[regionID] {
		return nil, ErrUnauthorizedRegionAccess
	}
	raw := s.data[regionID]
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

// region is the capability handle an adapter holds into its partition.
type region struct {
	store *regionStore
	id    string
}

var _ strategy.Region = (*region)(nil)

func (r *region) Put(data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	r.store.data[r.id] = buf
}

func (r *region) Get() []byte {
	raw := r.store.data[r.id]
	out := make([]byte, len(raw))
	copy(out, raw)
	return out
}
