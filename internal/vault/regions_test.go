package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldworks/mvault/internal/types"
)

func TestDeriveRegionID_DeterministicAndDistinct(t *testing.T) {
	a := DeriveRegionID(types.AdapterID("alpha"))
	b := DeriveRegionID(types.AdapterID("beta"))

	assert.Equal(t, a, DeriveRegionID(types.AdapterID("alpha")))
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}

func TestReadRegion_ReturnsConnectData(t *testing.T) {
	env := newTestEnv(t, 2)

	data, err := env.vault.ReadRegion(DeriveRegionID(env.mocks[0].id))
	require.NoError(t, err)
	assert.Equal(t, []byte("init-"+env.mocks[0].id.String()), data)
}

func TestReadRegion_RejectsUnknownID(t *testing.T) {
	env := newTestEnv(t, 1)

	_, err := env.vault.ReadRegion("deadbeef")
	assert.ErrorIs(t, err, ErrUnauthorizedRegionAccess)
}

func TestReadRegion_RemovedStrategyRegionGone(t *testing.T) {
	env := newTestEnv(t, 2)
	regionID := DeriveRegionID(env.mocks[0].id)

	require.NoError(t, env.vault.RemoveStrategy(0, false))

	_, err := env.vault.ReadRegion(regionID)
	assert.ErrorIs(t, err, ErrUnauthorizedRegionAccess)
}

func TestRegions_IsolatedPerStrategy(t *testing.T) {
	env := newTestEnv(t, 2)

	// Each adapter writes through its own handle; reads never bleed across.
	env.mocks[0].region.Put([]byte("state-of-zero"))
	env.mocks[1].region.Put([]byte("state-of-one"))

	zero, err := env.vault.ReadRegion(DeriveRegionID(env.mocks[0].id))
	require.NoError(t, err)
	one, err := env.vault.ReadRegion(DeriveRegionID(env.mocks[1].id))
	require.NoError(t, err)

	assert.Equal(t, []byte("state-of-zero"), zero)
	assert.Equal(t, []byte("state-of-one"), one)
	assert.Equal(t, []byte("state-of-zero"), env.mocks[0].region.Get())
}

func TestRegions_ReplaceSwapsRegion(t *testing.T) {
	env := newTestEnv(t, 2)
	oldRegion := DeriveRegionID(env.mocks[0].id)

	next := newMockAdapter("replacement", env.lgr)
	require.NoError(t, env.vault.ReplaceStrategy(0, next, []byte("fresh-init"), false))

	_, err := env.vault.ReadRegion(oldRegion)
	assert.ErrorIs(t, err, ErrUnauthorizedRegionAccess)

	data, err := env.vault.ReadRegion(DeriveRegionID(next.id))
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-init"), data)
}

func TestReadRegion_ReturnsCopy(t *testing.T) {
	env := newTestEnv(t, 1)
	regionID := DeriveRegionID(env.mocks[0].id)

	data, err := env.vault.ReadRegion(regionID)
	require.NoError(t, err)
	data[0] = 'X'

	again, err := env.vault.ReadRegion(regionID)
	require.NoError(t, err)
	assert.Equal(t, []byte("init-"+env.mocks[0].id.String()), again)
}
