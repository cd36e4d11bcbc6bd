package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldworks/mvault/internal/types"
)

func TestRebalance_MovesExplicitAmount(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 500)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(500)))
	require.Equal(t, "500", env.mocks[0].managed.String())

	require.NoError(t, env.vault.Rebalance(0, 1, sdkmath.NewInt(200)))

	assert.Equal(t, "300", env.mocks[0].managed.String())
	assert.Equal(t, "200", env.mocks[1].managed.String())
	assert.True(t, env.vault.IdleAssets().IsZero(), "rebalance must not leave funds at the host")

	events := env.eventsOfKind(types.EventRebalanceExecuted)
	require.Len(t, events, 1)
	assert.Equal(t, "200", events[0].Amount.String())
	assert.Equal(t, 0, events[0].Slot)
}

func TestRebalance_AmountMaxDrainsSource(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 500)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(500)))

	require.NoError(t, env.vault.Rebalance(0, 1, AmountMax))

	assert.True(t, env.mocks[0].managed.IsZero())
	assert.Equal(t, "500", env.mocks[1].managed.String())
}

func TestRebalance_ExplicitAmountAboveMaxRejected(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 100)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(100)))

	err := env.vault.Rebalance(0, 1, sdkmath.NewInt(101))
	var maxErr *RebalanceExceedsMaxWithdrawError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, "100", maxErr.Max.String())

	// Nothing moved.
	assert.Equal(t, "100", env.mocks[0].managed.String())
	assert.True(t, env.mocks[1].managed.IsZero())
}

func TestRebalance_DestinationCapacityRejected(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 500)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(500)))
	env.mocks[1].depositCap = sdkmath.NewInt(120)

	err := env.vault.Rebalance(0, 1, sdkmath.NewInt(200))
	var maxErr *RebalanceExceedsMaxDepositError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, "120", maxErr.Max.String())
	assert.Equal(t, "500", env.mocks[0].managed.String())
}

func TestRebalance_ZeroEffectiveIsNoOp(t *testing.T) {
	env := newTestEnv(t, 2)

	// AmountMax over an empty source resolves to zero: no movement, no event.
	require.NoError(t, env.vault.Rebalance(0, 1, AmountMax))
	require.NoError(t, env.vault.Rebalance(0, 1, sdkmath.ZeroInt()))
	assert.Empty(t, env.eventsOfKind(types.EventRebalanceExecuted))
}

func TestRebalance_InvalidSlots(t *testing.T) {
	env := newTestEnv(t, 2)

	assert.ErrorIs(t, env.vault.Rebalance(2, 0, sdkmath.NewInt(1)), ErrInvalidStrategy)
	assert.ErrorIs(t, env.vault.Rebalance(0, -1, sdkmath.NewInt(1)), ErrInvalidStrategy)
}

func TestRebalance_BypassesOutflowLimiter(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 5000)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(5000)))
	require.NoError(t, env.vault.SetupOutflowLimit(day, sdkmath.NewInt(10)))

	// Internal movement is not an outflow; the tiny limit does not apply.
	require.NoError(t, env.vault.Rebalance(0, 1, sdkmath.NewInt(5000)))
	slot := MakeOutflowSlot(86400, env.now)
	assert.True(t, env.vault.GetAssetsDelta(slot).IsZero())
}
