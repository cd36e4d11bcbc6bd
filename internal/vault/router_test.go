package vault

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yieldworks/mvault/internal/strategy"
)

func TestDeposit_FollowsQueueOrder(t *testing.T) {
	env := newTestEnv(t, 4)
	require.NoError(t, env.vault.ChangeDepositQueue([]int{3, 2, 1, 0}))
	env.fund(t, 100)

	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(100)))

	// The head of the queue has unlimited capacity, so it takes everything.
	assert.Equal(t, "100", env.mocks[3].managed.String())
	assert.True(t, env.mocks[2].managed.IsZero())
	assert.True(t, env.vault.IdleAssets().IsZero())
}

func TestDeposit_SkipsFullAndSplitsAcrossCapacity(t *testing.T) {
	env := newTestEnv(t, 4)
	require.NoError(t, env.vault.ChangeDepositQueue([]int{3, 2, 1, 0}))
	env.mocks[3].depositDisabled = true
	env.mocks[2].depositCap = sdkmath.NewInt(150)
	env.fund(t, 200)

	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(200)))

	assert.True(t, env.mocks[3].managed.IsZero())
	assert.Equal(t, "150", env.mocks[2].managed.String())
	assert.Equal(t, "50", env.mocks[1].managed.String())
	assert.True(t, env.mocks[0].managed.IsZero())
}

func TestDeposit_ExhaustedQueueFails(t *testing.T) {
	env := newTestEnv(t, 2)
	env.mocks[0].depositCap = sdkmath.NewInt(30)
	env.mocks[1].depositCap = sdkmath.NewInt(40)
	env.fund(t, 100)

	err := env.vault.Deposit(sdkmath.NewInt(100))
	assert.ErrorIs(t, err, ErrDepositRoutingExhausted)

	// Exhaustion is detected before anything moves: the full amount is
	// still at the host and no strategy was touched.
	assert.True(t, env.mocks[0].managed.IsZero())
	assert.True(t, env.mocks[1].managed.IsZero())
	assert.Equal(t, "100", env.vault.IdleAssets().String())
}

func TestDeposit_MidWalkFailureUnwinds(t *testing.T) {
	env := newTestEnv(t, 2)
	env.mocks[0].depositCap = sdkmath.NewInt(60)
	env.mocks[1].failDeposit = true
	env.fund(t, 100)

	err := env.vault.Deposit(sdkmath.NewInt(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, strategy.ErrAdapterDepositFailed)

	// The portion already placed in slot 0 was pulled back.
	assert.True(t, env.mocks[0].managed.IsZero())
	assert.True(t, env.mocks[1].managed.IsZero())
	assert.Equal(t, "100", env.vault.IdleAssets().String())
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t, 1)

	assert.Error(t, env.vault.Deposit(sdkmath.ZeroInt()))
	assert.Error(t, env.vault.Deposit(sdkmath.NewInt(-5)))
}

func TestDeposit_CapacityQueryFailurePropagates(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 100)
	env.mocks[0].failAll = true

	err := env.vault.Deposit(sdkmath.NewInt(100))
	require.Error(t, err)
	assert.ErrorIs(t, err, errMockJammed)
}

func TestWithdraw_FollowsQueueOrder(t *testing.T) {
	env := newTestEnv(t, 3)
	env.fund(t, 300)
	require.NoError(t, env.vault.ChangeDepositQueue([]int{0, 1, 2}))
	env.mocks[0].depositCap = sdkmath.NewInt(100)
	env.mocks[1].depositCap = sdkmath.NewInt(100)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(300)))
	// 100 / 100 / 100 across the three slots.

	require.NoError(t, env.vault.ChangeWithdrawQueue([]int{2, 1, 0}))
	require.NoError(t, env.vault.Withdraw(sdkmath.NewInt(150)))

	assert.True(t, env.mocks[2].managed.IsZero())
	assert.Equal(t, "50", env.mocks[1].managed.String())
	assert.Equal(t, "100", env.mocks[0].managed.String())
	assert.Equal(t, "150", env.vault.IdleAssets().String())
}

func TestWithdraw_ExhaustedQueueFails(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 100)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(100)))

	err := env.vault.Withdraw(sdkmath.NewInt(101))
	assert.ErrorIs(t, err, ErrWithdrawRoutingExhausted)

	// Rejected before any strategy was touched: nothing was sourced.
	assert.Equal(t, "100", env.mocks[0].managed.String())
	assert.True(t, env.vault.IdleAssets().IsZero())
}

func TestWithdraw_MidWalkFailureUnwinds(t *testing.T) {
	env := newTestEnv(t, 2)
	env.mocks[0].depositCap = sdkmath.NewInt(100)
	env.fund(t, 200)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(200)))
	// 100 in slot 0, 100 in slot 1.

	env.mocks[1].failWithdraw = true
	err := env.vault.Withdraw(sdkmath.NewInt(150))
	require.Error(t, err)
	assert.ErrorIs(t, err, strategy.ErrAdapterWithdrawFailed)

	// The 100 already sourced from slot 0 was returned to it.
	assert.Equal(t, "100", env.mocks[0].managed.String())
	assert.Equal(t, "100", env.mocks[1].managed.String())
	assert.True(t, env.vault.IdleAssets().IsZero())
}

func TestTotalAssets_SumsIdleAndManaged(t *testing.T) {
	env := newTestEnv(t, 2)
	env.fund(t, 1000)
	env.mocks[0].depositCap = sdkmath.NewInt(600)
	require.NoError(t, env.vault.Deposit(sdkmath.NewInt(700)))
	env.fund(t, 25)

	total, err := env.vault.TotalAssets()
	require.NoError(t, err)
	assert.Equal(t, "1025", total.String())
	assert.Equal(t, "325", env.vault.IdleAssets().String())
}

func TestTotalAssets_ViewFailurePropagates(t *testing.T) {
	env := newTestEnv(t, 2)
	env.mocks[1].failAll = true

	_, err := env.vault.TotalAssets()
	assert.ErrorIs(t, err, errMockJammed)

	_, err = env.vault.Strategies()
	assert.ErrorIs(t, err, errMockJammed)
}
