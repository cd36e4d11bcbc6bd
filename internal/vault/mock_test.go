package vault

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/logger"
	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/types"
)

func init() {
	logger.Initialize("error")
}

var errMockJammed = errors.New("mock adapter jammed")

// mockAdapter is a ledger-backed test double with switchable failure modes.
type mockAdapter struct {
	id      types.AdapterID
	lgr     *ledger.Ledger
	account ledger.Account

	managed sdkmath.Int

	// depositCap caps MaxDepositable; nil Int means unlimited.
	depositCap sdkmath.Int

	connected       bool
	failConnect     bool
	failDisconnect  bool
	failAll         bool // jammed: every call errors
	depositDisabled bool
	failDeposit     bool // Deposit errors even though capacity is reported
	failWithdraw    bool // Withdraw errors even though availability is reported

	region   strategy.Region
	lastInit []byte
	forwards []uint16
}

var _ strategy.Adapter = (*mockAdapter)(nil)

func newMockAdapter(id string, lgr *ledger.Ledger) *mockAdapter {
	return &mockAdapter{
		id:      types.AdapterID(id),
		lgr:     lgr,
		account: ledger.Account("mock:" + id),
		managed: sdkmath.ZeroInt(),
	}
}

func (m *mockAdapter) ID() types.AdapterID { return m.id }

func (m *mockAdapter) Connect(region strategy.Region, initData []byte) error {
	if m.failAll || m.failConnect {
		return strategy.ErrAdapterInitFailed
	}
	region.Put(initData)
	m.region = region
	m.lastInit = initData
	m.connected = true
	return nil
}

func (m *mockAdapter) Disconnect(force bool) error {
	if m.failAll || m.failDisconnect {
		return errMockJammed
	}
	if !force && m.managed.IsPositive() {
		return strategy.ErrCannotDisconnectWithAssets
	}
	m.connected = false
	return nil
}

func (m *mockAdapter) Deposit(host ledger.Account, assets sdkmath.Int) error {
	if m.failAll || m.depositDisabled || m.failDeposit {
		return strategy.ErrAdapterDepositFailed
	}
	if err := m.lgr.Transfer(host, m.account, assets); err != nil {
		return err
	}
	m.managed = m.managed.Add(assets)
	return nil
}

func (m *mockAdapter) Withdraw(host ledger.Account, assets sdkmath.Int) error {
	if m.failAll || m.failWithdraw {
		return strategy.ErrAdapterWithdrawFailed
	}
	if m.managed.LT(assets) {
		return strategy.ErrAdapterWithdrawFailed
	}
	if err := m.lgr.Transfer(m.account, host, assets); err != nil {
		return err
	}
	m.managed = m.managed.Sub(assets)
	return nil
}

func (m *mockAdapter) Forward(methodID uint16, params []byte) ([]byte, error) {
	if m.failAll {
		return nil, errMockJammed
	}
	m.forwards = append(m.forwards, methodID)
	return params, nil
}

func (m *mockAdapter) TotalManagedAssets(host ledger.Account) (sdkmath.Int, error) {
	if m.failAll {
		return sdkmath.Int{}, errMockJammed
	}
	return m.managed, nil
}

func (m *mockAdapter) MaxDepositable(host ledger.Account) (sdkmath.Int, error) {
	if m.failAll {
		return sdkmath.Int{}, errMockJammed
	}
	if m.depositDisabled {
		return sdkmath.ZeroInt(), nil
	}
	if m.depositCap.IsNil() {
		return sdkmath.NewIntWithDecimal(1, 36), nil
	}
	headroom := m.depositCap.Sub(m.managed)
	if headroom.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return headroom, nil
}

func (m *mockAdapter) MaxWithdrawable(host ledger.Account) (sdkmath.Int, error) {
	if m.failAll {
		return sdkmath.Int{}, errMockJammed
	}
	return m.managed, nil
}

// memRecorder collects emitted events in order.
type memRecorder struct {
	events []types.Event
}

func (r *memRecorder) Record(ev types.Event) {
	r.events = append(r.events, ev)
}

// testEnv bundles a vault with its collaborators and a controllable clock.
type testEnv struct {
	vault    *Vault
	lgr      *ledger.Ledger
	recorder *memRecorder
	mocks    []*mockAdapter
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

func (e *testEnv) eventsOfKind(kind types.EventKind) []types.Event {
	var out []types.Event
	for _, ev := range e.recorder.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// newTestEnv builds a vault with n connected mock strategies.
func newTestEnv(t *testing.T, n int) *testEnv {
	t.Helper()

	env := &testEnv{
		lgr:      ledger.New(),
		recorder: &memRecorder{},
		now:      time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	v, err := New(Config{
		Ledger:      env.lgr,
		HostAccount: "vault-host",
		Recorder:    env.recorder,
		Now:         func() time.Time { return env.now },
	})
	require.NoError(t, err)
	env.vault = v

	for i := 0; i < n; i++ {
		mock := newMockAdapter(string(rune('a'+i))+"-strategy", env.lgr)
		require.NoError(t, v.AddStrategy(mock, []byte("init-"+mock.id.String())))
		env.mocks = append(env.mocks, mock)
	}
	return env
}

// fund credits the host account so deposits have something to place.
func (e *testEnv) fund(t *testing.T, amount int64) {
	t.Helper()
	require.NoError(t, e.lgr.Mint(e.vault.HostAccount(), sdkmath.NewInt(amount)))
}

// assertQueueInvariant checks both queues are exact permutations of the
// active slots.
func assertQueueInvariant(t *testing.T, v *Vault) {
	t.Helper()

	strategies, err := v.Strategies()
	require.NoError(t, err)
	active := len(strategies)

	for _, queue := range [][]int{v.DepositQueue(), v.WithdrawQueue()} {
		require.Len(t, queue, active)
		seen := make(map[int]bool, active)
		for _, s := range queue {
			require.GreaterOrEqual(t, s, 0)
			require.Less(t, s, active)
			require.False(t, seen[s], "queue entry %d duplicated", s)
			seen[s] = true
		}
	}
}
