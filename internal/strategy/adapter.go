package strategy

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/types"
)

// Port-level failure conditions. Adapters wrap these so the host can branch
// on failure kind without knowing the adapter's internals.
var (
	ErrAdapterInitFailed          = errors.New("adapter init failed")
	ErrCannotDisconnectWithAssets = errors.New("cannot disconnect strategy with assets")
	ErrAdapterDepositFailed       = errors.New("adapter deposit failed")
	ErrAdapterWithdrawFailed      = errors.New("adapter withdraw failed")
	ErrUnknownForwardMethod       = errors.New("unknown forward method")
	ErrAdapterNotConnected        = errors.New("adapter not connected")
)

// Region is the adapter's private storage partition. The host owns the
// backing storage and hands each adapter an explicit handle at connect time;
// an adapter can never reach another adapter's partition through it.
type Region interface {
	Put(data []byte)
	Get() []byte
}

// Adapter is the fixed contract the vault engine calls into. One Adapter
// wraps one external yield-bearing protocol.
//
// Mutating calls operate on funds held at the host's ledger account: Deposit
// pulls assets from the host, Withdraw leaves exactly the requested assets
// back at the host. The view methods must stay callable while the adapter
// considers itself paused; a paused adapter reports zero capacity rather
// than failing, so the router treats it as merely full or empty.
type Adapter interface {
	ID() types.AdapterID

	// Connect validates initData, persists it into the given region and
	// brings the adapter into service. Malformed initData, including any
	// trailing bytes beyond the expected schema, fails with
	// ErrAdapterInitFailed.
	Connect(region Region, initData []byte) error

	// Disconnect takes the adapter out of service. It fails with
	// ErrCannotDisconnectWithAssets while the adapter still manages assets
	// for the host, unless force is set, in which case it must not fail
	// even if assets remain.
	Disconnect(force bool) error

	Deposit(host ledger.Account, assets sdkmath.Int) error
	Withdraw(host ledger.Account, assets sdkmath.Int) error

	// Forward is the adapter-specific admin side channel. The host does not
	// interpret methodID or params; it only gates who may call it.
	Forward(methodID uint16, params []byte) ([]byte, error)

	TotalManagedAssets(host ledger.Account) (sdkmath.Int, error)
	MaxDepositable(host ledger.Account) (sdkmath.Int, error)
	MaxWithdrawable(host ledger.Account) (sdkmath.Int, error)
}
