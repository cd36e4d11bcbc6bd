// Package simlend implements a simulated lending-pool strategy adapter.
// It earns nothing; it exists to exercise the full adapter port end to end:
// capacity caps, pause behavior, strict init-data parsing and the forward
// side channel.
package simlend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/types"
)

// Forward method ids understood by this adapter.
const (
	MethodPause         uint16 = 1
	MethodUnpause       uint16 = 2
	MethodSetDepositCap uint16 = 3
)

// initConfig is the schema Connect expects. Unknown fields and trailing
// bytes are rejected, not ignored.
type initConfig struct {
	DepositCap string `json:"deposit_cap,omitempty"`
	Paused     bool   `json:"paused,omitempty"`
}

// Adapter simulates a lending pool holding funds at its own ledger account.
type Adapter struct {
	mu sync.Mutex

	id      types.AdapterID
	lgr     *ledger.Ledger
	account ledger.Account
	region  strategy.Region

	connected bool
	paused    bool
	hasCap    bool
	cap       sdkmath.Int

	managed map[ledger.Account]sdkmath.Int
}

var _ strategy.Adapter = (*Adapter)(nil)

func New(id types.AdapterID, lgr *ledger.Ledger) *Adapter {
	return &Adapter{
		id:      id,
		lgr:     lgr,
		account: ledger.Account("simlend:" + id.String()),
		cap:     sdkmath.ZeroInt(),
		managed: make(map[ledger.Account]sdkmath.Int),
	}
}

func (a *Adapter) ID() types.AdapterID {
	return a.id
}

func (a *Adapter) Connect(region strategy.Region, initData []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, err := parseInitData(initData)
	if err != nil {
		return err
	}

	a.hasCap = false
	a.cap = sdkmath.ZeroInt()
	if cfg.DepositCap != "" {
		capAmount, ok := sdkmath.NewIntFromString(cfg.DepositCap)
		if !ok || capAmount.IsNegative() {
			return fmt.Errorf("%w: invalid deposit_cap %q", strategy.ErrAdapterInitFailed, cfg.DepositCap)
		}
		a.hasCap = true
		a.cap = capAmount
	}
	a.paused = cfg.Paused

	region.Put(initData)
	a.region = region
	a.connected = true
	return nil
}

func parseInitData(initData []byte) (initConfig, error) {
	var cfg initConfig
	dec := json.NewDecoder(bytes.NewReader(initData))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", strategy.ErrAdapterInitFailed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return cfg, fmt.Errorf("%w: trailing bytes after init config", strategy.ErrAdapterInitFailed)
	}
	return cfg, nil
}

func (a *Adapter) Disconnect(force bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !force && a.totalManagedLocked().IsPositive() {
		return strategy.ErrCannotDisconnectWithAssets
	}
	a.connected = false
	a.region = nil
	return nil
}

func (a *Adapter) Deposit(host ledger.Account, assets sdkmath.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return fmt.Errorf("%w: %v", strategy.ErrAdapterDepositFailed, strategy.ErrAdapterNotConnected)
	}
	if a.paused {
		return fmt.Errorf("%w: pool paused", strategy.ErrAdapterDepositFailed)
	}
	if a.hasCap && a.totalManagedLocked().Add(assets).GT(a.cap) {
		return fmt.Errorf("%w: deposit cap %s exceeded", strategy.ErrAdapterDepositFailed, a.cap)
	}
	if err := a.lgr.Transfer(host, a.account, assets); err != nil {
		return fmt.Errorf("%w: %v", strategy.ErrAdapterDepositFailed, err)
	}
	a.managed[host] = a.managedLocked(host).Add(assets)
	return nil
}

func (a *Adapter) Withdraw(host ledger.Account, assets sdkmath.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected {
		return fmt.Errorf("%w: %v", strategy.ErrAdapterWithdrawFailed, strategy.ErrAdapterNotConnected)
	}
	if a.paused {
		return fmt.Errorf("%w: pool paused", strategy.ErrAdapterWithdrawFailed)
	}
	if a.managedLocked(host).LT(assets) {
		return fmt.Errorf("%w: managed %s, requested %s", strategy.ErrAdapterWithdrawFailed, a.managedLocked(host), assets)
	}
	if err := a.lgr.Transfer(a.account, host, assets); err != nil {
		return fmt.Errorf("%w: %v", strategy.ErrAdapterWithdrawFailed, err)
	}
	a.managed[host] = a.managedLocked(host).Sub(assets)
	return nil
}

func (a *Adapter) Forward(methodID uint16, params []byte) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch methodID {
	case MethodPause:
		a.paused = true
		return []byte("paused"), nil
	case MethodUnpause:
		a.paused = false
		return []byte("unpaused"), nil
	case MethodSetDepositCap:
		capAmount, ok := sdkmath.NewIntFromString(string(params))
		if !ok || capAmount.IsNegative() {
			return nil, fmt.Errorf("set deposit cap: invalid amount %q", string(params))
		}
		a.hasCap = true
		a.cap = capAmount
		return []byte(capAmount.String()), nil
	default:
		return nil, fmt.Errorf("%w: %d", strategy.ErrUnknownForwardMethod, methodID)
	}
}

// TotalManagedAssets reports the real managed figure even while paused;
// understating it would misstate host solvency.
func (a *Adapter) TotalManagedAssets(host ledger.Account) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.managedLocked(host), nil
}

func (a *Adapter) MaxDepositable(host ledger.Account) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected || a.paused {
		return sdkmath.ZeroInt(), nil
	}
	if !a.hasCap {
		return unboundedCapacity, nil
	}
	headroom := a.cap.Sub(a.totalManagedLocked())
	if headroom.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return headroom, nil
}

func (a *Adapter) MaxWithdrawable(host ledger.Account) (sdkmath.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connected || a.paused {
		return sdkmath.ZeroInt(), nil
	}
	return a.managedLocked(host), nil
}

func (a *Adapter) managedLocked(host ledger.Account) sdkmath.Int {
	if amt, ok := a.managed[host]; ok {
		return amt
	}
	return sdkmath.ZeroInt()
}

func (a *Adapter) totalManagedLocked() sdkmath.Int {
	total := sdkmath.ZeroInt()
	for _, amt := range a.managed {
		total = total.Add(amt)
	}
	return total
}

// unboundedCapacity stands in for "no cap". Large enough that the router's
// min() clamp always picks the requested amount first.
var unboundedCapacity = sdkmath.NewIntWithDecimal(1, 36)
