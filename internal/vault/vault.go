// Package vault implements the multi-strategy vault engine: the strategy
// registry and its queue permutations, deposit/withdraw routing, direct
// rebalancing, per-strategy isolated storage regions and the time-windowed
// outflow limiter.
//
// Every mutating entry point executes as one atomic step under a single
// lock: adapter calls happen synchronously in the caller's context, and a
// hard failure rolls the operation back to its pre-call state. The only
// exemptions are the explicitly non-fatal paths of strategy replacement,
// which always leave an observable failure event behind.
package vault

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/logger"
	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/types"
)

// Vault is the host: it owns the registry, queues, regions and outflow
// ledger, and holds the asset balance between adapter calls on its ledger
// account. Authorization of the mutating entry points is the caller's
// responsibility; the engine assumes an external layer gates them.
type Vault struct {
	mu sync.Mutex

	log  zerolog.Logger
	lgr  *ledger.Ledger
	host ledger.Account

	regions    *regionStore
	registry   *Registry
	router     *Router
	rebalancer *Rebalancer
	limiter    *Limiter
	rec        Recorder
}

// Config wires the vault's collaborators.
type Config struct {
	Ledger      *ledger.Ledger
	HostAccount ledger.Account

	// Recorder receives emitted events; nil means NopRecorder.
	Recorder Recorder
	// OutflowStore persists limiter state; nil disables persistence.
	OutflowStore OutflowStore
	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

func New(cfg Config) (*Vault, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("vault configuration validation failed: %w", err)
	}

	rec := cfg.Recorder
	if rec == nil {
		rec = NopRecorder{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := logger.GetForComponent("vault_engine")

	regions := newRegionStore()
	registry := newRegistry(cfg.Ledger, cfg.HostAccount, regions, rec, log)

	v := &Vault{
		log:        log,
		lgr:        cfg.Ledger,
		host:       cfg.HostAccount,
		regions:    regions,
		registry:   registry,
		router:     newRouter(registry, cfg.Ledger, cfg.HostAccount, log),
		rebalancer: newRebalancer(registry, cfg.HostAccount, rec, log),
		limiter:    newLimiter(cfg.OutflowStore, now, log),
		rec:        rec,
	}

	log.Info().Str("host", cfg.HostAccount.String()).Msg("Vault engine created")
	return v, nil
}

func validateConfig(cfg Config) error {
	if cfg.Ledger == nil {
		return fmt.Errorf("ledger cannot be nil")
	}
	if cfg.HostAccount == "" {
		return fmt.Errorf("host account cannot be empty")
	}
	return nil
}

// HostAccount returns the ledger account holding the vault's idle balance.
func (v *Vault) HostAccount() ledger.Account {
	return v.host
}

// --- strategy lifecycle -------------------------------------------------

func (v *Vault) AddStrategy(adapter strategy.Adapter, initData []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.add(adapter, initData)
}

func (v *Vault) RemoveStrategy(slot int, force bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.remove(slot, force)
}

func (v *Vault) ReplaceStrategy(slot int, adapter strategy.Adapter, initData []byte, force bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.replace(slot, adapter, initData, force)
}

func (v *Vault) ChangeDepositQueue(order []int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.setDepositQueue(order)
}

func (v *Vault) ChangeWithdrawQueue(order []int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry.setWithdrawQueue(order)
}

// ForwardToStrategy passes an opaque admin call through to the adapter at
// the given slot. The vault gates who may call it and interprets nothing.
func (v *Vault) ForwardToStrategy(slot int, methodID uint16, params []byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	adapter, err := v.registry.adapterAt(slot)
	if err != nil {
		return nil, err
	}
	return adapter.Forward(methodID, params)
}

// --- deposits, withdrawals, rebalancing ----------------------------------

// Deposit places assets already held at the host account across the deposit
// queue. Called by the share-accounting collaborator as part of deposit and
// mint execution.
func (v *Vault) Deposit(assets sdkmath.Int) error {
	if !assets.IsPositive() {
		return fmt.Errorf("deposit amount must be positive, got %s", assets)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	key := v.limiter.recordInflow(assets)
	if err := v.router.routeDeposit(assets); err != nil {
		v.limiter.cancelInflow(key, assets)
		return err
	}
	return nil
}

// Withdraw sources assets from the withdraw queue, leaving them at the host
// account. The outflow limiter sees the debit first; a breach rejects the
// withdrawal before any adapter is touched, and a routing failure rolls the
// limiter debit back.
func (v *Vault) Withdraw(assets sdkmath.Int) error {
	if !assets.IsPositive() {
		return fmt.Errorf("withdraw amount must be positive, got %s", assets)
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	key, err := v.limiter.recordOutflow(assets)
	if err != nil {
		return err
	}
	if err := v.router.routeWithdraw(assets); err != nil {
		v.limiter.cancelOutflow(key, assets)
		return err
	}
	return nil
}

// Rebalance moves amount (or everything, with AmountMax) from one strategy
// slot to another.
func (v *Vault) Rebalance(fromSlot, toSlot int, amount sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rebalancer.rebalance(fromSlot, toSlot, amount)
}

// --- outflow limiter ------------------------------------------------------

func (v *Vault) SetupOutflowLimit(slotSize time.Duration, limit sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.limiter.configure(slotSize, limit); err != nil {
		return err
	}

	ev := types.NewEvent(types.EventOutflowLimitConfigured)
	ev.ID = uuid.New().String()
	ev.Amount = limit
	ev.Note = slotSize.String()
	v.rec.Record(ev)
	return nil
}

// ChangeDelta is the admin override for one outflow bucket, with an
// auditable before/after event.
func (v *Vault) ChangeDelta(slotIndex int64, newDelta sdkmath.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	before, err := v.limiter.changeDelta(slotIndex, newDelta)
	if err != nil {
		return err
	}

	ev := types.NewEvent(types.EventDeltaChanged)
	ev.ID = uuid.New().String()
	ev.Before = before
	ev.After = newDelta
	ev.Note = fmt.Sprintf("slot index %d", slotIndex)
	v.rec.Record(ev)
	return nil
}

// RestoreOutflowState seeds the limiter from persisted state at boot.
func (v *Vault) RestoreOutflowState(cfg types.OutflowLimitConfig, deltas map[int64]sdkmath.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.limiter.restore(cfg, deltas)
}

// --- read views -----------------------------------------------------------

// Strategies returns a snapshot of every active slot. A failing managed-
// assets view fails the whole snapshot; see Router.totalAssets for why.
func (v *Vault) Strategies() ([]types.StrategySnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.strategiesLocked()
}

func (v *Vault) strategiesLocked() ([]types.StrategySnapshot, error) {
	out := make([]types.StrategySnapshot, 0, len(v.registry.slots))
	for slot, adapter := range v.registry.slots {
		managed, err := adapter.TotalManagedAssets(v.host)
		if err != nil {
			return nil, fmt.Errorf("query managed assets of %s: %w", adapter.ID(), err)
		}
		out = append(out, types.StrategySnapshot{
			Slot:          slot,
			AdapterID:     adapter.ID(),
			RegionID:      DeriveRegionID(adapter.ID()),
			ManagedAssets: managed,
		})
	}
	return out, nil
}

func (v *Vault) DepositQueue() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.registry.depositQueue...)
}

func (v *Vault) WithdrawQueue() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.registry.withdrawQueue...)
}

func (v *Vault) TotalAssets() (sdkmath.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.router.totalAssets()
}

func (v *Vault) IdleAssets() sdkmath.Int {
	return v.lgr.BalanceOf(v.host)
}

func (v *Vault) GetOutflowLimit() types.OutflowLimitConfig {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limiter.config()
}

func (v *Vault) GetAssetsDelta(slotIndex int64) sdkmath.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.limiter.delta(slotIndex)
}

// ReadRegion exposes a strategy's storage region by derived id, rejecting
// any id that does not belong to a currently active strategy.
func (v *Vault) ReadRegion(regionID string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regions.read(regionID, v.registry.authorizedRegions())
}

// Snapshot captures the vault's aggregate state for the reporter and API.
// One lock acquisition covers every read, so the strategy list, total and
// idle balance all describe the same instant.
func (v *Vault) Snapshot() (types.VaultSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	strategies, err := v.strategiesLocked()
	if err != nil {
		return types.VaultSnapshot{}, err
	}
	total, err := v.router.totalAssets()
	if err != nil {
		return types.VaultSnapshot{}, err
	}
	return types.VaultSnapshot{
		ID:          uuid.New().String(),
		Timestamp:   time.Now().Unix(),
		TotalAssets: total,
		IdleAssets:  v.lgr.BalanceOf(v.host),
		Strategies:  strategies,
	}, nil
}
