package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/strategy"
	"github.com/yieldworks/mvault/internal/types"
)

// MaxStrategies bounds the active-strategy array.
const MaxStrategies = 32

// Registry is the bounded, ordered collection of active strategy adapters
// plus the two queue permutations over their slots. Active slots are always
// contiguous: slot i is the i-th element of the slice, and removal shifts
// later entries down rather than swapping, so the relative order callers
// arranged survives every mutation.
//
// Registry is not safe for concurrent use; the Vault serializes access.
type Registry struct {
	slots         []strategy.Adapter
	depositQueue  []int
	withdrawQueue []int

	regions *regionStore
	lgr     *ledger.Ledger
	host    ledger.Account
	rec     Recorder
	log     zerolog.Logger
}

func newRegistry(lgr *ledger.Ledger, host ledger.Account, regions *regionStore, rec Recorder, log zerolog.Logger) *Registry {
	return &Registry{
		slots:         make([]strategy.Adapter, 0, MaxStrategies),
		depositQueue:  make([]int, 0, MaxStrategies),
		withdrawQueue: make([]int, 0, MaxStrategies),
		regions:       regions,
		lgr:           lgr,
		host:          host,
		rec:           rec,
		log:           log,
	}
}

func (r *Registry) activeCount() int {
	return len(r.slots)
}

func (r *Registry) adapterAt(slot int) (strategy.Adapter, error) {
	if slot < 0 || slot >= len(r.slots) {
		return nil, fmt.Errorf("%w: slot %d out of range (active: %d)", ErrInvalidStrategy, slot, len(r.slots))
	}
	return r.slots[slot], nil
}

// indexOf returns the slot holding the given adapter identity, or -1.
func (r *Registry) indexOf(id types.AdapterID) int {
	for i, a := range r.slots {
		if a.ID() == id {
			return i
		}
	}
	return -1
}

// authorizedRegions returns the derived region ids of every active strategy.
func (r *Registry) authorizedRegions() map[string]bool {
	out := make(map[string]bool, len(r.slots))
	for _, a := range r.slots {
		out[DeriveRegionID(a.ID())] = true
	}
	return out
}

// add appends a strategy to the end of the slot array and to the tail of
// both queues. Connect failure is a hard failure of the whole operation:
// no slot, queue or region state survives it.
func (r *Registry) add(adapter strategy.Adapter, initData []byte) error {
	if adapter == nil || adapter.ID() == "" {
		return fmt.Errorf("%w: nil adapter or empty identity", ErrInvalidStrategy)
	}
	if r.indexOf(adapter.ID()) >= 0 {
		return fmt.Errorf("%w: %s already active", ErrDuplicatedStrategy, adapter.ID())
	}
	if len(r.slots) >= MaxStrategies {
		return fmt.Errorf("%w: capacity %d reached", ErrTooManyStrategies, MaxStrategies)
	}

	region := r.regions.create(adapter.ID())
	if err := adapter.Connect(region, initData); err != nil {
		r.regions.destroy(adapter.ID())
		return fmt.Errorf("connect %s: %w", adapter.ID(), err)
	}

	slot := len(r.slots)
	r.slots = append(r.slots, adapter)
	r.depositQueue = append(r.depositQueue, slot)
	r.withdrawQueue = append(r.withdrawQueue, slot)

	ev := types.NewEvent(types.EventStrategyAdded)
	ev.ID = uuid.New().String()
	ev.Slot = slot
	ev.AdapterID = adapter.ID()
	r.rec.Record(ev)

	r.log.Info().Int("slot", slot).Str("adapter", adapter.ID().String()).Msg("Strategy added")
	return nil
}

// remove disconnects a strategy and compacts the slot array and both queues.
// Without force the operation is atomic: any failure leaves state unchanged.
func (r *Registry) remove(slot int, force bool) error {
	adapter, err := r.adapterAt(slot)
	if err != nil {
		return err
	}
	if len(r.slots) == 1 {
		return fmt.Errorf("%w: cannot remove the last strategy", ErrMinimumStrategiesRequired)
	}

	if !force {
		total, err := adapter.TotalManagedAssets(r.host)
		if err != nil {
			return fmt.Errorf("query managed assets of %s: %w", adapter.ID(), err)
		}
		if total.IsPositive() {
			return fmt.Errorf("%w: %s still manages %s", ErrCannotRemoveStrategyWithAssets, adapter.ID(), total)
		}
	}

	if err := adapter.Disconnect(force); err != nil {
		if !force {
			return fmt.Errorf("disconnect %s: %w", adapter.ID(), err)
		}
		// Forced removal must never be blocked by a broken adapter.
		r.log.Warn().Err(err).Str("adapter", adapter.ID().String()).Msg("Forced disconnect reported an error; proceeding")
	}

	r.regions.destroy(adapter.ID())
	r.slots = append(r.slots[:slot], r.slots[slot+1:]...)
	r.depositQueue = compactQueue(r.depositQueue, slot)
	r.withdrawQueue = compactQueue(r.withdrawQueue, slot)

	ev := types.NewEvent(types.EventStrategyRemoved)
	ev.ID = uuid.New().String()
	ev.Slot = slot
	ev.AdapterID = adapter.ID()
	r.rec.Record(ev)

	r.log.Info().Int("slot", slot).Str("adapter", adapter.ID().String()).Bool("force", force).Msg("Strategy removed")
	return nil
}

// compactQueue drops the entry referencing the removed slot and shifts every
// reference above it down by one, preserving relative order.
func compactQueue(queue []int, removed int) []int {
	out := queue[:0]
	for _, s := range queue {
		switch {
		case s == removed:
			continue
		case s > removed:
			out = append(out, s-1)
		default:
			out = append(out, s)
		}
	}
	return out
}

// replace swaps the adapter at a slot for a new one, keeping the slot index
// stable so both queues remain valid unchanged. Draining the old adapter and
// re-deploying the idle balance are deliberately non-fatal: administrative
// recovery takes priority over strict atomicity, and each downgraded failure
// is emitted as an observable event.
func (r *Registry) replace(slot int, newAdapter strategy.Adapter, initData []byte, force bool) error {
	old, err := r.adapterAt(slot)
	if err != nil {
		return err
	}
	if newAdapter == nil || newAdapter.ID() == "" {
		return fmt.Errorf("%w: nil adapter or empty identity", ErrInvalidStrategy)
	}
	if other := r.indexOf(newAdapter.ID()); other >= 0 && other != slot {
		return fmt.Errorf("%w: %s already active in slot %d", ErrDuplicatedStrategy, newAdapter.ID(), other)
	}

	// Drain the old adapter to the host. Funds left stranded by a failing
	// drain are the accepted cost of a forced swap; the drained amount is
	// tracked so an aborted replace can put it back.
	drained := sdkmath.ZeroInt()
	total, terr := old.TotalManagedAssets(r.host)
	if terr != nil {
		r.emitReplaceFailure(types.EventWithdrawFailed, slot, old.ID(), terr)
	} else if total.IsPositive() {
		if werr := old.Withdraw(r.host, total); werr != nil {
			r.emitReplaceFailure(types.EventWithdrawFailed, slot, old.ID(), werr)
		} else {
			drained = total
		}
	}

	if newAdapter.ID() == old.ID() {
		// Self-replace re-runs the disconnect/connect cycle on one adapter.
		if derr := old.Disconnect(force); derr != nil {
			if !force {
				r.restoreDrained(slot, old, drained)
				return fmt.Errorf("disconnect %s: %w", old.ID(), derr)
			}
			r.log.Warn().Err(derr).Str("adapter", old.ID().String()).Msg("Forced disconnect reported an error; proceeding")
		}
		region := r.regions.create(newAdapter.ID())
		if cerr := newAdapter.Connect(region, initData); cerr != nil {
			r.restoreDrained(slot, old, drained)
			return fmt.Errorf("connect %s: %w", newAdapter.ID(), cerr)
		}
	} else {
		// Connect the replacement first so a bad init aborts with the old
		// strategy still in place.
		region := r.regions.create(newAdapter.ID())
		if cerr := newAdapter.Connect(region, initData); cerr != nil {
			r.regions.destroy(newAdapter.ID())
			r.restoreDrained(slot, old, drained)
			return fmt.Errorf("connect %s: %w", newAdapter.ID(), cerr)
		}
		if derr := old.Disconnect(force); derr != nil {
			if !force {
				_ = newAdapter.Disconnect(true)
				r.regions.destroy(newAdapter.ID())
				r.restoreDrained(slot, old, drained)
				return fmt.Errorf("disconnect %s: %w", old.ID(), derr)
			}
			r.log.Warn().Err(derr).Str("adapter", old.ID().String()).Msg("Forced disconnect reported an error; proceeding")
		}
		r.regions.destroy(old.ID())
	}

	r.slots[slot] = newAdapter

	// Re-deploy whatever now sits idle at the host. On failure the funds
	// simply stay at the host; a later deposit routing sweeps them up.
	idle := r.lgr.BalanceOf(r.host)
	if idle.IsPositive() {
		if derr := newAdapter.Deposit(r.host, idle); derr != nil {
			r.emitReplaceFailure(types.EventDepositFailed, slot, newAdapter.ID(), derr)
		}
	}

	ev := types.NewEvent(types.EventStrategyChanged)
	ev.ID = uuid.New().String()
	ev.Slot = slot
	ev.AdapterID = newAdapter.ID()
	ev.Note = "replaced " + old.ID().String()
	r.rec.Record(ev)

	r.log.Info().
		Int("slot", slot).
		Str("old", old.ID().String()).
		Str("new", newAdapter.ID().String()).
		Bool("force", force).
		Msg("Strategy replaced")
	return nil
}

// restoreDrained re-deposits the drained balance into the old adapter when a
// replace aborts, so the abort leaves pre-call state. If the re-deposit
// itself fails the funds stay idle at the host and the failure is emitted.
func (r *Registry) restoreDrained(slot int, old strategy.Adapter, drained sdkmath.Int) {
	if !drained.IsPositive() {
		return
	}
	if err := old.Deposit(r.host, drained); err != nil {
		r.emitReplaceFailure(types.EventDepositFailed, slot, old.ID(), err)
	}
}

func (r *Registry) emitReplaceFailure(kind types.EventKind, slot int, id types.AdapterID, cause error) {
	ev := types.NewEvent(kind)
	ev.ID = uuid.New().String()
	ev.Slot = slot
	ev.AdapterID = id
	ev.Note = cause.Error()
	r.rec.Record(ev)
	r.log.Warn().Err(cause).Int("slot", slot).Str("adapter", id.String()).Str("kind", string(kind)).Msg("Non-fatal failure during strategy replace")
}

// setDepositQueue installs a new deposit walk order. The order must be an
// exact permutation of the active slots; the registry never infers a "best"
// order.
func (r *Registry) setDepositQueue(order []int) error {
	validated, err := r.validateQueue(order)
	if err != nil {
		return err
	}
	r.depositQueue = validated

	ev := types.NewEvent(types.EventDepositQueueChanged)
	ev.ID = uuid.New().String()
	ev.Note = fmt.Sprint(validated)
	r.rec.Record(ev)
	return nil
}

func (r *Registry) setWithdrawQueue(order []int) error {
	validated, err := r.validateQueue(order)
	if err != nil {
		return err
	}
	r.withdrawQueue = validated

	ev := types.NewEvent(types.EventWithdrawQueueChanged)
	ev.ID = uuid.New().String()
	ev.Note = fmt.Sprint(validated)
	r.rec.Record(ev)
	return nil
}

func (r *Registry) validateQueue(order []int) ([]int, error) {
	if len(order) != len(r.slots) {
		return nil, fmt.Errorf("%w: got %d entries, active strategies: %d", ErrInvalidQueueLength, len(order), len(r.slots))
	}
	seen := make(map[int]bool, len(order))
	out := make([]int, len(order))
	for i, s := range order {
		if s < 0 || s >= len(r.slots) {
			return nil, fmt.Errorf("%w: slot %d out of range", ErrInvalidQueue, s)
		}
		if seen[s] {
			return nil, fmt.Errorf("%w: slot %d appears twice", ErrInvalidQueueIndexDuplicated, s)
		}
		seen[s] = true
		out[i] = s
	}
	return out, nil
}
