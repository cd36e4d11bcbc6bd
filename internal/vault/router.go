package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/strategy"
)

// Router walks the registry's queues to place incoming funds and source
// outgoing funds. Routing is two-phase: a query pass plans the whole
// apportionment against reported capacities before any adapter is touched,
// so an exhausted queue rejects the operation with every balance still in
// its pre-call state. If an adapter hard-fails during the act pass, the
// portions already moved are compensated back before the error surfaces.
type Router struct {
	reg  *Registry
	lgr  *ledger.Ledger
	host ledger.Account
	log  zerolog.Logger
}

func newRouter(reg *Registry, lgr *ledger.Ledger, host ledger.Account, log zerolog.Logger) *Router {
	return &Router{reg: reg, lgr: lgr, host: host, log: log}
}

// routeStep is one planned adapter movement.
type routeStep struct {
	slot    int
	adapter strategy.Adapter
	amount  sdkmath.Int
}

// planRoute apportions total across the queue in order, trusting each
// adapter's reported capacity as of the query. Returns the unplaceable
// remainder alongside the plan; the caller decides what exhaustion means.
func (rt *Router) planRoute(queue []int, total sdkmath.Int, capacityOf func(strategy.Adapter) (sdkmath.Int, error)) ([]routeStep, sdkmath.Int, error) {
	remaining := total
	var steps []routeStep
	for _, slot := range queue {
		if remaining.IsZero() {
			break
		}
		adapter := rt.reg.slots[slot]
		capacity, err := capacityOf(adapter)
		if err != nil {
			return nil, remaining, err
		}
		portion := sdkmath.MinInt(remaining, capacity)
		if !portion.IsPositive() {
			continue
		}
		steps = append(steps, routeStep{slot: slot, adapter: adapter, amount: portion})
		remaining = remaining.Sub(portion)
	}
	return steps, remaining, nil
}

// routeDeposit distributes total across the deposit queue in order. The plan
// must cover the full amount before anything moves; funds are never silently
// left at the host or partially placed.
func (rt *Router) routeDeposit(total sdkmath.Int) error {
	steps, remaining, err := rt.planRoute(rt.reg.depositQueue, total, func(a strategy.Adapter) (sdkmath.Int, error) {
		capacity, cerr := a.MaxDepositable(rt.host)
		if cerr != nil {
			return sdkmath.Int{}, fmt.Errorf("query max deposit of %s: %w", a.ID(), cerr)
		}
		return capacity, nil
	})
	if err != nil {
		return err
	}
	if remaining.IsPositive() {
		return fmt.Errorf("%w: %s of %s could not be placed", ErrDepositRoutingExhausted, remaining, total)
	}

	for i, step := range steps {
		if err := step.adapter.Deposit(rt.host, step.amount); err != nil {
			rt.unwindDeposits(steps[:i])
			return fmt.Errorf("deposit %s into %s: %w", step.amount, step.adapter.ID(), err)
		}
		rt.log.Debug().Int("slot", step.slot).Str("adapter", step.adapter.ID().String()).Str("amount", step.amount.String()).Msg("Routed deposit portion")
	}
	return nil
}

// routeWithdraw sources total from the withdraw queue in order. On success
// the amounts withdrawn across touched strategies sum to exactly total.
func (rt *Router) routeWithdraw(total sdkmath.Int) error {
	steps, remaining, err := rt.planRoute(rt.reg.withdrawQueue, total, func(a strategy.Adapter) (sdkmath.Int, error) {
		available, cerr := a.MaxWithdrawable(rt.host)
		if cerr != nil {
			return sdkmath.Int{}, fmt.Errorf("query max withdraw of %s: %w", a.ID(), cerr)
		}
		return available, nil
	})
	if err != nil {
		return err
	}
	if remaining.IsPositive() {
		return fmt.Errorf("%w: %s of %s could not be sourced", ErrWithdrawRoutingExhausted, remaining, total)
	}

	for i, step := range steps {
		if err := step.adapter.Withdraw(rt.host, step.amount); err != nil {
			rt.unwindWithdrawals(steps[:i])
			return fmt.Errorf("withdraw %s from %s: %w", step.amount, step.adapter.ID(), err)
		}
		rt.log.Debug().Int("slot", step.slot).Str("adapter", step.adapter.ID().String()).Str("amount", step.amount.String()).Msg("Routed withdraw portion")
	}
	return nil
}

// unwindDeposits pulls already-placed portions back to the host after a later
// step failed. A failing compensation is logged and skipped: the funds stay
// with that adapter and remain counted in total assets.
func (rt *Router) unwindDeposits(placed []routeStep) {
	for _, step := range placed {
		if err := step.adapter.Withdraw(rt.host, step.amount); err != nil {
			rt.log.Error().Err(err).Int("slot", step.slot).Str("adapter", step.adapter.ID().String()).Str("amount", step.amount.String()).Msg("Failed to unwind deposit portion")
		}
	}
}

// unwindWithdrawals returns already-sourced portions to their strategies
// after a later step failed.
func (rt *Router) unwindWithdrawals(sourced []routeStep) {
	for _, step := range sourced {
		if err := step.adapter.Deposit(rt.host, step.amount); err != nil {
			rt.log.Error().Err(err).Int("slot", step.slot).Str("adapter", step.adapter.ID().String()).Str("amount", step.amount.String()).Msg("Failed to unwind withdraw portion")
		}
	}
}

// totalAssets sums every active strategy's managed assets plus the host's
// idle balance. A failing view is propagated, never zero-substituted: a
// paused adapter reporting zero is the adapter's own statement, but an
// erroring one would silently misstate solvency.
func (rt *Router) totalAssets() (sdkmath.Int, error) {
	total := rt.lgr.BalanceOf(rt.host)
	for slot, adapter := range rt.reg.slots {
		managed, err := adapter.TotalManagedAssets(rt.host)
		if err != nil {
			return sdkmath.Int{}, fmt.Errorf("query managed assets of %s (slot %d): %w", adapter.ID(), slot, err)
		}
		total = total.Add(managed)
	}
	return total, nil
}
