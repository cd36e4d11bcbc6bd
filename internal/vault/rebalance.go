package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yieldworks/mvault/internal/ledger"
	"github.com/yieldworks/mvault/internal/types"
)

// AmountMax is the sentinel passed to Rebalance to mean "everything the
// source strategy can release". Negative amounts are otherwise impossible,
// which keeps the sentinel unambiguous.
var AmountMax = sdkmath.NewInt(-1)

// Rebalancer moves funds directly between two named strategies, outside the
// normal queue order.
type Rebalancer struct {
	reg  *Registry
	host ledger.Account
	rec  Recorder
	log  zerolog.Logger
}

func newRebalancer(reg *Registry, host ledger.Account, rec Recorder, log zerolog.Logger) *Rebalancer {
	return &Rebalancer{reg: reg, host: host, rec: rec, log: log}
}

// rebalance withdraws from fromSlot and deposits into toSlot. An explicit
// amount above the source's reported capacity is rejected with the actual
// maximum; AmountMax silently clamps instead. A zero effective amount is a
// no-op that emits nothing.
func (rb *Rebalancer) rebalance(fromSlot, toSlot int, amount sdkmath.Int) error {
	from, err := rb.reg.adapterAt(fromSlot)
	if err != nil {
		return err
	}
	to, err := rb.reg.adapterAt(toSlot)
	if err != nil {
		return err
	}

	maxWithdraw, err := from.MaxWithdrawable(rb.host)
	if err != nil {
		return fmt.Errorf("query max withdraw of %s: %w", from.ID(), err)
	}

	var effective sdkmath.Int
	if amount.Equal(AmountMax) {
		effective = maxWithdraw
	} else {
		if amount.GT(maxWithdraw) {
			return &RebalanceExceedsMaxWithdrawError{Max: maxWithdraw}
		}
		effective = amount
	}
	if !effective.IsPositive() {
		return nil
	}

	maxDeposit, err := to.MaxDepositable(rb.host)
	if err != nil {
		return fmt.Errorf("query max deposit of %s: %w", to.ID(), err)
	}
	if effective.GT(maxDeposit) {
		return &RebalanceExceedsMaxDepositError{Max: maxDeposit}
	}

	if err := from.Withdraw(rb.host, effective); err != nil {
		return fmt.Errorf("withdraw %s from %s: %w", effective, from.ID(), err)
	}
	if err := to.Deposit(rb.host, effective); err != nil {
		return fmt.Errorf("deposit %s into %s: %w", effective, to.ID(), err)
	}

	ev := types.NewEvent(types.EventRebalanceExecuted)
	ev.ID = uuid.New().String()
	ev.Slot = fromSlot
	ev.AdapterID = from.ID()
	ev.Amount = effective
	ev.Note = fmt.Sprintf("to slot %d (%s)", toSlot, to.ID())
	rb.rec.Record(ev)

	rb.log.Info().
		Int("fromSlot", fromSlot).
		Int("toSlot", toSlot).
		Str("amount", effective.String()).
		Msg("Rebalance executed")
	return nil
}
