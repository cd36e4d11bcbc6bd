package vault

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// Configuration errors: caller mistakes, rejected before any state mutation.
var (
	ErrInvalidStrategy                = errors.New("invalid strategy")
	ErrDuplicatedStrategy             = errors.New("duplicated strategy")
	ErrTooManyStrategies              = errors.New("too many strategies")
	ErrMinimumStrategiesRequired      = errors.New("at least one strategy required")
	ErrCannotRemoveStrategyWithAssets = errors.New("cannot remove strategy with assets")
	ErrInvalidQueueLength             = errors.New("invalid queue length")
	ErrInvalidQueueIndexDuplicated    = errors.New("queue index duplicated")
	ErrInvalidQueue                   = errors.New("invalid queue")
)

// Routing, rate-limit and isolation failures.
var (
	ErrDepositRoutingExhausted   = errors.New("deposit routing exhausted")
	ErrWithdrawRoutingExhausted  = errors.New("withdraw routing exhausted")
	ErrLimitReached              = errors.New("outflow limit reached")
	ErrUnauthorizedRegionAccess  = errors.New("unauthorized region access")
	ErrOutflowLimitNotConfigured = errors.New("outflow limit not configured")
)

// RebalanceExceedsMaxWithdrawError reports an explicit rebalance amount
// larger than the source strategy can release. Max carries the amount that
// was actually available at call time.
type RebalanceExceedsMaxWithdrawError struct {
	Max sdkmath.Int
}

func (e *RebalanceExceedsMaxWithdrawError) Error() string {
	return fmt.Sprintf("rebalance amount exceeds max withdraw of %s", e.Max)
}

// RebalanceExceedsMaxDepositError reports a rebalance amount larger than the
// destination strategy can absorb.
type RebalanceExceedsMaxDepositError struct {
	Max sdkmath.Int
}

func (e *RebalanceExceedsMaxDepositError) Error() string {
	return fmt.Sprintf("rebalance amount exceeds max deposit of %s", e.Max)
}
