package ledger

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrEmptyAccount        = errors.New("account must not be empty")
)

// Account identifies a balance holder on the ledger.
type Account string

func (a Account) String() string {
	return string(a)
}

// Ledger is the single-asset transfer collaborator the vault engine debits
// and credits. It is an in-process stand-in for whatever settlement layer
// actually holds the asset: balances never go negative and transfers are
// atomic under the internal lock.
type Ledger struct {
	mu       sync.RWMutex
	balances map[Account]sdkmath.Int
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[Account]sdkmath.Int),
	}
}

// Mint credits new units to an account. Used at boot and by tests to seed
// balances; a production deployment would replace this with real inbound
// settlement.
func (l *Ledger) Mint(acct Account, amount sdkmath.Int) error {
	if acct == "" {
		return ErrEmptyAccount
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[acct] = l.balanceLocked(acct).Add(amount)
	return nil
}

// Transfer moves amount from one account to another.
func (l *Ledger) Transfer(from, to Account, amount sdkmath.Int) error {
	if from == "" || to == "" {
		return ErrEmptyAccount
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrNonPositiveAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fromBal := l.balanceLocked(from)
	if fromBal.LT(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from, fromBal, amount)
	}
	l.balances[from] = fromBal.Sub(amount)
	l.balances[to] = l.balanceLocked(to).Add(amount)
	return nil
}

// BalanceOf returns the current balance of an account. Unknown accounts
// report zero.
func (l *Ledger) BalanceOf(acct Account) sdkmath.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balanceLocked(acct)
}

func (l *Ledger) balanceLocked(acct Account) sdkmath.Int {
	if bal, ok := l.balances[acct]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}
