// Package funds keeps pull-payment balances: fees are credited here and
// beneficiaries withdraw them in a separate step.
package funds

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	dErrors "passport/pkg/domain-errors"
)

var ErrInsufficientBalance = dErrors.New(dErrors.CodeValidation, "INSUFFICIENT_BALANCE")

// Ledger is a journaled per-address balance map.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]*big.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[common.Address]*big.Int)}
}

// Credit adds amount to addr. Non-positive amounts are ignored.
func (l *Ledger) Credit(ctx context.Context, addr common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.current(addr)
	l.set(addr, new(big.Int).Add(prev, amount))
	chain.Record(ctx, l.restore(addr, prev))
}

// Debit subtracts amount from addr or fails without change.
func (l *Ledger) Debit(ctx context.Context, addr common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	prev := l.current(addr)
	if amount == nil || amount.Sign() <= 0 || prev.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	l.set(addr, new(big.Int).Sub(prev, amount))
	chain.Record(ctx, l.restore(addr, prev))
	return nil
}

// Balance returns a copy of the balance of addr.
func (l *Ledger) Balance(addr common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return new(big.Int).Set(l.current(addr))
}

func (l *Ledger) current(addr common.Address) *big.Int {
	if v, ok := l.balances[addr]; ok {
		return v
	}
	return new(big.Int)
}

func (l *Ledger) set(addr common.Address, v *big.Int) {
	if v.Sign() == 0 {
		delete(l.balances, addr)
		return
	}
	l.balances[addr] = v
}

func (l *Ledger) restore(addr common.Address, prev *big.Int) func() {
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.set(addr, prev)
	}
}
