package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

//go:generate mockgen -source=bank.go -destination=mocks/mocks.go -package=mocks Bank

// Bank moves native value to an external recipient. The recipient may run
// arbitrary code during Transfer, including calling back into the service.
type Bank interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// PayoutBank records payouts per recipient. A recipient hook, when set, runs
// before the payout is recorded and can fail the transfer.
type PayoutBank struct {
	mu        sync.Mutex
	paid      map[common.Address]*big.Int
	recipient func(ctx context.Context, to common.Address, amount *big.Int) error
}

func NewPayoutBank() *PayoutBank {
	return &PayoutBank{paid: make(map[common.Address]*big.Int)}
}

// OnPayout installs the recipient hook.
func (b *PayoutBank) OnPayout(fn func(ctx context.Context, to common.Address, amount *big.Int) error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recipient = fn
}

func (b *PayoutBank) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	recipient := b.recipient
	b.mu.Unlock()

	if recipient != nil {
		if err := recipient(ctx, to, new(big.Int).Set(amount)); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.paid[to]
	next := new(big.Int).Set(amount)
	if prev != nil {
		next.Add(next, prev)
	}
	b.paid[to] = next
	Record(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if prev == nil {
			delete(b.paid, to)
			return
		}
		b.paid[to] = prev
	})
	return nil
}

// Paid returns the total paid out to addr.
func (b *PayoutBank) Paid(addr common.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v := b.paid[addr]; v != nil {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}
