package funds

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"passport/internal/chain"
)

func TestCreditDebit(t *testing.T) {
	ctx := context.Background()
	l := New()
	addr := common.HexToAddress("0xaa")

	l.Credit(ctx, addr, big.NewInt(10))
	l.Credit(ctx, addr, big.NewInt(0))
	assert.Equal(t, int64(10), l.Balance(addr).Int64())

	require.NoError(t, l.Debit(ctx, addr, big.NewInt(4)))
	assert.Equal(t, int64(6), l.Balance(addr).Int64())

	assert.ErrorIs(t, l.Debit(ctx, addr, big.NewInt(7)), ErrInsufficientBalance)
	assert.ErrorIs(t, l.Debit(ctx, addr, big.NewInt(0)), ErrInsufficientBalance)
	assert.Equal(t, int64(6), l.Balance(addr).Int64())
}

func TestFailedCallRestoresBalances(t *testing.T) {
	env := chain.New()
	l := New()
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")
	l.Credit(context.Background(), a, big.NewInt(5))

	err := env.Execute(context.Background(), "move", func(ctx context.Context) error {
		if err := l.Debit(ctx, a, big.NewInt(5)); err != nil {
			return err
		}
		l.Credit(ctx, b, big.NewInt(5))
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Equal(t, int64(5), l.Balance(a).Int64())
	assert.Equal(t, int64(0), l.Balance(b).Int64())
}
