package models

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	ledger "passport/internal/ledger/models"
)

func TestSplitFeeSumsExactly(t *testing.T) {
	fees := []int64{1, 7, 10, 99, 100, 101, 1_000_003, 999_999_999_999}
	splits := []uint64{0, 1, 33, 50, 99, 100}
	for _, f := range fees {
		for _, split := range splits {
			for n := 1; n <= 7; n++ {
				fee := big.NewInt(f)
				issuer, beneficiary := SplitFee(fee, split, n)

				want := new(big.Int).Mul(fee, new(big.Int).SetUint64(split))
				want.Quo(want, big.NewInt(100))
				want.Quo(want, big.NewInt(int64(n)))
				assert.Zero(t, want.Cmp(issuer), "fee=%d split=%d n=%d", f, split, n)

				total := new(big.Int).Mul(issuer, big.NewInt(int64(n)))
				total.Add(total, beneficiary)
				assert.Zero(t, fee.Cmp(total), "fee=%d split=%d n=%d", f, split, n)
				assert.True(t, beneficiary.Sign() >= 0)
			}
		}
	}
}

func TestSplitFeeFloorThenRemainder(t *testing.T) {
	// 10 * 50 / 100 / 3 = 1 each; the beneficiary keeps 7, not 5.
	issuer, beneficiary := SplitFee(big.NewInt(10), 50, 3)
	assert.Equal(t, int64(1), issuer.Int64())
	assert.Equal(t, int64(7), beneficiary.Int64())
}

func TestSplitFeeEdges(t *testing.T) {
	issuer, beneficiary := SplitFee(big.NewInt(10), 50, 0)
	assert.Equal(t, int64(0), issuer.Int64())
	assert.Equal(t, int64(10), beneficiary.Int64())

	issuer, beneficiary = SplitFee(nil, 50, 2)
	assert.Equal(t, 0, issuer.Sign())
	assert.Equal(t, 0, beneficiary.Sign())
}

func TestToLegacyKeepsOrder(t *testing.T) {
	recs := []ledger.AttributeRecord{
		{Value: common.HexToHash("0x01"), Issuer: common.HexToAddress("0xa"), Epoch: 10},
		{Value: common.HexToHash("0x02"), Issuer: common.HexToAddress("0xb"), Epoch: 20},
	}
	got := ToLegacy(recs)
	assert.Equal(t, []common.Hash{common.HexToHash("0x01"), common.HexToHash("0x02")}, got.Values)
	assert.Equal(t, []uint64{10, 20}, got.Epochs)
	assert.Equal(t, []common.Address{common.HexToAddress("0xa"), common.HexToAddress("0xb")}, got.Issuers)
}
