package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledger "passport/internal/ledger/models"
)

// SplitFee divides fee between n issuers and a beneficiary. Each issuer gets
// floor(fee*split/100/n); the beneficiary gets the remainder, so the shares
// always sum to fee. With n == 0 the beneficiary gets everything.
func SplitFee(fee *big.Int, split uint64, n int) (issuerShare, beneficiaryShare *big.Int) {
	if fee == nil || fee.Sign() <= 0 {
		return new(big.Int), new(big.Int)
	}
	if n <= 0 {
		return new(big.Int), new(big.Int).Set(fee)
	}
	issuerShare = new(big.Int).Mul(fee, new(big.Int).SetUint64(split))
	issuerShare.Quo(issuerShare, big.NewInt(100))
	issuerShare.Quo(issuerShare, big.NewInt(int64(n)))
	paid := new(big.Int).Mul(issuerShare, big.NewInt(int64(n)))
	return issuerShare, new(big.Int).Sub(fee, paid)
}

// Legacy is the parallel-array shape of a read result.
type Legacy struct {
	Values  []common.Hash    `json:"values"`
	Epochs  []uint64         `json:"epochs"`
	Issuers []common.Address `json:"issuers"`
}

// ToLegacy flattens records into parallel arrays, keeping their order.
func ToLegacy(recs []ledger.AttributeRecord) Legacy {
	out := Legacy{
		Values:  make([]common.Hash, len(recs)),
		Epochs:  make([]uint64, len(recs)),
		Issuers: make([]common.Address, len(recs)),
	}
	for i, r := range recs {
		out.Values[i] = r.Value
		out.Epochs[i] = r.Epoch
		out.Issuers[i] = r.Issuer
	}
	return out
}
