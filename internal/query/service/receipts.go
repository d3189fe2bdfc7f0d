package service

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledger "passport/internal/ledger/models"
	"passport/internal/receipts"
)

func queryFeeReceipt(subject, requester, issuer, treasury common.Address, amount *big.Int) receipts.Receipt {
	return receipts.Receipt{
		Kind:      receipts.KindQueryFee,
		Subject:   subject,
		Requester: requester,
		Issuer:    issuer,
		To:        treasury,
		Amount:    new(big.Int).Set(amount),
	}
}

func queryReceipt(kind receipts.Kind, subject, requester common.Address, types []ledger.AttributeType) receipts.Receipt {
	hashes := make([]common.Hash, len(types))
	for i, t := range types {
		hashes[i] = t.Hash()
	}
	return receipts.Receipt{
		Kind:           kind,
		Subject:        subject,
		Requester:      requester,
		AttributeTypes: hashes,
	}
}

func withdrawReceipt(operator, beneficiary common.Address, amount *big.Int) receipts.Receipt {
	return receipts.Receipt{
		Kind:     receipts.KindWithdraw,
		Operator: operator,
		To:       beneficiary,
		Amount:   new(big.Int).Set(amount),
	}
}
