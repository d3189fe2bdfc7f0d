package service

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/ledger/models"
	"passport/internal/receipts"
)

func setAttributeReceipt(vi models.VerifiedIntent, fee *big.Int) receipts.Receipt {
	types := make([]common.Hash, len(vi.Intent.AttrTypes))
	for i, t := range vi.Intent.AttrTypes {
		types[i] = t.Hash()
	}
	return receipts.Receipt{
		Kind:           receipts.KindSetAttribute,
		Subject:        vi.Subject,
		Issuer:         vi.Issuer,
		TokenID:        vi.Intent.TokenID,
		Amount:         new(big.Int).Set(fee),
		AttributeTypes: types,
	}
}

func transferSingle(operator, from, to common.Address, tokenID uint64) receipts.Receipt {
	subject := to
	if subject == (common.Address{}) {
		subject = from
	}
	return receipts.Receipt{
		Kind:     receipts.KindTransferSingle,
		Subject:  subject,
		Operator: operator,
		From:     from,
		To:       to,
		TokenID:  tokenID,
		Amount:   big.NewInt(1),
	}
}

func burnPassportsReceipt(subject common.Address, tokenID uint64) receipts.Receipt {
	return receipts.Receipt{Kind: receipts.KindBurnPassports, Subject: subject, TokenID: tokenID}
}

func burnPassportsIssuerReceipt(issuer, subject common.Address, tokenID uint64) receipts.Receipt {
	return receipts.Receipt{Kind: receipts.KindBurnPassportsIssuer, Subject: subject, Issuer: issuer, TokenID: tokenID}
}
