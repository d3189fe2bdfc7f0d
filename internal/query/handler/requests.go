package handler

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	ledger "passport/internal/ledger/models"
	dErrors "passport/pkg/domain-errors"
)

// ReadRequest is a paid read of one attribute type. Type is a label such as
// "COUNTRY" or a 0x-prefixed type hash.
type ReadRequest struct {
	Subject     common.Address `json:"subject"`
	Type        string         `json:"type"`
	Beneficiary common.Address `json:"beneficiary"`
}

func (r *ReadRequest) Parse() (ledger.AttributeType, error) {
	return parseType(r.Type)
}

type BulkReadRequest struct {
	Subject     common.Address `json:"subject"`
	Types       []string       `json:"types"`
	Beneficiary common.Address `json:"beneficiary"`
}

// Parse keeps the order and duplicates of Types; the router prices and
// answers each position.
func (r *BulkReadRequest) Parse() ([]ledger.AttributeType, error) {
	return parseTypes(r.Types)
}

type WithdrawRequest struct {
	Beneficiary common.Address        `json:"beneficiary"`
	Amount      *math.HexOrDecimal256 `json:"amount"`
}

func (r *WithdrawRequest) Validate() error {
	if r.Amount == nil {
		return dErrors.New(dErrors.CodeValidation, "amount is required")
	}
	return nil
}

func (r *WithdrawRequest) AmountInt() *big.Int {
	return (*big.Int)(r.Amount)
}

func parseTypes(raw []string) ([]ledger.AttributeType, error) {
	if len(raw) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "types are required")
	}
	out := make([]ledger.AttributeType, len(raw))
	for i, s := range raw {
		t, err := parseType(s)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func parseType(raw string) (ledger.AttributeType, error) {
	t, err := ledger.ParseAttributeType(strings.TrimSpace(raw))
	if err != nil {
		return ledger.AttributeType{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid attribute type")
	}
	return t, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	return common.HexToAddress(raw), nil
}
