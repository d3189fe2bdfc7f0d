package handler

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"

	"passport/internal/governance"
	"passport/internal/ledger/models"
	dErrors "passport/pkg/domain-errors"
)

type RoleRequest struct {
	Role      governance.Role `json:"role"`
	Principal common.Address  `json:"principal"`
}

func (r *RoleRequest) Validate() error {
	if !r.Role.IsValid() {
		return governance.ErrInvalidRole
	}
	return nil
}

type AddIssuerRequest struct {
	Issuer   common.Address `json:"issuer"`
	Treasury common.Address `json:"treasury"`
}

type IssuerStatusRequest struct {
	Active bool `json:"active"`
}

type IssuerTreasuryRequest struct {
	Treasury common.Address `json:"treasury"`
}

// PermissionRequest and EligibilityRequest take Type as a label such as
// "COUNTRY" or a 0x-prefixed type hash.
type PermissionRequest struct {
	Type    string `json:"type"`
	Allowed bool   `json:"allowed"`
}

type EligibilityRequest struct {
	Type     string `json:"type"`
	Eligible bool   `json:"eligible"`
	ByDID    bool   `json:"by_did"`
}

type TokenIDRequest struct {
	TokenID uint64 `json:"token_id"`
}

type PriceRequest struct {
	Type     string                `json:"type"`
	Price    *math.HexOrDecimal256 `json:"price"`
	Business bool                  `json:"business"`
}

func (r *PriceRequest) Validate() error {
	if r.Price == nil {
		return dErrors.New(dErrors.CodeValidation, "price is required")
	}
	return nil
}

func (r *PriceRequest) PriceInt() *big.Int {
	return (*big.Int)(r.Price)
}

type RevSplitRequest struct {
	Percent uint64 `json:"percent"`
}

type TreasuryRequest struct {
	Treasury common.Address `json:"treasury"`
}

type PreapprovalRequest struct {
	Account  common.Address `json:"account"`
	Approved bool           `json:"approved"`
}

type AMLThresholdRequest struct {
	Threshold *math.HexOrDecimal256 `json:"threshold"`
}

func (r *AMLThresholdRequest) Validate() error {
	if r.Threshold == nil {
		return dErrors.New(dErrors.CodeValidation, "threshold is required")
	}
	return nil
}

func parseType(raw string) (models.AttributeType, error) {
	t, err := models.ParseAttributeType(raw)
	if err != nil {
		return models.AttributeType{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid attribute type")
	}
	return t, nil
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	return common.HexToAddress(raw), nil
}
