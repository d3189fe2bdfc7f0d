package handler

import (
	"github.com/ethereum/go-ethereum/common"

	"passport/internal/governance"
	"passport/internal/ledger/models"
)

type IssuersResponse struct {
	Issuers []governance.Issuer `json:"issuers"`
}

// ConfigResponse is a snapshot of the global policy. Amounts are decimal
// strings.
type ConfigResponse struct {
	Treasury                common.Address         `json:"treasury"`
	RevSplitIssuer          uint64                 `json:"rev_split_issuer"`
	AMLThreshold            string                 `json:"aml_threshold"`
	EligibleAttributes      []models.AttributeType `json:"eligible_attributes"`
	EligibleAttributesByDID []models.AttributeType `json:"eligible_attributes_by_did"`
}

type RoleResponse struct {
	HasRole bool `json:"has_role"`
}
