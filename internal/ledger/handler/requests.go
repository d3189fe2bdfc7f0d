package handler

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"passport/internal/ledger/models"
	dErrors "passport/pkg/domain-errors"
)

// SetAttributesRequest is a self-submitted write: the subject proves
// ownership with SubjectSig.
type SetAttributesRequest struct {
	Intent     models.Intent `json:"intent"`
	IssuerSig  hexutil.Bytes `json:"issuer_sig"`
	SubjectSig hexutil.Bytes `json:"subject_sig"`
}

func (r *SetAttributesRequest) Validate() error {
	if len(r.IssuerSig) == 0 {
		return dErrors.New(dErrors.CodeValidation, "issuer_sig is required")
	}
	if len(r.SubjectSig) == 0 {
		return dErrors.New(dErrors.CodeValidation, "subject_sig is required")
	}
	return nil
}

// SetAttributesIssuerRequest is a write submitted by the issuer itself.
type SetAttributesIssuerRequest struct {
	Subject   common.Address `json:"subject"`
	Intent    models.Intent  `json:"intent"`
	IssuerSig hexutil.Bytes  `json:"issuer_sig"`
}

func (r *SetAttributesIssuerRequest) Validate() error {
	if r.Subject == (common.Address{}) {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	if len(r.IssuerSig) == 0 {
		return dErrors.New(dErrors.CodeValidation, "issuer_sig is required")
	}
	return nil
}

type SetAttributesBulkRequest struct {
	Intents     []models.Intent `json:"intents"`
	IssuerSigs  []hexutil.Bytes `json:"issuer_sigs"`
	SubjectSigs []hexutil.Bytes `json:"subject_sigs"`
}

// Validate leaves length mismatches to the ledger, which reports them with
// its own error.
func (r *SetAttributesBulkRequest) Validate() error {
	if len(r.Intents) == 0 {
		return dErrors.New(dErrors.CodeValidation, "intents are required")
	}
	return nil
}

func (r *SetAttributesBulkRequest) Signatures() (issuer, subject [][]byte) {
	issuer = make([][]byte, len(r.IssuerSigs))
	for i, sig := range r.IssuerSigs {
		issuer[i] = sig
	}
	subject = make([][]byte, len(r.SubjectSigs))
	for i, sig := range r.SubjectSigs {
		subject[i] = sig
	}
	return issuer, subject
}

type BurnIssuerRequest struct {
	Subject common.Address `json:"subject"`
}

func (r *BurnIssuerRequest) Validate() error {
	if r.Subject == (common.Address{}) {
		return dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	return nil
}

type BalanceBatchRequest struct {
	Subjects []common.Address `json:"subjects"`
	TokenIDs []uint64         `json:"token_ids"`
}

func parseAddress(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, dErrors.New(dErrors.CodeBadRequest, "invalid address")
	}
	return common.HexToAddress(raw), nil
}

func parseType(raw string) (models.AttributeType, error) {
	t, err := models.ParseAttributeType(raw)
	if err != nil {
		return models.AttributeType{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid attribute type")
	}
	return t, nil
}

func parseTokenID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid token id")
	}
	return id, nil
}
