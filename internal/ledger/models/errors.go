package models

import (
	dErrors "passport/pkg/domain-errors"
)

// Failure reasons shared by the ledger and the query router. The Message of
// each is the stable reason callers match on.
var (
	ErrPaused                  = dErrors.New(dErrors.CodeConflict, "PAUSED")
	ErrAccessDenied            = dErrors.New(dErrors.CodeForbidden, "ACCESS_DENIED")
	ErrNotGovernance           = dErrors.New(dErrors.CodeForbidden, "NOT_GOVERNANCE")
	ErrNotPauser               = dErrors.New(dErrors.CodeForbidden, "NOT_PAUSER")
	ErrInvalidIssuer           = dErrors.New(dErrors.CodeUnauthorized, "INVALID_ISSUER")
	ErrInvalidAccount          = dErrors.New(dErrors.CodeValidation, "INVALID_ACCOUNT")
	ErrMismatchLength          = dErrors.New(dErrors.CodeValidation, "MISMATCH_LENGTH")
	ErrMismatchAttrKey         = dErrors.New(dErrors.CodeValidation, "MISMATCH_ATTR_KEY")
	ErrInvalidSetAttributeFee  = dErrors.New(dErrors.CodePaymentRequired, "INVALID_SET_ATTRIBUTE_FEE")
	ErrTokenIDInvalid          = dErrors.New(dErrors.CodeValidation, "PASSPORT_TOKENID_INVALID")
	ErrAttributeNotEligible    = dErrors.New(dErrors.CodeValidation, "ATTRIBUTE_NOT_ELIGIBLE")
	ErrIssuerPermissionInvalid = dErrors.New(dErrors.CodeForbidden, "ISSUER_ATTR_PERMISSION_INVALID")
	ErrDIDNotFound             = dErrors.New(dErrors.CodeValidation, "DID_NOT_FOUND")
	ErrMismatchDID             = dErrors.New(dErrors.CodeValidation, "MISMATCH_DID")
	ErrInvalidDID              = dErrors.New(dErrors.CodeConflict, "INVALID_DID")
	ErrInsufficientPayment     = dErrors.New(dErrors.CodePaymentRequired, "INSUFFICIENT_PAYMENT")
	ErrNotPreapproved          = dErrors.New(dErrors.CodeForbidden, "NOT_PREAPPROVED")
	ErrInvalidBeneficiary      = dErrors.New(dErrors.CodeValidation, "INVALID_BENEFICIARY")
	ErrWithdrawalAddress       = dErrors.New(dErrors.CodeValidation, "WITHDRAWAL_ADDRESS_INVALID")
	ErrFailedToTransfer        = dErrors.New(dErrors.CodeUnavailable, "FAILED_TO_TRANSFER")
)
