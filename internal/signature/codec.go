package signature

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"passport/internal/ledger/models"
)

// SubjectAuthorizationMessage is the fixed message a subject signs to let
// issuers write attestations about it.
const SubjectAuthorizationMessage = "Passport: I authorize attestations about this account."

var (
	addressType, _      = abi.NewType("address", "", nil)
	uint256Type, _      = abi.NewType("uint256", "", nil)
	bytes32Type, _      = abi.NewType("bytes32", "", nil)
	bytes32ArrayType, _ = abi.NewType("bytes32[]", "", nil)
	boolType, _         = abi.NewType("bool", "", nil)

	attestationArgs = abi.Arguments{
		{Name: "subject", Type: addressType},
		{Name: "attrKeys", Type: bytes32ArrayType},
		{Name: "attrValues", Type: bytes32ArrayType},
		{Name: "verifiedAt", Type: uint256Type},
		{Name: "issuedAt", Type: uint256Type},
		{Name: "fee", Type: uint256Type},
		{Name: "tokenId", Type: uint256Type},
		{Name: "chainId", Type: uint256Type},
		{Name: "ledger", Type: addressType},
	}

	flashArgs = abi.Arguments{
		{Name: "subject", Type: addressType},
		{Name: "requester", Type: addressType},
		{Name: "attributeType", Type: bytes32Type},
		{Name: "expiry", Type: uint256Type},
		{Name: "threshold", Type: uint256Type},
		{Name: "dataHash", Type: bytes32Type},
		{Name: "fee", Type: uint256Type},
		{Name: "claimHash", Type: bytes32Type},
		{Name: "chainId", Type: uint256Type},
		{Name: "router", Type: addressType},
	}

	claimArgs = abi.Arguments{{Name: "claim", Type: boolType}}

	subjectDigest = crypto.Keccak256Hash([]byte(SubjectAuthorizationMessage))
)

// SubjectDigest is the payload hash a subject signs.
func SubjectDigest() common.Hash {
	return subjectDigest
}

// AttestationDigest is keccak256(abi.encode(subject, attrKeys, attrValues,
// verifiedAt, issuedAt, fee, tokenId, chainId, ledger)).
func AttestationDigest(subject common.Address, intent models.Intent, chainID *big.Int, ledger common.Address) (common.Hash, error) {
	keys := make([][32]byte, len(intent.AttrKeys))
	for i, k := range intent.AttrKeys {
		keys[i] = k
	}
	values := make([][32]byte, len(intent.AttrValues))
	for i, v := range intent.AttrValues {
		values[i] = v
	}
	packed, err := attestationArgs.Pack(
		subject,
		keys,
		values,
		new(big.Int).SetUint64(intent.VerifiedAt),
		new(big.Int).SetUint64(intent.IssuedAt),
		intent.FeeOrZero(),
		new(big.Int).SetUint64(intent.TokenID),
		chainID,
		ledger,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}

// FlashQuery is a paid check of an issuer-signed boolean that is never stored.
type FlashQuery struct {
	Subject       common.Address       `json:"subject"`
	Requester     common.Address       `json:"requester"`
	AttributeType models.AttributeType `json:"attribute_type"`
	IssuedAt      uint64               `json:"issued_at"`
	Threshold     *big.Int             `json:"threshold"`
	DataHash      common.Hash          `json:"data_hash"`
	Fee           *big.Int             `json:"fee"`
	Signature     hexutil.Bytes        `json:"signature"`
}

func (q FlashQuery) fee() *big.Int {
	if q.Fee == nil {
		return new(big.Int)
	}
	return q.Fee
}

func (q FlashQuery) threshold() *big.Int {
	if q.Threshold == nil {
		return new(big.Int)
	}
	return q.Threshold
}

// ClaimHash is keccak256(abi.encode(claim)).
func ClaimHash(claim bool) common.Hash {
	packed, _ := claimArgs.Pack(claim)
	return crypto.Keccak256Hash(packed)
}

// FlashDigest is the payload hash an issuer signs for a flash claim.
func FlashDigest(q FlashQuery, claim bool, chainID *big.Int, router common.Address) (common.Hash, error) {
	packed, err := flashArgs.Pack(
		q.Subject,
		q.Requester,
		[32]byte(q.AttributeType),
		new(big.Int).SetUint64(q.IssuedAt),
		q.threshold(),
		[32]byte(q.DataHash),
		q.fee(),
		[32]byte(ClaimHash(claim)),
		chainID,
		router,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(packed), nil
}
