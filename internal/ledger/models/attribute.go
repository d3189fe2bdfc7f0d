package models

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// AttributeType identifies a kind of fact, named by the keccak256 of its label.
type AttributeType [32]byte

// AttributeKey addresses the position list holding every issuer's record of
// one attribute type for one identifier.
type AttributeKey [32]byte

var (
	TypeDID        = TypeOf("DID")
	TypeAML        = TypeOf("AML")
	TypeCountry    = TypeOf("COUNTRY")
	TypeIsBusiness = TypeOf("IS_BUSINESS")
	TypeKYC        = TypeOf("KYC")
)

// TypeOf derives the attribute type for label.
func TypeOf(label string) AttributeType {
	return AttributeType(keccak([]byte(label)))
}

// ParseAttributeType accepts either a 0x-prefixed 32-byte hex type or a
// label such as "COUNTRY".
func ParseAttributeType(s string) (AttributeType, error) {
	var t AttributeType
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if err := t.UnmarshalText([]byte(s)); err != nil {
			return AttributeType{}, err
		}
		return t, nil
	}
	if s == "" {
		return AttributeType{}, errors.New("empty attribute type")
	}
	return TypeOf(s), nil
}

func (t AttributeType) Hash() common.Hash { return common.Hash(t) }
func (t AttributeType) Hex() string       { return hexutil.Encode(t[:]) }

func (t AttributeType) String() string {
	switch t {
	case TypeDID:
		return "DID"
	case TypeAML:
		return "AML"
	case TypeCountry:
		return "COUNTRY"
	case TypeIsBusiness:
		return "IS_BUSINESS"
	case TypeKYC:
		return "KYC"
	}
	return t.Hex()
}

func (t AttributeType) MarshalText() ([]byte, error) {
	return hexutil.Bytes(t[:]).MarshalText()
}

func (t *AttributeType) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("AttributeType", input, t[:])
}

func (k AttributeKey) Hash() common.Hash { return common.Hash(k) }
func (k AttributeKey) Hex() string       { return hexutil.Encode(k[:]) }

func (k AttributeKey) MarshalText() ([]byte, error) {
	return hexutil.Bytes(k[:]).MarshalText()
}

func (k *AttributeKey) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("AttributeKey", input, k[:])
}

// KeyForAccount is keccak256(abi.encode(address, type)).
func KeyForAccount(subject common.Address, t AttributeType) AttributeKey {
	return AttributeKey(keccak(common.LeftPadBytes(subject.Bytes(), 32), t[:]))
}

// KeyForDID is keccak256(abi.encode(bytes32 did, type)).
func KeyForDID(did common.Hash, t AttributeType) AttributeKey {
	return AttributeKey(keccak(did.Bytes(), t[:]))
}

// DeriveKey picks the identifier for t: the DID for DID-keyed types, the
// subject address otherwise.
func DeriveKey(subject common.Address, did common.Hash, t AttributeType, byDID bool) AttributeKey {
	if byDID {
		return KeyForDID(did, t)
	}
	return KeyForAccount(subject, t)
}

// AttributeRecord is one issuer's claim. Value is opaque; Epoch is the
// issuer-claimed verification time in unix seconds.
type AttributeRecord struct {
	Value  common.Hash    `json:"value"`
	Issuer common.Address `json:"issuer"`
	Epoch  uint64         `json:"epoch"`
}

// Uint interprets Value as a big-endian unsigned integer.
func (r AttributeRecord) Uint() *big.Int {
	return new(big.Int).SetBytes(r.Value.Bytes())
}

// AttributeMetadata is a record without its value, served by free views.
type AttributeMetadata struct {
	Issuer common.Address `json:"issuer"`
	Epoch  uint64         `json:"epoch"`
}

func keccak(parts ...[]byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}
