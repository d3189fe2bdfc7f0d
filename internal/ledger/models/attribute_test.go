package models

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeOfMatchesKeccak(t *testing.T) {
	assert.Equal(t, crypto.Keccak256Hash([]byte("AML")), TypeAML.Hash())
	assert.Equal(t, "AML", TypeAML.String())
	assert.Equal(t, TypeOf("custom").Hex(), TypeOf("custom").String())
}

func TestKeyDerivationMatchesABIEncoding(t *testing.T) {
	addrT, err := abi.NewType("address", "", nil)
	require.NoError(t, err)
	b32T, err := abi.NewType("bytes32", "", nil)
	require.NoError(t, err)

	subject := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	packed, err := abi.Arguments{{Type: addrT}, {Type: b32T}}.Pack(subject, [32]byte(TypeCountry))
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(packed), KeyForAccount(subject, TypeCountry).Hash())

	did := common.HexToHash("0xd1d")
	packed, err = abi.Arguments{{Type: b32T}, {Type: b32T}}.Pack([32]byte(did), [32]byte(TypeAML))
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(packed), KeyForDID(did, TypeAML).Hash())

	assert.Equal(t, KeyForDID(did, TypeAML), DeriveKey(subject, did, TypeAML, true))
	assert.Equal(t, KeyForAccount(subject, TypeAML), DeriveKey(subject, did, TypeAML, false))
}

func TestAttributeTypeTextRoundTrip(t *testing.T) {
	raw, err := json.Marshal(map[string]AttributeType{"t": TypeKYC})
	require.NoError(t, err)

	var got map[string]AttributeType
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, TypeKYC, got["t"])

	var k AttributeKey
	assert.Error(t, k.UnmarshalText([]byte("0x1234")))
}

func TestRecordUint(t *testing.T) {
	r := AttributeRecord{Value: common.BigToHash(common.Big3)}
	assert.Equal(t, int64(3), r.Uint().Int64())
}

func TestParseAttributeType(t *testing.T) {
	got, err := ParseAttributeType("COUNTRY")
	require.NoError(t, err)
	assert.Equal(t, TypeCountry, got)

	got, err = ParseAttributeType(TypeAML.Hex())
	require.NoError(t, err)
	assert.Equal(t, TypeAML, got)

	_, err = ParseAttributeType("0x12")
	assert.Error(t, err)
	_, err = ParseAttributeType("")
	assert.Error(t, err)
}
