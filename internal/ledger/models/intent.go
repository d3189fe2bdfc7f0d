package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Intent is the attestation payload an issuer signs.
//
// Invariants (checked by the ledger, not at construction):
//   - AttrKeys, AttrValues and AttrTypes have equal length
//   - AttrKeys[i] is the key derived for AttrTypes[i]
//   - IssuedAt and VerifiedAt are unix seconds, non-zero, not in the future
//
// AttrTypes and DID are routing fields outside the signed digest; the key
// check binds them to it.
type Intent struct {
	AttrKeys   []AttributeKey  `json:"attr_keys"`
	AttrValues []common.Hash   `json:"attr_values"`
	AttrTypes  []AttributeType `json:"attr_types"`
	DID        common.Hash     `json:"did"`
	TokenID    uint64          `json:"token_id"`
	VerifiedAt uint64          `json:"verified_at"`
	IssuedAt   uint64          `json:"issued_at"`
	Fee        *big.Int        `json:"fee"`
}

// FeeOrZero returns Fee, treating nil as zero.
func (i Intent) FeeOrZero() *big.Int {
	if i.Fee == nil {
		return new(big.Int)
	}
	return i.Fee
}

// VerifiedIntent is an intent whose authorization has been checked. The
// ledger consumes it and never recovers signatures itself.
type VerifiedIntent struct {
	Subject common.Address
	Issuer  common.Address
	Intent  Intent
	// Digest is the prefixed attestation digest, the replay key.
	Digest common.Hash
}

// SourceRecord is one record exported by a prior ledger for migration.
type SourceRecord struct {
	Type    AttributeType   `json:"type"`
	Record  AttributeRecord `json:"record"`
	TokenID uint64          `json:"token_id"`
	DID     common.Hash     `json:"did"`
}
