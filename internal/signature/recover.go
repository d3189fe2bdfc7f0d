package signature

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	dErrors "passport/pkg/domain-errors"
)

const (
	// Length is the expected length of an ECDSA signature (r||s||v).
	Length          = 65
	recoveryIDIndex = 64
)

var ErrInvalidSignature = dErrors.New(dErrors.CodeUnauthorized, "INVALID_SIGNATURE")

// PrefixedDigest is keccak256("\x19Ethereum Signed Message:\n32" || hash).
func PrefixedDigest(hash common.Hash) common.Hash {
	return common.BytesToHash(accounts.TextHash(hash.Bytes()))
}

// Recover returns the signer of the personal-message signature over hash.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != Length {
		return common.Address{}, ErrInvalidSignature
	}
	pub, err := crypto.SigToPub(PrefixedDigest(hash).Bytes(), normalize(sig))
	if err != nil || pub == nil {
		return common.Address{}, ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// normalize maps the recovery id from 27/28 to 0/1 as crypto.SigToPub expects.
func normalize(sig []byte) []byte {
	out := make([]byte, Length)
	copy(out, sig)
	if v := out[recoveryIDIndex]; v == 27 || v == 28 {
		out[recoveryIDIndex] = v - 27
	}
	return out
}

// Sign produces a personal-message signature over hash with v in {27, 28}.
func Sign(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(PrefixedDigest(hash).Bytes(), key)
	if err != nil {
		return nil, err
	}
	sig[recoveryIDIndex] += 27
	return sig, nil
}
