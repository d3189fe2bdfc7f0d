package signature

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/ledger/models"
)

// SignAttestation signs intent about subject for the given deployment.
func SignAttestation(key *ecdsa.PrivateKey, subject common.Address, intent models.Intent, chainID *big.Int, ledger common.Address) ([]byte, error) {
	payload, err := AttestationDigest(subject, intent, chainID, ledger)
	if err != nil {
		return nil, err
	}
	return Sign(payload, key)
}

// SignSubject produces the subject authorization signature.
func SignSubject(key *ecdsa.PrivateKey) ([]byte, error) {
	return Sign(subjectDigest, key)
}

// SignFlash signs a flash claim for the given router deployment.
func SignFlash(key *ecdsa.PrivateKey, q FlashQuery, claim bool, chainID *big.Int, router common.Address) ([]byte, error) {
	payload, err := FlashDigest(q, claim, chainID, router)
	if err != nil {
		return nil, err
	}
	return Sign(payload, key)
}
