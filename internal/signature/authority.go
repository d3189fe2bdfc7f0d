// Package signature authorizes attestations: it rebuilds the signed payloads,
// recovers signers, enforces freshness and consumes each signature once.
package signature

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/ledger/models"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/sentinel"
)

// DefaultValidity is how long after issuedAt a signed attestation is accepted.
const DefaultValidity = 6 * time.Hour

var (
	ErrIssuedAtZero         = dErrors.New(dErrors.CodeValidation, "ISSUED_AT_CANNOT_BE_ZERO")
	ErrInvalidIssuedAt      = dErrors.New(dErrors.CodeValidation, "INVALID_ISSUED_AT")
	ErrExpiredIssuedAt      = dErrors.New(dErrors.CodeValidation, "EXPIRED_ISSUED_AT")
	ErrVerifiedAtZero       = dErrors.New(dErrors.CodeValidation, "VERIFIED_AT_CANNOT_BE_ZERO")
	ErrInvalidVerifiedAt    = dErrors.New(dErrors.CodeValidation, "INVALID_VERIFIED_AT")
	ErrSignatureAlreadyUsed = dErrors.New(dErrors.CodeConflict, "SIGNATURE_ALREADY_USED")
	ErrReplaySetUnavailable = dErrors.New(dErrors.CodeUnavailable, "REPLAY_SET_UNAVAILABLE")
)

// Authority binds signatures to one chain id, ledger address and router address.
type Authority struct {
	chainID  *big.Int
	ledger   common.Address
	router   common.Address
	used     UsedSet
	validity time.Duration
}

type Option func(*Authority)

// WithValidity overrides DefaultValidity.
func WithValidity(d time.Duration) Option {
	return func(a *Authority) {
		if d > 0 {
			a.validity = d
		}
	}
}

func New(chainID *big.Int, ledger, router common.Address, used UsedSet, opts ...Option) (*Authority, error) {
	if chainID == nil {
		return nil, errors.New("chain id is required")
	}
	if used == nil {
		return nil, errors.New("used signature set is required")
	}
	a := &Authority{
		chainID:  new(big.Int).Set(chainID),
		ledger:   ledger,
		router:   router,
		used:     used,
		validity: DefaultValidity,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Authority) ChainID() *big.Int      { return new(big.Int).Set(a.chainID) }
func (a *Authority) Ledger() common.Address { return a.ledger }
func (a *Authority) Router() common.Address { return a.router }

// VerifyFreshness checks issuedAt and verifiedAt against now.
func (a *Authority) VerifyFreshness(intent models.Intent, now time.Time) error {
	if err := a.checkIssuedAt(intent.IssuedAt, now); err != nil {
		return err
	}
	if intent.VerifiedAt == 0 {
		return ErrVerifiedAtZero
	}
	if time.Unix(int64(intent.VerifiedAt), 0).After(now) {
		return ErrInvalidVerifiedAt
	}
	return nil
}

func (a *Authority) checkIssuedAt(issuedAt uint64, now time.Time) error {
	if issuedAt == 0 {
		return ErrIssuedAtZero
	}
	issued := time.Unix(int64(issuedAt), 0)
	if issued.After(now) {
		return ErrInvalidIssuedAt
	}
	if now.After(issued.Add(a.validity)) {
		return ErrExpiredIssuedAt
	}
	return nil
}

// RecoverSubject returns the account that signed the subject authorization.
func (a *Authority) RecoverSubject(subjectSig []byte) (common.Address, error) {
	return Recover(subjectDigest, subjectSig)
}

// RecoverIssuer rebuilds the attestation payload for subject and returns the
// verified intent carrying the recovered issuer.
func (a *Authority) RecoverIssuer(subject common.Address, intent models.Intent, issuerSig []byte) (models.VerifiedIntent, error) {
	payload, err := AttestationDigest(subject, intent, a.chainID, a.ledger)
	if err != nil {
		return models.VerifiedIntent{}, dErrors.Wrap(err, dErrors.CodeValidation, ErrInvalidSignature.Message)
	}
	issuer, err := Recover(payload, issuerSig)
	if err != nil {
		return models.VerifiedIntent{}, err
	}
	return models.VerifiedIntent{
		Subject: subject,
		Issuer:  issuer,
		Intent:  intent,
		Digest:  PrefixedDigest(payload),
	}, nil
}

// Consume marks digest used for the active call.
func (a *Authority) Consume(ctx context.Context, digest common.Hash) error {
	err := a.used.MarkUsed(ctx, digest)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return ErrSignatureAlreadyUsed
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, ErrReplaySetUnavailable.Message)
	}
}

// IsUsed reports whether digest was consumed.
func (a *Authority) IsUsed(ctx context.Context, digest common.Hash) (bool, error) {
	return a.used.IsUsed(ctx, digest)
}

// VerifyFlash checks freshness of q and recovers its signer, first assuming
// a true claim and then a false one. The first signer accept approves wins.
func (a *Authority) VerifyFlash(q FlashQuery, now time.Time, accept func(issuer common.Address) bool) (common.Address, bool, error) {
	if err := a.checkIssuedAt(q.IssuedAt, now); err != nil {
		return common.Address{}, false, err
	}
	if len(q.Signature) != Length {
		return common.Address{}, false, ErrInvalidSignature
	}
	for _, claim := range []bool{true, false} {
		payload, err := FlashDigest(q, claim, a.chainID, a.router)
		if err != nil {
			return common.Address{}, false, dErrors.Wrap(err, dErrors.CodeValidation, ErrInvalidSignature.Message)
		}
		issuer, err := Recover(payload, q.Signature)
		if err != nil {
			continue
		}
		if accept(issuer) {
			return issuer, claim, nil
		}
	}
	return common.Address{}, false, models.ErrInvalidIssuer
}
