package service

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	"passport/internal/ledger/models"
	"passport/internal/ledger/store"
)

// SetAttributes writes an issuer-signed batch about the subject that signed
// subjectSig. The attached value must equal the intent fee.
func (s *Service) SetAttributes(ctx context.Context, intent models.Intent, issuerSig, subjectSig []byte) error {
	start := time.Now()
	var vi models.VerifiedIntent
	err := s.env.Execute(ctx, "ledger.SetAttributes", func(ctx context.Context) error {
		if err := s.requireNotPaused(); err != nil {
			return err
		}
		subject, err := s.verifier.RecoverSubject(subjectSig)
		if err != nil {
			return err
		}
		if chain.Value(ctx).Cmp(intent.FeeOrZero()) != 0 {
			return models.ErrInvalidSetAttributeFee
		}
		vi, err = s.authorizeWrite(ctx, subject, intent, issuerSig)
		if err != nil {
			return err
		}
		s.apply(ctx, vi)
		return nil
	})
	return s.finishWrite(ctx, "subject", start, err, vi)
}

// SetAttributesIssuer writes a batch on the issuer-only path, for subjects
// that cannot sign. The caller must be the active issuer that signed intent.
func (s *Service) SetAttributesIssuer(ctx context.Context, subject common.Address, intent models.Intent, issuerSig []byte) error {
	start := time.Now()
	var vi models.VerifiedIntent
	err := s.env.Execute(ctx, "ledger.SetAttributesIssuer", func(ctx context.Context) error {
		if err := s.requireNotPaused(); err != nil {
			return err
		}
		caller := chain.Caller(ctx)
		if !s.policy.IsActiveIssuer(caller) {
			return models.ErrInvalidIssuer
		}
		if subject == (common.Address{}) {
			return models.ErrInvalidAccount
		}
		if chain.Value(ctx).Cmp(intent.FeeOrZero()) != 0 {
			return models.ErrInvalidSetAttributeFee
		}
		var err error
		vi, err = s.authorizeWrite(ctx, subject, intent, issuerSig)
		if err != nil {
			return err
		}
		if vi.Issuer != caller {
			return models.ErrInvalidIssuer
		}
		s.apply(ctx, vi)
		return nil
	})
	return s.finishWrite(ctx, "issuer", start, err, vi)
}

// SetAttributesBulk applies several subject-authorized writes as one call.
// The attached value must equal the sum of the intent fees.
func (s *Service) SetAttributesBulk(ctx context.Context, intents []models.Intent, issuerSigs, subjectSigs [][]byte) error {
	start := time.Now()
	written := 0
	err := s.env.Execute(ctx, "ledger.SetAttributesBulk", func(ctx context.Context) error {
		if err := s.requireNotPaused(); err != nil {
			return err
		}
		if len(intents) == 0 || len(intents) != len(issuerSigs) || len(intents) != len(subjectSigs) {
			return models.ErrMismatchLength
		}
		total := new(big.Int)
		for _, in := range intents {
			total.Add(total, in.FeeOrZero())
		}
		if chain.Value(ctx).Cmp(total) != 0 {
			return models.ErrInvalidSetAttributeFee
		}
		for i, in := range intents {
			subject, err := s.verifier.RecoverSubject(subjectSigs[i])
			if err != nil {
				return err
			}
			vi, err := s.authorizeWrite(ctx, subject, in, issuerSigs[i])
			if err != nil {
				return err
			}
			s.apply(ctx, vi)
			written += len(in.AttrTypes)
		}
		return nil
	})
	if err != nil {
		s.reject(err)
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementWritten("bulk", written)
		s.metrics.ObserveWrite(start)
	}
	s.logAudit(ctx, "attributes_set_bulk", "intents", len(intents), "records", written)
	return nil
}

func (s *Service) finishWrite(ctx context.Context, path string, start time.Time, err error, vi models.VerifiedIntent) error {
	if err != nil {
		s.reject(err)
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementWritten(path, len(vi.Intent.AttrTypes))
		s.metrics.ObserveWrite(start)
	}
	s.logAudit(ctx, "attributes_set",
		"path", path,
		"subject", vi.Subject.Hex(),
		"issuer", vi.Issuer.Hex(),
		"token_id", vi.Intent.TokenID,
		"records", len(vi.Intent.AttrTypes),
	)
	return nil
}

// authorizeWrite runs every check a write must pass, in order, and consumes
// the issuer signature last.
func (s *Service) authorizeWrite(ctx context.Context, subject common.Address, intent models.Intent, issuerSig []byte) (models.VerifiedIntent, error) {
	if intent.TokenID != 0 && !s.policy.EligibleTokenID(intent.TokenID) {
		return models.VerifiedIntent{}, models.ErrTokenIDInvalid
	}
	n := len(intent.AttrTypes)
	if n == 0 || len(intent.AttrKeys) != n || len(intent.AttrValues) != n {
		return models.VerifiedIntent{}, models.ErrMismatchLength
	}
	if err := s.verifier.VerifyFreshness(intent, s.env.Now(ctx)); err != nil {
		return models.VerifiedIntent{}, err
	}
	vi, err := s.verifier.RecoverIssuer(subject, intent, issuerSig)
	if err != nil {
		return models.VerifiedIntent{}, err
	}
	if !s.policy.IsActiveIssuer(vi.Issuer) {
		return models.VerifiedIntent{}, models.ErrInvalidIssuer
	}

	writesDID := false
	for i, t := range intent.AttrTypes {
		eligible, byDID := s.eligibility(t)
		if !eligible {
			return models.VerifiedIntent{}, models.ErrAttributeNotEligible
		}
		if !s.policy.IssuerAttributePermission(vi.Issuer, t) {
			return models.VerifiedIntent{}, models.ErrIssuerPermissionInvalid
		}
		if (byDID || t == models.TypeDID) && intent.DID == (common.Hash{}) {
			return models.VerifiedIntent{}, models.ErrDIDNotFound
		}
		if intent.AttrKeys[i] != models.DeriveKey(subject, intent.DID, t, byDID) {
			return models.VerifiedIntent{}, models.ErrMismatchAttrKey
		}
		if t == models.TypeDID {
			if intent.AttrValues[i] != intent.DID {
				return models.VerifiedIntent{}, models.ErrMismatchDID
			}
			writesDID = true
		}
	}
	if intent.DID != (common.Hash{}) {
		if err := s.checkDIDConsistency(subject, vi.Issuer, intent.DID, writesDID); err != nil {
			return models.VerifiedIntent{}, err
		}
	}

	if err := s.verifier.Consume(ctx, vi.Digest); err != nil {
		return models.VerifiedIntent{}, err
	}
	return vi, nil
}

// checkDIDConsistency rejects a DID that differs from one the subject already
// holds. An issuer rewriting its own DID record in the same intent is exempt
// for that record only.
func (s *Service) checkDIDConsistency(subject, issuer common.Address, did common.Hash, writesDID bool) error {
	for _, rec := range s.store.Records(models.KeyForAccount(subject, models.TypeDID)) {
		if writesDID && rec.Issuer == issuer {
			continue
		}
		if rec.Value != did {
			return models.ErrInvalidDID
		}
	}
	return nil
}

// apply writes the records of a verified intent, credits the fee, mints the
// lane and emits the write receipt.
func (s *Service) apply(ctx context.Context, vi models.VerifiedIntent) {
	in := vi.Intent
	lane := store.Lane{Subject: vi.Subject, TokenID: in.TokenID}
	for i, t := range in.AttrTypes {
		_, byDID := s.eligibility(t)
		slot := store.Slot{
			Record: models.AttributeRecord{
				Value:  in.AttrValues[i],
				Issuer: vi.Issuer,
				Epoch:  in.VerifiedAt,
			},
			Subject: vi.Subject,
			TokenID: in.TokenID,
			Type:    t,
		}
		if byDID {
			slot.DID = in.DID
		}
		res := s.store.Put(ctx, in.AttrKeys[i], slot)
		if res.Overwrote {
			if res.Previous.Lane() != lane {
				s.burnIfEmpty(ctx, res.Previous.Lane())
			}
			s.syncTouched(ctx, res.Previous)
		}
		s.syncTouched(ctx, slot)
	}

	fee := in.FeeOrZero()
	if fee.Sign() > 0 {
		s.funds.Credit(ctx, s.policy.IssuerTreasury(vi.Issuer), fee)
	}
	s.mint(ctx, lane)
	chain.Emit(ctx, setAttributeReceipt(vi, fee))
}
