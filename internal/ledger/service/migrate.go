package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	"passport/internal/governance"
	"passport/internal/ledger/models"
	"passport/internal/ledger/store"
	dErrors "passport/pkg/domain-errors"
)

// Migrate copies issuer's records for each subject from source, keeping value,
// issuer, epoch and token id. Each record is re-validated against the current
// policy, so a type that is no longer eligible fails the whole migration.
func (s *Service) Migrate(ctx context.Context, subjects []common.Address, issuer common.Address, source SourceLedger) error {
	if source == nil {
		return dErrors.New(dErrors.CodeBadRequest, "source ledger is required")
	}
	migrated := 0
	err := s.env.Execute(ctx, "ledger.Migrate", func(ctx context.Context) error {
		if err := s.requireNotPaused(); err != nil {
			return err
		}
		if !s.policy.HasRole(governance.RoleGovernance, chain.Caller(ctx)) {
			return models.ErrNotGovernance
		}
		if !s.policy.IsActiveIssuer(issuer) {
			return models.ErrInvalidIssuer
		}
		for _, subject := range subjects {
			if subject == (common.Address{}) {
				return models.ErrInvalidAccount
			}
			recs, err := source.RecordsBySubject(chain.Delegate(ctx, s.address), subject)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read source ledger")
			}
			for _, rec := range recs {
				if rec.Record.Issuer != issuer {
					continue
				}
				key, byDID, err := s.migrationKey(subject, issuer, rec)
				if err != nil {
					return err
				}
				slot := store.Slot{Record: rec.Record, Subject: subject, TokenID: rec.TokenID, Type: rec.Type}
				if byDID {
					slot.DID = rec.DID
				}
				res := s.store.Put(ctx, key, slot)
				if res.Overwrote {
					if res.Previous.Lane() != slot.Lane() {
						s.burnIfEmpty(ctx, res.Previous.Lane())
					}
					s.syncTouched(ctx, res.Previous)
				}
				s.syncTouched(ctx, slot)
				s.mint(ctx, slot.Lane())
				migrated++
			}
		}
		return nil
	})
	if err != nil {
		s.reject(err)
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementMigrated(migrated)
	}
	s.logAudit(ctx, "attributes_migrated",
		"issuer", issuer.Hex(),
		"subjects", len(subjects),
		"records", migrated,
	)
	return nil
}

func (s *Service) migrationKey(subject, issuer common.Address, rec models.SourceRecord) (models.AttributeKey, bool, error) {
	if rec.TokenID != 0 && !s.policy.EligibleTokenID(rec.TokenID) {
		return models.AttributeKey{}, false, models.ErrTokenIDInvalid
	}
	eligible, byDID := s.eligibility(rec.Type)
	if !eligible {
		return models.AttributeKey{}, false, models.ErrAttributeNotEligible
	}
	if !s.policy.IssuerAttributePermission(issuer, rec.Type) {
		return models.AttributeKey{}, false, models.ErrIssuerPermissionInvalid
	}
	if byDID && rec.DID == (common.Hash{}) {
		return models.AttributeKey{}, false, models.ErrDIDNotFound
	}
	did, writesDID := rec.DID, rec.Type == models.TypeDID
	if writesDID {
		if did != (common.Hash{}) && did != rec.Record.Value {
			return models.AttributeKey{}, false, models.ErrMismatchDID
		}
		did = rec.Record.Value
	}
	if did != (common.Hash{}) {
		if err := s.checkDIDConsistency(subject, issuer, did, writesDID); err != nil {
			return models.AttributeKey{}, false, err
		}
	}
	return models.DeriveKey(subject, rec.DID, rec.Type, byDID), byDID, nil
}
