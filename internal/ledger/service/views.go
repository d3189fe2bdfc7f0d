package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	"passport/internal/governance"
	"passport/internal/ledger/models"
	"passport/internal/ledger/store"
)

// =============================================================================
// Reader-role accessors
// =============================================================================

// Attributes returns every issuer's record for (subject, t) in first-attestation
// order. A revoked or never-written key yields an empty result.
func (s *Service) Attributes(ctx context.Context, subject common.Address, t models.AttributeType) ([]models.AttributeRecord, error) {
	var out []models.AttributeRecord
	err := s.readerView(ctx, func() {
		if key, ok := s.readKey(subject, t); ok {
			out = s.store.Records(key)
		}
	})
	return out, err
}

// AttributeByIssuer returns issuer's record for (subject, t), if any.
func (s *Service) AttributeByIssuer(ctx context.Context, subject common.Address, t models.AttributeType, issuer common.Address) (models.AttributeRecord, bool, error) {
	var (
		rec   models.AttributeRecord
		found bool
	)
	err := s.readerView(ctx, func() {
		key, ok := s.readKey(subject, t)
		if !ok {
			return
		}
		if slot, ok := s.store.Slot(key, issuer); ok {
			rec, found = slot.Record, true
		}
	})
	return rec, found, err
}

func (s *Service) AttributesExist(ctx context.Context, subject common.Address, t models.AttributeType) (bool, error) {
	exists := false
	err := s.readerView(ctx, func() {
		if key, ok := s.readKey(subject, t); ok {
			exists = s.store.Len(key) > 0
		}
	})
	return exists, err
}

// AttributeMetadata lists issuer and epoch of each record for (subject, t).
func (s *Service) AttributeMetadata(ctx context.Context, subject common.Address, t models.AttributeType) ([]models.AttributeMetadata, error) {
	var out []models.AttributeMetadata
	err := s.readerView(ctx, func() {
		key, ok := s.readKey(subject, t)
		if !ok {
			return
		}
		for _, rec := range s.store.Records(key) {
			out = append(out, models.AttributeMetadata{Issuer: rec.Issuer, Epoch: rec.Epoch})
		}
	})
	return out, err
}

// RecordsBySubject exports every record stored in the subject's lanes, ordered
// by token id. It is the source side of Migrate.
func (s *Service) RecordsBySubject(ctx context.Context, subject common.Address) ([]models.SourceRecord, error) {
	var out []models.SourceRecord
	err := s.readerView(ctx, func() {
		for _, slot := range s.store.SlotsBySubject(subject) {
			out = append(out, models.SourceRecord{
				Type:    slot.Type,
				Record:  slot.Record,
				TokenID: slot.TokenID,
				DID:     slot.DID,
			})
		}
	})
	return out, err
}

func (s *Service) readerView(ctx context.Context, fn func()) error {
	if !s.policy.HasRole(governance.RoleReader, chain.Caller(ctx)) {
		return models.ErrAccessDenied
	}
	return s.env.View(ctx, func(context.Context) error {
		fn()
		return nil
	})
}

// =============================================================================
// Public views
// =============================================================================

// BalanceOf returns the soulbound balance of (subject, tokenID), 0 or 1.
func (s *Service) BalanceOf(ctx context.Context, subject common.Address, tokenID uint64) (uint64, error) {
	var balance uint64
	err := s.env.View(ctx, func(context.Context) error {
		balance = s.balance(subject, tokenID)
		return nil
	})
	return balance, err
}

func (s *Service) BalanceOfBatch(ctx context.Context, subjects []common.Address, tokenIDs []uint64) ([]uint64, error) {
	if len(subjects) != len(tokenIDs) {
		return nil, models.ErrMismatchLength
	}
	out := make([]uint64, len(subjects))
	err := s.env.View(ctx, func(context.Context) error {
		for i := range subjects {
			out[i] = s.balance(subjects[i], tokenIDs[i])
		}
		return nil
	})
	return out, err
}

// AMLRecords returns the AML records stored for did, for the allow-list bridge.
func (s *Service) AMLRecords(ctx context.Context, did common.Hash) ([]models.AttributeRecord, error) {
	var out []models.AttributeRecord
	err := s.env.View(ctx, func(context.Context) error {
		out = s.store.Records(models.KeyForDID(did, models.TypeAML))
		return nil
	})
	return out, err
}

func (s *Service) balance(subject common.Address, tokenID uint64) uint64 {
	if s.store.HasBalance(store.Lane{Subject: subject, TokenID: tokenID}) {
		return 1
	}
	return 0
}
