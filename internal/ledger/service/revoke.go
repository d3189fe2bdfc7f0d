package service

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	"passport/internal/ledger/models"
	"passport/internal/ledger/store"
)

// BurnPassports removes every record in the caller's lane for tokenID and
// burns its balance. Revoking an empty lane succeeds without effect.
func (s *Service) BurnPassports(ctx context.Context, tokenID uint64) error {
	removed := 0
	err := s.env.Execute(ctx, "ledger.BurnPassports", func(ctx context.Context) error {
		if err := s.requireNotPaused(); err != nil {
			return err
		}
		subject := chain.Caller(ctx)
		lane := store.Lane{Subject: subject, TokenID: tokenID}
		for _, entry := range s.store.LaneEntries(lane) {
			slot, ok := s.store.Remove(ctx, entry.Key, entry.Issuer)
			if !ok {
				continue
			}
			removed++
			s.syncTouched(ctx, slot)
		}
		burned := s.burnIfEmpty(ctx, lane)
		if removed > 0 || burned {
			chain.Emit(ctx, burnPassportsReceipt(subject, tokenID))
		}
		return nil
	})
	if err != nil {
		s.reject(err)
		return err
	}
	if removed > 0 {
		if s.metrics != nil {
			s.metrics.IncrementRevoked("subject", removed)
		}
		s.logAudit(ctx, "passports_burned", "token_id", tokenID, "records", removed)
	}
	return nil
}

// BurnPassportsIssuer removes only the caller's records from the lane of
// (subject, tokenID). The balance burns when no other issuer's record remains.
// A subject without records from the caller is a silent no-op.
func (s *Service) BurnPassportsIssuer(ctx context.Context, subject common.Address, tokenID uint64) error {
	removed := 0
	err := s.env.Execute(ctx, "ledger.BurnPassportsIssuer", func(ctx context.Context) error {
		if err := s.requireNotPaused(); err != nil {
			return err
		}
		issuer := chain.Caller(ctx)
		if !s.policy.IsActiveIssuer(issuer) {
			return models.ErrInvalidIssuer
		}
		lane := store.Lane{Subject: subject, TokenID: tokenID}
		for _, entry := range s.store.LaneEntries(lane) {
			if entry.Issuer != issuer {
				continue
			}
			slot, ok := s.store.Remove(ctx, entry.Key, entry.Issuer)
			if !ok {
				continue
			}
			removed++
			s.syncTouched(ctx, slot)
		}
		if removed == 0 {
			return nil
		}
		s.burnIfEmpty(ctx, lane)
		chain.Emit(ctx, burnPassportsIssuerReceipt(issuer, subject, tokenID))
		return nil
	})
	if err != nil {
		s.reject(err)
		return err
	}
	if removed > 0 {
		if s.metrics != nil {
			s.metrics.IncrementRevoked("issuer", removed)
		}
		s.logAudit(ctx, "passports_burned_by_issuer",
			"subject", subject.Hex(),
			"token_id", tokenID,
			"records", removed,
		)
	}
	return nil
}
