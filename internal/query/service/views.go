package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	ledger "passport/internal/ledger/models"
)

// =============================================================================
// Free views
// =============================================================================
// Free views count only records from active issuers, like the paid reads.

// LatestEpoch returns the highest epoch among the records for (subject, t),
// or 0 when there are none.
func (s *Service) LatestEpoch(ctx context.Context, subject common.Address, t ledger.AttributeType) (uint64, error) {
	var latest uint64
	err := s.env.View(ctx, func(ctx context.Context) error {
		recs, err := s.activeRecords(ctx, subject, t)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if r.Epoch > latest {
				latest = r.Epoch
			}
		}
		return nil
	})
	return latest, err
}

// HasPassportByIssuer reports whether issuer holds a record for (subject, t).
func (s *Service) HasPassportByIssuer(ctx context.Context, subject common.Address, t ledger.AttributeType, issuer common.Address) (bool, error) {
	found := false
	err := s.env.View(ctx, func(ctx context.Context) error {
		recs, err := s.activeRecords(ctx, subject, t)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if r.Issuer == issuer {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// AttributeMetadata lists issuer and epoch for (subject, t) without values.
func (s *Service) AttributeMetadata(ctx context.Context, subject common.Address, t ledger.AttributeType) ([]ledger.AttributeMetadata, error) {
	var out []ledger.AttributeMetadata
	err := s.env.View(ctx, func(ctx context.Context) error {
		recs, err := s.activeRecords(ctx, subject, t)
		if err != nil {
			return err
		}
		for _, r := range recs {
			out = append(out, ledger.AttributeMetadata{Issuer: r.Issuer, Epoch: r.Epoch})
		}
		return nil
	})
	return out, err
}

func (s *Service) AttributesExist(ctx context.Context, subject common.Address, t ledger.AttributeType) (bool, error) {
	meta, err := s.AttributeMetadata(ctx, subject, t)
	return len(meta) > 0, err
}

// Balance returns the withdrawable balance of addr.
func (s *Service) Balance(addr common.Address) *big.Int {
	return s.funds.Balance(addr)
}
