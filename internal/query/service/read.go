package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	ledger "passport/internal/ledger/models"
	"passport/internal/query/models"
	"passport/internal/receipts"
)

// paidRead describes one paid read entry point.
type paidRead struct {
	entry       string
	subject     common.Address
	types       []ledger.AttributeType
	beneficiary common.Address
	bulk        bool
	// strict rejects ineligible types instead of pricing them at zero.
	strict bool
}

// GetAttributes returns the active issuers' records for (subject, t). The
// attached value must cover QueryFee; any excess is kept as a donation.
func (s *Service) GetAttributes(ctx context.Context, subject common.Address, t ledger.AttributeType, beneficiary common.Address) ([]ledger.AttributeRecord, error) {
	groups, err := s.read(ctx, paidRead{
		entry:       "GetAttributes",
		subject:     subject,
		types:       []ledger.AttributeType{t},
		beneficiary: beneficiary,
	})
	if err != nil {
		return nil, err
	}
	return groups[0], nil
}

// GetAttributesBulk reads several types in one paid call, one record group
// per type in request order. Ineligible types are served at zero cost.
func (s *Service) GetAttributesBulk(ctx context.Context, subject common.Address, types []ledger.AttributeType, beneficiary common.Address) ([][]ledger.AttributeRecord, error) {
	return s.read(ctx, paidRead{
		entry:       "GetAttributesBulk",
		subject:     subject,
		types:       types,
		beneficiary: beneficiary,
		bulk:        true,
	})
}

// GetAttributesLegacy is GetAttributes in parallel-array form.
func (s *Service) GetAttributesLegacy(ctx context.Context, subject common.Address, t ledger.AttributeType, beneficiary common.Address) (models.Legacy, error) {
	groups, err := s.read(ctx, paidRead{
		entry:       "GetAttributesLegacy",
		subject:     subject,
		types:       []ledger.AttributeType{t},
		beneficiary: beneficiary,
	})
	if err != nil {
		return models.Legacy{}, err
	}
	return models.ToLegacy(groups[0]), nil
}

// GetAttributesBulkLegacy is GetAttributesBulk in parallel-array form, with
// the groups concatenated. Unlike GetAttributesBulk it fails on any type that
// is not eligible.
func (s *Service) GetAttributesBulkLegacy(ctx context.Context, subject common.Address, types []ledger.AttributeType, beneficiary common.Address) (models.Legacy, error) {
	groups, err := s.read(ctx, paidRead{
		entry:       "GetAttributesBulkLegacy",
		subject:     subject,
		types:       types,
		beneficiary: beneficiary,
		bulk:        true,
		strict:      true,
	})
	if err != nil {
		return models.Legacy{}, err
	}
	var flat []ledger.AttributeRecord
	for _, g := range groups {
		flat = append(flat, g...)
	}
	return models.ToLegacy(flat), nil
}

func (s *Service) read(ctx context.Context, req paidRead) ([][]ledger.AttributeRecord, error) {
	var (
		groups   [][]ledger.AttributeRecord
		fee      *big.Int
		donation *big.Int
	)
	err := s.env.Execute(ctx, "query."+req.entry, func(ctx context.Context) error {
		requester := chain.Caller(ctx)
		if err := s.checkRequester(requester); err != nil {
			return err
		}
		beneficiary, err := s.resolveBeneficiary(req.beneficiary)
		if err != nil {
			return err
		}
		if req.strict {
			for _, t := range req.types {
				if !s.eligible(t) {
					return ledger.ErrAttributeNotEligible
				}
			}
		}
		fee = s.QueryFeeBulk(req.subject, req.types)
		paid := chain.Value(ctx)
		if paid.Cmp(fee) < 0 {
			return ledger.ErrInsufficientPayment
		}

		groups = make([][]ledger.AttributeRecord, len(req.types))
		for i, t := range req.types {
			recs, err := s.activeRecords(ctx, req.subject, t)
			if err != nil {
				return err
			}
			groups[i] = recs
			s.distribute(ctx, req.subject, requester, beneficiary, s.QueryFee(req.subject, t), recs)
		}

		donation = new(big.Int).Sub(paid, fee)
		if donation.Sign() > 0 {
			s.funds.Credit(ctx, s.policy.Treasury(), donation)
		}

		kind := receipts.KindQuery
		if req.bulk {
			kind = receipts.KindQueryBulk
		}
		chain.Emit(ctx, queryReceipt(kind, req.subject, requester, req.types))
		return nil
	})
	if err != nil {
		s.reject(err)
		return nil, err
	}
	s.served(req.entry, fee, donation)
	s.logAudit(ctx, "attributes_queried",
		"entry", req.entry,
		"subject", req.subject.Hex(),
		"types", len(req.types),
		"fee", fee.String(),
	)
	return groups, nil
}

// distribute credits fee for one type: the issuer share to each contributing
// issuer's treasury and the remainder to beneficiary.
func (s *Service) distribute(ctx context.Context, subject, requester, beneficiary common.Address, fee *big.Int, recs []ledger.AttributeRecord) {
	if fee.Sign() == 0 {
		return
	}
	issuerShare, rest := models.SplitFee(fee, s.policy.RevSplitIssuer(), len(recs))
	for _, r := range recs {
		treasury := s.policy.IssuerTreasury(r.Issuer)
		s.funds.Credit(ctx, treasury, issuerShare)
		chain.Emit(ctx, queryFeeReceipt(subject, requester, r.Issuer, treasury, issuerShare))
	}
	s.funds.Credit(ctx, beneficiary, rest)
}
