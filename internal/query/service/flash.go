package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	ledger "passport/internal/ledger/models"
	"passport/internal/signature"
)

// GetFlashAttributeGTE returns the boolean an active, permitted issuer signed
// for q. The requester is always the caller. Nothing is read from or written
// to attestation storage; the fee is split as a read with one issuer and the
// remainder goes to the protocol treasury.
func (s *Service) GetFlashAttributeGTE(ctx context.Context, q signature.FlashQuery) (bool, error) {
	var (
		claim    bool
		fee      *big.Int
		donation *big.Int
	)
	err := s.env.Execute(ctx, "query.GetFlashAttributeGTE", func(ctx context.Context) error {
		q.Requester = chain.Caller(ctx)
		fee = new(big.Int)
		if q.Fee != nil {
			fee.Set(q.Fee)
		}
		paid := chain.Value(ctx)
		if paid.Cmp(fee) < 0 {
			return ledger.ErrInsufficientPayment
		}
		issuer, c, err := s.flash.VerifyFlash(q, s.env.Now(ctx), func(addr common.Address) bool {
			return s.policy.IsActiveIssuer(addr) && s.policy.IssuerAttributePermission(addr, q.AttributeType)
		})
		if err != nil {
			return err
		}
		claim = c
		s.distribute(ctx, q.Subject, q.Requester, s.policy.Treasury(), fee, []ledger.AttributeRecord{{Issuer: issuer}})
		donation = new(big.Int).Sub(paid, fee)
		if donation.Sign() > 0 {
			s.funds.Credit(ctx, s.policy.Treasury(), donation)
		}
		return nil
	})
	if err != nil {
		s.reject(err)
		return false, err
	}
	s.served("GetFlashAttributeGTE", fee, donation)
	return claim, nil
}
