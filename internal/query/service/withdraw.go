package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	ledger "passport/internal/ledger/models"
	dErrors "passport/pkg/domain-errors"
)

// Withdraw pays amount of beneficiary's accrued balance out through the bank.
// The balance is debited before the transfer; a failed transfer, including
// one whose recipient tries to call back in, reverts the debit.
func (s *Service) Withdraw(ctx context.Context, beneficiary common.Address, amount *big.Int) error {
	err := s.env.Execute(ctx, "query.Withdraw", func(ctx context.Context) error {
		if beneficiary == (common.Address{}) {
			return ledger.ErrInvalidAccount
		}
		if !s.policy.IsPayee(beneficiary) {
			return ledger.ErrWithdrawalAddress
		}
		if err := s.funds.Debit(ctx, beneficiary, amount); err != nil {
			return err
		}
		chain.Emit(ctx, withdrawReceipt(chain.Caller(ctx), beneficiary, amount))
		if err := s.bank.Transfer(ctx, beneficiary, new(big.Int).Set(amount)); err != nil {
			if s.logger != nil {
				s.logger.WarnContext(ctx, "withdrawal transfer failed",
					"beneficiary", beneficiary.Hex(),
					"amount", amount.String(),
					"error", err,
				)
			}
			return ledger.ErrFailedToTransfer
		}
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncrementWithdrawalFailed(dErrors.Reason(err))
		}
		return err
	}
	if s.metrics != nil {
		s.metrics.IncrementWithdrawal()
	}
	s.logAudit(ctx, "funds_withdrawn", "beneficiary", beneficiary.Hex(), "amount", amount.String())
	return nil
}
