// Package service implements the query router: fee quotes, paid reads with
// the issuer revenue split, flash claims and pull-payment withdrawals.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"passport/internal/chain"
	ledger "passport/internal/ledger/models"
	"passport/internal/platform/tracing"
	"passport/internal/query/metrics"
	"passport/internal/signature"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/attrs"
	"passport/pkg/requestcontext"
)

// Policy is the subset of governance the router prices and pays out with.
type Policy interface {
	EligibleAttribute(t ledger.AttributeType) bool
	EligibleAttributeByDID(t ledger.AttributeType) bool
	PricePerAttributeFixed(t ledger.AttributeType) *big.Int
	PricePerBusinessAttributeFixed(t ledger.AttributeType) *big.Int
	RevSplitIssuer() uint64
	Treasury() common.Address
	IssuerTreasury(issuer common.Address) common.Address
	IsActiveIssuer(issuer common.Address) bool
	IssuerAttributePermission(issuer common.Address, t ledger.AttributeType) bool
	IsPayee(addr common.Address) bool
	Preapproved(addr common.Address) bool
}

// Ledger is the reader-role surface of the attestation ledger.
type Ledger interface {
	Attributes(ctx context.Context, subject common.Address, t ledger.AttributeType) ([]ledger.AttributeRecord, error)
}

// FlashVerifier checks issuer-signed yes/no claims.
type FlashVerifier interface {
	VerifyFlash(q signature.FlashQuery, now time.Time, accept func(issuer common.Address) bool) (common.Address, bool, error)
}

// Funds is the pull-payment ledger fees accrue in.
type Funds interface {
	Credit(ctx context.Context, addr common.Address, amount *big.Int)
	Debit(ctx context.Context, addr common.Address, amount *big.Int) error
	Balance(addr common.Address) *big.Int
}

// Service is the query router.
type Service struct {
	env     *chain.Env
	ledger  Ledger
	policy  Policy
	flash   FlashVerifier
	funds   Funds
	bank    chain.Bank
	address common.Address

	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAddress sets the address the router reads the ledger as. It must hold
// READER_ROLE.
func WithAddress(addr common.Address) Option {
	return func(s *Service) {
		s.address = addr
	}
}

func New(env *chain.Env, l Ledger, policy Policy, flash FlashVerifier, funds Funds, bank chain.Bank, opts ...Option) (*Service, error) {
	if env == nil {
		return nil, errors.New("chain environment is required")
	}
	if l == nil {
		return nil, errors.New("ledger is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if flash == nil {
		return nil, errors.New("flash verifier is required")
	}
	if funds == nil {
		return nil, errors.New("funds ledger is required")
	}
	if bank == nil {
		return nil, errors.New("bank is required")
	}
	s := &Service{env: env, ledger: l, policy: policy, flash: flash, funds: funds, bank: bank}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// =============================================================================
// Fees
// =============================================================================

// QueryFee quotes a read of t about subject. Ineligible and unpriced types are
// free; contract subjects pay the business price.
func (s *Service) QueryFee(subject common.Address, t ledger.AttributeType) *big.Int {
	if !s.eligible(t) {
		return new(big.Int)
	}
	var price *big.Int
	if s.env.IsContract(subject) {
		price = s.policy.PricePerBusinessAttributeFixed(t)
	} else {
		price = s.policy.PricePerAttributeFixed(t)
	}
	if price == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(price)
}

// QueryFeeBulk sums QueryFee over types. Types whose eligibility was revoked
// price at zero instead of failing.
func (s *Service) QueryFeeBulk(subject common.Address, types []ledger.AttributeType) *big.Int {
	total := new(big.Int)
	for _, t := range types {
		total.Add(total, s.QueryFee(subject, t))
	}
	return total
}

func (s *Service) eligible(t ledger.AttributeType) bool {
	return s.policy.EligibleAttribute(t) || s.policy.EligibleAttributeByDID(t)
}

// =============================================================================
// Helpers
// =============================================================================

// activeRecords reads (subject, t) as the router and drops records from
// issuers that are no longer active.
func (s *Service) activeRecords(ctx context.Context, subject common.Address, t ledger.AttributeType) ([]ledger.AttributeRecord, error) {
	recs, err := s.ledger.Attributes(chain.Delegate(ctx, s.address), subject, t)
	if err != nil {
		return nil, err
	}
	out := recs[:0:0]
	for _, r := range recs {
		if s.policy.IsActiveIssuer(r.Issuer) {
			out = append(out, r)
		}
	}
	return out, nil
}

// checkRequester gates contract requesters behind preapproval.
func (s *Service) checkRequester(requester common.Address) error {
	if s.env.IsContract(requester) && !s.policy.Preapproved(requester) {
		return ledger.ErrNotPreapproved
	}
	return nil
}

// resolveBeneficiary maps the zero address to the protocol treasury and
// otherwise requires a payee.
func (s *Service) resolveBeneficiary(beneficiary common.Address) (common.Address, error) {
	if beneficiary == (common.Address{}) {
		return s.policy.Treasury(), nil
	}
	if !s.policy.IsPayee(beneficiary) {
		return common.Address{}, ledger.ErrInvalidBeneficiary
	}
	return beneficiary, nil
}

func (s *Service) reject(err error) {
	if s.metrics != nil && err != nil {
		s.metrics.IncrementRejected(dErrors.Reason(err))
	}
}

func (s *Service) served(entry string, fee, donation *big.Int) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementServed(entry)
	s.metrics.AddFees(fee, donation)
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if subject := attrs.ExtractString(attributes, "subject"); subject != "" {
		tracing.Annotate(ctx, event, attribute.String("subject", subject))
	} else {
		tracing.Annotate(ctx, event)
	}
	if s.logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		attributes = append(attributes, "client_ip", ip)
	}
	args := append(attributes, "event", event, "log_type", "audit", "caller", chain.Caller(ctx).Hex())
	s.logger.InfoContext(ctx, event, args...)
}
