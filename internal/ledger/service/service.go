// Package service implements the attestation ledger: signed attribute writes,
// revocations, migration from a prior ledger and the reader-role accessors.
//
// Every state-changing method runs as one call on the chain environment. A
// failing call leaves no record, balance, fee credit or receipt behind.
package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel/attribute"

	"passport/internal/chain"
	"passport/internal/governance"
	"passport/internal/ledger/metrics"
	"passport/internal/ledger/models"
	"passport/internal/ledger/store"
	"passport/internal/platform/tracing"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/attrs"
	"passport/pkg/requestcontext"
)

// Policy is the permission checker the ledger consults before every write.
type Policy interface {
	HasRole(role governance.Role, principal common.Address) bool
	IsActiveIssuer(issuer common.Address) bool
	IssuerTreasury(issuer common.Address) common.Address
	IssuerAttributePermission(issuer common.Address, t models.AttributeType) bool
	EligibleAttribute(t models.AttributeType) bool
	EligibleAttributeByDID(t models.AttributeType) bool
	EligibleTokenID(id uint64) bool
}

// Verifier turns signatures into verified intents. The ledger never recovers
// signers itself.
type Verifier interface {
	VerifyFreshness(intent models.Intent, now time.Time) error
	RecoverSubject(subjectSig []byte) (common.Address, error)
	RecoverIssuer(subject common.Address, intent models.Intent, issuerSig []byte) (models.VerifiedIntent, error)
	Consume(ctx context.Context, digest common.Hash) error
}

// Funds receives write fees on behalf of issuer treasuries.
type Funds interface {
	Credit(ctx context.Context, addr common.Address, amount *big.Int)
}

// AllowListSyncer projects AML results for a DID onto an external allow-list.
// It runs after the triggering call has committed.
type AllowListSyncer interface {
	// Sync projects did onto the accounts currently holding it.
	Sync(ctx context.Context, did common.Hash, accounts []common.Address)
	// Clear resets accounts that hold no DID.
	Clear(ctx context.Context, accounts []common.Address)
}

// SourceLedger is a prior ledger instance records are migrated from.
type SourceLedger interface {
	RecordsBySubject(ctx context.Context, subject common.Address) ([]models.SourceRecord, error)
}

// Service is the attestation ledger.
type Service struct {
	env      *chain.Env
	store    *store.Store
	policy   Policy
	verifier Verifier
	funds    Funds
	address  common.Address

	pauseMu sync.RWMutex
	paused  bool

	allowList AllowListSyncer
	logger    *slog.Logger
	metrics   *metrics.Metrics
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

// WithAllowListSyncer installs the bridge run after AML and DID changes.
func WithAllowListSyncer(syncer AllowListSyncer) Option {
	return func(s *Service) {
		s.allowList = syncer
	}
}

// WithAddress sets the address the ledger acts as when it calls other ledgers.
func WithAddress(addr common.Address) Option {
	return func(s *Service) {
		s.address = addr
	}
}

func New(env *chain.Env, st *store.Store, policy Policy, verifier Verifier, funds Funds, opts ...Option) (*Service, error) {
	if env == nil {
		return nil, errors.New("chain environment is required")
	}
	if st == nil {
		return nil, errors.New("attestation store is required")
	}
	if policy == nil {
		return nil, errors.New("policy is required")
	}
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if funds == nil {
		return nil, errors.New("funds ledger is required")
	}
	s := &Service{env: env, store: st, policy: policy, verifier: verifier, funds: funds}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address is the address this ledger signs intents against and acts as.
func (s *Service) Address() common.Address {
	return s.address
}

// =============================================================================
// Pause
// =============================================================================

func (s *Service) Pause(ctx context.Context) error {
	return s.setPaused(ctx, "ledger.Pause", true)
}

func (s *Service) Unpause(ctx context.Context) error {
	return s.setPaused(ctx, "ledger.Unpause", false)
}

func (s *Service) Paused() bool {
	s.pauseMu.RLock()
	defer s.pauseMu.RUnlock()
	return s.paused
}

func (s *Service) setPaused(ctx context.Context, name string, paused bool) error {
	err := s.env.Execute(ctx, name, func(ctx context.Context) error {
		if !s.policy.HasRole(governance.RolePauser, chain.Caller(ctx)) {
			return models.ErrNotPauser
		}
		s.pauseMu.Lock()
		prev := s.paused
		s.paused = paused
		s.pauseMu.Unlock()
		chain.Record(ctx, func() {
			s.pauseMu.Lock()
			defer s.pauseMu.Unlock()
			s.paused = prev
		})
		return nil
	})
	if err != nil {
		return err
	}
	s.logAudit(ctx, "ledger_pause_set", "paused", paused)
	return nil
}

func (s *Service) requireNotPaused() error {
	if s.Paused() {
		return models.ErrPaused
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// eligibility reports whether t may be written, and whether it is keyed by DID.
func (s *Service) eligibility(t models.AttributeType) (eligible, byDID bool) {
	byDID = s.policy.EligibleAttributeByDID(t)
	return byDID || s.policy.EligibleAttribute(t), byDID
}

// readKey resolves the key a read of (subject, t) looks at. DID-keyed types
// resolve through the subject's first DID record.
func (s *Service) readKey(subject common.Address, t models.AttributeType) (models.AttributeKey, bool) {
	if !s.policy.EligibleAttributeByDID(t) {
		return models.KeyForAccount(subject, t), true
	}
	did, ok := s.store.SubjectDID(subject)
	if !ok {
		return models.AttributeKey{}, false
	}
	return models.KeyForDID(did, t), true
}

// mint flips the balance of lane to 1 when it is 0. Token id 0 never mints.
func (s *Service) mint(ctx context.Context, lane store.Lane) {
	if lane.TokenID == 0 || s.store.HasBalance(lane) {
		return
	}
	s.store.SetBalance(ctx, lane, true)
	chain.Emit(ctx, transferSingle(chain.Caller(ctx), common.Address{}, lane.Subject, lane.TokenID))
	if s.metrics != nil {
		s.metrics.IncrementMinted()
	}
}

// burnIfEmpty flips the balance of lane to 0 once no record remains in it.
func (s *Service) burnIfEmpty(ctx context.Context, lane store.Lane) bool {
	if s.store.LaneSize(lane) > 0 || !s.store.HasBalance(lane) {
		return false
	}
	s.store.SetBalance(ctx, lane, false)
	chain.Emit(ctx, transferSingle(chain.Caller(ctx), lane.Subject, common.Address{}, lane.TokenID))
	if s.metrics != nil {
		s.metrics.IncrementBurned()
	}
	return true
}

// scheduleSync queues an allow-list projection for did once the call commits.
// Only accounts whose DID record still carries did share its outcome. subject
// is cleared when it holds no DID; a subject holding another DID is left to
// that DID's sync.
func (s *Service) scheduleSync(ctx context.Context, did common.Hash, subject common.Address) {
	if s.allowList == nil || did == (common.Hash{}) {
		return
	}
	chain.AfterCommit(ctx, "allowlist.sync", func(ctx context.Context) error {
		var holders, departed []common.Address
		err := s.env.View(ctx, func(context.Context) error {
			candidates := s.store.AccountsForDID(did)
			if subject != (common.Address{}) && !containsAddress(candidates, subject) {
				candidates = append(candidates, subject)
			}
			for _, account := range candidates {
				current, ok := s.store.SubjectDID(account)
				switch {
				case ok && current == did:
					holders = append(holders, account)
				case !ok:
					departed = append(departed, account)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		s.allowList.Sync(ctx, did, holders)
		s.allowList.Clear(ctx, departed)
		return nil
	})
}

// syncTouched schedules the allow-list for every DID a changed slot affects.
func (s *Service) syncTouched(ctx context.Context, slot store.Slot) {
	switch {
	case slot.Type == models.TypeDID:
		s.scheduleSync(ctx, slot.Record.Value, slot.Subject)
	case slot.Type == models.TypeAML && slot.DID != (common.Hash{}):
		s.scheduleSync(ctx, slot.DID, slot.Subject)
	}
}

func (s *Service) reject(err error) {
	if s.metrics != nil && err != nil {
		s.metrics.IncrementRejected(dErrors.Reason(err))
	}
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

func containsAddress(list []common.Address, addr common.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
