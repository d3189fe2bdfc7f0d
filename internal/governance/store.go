// Package governance is the policy store: roles, issuers, eligible attribute
// types, token ids, pricing, revenue split, treasury and the AML threshold.
//
// Every mutator reads the caller from the call context and requires
// GOVERNANCE_ROLE. Reads never check roles.
package governance

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"passport/internal/chain"
	"passport/internal/ledger/models"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/orderedset"
	"passport/pkg/requestcontext"
)

// Role is a capability granted to a principal.
type Role string

const (
	RoleGovernance Role = "GOVERNANCE_ROLE"
	RoleReader     Role = "READER_ROLE"
	RolePauser     Role = "PAUSER_ROLE"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleGovernance, RoleReader, RolePauser:
		return true
	}
	return false
}

var (
	ErrInvalidRole          = dErrors.New(dErrors.CodeValidation, "INVALID_ROLE")
	ErrCannotRevokeOwnRole  = dErrors.New(dErrors.CodeForbidden, "CANNOT_REVOKE_OWN_ROLE")
	ErrInvalidRevSplit      = dErrors.New(dErrors.CodeValidation, "INVALID_REV_SPLIT")
	ErrIncrementTokenID     = dErrors.New(dErrors.CodeValidation, "INCREMENT_TOKENID_BY_1")
	ErrIssuerExists         = dErrors.New(dErrors.CodeConflict, "ISSUER_ALREADY_EXISTS")
	ErrIssuerNotFound       = dErrors.New(dErrors.CodeNotFound, "ISSUER_NOT_FOUND")
	ErrInvalidTreasury      = dErrors.New(dErrors.CodeValidation, "TREASURY_ADDRESS_ZERO")
	ErrInvalidIssuerAddress = dErrors.New(dErrors.CodeValidation, "ISSUER_ADDRESS_ZERO")
	ErrInvalidPrice         = dErrors.New(dErrors.CodeValidation, "INVALID_PRICE")
)

// Issuer is a governance-approved attester. Deleted issuers keep their entry
// so their treasury stays a payee.
type Issuer struct {
	Address  common.Address `json:"address"`
	Treasury common.Address `json:"treasury"`
	Active   bool           `json:"active"`
	Deleted  bool           `json:"deleted"`
}

type roleKey struct {
	role      Role
	principal common.Address
}

type permissionKey struct {
	issuer common.Address
	typ    models.AttributeType
}

// Store is the in-memory policy store.
type Store struct {
	mu sync.RWMutex

	roles          map[roleKey]struct{}
	issuers        *orderedset.Set[common.Address]
	issuerInfo     map[common.Address]Issuer
	permissions    map[permissionKey]struct{}
	eligible       *orderedset.Set[models.AttributeType]
	eligibleByDID  *orderedset.Set[models.AttributeType]
	maxTokenID     uint64
	prices         map[models.AttributeType]*big.Int
	businessPrices map[models.AttributeType]*big.Int
	revSplit       uint64
	treasury       common.Address
	preapproved    map[common.Address]struct{}
	amlThreshold   *big.Int

	logger *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithTreasury sets the initial protocol treasury.
func WithTreasury(addr common.Address) Option {
	return func(s *Store) {
		s.treasury = addr
	}
}

// WithAMLThreshold sets the initial AML threshold.
func WithAMLThreshold(v uint64) Option {
	return func(s *Store) {
		s.amlThreshold = new(big.Int).SetUint64(v)
	}
}

// New creates a policy store with admin holding GOVERNANCE_ROLE. The revenue
// split starts at 50 and the AML threshold at 5.
func New(admin common.Address, opts ...Option) *Store {
	s := &Store{
		roles:          map[roleKey]struct{}{{RoleGovernance, admin}: {}},
		issuers:        orderedset.New[common.Address](),
		issuerInfo:     make(map[common.Address]Issuer),
		permissions:    make(map[permissionKey]struct{}),
		eligible:       orderedset.New[models.AttributeType](),
		eligibleByDID:  orderedset.New[models.AttributeType](),
		prices:         make(map[models.AttributeType]*big.Int),
		businessPrices: make(map[models.AttributeType]*big.Int),
		revSplit:       50,
		preapproved:    make(map[common.Address]struct{}),
		amlThreshold:   big.NewInt(5),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// Roles
// =============================================================================

func (s *Store) HasRole(role Role, principal common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.roles[roleKey{role, principal}]
	return ok
}

func (s *Store) GrantRole(ctx context.Context, role Role, principal common.Address) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}
	return s.mutate(ctx, "role_granted", func() func() {
		k := roleKey{role, principal}
		if _, ok := s.roles[k]; ok {
			return nil
		}
		s.roles[k] = struct{}{}
		return func() { delete(s.roles, k) }
	}, "role", string(role), "principal", principal.Hex())
}

func (s *Store) RevokeRole(ctx context.Context, role Role, principal common.Address) error {
	if !role.IsValid() {
		return ErrInvalidRole
	}
	if err := s.authorize(ctx); err != nil {
		return err
	}
	if role == RoleGovernance && principal == chain.Caller(ctx) {
		return ErrCannotRevokeOwnRole
	}
	return s.mutate(ctx, "role_revoked", func() func() {
		k := roleKey{role, principal}
		if _, ok := s.roles[k]; !ok {
			return nil
		}
		delete(s.roles, k)
		return func() { s.roles[k] = struct{}{} }
	}, "role", string(role), "principal", principal.Hex())
}

// =============================================================================
// Issuers
// =============================================================================

// AddIssuer registers an active issuer paying out to treasury.
func (s *Store) AddIssuer(ctx context.Context, issuer, treasury common.Address) error {
	if issuer == (common.Address{}) {
		return ErrInvalidIssuerAddress
	}
	if treasury == (common.Address{}) {
		return ErrInvalidTreasury
	}
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issuers.Contains(issuer) {
		return ErrIssuerExists
	}
	prev, hadPrev := s.issuerInfo[issuer]
	s.issuers.Add(issuer)
	s.issuerInfo[issuer] = Issuer{Address: issuer, Treasury: treasury, Active: true}
	chain.Record(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.issuers.Remove(issuer)
		if hadPrev {
			s.issuerInfo[issuer] = prev
		} else {
			delete(s.issuerInfo, issuer)
		}
	})
	s.logAudit(ctx, "issuer_added", "issuer", issuer.Hex(), "treasury", treasury.Hex())
	return nil
}

// DeleteIssuer removes issuer from the issuer list by swap-delete.
func (s *Store) DeleteIssuer(ctx context.Context, issuer common.Address) error {
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.issuers.Contains(issuer) {
		return ErrIssuerNotFound
	}
	prevOrder := s.issuers.Clone()
	prev := s.issuerInfo[issuer]
	s.issuers.Remove(issuer)
	s.issuerInfo[issuer] = Issuer{Address: issuer, Treasury: prev.Treasury, Deleted: true}
	chain.Record(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.issuers = prevOrder
		s.issuerInfo[issuer] = prev
	})
	s.logAudit(ctx, "issuer_deleted", "issuer", issuer.Hex())
	return nil
}

// SetIssuerStatus activates or deactivates a listed issuer.
func (s *Store) SetIssuerStatus(ctx context.Context, issuer common.Address, active bool) error {
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.issuerInfo[issuer]
	if !ok || info.Deleted {
		return ErrIssuerNotFound
	}
	prev := info
	info.Active = active
	s.issuerInfo[issuer] = info
	chain.Record(ctx, s.restoreIssuer(issuer, prev))
	s.logAudit(ctx, "issuer_status_set", "issuer", issuer.Hex(), "active", active)
	return nil
}

// SetIssuerTreasury moves an issuer's payouts to treasury.
func (s *Store) SetIssuerTreasury(ctx context.Context, issuer, treasury common.Address) error {
	if treasury == (common.Address{}) {
		return ErrInvalidTreasury
	}
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	info, ok := s.issuerInfo[issuer]
	if !ok || info.Deleted {
		return ErrIssuerNotFound
	}
	prev := info
	info.Treasury = treasury
	s.issuerInfo[issuer] = info
	chain.Record(ctx, s.restoreIssuer(issuer, prev))
	s.logAudit(ctx, "issuer_treasury_set", "issuer", issuer.Hex(), "treasury", treasury.Hex())
	return nil
}

func (s *Store) restoreIssuer(issuer common.Address, prev Issuer) func() {
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.issuerInfo[issuer] = prev
	}
}

func (s *Store) IsActiveIssuer(issuer common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.issuerInfo[issuer]
	return ok && info.Active && !info.Deleted
}

// IssuerTreasury returns the treasury of issuer, or the zero address.
func (s *Store) IssuerTreasury(issuer common.Address) common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.issuerInfo[issuer].Treasury
}

// Issuers returns the issuer list in position order.
func (s *Store) Issuers() []Issuer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Issuer, 0, s.issuers.Len())
	for _, a := range s.issuers.Values() {
		out = append(out, s.issuerInfo[a])
	}
	return out
}

func (s *Store) SetIssuerAttributePermission(ctx context.Context, issuer common.Address, t models.AttributeType, allowed bool) error {
	return s.mutate(ctx, "issuer_permission_set", func() func() {
		k := permissionKey{issuer, t}
		_, had := s.permissions[k]
		if had == allowed {
			return nil
		}
		if allowed {
			s.permissions[k] = struct{}{}
			return func() { delete(s.permissions, k) }
		}
		delete(s.permissions, k)
		return func() { s.permissions[k] = struct{}{} }
	}, "issuer", issuer.Hex(), "attribute_type", t.String(), "allowed", allowed)
}

func (s *Store) IssuerAttributePermission(issuer common.Address, t models.AttributeType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.permissions[permissionKey{issuer, t}]
	return ok
}

// =============================================================================
// Eligibility
// =============================================================================

func (s *Store) SetEligibleAttribute(ctx context.Context, t models.AttributeType, eligible bool) error {
	return s.mutate(ctx, "eligible_attribute_set", s.toggle(s.eligible, t, eligible),
		"attribute_type", t.String(), "eligible", eligible)
}

func (s *Store) SetEligibleAttributeByDID(ctx context.Context, t models.AttributeType, eligible bool) error {
	return s.mutate(ctx, "eligible_attribute_by_did_set", s.toggle(s.eligibleByDID, t, eligible),
		"attribute_type", t.String(), "eligible", eligible)
}

func (s *Store) toggle(set *orderedset.Set[models.AttributeType], t models.AttributeType, on bool) func() func() {
	return func() func() {
		if on == set.Contains(t) {
			return nil
		}
		prevOrder := set.Values()
		if on {
			set.Add(t)
		} else {
			set.Remove(t)
		}
		return func() {
			for _, v := range set.Values() {
				set.Remove(v)
			}
			for _, v := range prevOrder {
				set.Add(v)
			}
		}
	}
}

func (s *Store) EligibleAttribute(t models.AttributeType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eligible.Contains(t)
}

func (s *Store) EligibleAttributeByDID(t models.AttributeType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eligibleByDID.Contains(t)
}

// EligibleAttributes returns the eligible types in position order.
func (s *Store) EligibleAttributes() []models.AttributeType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eligible.Values()
}

func (s *Store) EligibleAttributesByDID() []models.AttributeType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.eligibleByDID.Values()
}

// AllowTokenID makes id eligible. Ids are allocated in sequence starting at 1.
func (s *Store) AllowTokenID(ctx context.Context, id uint64) error {
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.maxTokenID+1 {
		return ErrIncrementTokenID
	}
	prev := s.maxTokenID
	s.maxTokenID = id
	chain.Record(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.maxTokenID = prev
	})
	s.logAudit(ctx, "token_id_allowed", "token_id", id)
	return nil
}

// EligibleTokenID reports whether id is in 1..max.
func (s *Store) EligibleTokenID(id uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return id >= 1 && id <= s.maxTokenID
}

// =============================================================================
// Pricing and payouts
// =============================================================================

func (s *Store) SetAttributePriceFixed(ctx context.Context, t models.AttributeType, price *big.Int) error {
	return s.setPrice(ctx, s.prices, "attribute_price_set", t, price)
}

func (s *Store) SetBusinessAttributePriceFixed(ctx context.Context, t models.AttributeType, price *big.Int) error {
	return s.setPrice(ctx, s.businessPrices, "business_attribute_price_set", t, price)
}

func (s *Store) setPrice(ctx context.Context, table map[models.AttributeType]*big.Int, event string, t models.AttributeType, price *big.Int) error {
	if price == nil || price.Sign() < 0 {
		return ErrInvalidPrice
	}
	return s.mutate(ctx, event, func() func() {
		prev, had := table[t]
		table[t] = new(big.Int).Set(price)
		return func() {
			if had {
				table[t] = prev
			} else {
				delete(table, t)
			}
		}
	}, "attribute_type", t.String(), "price", price.String())
}

// PricePerAttributeFixed returns the account price of t, zero when unpriced.
func (s *Store) PricePerAttributeFixed(t models.AttributeType) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyOrZero(s.prices[t])
}

// PricePerBusinessAttributeFixed returns the contract price of t, zero when unpriced.
func (s *Store) PricePerBusinessAttributeFixed(t models.AttributeType) *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyOrZero(s.businessPrices[t])
}

// SetRevSplitIssuer sets the issuer share of query fees, in percent.
func (s *Store) SetRevSplitIssuer(ctx context.Context, pct uint64) error {
	if pct > 100 {
		return ErrInvalidRevSplit
	}
	return s.mutate(ctx, "rev_split_set", func() func() {
		prev := s.revSplit
		s.revSplit = pct
		return func() { s.revSplit = prev }
	}, "rev_split", pct)
}

func (s *Store) RevSplitIssuer() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revSplit
}

func (s *Store) SetTreasury(ctx context.Context, addr common.Address) error {
	if addr == (common.Address{}) {
		return ErrInvalidTreasury
	}
	return s.mutate(ctx, "treasury_set", func() func() {
		prev := s.treasury
		s.treasury = addr
		return func() { s.treasury = prev }
	}, "treasury", addr.Hex())
}

func (s *Store) Treasury() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treasury
}

// IsPayee reports whether addr may receive query revenue or withdraw: the
// protocol treasury or the treasury of any known issuer.
func (s *Store) IsPayee(addr common.Address) bool {
	if addr == (common.Address{}) {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if addr == s.treasury {
		return true
	}
	for _, info := range s.issuerInfo {
		if info.Treasury == addr {
			return true
		}
	}
	return false
}

// SetPreapproval allows or blocks a contract requester from paid queries.
func (s *Store) SetPreapproval(ctx context.Context, addr common.Address, approved bool) error {
	return s.mutate(ctx, "preapproval_set", func() func() {
		_, had := s.preapproved[addr]
		if had == approved {
			return nil
		}
		if approved {
			s.preapproved[addr] = struct{}{}
			return func() { delete(s.preapproved, addr) }
		}
		delete(s.preapproved, addr)
		return func() { s.preapproved[addr] = struct{}{} }
	}, "account", addr.Hex(), "approved", approved)
}

func (s *Store) Preapproved(addr common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.preapproved[addr]
	return ok
}

func (s *Store) SetAMLThreshold(ctx context.Context, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return ErrInvalidPrice
	}
	return s.mutate(ctx, "aml_threshold_set", func() func() {
		prev := s.amlThreshold
		s.amlThreshold = new(big.Int).Set(v)
		return func() { s.amlThreshold = prev }
	}, "threshold", v.String())
}

func (s *Store) AMLThreshold() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.amlThreshold)
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Store) authorize(ctx context.Context) error {
	if !s.HasRole(RoleGovernance, chain.Caller(ctx)) {
		return models.ErrNotGovernance
	}
	return nil
}

// mutate runs apply under the write lock after the governance check. apply
// returns the undo for its change, or nil when nothing changed.
func (s *Store) mutate(ctx context.Context, event string, apply func() func(), attributes ...any) error {
	if err := s.authorize(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	undo := apply()
	s.mu.Unlock()
	if undo != nil {
		chain.Record(ctx, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			undo()
		})
	}
	s.logAudit(ctx, event, attributes...)
	return nil
}

func (s *Store) logAudit(ctx context.Context, event string, attributes ...any) {
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

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
