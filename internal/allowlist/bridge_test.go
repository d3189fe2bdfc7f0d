package allowlist_test

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"passport/internal/allowlist"
	"passport/internal/allowlist/mocks"
	"passport/internal/governance"
	ledger "passport/internal/ledger/models"
	"passport/pkg/platform/circuit"
)

// =============================================================================
// Allow-List Bridge Test Suite
// =============================================================================
// Justification for unit tests: the bridge decides registry membership from
// the worst AML score for a DID and must never demote an admin. Its failures
// are swallowed, so the only observable effects are registry state and the
// pending retry set.

type fakeAML struct {
	mu   sync.Mutex
	recs map[common.Hash][]ledger.AttributeRecord
	err  error
}

func (f *fakeAML) AMLRecords(_ context.Context, did common.Hash) ([]ledger.AttributeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.recs[did], nil
}

func (f *fakeAML) set(did common.Hash, scores ...int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var recs []ledger.AttributeRecord
	for i, score := range scores {
		recs = append(recs, ledger.AttributeRecord{
			Value:  common.BigToHash(big.NewInt(score)),
			Issuer: common.BigToAddress(big.NewInt(int64(0x1a + i))),
		})
	}
	f.recs[did] = recs
}

type BridgeSuite struct {
	suite.Suite
	aml      *fakeAML
	policy   *governance.Store
	registry *allowlist.MemoryRegistry
	bridge   *allowlist.Bridge
	did      common.Hash
	alice    common.Address
	bob      common.Address
}

func TestBridgeSuite(t *testing.T) {
	suite.Run(t, new(BridgeSuite))
}

func (s *BridgeSuite) SetupTest() {
	s.aml = &fakeAML{recs: make(map[common.Hash][]ledger.AttributeRecord)}
	s.policy = governance.New(common.HexToAddress("0xad01"))
	s.registry = allowlist.NewMemoryRegistry()
	var err error
	s.bridge, err = allowlist.NewBridge(s.aml, s.policy, s.registry)
	s.Require().NoError(err)
	s.did = common.HexToHash("0xd1d")
	s.alice = common.HexToAddress("0xa11ce")
	s.bob = common.HexToAddress("0xb0b")
}

func (s *BridgeSuite) status(account common.Address) allowlist.Status {
	st, err := s.registry.Status(context.Background(), account)
	s.Require().NoError(err)
	return st
}

func (s *BridgeSuite) TestNewBridge() {
	_, err := allowlist.NewBridge(nil, s.policy, s.registry)
	s.ErrorContains(err, "AML reader is required")
	_, err = allowlist.NewBridge(s.aml, nil, s.registry)
	s.ErrorContains(err, "policy is required")
	_, err = allowlist.NewBridge(s.aml, s.policy, nil)
	s.ErrorContains(err, "registry is required")
}

// =============================================================================
// Target Tests
// =============================================================================

func (s *BridgeSuite) TestTarget() {
	tests := []struct {
		name   string
		scores []int64
		want   allowlist.Status
	}{
		{"no AML record", nil, allowlist.StatusNone},
		{"below threshold", []int64{3}, allowlist.StatusAllowed},
		{"at threshold", []int64{5}, allowlist.StatusAllowed},
		{"above threshold", []int64{6}, allowlist.StatusNone},
		{"worst issuer decides", []int64{3, 6, 1}, allowlist.StatusNone},
		{"all issuers below", []int64{3, 1}, allowlist.StatusAllowed},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.aml.set(s.did, tt.scores...)
			got, err := s.bridge.Target(context.Background(), s.did)
			s.Require().NoError(err)
			s.Equal(tt.want, got)
		})
	}
}

func (s *BridgeSuite) TestTargetFollowsThreshold() {
	s.aml.set(s.did, 6)
	gov := governanceCtx()
	s.Require().NoError(s.policy.SetAMLThreshold(gov, big.NewInt(6)))

	got, err := s.bridge.Target(context.Background(), s.did)
	s.Require().NoError(err)
	s.Equal(allowlist.StatusAllowed, got)
}

// =============================================================================
// Sync Tests
// =============================================================================

func (s *BridgeSuite) TestSyncUpdatesEveryAccountBehindDID() {
	ctx := context.Background()
	s.aml.set(s.did, 3)
	s.bridge.Sync(ctx, s.did, []common.Address{s.alice, s.bob})
	s.Equal(allowlist.StatusAllowed, s.status(s.alice))
	s.Equal(allowlist.StatusAllowed, s.status(s.bob))

	s.aml.set(s.did, 3, 6)
	s.bridge.Sync(ctx, s.did, []common.Address{s.alice, s.bob})
	s.Equal(allowlist.StatusNone, s.status(s.alice))
	s.Equal(allowlist.StatusNone, s.status(s.bob))
}

func (s *BridgeSuite) TestSyncNeverDowngradesAdmin() {
	ctx := context.Background()
	s.Require().NoError(s.registry.SetStatus(ctx, s.alice, allowlist.StatusAdmin))

	s.aml.set(s.did, 9)
	s.bridge.Sync(ctx, s.did, []common.Address{s.alice})
	s.Equal(allowlist.StatusAdmin, s.status(s.alice))

	s.aml.set(s.did, 1)
	s.bridge.Sync(ctx, s.did, []common.Address{s.alice})
	s.Equal(allowlist.StatusAdmin, s.status(s.alice))
}

func (s *BridgeSuite) TestSyncSkipsAccountsAlreadyInPlace() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	bridge, err := allowlist.NewBridge(s.aml, s.policy, registry)
	s.Require().NoError(err)

	s.aml.set(s.did, 2)
	registry.EXPECT().Status(gomock.Any(), s.alice).Return(allowlist.StatusAllowed, nil)

	bridge.Sync(context.Background(), s.did, []common.Address{s.alice})
	s.Zero(bridge.Pending())
}

func (s *BridgeSuite) TestReaderFailureIsSwallowedAndRetried() {
	ctx := context.Background()
	s.aml.set(s.did, 3)
	s.aml.err = errors.New("ledger unavailable")

	s.NotPanics(func() { s.bridge.Sync(ctx, s.did, []common.Address{s.alice}) })
	s.Equal(1, s.bridge.Pending())
	s.Equal(allowlist.StatusNone, s.status(s.alice))

	s.aml.err = nil
	s.bridge.Sync(ctx, common.HexToHash("0xd2d"), nil)
	s.Zero(s.bridge.Pending())
	s.Equal(allowlist.StatusAllowed, s.status(s.alice))
}

func (s *BridgeSuite) TestRegistryOutageOpensCircuitAndFlushesOnRecovery() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))
	bridge, err := allowlist.NewBridge(s.aml, s.policy, registry, allowlist.WithBreaker(breaker))
	s.Require().NoError(err)

	other := common.HexToHash("0xd2d")
	s.aml.set(s.did, 3)
	s.aml.set(other, 8)

	gomock.InOrder(
		registry.EXPECT().Status(gomock.Any(), s.alice).Return(allowlist.Status(""), errors.New("connection refused")),
		registry.EXPECT().Status(gomock.Any(), s.bob).Return(allowlist.StatusNone, nil),
		registry.EXPECT().Status(gomock.Any(), s.alice).Return(allowlist.StatusNone, nil),
		registry.EXPECT().SetStatus(gomock.Any(), s.alice, allowlist.StatusAllowed).Return(nil),
	)

	ctx := context.Background()
	bridge.Sync(ctx, s.did, []common.Address{s.alice})
	s.True(breaker.IsOpen())
	s.Equal(1, bridge.Pending())

	bridge.Sync(ctx, other, []common.Address{s.bob})
	s.False(breaker.IsOpen())
	s.Zero(bridge.Pending())
}

func (s *BridgeSuite) TestProtectedStatusRaceIsIgnored() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	bridge, err := allowlist.NewBridge(s.aml, s.policy, registry)
	s.Require().NoError(err)

	s.aml.set(s.did, 9)
	registry.EXPECT().Status(gomock.Any(), s.alice).Return(allowlist.StatusAllowed, nil)
	registry.EXPECT().SetStatus(gomock.Any(), s.alice, allowlist.StatusNone).Return(allowlist.ErrProtectedStatus)

	bridge.Sync(context.Background(), s.did, []common.Address{s.alice})
	s.Zero(bridge.Pending())
}

// =============================================================================
// Clear Tests
// =============================================================================

func (s *BridgeSuite) TestClearResetsAccountsButKeepsAdmin() {
	ctx := context.Background()
	s.Require().NoError(s.registry.SetStatus(ctx, s.alice, allowlist.StatusAllowed))
	s.Require().NoError(s.registry.SetStatus(ctx, s.bob, allowlist.StatusAdmin))

	s.bridge.Clear(ctx, []common.Address{s.alice, s.bob})
	s.Equal(allowlist.StatusNone, s.status(s.alice))
	s.Equal(allowlist.StatusAdmin, s.status(s.bob))
	s.Zero(s.bridge.Pending())
}

func (s *BridgeSuite) TestClearFailureIsRetried() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	bridge, err := allowlist.NewBridge(s.aml, s.policy, registry)
	s.Require().NoError(err)

	other := common.HexToHash("0xd2d")
	s.aml.set(other, 8)

	gomock.InOrder(
		registry.EXPECT().Status(gomock.Any(), s.alice).Return(allowlist.Status(""), errors.New("connection refused")),
		registry.EXPECT().Status(gomock.Any(), s.bob).Return(allowlist.StatusNone, nil),
		registry.EXPECT().Status(gomock.Any(), s.alice).Return(allowlist.StatusAllowed, nil),
		registry.EXPECT().SetStatus(gomock.Any(), s.alice, allowlist.StatusNone).Return(nil),
	)

	ctx := context.Background()
	bridge.Clear(ctx, []common.Address{s.alice})
	s.Equal(1, bridge.Pending())

	bridge.Sync(ctx, other, []common.Address{s.bob})
	s.Zero(bridge.Pending())
}

func (s *BridgeSuite) TestClearDropsStaleSyncRetry() {
	ctx := context.Background()
	s.aml.set(s.did, 3)
	s.aml.err = errors.New("ledger unavailable")
	s.bridge.Sync(ctx, s.did, []common.Address{s.alice})
	s.Require().Equal(1, s.bridge.Pending())

	s.aml.err = nil
	s.bridge.Clear(ctx, []common.Address{s.alice})
	s.Zero(s.bridge.Pending())
	s.Equal(allowlist.StatusNone, s.status(s.alice), "a retry for the old DID must not re-allow the account")
}
