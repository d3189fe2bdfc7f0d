package signature

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"passport/internal/chain"
	"passport/internal/ledger/models"
	"passport/internal/signature/mocks"
	dErrors "passport/pkg/domain-errors"
)

// =============================================================================
// Signature Authority Test Suite
// =============================================================================
// Justification for unit tests: payload encoding, recovery and freshness are
// the whole authorization story for the issuer-signed write path.

type AuthoritySuite struct {
	suite.Suite
	issuerKey  *ecdsa.PrivateKey
	subjectKey *ecdsa.PrivateKey
	subject    common.Address
	ledger     common.Address
	router     common.Address
	chainID    *big.Int
	authority  *Authority
	now        time.Time
}

func TestAuthoritySuite(t *testing.T) {
	suite.Run(t, new(AuthoritySuite))
}

func (s *AuthoritySuite) SetupTest() {
	var err error
	s.issuerKey, err = crypto.GenerateKey()
	s.Require().NoError(err)
	s.subjectKey, err = crypto.GenerateKey()
	s.Require().NoError(err)
	s.subject = crypto.PubkeyToAddress(s.subjectKey.PublicKey)
	s.ledger = common.HexToAddress("0x0a11")
	s.router = common.HexToAddress("0x0a12")
	s.chainID = big.NewInt(31337)
	s.now = time.Unix(1_760_000_000, 0)
	s.authority, err = New(s.chainID, s.ledger, s.router, NewMemoryUsedSet())
	s.Require().NoError(err)
}

func (s *AuthoritySuite) intent() models.Intent {
	return models.Intent{
		AttrKeys:   []models.AttributeKey{models.KeyForAccount(s.subject, models.TypeCountry)},
		AttrValues: []common.Hash{crypto.Keccak256Hash([]byte("FR"))},
		AttrTypes:  []models.AttributeType{models.TypeCountry},
		TokenID:    1,
		VerifiedAt: uint64(s.now.Add(-time.Hour).Unix()),
		IssuedAt:   uint64(s.now.Add(-time.Minute).Unix()),
		Fee:        big.NewInt(10),
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func (s *AuthoritySuite) TestNew() {
	s.Run("nil used set returns error", func() {
		_, err := New(s.chainID, s.ledger, s.router, nil)
		s.Error(err)
		s.Contains(err.Error(), "used signature set is required")
	})
	s.Run("nil chain id returns error", func() {
		_, err := New(nil, s.ledger, s.router, NewMemoryUsedSet())
		s.Error(err)
	})
}

// =============================================================================
// Recovery Tests
// =============================================================================

func (s *AuthoritySuite) TestRecoverIssuer() {
	intent := s.intent()

	s.Run("recovers the signing issuer", func() {
		sig, err := SignAttestation(s.issuerKey, s.subject, intent, s.chainID, s.ledger)
		s.Require().NoError(err)
		verified, err := s.authority.RecoverIssuer(s.subject, intent, sig)
		s.Require().NoError(err)
		s.Equal(crypto.PubkeyToAddress(s.issuerKey.PublicKey), verified.Issuer)
		s.Equal(s.subject, verified.Subject)
		s.NotEqual(common.Hash{}, verified.Digest)
	})

	s.Run("raw recovery id is accepted", func() {
		sig, err := SignAttestation(s.issuerKey, s.subject, intent, s.chainID, s.ledger)
		s.Require().NoError(err)
		sig[64] -= 27
		verified, err := s.authority.RecoverIssuer(s.subject, intent, sig)
		s.Require().NoError(err)
		s.Equal(crypto.PubkeyToAddress(s.issuerKey.PublicKey), verified.Issuer)
	})

	s.Run("bad length is rejected", func() {
		_, err := s.authority.RecoverIssuer(s.subject, intent, make([]byte, 64))
		s.ErrorIs(err, ErrInvalidSignature)
	})

	s.Run("signature for another chain or ledger recovers a different signer", func() {
		issuer := crypto.PubkeyToAddress(s.issuerKey.PublicKey)
		for _, tc := range []struct {
			name    string
			chainID *big.Int
			ledger  common.Address
		}{
			{"other chain", big.NewInt(1), s.ledger},
			{"other ledger", s.chainID, common.HexToAddress("0xbad")},
		} {
			sig, err := SignAttestation(s.issuerKey, s.subject, intent, tc.chainID, tc.ledger)
			s.Require().NoError(err, tc.name)
			verified, err := s.authority.RecoverIssuer(s.subject, intent, sig)
			if err == nil {
				s.NotEqual(issuer, verified.Issuer, tc.name)
			}
		}
	})

	s.Run("subject signature recovers the subject", func() {
		sig, err := SignSubject(s.subjectKey)
		s.Require().NoError(err)
		got, err := s.authority.RecoverSubject(sig)
		s.Require().NoError(err)
		s.Equal(s.subject, got)
	})
}

// =============================================================================
// Freshness Tests
// =============================================================================

func (s *AuthoritySuite) TestVerifyFreshness() {
	cases := []struct {
		name   string
		mutate func(*models.Intent)
		want   error
	}{
		{"fresh", func(*models.Intent) {}, nil},
		{"issuedAt zero", func(i *models.Intent) { i.IssuedAt = 0 }, ErrIssuedAtZero},
		{"issuedAt in future", func(i *models.Intent) { i.IssuedAt = uint64(s.now.Unix() + 1) }, ErrInvalidIssuedAt},
		{"issuedAt exactly at window edge", func(i *models.Intent) { i.IssuedAt = uint64(s.now.Add(-6 * time.Hour).Unix()) }, nil},
		{"issuedAt older than six hours", func(i *models.Intent) { i.IssuedAt = uint64(s.now.Add(-6*time.Hour - time.Second).Unix()) }, ErrExpiredIssuedAt},
		{"verifiedAt zero", func(i *models.Intent) { i.VerifiedAt = 0 }, ErrVerifiedAtZero},
		{"verifiedAt in future", func(i *models.Intent) { i.VerifiedAt = uint64(s.now.Unix() + 60) }, ErrInvalidVerifiedAt},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			intent := s.intent()
			tc.mutate(&intent)
			err := s.authority.VerifyFreshness(intent, s.now)
			if tc.want == nil {
				s.NoError(err)
				return
			}
			s.ErrorIs(err, tc.want)
		})
	}
}

// =============================================================================
// Replay Tests
// =============================================================================

func (s *AuthoritySuite) TestConsume() {
	ctx := context.Background()
	digest := common.HexToHash("0x01")

	s.Require().NoError(s.authority.Consume(ctx, digest))
	s.ErrorIs(s.authority.Consume(ctx, digest), ErrSignatureAlreadyUsed)

	s.Run("mark is rolled back with a failed call", func() {
		env := chain.New()
		other := common.HexToHash("0x02")
		err := env.Execute(ctx, "write", func(ctx context.Context) error {
			s.Require().NoError(s.authority.Consume(ctx, other))
			return errors.New("later check failed")
		})
		s.Error(err)
		used, err := s.authority.IsUsed(ctx, other)
		s.Require().NoError(err)
		s.False(used)
	})
}

func (s *AuthoritySuite) TestConsumeWithUnavailableReplaySet() {
	ctrl := gomock.NewController(s.T())
	used := mocks.NewMockUsedSet(ctrl)
	authority, err := New(s.chainID, s.ledger, s.router, used)
	s.Require().NoError(err)

	digest := common.HexToHash("0x03")
	used.EXPECT().MarkUsed(gomock.Any(), digest).Return(errors.New("connection refused"))

	err = authority.Consume(context.Background(), digest)
	s.Require().Error(err)
	s.Equal(ErrReplaySetUnavailable.Message, dErrors.Reason(err))
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
}

// =============================================================================
// Flash Tests
// =============================================================================

func (s *AuthoritySuite) TestVerifyFlash() {
	issuer := crypto.PubkeyToAddress(s.issuerKey.PublicKey)
	accept := func(a common.Address) bool { return a == issuer }
	base := FlashQuery{
		Subject:       s.subject,
		Requester:     common.HexToAddress("0xda99"),
		AttributeType: models.TypeAML,
		IssuedAt:      uint64(s.now.Add(-time.Minute).Unix()),
		Threshold:     big.NewInt(5),
		Fee:           big.NewInt(3),
	}

	for _, claim := range []bool{true, false} {
		q := base
		sig, err := SignFlash(s.issuerKey, q, claim, s.chainID, s.router)
		s.Require().NoError(err)
		q.Signature = sig

		gotIssuer, gotClaim, err := s.authority.VerifyFlash(q, s.now, accept)
		s.Require().NoError(err)
		s.Equal(issuer, gotIssuer)
		s.Equal(claim, gotClaim)
	}

	s.Run("unknown signer is rejected", func() {
		other, err := crypto.GenerateKey()
		s.Require().NoError(err)
		q := base
		q.Signature, err = SignFlash(other, q, true, s.chainID, s.router)
		s.Require().NoError(err)
		_, _, err = s.authority.VerifyFlash(q, s.now, accept)
		s.ErrorIs(err, models.ErrInvalidIssuer)
	})

	s.Run("stale flash claim is rejected", func() {
		q := base
		q.IssuedAt = uint64(s.now.Add(-7 * time.Hour).Unix())
		q.Signature = make([]byte, Length)
		_, _, err := s.authority.VerifyFlash(q, s.now, accept)
		s.ErrorIs(err, ErrExpiredIssuedAt)
	})
}
