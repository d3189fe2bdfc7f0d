package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"

	"passport/internal/chain"
	"passport/internal/funds"
	"passport/internal/governance"
	jwttoken "passport/internal/jwt_token"
	"passport/internal/ledger/models"
	"passport/internal/ledger/service"
	"passport/internal/ledger/store"
	"passport/internal/signature"
	"passport/pkg/testutil"
)

var (
	testChainID = big.NewInt(31337)
	testLedger  = common.HexToAddress("0x0a11")
	testAdmin   = common.HexToAddress("0xad01")
	testReader  = common.HexToAddress("0xbead")
	testSubject = common.HexToAddress("0x5b1e")
)

type fixture struct {
	router   chi.Router
	tokens   *jwttoken.JWTService
	issuer   common.Address
	intent   func() models.Intent
	signWith func(models.Intent) []byte
}

func newLedgerRouter(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	env := chain.New(chain.WithChainID(testChainID), chain.WithClock(func() time.Time { return now }))
	policy := governance.New(testAdmin, governance.WithTreasury(common.HexToAddress("0x7777")))
	authority, err := signature.New(testChainID, testLedger, common.HexToAddress("0x0a12"), signature.NewMemoryUsedSet())
	if err != nil {
		t.Fatalf("signature authority: %v", err)
	}
	svc, err := service.New(env, store.New(), policy, authority, funds.New(), service.WithAddress(testLedger))
	if err != nil {
		t.Fatalf("ledger service: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	issuer := crypto.PubkeyToAddress(key.PublicKey)
	gov := chain.WithMsg(context.Background(), chain.Msg{Caller: testAdmin})
	mustOK(t, policy.AddIssuer(gov, issuer, common.HexToAddress("0x1a1a")))
	mustOK(t, policy.SetEligibleAttribute(gov, models.TypeCountry, true))
	mustOK(t, policy.SetIssuerAttributePermission(gov, issuer, models.TypeCountry, true))
	mustOK(t, policy.AllowTokenID(gov, 1))
	mustOK(t, policy.GrantRole(gov, governance.RoleReader, testReader))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := jwttoken.NewJWTService("test-signing-key", "passport", "passport-api")
	router := chi.NewRouter()
	New(svc, logger, nil, jwttoken.NewJWTServiceAdapter(tokens)).Register(router)

	return &fixture{
		router: router,
		tokens: tokens,
		issuer: issuer,
		intent: func() models.Intent {
			return models.Intent{
				AttrKeys:   []models.AttributeKey{models.KeyForAccount(testSubject, models.TypeCountry)},
				AttrValues: []common.Hash{models.TypeOf("FR").Hash()},
				AttrTypes:  []models.AttributeType{models.TypeCountry},
				TokenID:    1,
				VerifiedAt: uint64(now.Add(-time.Hour).Unix()),
				IssuedAt:   uint64(now.Add(-time.Minute).Unix()),
				Fee:        new(big.Int),
			}
		},
		signWith: func(in models.Intent) []byte {
			sig, err := signature.SignAttestation(key, testSubject, in, testChainID, testLedger)
			if err != nil {
				t.Fatalf("sign attestation: %v", err)
			}
			return sig
		},
	}
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func (f *fixture) do(t *testing.T, method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != nil {
		token, err := f.tokens.GenerateCallerToken(*caller, time.Hour)
		if err != nil {
			t.Fatalf("generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCallerTokenRequired(t *testing.T) {
	f := newLedgerRouter(t)
	rec := f.do(t, http.MethodGet, "/ledger/paused", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestIssuerWriteThenReaderRead(t *testing.T) {
	f := newLedgerRouter(t)
	in := f.intent()
	rec := f.do(t, http.MethodPost, "/ledger/attributes/issuer", &f.issuer, SetAttributesIssuerRequest{
		Subject:   testSubject,
		Intent:    in,
		IssuerSig: f.signWith(in),
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 writing attributes, got %d: %s", rec.Code, rec.Body.String())
	}

	reader := testReader
	rec = f.do(t, http.MethodGet, "/ledger/attributes/"+testSubject.Hex()+"/COUNTRY", &reader, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 reading attributes, got %d", rec.Code)
	}
	var recs RecordsResponse
	if err := json.NewDecoder(rec.Body).Decode(&recs); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if len(recs.Records) != 1 || recs.Records[0].Issuer != f.issuer {
		t.Fatalf("expected one record by the issuer, got %+v", recs.Records)
	}

	rec = f.do(t, http.MethodGet, "/ledger/attributes/"+testSubject.Hex()+"/COUNTRY/issuers/"+f.issuer.Hex(), &reader, nil)
	var one RecordResponse
	if err := json.NewDecoder(rec.Body).Decode(&one); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if !one.Found || one.Record.Epoch != in.VerifiedAt {
		t.Fatalf("expected the issuer record, got %+v", one)
	}

	rec = f.do(t, http.MethodGet, "/ledger/balances/"+testSubject.Hex()+"/1", &reader, nil)
	var bal BalanceResponse
	if err := json.NewDecoder(rec.Body).Decode(&bal); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if bal.Balance != 1 {
		t.Fatalf("expected passport minted, got balance %d", bal.Balance)
	}
}

func TestReplayedWriteIsRejected(t *testing.T) {
	f := newLedgerRouter(t)
	in := f.intent()
	req := SetAttributesIssuerRequest{Subject: testSubject, Intent: in, IssuerSig: f.signWith(in)}
	if rec := f.do(t, http.MethodPost, "/ledger/attributes/issuer", &f.issuer, req); rec.Code != http.StatusNoContent {
		t.Fatalf("expected first write to succeed, got %d", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/ledger/attributes/issuer", &f.issuer, req)
	if rec.Code < 400 {
		t.Fatalf("expected replay to be rejected, got %d", rec.Code)
	}
}

func TestReaderAccessorsNeedReaderRole(t *testing.T) {
	f := newLedgerRouter(t)
	stranger := common.HexToAddress("0xdead")
	rec := f.do(t, http.MethodGet, "/ledger/attributes/"+testSubject.Hex()+"/COUNTRY", &stranger, nil)
	testutil.AssertError(t, rec, http.StatusForbidden, models.ErrAccessDenied.Message)
}

func TestMalformedInput(t *testing.T) {
	f := newLedgerRouter(t)
	reader := testReader

	rec := f.do(t, http.MethodGet, "/ledger/attributes/not-an-address/COUNTRY", &reader, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad address, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/ledger/balances/"+testSubject.Hex()+"/x", &reader, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad token id, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/ledger/attributes", &reader, map[string]any{"unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/ledger/attributes/issuer", &f.issuer, SetAttributesIssuerRequest{Intent: f.intent()})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without subject, got %d", rec.Code)
	}
}

func TestPauseRequiresPauser(t *testing.T) {
	f := newLedgerRouter(t)
	rec := f.do(t, http.MethodPost, "/ledger/pause", &f.issuer, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 pausing without role, got %d", rec.Code)
	}

	admin := testAdmin
	rec = f.do(t, http.MethodGet, "/ledger/paused", &admin, nil)
	var paused PausedResponse
	if err := json.NewDecoder(rec.Body).Decode(&paused); err != nil {
		t.Fatalf("decode paused: %v", err)
	}
	if paused.Paused {
		t.Fatalf("expected ledger to stay unpaused")
	}
}
