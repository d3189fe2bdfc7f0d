package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"passport/internal/chain"
	"passport/internal/governance"
	jwttoken "passport/internal/jwt_token"
	"passport/internal/ledger/models"
	"passport/pkg/testutil"
)

var (
	testAdmin    = common.HexToAddress("0xad01")
	testStranger = common.HexToAddress("0xdead")
	testIssuer   = common.HexToAddress("0x1a55")
	testTreasury = common.HexToAddress("0x1a1a")
)

type fixture struct {
	router chi.Router
	policy *governance.Store
	tokens *jwttoken.JWTService
}

func newGovernanceRouter(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := governance.New(testAdmin, governance.WithTreasury(common.HexToAddress("0x7777")))
	env := chain.New()
	tokens := jwttoken.NewJWTService("test-signing-key", "passport", "passport-api")
	router := chi.NewRouter()
	New(policy, env, logger, nil, jwttoken.NewJWTServiceAdapter(tokens)).Register(router)
	return &fixture{router: router, policy: policy, tokens: tokens}
}

func (f *fixture) do(t *testing.T, method, path string, caller common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewRequest(t, method, path)
	if body != nil {
		req = testutil.NewJSONRequest(t, method, path, body)
	}
	token, err := f.tokens.GenerateCallerToken(caller, time.Hour)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return testutil.DoRequest(f.router, testutil.WithBearer(req, token))
}

func TestAdminManagesIssuers(t *testing.T) {
	f := newGovernanceRouter(t)

	rec := f.do(t, http.MethodPost, "/governance/issuers", testAdmin, AddIssuerRequest{Issuer: testIssuer, Treasury: testTreasury})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 adding issuer, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/governance/issuers/"+testIssuer.Hex()+"/permissions", testAdmin, PermissionRequest{Type: "COUNTRY", Allowed: true})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 setting permission, got %d", rec.Code)
	}
	if !f.policy.IssuerAttributePermission(testIssuer, models.TypeCountry) {
		t.Fatalf("expected COUNTRY permission to be granted")
	}

	rec = f.do(t, http.MethodGet, "/governance/issuers", testStranger, nil)
	var list IssuersResponse
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode issuers: %v", err)
	}
	if len(list.Issuers) != 1 || list.Issuers[0].Treasury != testTreasury || !list.Issuers[0].Active {
		t.Fatalf("unexpected issuers %+v", list.Issuers)
	}

	rec = f.do(t, http.MethodPost, "/governance/issuers", testAdmin, AddIssuerRequest{Issuer: testIssuer, Treasury: testTreasury})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 adding issuer twice, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodDelete, "/governance/issuers/"+testIssuer.Hex(), testAdmin, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 deleting issuer, got %d", rec.Code)
	}
	if !f.policy.IsPayee(testTreasury) {
		t.Fatalf("expected deleted issuer treasury to stay a payee")
	}
}

func TestMutationsRequireGovernanceRole(t *testing.T) {
	testutil.Given(t, "a caller without GOVERNANCE_ROLE", func(t *testing.T) {
		f := newGovernanceRouter(t)

		testutil.When(t, "it sets the treasury", func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/governance/treasury", testStranger, TreasuryRequest{Treasury: testStranger})

			testutil.Then(t, "the call is forbidden and nothing changes", func(t *testing.T) {
				testutil.AssertStatus(t, rec, http.StatusForbidden)
				if f.policy.Treasury() == testStranger {
					t.Fatalf("treasury must be unchanged")
				}
			})
		})
	})
}

func TestRoles(t *testing.T) {
	f := newGovernanceRouter(t)
	rec := f.do(t, http.MethodPost, "/governance/roles/grant", testAdmin, RoleRequest{Role: governance.RoleReader, Principal: testStranger})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 granting role, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/governance/roles/"+string(governance.RoleReader)+"/"+testStranger.Hex(), testAdmin, nil)
	testutil.AssertStatusOK(t, rec)
	role := testutil.UnmarshalResponse[RoleResponse](t, rec)
	if !role.HasRole {
		t.Fatalf("expected granted role to be visible")
	}

	rec = f.do(t, http.MethodPost, "/governance/roles/grant", testAdmin, RoleRequest{Role: "OWNER", Principal: testStranger})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown role, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/governance/roles/revoke", testAdmin, RoleRequest{Role: governance.RoleGovernance, Principal: testAdmin})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 revoking own governance role, got %d", rec.Code)
	}
}

func TestPolicyConfig(t *testing.T) {
	f := newGovernanceRouter(t)
	steps := []struct {
		path string
		body any
	}{
		{"/governance/attributes/eligibility", EligibilityRequest{Type: "AML", Eligible: true, ByDID: true}},
		{"/governance/rev-split", RevSplitRequest{Percent: 30}},
		{"/governance/aml-threshold", map[string]string{"threshold": "7"}},
		{"/governance/prices", map[string]any{"type": "COUNTRY", "price": "0x64"}},
		{"/governance/token-ids", TokenIDRequest{TokenID: 1}},
	}
	for _, step := range steps {
		rec := f.do(t, http.MethodPost, step.path, testAdmin, step.body)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("expected 204 for %s, got %d: %s", step.path, rec.Code, rec.Body.String())
		}
	}
	if f.policy.PricePerAttributeFixed(models.TypeCountry).Int64() != 100 {
		t.Fatalf("expected COUNTRY price 100")
	}

	rec := f.do(t, http.MethodGet, "/governance/config", testAdmin, nil)
	var cfg ConfigResponse
	if err := json.NewDecoder(rec.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.RevSplitIssuer != 30 || cfg.AMLThreshold != "7" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.EligibleAttributesByDID) != 1 || cfg.EligibleAttributesByDID[0] != models.TypeAML {
		t.Fatalf("expected AML to be DID-keyed, got %v", cfg.EligibleAttributesByDID)
	}

	rec = f.do(t, http.MethodPost, "/governance/rev-split", testAdmin, RevSplitRequest{Percent: 101})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for split above 100, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodPost, "/governance/token-ids", testAdmin, TokenIDRequest{TokenID: 3})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 skipping a token id, got %d", rec.Code)
	}
}
