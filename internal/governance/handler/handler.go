package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"passport/internal/governance"
	"passport/internal/ledger/models"
	"passport/internal/platform/metrics"
	"passport/internal/platform/middleware"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/httputil"
	"passport/pkg/platform/middleware/metadata"
)

// Policy is the governance store surface exposed to administrators.
type Policy interface {
	HasRole(role governance.Role, principal common.Address) bool
	GrantRole(ctx context.Context, role governance.Role, principal common.Address) error
	RevokeRole(ctx context.Context, role governance.Role, principal common.Address) error

	AddIssuer(ctx context.Context, issuer, treasury common.Address) error
	DeleteIssuer(ctx context.Context, issuer common.Address) error
	SetIssuerStatus(ctx context.Context, issuer common.Address, active bool) error
	SetIssuerTreasury(ctx context.Context, issuer, treasury common.Address) error
	SetIssuerAttributePermission(ctx context.Context, issuer common.Address, t models.AttributeType, allowed bool) error
	Issuers() []governance.Issuer

	SetEligibleAttribute(ctx context.Context, t models.AttributeType, eligible bool) error
	SetEligibleAttributeByDID(ctx context.Context, t models.AttributeType, eligible bool) error
	EligibleAttributes() []models.AttributeType
	EligibleAttributesByDID() []models.AttributeType
	AllowTokenID(ctx context.Context, id uint64) error

	SetAttributePriceFixed(ctx context.Context, t models.AttributeType, price *big.Int) error
	SetBusinessAttributePriceFixed(ctx context.Context, t models.AttributeType, price *big.Int) error
	SetRevSplitIssuer(ctx context.Context, pct uint64) error
	RevSplitIssuer() uint64
	SetTreasury(ctx context.Context, addr common.Address) error
	Treasury() common.Address
	SetPreapproval(ctx context.Context, addr common.Address, approved bool) error
	SetAMLThreshold(ctx context.Context, v *big.Int) error
	AMLThreshold() *big.Int
}

// Executor runs a state-changing call on the shared chain environment, so
// policy changes serialize with ledger and router calls and roll back with
// them.
type Executor interface {
	Execute(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Handler serves the governance admin endpoints.
type Handler struct {
	policy    Policy
	exec      Executor
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.CallerValidator
}

func New(policy Policy, exec Executor, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.CallerValidator) *Handler {
	return &Handler{
		policy:    policy,
		exec:      exec,
		logger:    logger,
		metrics:   metrics,
		validator: validator,
	}
}

// Register registers the governance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(govRouter chi.Router) {
		govRouter.Use(middleware.Recovery(h.logger))
		govRouter.Use(middleware.RequestID)
		govRouter.Use(metadata.ClientMetadata)
		govRouter.Use(middleware.Logger(h.logger))
		govRouter.Use(middleware.Timeout(30 * time.Second))
		govRouter.Use(middleware.ContentTypeJSON)
		govRouter.Use(middleware.LatencyMiddleware(h.metrics))
		govRouter.Use(middleware.RequireCaller(h.validator, h.logger))

		govRouter.Get("/governance/config", h.handleConfig)
		govRouter.Get("/governance/issuers", h.handleListIssuers)
		govRouter.Get("/governance/roles/{role}/{principal}", h.handleHasRole)

		govRouter.Post("/governance/roles/grant", h.handleGrantRole)
		govRouter.Post("/governance/roles/revoke", h.handleRevokeRole)
		govRouter.Post("/governance/issuers", h.handleAddIssuer)
		govRouter.Delete("/governance/issuers/{issuer}", h.handleDeleteIssuer)
		govRouter.Post("/governance/issuers/{issuer}/status", h.handleIssuerStatus)
		govRouter.Post("/governance/issuers/{issuer}/treasury", h.handleIssuerTreasury)
		govRouter.Post("/governance/issuers/{issuer}/permissions", h.handleIssuerPermission)
		govRouter.Post("/governance/attributes/eligibility", h.handleEligibility)
		govRouter.Post("/governance/token-ids", h.handleAllowTokenID)
		govRouter.Post("/governance/prices", h.handlePrice)
		govRouter.Post("/governance/rev-split", h.handleRevSplit)
		govRouter.Post("/governance/treasury", h.handleTreasury)
		govRouter.Post("/governance/preapprovals", h.handlePreapproval)
		govRouter.Post("/governance/aml-threshold", h.handleAMLThreshold)
	})
}

// =============================================================================
// Reads
// =============================================================================

func (h *Handler) handleConfig(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, ConfigResponse{
		Treasury:                h.policy.Treasury(),
		RevSplitIssuer:          h.policy.RevSplitIssuer(),
		AMLThreshold:            h.policy.AMLThreshold().String(),
		EligibleAttributes:      nonNil(h.policy.EligibleAttributes()),
		EligibleAttributesByDID: nonNil(h.policy.EligibleAttributesByDID()),
	})
}

func (h *Handler) handleListIssuers(w http.ResponseWriter, _ *http.Request) {
	issuers := h.policy.Issuers()
	if issuers == nil {
		issuers = []governance.Issuer{}
	}
	httputil.WriteJSON(w, http.StatusOK, IssuersResponse{Issuers: issuers})
}

func (h *Handler) handleHasRole(w http.ResponseWriter, r *http.Request) {
	principal, err := parseAddress(chi.URLParam(r, "principal"))
	if err != nil {
		h.fail(r.Context(), w, "read role", err)
		return
	}
	role := governance.Role(chi.URLParam(r, "role"))
	if !role.IsValid() {
		h.fail(r.Context(), w, "read role", governance.ErrInvalidRole)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RoleResponse{HasRole: h.policy.HasRole(role, principal)})
}

// =============================================================================
// Mutations
// =============================================================================

func (h *Handler) handleGrantRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(r.Context(), w, "grant role", err)
		return
	}
	h.run(w, r, "GrantRole", func(ctx context.Context) error {
		return h.policy.GrantRole(ctx, req.Role, req.Principal)
	})
}

func (h *Handler) handleRevokeRole(w http.ResponseWriter, r *http.Request) {
	var req RoleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(r.Context(), w, "revoke role", err)
		return
	}
	h.run(w, r, "RevokeRole", func(ctx context.Context) error {
		return h.policy.RevokeRole(ctx, req.Role, req.Principal)
	})
}

func (h *Handler) handleAddIssuer(w http.ResponseWriter, r *http.Request) {
	var req AddIssuerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "AddIssuer", func(ctx context.Context) error {
		return h.policy.AddIssuer(ctx, req.Issuer, req.Treasury)
	})
}

func (h *Handler) handleDeleteIssuer(w http.ResponseWriter, r *http.Request) {
	issuer, ok := h.issuerParam(w, r)
	if !ok {
		return
	}
	h.run(w, r, "DeleteIssuer", func(ctx context.Context) error {
		return h.policy.DeleteIssuer(ctx, issuer)
	})
}

func (h *Handler) handleIssuerStatus(w http.ResponseWriter, r *http.Request) {
	issuer, ok := h.issuerParam(w, r)
	if !ok {
		return
	}
	var req IssuerStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "SetIssuerStatus", func(ctx context.Context) error {
		return h.policy.SetIssuerStatus(ctx, issuer, req.Active)
	})
}

func (h *Handler) handleIssuerTreasury(w http.ResponseWriter, r *http.Request) {
	issuer, ok := h.issuerParam(w, r)
	if !ok {
		return
	}
	var req IssuerTreasuryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "SetIssuerTreasury", func(ctx context.Context) error {
		return h.policy.SetIssuerTreasury(ctx, issuer, req.Treasury)
	})
}

func (h *Handler) handleIssuerPermission(w http.ResponseWriter, r *http.Request) {
	issuer, ok := h.issuerParam(w, r)
	if !ok {
		return
	}
	var req PermissionRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := parseType(req.Type)
	if err != nil {
		h.fail(r.Context(), w, "set issuer permission", err)
		return
	}
	h.run(w, r, "SetIssuerAttributePermission", func(ctx context.Context) error {
		return h.policy.SetIssuerAttributePermission(ctx, issuer, t, req.Allowed)
	})
}

// handleEligibility sets plain eligibility, or DID-keyed eligibility when
// by_did is set.
func (h *Handler) handleEligibility(w http.ResponseWriter, r *http.Request) {
	var req EligibilityRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := parseType(req.Type)
	if err != nil {
		h.fail(r.Context(), w, "set eligibility", err)
		return
	}
	if req.ByDID {
		h.run(w, r, "SetEligibleAttributeByDID", func(ctx context.Context) error {
			return h.policy.SetEligibleAttributeByDID(ctx, t, req.Eligible)
		})
		return
	}
	h.run(w, r, "SetEligibleAttribute", func(ctx context.Context) error {
		return h.policy.SetEligibleAttribute(ctx, t, req.Eligible)
	})
}

func (h *Handler) handleAllowTokenID(w http.ResponseWriter, r *http.Request) {
	var req TokenIDRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "AllowTokenID", func(ctx context.Context) error {
		return h.policy.AllowTokenID(ctx, req.TokenID)
	})
}

func (h *Handler) handlePrice(w http.ResponseWriter, r *http.Request) {
	var req PriceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(r.Context(), w, "set price", err)
		return
	}
	t, err := parseType(req.Type)
	if err != nil {
		h.fail(r.Context(), w, "set price", err)
		return
	}
	if req.Business {
		h.run(w, r, "SetBusinessAttributePriceFixed", func(ctx context.Context) error {
			return h.policy.SetBusinessAttributePriceFixed(ctx, t, req.PriceInt())
		})
		return
	}
	h.run(w, r, "SetAttributePriceFixed", func(ctx context.Context) error {
		return h.policy.SetAttributePriceFixed(ctx, t, req.PriceInt())
	})
}

func (h *Handler) handleRevSplit(w http.ResponseWriter, r *http.Request) {
	var req RevSplitRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "SetRevSplitIssuer", func(ctx context.Context) error {
		return h.policy.SetRevSplitIssuer(ctx, req.Percent)
	})
}

func (h *Handler) handleTreasury(w http.ResponseWriter, r *http.Request) {
	var req TreasuryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "SetTreasury", func(ctx context.Context) error {
		return h.policy.SetTreasury(ctx, req.Treasury)
	})
}

func (h *Handler) handlePreapproval(w http.ResponseWriter, r *http.Request) {
	var req PreapprovalRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.run(w, r, "SetPreapproval", func(ctx context.Context) error {
		return h.policy.SetPreapproval(ctx, req.Account, req.Approved)
	})
}

func (h *Handler) handleAMLThreshold(w http.ResponseWriter, r *http.Request) {
	var req AMLThresholdRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(r.Context(), w, "set AML threshold", err)
		return
	}
	h.run(w, r, "SetAMLThreshold", func(ctx context.Context) error {
		return h.policy.SetAMLThreshold(ctx, (*big.Int)(req.Threshold))
	})
}

// =============================================================================
// Helpers
// =============================================================================

// run executes one policy mutation as a call and writes 204 on success.
func (h *Handler) run(w http.ResponseWriter, r *http.Request, name string, fn func(ctx context.Context) error) {
	ctx := r.Context()
	if err := h.exec.Execute(ctx, "governance."+name, fn); err != nil {
		h.fail(ctx, w, name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) issuerParam(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	issuer, err := parseAddress(chi.URLParam(r, "issuer"))
	if err != nil {
		h.fail(r.Context(), w, "parse issuer", err)
		return common.Address{}, false
	}
	return issuer, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httputil.DecodeJSON(r, v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err.Error(),
		)
		httputil.WriteError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, op string, err error) {
	requestID := middleware.GetRequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", requestID,
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestID,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

func nonNil(types []models.AttributeType) []models.AttributeType {
	if types == nil {
		return []models.AttributeType{}
	}
	return types
}
