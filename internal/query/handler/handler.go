package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	ledger "passport/internal/ledger/models"
	"passport/internal/platform/metrics"
	"passport/internal/platform/middleware"
	"passport/internal/query/models"
	"passport/internal/signature"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/httputil"
	"passport/pkg/platform/middleware/metadata"
)

// Service defines the query router operations exposed over HTTP.
type Service interface {
	QueryFee(subject common.Address, t ledger.AttributeType) *big.Int
	QueryFeeBulk(subject common.Address, types []ledger.AttributeType) *big.Int

	GetAttributes(ctx context.Context, subject common.Address, t ledger.AttributeType, beneficiary common.Address) ([]ledger.AttributeRecord, error)
	GetAttributesBulk(ctx context.Context, subject common.Address, types []ledger.AttributeType, beneficiary common.Address) ([][]ledger.AttributeRecord, error)
	GetAttributesLegacy(ctx context.Context, subject common.Address, t ledger.AttributeType, beneficiary common.Address) (models.Legacy, error)
	GetAttributesBulkLegacy(ctx context.Context, subject common.Address, types []ledger.AttributeType, beneficiary common.Address) (models.Legacy, error)
	GetFlashAttributeGTE(ctx context.Context, q signature.FlashQuery) (bool, error)
	Withdraw(ctx context.Context, beneficiary common.Address, amount *big.Int) error

	LatestEpoch(ctx context.Context, subject common.Address, t ledger.AttributeType) (uint64, error)
	HasPassportByIssuer(ctx context.Context, subject common.Address, t ledger.AttributeType, issuer common.Address) (bool, error)
	AttributeMetadata(ctx context.Context, subject common.Address, t ledger.AttributeType) ([]ledger.AttributeMetadata, error)
	AttributesExist(ctx context.Context, subject common.Address, t ledger.AttributeType) (bool, error)
	Balance(addr common.Address) *big.Int
}

// Handler serves the query router endpoints. Paid endpoints take the fee from
// the X-Call-Value header.
type Handler struct {
	router    Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.CallerValidator
}

func New(router Service, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.CallerValidator) *Handler {
	return &Handler{
		router:    router,
		logger:    logger,
		metrics:   metrics,
		validator: validator,
	}
}

// Register registers the query routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(queryRouter chi.Router) {
		queryRouter.Use(middleware.Recovery(h.logger))
		queryRouter.Use(middleware.RequestID)
		queryRouter.Use(metadata.ClientMetadata)
		queryRouter.Use(middleware.Logger(h.logger))
		queryRouter.Use(middleware.Timeout(30 * time.Second))
		queryRouter.Use(middleware.ContentTypeJSON)
		queryRouter.Use(middleware.LatencyMiddleware(h.metrics))
		queryRouter.Use(middleware.RequireCaller(h.validator, h.logger))

		queryRouter.Get("/query/fees/{subject}", h.handleQueryFee)
		queryRouter.Post("/query/attributes", h.handleGetAttributes)
		queryRouter.Post("/query/attributes/legacy", h.handleGetAttributesLegacy)
		queryRouter.Post("/query/attributes/bulk", h.handleGetAttributesBulk)
		queryRouter.Post("/query/attributes/bulk/legacy", h.handleGetAttributesBulkLegacy)
		queryRouter.Post("/query/flash", h.handleFlash)
		queryRouter.Post("/query/withdrawals", h.handleWithdraw)

		queryRouter.Get("/query/balances/{address}", h.handleBalance)
		queryRouter.Get("/query/attributes/{subject}/{type}/latest-epoch", h.handleLatestEpoch)
		queryRouter.Get("/query/attributes/{subject}/{type}/metadata", h.handleMetadata)
		queryRouter.Get("/query/attributes/{subject}/{type}/exists", h.handleExists)
		queryRouter.Get("/query/attributes/{subject}/{type}/issuers/{issuer}", h.handleHasPassportByIssuer)
	})
}

// handleQueryFee quotes one or more types given as ?types=COUNTRY,AML.
func (h *Handler) handleQueryFee(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := parseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		h.fail(ctx, w, "quote fee", err)
		return
	}
	types, err := parseTypes(splitList(r.URL.Query().Get("types")))
	if err != nil {
		h.fail(ctx, w, "quote fee", err)
		return
	}
	if len(types) == 1 {
		httputil.WriteJSON(w, http.StatusOK, FromFee(h.router.QueryFee(subject, types[0])))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromFee(h.router.QueryFeeBulk(subject, types)))
}

// =============================================================================
// Paid reads
// =============================================================================

func (h *Handler) handleGetAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ReadRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := req.Parse()
	if err != nil {
		h.fail(ctx, w, "get attributes", err)
		return
	}
	recs, err := h.router.GetAttributes(ctx, req.Subject, t, req.Beneficiary)
	if err != nil {
		h.fail(ctx, w, "get attributes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(recs))
}

func (h *Handler) handleGetAttributesLegacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req ReadRequest
	if !h.decode(w, r, &req) {
		return
	}
	t, err := req.Parse()
	if err != nil {
		h.fail(ctx, w, "get attributes legacy", err)
		return
	}
	legacy, err := h.router.GetAttributesLegacy(ctx, req.Subject, t, req.Beneficiary)
	if err != nil {
		h.fail(ctx, w, "get attributes legacy", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LegacyResponse(legacy))
}

func (h *Handler) handleGetAttributesBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BulkReadRequest
	if !h.decode(w, r, &req) {
		return
	}
	types, err := req.Parse()
	if err != nil {
		h.fail(ctx, w, "get attributes bulk", err)
		return
	}
	results, err := h.router.GetAttributesBulk(ctx, req.Subject, types, req.Beneficiary)
	if err != nil {
		h.fail(ctx, w, "get attributes bulk", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromBulk(results))
}

func (h *Handler) handleGetAttributesBulkLegacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BulkReadRequest
	if !h.decode(w, r, &req) {
		return
	}
	types, err := req.Parse()
	if err != nil {
		h.fail(ctx, w, "get attributes bulk legacy", err)
		return
	}
	legacy, err := h.router.GetAttributesBulkLegacy(ctx, req.Subject, types, req.Beneficiary)
	if err != nil {
		h.fail(ctx, w, "get attributes bulk legacy", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LegacyResponse(legacy))
}

func (h *Handler) handleFlash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var q signature.FlashQuery
	if !h.decode(w, r, &q) {
		return
	}
	ok, err := h.router.GetFlashAttributeGTE(ctx, q)
	if err != nil {
		h.fail(ctx, w, "flash claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FlashResponse{Result: ok})
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req WithdrawRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(ctx, w, "withdraw", err)
		return
	}
	if err := h.router.Withdraw(ctx, req.Beneficiary, req.AmountInt()); err != nil {
		h.fail(ctx, w, "withdraw", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Free views
// =============================================================================

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(chi.URLParam(r, "address"))
	if err != nil {
		h.fail(r.Context(), w, "read balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Balance: h.router.Balance(addr).String()})
}

func (h *Handler) handleLatestEpoch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	epoch, err := h.router.LatestEpoch(ctx, subject, t)
	if err != nil {
		h.fail(ctx, w, "read latest epoch", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, EpochResponse{Epoch: epoch})
}

func (h *Handler) handleMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	meta, err := h.router.AttributeMetadata(ctx, subject, t)
	if err != nil {
		h.fail(ctx, w, "read metadata", err)
		return
	}
	if meta == nil {
		meta = []ledger.AttributeMetadata{}
	}
	httputil.WriteJSON(w, http.StatusOK, MetadataResponse{Metadata: meta})
}

func (h *Handler) handleExists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	exists, err := h.router.AttributesExist(ctx, subject, t)
	if err != nil {
		h.fail(ctx, w, "check attributes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExistsResponse{Exists: exists})
}

func (h *Handler) handleHasPassportByIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	issuer, err := parseAddress(chi.URLParam(r, "issuer"))
	if err != nil {
		h.fail(ctx, w, "check issuer record", err)
		return
	}
	found, err := h.router.HasPassportByIssuer(ctx, subject, t, issuer)
	if err != nil {
		h.fail(ctx, w, "check issuer record", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExistsResponse{Exists: found})
}

// =============================================================================
// Helpers
// =============================================================================

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (h *Handler) subjectAndType(w http.ResponseWriter, r *http.Request) (common.Address, ledger.AttributeType, bool) {
	subject, err := parseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		h.fail(r.Context(), w, "parse path", err)
		return common.Address{}, ledger.AttributeType{}, false
	}
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(r.Context(), w, "parse path", err)
		return common.Address{}, ledger.AttributeType{}, false
	}
	return subject, t, true
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
