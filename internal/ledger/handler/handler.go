package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"passport/internal/ledger/models"
	"passport/internal/platform/metrics"
	"passport/internal/platform/middleware"
	dErrors "passport/pkg/domain-errors"
	"passport/pkg/platform/httputil"
	"passport/pkg/platform/middleware/metadata"
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	SetAttributes(ctx context.Context, intent models.Intent, issuerSig, subjectSig []byte) error
	SetAttributesIssuer(ctx context.Context, subject common.Address, intent models.Intent, issuerSig []byte) error
	SetAttributesBulk(ctx context.Context, intents []models.Intent, issuerSigs, subjectSigs [][]byte) error
	BurnPassports(ctx context.Context, tokenID uint64) error
	BurnPassportsIssuer(ctx context.Context, subject common.Address, tokenID uint64) error

	Attributes(ctx context.Context, subject common.Address, t models.AttributeType) ([]models.AttributeRecord, error)
	AttributeByIssuer(ctx context.Context, subject common.Address, t models.AttributeType, issuer common.Address) (models.AttributeRecord, bool, error)
	AttributesExist(ctx context.Context, subject common.Address, t models.AttributeType) (bool, error)
	AttributeMetadata(ctx context.Context, subject common.Address, t models.AttributeType) ([]models.AttributeMetadata, error)
	RecordsBySubject(ctx context.Context, subject common.Address) ([]models.SourceRecord, error)
	BalanceOf(ctx context.Context, subject common.Address, tokenID uint64) (uint64, error)
	BalanceOfBatch(ctx context.Context, subjects []common.Address, tokenIDs []uint64) ([]uint64, error)

	Pause(ctx context.Context) error
	Unpause(ctx context.Context) error
	Paused() bool
}

// Handler serves the attestation ledger endpoints.
type Handler struct {
	ledger    Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.CallerValidator
}

func New(ledger Service, logger *slog.Logger, metrics *metrics.Metrics, validator middleware.CallerValidator) *Handler {
	return &Handler{
		ledger:    ledger,
		logger:    logger,
		metrics:   metrics,
		validator: validator,
	}
}

// Register registers the ledger routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(ledgerRouter chi.Router) {
		ledgerRouter.Use(middleware.Recovery(h.logger))
		ledgerRouter.Use(middleware.RequestID)
		ledgerRouter.Use(metadata.ClientMetadata)
		ledgerRouter.Use(middleware.Logger(h.logger))
		ledgerRouter.Use(middleware.Timeout(30 * time.Second))
		ledgerRouter.Use(middleware.ContentTypeJSON)
		ledgerRouter.Use(middleware.LatencyMiddleware(h.metrics))
		ledgerRouter.Use(middleware.RequireCaller(h.validator, h.logger))

		ledgerRouter.Post("/ledger/attributes", h.handleSetAttributes)
		ledgerRouter.Post("/ledger/attributes/issuer", h.handleSetAttributesIssuer)
		ledgerRouter.Post("/ledger/attributes/bulk", h.handleSetAttributesBulk)
		ledgerRouter.Post("/ledger/passports/{tokenID}/burn", h.handleBurn)
		ledgerRouter.Post("/ledger/passports/{tokenID}/burn-issuer", h.handleBurnIssuer)

		ledgerRouter.Get("/ledger/attributes/{subject}/{type}", h.handleAttributes)
		ledgerRouter.Get("/ledger/attributes/{subject}/{type}/exists", h.handleAttributesExist)
		ledgerRouter.Get("/ledger/attributes/{subject}/{type}/metadata", h.handleAttributeMetadata)
		ledgerRouter.Get("/ledger/attributes/{subject}/{type}/issuers/{issuer}", h.handleAttributeByIssuer)
		ledgerRouter.Get("/ledger/records/{subject}", h.handleRecordsBySubject)
		ledgerRouter.Get("/ledger/balances/{subject}/{tokenID}", h.handleBalance)
		ledgerRouter.Post("/ledger/balances/batch", h.handleBalanceBatch)

		ledgerRouter.Post("/ledger/pause", h.handlePause)
		ledgerRouter.Post("/ledger/unpause", h.handleUnpause)
		ledgerRouter.Get("/ledger/paused", h.handlePaused)
	})
}

// =============================================================================
// Writes
// =============================================================================

func (h *Handler) handleSetAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetAttributesRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(ctx, w, "set attributes", err)
		return
	}
	if err := h.ledger.SetAttributes(ctx, req.Intent, req.IssuerSig, req.SubjectSig); err != nil {
		h.fail(ctx, w, "set attributes", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetAttributesIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetAttributesIssuerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(ctx, w, "set attributes by issuer", err)
		return
	}
	if err := h.ledger.SetAttributesIssuer(ctx, req.Subject, req.Intent, req.IssuerSig); err != nil {
		h.fail(ctx, w, "set attributes by issuer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetAttributesBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req SetAttributesBulkRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(ctx, w, "set attributes bulk", err)
		return
	}
	issuerSigs, subjectSigs := req.Signatures()
	if err := h.ledger.SetAttributesBulk(ctx, req.Intents, issuerSigs, subjectSigs); err != nil {
		h.fail(ctx, w, "set attributes bulk", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, err := parseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		h.fail(ctx, w, "burn passports", err)
		return
	}
	if err := h.ledger.BurnPassports(ctx, tokenID); err != nil {
		h.fail(ctx, w, "burn passports", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBurnIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, err := parseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		h.fail(ctx, w, "burn passports by issuer", err)
		return
	}
	var req BurnIssuerRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(ctx, w, "burn passports by issuer", err)
		return
	}
	if err := h.ledger.BurnPassportsIssuer(ctx, req.Subject, tokenID); err != nil {
		h.fail(ctx, w, "burn passports by issuer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// Reader accessors
// =============================================================================

func (h *Handler) handleAttributes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	recs, err := h.ledger.Attributes(ctx, subject, t)
	if err != nil {
		h.fail(ctx, w, "read attributes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecords(recs))
}

func (h *Handler) handleAttributeByIssuer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	issuer, err := parseAddress(chi.URLParam(r, "issuer"))
	if err != nil {
		h.fail(ctx, w, "read attribute by issuer", err)
		return
	}
	rec, found, err := h.ledger.AttributeByIssuer(ctx, subject, t, issuer)
	if err != nil {
		h.fail(ctx, w, "read attribute by issuer", err)
		return
	}
	resp := RecordResponse{Found: found}
	if found {
		resp.Record = &rec
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAttributesExist(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	exists, err := h.ledger.AttributesExist(ctx, subject, t)
	if err != nil {
		h.fail(ctx, w, "check attributes", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExistsResponse{Exists: exists})
}

func (h *Handler) handleAttributeMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, t, ok := h.subjectAndType(w, r)
	if !ok {
		return
	}
	meta, err := h.ledger.AttributeMetadata(ctx, subject, t)
	if err != nil {
		h.fail(ctx, w, "read attribute metadata", err)
		return
	}
	if meta == nil {
		meta = []models.AttributeMetadata{}
	}
	httputil.WriteJSON(w, http.StatusOK, MetadataResponse{Metadata: meta})
}

func (h *Handler) handleRecordsBySubject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := parseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		h.fail(ctx, w, "export records", err)
		return
	}
	recs, err := h.ledger.RecordsBySubject(ctx, subject)
	if err != nil {
		h.fail(ctx, w, "export records", err)
		return
	}
	if recs == nil {
		recs = []models.SourceRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, SourceRecordsResponse{Records: recs})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subject, err := parseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		h.fail(ctx, w, "read balance", err)
		return
	}
	tokenID, err := parseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		h.fail(ctx, w, "read balance", err)
		return
	}
	bal, err := h.ledger.BalanceOf(ctx, subject, tokenID)
	if err != nil {
		h.fail(ctx, w, "read balance", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Balance: bal})
}

func (h *Handler) handleBalanceBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req BalanceBatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	bals, err := h.ledger.BalanceOfBatch(ctx, req.Subjects, req.TokenIDs)
	if err != nil {
		h.fail(ctx, w, "read balances", err)
		return
	}
	if bals == nil {
		bals = []uint64{}
	}
	httputil.WriteJSON(w, http.StatusOK, BalancesResponse{Balances: bals})
}

// =============================================================================
// Pause
// =============================================================================

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Pause(r.Context()); err != nil {
		h.fail(r.Context(), w, "pause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleUnpause(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Unpause(r.Context()); err != nil {
		h.fail(r.Context(), w, "unpause", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePaused(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, PausedResponse{Paused: h.ledger.Paused()})
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) subjectAndType(w http.ResponseWriter, r *http.Request) (common.Address, models.AttributeType, bool) {
	subject, err := parseAddress(chi.URLParam(r, "subject"))
	if err != nil {
		h.fail(r.Context(), w, "parse path", err)
		return common.Address{}, models.AttributeType{}, false
	}
	t, err := parseType(chi.URLParam(r, "type"))
	if err != nil {
		h.fail(r.Context(), w, "parse path", err)
		return common.Address{}, models.AttributeType{}, false
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
