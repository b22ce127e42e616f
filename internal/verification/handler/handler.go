// Package handler exposes the verification lifecycle over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kycverify/internal/verification/models"
	"kycverify/internal/verification/service"
	id "kycverify/pkg/domain"
	dErrors "kycverify/pkg/domain-errors"
	"kycverify/pkg/platform/httputil"
	"kycverify/pkg/requestcontext"
)

const defaultMaxUploadBytes = 25 << 20

//go:generate mockgen -source=handler.go -destination=mocks/service_mock.go -package=mocks
type Service interface {
	Submit(ctx context.Context, cmd service.SubmitCommand) (*service.SubmitResult, error)
	Get(ctx context.Context, projectID id.ProjectID, vid id.VerificationID) (*models.Verification, error)
	List(ctx context.Context, projectID id.ProjectID, filter models.ListFilter) (models.Page, error)
}

type Handler struct {
	service        Service
	logger         *slog.Logger
	maxUploadBytes int64
}

func New(service Service, logger *slog.Logger, maxUploadBytes int64) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &Handler{service: service, logger: logger, maxUploadBytes: maxUploadBytes}
}

// Register mounts the endpoints. The router must already authenticate the project.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/verifications", h.HandleSubmit)
	r.Get("/v1/verifications", h.HandleList)
	r.Get("/v1/verifications/{id}", h.HandleGet)
}

// HandleSubmit handles POST /v1/verifications.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := requestcontext.Now(ctx)
	projectID := requestcontext.ProjectID(ctx)

	cmd, err := parseSubmit(w, r, h.maxUploadBytes)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "submission parse failed", err)
		return
	}
	cmd.ProjectID = projectID
	cmd.IPAddress = requestcontext.ClientIP(ctx)
	cmd.UserAgent = requestcontext.UserAgent(ctx)

	res, err := h.service.Submit(ctx, cmd)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "verification submit failed", err,
			"request_id", requestcontext.RequestID(ctx),
			"project_id", projectID.String(),
		)
		return
	}

	h.logger.InfoContext(ctx, "verification submitted",
		"request_id", requestcontext.RequestID(ctx),
		"verification_id", res.ID.String(),
		"duplicate", res.Duplicate,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusAccepted, fromSubmitResult(res))
}

// HandleGet handles GET /v1/verifications/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vid, err := id.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		// malformed ids are indistinguishable from unknown ones
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "Verification not found"))
		return
	}

	v, err := h.service.Get(ctx, requestcontext.ProjectID(ctx), vid)
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "verification lookup failed", err,
			"verification_id", vid.String(),
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, GetResponse{Verification: fromVerification(v)})
}

// HandleList handles GET /v1/verifications.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.service.List(ctx, requestcontext.ProjectID(ctx), parseListFilter(r))
	if err != nil {
		httputil.LogAndWriteError(w, r, h.logger, "verification list failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromPage(page))
}
