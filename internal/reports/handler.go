package reports

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// Handler wires HTTP endpoints for monthly reports.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers the report CRUD routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

// MountUserRoutes registers the per-user export routes on the time-entries
// subtree, where the path id names a user.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Get("/report/{month}", h.handlePDF)
	r.Get("/aggregate/{month}", h.handleAggregate)
}

type reportResponse struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	Month     string  `json:"month"`
	TotalDays float64 `json:"total_days"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func toReportResponse(r MonthlyReport) reportResponse {
	return reportResponse{
		ID:        r.ID,
		UserID:    r.UserID,
		Month:     r.Month.String(),
		TotalDays: r.TotalDays,
		Status:    string(r.Status),
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	reports, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list reports", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]reportResponse, 0, len(reports))
	for _, report := range reports {
		out = append(out, toReportResponse(report))
	}
	httpx.JSON(w, http.StatusOK, out)
}

type createReportRequest struct {
	UserID int64  `json:"user_id"`
	Month  string `json:"month" validate:"required"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createReportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "month is required")
		return
	}
	month, err := shared.ParseMonth(req.Month)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), actor, CreateInput{UserID: req.UserID, Month: month})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReportResponse(created))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	report, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(report))
}

type updateReportRequest struct {
	Status string `json:"status" validate:"required"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req updateReportRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "status is required")
		return
	}
	status, err := ParseStatus(req.Status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Update(r.Context(), actor, id, UpdateInput{Status: status})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReportResponse(updated))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAggregate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, month, err := userMonthParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	agg, err := h.service.Aggregate(r.Context(), actor, userID, month)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, month, err := userMonthParams(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	pdf, err := h.service.RenderPDF(r.Context(), actor, userID, month)
	if err != nil {
		h.logger.Error("render report pdf",
			slog.Int64("user_id", userID),
			slog.String("month", month.String()),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", Filename(userID, month)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func userMonthParams(r *http.Request) (int64, shared.Month, error) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, shared.Month{}, fmt.Errorf("invalid user id")
	}
	month, err := shared.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		return 0, shared.Month{}, err
	}
	return userID, month, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
