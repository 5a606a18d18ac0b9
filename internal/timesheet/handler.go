package timesheet

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/tempora-hq/tempora/internal/platform/httpx"
	"github.com/tempora-hq/tempora/internal/shared"
)

// Handler wires HTTP endpoints for time entries.
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

// MountRoutes registers time-entry routes. On the monthly subtree the path
// id names a user, not an entry; extra lets the reports module hang its
// per-user endpoints off the same subtree so the paths stay under
// /time-entries/{id}/.
func (h *Handler) MountRoutes(r chi.Router, extra func(chi.Router)) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Put("/", h.handleUpdate)
		r.Delete("/", h.handleDelete)
		r.Get("/monthly/{month}", h.handleMonthly)
		if extra != nil {
			extra(r)
		}
	})
}

type entryResponse struct {
	ID          int64   `json:"id"`
	UserID      int64   `json:"user_id"`
	ProjectID   int64   `json:"project_id"`
	Date        string  `json:"date"`
	Days        float64 `json:"days"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func toEntryResponse(e TimeEntry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		UserID:      e.UserID,
		ProjectID:   e.ProjectID,
		Date:        e.Date.Format(shared.DateLayout),
		Days:        e.Days,
		Description: e.Description,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   e.UpdatedAt.Format(time.RFC3339),
	}
}

func toEntryResponses(entries []TimeEntry) []entryResponse {
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	return out
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	entries, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.logger.Error("list time entries", slog.Any("error", err))
		respondEntryError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	meta := shared.NewPagination(page, perPage, len(entries))
	entries = paginate(entries, meta)
	w.Header().Set("X-Total-Count", strconv.Itoa(meta.Total))
	w.Header().Set("X-Total-Pages", strconv.Itoa(meta.TotalPages))
	httpx.JSON(w, http.StatusOK, toEntryResponses(entries))
}

func paginate(entries []TimeEntry, meta shared.Pagination) []TimeEntry {
	start := (meta.Page - 1) * meta.PerPage
	if start >= len(entries) {
		return nil
	}
	end := start + meta.PerPage
	if end > len(entries) {
		end = len(entries)
	}
	return entries[start:end]
}

type createEntryRequest struct {
	UserID      int64   `json:"user_id"`
	ProjectID   int64   `json:"project_id" validate:"required"`
	Date        string  `json:"date" validate:"required"`
	Days        float64 `json:"days" validate:"required"`
	Description string  `json:"description"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "project_id, date and days are required")
		return
	}
	date, err := time.Parse(shared.DateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return
	}
	created, err := h.service.Create(r.Context(), actor, CreateInput{
		UserID:      req.UserID,
		ProjectID:   req.ProjectID,
		Date:        date,
		Days:        req.Days,
		Description: req.Description,
	})
	if err != nil {
		respondEntryError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(created))
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
	e, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		respondEntryError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(e))
}

type updateEntryRequest struct {
	ProjectID   *int64   `json:"project_id"`
	Date        *string  `json:"date"`
	Days        *float64 `json:"days"`
	Description *string  `json:"description"`
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
	var req updateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	input := UpdateInput{
		ProjectID:   req.ProjectID,
		Days:        req.Days,
		Description: req.Description,
	}
	if req.Date != nil {
		date, err := time.Parse(shared.DateLayout, *req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
			return
		}
		input.Date = &date
	}
	updated, err := h.service.Update(r.Context(), actor, id, input)
	if err != nil {
		respondEntryError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(updated))
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
		respondEntryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMonthly lists a user's entries for one calendar month; the path id
// is the user id.
func (h *Handler) handleMonthly(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	userID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	month, err := shared.ParseMonth(chi.URLParam(r, "month"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.Monthly(r.Context(), actor, userID, month)
	if err != nil {
		respondEntryError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponses(entries))
}

// respondEntryError maps the module's own failures onto their problem kinds
// before falling back to the shared taxonomy.
func respondEntryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDailyLimit):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "daily-limit-exceeded", "Daily Limit Exceeded", err.Error())
	case errors.Is(err, ErrProjectNotAccessible):
		httpx.ProblemKind(w, http.StatusUnprocessableEntity, "project-not-accessible", "Project Not Accessible", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
