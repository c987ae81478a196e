package gallery

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/framegrid/gallery-api/internal/middleware"
	"github.com/framegrid/gallery-api/internal/pkg/response"
	"github.com/framegrid/gallery-api/internal/pkg/validator"
)

// Handler handles gallery HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates gallery handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func actorFromContext(r *http.Request) Actor {
	return Actor{
		ID:    middleware.GetAccountID(r.Context()),
		Email: middleware.GetEmail(r.Context()),
		Role:  middleware.GetRole(r.Context()),
	}
}

// Ingest handles POST /gallery/ingest
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	actor := actorFromContext(r)
	result, err := h.service.Ingest(r.Context(), actor, &req)
	if err != nil {
		h.writeIngestError(w, err)
		return
	}

	payload := IngestResponseFromResult(result)
	switch result.Outcome {
	case OutcomeIngested:
		response.Created(w, payload)
	case OutcomeProcessing:
		response.Accepted(w, payload)
	default: // replayed, duplicate
		response.OK(w, payload)
	}
}

// writeIngestError maps pipeline errors to stable machine-readable codes.
// Only the handler produces a final response shape.
func (h *Handler) writeIngestError(w http.ResponseWriter, err error) {
	var quotaErr *QuotaError
	var accErr *AccountRequiredError

	switch {
	case errors.Is(err, ErrRateLimited):
		response.TooManyRequests(w, "rate_limited", "Too many ingest requests, slow down")
	case errors.Is(err, ErrForbiddenRole):
		response.Forbidden(w, "forbidden_role", "Your role is not allowed to upload photos")
	case errors.As(err, &quotaErr):
		response.TooManyRequests(w, quotaErr.Code, quotaErr.Error())
	case errors.As(err, &accErr):
		response.ErrorWithDetails(w, http.StatusConflict, "account_required",
			"Account must be provisioned before uploading",
			map[string]string{"account_id": accErr.ActorID.String()})
	default:
		log.Error().Err(err).Msg("Ingest failed")
		response.InternalError(w)
	}
}

// List handles GET /gallery
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	entries, total, err := h.service.ListPublic(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list gallery")
		response.InternalError(w)
		return
	}

	items := make([]*EntryResponse, 0, len(entries))
	for _, e := range entries {
		items = append(items, EntryResponseFromEntity(e))
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	response.WithMeta(w, items, response.Meta{Total: total, Limit: limit, Offset: offset})
}

// Get handles GET /gallery/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	entry, err := h.service.Get(r.Context(), actorFromContext(r), id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			response.NotFound(w, "Entry not found")
			return
		}
		log.Error().Err(err).Msg("Failed to get entry")
		response.InternalError(w)
		return
	}

	response.OK(w, EntryResponseFromEntity(entry))
}

// UpdateStatus handles PATCH /gallery/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	entry, err := h.service.UpdateStatus(r.Context(), actorFromContext(r), id, Status(req.Status), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			response.NotFound(w, "Entry not found")
		case errors.Is(err, ErrReasonRequired):
			response.BadRequest(w, "A reason is required to reject an entry")
		default:
			log.Error().Err(err).Msg("Failed to update status")
			response.InternalError(w)
		}
		return
	}

	response.OK(w, EntryResponseFromEntity(entry))
}

// SoftDelete handles DELETE /gallery/{id}
func (h *Handler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	if err := h.service.SoftDelete(r.Context(), actorFromContext(r), id); err != nil {
		switch {
		case errors.Is(err, ErrEntryNotFound):
			response.NotFound(w, "Entry not found")
		case errors.Is(err, ErrNotOwner):
			response.Forbidden(w, "FORBIDDEN", "You can only delete your own entries")
		default:
			log.Error().Err(err).Msg("Failed to soft delete entry")
			response.InternalError(w)
		}
		return
	}

	response.NoContent(w)
}

// Restore handles POST /gallery/{id}/restore
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	entry, err := h.service.Restore(r.Context(), actorFromContext(r), id)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			response.NotFound(w, "Entry not found or not deleted")
			return
		}
		log.Error().Err(err).Msg("Failed to restore entry")
		response.InternalError(w)
		return
	}

	response.OK(w, EntryResponseFromEntity(entry))
}

// HardDelete handles DELETE /gallery/{id}/hard
func (h *Handler) HardDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	if err := h.service.HardDelete(r.Context(), actorFromContext(r), id); err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			response.NotFound(w, "Entry not found")
			return
		}
		log.Error().Err(err).Msg("Failed to hard delete entry")
		response.InternalError(w)
		return
	}

	response.NoContent(w)
}

// ListAudit handles GET /gallery/{id}/audit
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid entry ID")
		return
	}

	audits, err := h.service.ListAudit(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list audit entries")
		response.InternalError(w)
		return
	}

	items := make([]*AuditResponse, 0, len(audits))
	for _, a := range audits {
		items = append(items, AuditResponseFromEntity(a))
	}
	response.OK(w, items)
}
