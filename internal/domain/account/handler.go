package account

import (
	"encoding/json"
	"net/http"

	"github.com/framegrid/gallery-api/internal/pkg/response"
	"github.com/framegrid/gallery-api/internal/pkg/validator"
)

// Handler handles account HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates account handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Provision handles POST /accounts
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var req ProvisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	acc, err := h.service.Provision(r.Context(), &req)
	if err != nil {
		switch err {
		case ErrEmailTaken:
			response.Conflict(w, "EMAIL_TAKEN", "An account with this email already exists")
		default:
			response.InternalError(w)
		}
		return
	}

	response.Created(w, AccountResponseFromEntity(acc))
}

// Token handles POST /accounts/token
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	token, acc, err := h.service.IssueToken(r.Context(), &req)
	if err != nil {
		switch err {
		case ErrInvalidCredentials:
			response.Unauthorized(w, "Invalid email or password")
		default:
			response.InternalError(w)
		}
		return
	}

	response.OK(w, &TokenResponse{
		Token:   token,
		Account: AccountResponseFromEntity(acc),
	})
}
