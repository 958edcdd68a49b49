package user

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/platform/httpx"
	"github.com/stratus-cloud/stratus/internal/shared"
)

// Handler wires HTTP endpoints for user lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers user routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/users/check-username", h.handleCheckUsername)
	r.Post("/users", h.handleCreate)
	r.Get("/users/{username}", h.handleLoad)
	r.Put("/users/{id}", h.handleStoreDetails)
	r.Put("/users/{id}/password", h.handleChangePassword)
}

type userResponse struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	RootAdmin bool   `json:"root_admin"`
}

func toResponse(u User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		RootAdmin: u.RootAdmin,
	}
}

func (h *Handler) handleCheckUsername(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	caller := shared.PrincipalFromContext(r.Context())
	err := h.service.CheckUsername(r.Context(), caller, username)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]any{"available": true})
	case errors.Is(err, ErrUsernameTaken):
		httpx.JSON(w, http.StatusOK, map[string]any{"available": false})
	case errors.Is(err, ErrInvalidUsername):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	default:
		h.respondError(w, "check username", err)
	}
}

type createRequest struct {
	Username         string `json:"username" validate:"required"`
	Password         string `json:"password" validate:"required,min=8"`
	Email            string `json:"email" validate:"required,email"`
	FirstName        string `json:"first_name" validate:"required"`
	LastName         string `json:"last_name" validate:"required"`
	SecurityQuestion string `json:"security_question"`
	SecurityAnswer   string `json:"security_answer"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	u, err := h.service.Create(r.Context(), caller, CreateInput{
		Username:         req.Username,
		Password:         req.Password,
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		SecurityQuestion: req.SecurityQuestion,
		SecurityAnswer:   req.SecurityAnswer,
	})
	if err != nil {
		h.respondError(w, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(u))
}

func (h *Handler) handleLoad(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	caller := shared.PrincipalFromContext(r.Context())
	u, err := h.service.LoadByUsername(r.Context(), caller, username)
	if err != nil {
		h.respondError(w, "load user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(u))
}

type detailsRequest struct {
	Email            string `json:"email" validate:"required,email"`
	FirstName        string `json:"first_name" validate:"required"`
	LastName         string `json:"last_name" validate:"required"`
	SecurityQuestion string `json:"security_question"`
	SecurityAnswer   string `json:"security_answer"`
}

func (h *Handler) handleStoreDetails(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", "user id must be numeric")
		return
	}
	var req detailsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.StoreDetails(r.Context(), caller, userID, DetailsInput{
		Email:            req.Email,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		SecurityQuestion: req.SecurityQuestion,
		SecurityAnswer:   req.SecurityAnswer,
	}); err != nil {
		h.respondError(w, "store details", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", "user id must be numeric")
		return
	}
	var req changePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.ChangePassword(r.Context(), caller, userID, req.OldPassword, req.NewPassword); err != nil {
		h.respondError(w, "change password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, authz.ErrDenied):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrUsernameTaken):
		httpx.Problem(w, http.StatusConflict, "Username Taken", ErrUsernameTaken.Error())
	case errors.Is(err, ErrInvalidUsername):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, ErrInvalidPassword):
		httpx.RespondError(w, httpx.ErrUnauthorized)
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
