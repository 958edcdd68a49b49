package rights

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

// Handler wires HTTP endpoints for account membership management.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers rights routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{accountID}/members", h.handleListMembers)
	r.Put("/accounts/{accountID}/members/{userID}/roles", h.handleSetRoles)
	r.Delete("/accounts/{accountID}/members/{userID}", h.handleRevoke)
}

type setRolesRequest struct {
	Roles []string `json:"roles" validate:"required,min=1,dive,required"`
}

type memberResponse struct {
	UserID   int64    `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (h *Handler) handleListMembers(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	caller := shared.PrincipalFromContext(r.Context())
	members, err := h.service.ListMembers(r.Context(), caller, accountID)
	if err != nil {
		h.respondError(w, r, "list members", err)
		return
	}
	out := make([]memberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponse{
			UserID:   m.UserID,
			Username: m.Username,
			Email:    m.Email,
			Roles:    roleNames(m.Roles),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": out})
}

func (h *Handler) handleSetRoles(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", "user id must be numeric")
		return
	}

	var req setRolesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}
	roles := make([]authz.Role, 0, len(req.Roles))
	for _, name := range req.Roles {
		role, err := authz.ParseRole(name)
		if err != nil {
			httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", "unknown role "+name)
			return
		}
		roles = append(roles, role)
	}

	caller := shared.PrincipalFromContext(r.Context())
	changed, err := h.service.GrantRoles(r.Context(), caller, accountID, userID, roles)
	if err != nil {
		h.respondError(w, r, "set roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"changed": changed})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid User", "user id must be numeric")
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.RevokeAllRights(r.Context(), caller, accountID, userID); err != nil {
		h.respondError(w, r, "revoke rights", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, action string, err error) {
	switch {
	case errors.Is(err, authz.ErrDenied):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrEmptyRoleSet):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", ErrEmptyRoleSet.Error())
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
