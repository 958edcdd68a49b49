package account

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

// Handler wires HTTP endpoints for account lifecycle.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts", h.handleCreate)
	r.Get("/accounts/{accountID}", h.handleGet)
	r.Put("/accounts/{accountID}", h.handleUpdateInfo)
	r.Put("/accounts/{accountID}/status", h.handleSetStatus)
}

type accountResponse struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Subdomain  string `json:"subdomain"`
	OrgName    string `json:"org_name"`
	Department string `json:"department"`
	Status     string `json:"status"`
}

func toResponse(a Account) accountResponse {
	return accountResponse{
		ID:         a.ID,
		Name:       a.Name,
		Subdomain:  a.Subdomain,
		OrgName:    a.OrgName,
		Department: a.Department,
		Status:     string(a.Status),
	}
}

type createRequest struct {
	Name       string `json:"name" validate:"required"`
	Subdomain  string `json:"subdomain" validate:"required,hostname_rfc1123"`
	OrgName    string `json:"org_name"`
	Department string `json:"department"`
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
	a, err := h.service.Create(r.Context(), caller, CreateInput(req))
	if err != nil {
		h.respondError(w, "create account", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(a))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	caller := shared.PrincipalFromContext(r.Context())
	a, err := h.service.Get(r.Context(), caller, accountID)
	if err != nil {
		h.respondError(w, "get account", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(a))
}

type updateInfoRequest struct {
	Name       string `json:"name" validate:"required"`
	OrgName    string `json:"org_name"`
	Department string `json:"department"`
}

func (h *Handler) handleUpdateInfo(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	var req updateInfoRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.UpdateInfo(r.Context(), caller, accountID, UpdateInfoInput(req)); err != nil {
		h.respondError(w, "update account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING ACTIVE INACTIVE"`
}

func (h *Handler) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	accountID, err := pathAccountID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	var req setStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.SetStatus(r.Context(), caller, accountID, Status(req.Status)); err != nil {
		h.respondError(w, "set account status", err)
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
	case errors.Is(err, ErrSubdomainTaken):
		httpx.Problem(w, http.StatusConflict, "Subdomain Taken", ErrSubdomainTaken.Error())
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func pathAccountID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
}
