package invitation

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stratus-cloud/stratus/internal/authz"
	"github.com/stratus-cloud/stratus/internal/platform/httpx"
	"github.com/stratus-cloud/stratus/internal/shared"
	"github.com/stratus-cloud/stratus/internal/user"
)

// Handler wires HTTP endpoints for the invitation ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers invitation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/accounts/{accountID}/invitations", h.handleInvite)
	r.Get("/accounts/{accountID}/invitations", h.handleListPending)
	r.Delete("/accounts/{accountID}/invitations/{invitationID}", h.handleDeletePending)
	r.Post("/invitations/redeem", h.handleRedeem)
	r.Post("/password/forgot", h.handleRequestReset)
	r.Post("/password/reset", h.handleRedeemReset)
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type invitationResponse struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func toResponse(inv Invitation) invitationResponse {
	return invitationResponse{
		ID:        inv.ID,
		Email:     inv.Email,
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleInvite(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	var req inviteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.Invite(r.Context(), caller, accountID, req.Email)
	if err != nil {
		h.respondError(w, "invite", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(inv))
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	pending, err := h.service.ListPending(r.Context(), caller, accountID)
	if err != nil {
		h.respondError(w, "list pending", err)
		return
	}
	out := make([]invitationResponse, 0, len(pending))
	for _, inv := range pending {
		out = append(out, toResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invitations": out})
}

func (h *Handler) handleDeletePending(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "accountID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Account", "account id must be numeric")
		return
	}
	invitationID, err := strconv.ParseInt(chi.URLParam(r, "invitationID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Invitation", "invitation id must be numeric")
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	if err := h.service.DeletePending(r.Context(), caller, accountID, invitationID); err != nil {
		h.respondError(w, "delete pending", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type redeemRequest struct {
	Code string `json:"code" validate:"required"`
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	caller := shared.PrincipalFromContext(r.Context())
	accountID, err := h.service.Redeem(r.Context(), caller, req.Code)
	if err != nil {
		h.respondError(w, "redeem", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": accountID})
}

type forgotRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req forgotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	err := h.service.RequestPasswordReset(r.Context(), req.Email)
	if err != nil && !errors.Is(err, user.ErrNotFound) {
		h.respondError(w, "request reset", err)
		return
	}
	// Unknown addresses get the same answer as known ones.
	w.WriteHeader(http.StatusAccepted)
}

type resetRequest struct {
	Code     string `json:"code" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleRedeemReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
		return
	}

	if err := h.service.RedeemPasswordReset(r.Context(), req.Code, req.Password); err != nil {
		h.respondError(w, "redeem reset", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, authz.ErrDenied):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, ErrInvalidCode):
		httpx.Problem(w, http.StatusGone, "Invalid Code", ErrInvalidCode.Error())
	case errors.Is(err, ErrUnsentInvitation):
		httpx.Problem(w, http.StatusBadGateway, "Delivery Failed", ErrUnsentInvitation.Error())
	case errors.Is(err, ErrCodeExhausted):
		httpx.Problem(w, http.StatusConflict, "Code Collision", ErrCodeExhausted.Error())
	case errors.Is(err, user.ErrInvalidPassword):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", user.ErrInvalidPassword.Error())
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	default:
		h.logger.Error(action, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
