package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
	creditsvc "github.com/trusteero/getlost-portal-sub003/internal/services/credits"
	"github.com/trusteero/getlost-portal-sub003/internal/transport/http/dto"
	httperrors "github.com/trusteero/getlost-portal-sub003/internal/transport/http/errors"
)

type CreditHandler struct {
	credits *creditsvc.Service
}

func NewCreditHandler(credits *creditsvc.Service) *CreditHandler {
	return &CreditHandler{credits: credits}
}

func (h *CreditHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.credits == nil {
		writeInternal(w, "CREDITS_SERVICE_UNAVAILABLE", "credits service is unavailable")
		return
	}

	capability := chi.URLParam(r, "capability")
	summary, err := h.credits.Summary(r.Context(), identity.UserID, capability)
	if err != nil {
		switch {
		case errors.Is(err, creditsvc.ErrValidation), errors.Is(err, creditsvc.ErrUnsupportedCapability):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid credit request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load credit summary")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, dto.CreditSummaryResponse{
		Capability:    strings.ToLower(strings.TrimSpace(capability)),
		Purchased:     summary.Purchased,
		Consumed:      summary.Consumed,
		Remaining:     summary.Remaining,
		HasPermission: summary.HasPermission,
	})
}
