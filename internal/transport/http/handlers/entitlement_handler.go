package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	authsvc "github.com/trusteero/getlost-portal-sub003/internal/services/auth"
	entsvc "github.com/trusteero/getlost-portal-sub003/internal/services/entitlements"
	httperrors "github.com/trusteero/getlost-portal-sub003/internal/transport/http/errors"
)

type EntitlementHandler struct {
	entitlements *entsvc.Service
}

func NewEntitlementHandler(entitlements *entsvc.Service) *EntitlementHandler {
	return &EntitlementHandler{entitlements: entitlements}
}

func (h *EntitlementHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := authsvc.IdentityFromContext(r.Context()); !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.entitlements == nil {
		writeInternal(w, "ENTITLEMENTS_SERVICE_UNAVAILABLE", "entitlements service is unavailable")
		return
	}

	bookID, err := strconv.ParseInt(chi.URLParam(r, "bookID"), 10, 64)
	if err != nil || bookID <= 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid book id")
		return
	}

	entitlement, err := h.entitlements.Get(r.Context(), bookID, chi.URLParam(r, "capability"))
	if err != nil {
		switch {
		case errors.Is(err, entsvc.ErrValidation), errors.Is(err, entsvc.ErrUnsupportedCapability):
			writeBadRequest(w, "VALIDATION_ERROR", "invalid entitlement request")
		default:
			writeInternal(w, "INTERNAL_ERROR", "failed to load entitlement")
		}
		return
	}

	httperrors.Write(w, http.StatusOK, toEntitlementResponse(entitlement))
}
