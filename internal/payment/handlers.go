package payment

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/agency-api/internal/common"
)

// Handler exposes recorded intent state to its owner.
type Handler struct {
	Svc *Service
}

// Status handles GET /api/payments/{provider}/{id}.
func (h Handler) Status(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "PAYMENTS_UNAVAILABLE", "payment service unavailable", nil)
		return
	}
	name, err := ParseName(chi.URLParam(r, "provider"))
	if err != nil {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "unknown payment provider", nil)
		return
	}
	userID, _ := common.UserID(r.Context())
	rec, err := h.Svc.Status(r.Context(), name, chi.URLParam(r, "id"), userID)
	if errors.Is(err, ErrIntentNotFound) {
		common.JSONError(w, http.StatusNotFound, common.CodeNotFound, "payment not found", nil)
		return
	}
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, rec)
}
