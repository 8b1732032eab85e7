package billing

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/agency-api/internal/auth"
	"github.com/noah-isme/agency-api/internal/common"
)

// Handler exposes the catalog and a user's invoices over HTTP.
type Handler struct {
	Repo Repository
}

type serviceResponse struct {
	ID        int64   `json:"id"`
	Slug      string  `json:"slug"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Recurring bool    `json:"recurring"`
}

type invoiceResponse struct {
	ID            int64   `json:"id"`
	InvoiceNumber string  `json:"invoiceNumber"`
	Description   string  `json:"description"`
	Amount        float64 `json:"amount"`
	Status        string  `json:"status"`
	Date          string  `json:"date"`
	DueDate       string  `json:"dueDate"`
}

// Services lists the public price list.
func (h Handler) Services(w http.ResponseWriter, r *http.Request) {
	services, err := h.Repo.Services(r.Context())
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list services")
		common.WriteError(w, err)
		return
	}
	out := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		out = append(out, serviceResponse{
			ID:        s.ID,
			Slug:      s.Slug,
			Name:      s.Name,
			Price:     s.Price.InexactFloat64(),
			Recurring: s.Recurring,
		})
	}
	common.JSON(w, http.StatusOK, out)
}

// UserInvoices lists the caller's invoices.
func (h Handler) UserInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := common.UserID(r.Context())
	if !ok {
		auth.Unauthorized(w)
		return
	}
	invoices, err := h.Repo.Invoices(r.Context(), userID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list invoices")
		common.WriteError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, invoiceResponse{
			ID:            inv.ID,
			InvoiceNumber: inv.Number,
			Description:   inv.Description,
			Amount:        inv.Amount.InexactFloat64(),
			Status:        string(inv.Status),
			Date:          inv.IssuedAt.Format("2006-01-02"),
			DueDate:       inv.DueAt.Format("2006-01-02"),
		})
	}
	common.JSON(w, http.StatusOK, out)
}
