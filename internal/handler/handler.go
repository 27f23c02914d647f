// Package handler exposes the order and invoice operations over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/rihla-backoffice/internal/domain/invoice"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
	"github.com/xenking/rihla-backoffice/pkg/httpmiddleware"
)

// IdempotencyKeyHeader names the client-chosen place-order token.
const IdempotencyKeyHeader = "Idempotency-Key"

// Handler serves the API routes.
type Handler struct {
	orders   *order.Service
	invoices *invoice.Projector
}

// NewHandler returns a Handler over the order service and invoice projector.
func NewHandler(orders *order.Service, invoices *invoice.Projector) *Handler {
	return &Handler{orders: orders, invoices: invoices}
}

// Routes mounts the API on a chi router. Order routes require sec; invoice
// routes under /api/public never read credentials.
func (h *Handler) Routes(sec *SecurityHandler) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, KindNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, KindValidation, "method not allowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(sec.RequireAuth)
			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Put("/orders/{id}/status", h.UpdateOrderStatus)
		})
		r.Route("/public", func(r chi.Router) {
			r.Get("/invoice/{customerId}", h.GetInvoice)
			r.Get("/invoice-by-order/{orderId}", h.GetOrderInvoice)
		})
	})
	return r
}

// GetInvoice returns the invoice of a customer.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := h.invoices.ForCustomer(ctx, chi.URLParam(r, "customerId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeInvoice(e, inv) })
}

// GetOrderInvoice returns the invoice of one order, by id or order number.
func (h *Handler) GetOrderInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := h.invoices.ForOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrderInvoice(e, inv) })
}
