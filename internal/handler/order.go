package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
)

// PlaceOrder decodes the request, places the order and answers 201. A replay
// of a completed Idempotency-Key answers 200 with the original order.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req, err := decodePlaceOrder(body)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	req.IdempotencyKey = strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))

	res, err := h.orders.PlaceOrder(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
		w.Header().Set("Idempotent-Replayed", "true")
	}
	w.Header().Set("Location", "/api/orders/"+res.Order.ID)
	writeJSON(w, status, func(e *jx.Encoder) { encodePlaced(e, res) })
}

// UpdateOrderStatus overwrites the status of an order.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	status, err := decodeStatus(body)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	o, err := h.orders.UpdateStatus(ctx, chi.URLParam(r, "id"), status)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// GetOrder returns one order by id.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	o, err := h.orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// ListOrders returns orders filtered by brand_id and status, newest first.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	f := order.Filter{
		BrandID: q.Get("brand_id"),
		Status:  order.Status(q.Get("status")),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			writeError(ctx, w, domain.Invalid("limit", "must be a positive integer"))
			return
		}
		f.Limit = limit
	}

	orders, err := h.orders.ListOrders(ctx, f)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeOrders(e, orders) })
}
