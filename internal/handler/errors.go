package handler

import (
	"context"
	"maps"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/rihla-backoffice/internal/domain"
	"github.com/xenking/rihla-backoffice/internal/domain/auth"
	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
	"github.com/xenking/rihla-backoffice/internal/domain/pricing"
	"github.com/xenking/rihla-backoffice/pkg/httpmiddleware"
)

// Error kinds of the response body.
const (
	KindValidation        = "validation"
	KindNotFound          = "not_found"
	KindInsufficientStock = "insufficient_stock"
	KindConflict          = "conflict"
	KindUnauthorized      = "unauthorized"
	KindInternal          = "internal"
)

// apiError is a mapped domain error.
type apiError struct {
	status  int
	kind    string
	message string
	details map[string]any
}

// mapError translates a domain error into its HTTP form. Unrecognized errors
// are internal.
func mapError(err error) apiError {
	var (
		verr      *domain.ValidationError
		lineErr   *pricing.InvalidLineItemError
		stockErr  *inventory.InsufficientStockError
		missing   *inventory.ProductNotFoundError
		stageErr  *order.StageError
		stageName string
	)
	if errors.As(err, &stageErr) {
		stageName = string(stageErr.Stage)
	}
	withStage := func(d map[string]any) map[string]any {
		if stageName == "" {
			return d
		}
		if d == nil {
			d = make(map[string]any, 1)
		}
		d["stage"] = stageName
		return d
	}

	switch {
	case errors.As(err, &verr):
		return apiError{http.StatusBadRequest, KindValidation, verr.Error(), withStage(map[string]any{"field": verr.Field})}
	case errors.As(err, &lineErr):
		return apiError{http.StatusBadRequest, KindValidation, lineErr.Error(), withStage(map[string]any{"product_id": lineErr.ProductID})}
	case errors.Is(err, pricing.ErrEmptyOrder), errors.Is(err, pricing.ErrNegativeShipping):
		return apiError{http.StatusBadRequest, KindValidation, rootMessage(err), withStage(nil)}
	case errors.As(err, &missing):
		return apiError{http.StatusUnprocessableEntity, KindNotFound, missing.Error(), withStage(map[string]any{"product_id": missing.ProductID})}
	case errors.As(err, &stockErr):
		return apiError{http.StatusConflict, KindInsufficientStock, stockErr.Error(), withStage(map[string]any{
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})}
	case errors.Is(err, order.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: KindNotFound, message: "order not found"}
	case errors.Is(err, customer.ErrNotFound):
		return apiError{status: http.StatusNotFound, kind: KindNotFound, message: "customer not found"}
	case errors.Is(err, order.ErrRequestInFlight):
		return apiError{status: http.StatusConflict, kind: KindConflict, message: order.ErrRequestInFlight.Error()}
	case errors.Is(err, domain.ErrConflict):
		return apiError{http.StatusServiceUnavailable, KindConflict, "the order could not be placed due to concurrent updates, retry later", withStage(nil)}
	case errors.Is(err, auth.ErrUnauthorized):
		return apiError{status: http.StatusUnauthorized, kind: KindUnauthorized, message: "unauthorized"}
	default:
		return apiError{http.StatusInternalServerError, KindInternal, "internal server error", withStage(nil)}
	}
}

// rootMessage returns the message of the innermost error.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// writeError maps err and writes the error body. Internal errors are logged
// with their cause; the body never carries it.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ae := mapError(err)
	lg := zctx.From(ctx)
	if ae.status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.String("kind", ae.kind), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.String("kind", ae.kind), zap.Error(err))
	}
	if ae.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, ae.status, func(e *jx.Encoder) { encodeError(e, ae) })
}

func encodeError(e *jx.Encoder, ae apiError) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(ae.status)
	e.FieldStart("kind")
	e.Str(ae.kind)
	e.FieldStart("message")
	e.Str(ae.message)
	if len(ae.details) > 0 {
		e.FieldStart("details")
		e.ObjStart()
		for _, k := range sortedKeys(ae.details) {
			e.FieldStart(k)
			switch v := ae.details[k].(type) {
			case int:
				e.Int(v)
			case string:
				e.Str(v)
			}
		}
		e.ObjEnd()
	}
	e.ObjEnd()
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// unauthorized writes a 401 without consulting the domain mapping.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="rihla"`)
	httpmiddleware.WriteError(w, http.StatusUnauthorized, KindUnauthorized, "unauthorized")
}
