package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment/zalopay"
)

// apiError — JSON-конверт ошибки.
type apiError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func newAPIError(code, message string, status int) apiError {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return apiError{Code: code, Message: sanitize(message, 512), Status: status}
}

func (e apiError) withDetails(details map[string]any) apiError {
	if len(details) == 0 {
		return e
	}
	e.Details = make(map[string]any, len(details))
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// classify переводит ошибку сервиса в HTTP-ответ по её классу.
func classify(err error) apiError {
	var out apiError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		out = newAPIError("not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument):
		out = newAPIError("invalid_argument", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidState):
		out = newAPIError("invalid_state", err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrConflict):
		out = newAPIError("conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrSignatureMismatch):
		out = newAPIError("signature_mismatch", err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUpstream):
		out = newAPIError("upstream_error", err.Error(), http.StatusBadRequest)
	default:
		return newAPIError("internal", "internal server error", http.StatusInternalServerError)
	}

	var batchErr *orders.BatchTransitionError
	if errors.As(err, &batchErr) {
		out = out.withDetails(map[string]any{"orderId": batchErr.OrderID, "index": batchErr.Index})
	}
	var gwErr *zalopay.GatewayError
	if errors.As(err, &gwErr) {
		out = out.withDetails(map[string]any{"provider": zalopay.Provider, "status": gwErr.StatusCode, "response": gwErr.Body})
	}
	return out
}

func writeAPIError(w http.ResponseWriter, r *http.Request, e apiError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
	}
	if id := middleware.GetReqID(r.Context()); id != "" {
		payload["requestId"] = sanitize(id, 80)
	}
	if len(e.Details) > 0 {
		payload["details"] = e.Details
	}
	writeJSON(w, e.Status, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\r", "")
	value = strings.ReplaceAll(value, "\n", "; ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
