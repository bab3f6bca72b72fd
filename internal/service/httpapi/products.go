package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type restockRequest struct {
	Quantity int `json:"quantity"`
}

func (a *API) restock(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req restockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	product, err := a.inventory.Restock(r.Context(), sellerID(r), user, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}
