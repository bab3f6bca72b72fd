package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
)

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

type batchStatusRequest struct {
	OrderIDs []string           `json:"orderIds"`
	Status   domain.OrderStatus `json:"status"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// cancelRequest принимает cancelReason и старое поле reason.
type cancelRequest struct {
	CancelReason string `json:"cancelReason"`
	Reason       string `json:"reason"`
}

func (r cancelRequest) reason() string {
	return firstNonBlank(r.CancelReason, r.Reason)
}

// refundRequest принимает refundReason/refundReasonImage и старые reason/evidence.
type refundRequest struct {
	RefundReason      string   `json:"refundReason"`
	RefundReasonImage []string `json:"refundReasonImage"`
	Reason            string   `json:"reason"`
	Evidence          []string `json:"evidence"`
}

func (r refundRequest) reason() string {
	return firstNonBlank(r.RefundReason, r.Reason)
}

func (r refundRequest) evidence() []string {
	if len(r.RefundReasonImage) > 0 {
		return r.RefundReasonImage
	}
	return r.Evidence
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func (a *API) createOrders(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req []orders.CreateOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := a.orders.CreateOrders(r.Context(), buyerID, req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) listBuyerOrders(w http.ResponseWriter, r *http.Request) {
	buyerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := a.orders.ListBuyerOrders(r.Context(), buyerID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) listSellerOrders(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	filter, err := parseSellerFilter(r)
	if err != nil {
		badRequest(w, r, err.Error())
		return
	}
	filter.SellerID = seller

	page, err := a.orders.ListSellerOrders(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func parseSellerFilter(r *http.Request) (domain.SellerOrderFilter, error) {
	q := r.URL.Query()
	filter := domain.SellerOrderFilter{
		Search:   strings.TrimSpace(q.Get("search")),
		Province: strings.TrimSpace(q.Get("province")),
		District: strings.TrimSpace(q.Get("district")),
		Ward:     strings.TrimSpace(q.Get("ward")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		filter.Status = domain.OrderStatus(raw)
	}

	var err error
	if filter.Page, err = intParam(q.Get("page"), "page"); err != nil {
		return filter, err
	}
	if filter.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return filter, err
	}
	if filter.From, err = dateParam(q.Get("startDate"), "startDate"); err != nil {
		return filter, err
	}
	if filter.To, err = dateParam(q.Get("endDate"), "endDate"); err != nil {
		return filter, err
	}
	return filter, nil
}

func intParam(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name: name, want: "an integer"}
	}
	return v, nil
}

// dateParam принимает YYYY-MM-DD или RFC3339.
func dateParam(raw, name string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, &paramError{name: name, want: "a date (YYYY-MM-DD) or RFC3339 timestamp"}
	}
	return ts, nil
}

type paramError struct {
	name string
	want string
}

func (e *paramError) Error() string { return e.name + " must be " + e.want }

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.orders.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (a *API) listTimeline(w http.ResponseWriter, r *http.Request) {
	events, err := a.orders.ListTimeline(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (a *API) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.orders.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderID"), req.Status)
	a.writeOrder(w, r, order, err)
}

func (a *API) updateOrdersStatus(w http.ResponseWriter, r *http.Request) {
	var req batchStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := a.orders.UpdateOrdersStatus(r.Context(), req.OrderIDs, req.Status)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) rejectOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.orders.Reject(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	a.writeOrder(w, r, order, err)
}

func (a *API) requestCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.orders.RequestCancel(r.Context(), chi.URLParam(r, "orderID"), req.reason())
	a.writeOrder(w, r, order, err)
}

func (a *API) acceptCancel(w http.ResponseWriter, r *http.Request) {
	order, err := a.orders.AcceptCancel(r.Context(), chi.URLParam(r, "orderID"))
	a.writeOrder(w, r, order, err)
}

func (a *API) requestRefund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.orders.RequestRefund(r.Context(), chi.URLParam(r, "orderID"), req.reason(), req.evidence())
	a.writeOrder(w, r, order, err)
}

func (a *API) acceptRefund(w http.ResponseWriter, r *http.Request) {
	order, err := a.orders.AcceptRefund(r.Context(), chi.URLParam(r, "orderID"))
	a.writeOrder(w, r, order, err)
}

func (a *API) rejectRefund(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := a.orders.RejectRefund(r.Context(), chi.URLParam(r, "orderID"), req.Reason)
	a.writeOrder(w, r, order, err)
}

func (a *API) writeOrder(w http.ResponseWriter, r *http.Request, order domain.Order, err error) {
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
