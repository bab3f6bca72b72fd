package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/service/report"
)

const maxReportMonths = 24

func (a *API) revenue(w http.ResponseWriter, r *http.Request) {
	a.cycleStat(w, r, func(seller string, cycle report.Cycle) (any, error) {
		return a.reports.Revenue(r.Context(), seller, cycle)
	})
}

func (a *API) orderCount(w http.ResponseWriter, r *http.Request) {
	a.cycleStat(w, r, func(seller string, cycle report.Cycle) (any, error) {
		return a.reports.OrderCount(r.Context(), seller, cycle)
	})
}

func (a *API) customerCount(w http.ResponseWriter, r *http.Request) {
	a.cycleStat(w, r, func(seller string, cycle report.Cycle) (any, error) {
		return a.reports.CustomerCount(r.Context(), seller, cycle)
	})
}

func (a *API) cycleStat(w http.ResponseWriter, r *http.Request, fn func(seller string, cycle report.Cycle) (any, error)) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	cycle, err := report.ParseCycle(r.URL.Query().Get("type"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out, err := fn(seller, cycle)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) monthlyRevenue(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	months := report.DefaultMonths
	if raw := strings.TrimSpace(r.URL.Query().Get("months")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 || v > maxReportMonths {
			badRequest(w, r, "months must be an integer between 1 and 24")
			return
		}
		months = v
	}
	out, err := a.reports.MonthlyRevenue(r.Context(), seller, months)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) customerSummary(w http.ResponseWriter, r *http.Request) {
	seller, ok := requireSeller(w, r)
	if !ok {
		return
	}
	out, err := a.reports.Customers(r.Context(), seller)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
