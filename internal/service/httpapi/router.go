package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/orders"
	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
	"github.com/vladislavdragonenkov/marketplace/internal/service/report"
)

const (
	// BasePath — префикс всех маршрутов API.
	BasePath = "/api/v1"

	headerUserID   = "X-User-ID"
	headerSellerID = "X-Seller-ID"

	maxBodyBytes = 1 << 20
)

// OrderService — операции заказов, доступные через REST.
type OrderService interface {
	CreateOrders(ctx context.Context, buyerID string, requests []orders.CreateOrderRequest) ([]domain.Order, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListSellerOrders(ctx context.Context, filter domain.SellerOrderFilter) (domain.OrderPage, error)
	ListTimeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status domain.OrderStatus) (domain.Order, error)
	UpdateOrdersStatus(ctx context.Context, orderIDs []string, status domain.OrderStatus) ([]domain.Order, error)
	RequestCancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	AcceptCancel(ctx context.Context, orderID string) (domain.Order, error)
	RequestRefund(ctx context.Context, orderID, reason string, evidence []string) (domain.Order, error)
	AcceptRefund(ctx context.Context, orderID string) (domain.Order, error)
	RejectRefund(ctx context.Context, orderID, reason string) (domain.Order, error)
	Reject(ctx context.Context, orderID, reason string) (domain.Order, error)
}

// PaymentService — онлайн-оплата и уведомления шлюза.
type PaymentService interface {
	CreateGatewayPayment(ctx context.Context, req payment.CreatePaymentRequest) (json.RawMessage, error)
	HandleCallback(ctx context.Context, req payment.CallbackRequest) payment.CallbackResult
}

// InventoryService — пополнение склада продавцом.
type InventoryService interface {
	Restock(ctx context.Context, sellerID, userID, productID string, quantity int) (domain.Product, error)
}

// ReportService — статистика продавца.
type ReportService interface {
	Revenue(ctx context.Context, sellerID string, cycle report.Cycle) (report.Comparison, error)
	OrderCount(ctx context.Context, sellerID string, cycle report.Cycle) (report.OrderCount, error)
	CustomerCount(ctx context.Context, sellerID string, cycle report.Cycle) (report.Comparison, error)
	MonthlyRevenue(ctx context.Context, sellerID string, months int) ([]report.MonthRevenue, error)
	Customers(ctx context.Context, sellerID string) (report.CustomerSummary, error)
}

// Config — зависимости REST-слоя.
type Config struct {
	Orders    OrderService
	Payments  PaymentService
	Inventory InventoryService
	Reports   ReportService

	// Idempotency включает обработку заголовка Idempotency-Key; nil отключает.
	Idempotency    domain.IdempotencyRepository
	IdempotencyTTL time.Duration

	Logger *log.Entry
	Now    func() time.Time
}

// API — обработчики REST.
type API struct {
	orders    OrderService
	payments  PaymentService
	inventory InventoryService
	reports   ReportService
	idem      domain.IdempotencyRepository
	idemTTL   time.Duration
	logger    *log.Entry
	now       func() time.Time
}

// New собирает API из зависимостей.
func New(cfg Config) *API {
	a := &API{
		orders:    cfg.Orders,
		payments:  cfg.Payments,
		inventory: cfg.Inventory,
		reports:   cfg.Reports,
		idem:      cfg.Idempotency,
		idemTTL:   cfg.IdempotencyTTL,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if a.logger == nil {
		a.logger = log.WithField("component", "http")
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	if a.idemTTL <= 0 {
		a.idemTTL = 24 * time.Hour
	}
	return a
}

// Handler возвращает chi-роутер со всеми маршрутами под BasePath.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route(BasePath, func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.With(a.idempotent).Post("/", a.createOrders)
			r.Get("/", a.listBuyerOrders)
			r.Patch("/status", a.updateOrdersStatus)

			r.Route("/seller", func(r chi.Router) {
				r.Get("/", a.listSellerOrders)
				r.Get("/statistics/revenue", a.revenue)
				r.Get("/statistics/orders", a.orderCount)
				r.Get("/statistics/customers", a.customerCount)
				r.Get("/statistics/customers/summary", a.customerSummary)
				r.Get("/statistics/monthly-revenue", a.monthlyRevenue)
			})

			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", a.getOrder)
				r.Get("/timeline", a.listTimeline)
				r.Patch("/status", a.updateOrderStatus)
				r.Patch("/reject", a.rejectOrder)
				r.Patch("/request-cancel", a.requestCancel)
				r.Patch("/accept-cancel", a.acceptCancel)
				r.Patch("/request-refund", a.requestRefund)
				r.Patch("/accept-refund", a.acceptRefund)
				r.Patch("/reject-refund", a.rejectRefund)
			})
		})

		r.Patch("/products/{productID}/quantity", a.restock)

		r.Route("/payments/zalopay", func(r chi.Router) {
			r.With(a.idempotent).Post("/", a.createGatewayPayment)
			r.Post("/callback", a.zalopayCallback)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, newAPIError("not_found", "route not found", http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, r, newAPIError("method_not_allowed", "method not allowed", http.StatusMethodNotAllowed))
	})
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := a.logger.WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request served")
	})
}

// fail пишет ошибку сервиса; внутренние ошибки логируются, клиенту уходит общий текст.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		a.logger.WithError(err).WithFields(log.Fields{
			"path":       r.URL.Path,
			"request_id": middleware.GetReqID(r.Context()),
		}).Error("request handler failed")
	}
	writeAPIError(w, r, e)
}

func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeAPIError(w, r, newAPIError("invalid_request", message, http.StatusBadRequest))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			badRequest(w, r, "request body is required")
			return false
		}
		badRequest(w, r, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerUserID))
}

func sellerID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(headerSellerID))
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := userID(r)
	if id == "" {
		writeAPIError(w, r, newAPIError("unauthenticated", headerUserID+" header is required", http.StatusUnauthorized))
		return "", false
	}
	return id, true
}

func requireSeller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := sellerID(r)
	if id == "" {
		writeAPIError(w, r, newAPIError("unauthenticated", headerSellerID+" header is required", http.StatusUnauthorized))
		return "", false
	}
	return id, true
}
