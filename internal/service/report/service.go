package report

import (
	"context"
	"math"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultMonths — глубина помесячной выручки.
const DefaultMonths = 5

// Comparison сравнивает текущий период с предыдущим.
type Comparison struct {
	CurrentCycle  int64 `json:"currentCycle"`
	PreviousCycle int64 `json:"previousCycle"`
	Percentage    int64 `json:"percentage"`
}

// OrderCount — количество заказов и их сумма без доставки.
type OrderCount struct {
	Comparison
	CurrentCycleTotalPrice  int64 `json:"currentCycleTotalPrice"`
	PreviousCycleTotalPrice int64 `json:"previousCycleTotalPrice"`
}

// MonthRevenue — выручка за календарный месяц.
type MonthRevenue struct {
	Month        string `json:"month"`
	TotalRevenue int64  `json:"totalRevenue"`
	TotalOrders  int    `json:"totalOrders"`
}

// CustomerSummary — сводка по покупателям продавца за всё время.
type CustomerSummary struct {
	TotalCustomers     int     `json:"totalCustomers"`
	AverageRevenue     float64 `json:"avrgRevenue"`
	ReturningCustomers int     `json:"returningCustomers"`
}

// Service считает статистику продавца по заказам.
type Service struct {
	orders domain.OrderRepository
	logger *log.Entry
	now    func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithClock задаёт источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService создаёт сервис статистики.
func NewService(orders domain.OrderRepository, options ...Option) *Service {
	s := &Service{
		orders: orders,
		logger: log.WithField("component", "report"),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Revenue — выручка по оплаченным заказам, кроме отменённых, отклонённых
// и возвращённых.
func (s *Service) Revenue(ctx context.Context, sellerID string, cycle Cycle) (Comparison, error) {
	current, previous, err := s.cycleOrders(ctx, sellerID, cycle)
	if err != nil {
		return Comparison{}, err
	}
	cur := sumRevenue(filter(current, countsAsRevenue))
	prev := sumRevenue(filter(previous, countsAsRevenue))
	return compare(cur, prev), nil
}

// OrderCount — число заказов, кроме отменённых и отклонённых.
func (s *Service) OrderCount(ctx context.Context, sellerID string, cycle Cycle) (OrderCount, error) {
	current, previous, err := s.cycleOrders(ctx, sellerID, cycle)
	if err != nil {
		return OrderCount{}, err
	}
	current = filter(current, countsAsOrder)
	previous = filter(previous, countsAsOrder)
	return OrderCount{
		Comparison:              compare(int64(len(current)), int64(len(previous))),
		CurrentCycleTotalPrice:  sumRevenue(current),
		PreviousCycleTotalPrice: sumRevenue(previous),
	}, nil
}

// CustomerCount — число разных покупателей, кроме отменённых и отклонённых заказов.
func (s *Service) CustomerCount(ctx context.Context, sellerID string, cycle Cycle) (Comparison, error) {
	current, previous, err := s.cycleOrders(ctx, sellerID, cycle)
	if err != nil {
		return Comparison{}, err
	}
	cur := distinctBuyers(filter(current, countsAsOrder))
	prev := distinctBuyers(filter(previous, countsAsOrder))
	return compare(int64(cur), int64(prev)), nil
}

// MonthlyRevenue — выручка за последние months месяцев, включая текущий,
// от старого к новому. Месяцы без заказов возвращаются с нулями.
func (s *Service) MonthlyRevenue(ctx context.Context, sellerID string, months int) ([]MonthRevenue, error) {
	if err := requireSeller(sellerID); err != nil {
		return nil, err
	}
	if months <= 0 {
		months = DefaultMonths
	}

	now := s.now()
	end := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	start := end.AddDate(0, -months, 0)

	list, err := s.orders.ListForReport(ctx, sellerID, start, end)
	if err != nil {
		return nil, err
	}

	out := make([]MonthRevenue, months)
	index := make(map[string]int, months)
	for i := 0; i < months; i++ {
		month := start.AddDate(0, i, 0).Format("2006-01")
		out[i] = MonthRevenue{Month: month}
		index[month] = i
	}
	for _, order := range list {
		if !countsAsMonthly(order) {
			continue
		}
		i, ok := index[order.CreatedAt.In(now.Location()).Format("2006-01")]
		if !ok {
			continue
		}
		out[i].TotalRevenue += order.Revenue()
		out[i].TotalOrders++
	}
	return out, nil
}

// Customers — сводка по оплаченным заказам за всё время.
func (s *Service) Customers(ctx context.Context, sellerID string) (CustomerSummary, error) {
	if err := requireSeller(sellerID); err != nil {
		return CustomerSummary{}, err
	}
	list, err := s.orders.ListForReport(ctx, sellerID, time.Time{}, s.now())
	if err != nil {
		return CustomerSummary{}, err
	}
	list = filter(list, countsAsRevenue)

	var summary CustomerSummary
	if len(list) == 0 {
		return summary, nil
	}
	perBuyer := make(map[string]int)
	for _, order := range list {
		perBuyer[order.BuyerID]++
	}
	for _, count := range perBuyer {
		if count > 1 {
			summary.ReturningCustomers++
		}
	}
	summary.TotalCustomers = len(perBuyer)
	summary.AverageRevenue = float64(sumRevenue(list)) / float64(len(list))
	return summary, nil
}

func (s *Service) cycleOrders(ctx context.Context, sellerID string, cycle Cycle) ([]domain.Order, []domain.Order, error) {
	if err := requireSeller(sellerID); err != nil {
		return nil, nil, err
	}
	now := s.now()
	window, err := DateCycle(cycle, now)
	if err != nil {
		return nil, nil, err
	}

	current, err := s.orders.ListForReport(ctx, sellerID, window.Current, now)
	if err != nil {
		return nil, nil, err
	}
	previous, err := s.orders.ListForReport(ctx, sellerID, window.Previous, window.Current)
	if err != nil {
		return nil, nil, err
	}
	return current, previous, nil
}

func requireSeller(sellerID string) error {
	if strings.TrimSpace(sellerID) == "" {
		return domain.ErrSellerRequired
	}
	return nil
}

// compare считает процент текущего периода от предыдущего. Без предыдущего
// периода: 100 при ненулевом текущем, иначе 0.
func compare(current, previous int64) Comparison {
	c := Comparison{CurrentCycle: current, PreviousCycle: previous}
	switch {
	case previous != 0:
		c.Percentage = int64(math.Round(float64(current) / float64(previous) * 100))
	case current != 0:
		c.Percentage = 100
	}
	return c
}

func filter(list []domain.Order, keep func(domain.Order) bool) []domain.Order {
	out := make([]domain.Order, 0, len(list))
	for _, order := range list {
		if keep(order) {
			out = append(out, order)
		}
	}
	return out
}

func sumRevenue(list []domain.Order) int64 {
	var total int64
	for _, order := range list {
		total += order.Revenue()
	}
	return total
}

func distinctBuyers(list []domain.Order) int {
	seen := make(map[string]struct{}, len(list))
	for _, order := range list {
		seen[order.BuyerID] = struct{}{}
	}
	return len(seen)
}

func countsAsRevenue(order domain.Order) bool {
	if order.Payment == nil || order.Payment.Status != domain.PaymentStatusPaid {
		return false
	}
	return countsAsMonthly(order)
}

func countsAsMonthly(order domain.Order) bool {
	switch order.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusRejected, domain.OrderStatusRefunded:
		return false
	default:
		return true
	}
}

func countsAsOrder(order domain.Order) bool {
	return order.Status != domain.OrderStatusCancelled && order.Status != domain.OrderStatusRejected
}
