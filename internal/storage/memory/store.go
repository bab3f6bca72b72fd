package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// state — всё содержимое in-memory хранилища. Транзакция работает с копией
// и подменяет ею текущее состояние при успешном завершении.
type state struct {
	orders        map[string]domain.Order
	payments      map[string]domain.Payment
	products      map[string]domain.Product
	movements     []domain.StockMovement
	carts         map[string]map[string]int
	buyers        map[string]domain.Buyer
	sellers       map[string]domain.Seller
	addresses     map[string]domain.Address
	paymentEvents map[string]domain.PaymentEvent
	outbox        map[string]outboxRecord
	outboxSeq     int64
	timeline      map[string][]domain.TimelineEvent
}

func newState() *state {
	return &state{
		orders:        make(map[string]domain.Order),
		payments:      make(map[string]domain.Payment),
		products:      make(map[string]domain.Product),
		carts:         make(map[string]map[string]int),
		buyers:        make(map[string]domain.Buyer),
		sellers:       make(map[string]domain.Seller),
		addresses:     make(map[string]domain.Address),
		paymentEvents: make(map[string]domain.PaymentEvent),
		outbox:        make(map[string]outboxRecord),
		timeline:      make(map[string][]domain.TimelineEvent),
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.orders {
		out.orders[k] = v.Clone()
	}
	for k, v := range s.payments {
		out.payments[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	out.movements = append([]domain.StockMovement(nil), s.movements...)
	for buyer, lines := range s.carts {
		copied := make(map[string]int, len(lines))
		for product, qty := range lines {
			copied[product] = qty
		}
		out.carts[buyer] = copied
	}
	for k, v := range s.buyers {
		out.buyers[k] = v
	}
	for k, v := range s.sellers {
		out.sellers[k] = v
	}
	for k, v := range s.addresses {
		out.addresses[k] = v
	}
	for k, v := range s.paymentEvents {
		v.Payload = append([]byte(nil), v.Payload...)
		out.paymentEvents[k] = v
	}
	for k, v := range s.outbox {
		out.outbox[k] = v
	}
	out.outboxSeq = s.outboxSeq
	for k, v := range s.timeline {
		out.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	return out
}

// Store — in-memory реализация UnitOfWork для разработки и тестов.
// Транзакции сериализуются: WithinTx держит эксклюзивную блокировку.
type Store struct {
	mu sync.RWMutex
	st *state
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{st: newState()}
}

// view связывает репозитории либо с живым состоянием (с блокировками),
// либо с черновиком транзакции (блокировка уже захвачена).
type view struct {
	store *Store
	draft *state
}

func (v *view) read(fn func(st *state) error) error {
	if v.store == nil {
		return fn(v.draft)
	}
	v.store.mu.RLock()
	defer v.store.mu.RUnlock()
	return fn(v.store.st)
}

func (v *view) write(fn func(st *state) error) error {
	if v.store == nil {
		return fn(v.draft)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	return fn(v.store.st)
}

type repositories struct {
	v *view
}

func (r repositories) Orders() domain.OrderRepository               { return &orderRepository{v: r.v} }
func (r repositories) Payments() domain.PaymentRepository           { return &paymentRepository{v: r.v} }
func (r repositories) Products() domain.ProductRepository           { return &productRepository{v: r.v} }
func (r repositories) Carts() domain.CartRepository                 { return &cartRepository{v: r.v} }
func (r repositories) Directory() domain.DirectoryRepository        { return &directoryRepository{v: r.v} }
func (r repositories) PaymentEvents() domain.PaymentEventRepository { return &paymentEventRepository{v: r.v} }
func (r repositories) Outbox() domain.OutboxRepository              { return &outboxRepository{v: r.v} }
func (r repositories) Timeline() domain.TimelineRepository          { return &timelineRepository{v: r.v} }

func (s *Store) live() repositories { return repositories{v: &view{store: s}} }

func (s *Store) Orders() domain.OrderRepository               { return s.live().Orders() }
func (s *Store) Payments() domain.PaymentRepository           { return s.live().Payments() }
func (s *Store) Products() domain.ProductRepository           { return s.live().Products() }
func (s *Store) Carts() domain.CartRepository                 { return s.live().Carts() }
func (s *Store) Directory() domain.DirectoryRepository        { return s.live().Directory() }
func (s *Store) PaymentEvents() domain.PaymentEventRepository { return s.live().PaymentEvents() }
func (s *Store) Outbox() domain.OutboxRepository              { return s.live().Outbox() }
func (s *Store) Timeline() domain.TimelineRepository          { return s.live().Timeline() }

// WithinTx выполняет fn над копией состояния. Ошибка fn или отменённый
// контекст отбрасывают копию целиком. Репозитории самого Store внутри fn
// использовать нельзя: блокировка уже захвачена.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(ctx, repositories{v: &view{draft: draft}}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = draft
	return nil
}

// Ping нужен для health-check'а и всегда успешен.
func (s *Store) Ping(context.Context) error { return nil }

// AddProduct добавляет или заменяет товар.
func (s *Store) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.products[p.ID] = p
}

// AddBuyer добавляет покупателя.
func (s *Store) AddBuyer(b domain.Buyer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.buyers[b.ID] = b
}

// AddSeller добавляет продавца.
func (s *Store) AddSeller(sl domain.Seller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.sellers[sl.ID] = sl
}

// AddAddress добавляет адрес доставки.
func (s *Store) AddAddress(a domain.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.addresses[a.ID] = a
}

// AddCartLine кладёт товар в корзину покупателя.
func (s *Store) AddCartLine(buyerID, productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, ok := s.st.carts[buyerID]
	if !ok {
		lines = make(map[string]int)
		s.st.carts[buyerID] = lines
	}
	lines[productID] += qty
}

// CartLines возвращает корзину покупателя.
func (s *Store) CartLines(buyerID string) map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.st.carts[buyerID]))
	for product, qty := range s.st.carts[buyerID] {
		out[product] = qty
	}
	return out
}

func sortOrdersNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}

func nowUTC() time.Time { return time.Now().UTC() }

var (
	_ domain.UnitOfWork   = (*Store)(nil)
	_ domain.Repositories = repositories{}
)

// SeedCatalog загружает справочные данные.
func (s *Store) SeedCatalog(_ context.Context, catalog domain.Catalog) error {
	for _, b := range catalog.Buyers {
		s.AddBuyer(b)
	}
	for _, sl := range catalog.Sellers {
		s.AddSeller(sl)
	}
	for _, a := range catalog.Addresses {
		s.AddAddress(a)
	}
	for _, p := range catalog.Products {
		s.AddProduct(p)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range catalog.CartLines {
		lines, ok := s.st.carts[line.BuyerID]
		if !ok {
			lines = make(map[string]int)
			s.st.carts[line.BuyerID] = lines
		}
		lines[line.ProductID] = line.Quantity
	}
	return nil
}

var _ domain.CatalogSeeder = (*Store)(nil)
