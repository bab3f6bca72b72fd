package memory_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func newOrder(id string, created time.Time) domain.Order {
	return domain.Order{
		ID:          id,
		BuyerID:     "buyer-1",
		SellerID:    "seller-1",
		AddressID:   "address-1",
		TotalPrice:  201,
		ShippingFee: 1,
		Status:      domain.OrderStatusPendingPayment,
		Details: []domain.OrderDetail{
			{ID: id + "-d1", OrderID: id, ProductID: "product-1", Quantity: 2, Price: 100, CreatedAt: created},
		},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStore_WithinTxCommits(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddProduct(domain.Product{ID: "product-1", SellerID: "seller-1", Price: 100, Quantity: 10})

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Products().AdjustQuantity(ctx, "product-1", -2); err != nil {
			return err
		}
		return tx.Orders().Create(ctx, newOrder("order-1", time.Now().UTC()))
	})
	if err != nil {
		t.Fatalf("tx failed: %v", err)
	}

	p, err := store.Products().Get(ctx, "product-1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Quantity != 8 {
		t.Fatalf("expected quantity 8, got %d", p.Quantity)
	}
	if _, err := store.Orders().Get(ctx, "order-1"); err != nil {
		t.Fatalf("order not committed: %v", err)
	}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddProduct(domain.Product{ID: "product-1", Quantity: 10})
	boom := errors.New("boom")

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Products().AdjustQuantity(ctx, "product-1", -5); err != nil {
			return err
		}
		if err := tx.Orders().Create(ctx, newOrder("order-1", time.Now().UTC())); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{AggregateID: "order-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	p, _ := store.Products().Get(ctx, "product-1")
	if p.Quantity != 10 {
		t.Fatalf("stock must be untouched after rollback, got %d", p.Quantity)
	}
	if _, err := store.Orders().Get(ctx, "order-1"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("order must not exist after rollback, got %v", err)
	}
	stats, _ := store.Outbox().Stats(ctx)
	if stats.PendingCount != 0 {
		t.Fatalf("outbox must be empty after rollback, got %d", stats.PendingCount)
	}
}

func TestStore_WithinTxCanceledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(context.Context, domain.Repositories) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected canceled tx without calling fn, got err=%v called=%v", err, called)
	}
}

func TestProductRepository_AdjustQuantityNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddProduct(domain.Product{ID: "product-1", Quantity: 10})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Products().AdjustQuantity(ctx, "product-1", -1); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, domain.ErrInsufficientStock) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 10 {
		t.Fatalf("expected exactly 10 successful decrements, got %d", success)
	}
	p, _ := store.Products().Get(ctx, "product-1")
	if p.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", p.Quantity)
	}

	if _, err := store.Products().AdjustQuantity(ctx, "missing", 1); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}
}

func TestProductRepository_AdjustQuantityBounded(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddProduct(domain.Product{ID: "product-1", Quantity: domain.MaxQuantity - 5})

	if _, err := store.Products().AdjustQuantity(ctx, "product-1", 6); !errors.Is(err, domain.ErrQuantityTooLarge) {
		t.Fatalf("expected ErrQuantityTooLarge, got %v", err)
	}
	if _, err := store.Products().AdjustQuantity(ctx, "product-1", math.MinInt); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	qty, err := store.Products().AdjustQuantity(ctx, "product-1", 5)
	if err != nil || qty != domain.MaxQuantity {
		t.Fatalf("expected quantity %d, got %d err=%v", domain.MaxQuantity, qty, err)
	}
}

func TestOrderRepository_SaveChecksVersion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := newOrder("order-1", time.Now().UTC())
	if err := store.Orders().Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Orders().Create(ctx, order); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected duplicate id, got %v", err)
	}

	stored, _ := store.Orders().Get(ctx, order.ID)
	stored.Status = domain.OrderStatusPending
	stored.Details[0].Quantity = 99
	if err := store.Orders().Save(ctx, stored); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := store.Orders().Save(ctx, stored); !domain.IsVersionConflict(err) {
		t.Fatalf("expected version conflict for stale version, got %v", err)
	}

	reloaded, _ := store.Orders().Get(ctx, order.ID)
	if reloaded.Version != 1 || reloaded.Status != domain.OrderStatusPending {
		t.Fatalf("unexpected reloaded order: version=%d status=%s", reloaded.Version, reloaded.Status)
	}
	if reloaded.Details[0].Quantity != 2 {
		t.Fatalf("details must be immutable, got quantity %d", reloaded.Details[0].Quantity)
	}

	missing := newOrder("order-x", time.Now().UTC())
	if err := store.Orders().Save(ctx, missing); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderRepository_GetAttachesPayment(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := newOrder("order-1", time.Now().UTC())
	_ = store.Orders().Create(ctx, order)
	_ = store.Payments().Create(ctx, domain.Payment{ID: "pay-1", OrderID: "order-1", Method: domain.PaymentMethodZaloPay, Status: domain.PaymentStatusUnpaid})

	stored, err := store.Orders().Get(ctx, "order-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Payment == nil || stored.Payment.ID != "pay-1" {
		t.Fatalf("expected payment attached, got %+v", stored.Payment)
	}
}

func TestOrderRepository_ListBySellerFilters(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddBuyer(domain.Buyer{ID: "buyer-1", Name: "Nguyen Van A"})
	store.AddBuyer(domain.Buyer{ID: "buyer-2", Name: "Tran Thi B"})
	store.AddProduct(domain.Product{ID: "product-1", Name: "Green Tea", SellerID: "seller-1"})
	store.AddAddress(domain.Address{ID: "address-1", UserID: "buyer-1", Province: "Ha Noi", District: "Ba Dinh", Ward: "Kim Ma"})
	store.AddAddress(domain.Address{ID: "address-2", UserID: "buyer-2", Province: "Da Nang", District: "Hai Chau", Ward: "Thach Thang"})

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		o := newOrder("order-"+string(rune('a'+i)), base.Add(time.Duration(i)*time.Hour))
		if i%2 == 1 {
			o.BuyerID = "buyer-2"
			o.AddressID = "address-2"
			o.Status = domain.OrderStatusPending
		}
		if err := store.Orders().Create(ctx, o); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	other := newOrder("order-other-seller", base)
	other.SellerID = "seller-2"
	_ = store.Orders().Create(ctx, other)

	page, err := store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 20 || len(page.Data) != 15 || page.First != 1 || page.Last != 15 {
		t.Fatalf("unexpected first page: total=%d len=%d first=%d last=%d", page.Total, len(page.Data), page.First, page.Last)
	}
	if !page.Data[0].CreatedAt.After(page.Data[1].CreatedAt) {
		t.Fatal("expected newest first")
	}

	page, _ = store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1", Page: 2})
	if len(page.Data) != 5 || page.First != 16 || page.Last != 20 {
		t.Fatalf("unexpected second page: len=%d first=%d last=%d", len(page.Data), page.First, page.Last)
	}

	tests := []struct {
		name   string
		filter domain.SellerOrderFilter
		want   int
	}{
		{name: "status", filter: domain.SellerOrderFilter{Status: domain.OrderStatusPending}, want: 10},
		{name: "search buyer", filter: domain.SellerOrderFilter{Search: "tran"}, want: 10},
		{name: "search product", filter: domain.SellerOrderFilter{Search: "GREEN"}, want: 20},
		{name: "search miss", filter: domain.SellerOrderFilter{Search: "coffee"}, want: 0},
		{name: "province", filter: domain.SellerOrderFilter{Province: "Ha Noi"}, want: 10},
		{name: "ward", filter: domain.SellerOrderFilter{Ward: "Thach Thang"}, want: 10},
		{name: "date range end of day", filter: domain.SellerOrderFilter{From: base, To: base}, want: 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.filter.SellerID = "seller-1"
			tt.filter.Limit = 100
			page, err := store.Orders().ListBySeller(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if page.Total != tt.want {
				t.Fatalf("expected %d orders, got %d", tt.want, page.Total)
			}
		})
	}
}

func TestOrderRepository_ListBySellerHugePage(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	if err := store.Orders().Create(ctx, newOrder("order-1", time.Now().UTC())); err != nil {
		t.Fatalf("create: %v", err)
	}

	page, err := store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1", Page: 614891469123651722, Limit: 15})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || len(page.Data) != 0 || page.First != 0 {
		t.Fatalf("expected empty page past the end: %+v", page)
	}
}

func TestOrderRepository_ListForReportWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	_ = store.Orders().Create(ctx, newOrder("before", base.Add(-time.Second)))
	_ = store.Orders().Create(ctx, newOrder("start", base))
	_ = store.Orders().Create(ctx, newOrder("end", base.Add(24*time.Hour)))

	orders, err := store.Orders().ListForReport(ctx, "seller-1", base, base.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 1 || orders[0].ID != "start" {
		t.Fatalf("expected only the order inside [from, to), got %+v", orders)
	}
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	payment := domain.Payment{ID: "pay-1", OrderID: "order-1", Method: domain.PaymentMethodZaloPay, Status: domain.PaymentStatusUnpaid}

	if err := store.Payments().Create(ctx, payment); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Payments().Create(ctx, domain.Payment{ID: "pay-2", OrderID: "order-1"}); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("expected one payment per order, got %v", err)
	}

	payment.TransactionID = "240501_123456"
	if err := store.Payments().Save(ctx, payment); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Payments().GetByTransaction(ctx, "240501_123456")
	if err != nil || got.ID != "pay-1" {
		t.Fatalf("get by transaction: %+v, %v", got, err)
	}
	if _, err := store.Payments().GetByTransaction(ctx, ""); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("empty transaction id must not match, got %v", err)
	}
	if _, err := store.Payments().GetByOrder(ctx, "order-2"); !errors.Is(err, domain.ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPaymentEventRepository_RecordOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	event := domain.PaymentEvent{Provider: "zalopay", EventID: "240501_1", Payload: []byte(`{}`)}

	first, err := store.PaymentEvents().Record(ctx, event)
	if err != nil || !first {
		t.Fatalf("first record: inserted=%v err=%v", first, err)
	}
	second, err := store.PaymentEvents().Record(ctx, event)
	if err != nil || second {
		t.Fatalf("second record must be a no-op: inserted=%v err=%v", second, err)
	}
}

func TestCartRepository_RemoveLine(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.AddCartLine("buyer-1", "product-1", 2)
	store.AddCartLine("buyer-1", "product-2", 1)

	if err := store.Carts().RemoveLine(ctx, "buyer-1", "product-1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Carts().RemoveLine(ctx, "buyer-1", "product-1"); !errors.Is(err, domain.ErrCartLineNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	lines := store.CartLines("buyer-1")
	if len(lines) != 1 || lines["product-2"] != 1 {
		t.Fatalf("unexpected cart: %v", lines)
	}
}

func TestDirectoryRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	if _, err := store.Directory().GetBuyer(ctx, "x"); !errors.Is(err, domain.ErrBuyerNotFound) {
		t.Fatalf("expected buyer not found, got %v", err)
	}
	if _, err := store.Directory().GetAddress(ctx, "x"); !errors.Is(err, domain.ErrAddressNotFound) {
		t.Fatalf("expected address not found, got %v", err)
	}
	if _, err := store.Directory().GetSeller(ctx, "x"); !errors.Is(err, domain.ErrSellerNotFound) {
		t.Fatalf("expected seller not found, got %v", err)
	}
}

func TestStore_SeedCatalog(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.SeedCatalog(ctx, domain.Catalog{
		Buyers:    []domain.Buyer{{ID: "buyer-1", Name: "Linh"}},
		Sellers:   []domain.Seller{{ID: "seller-1", Name: "Shop"}},
		Addresses: []domain.Address{{ID: "address-1", UserID: "buyer-1", Province: "HCM"}},
		Products:  []domain.Product{{ID: "product-1", SellerID: "seller-1", Name: "Tea", Price: 100, Quantity: 5}},
		CartLines: []domain.CartLine{{BuyerID: "buyer-1", ProductID: "product-1", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := store.Directory().GetAddress(ctx, "address-1"); err != nil {
		t.Fatalf("address: %v", err)
	}
	p, err := store.Products().Get(ctx, "product-1")
	if err != nil || p.Quantity != 5 {
		t.Fatalf("unexpected product: %+v err=%v", p, err)
	}
	if lines := store.CartLines("buyer-1"); lines["product-1"] != 2 {
		t.Fatalf("unexpected cart: %v", lines)
	}
}
