package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestStore_PostgresOrdersRoundTrip(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationCatalog(t, store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	order := sampleOrder("order-1", "buyer-1", "address-1", now.Add(-time.Minute))
	order.RefundEvidence = []string{"photo-1"}
	require.NoError(t, store.Orders().Create(ctx, order))
	assert.ErrorIs(t, store.Orders().Create(ctx, order), domain.ErrDuplicateID)

	require.NoError(t, store.Payments().Create(ctx, domain.Payment{
		ID: "payment-1", OrderID: order.ID, Method: domain.PaymentMethodZaloPay,
		Status: domain.PaymentStatusUnpaid, CreatedAt: now, UpdatedAt: now,
	}))

	got, err := store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.TotalPrice, got.TotalPrice)
	assert.Equal(t, []string{"photo-1"}, got.RefundEvidence)
	require.Len(t, got.Details, 1)
	require.NotNil(t, got.Payment)
	assert.Equal(t, domain.PaymentMethodZaloPay, got.Payment.Method)

	got.Status = domain.OrderStatusPending
	got.UpdatedAt = now
	require.NoError(t, store.Orders().Save(ctx, got))
	assert.ErrorIs(t, store.Orders().Save(ctx, got), domain.ErrOrderVersionConflict)

	missing := got
	missing.ID = "missing"
	assert.ErrorIs(t, store.Orders().Save(ctx, missing), domain.ErrOrderNotFound)

	updated, err := store.Orders().Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, updated.Status)
	assert.Equal(t, got.Version+1, updated.Version)

	byBuyer, err := store.Orders().ListByBuyer(ctx, "buyer-1")
	require.NoError(t, err)
	assert.Len(t, byBuyer, 1)

	_, err = store.Orders().Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestStore_PostgresSellerQueueAndReport(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationCatalog(t, store)
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Orders().Create(ctx, sampleOrder("order-1", "buyer-1", "address-1", base)))
	require.NoError(t, store.Orders().Create(ctx, sampleOrder("order-2", "buyer-2", "address-2", base.Add(time.Hour))))
	require.NoError(t, store.Orders().Create(ctx, sampleOrder("order-3", "buyer-1", "address-1", base.AddDate(0, -2, 0))))

	page, err := store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "order-2", page.Data[0].ID)
	assert.Equal(t, 1, page.First)
	assert.Equal(t, 2, page.Last)

	byProvince, err := store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1", Province: "HN"})
	require.NoError(t, err)
	require.Len(t, byProvince.Data, 1)
	assert.Equal(t, "order-2", byProvince.Data[0].ID)

	byBuyerName, err := store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1", Search: "nguyen"})
	require.NoError(t, err)
	assert.Equal(t, 2, byBuyerName.Total)

	byProduct, err := store.Orders().ListBySeller(ctx, domain.SellerOrderFilter{SellerID: "seller-1", Search: "OOLONG"})
	require.NoError(t, err)
	assert.Equal(t, 3, byProduct.Total)

	report, err := store.Orders().ListForReport(ctx, "seller-1", base.AddDate(0, 0, -1), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, "order-1", report[0].ID)
}

func TestStore_PostgresStockNeverNegative(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationCatalog(t, store)
	ctx := context.Background()

	qty, err := store.Products().AdjustQuantity(ctx, "product-2", -1)
	require.NoError(t, err)
	assert.Equal(t, 0, qty)

	_, err = store.Products().AdjustQuantity(ctx, "product-2", -1)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = store.Products().AdjustQuantity(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	require.NoError(t, store.Products().AppendMovement(ctx, domain.StockMovement{
		ProductID: "product-2", UserID: "seller-user-1", Delta: 5, Reason: domain.StockReasonRestock,
	}))
	movements, err := store.Products().ListMovements(ctx, "product-2")
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.StockReasonRestock, movements[0].Reason)
}

func TestStore_PostgresWithinTxRollsBack(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationCatalog(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		if _, err := tx.Products().AdjustQuantity(ctx, "product-1", -3); err != nil {
			return err
		}
		if err := tx.Carts().RemoveLine(ctx, "buyer-1", "product-1"); err != nil {
			return err
		}
		if _, err := tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
			AggregateType: "order", AggregateID: "order-1", EventType: "OrderCreated", Payload: []byte(`{}`),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := store.Products().Get(ctx, "product-1")
	require.NoError(t, err)
	assert.Equal(t, 10, p.Quantity)

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)

	require.NoError(t, store.Carts().RemoveLine(ctx, "buyer-1", "product-1"))
	assert.ErrorIs(t, store.Carts().RemoveLine(ctx, "buyer-1", "product-1"), domain.ErrCartLineNotFound)
}

func TestStore_PostgresPaymentsAndEvents(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	seedIntegrationCatalog(t, store)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Microsecond)
	require.NoError(t, store.Orders().Create(ctx, sampleOrder("order-1", "buyer-1", "address-1", now)))

	payment := domain.Payment{
		ID: "payment-1", OrderID: "order-1", Method: domain.PaymentMethodZaloPay,
		Status: domain.PaymentStatusUnpaid, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Payments().Create(ctx, payment))
	assert.ErrorIs(t, store.Payments().Create(ctx, domain.Payment{
		ID: "payment-2", OrderID: "order-1", Method: domain.PaymentMethodCashOnDelivery,
		Status: domain.PaymentStatusUnpaid, CreatedAt: now, UpdatedAt: now,
	}), domain.ErrDuplicateID)

	payment.TransactionID = "240310_abc"
	require.NoError(t, store.Payments().Save(ctx, payment))

	byTx, err := store.Payments().GetByTransaction(ctx, "240310_abc")
	require.NoError(t, err)
	assert.Equal(t, "payment-1", byTx.ID)

	_, err = store.Payments().GetByTransaction(ctx, "")
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	event := domain.PaymentEvent{Provider: "zalopay", EventID: "240310_abc", PaymentID: "payment-1", OrderID: "order-1"}
	first, err := store.PaymentEvents().Record(ctx, event)
	require.NoError(t, err)
	assert.True(t, first)
	second, err := store.PaymentEvents().Record(ctx, event)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestStore_PostgresOutboxAndTimeline(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	msg, err := store.Outbox().Enqueue(ctx, domain.OutboxMessage{
		AggregateType: "order", AggregateID: "order-1", EventType: "OrderCreated", Payload: []byte(`{"id":"order-1"}`),
	})
	require.NoError(t, err)

	pending, err := store.Outbox().PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	stats, err := store.Outbox().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, store.Outbox().MarkSent(ctx, msg.ID))
	assert.ErrorIs(t, store.Outbox().MarkSent(ctx, "missing"), domain.ErrOutboxPublish)

	occurred := time.Now().UTC().Round(time.Microsecond)
	require.NoError(t, store.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "order-1", Type: domain.TimelineStatusChanged, Occurred: occurred}))
	require.NoError(t, store.Timeline().Append(ctx, domain.TimelineEvent{OrderID: "order-1", Type: domain.TimelineOrderCreated, Occurred: occurred.Add(-time.Second)}))

	events, err := store.Timeline().List(ctx, "order-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.TimelineOrderCreated, events[0].Type)
}

func TestIdempotencyRepository_PostgresLifecycle(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	_, err := repo.CreateProcessing(ctx, "key-1", "hash-1", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = repo.CreateProcessing(ctx, "key-1", "hash-1", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	_, err = repo.CreateProcessing(ctx, "key-1", "hash-2", time.Now().Add(time.Hour))
	assert.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.MarkDone(ctx, "key-1", []byte(`{"ok":true}`), 201))
	record, err := repo.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, record.Replayable())
	assert.Equal(t, 201, record.HTTPStatus)

	_, err = repo.CreateProcessing(ctx, "key-old", "hash", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = repo.CreateProcessing(ctx, "key-old", "hash-new", time.Now().Add(time.Hour))
	require.NoError(t, err, "expired key is taken over")

	_, err = repo.CreateProcessing(ctx, "key-expired", "hash", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	deleted, err := repo.DeleteExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	assert.ErrorIs(t, repo.MarkFailed(ctx, "missing", nil, 500), domain.ErrIdempotencyKeyNotFound)
}

func TestStore_MigrateIsRepeatable(t *testing.T) {
	store := openRawPostgresStoreForIntegrationTest(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))
	state, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.Pending)
	require.Positive(t, state.Applied)

	require.NoError(t, store.Migrate(ctx))
	again, err := store.MigrationStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, state, again)
}

func TestStore_PingAndClose(t *testing.T) {
	var nilStore *Store
	assert.Error(t, nilStore.Ping(context.Background()))
	assert.NoError(t, nilStore.Close())
	assert.ErrorIs(t, nilStore.Migrate(context.Background()), errStoreNotInitialized)
}
