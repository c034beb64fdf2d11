package payment

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mvolkov/web_shop/internal/cart"
	"github.com/mvolkov/web_shop/internal/models"
	"github.com/mvolkov/web_shop/internal/order"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.Product{},
		&models.User{},
		&models.Cart{},
		&models.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentTransaction{},
		&models.Refund{},
	))
	return db
}

func newService(t *testing.T) *Service {
	t.Helper()
	db := newTestDB(t)
	return &Service{
		DB:      db,
		Gateway: DummyGateway{},
		Orders:  &order.Service{DB: db},
	}
}

// stubGateway overrides selected provider calls; everything else falls
// through to the dummy.
type stubGateway struct {
	DummyGateway
	event     Event
	eventErr  error
	refundRes *RefundResult
}

func (g stubGateway) VerifyAndParseEvent(payload []byte, signatureHeader string) (Event, error) {
	return g.event, g.eventErr
}

func (g stubGateway) RefundPayment(ctx context.Context, provider, providerID string, amount decimal.Decimal, metadata map[string]string, idempotencyKey string) RefundResult {
	if g.refundRes != nil {
		return *g.refundRes
	}
	return g.DummyGateway.RefundPayment(ctx, provider, providerID, amount, metadata, idempotencyKey)
}

func createOrder(t *testing.T, db *gorm.DB, total string) *models.Order {
	t.Helper()
	o := models.Order{
		Status:          models.OrderStatusPending,
		TotalAmount:     decimal.RequireFromString(total),
		ShippingAddress: "1 Main St",
		ContactEmail:    "guest@example.com",
	}
	require.NoError(t, db.Create(&o).Error)
	return &o
}

// succeededPayment runs the create-intent plus success-webhook flow and
// returns the settled transaction.
func succeededPayment(t *testing.T, svc *Service, total string) *models.PaymentTransaction {
	t.Helper()
	ctx := context.Background()

	o := createOrder(t, svc.DB, total)
	tx, _, err := svc.CreatePayment(ctx, o.ID)
	require.NoError(t, err)
	require.NoError(t, svc.HandleDummyEvent(ctx, tx.Provider, tx.ProviderID, "payment_succeeded"))

	tx, err = svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSucceeded, tx.Status)
	return tx
}

func orderStatus(t *testing.T, db *gorm.DB, id uint) string {
	t.Helper()
	var o models.Order
	require.NoError(t, db.First(&o, id).Error)
	return o.Status
}

func TestCreatePayment(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	o := createOrder(t, svc.DB, "30.00")
	tx, secret, err := svc.CreatePayment(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPending, tx.Status)
	require.True(t, tx.Amount.Equal(o.TotalAmount), "amount %s", tx.Amount)
	require.Equal(t, "USD", tx.Currency)
	require.Equal(t, DummyProvider, tx.Provider)
	require.NotEmpty(t, tx.ProviderID)
	require.Equal(t, "secret_"+tx.ProviderID, secret)
	require.Equal(t, "1", tx.Metadata["order_id"])

	_, _, err = svc.CreatePayment(ctx, 9999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDummyEventSettlesPaymentAndOrder(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	o := createOrder(t, svc.DB, "30.00")
	tx, _, err := svc.CreatePayment(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandleDummyEvent(ctx, tx.Provider, tx.ProviderID, "payment_succeeded"))
	tx, err = svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSucceeded, tx.Status)
	require.Equal(t, models.OrderStatusPaid, orderStatus(t, svc.DB, o.ID))

	// providers redeliver; replay must not error or move the order
	require.NoError(t, svc.HandleDummyEvent(ctx, tx.Provider, tx.ProviderID, "payment_succeeded"))
	require.Equal(t, models.OrderStatusPaid, orderStatus(t, svc.DB, o.ID))
}

func TestDummyEventFailureCancelsOrder(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	o := createOrder(t, svc.DB, "30.00")
	tx, _, err := svc.CreatePayment(ctx, o.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandleDummyEvent(ctx, tx.Provider, tx.ProviderID, "payment_failed"))
	tx, err = svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, tx.Status)
	require.Equal(t, models.OrderStatusCancelled, orderStatus(t, svc.DB, o.ID))
}

func TestDummyEventValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.ErrorIs(t, svc.HandleDummyEvent(ctx, "", "x", "payment_succeeded"), ErrValidation)
	require.ErrorIs(t, svc.HandleDummyEvent(ctx, DummyProvider, "x", "payment_exploded"), ErrValidation)
	// the dummy path reports unknown transactions, unlike the signed path
	require.ErrorIs(t, svc.HandleDummyEvent(ctx, DummyProvider, "no-such-id", "payment_succeeded"), ErrNotFound)
}

func TestProviderWebhookSignatureRejected(t *testing.T) {
	svc := newService(t)
	err := svc.HandleProviderWebhook(context.Background(), []byte(`{}`), "t=1,v1=bad")
	require.ErrorIs(t, err, ErrSignature)
}

func TestProviderWebhookUnknownTransactionAcknowledged(t *testing.T) {
	svc := newService(t)
	svc.Gateway = stubGateway{event: Event{
		Provider:   "stripe",
		ProviderID: "pi_unknown",
		Kind:       EventPaymentSucceeded,
	}}
	require.NoError(t, svc.HandleProviderWebhook(context.Background(), []byte(`{}`), "sig"))
}

func TestProviderWebhookIgnoredEventKind(t *testing.T) {
	svc := newService(t)
	svc.Gateway = stubGateway{event: Event{Provider: "stripe"}}
	require.NoError(t, svc.HandleProviderWebhook(context.Background(), []byte(`{}`), "sig"))
}

func TestProviderRefundEventFull(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tx := succeededPayment(t, svc, "100.00")
	svc.Gateway = stubGateway{event: Event{
		Provider:       tx.Provider,
		ProviderID:     tx.ProviderID,
		Kind:           EventChargeRefunded,
		AmountRefunded: decimal.RequireFromString("100.00"),
	}}
	require.NoError(t, svc.HandleProviderWebhook(ctx, []byte(`{}`), "sig"))

	tx, err := svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusRefunded, tx.Status)
	require.True(t, tx.RefundedAmount.Equal(decimal.RequireFromString("100.00")))
	require.Equal(t, models.OrderStatusCancelled, orderStatus(t, svc.DB, *tx.OrderID))
}

func TestProviderRefundEventPartial(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tx := succeededPayment(t, svc, "149.99")
	svc.Gateway = stubGateway{event: Event{
		Provider:       tx.Provider,
		ProviderID:     tx.ProviderID,
		Kind:           EventChargeRefunded,
		AmountRefunded: decimal.RequireFromString("60.00"),
	}}
	require.NoError(t, svc.HandleProviderWebhook(ctx, []byte(`{}`), "sig"))

	tx, err := svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPartiallyRefunded, tx.Status)
	require.True(t, tx.RefundedAmount.Equal(decimal.RequireFromString("60.00")))
	// a partial refund leaves the order paid
	require.Equal(t, models.OrderStatusPaid, orderStatus(t, svc.DB, *tx.OrderID))
}

func TestCreateRefundValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tx := succeededPayment(t, svc, "100.00")

	_, err := svc.CreateRefund(ctx, tx.ID, decimal.Zero)
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateRefund(ctx, tx.ID, decimal.RequireFromString("100.01"))
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.CreateRefund(ctx, 9999, decimal.RequireFromString("1.00"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRefundLifecycle(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tx := succeededPayment(t, svc, "100.00")

	r1, err := svc.CreateRefund(ctx, tx.ID, decimal.RequireFromString("30.00"))
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusSucceeded, r1.Status)
	require.NotEmpty(t, r1.ProviderRefundID)

	tx, err = svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusPartiallyRefunded, tx.Status)
	require.True(t, tx.RefundedAmount.Equal(decimal.RequireFromString("30.00")), "refunded %s", tx.RefundedAmount)

	r2, err := svc.CreateRefund(ctx, tx.ID, decimal.RequireFromString("70.00"))
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusSucceeded, r2.Status)

	tx, err = svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusRefunded, tx.Status)
	require.True(t, tx.RefundedAmount.Equal(decimal.RequireFromString("100.00")), "refunded %s", tx.RefundedAmount)

	// local refunds do not drive the order machine
	require.Equal(t, models.OrderStatusPaid, orderStatus(t, svc.DB, *tx.OrderID))

	got, err := svc.GetRefund(ctx, r1.ID)
	require.NoError(t, err)
	require.True(t, got.Amount.Equal(decimal.RequireFromString("30.00")))
}

func TestRefundWithoutProviderOnFile(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tx := models.PaymentTransaction{
		Amount:   decimal.RequireFromString("50.00"),
		Currency: "USD",
		Status:   models.PaymentStatusSucceeded,
	}
	require.NoError(t, svc.DB.Create(&tx).Error)

	r, err := svc.CreateRefund(ctx, tx.ID, decimal.RequireFromString("10.00"))
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusFailed, r.Status)

	got, err := svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSucceeded, got.Status)
	require.True(t, got.RefundedAmount.IsZero())
}

func TestRefundGatewayFailureLeavesPaymentUntouched(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	tx := succeededPayment(t, svc, "80.00")
	svc.Gateway = stubGateway{refundRes: &RefundResult{Status: "failed", Provider: tx.Provider}}

	r, err := svc.CreateRefund(ctx, tx.ID, decimal.RequireFromString("20.00"))
	require.NoError(t, err)
	require.Equal(t, models.RefundStatusFailed, r.Status)

	got, err := svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSucceeded, got.Status)
	require.True(t, got.RefundedAmount.IsZero())
}

func TestRecalculateZeroDoesNotDowngrade(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	failed := models.PaymentTransaction{
		Amount:   decimal.RequireFromString("40.00"),
		Currency: "USD",
		Status:   models.PaymentStatusFailed,
	}
	require.NoError(t, svc.DB.Create(&failed).Error)
	require.NoError(t, svc.RecalculateRefundStatus(ctx, failed.ID))
	got, err := svc.GetPayment(ctx, failed.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusFailed, got.Status)

	// a refunded status with no surviving refunds reverts to succeeded
	stale := models.PaymentTransaction{
		Amount:         decimal.RequireFromString("40.00"),
		Currency:       "USD",
		Status:         models.PaymentStatusPartiallyRefunded,
		RefundedAmount: decimal.RequireFromString("10.00"),
	}
	require.NoError(t, svc.DB.Create(&stale).Error)
	require.NoError(t, svc.RecalculateRefundStatus(ctx, stale.ID))
	got, err = svc.GetPayment(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSucceeded, got.Status)
	require.True(t, got.RefundedAmount.IsZero())

	require.ErrorIs(t, svc.RecalculateRefundStatus(ctx, 9999), ErrNotFound)
}

func TestCheckoutFlow(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	u := models.User{Email: "alice@example.com", Username: "alice", FirstName: "Alice"}
	require.NoError(t, svc.DB.Create(&u).Error)
	p := models.Product{Title: "desk lamp", Price: decimal.RequireFromString("10.00"), Count: 10}
	require.NoError(t, svc.DB.Create(&p).Error)

	carts := &cart.Service{DB: svc.DB}
	crt, err := carts.Resolve(ctx, cart.Identity{UserID: &u.ID})
	require.NoError(t, err)
	_, err = carts.AddItem(ctx, crt, p.ID, 3)
	require.NoError(t, err)

	o, err := svc.Orders.CreateOrder(ctx, order.CreateOrderInput{
		Identity:        cart.Identity{UserID: &u.ID},
		ShippingAddress: "1 Main St",
	})
	require.NoError(t, err)
	require.True(t, o.TotalAmount.Equal(decimal.RequireFromString("30.00")))

	tx, secret, err := svc.CreatePayment(ctx, o.ID)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	require.NoError(t, svc.HandleDummyEvent(ctx, tx.Provider, tx.ProviderID, "payment_succeeded"))
	require.Equal(t, models.OrderStatusPaid, orderStatus(t, svc.DB, o.ID))

	tx, err = svc.GetPayment(ctx, tx.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentStatusSucceeded, tx.Status)
}
