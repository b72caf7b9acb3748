package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/storefront/internal/backend"
	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/db"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payfast"
	"github.com/Skotchmaster/storefront/internal/repo"
)

func InitTestDB(t *testing.T) *gorm.DB {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}
	return gdb
}

type fakeGateway struct {
	mu    sync.Mutex
	calls []payfast.Fields
	uuid  string
	err   error
}

func (f *fakeGateway) CreateSession(_ context.Context, signed payfast.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, signed)
	if f.err != nil {
		return "", f.err
	}
	return f.uuid, nil
}

type fakeOrders struct {
	mu     sync.Mutex
	orders []backend.OrderRequest
	tokens []string
	err    error
	during func()
}

func (f *fakeOrders) SubmitOrder(_ context.Context, token string, order backend.OrderRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.during != nil {
		f.during()
	}
	if f.err != nil {
		return f.err
	}
	f.orders = append(f.orders, order)
	f.tokens = append(f.tokens, token)
	return nil
}

func (f *fakeOrders) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o.Status)
	}
	return out
}

type recordingPublisher struct {
	mu    sync.Mutex
	types []string
}

func (r *recordingPublisher) PublishEvent(_ context.Context, topic, _ string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ev, ok := event.(events.CheckoutEvent); ok && topic == events.TopicCheckout {
		r.types = append(r.types, ev.Type)
	}
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

type fixture struct {
	o       *Orchestrator
	repo    *repo.GormRepo
	store   *basket.Store
	gateway *fakeGateway
	orders  *fakeOrders
	events  *recordingPublisher
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:    &repo.GormRepo{DB: InitTestDB(t)},
		store:   basket.NewStore(basket.NewMemoryPersister()),
		gateway: &fakeGateway{uuid: "pf-uuid-1"},
		orders:  &fakeOrders{},
		events:  &recordingPublisher{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.o = NewOrchestrator(f.repo, f.store, f.gateway, f.orders, f.events, Config{
		Merchant: payfast.Merchant{
			ID: "10000100", Key: "46f0cd694581a", Passphrase: "jt7NOE43FZPn",
			ReturnURL: "https://shop.example/return", CancelURL: "https://shop.example/cancel",
			NotifyURL: "https://api.example/order/notify/",
		},
		WaitTimeout:       15 * time.Minute,
		ConfirmationRoute: "/thank-you",
		Now:               func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) fill(t *testing.T, owner string) {
	t.Helper()
	ctx := context.Background()
	p1 := basket.Product{ID: 1, Name: "aspirin", Price: decimal.NewFromInt(10), QuantityAvailable: 5}
	p2 := basket.Product{ID: 2, Name: "ibuprofen", Price: decimal.NewFromInt(5), QuantityAvailable: 5}
	for i := 0; i < 2; i++ {
		_, err := f.store.AddOrIncrement(ctx, owner, p1)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		_, err := f.store.AddOrIncrement(ctx, owner, p2)
		require.NoError(t, err)
	}
}

func billing() models.BillingForm {
	return models.BillingForm{
		Name:       "Jane Doe",
		Email:      "jane@example.com",
		Address:    "1 Long Street",
		City:       "Cape Town",
		PostalCode: "8001",
		Country:    "ZA",
	}
}

func (f *fixture) waiting(t *testing.T, owner string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	f.fill(t, owner)
	v, err := f.o.Begin(ctx, owner)
	require.NoError(t, err)
	_, err = f.o.SubmitBilling(ctx, owner, v.ID, billing(), "drf")
	require.NoError(t, err)
	return v.ID
}

func TestBegin_RejectsEmptyBasket(t *testing.T) {
	f := newFixture(t)
	_, err := f.o.Begin(context.Background(), "u1")
	require.ErrorIs(t, err, ErrEmptyBasket)
}

func TestCheckout_TwoItemsCompleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t, "u1")

	v, err := f.o.Begin(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.StateCollectingBilling, v.State)
	assert.True(t, decimal.NewFromInt(35).Equal(v.Total))

	popup, err := f.o.SubmitBilling(ctx, "u1", v.ID, billing(), "drf")
	require.NoError(t, err)
	assert.Equal(t, "pf-uuid-1", popup.UUID)
	assert.Equal(t, "https://shop.example/return", popup.ReturnURL)
	assert.Equal(t, "https://shop.example/cancel", popup.CancelURL)
	assert.Equal(t, 1, f.o.Listening())

	require.Len(t, f.gateway.calls, 1)
	sent := f.gateway.calls[0]
	amount, _ := sent.Get("amount")
	assert.Equal(t, "35.00", amount)
	first, _ := sent.Get("name_first")
	last, _ := sent.Get("name_last")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)
	sig, ok := sent.Get("signature")
	require.True(t, ok)
	assert.Equal(t, payfast.Signature(sent[:len(sent)-1], "jt7NOE43FZPn"), sig)

	require.Equal(t, []string{models.OrderStatusPending}, f.orders.statuses())
	pending := f.orders.orders[0]
	assert.Equal(t, "payfast", pending.PaymentMethod)
	assert.Equal(t, []backend.OrderItem{{ID: 1, Quantity: 2}, {ID: 2, Quantity: 3}}, pending.Items)
	assert.Equal(t, "drf", f.orders.tokens[0])

	got, err := f.o.Get(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForProcessor, got.State)
	require.NotNil(t, got.WaitDeadline)
	assert.True(t, f.now.Add(15*time.Minute).Equal(*got.WaitDeadline))

	done, err := f.o.HandleProcessorEvent(ctx, "u1", v.ID, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, done.State)
	assert.Equal(t, "/thank-you", done.Redirect)
	assert.Equal(t, 0, f.o.Listening())
	assert.Equal(t, []string{models.OrderStatusPending, models.OrderStatusCompleted}, f.orders.statuses())
	assert.Equal(t, "drf", f.orders.tokens[1])

	b, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, b.IsEmpty())

	assert.Equal(t, []string{"checkout_started", "checkout_waiting", "checkout_completed"}, f.events.types)
}

func TestCheckout_CancelledKeepsBasket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")

	v, err := f.o.HandleProcessorEvent(ctx, "u1", id, "cancelled", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCanceled, v.State)
	assert.Empty(t, v.Redirect)
	assert.Equal(t, models.OrderStatusCanceled, v.FinalStatus)

	b, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
	assert.True(t, decimal.NewFromInt(35).Equal(b.Total()))
}

func TestCheckout_FinalizationIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")

	_, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.NoError(t, err)

	_, err = f.store.AddOrIncrement(ctx, "u1", basket.Product{ID: 9, Price: decimal.NewFromInt(1), QuantityAvailable: 1})
	require.NoError(t, err)

	again, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, again.State)
	assert.Len(t, f.orders.orders, 2)

	b, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Len())

	_, err = f.o.HandleProcessorEvent(ctx, "u1", id, "canceled", "")
	require.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestCheckout_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	id := f.waiting(t, "u1")

	_, err := f.o.HandleProcessorEvent(context.Background(), "u1", id, "refunded", "")
	require.ErrorIs(t, err, ErrUnknownStatus)
}

func TestSubmitBilling_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fill(t, "u1")
	v, err := f.o.Begin(ctx, "u1")
	require.NoError(t, err)

	form := billing()
	form.Email = "not-an-email"
	_, err = f.o.SubmitBilling(ctx, "u1", v.ID, form, "drf")
	require.ErrorIs(t, err, ErrValidation)

	form = billing()
	form.City = "   "
	_, err = f.o.SubmitBilling(ctx, "u1", v.ID, form, "drf")
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "city")

	assert.Empty(t, f.gateway.calls)
}

func TestSubmitBilling_PaymentSessionFailureHalts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.err = errors.New("connection refused")
	f.fill(t, "u1")
	v, err := f.o.Begin(ctx, "u1")
	require.NoError(t, err)

	_, err = f.o.SubmitBilling(ctx, "u1", v.ID, billing(), "drf")
	require.ErrorIs(t, err, ErrUpstream)

	got, err := f.o.Get(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateAwaitingPaymentToken, got.State)
	assert.Contains(t, got.LastError, "connection refused")
	assert.Empty(t, f.orders.orders)
	assert.Equal(t, 0, f.o.Listening())

	b, err := f.store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())

	_, err = f.o.SubmitBilling(ctx, "u1", v.ID, billing(), "drf")
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestSubmitBilling_PendingOrderFailureHalts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.orders.err = backend.ErrRejected
	f.fill(t, "u1")
	v, err := f.o.Begin(ctx, "u1")
	require.NoError(t, err)

	_, err = f.o.SubmitBilling(ctx, "u1", v.ID, billing(), "drf")
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorIs(t, err, backend.ErrRejected)

	got, err := f.o.Get(ctx, "u1", v.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateSubmittingPending, got.State)
	assert.Equal(t, "pf-uuid-1", got.ProcessorUUID)
	assert.Equal(t, 0, f.o.Listening())
}

func TestFinalize_BackendFailureKeepsWaiting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")

	f.orders.err = errors.New("timeout")
	_, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.ErrorIs(t, err, ErrUpstream)

	got, err := f.o.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForProcessor, got.State)
	assert.Equal(t, 1, f.o.Listening())

	f.orders.err = nil
	done, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, done.State)
}

func TestFinalize_CallerGoneDuringOrderUpdateReverts(t *testing.T) {
	f := newFixture(t)
	id := f.waiting(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	f.orders.during = cancel
	f.orders.err = context.Canceled
	_, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.ErrorIs(t, err, ErrUpstream)

	got, err := f.repo.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForProcessor, got.State)

	f.orders.during, f.orders.err = nil, nil
	done, err := f.o.HandleProcessorEvent(context.Background(), "u1", id, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, done.State)
}

func TestFinalize_CallerGoneAfterOrderUpdateStillCompletes(t *testing.T) {
	f := newFixture(t)
	id := f.waiting(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	f.orders.during = cancel
	v, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, v.State)

	got, err := f.repo.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, got.State)

	b, err := f.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 0, f.o.Listening())
}

func strand(t *testing.T, f *fixture, id uuid.UUID) {
	t.Helper()
	s, err := f.repo.GetSession(context.Background(), id)
	require.NoError(t, err)
	s.State = models.StateFinalizing
	require.NoError(t, f.repo.SaveSession(context.Background(), s))
}

func TestFinalize_StrandedSessionFinishesOnRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")
	strand(t, f, id)

	v, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, v.State)
	assert.Equal(t, []string{models.OrderStatusPending, models.OrderStatusCompleted}, f.orders.statuses())
}

func TestFinalize_StrandedSessionFailsWhenBackendDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")
	strand(t, f, id)

	f.orders.err = errors.New("timeout")
	_, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.ErrorIs(t, err, ErrUpstream)

	got, err := f.o.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, got.State)
	assert.Equal(t, 0, f.o.Listening())
}

func TestExpireWaiting_ReclaimsStrandedFinalizing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")
	strand(t, f, id)

	n, err := f.o.ExpireWaiting(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.o.ExpireWaiting(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	failed, err := f.o.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, failed.State)
	assert.Equal(t, "finalization interrupted", failed.LastError)

	v, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, v.State)
}

func TestExpireWaiting_RetryAndAbandon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")

	n, err := f.o.ExpireWaiting(ctx, f.now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = f.o.ExpireWaiting(ctx, f.now.Add(16*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, f.o.Listening())

	failed, err := f.o.Get(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StateFailed, failed.State)

	fresh, err := f.o.Retry(ctx, "u1", id)
	require.NoError(t, err)
	assert.NotEqual(t, id, fresh.ID)
	assert.Equal(t, models.StateCollectingBilling, fresh.State)

	_, err = f.o.Retry(ctx, "u1", fresh.ID)
	require.ErrorIs(t, err, ErrIllegalTransition)

	abandoned, err := f.o.Abandon(ctx, "u1", id)
	require.NoError(t, err)
	assert.Equal(t, models.StateAbandoned, abandoned.State)

	_, err = f.o.Abandon(ctx, "u1", id)
	require.ErrorIs(t, err, ErrIllegalTransition)
}

func TestLateEventFinalizesFailedSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")

	_, err := f.o.ExpireWaiting(ctx, f.now.Add(time.Hour))
	require.NoError(t, err)

	v, err := f.o.HandleProcessorEvent(ctx, "u1", id, "completed", "drf-late")
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, v.State)
	assert.Equal(t, "drf-late", f.orders.tokens[len(f.orders.tokens)-1])
}

func TestSessionsAreOwnerScoped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.waiting(t, "u1")

	_, err := f.o.Get(ctx, "u2", id)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.o.HandleProcessorEvent(ctx, "u2", id, "completed", "")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.o.Get(ctx, "u1", uuid.New())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	id := f.waiting(t, "u1")
	f.now = f.now.Add(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(f.o, 5*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil))).Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		s, err := f.repo.GetSession(context.Background(), id)
		return err == nil && s.State == models.StateFailed
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func TestCanTransitionTo(t *testing.T) {
	assert.True(t, CanTransitionTo(models.StateCollectingBilling, models.StateAwaitingPaymentToken))
	assert.True(t, CanTransitionTo(models.StateFailed, models.StateAbandoned))
	assert.False(t, CanTransitionTo(models.StateCompleted, models.StateFinalizing))
	assert.False(t, CanTransitionTo(models.StateCollectingBilling, models.StateCompleted))
	assert.False(t, CanTransitionTo(models.StateAbandoned, models.StateFailed))
}

func TestSplitName(t *testing.T) {
	first, last := splitName("Jane van der Merwe")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "van", last)

	first, last = splitName("Jane Doe")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "Doe", last)

	first, last = splitName("Cher")
	assert.Equal(t, "Cher", first)
	assert.Empty(t, last)
}
