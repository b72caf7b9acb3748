// Package checkout drives a basket snapshot through payment initiation,
// pending-order submission and the processor callback until the order is
// finalized.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/backend"
	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/payfast"
	"github.com/Skotchmaster/storefront/internal/repo"
)

const paymentMethod = "payfast"

type Sessions interface {
	CreateSession(ctx context.Context, s *models.CheckoutSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.CheckoutSession, error)
	SaveSession(ctx context.Context, s *models.CheckoutSession) error
	ListExpiredSessions(ctx context.Context, state models.CheckoutState, t time.Time) ([]models.CheckoutSession, error)
}

type Baskets interface {
	Get(ctx context.Context, owner string) (basket.Basket, error)
	Clear(ctx context.Context, owner string) (basket.Basket, error)
}

type PaymentGateway interface {
	CreateSession(ctx context.Context, signed payfast.Fields) (string, error)
}

type OrderAPI interface {
	SubmitOrder(ctx context.Context, token string, order backend.OrderRequest) error
}

type Config struct {
	Merchant          payfast.Merchant
	WaitTimeout       time.Duration
	ConfirmationRoute string
	Now               func() time.Time
}

type Orchestrator struct {
	sessions  Sessions
	baskets   Baskets
	gateway   PaymentGateway
	orders    OrderAPI
	publisher events.Publisher
	cfg       Config

	locks     *sessionLocks
	listeners *listenerRegistry
}

func NewOrchestrator(sessions Sessions, baskets Baskets, gateway PaymentGateway, orders OrderAPI, publisher events.Publisher, cfg Config) *Orchestrator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 15 * time.Minute
	}
	if cfg.ConfirmationRoute == "" {
		cfg.ConfirmationRoute = "/thank-you"
	}
	return &Orchestrator{
		sessions:  sessions,
		baskets:   baskets,
		gateway:   gateway,
		orders:    orders,
		publisher: publisher,
		cfg:       cfg,
		locks:     newSessionLocks(),
		listeners: newListenerRegistry(),
	}
}

// View is a session together with its decoded basket snapshot.
type View struct {
	*models.CheckoutSession
	Basket   basket.Basket `json:"basket"`
	Redirect string        `json:"redirect,omitempty"`
}

// Begin opens a session for owner's current basket.
func (o *Orchestrator) Begin(ctx context.Context, owner string) (*View, error) {
	b, err := o.baskets.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if b.IsEmpty() {
		return nil, ErrEmptyBasket
	}

	s := &models.CheckoutSession{
		Owner: owner,
		State: models.StateCollectingBilling,
	}
	if err := setBasket(s, b); err != nil {
		return nil, err
	}
	if err := o.sessions.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	logging.FromContext(ctx).Info("checkout_started", "checkout_id", s.ID, "total", s.Total.StringFixed(2))
	o.publish(ctx, "checkout_started", s)
	return &View{CheckoutSession: s, Basket: b}, nil
}

func (o *Orchestrator) Get(ctx context.Context, owner string, id uuid.UUID) (*View, error) {
	s, err := o.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	return o.view(s)
}

// SubmitBilling signs the payment request, obtains the processor session,
// posts the pending order and starts waiting for the processor. Any upstream
// failure leaves the session in the state it reached.
func (o *Orchestrator) SubmitBilling(ctx context.Context, owner string, id uuid.UUID, form models.BillingForm, apiToken string) (*payfast.Popup, error) {
	form = trimForm(form)
	if err := ValidateBilling(form); err != nil {
		return nil, err
	}

	unlock := o.locks.lock(id)
	defer unlock()

	s, err := o.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTo(s.State, models.StateAwaitingPaymentToken) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.State, models.StateAwaitingPaymentToken)
	}

	b, err := o.baskets.Get(ctx, owner)
	if err != nil {
		return nil, err
	}
	if b.IsEmpty() {
		return nil, ErrEmptyBasket
	}
	if err := setBasket(s, b); err != nil {
		return nil, err
	}

	l := logging.FromContext(ctx).With("checkout_id", s.ID)

	now := o.cfg.Now()
	ref := strconv.FormatInt(now.UnixMilli(), 10)
	s.Billing = form
	s.PaymentRef = ref
	s.LastError = ""
	if err := o.advance(ctx, s, models.StateAwaitingPaymentToken); err != nil {
		return nil, err
	}

	first, last := splitName(form.Name)
	fields := o.cfg.Merchant.PaymentFields(
		payfast.Buyer{FirstName: first, LastName: last, Email: form.Email},
		ref, s.Total, "Order #"+ref,
	)
	processorID, err := o.gateway.CreateSession(ctx, payfast.Sign(fields, o.cfg.Merchant.Passphrase))
	if err != nil {
		l.Error("payment_session_error", "error", err)
		return nil, o.halt(ctx, s, fmt.Errorf("%w: create payment session: %w", ErrUpstream, err))
	}

	s.ProcessorUUID = processorID
	if err := o.advance(ctx, s, models.StateSubmittingPending); err != nil {
		return nil, err
	}

	if err := o.orders.SubmitOrder(ctx, apiToken, orderRequest(s, b, models.OrderStatusPending, apiToken)); err != nil {
		l.Error("pending_order_error", "error", err)
		return nil, o.halt(ctx, s, fmt.Errorf("%w: submit pending order: %w", ErrUpstream, err))
	}

	deadline := now.Add(o.cfg.WaitTimeout)
	s.WaitDeadline = &deadline
	if err := o.listeners.register(s.ID, listener{owner: owner, apiToken: apiToken}); err != nil {
		return nil, err
	}
	if err := o.advance(ctx, s, models.StateWaitingForProcessor); err != nil {
		o.listeners.release(s.ID)
		return nil, err
	}

	l.Info("checkout_waiting", "payment_ref", ref, "deadline", deadline)
	o.publish(ctx, "checkout_waiting", s)
	return &payfast.Popup{
		UUID:      processorID,
		ReturnURL: o.cfg.Merchant.ReturnURL,
		CancelURL: o.cfg.Merchant.CancelURL,
	}, nil
}

// Retry opens a fresh session from the current basket after a timeout.
func (o *Orchestrator) Retry(ctx context.Context, owner string, id uuid.UUID) (*View, error) {
	s, err := o.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if s.State != models.StateFailed {
		return nil, fmt.Errorf("%w: retry from %s", ErrIllegalTransition, s.State)
	}
	return o.Begin(ctx, owner)
}

func (o *Orchestrator) Abandon(ctx context.Context, owner string, id uuid.UUID) (*View, error) {
	unlock := o.locks.lock(id)
	defer unlock()

	s, err := o.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTo(s.State, models.StateAbandoned) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.State, models.StateAbandoned)
	}
	if err := o.advance(ctx, s, models.StateAbandoned); err != nil {
		return nil, err
	}
	o.listeners.release(s.ID)
	o.publish(ctx, "checkout_abandoned", s)
	return o.view(s)
}

// Listening reports how many sessions currently wait for the processor.
func (o *Orchestrator) Listening() int {
	return o.listeners.len()
}

func (o *Orchestrator) load(ctx context.Context, owner string, id uuid.UUID) (*models.CheckoutSession, error) {
	s, err := o.sessions.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load checkout session: %w", err)
	}
	if s.Owner != owner {
		return nil, ErrNotFound
	}
	return s, nil
}

func (o *Orchestrator) advance(ctx context.Context, s *models.CheckoutSession, to models.CheckoutState) error {
	if !CanTransitionTo(s.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, s.State, to)
	}
	prev := s.State
	s.State = to
	if err := o.sessions.SaveSession(ctx, s); err != nil {
		s.State = prev
		return fmt.Errorf("save checkout session: %w", err)
	}
	return nil
}

// halt records cause on the session without moving it and returns cause.
func (o *Orchestrator) halt(ctx context.Context, s *models.CheckoutSession, cause error) error {
	s.LastError = cause.Error()
	if err := o.sessions.SaveSession(ctx, s); err != nil {
		logging.FromContext(ctx).Error("save_checkout_error", "checkout_id", s.ID, "error", err)
	}
	return cause
}

func (o *Orchestrator) publish(ctx context.Context, typ string, s *models.CheckoutSession) {
	ev := events.CheckoutEvent{
		Type:       typ,
		CheckoutID: s.ID.String(),
		UserID:     s.Owner,
		State:      string(s.State),
		PaymentRef: s.PaymentRef,
		Total:      s.Total.StringFixed(2),
		Timestamp:  o.cfg.Now(),
	}
	if err := o.publisher.PublishEvent(ctx, events.TopicCheckout, s.ID.String(), ev); err != nil {
		logging.FromContext(ctx).Warn("kafka_publish_failed", "topic", events.TopicCheckout, "checkout_id", s.ID, "error", err)
	}
}

func (o *Orchestrator) view(s *models.CheckoutSession) (*View, error) {
	var b basket.Basket
	if s.Basket != "" {
		if err := json.Unmarshal([]byte(s.Basket), &b); err != nil {
			return nil, fmt.Errorf("decode basket snapshot: %w", err)
		}
	}
	v := &View{CheckoutSession: s, Basket: b}
	if s.State == models.StateCompleted {
		v.Redirect = o.cfg.ConfirmationRoute
	}
	return v, nil
}

func setBasket(s *models.CheckoutSession, b basket.Basket) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode basket snapshot: %w", err)
	}
	s.Basket = string(raw)
	s.Total = b.Total()
	return nil
}

func orderRequest(s *models.CheckoutSession, b basket.Basket, status, apiToken string) backend.OrderRequest {
	items := make([]backend.OrderItem, 0, b.Len())
	for _, line := range b.Lines() {
		items = append(items, backend.OrderItem{ID: line.ProductID, Quantity: line.Quantity})
	}
	var token *string
	if apiToken != "" {
		token = &apiToken
	}
	return backend.OrderRequest{
		Token:         token,
		UserID:        s.Owner,
		Name:          s.Billing.Name,
		Email:         s.Billing.Email,
		TotalPrice:    backend.Amount(s.Total),
		Address:       s.Billing.Address,
		City:          s.Billing.City,
		PostalCode:    s.Billing.PostalCode,
		Country:       s.Billing.Country,
		PaymentMethod: paymentMethod,
		PaymentRef:    s.PaymentRef,
		Status:        status,
		Items:         items,
	}
}

// splitName takes the first two space-separated words; the rest is dropped.
func splitName(name string) (first, last string) {
	words := strings.Split(name, " ")
	if len(words) > 1 {
		last = words[1]
	}
	return words[0], last
}
