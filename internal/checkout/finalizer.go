package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/basket"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/models"
)

// Outcome maps a processor status onto the terminal state it leads to.
func Outcome(status string) (models.CheckoutState, error) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed":
		return models.StateCompleted, nil
	case "cancelled", "canceled":
		return models.StateCanceled, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, status)
}

// HandleProcessorEvent finalizes a waiting session with the processor's
// status. A repeated event with the outcome already recorded returns the
// stored result without calling the backend again. A session left in
// finalizing by an interrupted attempt is finalized again.
func (o *Orchestrator) HandleProcessorEvent(ctx context.Context, owner string, id uuid.UUID, status, apiToken string) (*View, error) {
	outcome, err := Outcome(status)
	if err != nil {
		return nil, err
	}

	unlock := o.locks.lock(id)
	defer unlock()

	s, err := o.load(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	switch s.State {
	case models.StateCompleted, models.StateCanceled:
		if s.State != outcome {
			return nil, fmt.Errorf("%w: session is %s", ErrAlreadyFinalized, s.State)
		}
		return o.view(s)
	case models.StateWaitingForProcessor, models.StateFailed, models.StateFinalizing:
	default:
		return nil, fmt.Errorf("%w: event %s while %s", ErrIllegalTransition, outcome, s.State)
	}

	if lis, ok := o.listeners.lookup(s.ID); ok && lis.owner == s.Owner && apiToken == "" {
		apiToken = lis.apiToken
	}
	return o.finalize(ctx, s, outcome, apiToken)
}

func (o *Orchestrator) finalize(ctx context.Context, s *models.CheckoutSession, outcome models.CheckoutState, apiToken string) (*View, error) {
	l := logging.FromContext(ctx).With("checkout_id", s.ID, "outcome", outcome)

	var b basket.Basket
	if err := json.Unmarshal([]byte(s.Basket), &b); err != nil {
		return nil, fmt.Errorf("decode basket snapshot: %w", err)
	}

	from := s.State
	if from != models.StateFinalizing {
		if err := o.advance(ctx, s, models.StateFinalizing); err != nil {
			return nil, err
		}
	}

	// finalizing is committed; the rest must land even if the caller goes away
	persist := context.WithoutCancel(ctx)

	orderStatus := models.OrderStatusCanceled
	if outcome == models.StateCompleted {
		orderStatus = models.OrderStatusCompleted
	}

	if err := o.orders.SubmitOrder(ctx, apiToken, orderRequest(s, b, orderStatus, apiToken)); err != nil {
		l.Error("finalize_order_error", "error", err)
		cause := fmt.Errorf("%w: update order: %w", ErrUpstream, err)
		s.LastError = cause.Error()
		back := from
		if back == models.StateFinalizing {
			back = models.StateFailed
		}
		if rerr := o.advance(persist, s, back); rerr != nil {
			l.Error("finalize_revert_error", "error", rerr)
		}
		if back == models.StateFailed {
			o.listeners.release(s.ID)
		}
		return nil, cause
	}

	if outcome == models.StateCompleted {
		if _, err := o.baskets.Clear(persist, s.Owner); err != nil {
			l.Error("clear_basket_error", "error", err)
			s.LastError = fmt.Sprintf("clear basket: %v", err)
		}
	}

	s.FinalStatus = orderStatus
	s.WaitDeadline = nil
	if err := o.advance(persist, s, outcome); err != nil {
		return nil, err
	}
	o.listeners.release(s.ID)

	l.Info("checkout_finalized", "from", from)
	o.publish(persist, "checkout_"+string(outcome), s)
	return o.view(s)
}
