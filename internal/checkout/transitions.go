package checkout

import (
	"slices"

	"github.com/Skotchmaster/storefront/internal/models"
)

// Finalizing may fall back to the state it came from when the backend fails.
var transitions = map[models.CheckoutState][]models.CheckoutState{
	models.StateCollectingBilling:    {models.StateAwaitingPaymentToken},
	models.StateAwaitingPaymentToken: {models.StateSubmittingPending},
	models.StateSubmittingPending:    {models.StateWaitingForProcessor},
	models.StateWaitingForProcessor:  {models.StateFinalizing, models.StateFailed},
	models.StateFinalizing:           {models.StateCompleted, models.StateCanceled, models.StateWaitingForProcessor, models.StateFailed},
	models.StateFailed:               {models.StateFinalizing, models.StateAbandoned},
}

func CanTransitionTo(from, to models.CheckoutState) bool {
	return slices.Contains(transitions[from], to)
}
