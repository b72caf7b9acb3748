package checkout

import "errors"

var (
	ErrValidation        = errors.New("invalid billing details")
	ErrNotFound          = errors.New("checkout not found")
	ErrEmptyBasket       = errors.New("basket is empty, nothing to checkout")
	ErrIllegalTransition = errors.New("illegal transition of checkout state")
	ErrAlreadyFinalized  = errors.New("checkout already finalized with another outcome")
	ErrUnknownStatus     = errors.New("unknown processor status")
	ErrUpstream          = errors.New("upstream request failed")
	ErrListenerExists    = errors.New("checkout already has a processor listener")
)
