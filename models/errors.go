package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrIntentNotFound   = errors.New("intent not found")
	ErrAuctionNotFound  = errors.New("auction not found")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrStrategyRequired = errors.New("strategy is required for evm_to_sui")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrAuctionClosed    = errors.New("auction is closed")
	ErrBidTooLow        = errors.New("bid is below the minimum")
	ErrAlreadyFilled    = errors.New("auction already filled")
)

// InvalidStateError is returned when an intent or auction is not in the state an operation expects
type InvalidStateError struct {
	Expected string
	Actual   string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: expected %s, got %s", e.Expected, e.Actual)
}

// IsInvalidState reports whether err wraps an *InvalidStateError.
func IsInvalidState(err error) bool {
	var target *InvalidStateError
	return errors.As(err, &target)
}
