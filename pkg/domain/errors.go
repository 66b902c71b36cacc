package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientFunds is returned when a source balance cannot cover a transfer.
// It is checked before any state is mutated.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrRecipientCannotAccept is returned when a transfer reaches an entry that has
// no accept behaviour. Only promoted references can get there.
var ErrRecipientCannotAccept = errors.New("recipient cannot accept value")

// ErrInsufficientFundingSource is returned by the harness when the funding
// source holds less than the amount it is asked to send.
var ErrInsufficientFundingSource = errors.New("insufficient funding source")

// ErrObservationTimeout is returned when waiting for finality gives up.
// The operation outcome is unknown until its receipt is queried again.
var ErrObservationTimeout = errors.New("observation timeout")

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountOverflow  = errors.New("amount overflow")
	ErrInvalidAddress  = errors.New("invalid address")
	ErrAddressInUse    = errors.New("address already has code")
	ErrNoCode          = errors.New("no code at address")
	ErrNotController   = errors.New("caller is not the controller")
	ErrWrongFrame      = errors.New("entry code called outside its own frame")
	ErrReadOnly        = errors.New("transfer attempted in read-only call")
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrBalanceMismatch = errors.New("balance observations disagree")
)

// TransferError describes a reverted value transfer.
type TransferError struct {
	From      Address
	To        Address
	Amount    Amount
	Available Amount
	Err       error
}

func (e *TransferError) Error() string {
	if errors.Is(e.Err, ErrInsufficientFunds) {
		return fmt.Sprintf("transfer %s from %s to %s: %v (available %s)", e.Amount, e.From, e.To, e.Err, e.Available)
	}
	return fmt.Sprintf("transfer %s from %s to %s: %v", e.Amount, e.From, e.To, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// OutcomeOf maps the error of a finalized operation to its Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeCommitted
	case errors.Is(err, ErrInsufficientFunds):
		return OutcomeRevertedInsufficientFunds
	case errors.Is(err, ErrRecipientCannotAccept):
		return OutcomeRevertedRecipientCannotAccept
	default:
		return OutcomeReverted
	}
}
