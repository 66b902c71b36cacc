package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// Tx is the execution frame handed to ledger-entry code.
// All changes made through a Tx commit together or not at all.
type Tx interface {
	// Context returns the context of the submitted operation.
	Context() context.Context

	// Self is the address of the entry whose code is running.
	Self() domain.Address

	// Caller is the identity that invoked this frame, set by the ledger:
	// the submitter for the top frame, the paying entry for a nested
	// Accept. Read-only query frames have the zero address.
	Caller() domain.Address

	// Balance returns the balance of addr as seen inside this frame,
	// including transfers staged earlier in the same operation.
	Balance(addr domain.Address) (domain.Amount, error)

	// Transfer moves amount from Self to the referenced entry.
	// A failed transfer leaves the frame exactly as it was before the call.
	Transfer(to domain.ReceivingRef, amount domain.Amount) error
}

// Payable is implemented by ledger entries that accept incoming value.
//
// Accept runs after the value has been credited inside the same frame and must
// not fail for a well-formed transfer. Entries without it cannot be paid.
type Payable interface {
	Accept(tx Tx, from domain.Address, amount domain.Amount) error
}

// Reporter is implemented by entries that report their own balance.
type Reporter interface {
	ReportBalance(tx Tx) (domain.Amount, error)
}
