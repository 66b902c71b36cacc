package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// Call is an operation submitted to the ledger environment.
type Call struct {
	// Caller is the identity submitting the operation.
	// It is passed explicitly to Invoke.
	Caller domain.Address

	// Target is the entry whose code runs. Externally owned accounts may only
	// target themselves.
	Target domain.Address

	// Label names the operation in receipts, logs and metrics.
	Label string

	// Invoke runs inside the Target frame.
	Invoke func(tx Tx, caller domain.Address) error
}

// Pending is a submitted operation awaiting finality.
type Pending interface {
	ID() string

	// Wait blocks until the operation is final or ctx is done.
	// A reverted operation returns its receipt and the typed failure.
	// An expired ctx returns an error wrapping domain.ErrObservationTimeout.
	Wait(ctx context.Context) (domain.Receipt, error)
}

// Ledger is the ledger environment as seen by clients.
type Ledger interface {
	// BalanceOf is the ledger-level observation path.
	BalanceOf(ctx context.Context, addr domain.Address) (domain.Amount, error)

	// Submit enqueues an operation.
	Submit(ctx context.Context, call Call) (Pending, error)

	// Query runs fn in a read-only frame of target, serialized with all
	// mutations.
	Query(ctx context.Context, target domain.Address, fn func(tx Tx) error) error

	// Receipt re-queries a finalized operation.
	// Returns domain.ErrReceiptNotFound while the operation is not final.
	Receipt(ctx context.Context, id string) (domain.Receipt, error)
}

// FundingSource is an external account able to send value.
type FundingSource interface {
	Address() domain.Address
	Balance(ctx context.Context) (domain.Amount, error)
	Send(ctx context.Context, to domain.ReceivingRef, amount domain.Amount) (Pending, error)
}
