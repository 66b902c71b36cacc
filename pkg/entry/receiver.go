package entry

import (
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Receiver is a minimal value sink.
type Receiver struct {
	self domain.Address
}

var (
	_ ports.Payable  = (*Receiver)(nil)
	_ ports.Reporter = (*Receiver)(nil)
)

// NewReceiver creates a Receiver to be deployed at self.
func NewReceiver(self domain.Address) *Receiver {
	return &Receiver{self: self}
}

// Address returns where the Receiver is deployed.
func (r *Receiver) Address() domain.Address { return r.self }

// Ref returns a receiving reference to this entry. The Receiver implements
// Accept, so the claim the reference makes is true.
func (r *Receiver) Ref() domain.ReceivingRef {
	return domain.NewReceivingRef(r.self)
}

// Accept never fails. The ledger has already credited amount in tx.
func (r *Receiver) Accept(tx ports.Tx, from domain.Address, amount domain.Amount) error {
	return nil
}

// ReportBalance returns the Receiver's balance as seen from inside its own frame.
func (r *Receiver) ReportBalance(tx ports.Tx) (domain.Amount, error) {
	if err := ownFrame(tx, r.self); err != nil {
		return 0, err
	}
	return tx.Balance(r.self)
}
