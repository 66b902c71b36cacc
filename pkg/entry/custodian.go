package entry

import (
	"fmt"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Custodian holds value and forwards it.
//
// It keeps two references: owner is opaque and receiver is receiving. Only the
// receiving one can be used as a transfer target directly; there is no
// forward-via-opaque operation because it would not type-check against
// ports.Tx.Transfer. ForwardViaPromotedRef shows the explicit escape hatch.
type Custodian struct {
	self       domain.Address
	controller domain.Address
	owner      domain.OpaqueRef
	receiver   domain.ReceivingRef
}

var (
	_ ports.Payable  = (*Custodian)(nil)
	_ ports.Reporter = (*Custodian)(nil)
)

// NewCustodian creates a Custodian to be deployed at self.
// controller is the only caller allowed to forward.
func NewCustodian(self, controller domain.Address, owner domain.OpaqueRef, receiver domain.ReceivingRef) *Custodian {
	return &Custodian{
		self:       self,
		controller: controller,
		owner:      owner,
		receiver:   receiver,
	}
}

func (c *Custodian) Address() domain.Address { return c.self }
func (c *Custodian) Controller() domain.Address { return c.controller }
func (c *Custodian) Owner() domain.OpaqueRef { return c.owner }
func (c *Custodian) Receiver() domain.ReceivingRef { return c.receiver }
func (c *Custodian) Ref() domain.ReceivingRef { return domain.NewReceivingRef(c.self) }

// Accept takes funding from anyone. Never fails.
func (c *Custodian) Accept(tx ports.Tx, from domain.Address, amount domain.Amount) error {
	return nil
}

// ReportBalance returns the Custodian's balance as seen from its own frame.
func (c *Custodian) ReportBalance(tx ports.Tx) (domain.Amount, error) {
	if err := ownFrame(tx, c.self); err != nil {
		return 0, err
	}
	return tx.Balance(c.self)
}

// ForwardViaReceivingRef moves amount to the receiver reference.
func (c *Custodian) ForwardViaReceivingRef(tx ports.Tx, caller domain.Address, amount domain.Amount) error {
	if err := c.precheck(tx, caller, c.receiver.Address(), amount); err != nil {
		return err
	}
	return tx.Transfer(c.receiver, amount)
}

// ForwardViaPromotedRef promotes the opaque owner reference and moves amount
// to it. It type-checks, but reverts with domain.ErrRecipientCannotAccept
// when the owner entry has no accept behaviour.
func (c *Custodian) ForwardViaPromotedRef(tx ports.Tx, caller domain.Address, amount domain.Amount) error {
	if err := c.precheck(tx, caller, c.owner.Address(), amount); err != nil {
		return err
	}
	return tx.Transfer(domain.Promote(c.owner), amount)
}

// precheck rejects foreign frames, foreign callers and amounts above the
// balance before any transfer is staged. The caller parameter must match the
// identity the ledger put on the frame.
func (c *Custodian) precheck(tx ports.Tx, caller, to domain.Address, amount domain.Amount) error {
	if err := ownFrame(tx, c.self); err != nil {
		return err
	}
	if caller != tx.Caller() {
		return fmt.Errorf("%w: %s claims to be %s", domain.ErrNotController, tx.Caller(), caller)
	}
	if caller != c.controller {
		return fmt.Errorf("%w: %s", domain.ErrNotController, caller)
	}
	available, err := tx.Balance(c.self)
	if err != nil {
		return err
	}
	if amount > available {
		return &domain.TransferError{
			From:      c.self,
			To:        to,
			Amount:    amount,
			Available: available,
			Err:       domain.ErrInsufficientFunds,
		}
	}
	return nil
}
