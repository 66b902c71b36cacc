// Package wallet provides an externally owned account that funds the relay.
package wallet

import (
	"context"
	"fmt"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Wallet implements ports.FundingSource on top of a ports.Ledger.
type Wallet struct {
	ledger ports.Ledger
	addr   domain.Address
}

var _ ports.FundingSource = (*Wallet)(nil)

// New returns a Wallet acting as addr. addr must not hold code.
func New(ledger ports.Ledger, addr domain.Address) *Wallet {
	return &Wallet{ledger: ledger, addr: addr}
}

// Address returns the wallet's account.
func (w *Wallet) Address() domain.Address { return w.addr }

// Balance reads the wallet's committed balance.
func (w *Wallet) Balance(ctx context.Context) (domain.Amount, error) {
	return w.ledger.BalanceOf(ctx, w.addr)
}

// Send submits a transfer of amount to the referenced entry.
func (w *Wallet) Send(ctx context.Context, to domain.ReceivingRef, amount domain.Amount) (ports.Pending, error) {
	p, err := w.ledger.Submit(ctx, ports.Call{
		Caller: w.addr,
		Target: w.addr,
		Label:  "wallet.send",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			return tx.Transfer(to, amount)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", amount, to, err)
	}
	return p, nil
}
