package entry

import "github.com/aretw0/relay/pkg/domain"

// Holder is a ledger entry without accept behaviour.
// Value can never be transferred to it; attempts revert with
// domain.ErrRecipientCannotAccept.
type Holder struct {
	self  domain.Address
	label string
}

// NewHolder creates a Holder to be deployed at self.
func NewHolder(self domain.Address, label string) *Holder {
	return &Holder{self: self, label: label}
}

// Address returns where the Holder is deployed.
func (h *Holder) Address() domain.Address { return h.self }

// Ref returns an opaque reference; a Holder cannot vouch for receiving value.
func (h *Holder) Ref() domain.OpaqueRef { return domain.NewOpaqueRef(h.self) }

// Label is a human name for reports.
func (h *Holder) Label() string { return h.label }
