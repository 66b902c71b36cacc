package domain

// Capability tags what an account reference may be used for.
type Capability string

const (
	CapabilityOpaque    Capability = "opaque"    // Storable and comparable only
	CapabilityReceiving Capability = "receiving" // Additionally a valid transfer target
)

// Reference is the read-only surface shared by both reference kinds.
type Reference interface {
	Address() Address
	Capability() Capability
}

// OpaqueRef identifies a ledger participant without claiming it can receive value.
// It has no method or conversion that yields a transfer target; see Promote.
type OpaqueRef struct {
	addr Address
}

// NewOpaqueRef wraps addr. Always succeeds.
func NewOpaqueRef(addr Address) OpaqueRef {
	return OpaqueRef{addr: addr}
}

// Address returns the referenced identity.
func (r OpaqueRef) Address() Address { return r.addr }

// Capability always returns CapabilityOpaque.
func (r OpaqueRef) Capability() Capability { return CapabilityOpaque }

func (r OpaqueRef) String() string { return r.addr.String() }

// ReceivingRef identifies a ledger participant claimed to accept value.
//
// The claim is not verified when the reference is built. It is proven only
// when a transfer to it commits; a target without accept behaviour makes the
// transfer revert with ErrRecipientCannotAccept.
type ReceivingRef struct {
	target OpaqueRef
}

// NewReceivingRef builds a receiving reference for an address whose owner
// vouches for its accept behaviour (typically the entry itself).
func NewReceivingRef(addr Address) ReceivingRef {
	return ReceivingRef{target: OpaqueRef{addr: addr}}
}

// Address returns the referenced identity.
func (r ReceivingRef) Address() Address { return r.target.addr }

// Capability always returns CapabilityReceiving.
func (r ReceivingRef) Capability() Capability { return CapabilityReceiving }

// Opaque widens the reference. Always safe.
func (r ReceivingRef) Opaque() OpaqueRef { return r.target }

func (r ReceivingRef) String() string { return r.target.addr.String() }

// Promote turns an opaque reference into a receiving one without any check.
//
// Every call site is a place where static safety is given up: the ledger does
// not validate the target here, and a transfer to the result can still revert.
func Promote(r OpaqueRef) ReceivingRef {
	return ReceivingRef{target: r}
}

// SameAccount reports whether two references point at the same address,
// regardless of capability.
func SameAccount(a, b Reference) bool {
	return a.Address() == b.Address()
}
