/*
Package relay is a minimal value-custody relay over a single ledger.

Two ledger entries cooperate: a Custodian, which holds an opaque reference to
its owner and a receiving reference to a Receiver, and the Receiver itself,
which accepts value unconditionally and reports its own balance. A harness
funds the custodian from an external wallet, forwards value through each
reference kind and checks every balance through two independent paths: the
ledger and the entry's self-report.

# References

An opaque reference (domain.OpaqueRef) can be stored and compared but is not a
transfer target: no transfer operation accepts one, so forwarding through it
does not compile. A receiving reference (domain.ReceivingRef) is. The only way
from one to the other is domain.Promote, an explicit and unverified
conversion; a transfer to a promoted reference whose entry cannot accept value
reverts with domain.ErrRecipientCannotAccept.

# Atomicity

Every operation runs on the ledger's single worker inside a journaled frame.
It either commits all of its balance changes or none of them; a revert is
reported as a typed error (domain.ErrInsufficientFunds,
domain.ErrRecipientCannotAccept) wrapped in a *domain.TransferError.

# Usage

	ctx := context.Background()
	r, err := relay.New(ctx, config.Default())
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	report, err := r.Run(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(report.Markdown())
*/
package relay
