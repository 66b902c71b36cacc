/*
Package entry implements the ledger entries of the relay.

  - Receiver accepts value unconditionally and reports its own balance.
  - Custodian holds an opaque Owner reference and a receiving Receiver
    reference and forwards value through either one.
  - Holder holds value-free state and has no accept behaviour; it is the
    kind of entry a promoted reference can wrongly point at.

Entries are stateless with respect to value: every balance lives in the
ledger and is only reached through the ports.Tx frame the ledger passes in.
*/
package entry
