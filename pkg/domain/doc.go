/*
Package domain contains the core domain models of the relay ledger.

It defines the entities that move value around: addresses, amounts, account
references and the outcome of a transfer attempt. This package is kept pure
and free of external dependencies like I/O or persistence, following
Hexagonal Architecture principles.

# Key Entities

  - Address: the fixed-width identity of a ledger participant.
  - Amount: a non-negative count of the smallest indivisible value unit.
  - OpaqueRef / ReceivingRef: typed account references. Only a ReceivingRef can
    be the target of a transfer; Promote is the single, explicit way to turn an
    OpaqueRef into one.
  - Receipt: the finalized record of a submitted operation and its Outcome.
*/
package domain
