/*
Package ports defines the driven and driving ports (interfaces) of the relay.

These interfaces decouple the ledger runtime and the harness from concrete
implementations, allowing the same entries to run against an in-memory or a
Redis-backed balance store.

# Key Interfaces

  - BalanceStore: persists the native account-balance model with all-or-nothing commits.
  - DistributedLocker: serializes commits across processes sharing one store.
  - Tx / Payable: the execution frame handed to ledger-entry code and the
    unconditional-accept contract of every receiving entry.
  - Ledger: the ledger environment as seen by clients (observe, submit, wait).
  - FundingSource: an external account able to send value.
*/
package ports
