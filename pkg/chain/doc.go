/*
Package chain is the ledger environment the relay entries run on.

A Chain owns one worker goroutine that executes every submitted operation to
completion before starting the next, making it the single serialization point
for balance changes. Entry code runs inside a journaled frame (ports.Tx):
transfers are staged, a failed nested transfer rolls back only its own part of
the journal, and an operation that returns an error leaves nothing behind.
Successful operations are netted into postings and committed to a
ports.BalanceStore in one step.

Clients observe balances either directly through the store (BalanceOf) or by
asking entry code to report through a read-only frame (Query). The two paths
are kept separate so that disagreement between them is detectable.
*/
package chain
