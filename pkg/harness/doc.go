// Package harness drives the relay from the outside and verifies it.
//
// A run funds the custodian, exercises each forwarding scenario, and checks
// every balance it cares about through two independent observation paths:
// the ledger itself and the entry's own report. Forward failures are
// recorded as results, never as harness failures.
package harness
