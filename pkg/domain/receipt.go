package domain

import "time"

// Outcome is the state of a submitted operation.
//
//	Requested -> Committed | RevertedInsufficientFunds | RevertedRecipientCannotAccept | Reverted
//
// No intermediate state is observable.
type Outcome string

const (
	OutcomeRequested                     Outcome = "requested"
	OutcomeCommitted                     Outcome = "committed"
	OutcomeRevertedInsufficientFunds     Outcome = "reverted_insufficient_funds"
	OutcomeRevertedRecipientCannotAccept Outcome = "reverted_recipient_cannot_accept"
	OutcomeReverted                      Outcome = "reverted" // any other operation error
)

// Final reports whether the outcome is terminal.
func (o Outcome) Final() bool {
	return o != OutcomeRequested && o != ""
}

// Reverted reports whether the operation left no state change behind.
func (o Outcome) Reverted() bool {
	return o.Final() && o != OutcomeCommitted
}

// Receipt is the finalized record of a submitted operation.
type Receipt struct {
	ID          string    `json:"id"`
	Label       string    `json:"label"`
	Caller      Address   `json:"caller"`
	Target      Address   `json:"target"`
	Outcome     Outcome   `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	Postings    []Posting `json:"postings,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	FinalizedAt time.Time `json:"finalized_at"`
}

// Posting is the net balance effect of a committed operation on one account.
type Posting struct {
	Account Address `json:"account"`
	Debit   Amount  `json:"debit,omitempty"`
	Credit  Amount  `json:"credit,omitempty"`
}
