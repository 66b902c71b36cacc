package harness

import (
	"fmt"

	"github.com/aretw0/relay/pkg/domain"
)

// Kind selects which custodian operation a scenario exercises.
type Kind string

const (
	// KindForward forwards through the receiving reference.
	KindForward Kind = "forward"
	// KindPromoted forwards through the promoted owner reference.
	KindPromoted Kind = "promoted"
	// KindOverdraw forwards more than the custodian holds.
	KindOverdraw Kind = "overdraw"
)

// ParseKind validates a scenario kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindForward, KindPromoted, KindOverdraw:
		return k, nil
	default:
		return "", fmt.Errorf("unknown scenario %q (want forward, promoted or overdraw)", s)
	}
}

// Scenario is one forwarding attempt.
type Scenario struct {
	Kind   Kind          `json:"kind"`
	Amount domain.Amount `json:"amount"`

	// Expect is the outcome that makes the scenario pass.
	Expect domain.Outcome `json:"expect"`
}

// Plan is the input of a harness run.
type Plan struct {
	FundingAmount domain.Amount `json:"funding_amount"`
	Scenarios     []Scenario    `json:"scenarios"`
}

// Validate checks the plan before anything is submitted.
func (p Plan) Validate() error {
	if p.FundingAmount == 0 {
		return fmt.Errorf("%w: funding amount must be positive", domain.ErrInvalidAmount)
	}
	for i, sc := range p.Scenarios {
		if _, err := ParseKind(string(sc.Kind)); err != nil {
			return fmt.Errorf("scenario %d: %w", i, err)
		}
		if sc.Amount == 0 {
			return fmt.Errorf("scenario %d (%s): %w: amount must be positive", i, sc.Kind, domain.ErrInvalidAmount)
		}
	}
	return nil
}

// ExpectedOutcome is the outcome a scenario of kind k demonstrates against
// the standard deployment, where the owner entry cannot accept value.
func ExpectedOutcome(k Kind) domain.Outcome {
	switch k {
	case KindPromoted:
		return domain.OutcomeRevertedRecipientCannotAccept
	case KindOverdraw:
		return domain.OutcomeRevertedInsufficientFunds
	default:
		return domain.OutcomeCommitted
	}
}

// NewScenario builds a scenario expecting ExpectedOutcome(k).
func NewScenario(k Kind, amount domain.Amount) Scenario {
	return Scenario{Kind: k, Amount: amount, Expect: ExpectedOutcome(k)}
}
