package harness

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/relay/pkg/domain"
)

// Status is the verdict of a single step.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown" // outcome never observed
)

// Step numbers of a run.
const (
	StepInitial     = 1
	StepFund        = 2
	StepForward     = 3
	StepConsistency = 4
)

// StepResult records one step of a run.
type StepResult struct {
	Step      int            `json:"step"`
	Name      string         `json:"name"`
	Scenario  Kind           `json:"scenario,omitempty"`
	Status    Status         `json:"status"`
	Amount    domain.Amount  `json:"amount,omitempty"`
	Outcome   domain.Outcome `json:"outcome,omitempty"`
	Expected  domain.Outcome `json:"expected,omitempty"`
	ReceiptID string         `json:"receipt_id,omitempty"`
	TimedOut  bool           `json:"timed_out,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	Error     string         `json:"error,omitempty"`
	Duration  time.Duration  `json:"duration"`

	Err error `json:"-"`
}

// Balances is a ledger-path snapshot of the accounts a run touches.
type Balances struct {
	Custodian domain.Amount `json:"custodian"`
	Receiver  domain.Amount `json:"receiver"`
	Source    domain.Amount `json:"source"`
}

// Report is the outcome of a run.
type Report struct {
	Custodian domain.Address `json:"custodian"`
	Receiver  domain.Address `json:"receiver"`
	Source    domain.Address `json:"source"`

	Initial Balances     `json:"initial"`
	Final   Balances     `json:"final"`
	Steps   []StepResult `json:"steps"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

func (r *Report) add(s StepResult) {
	if s.Err != nil && s.Error == "" {
		s.Error = s.Err.Error()
	}
	r.Steps = append(r.Steps, s)
}

// OK reports whether every step passed.
func (r *Report) OK() bool {
	for _, s := range r.Steps {
		if s.Status != StatusPassed {
			return false
		}
	}
	return len(r.Steps) > 0
}

// Failed returns the steps that did not pass.
func (r *Report) Failed() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status != StatusPassed {
			out = append(out, s)
		}
	}
	return out
}

// JSON returns the indented JSON encoding of the report.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Markdown renders the report for humans.
func (r *Report) Markdown() string {
	var b strings.Builder

	verdict := "✅ all steps passed"
	if !r.OK() {
		verdict = fmt.Sprintf("❌ %d step(s) did not pass", len(r.Failed()))
	}
	fmt.Fprintf(&b, "# Relay run\n\n%s in %s\n\n", verdict, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))

	b.WriteString("## Balances\n\n")
	b.WriteString("| Account | Address | Initial | Final |\n|---|---|---:|---:|\n")
	fmt.Fprintf(&b, "| custodian | `%s` | %s | %s |\n", r.Custodian, r.Initial.Custodian, r.Final.Custodian)
	fmt.Fprintf(&b, "| receiver | `%s` | %s | %s |\n", r.Receiver, r.Initial.Receiver, r.Final.Receiver)
	fmt.Fprintf(&b, "| funding source | `%s` | %s | %s |\n", r.Source, r.Initial.Source, r.Final.Source)

	b.WriteString("\n## Steps\n\n")
	b.WriteString("| # | Step | Status | Amount | Outcome | Expected | Detail |\n|---:|---|---|---:|---|---|---|\n")
	for _, s := range r.Steps {
		amount := ""
		if s.Amount > 0 {
			amount = s.Amount.String()
		}
		detail := s.Detail
		if s.Error != "" {
			if detail != "" {
				detail += "; "
			}
			detail += s.Error
		}
		if s.TimedOut {
			detail = strings.TrimPrefix(detail+"; observation timed out, re-queried", "; ")
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s | %s | %s | %s |\n",
			s.Step, s.Name, statusIcon(s.Status), amount, s.Outcome, s.Expected, escapeCell(detail))
	}
	return b.String()
}

func statusIcon(s Status) string {
	switch s {
	case StatusPassed:
		return "✅ passed"
	case StatusFailed:
		return "❌ failed"
	default:
		return "❔ " + string(s)
	}
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
