package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Custodian is the entry under test.
type Custodian interface {
	ports.Reporter
	Address() domain.Address
	Controller() domain.Address
	Owner() domain.OpaqueRef
	Ref() domain.ReceivingRef
	ForwardViaReceivingRef(tx ports.Tx, caller domain.Address, amount domain.Amount) error
	ForwardViaPromotedRef(tx ports.Tx, caller domain.Address, amount domain.Amount) error
}

// Receiver is the entry that forwards land in.
type Receiver interface {
	ports.Reporter
	Address() domain.Address
}

// Harness is a sequential client: every step waits for finality of the
// previous one before the next is submitted.
type Harness struct {
	ledger    ports.Ledger
	source    ports.FundingSource
	custodian Custodian
	receiver  Receiver
	logger    *slog.Logger

	finalityTimeout time.Duration
	requeryTimeout  time.Duration
	requeryInterval time.Duration
}

// Option configures the Harness.
type Option func(*Harness)

// WithLogger configures a logger for the Harness.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// WithFinalityTimeout bounds each wait for an operation to finalize.
func WithFinalityTimeout(d time.Duration) Option {
	return func(h *Harness) {
		if d > 0 {
			h.finalityTimeout = d
		}
	}
}

// WithRequery bounds how long, and how often, a timed out operation's
// receipt is queried again.
func WithRequery(timeout, interval time.Duration) Option {
	return func(h *Harness) {
		if timeout > 0 {
			h.requeryTimeout = timeout
		}
		if interval > 0 {
			h.requeryInterval = interval
		}
	}
}

// New creates a Harness.
func New(ledger ports.Ledger, source ports.FundingSource, custodian Custodian, receiver Receiver, opts ...Option) *Harness {
	h := &Harness{
		ledger:          ledger,
		source:          source,
		custodian:       custodian,
		receiver:        receiver,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		finalityTimeout: 10 * time.Second,
		requeryTimeout:  30 * time.Second,
		requeryInterval: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes plan and returns its report.
//
// The returned error is non-nil only when the run cannot continue: the
// initial observation fails, the funding source is short
// (domain.ErrInsufficientFundingSource), or funding does not commit.
// Scenario failures are recorded in the report instead.
func (h *Harness) Run(ctx context.Context, plan Plan) (*Report, error) {
	report := &Report{
		Custodian: h.custodian.Address(),
		Receiver:  h.receiver.Address(),
		Source:    h.source.Address(),
		StartedAt: time.Now(),
	}
	defer func() { report.FinishedAt = time.Now() }()

	if err := plan.Validate(); err != nil {
		return report, fmt.Errorf("invalid plan: %w", err)
	}

	// 1. Initial balances.
	start := time.Now()
	initial, err := h.snapshot(ctx)
	if err != nil {
		report.add(StepResult{Step: StepInitial, Name: "initial balances", Status: StatusFailed, Err: err, Duration: time.Since(start)})
		return report, fmt.Errorf("initial balances: %w", err)
	}
	report.Initial = initial
	report.Final = initial
	report.add(StepResult{
		Step:     StepInitial,
		Name:     "initial balances",
		Status:   StatusPassed,
		Detail:   fmt.Sprintf("custodian %s, receiver %s, source %s", initial.Custodian, initial.Receiver, initial.Source),
		Duration: time.Since(start),
	})
	h.logger.Info("initial balances",
		"custodian", initial.Custodian, "receiver", initial.Receiver, "source", initial.Source)

	// 2. Funding.
	if err := h.fund(ctx, report, plan.FundingAmount); err != nil {
		h.finish(ctx, report)
		return report, err
	}

	// 3. Scenarios, each independent of the others' failures.
	for _, sc := range plan.Scenarios {
		report.add(h.forward(ctx, sc))
	}

	// 4. Dual-path consistency.
	report.add(h.consistency(ctx, "receiver", h.receiver.Address(), h.receiver))
	report.add(h.consistency(ctx, "custodian", h.custodian.Address(), h.custodian))

	// 5. Report.
	h.finish(ctx, report)
	if report.OK() {
		h.logger.Info("run passed", "steps", len(report.Steps))
	} else {
		h.logger.Warn("run did not pass", "failed", len(report.Failed()), "steps", len(report.Steps))
	}
	return report, nil
}

func (h *Harness) finish(ctx context.Context, report *Report) {
	final, err := h.snapshot(ctx)
	if err != nil {
		h.logger.Warn("final balances unavailable", "err", err)
		return
	}
	report.Final = final
}

func (h *Harness) fund(ctx context.Context, report *Report, amount domain.Amount) error {
	start := time.Now()
	step := StepResult{Step: StepFund, Name: "fund custodian", Amount: amount, Expected: domain.OutcomeCommitted}

	fail := func(err error) error {
		step.Status = StatusFailed
		step.Err = err
		step.Duration = time.Since(start)
		report.add(step)
		h.logger.Error("funding failed", "amount", amount, "err", err)
		return fmt.Errorf("fund custodian: %w", err)
	}

	available, err := h.source.Balance(ctx)
	if err != nil {
		return fail(err)
	}
	if available < amount {
		return fail(fmt.Errorf("%w: source %s holds %s, need %s",
			domain.ErrInsufficientFundingSource, h.source.Address(), available, amount))
	}

	before, err := h.ledger.BalanceOf(ctx, h.custodian.Address())
	if err != nil {
		return fail(err)
	}

	p, err := h.source.Send(ctx, h.custodian.Ref(), amount)
	if err != nil {
		return fail(err)
	}
	step.ReceiptID = p.ID()

	rcpt, timedOut, err := h.await(ctx, p)
	step.TimedOut = timedOut
	step.Outcome = rcpt.Outcome
	if err != nil {
		return fail(err)
	}

	after, err := h.ledger.BalanceOf(ctx, h.custodian.Address())
	if err != nil {
		return fail(err)
	}
	want, err := before.Add(amount)
	if err != nil {
		return fail(fmt.Errorf("custodian balance %s + %s: %w", before, amount, err))
	}
	if after != want {
		return fail(fmt.Errorf("%w: custodian holds %s after funding, want %s", domain.ErrBalanceMismatch, after, want))
	}

	step.Status = StatusPassed
	step.Detail = fmt.Sprintf("custodian %s -> %s", before, after)
	step.Duration = time.Since(start)
	report.add(step)
	h.logger.Info("custodian funded", "amount", amount, "balance", after, "receipt", p.ID())
	return nil
}

func (h *Harness) forward(ctx context.Context, sc Scenario) StepResult {
	start := time.Now()
	step := StepResult{
		Step:     StepForward,
		Name:     "forward: " + string(sc.Kind),
		Scenario: sc.Kind,
		Amount:   sc.Amount,
		Expected: sc.Expect,
	}
	if step.Expected == "" {
		step.Expected = ExpectedOutcome(sc.Kind)
	}

	op := h.custodian.ForwardViaReceivingRef
	dest := h.receiver.Address()
	if sc.Kind == KindPromoted {
		op = h.custodian.ForwardViaPromotedRef
		dest = h.custodian.Owner().Address()
	}

	before, err := h.pair(ctx, dest)
	if err != nil {
		return h.stepFailed(step, start, err)
	}

	amount := sc.Amount
	p, err := h.ledger.Submit(ctx, ports.Call{
		Caller: h.custodian.Controller(),
		Target: h.custodian.Address(),
		Label:  "custodian." + string(sc.Kind),
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			return op(tx, caller, amount)
		},
	})
	if err != nil {
		return h.stepFailed(step, start, err)
	}
	step.ReceiptID = p.ID()

	rcpt, timedOut, opErr := h.await(ctx, p)
	step.TimedOut = timedOut
	step.Outcome = rcpt.Outcome
	step.Err = opErr
	if !rcpt.Outcome.Final() {
		step.Status = StatusUnknown
		h.logger.Warn("forward outcome unknown", "scenario", sc.Kind, "receipt", p.ID(), "err", opErr)
		return h.record(step, start)
	}

	after, err := h.pair(ctx, dest)
	if err != nil {
		return h.stepFailed(step, start, err)
	}
	if err := checkAtomic(before, after, amount, rcpt.Outcome); err != nil {
		step.Status = StatusFailed
		step.Err = errors.Join(opErr, err)
		h.logger.Error("atomicity violated", "scenario", sc.Kind, "err", err)
		return h.record(step, start)
	}

	step.Detail = fmt.Sprintf("custodian %s -> %s, destination %s -> %s", before[0], after[0], before[1], after[1])
	if rcpt.Outcome != step.Expected {
		step.Status = StatusFailed
		h.logger.Error("unexpected forward outcome",
			"scenario", sc.Kind, "outcome", rcpt.Outcome, "expected", step.Expected, "err", opErr)
		return h.record(step, start)
	}

	step.Status = StatusPassed
	if opErr != nil {
		// A demonstrated failure: expected, logged, never fatal.
		h.logger.Warn("forward reverted as expected", "scenario", sc.Kind, "outcome", rcpt.Outcome, "err", opErr)
	} else {
		h.logger.Info("forward committed", "scenario", sc.Kind, "amount", amount, "receipt", p.ID())
	}
	return h.record(step, start)
}

// checkAtomic verifies that custodian and destination moved by exactly
// amount, or not at all.
func checkAtomic(before, after [2]domain.Amount, amount domain.Amount, outcome domain.Outcome) error {
	if outcome == domain.OutcomeCommitted {
		wantSrc, err := before[0].Sub(amount)
		if err != nil {
			return fmt.Errorf("%w: committed %s from custodian holding %s", domain.ErrBalanceMismatch, amount, before[0])
		}
		wantDst, err := before[1].Add(amount)
		if err != nil {
			return err
		}
		if after[0] != wantSrc || after[1] != wantDst {
			return fmt.Errorf("%w: committed %s but balances went %s/%s -> %s/%s",
				domain.ErrBalanceMismatch, amount, before[0], before[1], after[0], after[1])
		}
		return nil
	}
	if after != before {
		return fmt.Errorf("%w: reverted but balances went %s/%s -> %s/%s",
			domain.ErrBalanceMismatch, before[0], before[1], after[0], after[1])
	}
	return nil
}

func (h *Harness) consistency(ctx context.Context, name string, addr domain.Address, r ports.Reporter) StepResult {
	start := time.Now()
	step := StepResult{Step: StepConsistency, Name: "consistency: " + name}

	ledgerBal, err := h.ledger.BalanceOf(ctx, addr)
	if err != nil {
		return h.stepFailed(step, start, fmt.Errorf("ledger path: %w", err))
	}

	qctx, cancel := context.WithTimeout(ctx, h.finalityTimeout)
	defer cancel()
	var reported domain.Amount
	err = h.ledger.Query(qctx, addr, func(tx ports.Tx) error {
		var err error
		reported, err = r.ReportBalance(tx)
		return err
	})
	if err != nil {
		return h.stepFailed(step, start, fmt.Errorf("self-report path: %w", err))
	}

	step.Detail = fmt.Sprintf("ledger %s, self-reported %s", ledgerBal, reported)
	if ledgerBal != reported {
		return h.stepFailed(step, start, fmt.Errorf("%w: %s ledger %s != reported %s", domain.ErrBalanceMismatch, name, ledgerBal, reported))
	}
	step.Status = StatusPassed
	return h.record(step, start)
}

// await waits for p to finalize. When the wait times out the receipt is
// re-queried; the operation is never assumed to have succeeded or failed.
func (h *Harness) await(ctx context.Context, p ports.Pending) (domain.Receipt, bool, error) {
	wctx, cancel := context.WithTimeout(ctx, h.finalityTimeout)
	rcpt, err := p.Wait(wctx)
	cancel()
	if !errors.Is(err, domain.ErrObservationTimeout) {
		return rcpt, false, err
	}

	h.logger.Warn("finality not observed, re-querying receipt", "receipt", p.ID(), "timeout", h.finalityTimeout)
	rcpt, err = h.requery(ctx, p.ID())
	return rcpt, true, err
}

func (h *Harness) requery(ctx context.Context, id string) (domain.Receipt, error) {
	rctx, cancel := context.WithTimeout(ctx, h.requeryTimeout)
	defer cancel()

	ticker := time.NewTicker(h.requeryInterval)
	defer ticker.Stop()

	for {
		rcpt, err := h.ledger.Receipt(rctx, id)
		switch {
		case err == nil:
			return rcpt, receiptError(rcpt)
		case !errors.Is(err, domain.ErrReceiptNotFound):
			return domain.Receipt{ID: id, Outcome: domain.OutcomeRequested}, err
		}

		select {
		case <-rctx.Done():
			return domain.Receipt{ID: id, Outcome: domain.OutcomeRequested},
				fmt.Errorf("%w: receipt %s still unknown after %s", domain.ErrObservationTimeout, id, h.requeryTimeout)
		case <-ticker.C:
		}
	}
}

// receiptError rebuilds a typed error from a re-queried receipt.
func receiptError(rcpt domain.Receipt) error {
	switch rcpt.Outcome {
	case domain.OutcomeCommitted:
		return nil
	case domain.OutcomeRevertedInsufficientFunds:
		return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, rcpt.Error)
	case domain.OutcomeRevertedRecipientCannotAccept:
		return fmt.Errorf("%w: %s", domain.ErrRecipientCannotAccept, rcpt.Error)
	default:
		return fmt.Errorf("operation %s reverted: %s", rcpt.ID, rcpt.Error)
	}
}

func (h *Harness) snapshot(ctx context.Context) (Balances, error) {
	var b Balances
	var err error
	if b.Custodian, err = h.ledger.BalanceOf(ctx, h.custodian.Address()); err != nil {
		return b, fmt.Errorf("custodian: %w", err)
	}
	if b.Receiver, err = h.ledger.BalanceOf(ctx, h.receiver.Address()); err != nil {
		return b, fmt.Errorf("receiver: %w", err)
	}
	if b.Source, err = h.source.Balance(ctx); err != nil {
		return b, fmt.Errorf("funding source: %w", err)
	}
	return b, nil
}

// pair reads the custodian and dest balances through the ledger path.
func (h *Harness) pair(ctx context.Context, dest domain.Address) ([2]domain.Amount, error) {
	var out [2]domain.Amount
	var err error
	if out[0], err = h.ledger.BalanceOf(ctx, h.custodian.Address()); err != nil {
		return out, err
	}
	if out[1], err = h.ledger.BalanceOf(ctx, dest); err != nil {
		return out, err
	}
	return out, nil
}

func (h *Harness) stepFailed(step StepResult, start time.Time, err error) StepResult {
	step.Status = StatusFailed
	step.Err = err
	h.logger.Error("step failed", "step", step.Name, "err", err)
	return h.record(step, start)
}

func (h *Harness) record(step StepResult, start time.Time) StepResult {
	step.Duration = time.Since(start)
	if step.Err != nil {
		step.Error = step.Err.Error()
	}
	return step
}
