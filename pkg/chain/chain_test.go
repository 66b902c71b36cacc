package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/chain"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice   = domain.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob     = domain.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	sink    = domain.MustParseAddress("0x00000000000000000000000000000000005e1a00")
	inert   = domain.MustParseAddress("0x0000000000000000000000000000000000001e57")
	relayer = domain.MustParseAddress("0x000000000000000000000000000000000000f0f0")
)

// payable accepts everything.
type payable struct{}

func (payable) Accept(tx ports.Tx, from domain.Address, amount domain.Amount) error { return nil }

// refusing has code but no Accept.
type refusing struct{}

// picky rejects any amount above limit.
type picky struct{ limit domain.Amount }

func (p picky) Accept(tx ports.Tx, from domain.Address, amount domain.Amount) error {
	if amount > p.limit {
		return errors.New("too much")
	}
	return nil
}

// recorder remembers the identities of the frame it was paid in.
type recorder struct{ self, caller domain.Address }

func (r *recorder) Accept(tx ports.Tx, from domain.Address, amount domain.Amount) error {
	r.self, r.caller = tx.Self(), tx.Caller()
	return nil
}

// forwarder passes everything it receives on to to.
type forwarder struct{ to domain.ReceivingRef }

func (f forwarder) Accept(tx ports.Tx, from domain.Address, amount domain.Amount) error {
	return tx.Transfer(f.to, amount)
}

func newChain(t *testing.T, opts ...chain.Option) *chain.Chain {
	t.Helper()
	c := chain.New(memory.NewStore(), opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func balance(t *testing.T, c *chain.Chain, addr domain.Address) domain.Amount {
	t.Helper()
	bal, err := c.BalanceOf(context.Background(), addr)
	require.NoError(t, err)
	return bal
}

func submit(t *testing.T, c *chain.Chain, call ports.Call) (domain.Receipt, error) {
	t.Helper()
	ctx := context.Background()
	p, err := c.Submit(ctx, call)
	require.NoError(t, err)
	return p.Wait(ctx)
}

func send(from domain.Address, to domain.ReceivingRef, amount domain.Amount) ports.Call {
	return ports.Call{
		Caller: from,
		Target: from,
		Label:  "send",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			return tx.Transfer(to, amount)
		},
	}
}

func TestChain_TransferBetweenAccounts(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Mint(context.Background(), alice, 100))

	rcpt, err := submit(t, c, send(alice, domain.NewReceivingRef(bob), 30))
	require.NoError(t, err)

	assert.Equal(t, domain.OutcomeCommitted, rcpt.Outcome)
	assert.NotEmpty(t, rcpt.ID)
	assert.Equal(t, []domain.Posting{
		{Account: bob, Credit: 30},
		{Account: alice, Debit: 30},
	}, rcpt.Postings)
	assert.Equal(t, domain.Amount(70), balance(t, c, alice))
	assert.Equal(t, domain.Amount(30), balance(t, c, bob))

	stored, err := c.Receipt(context.Background(), rcpt.ID)
	require.NoError(t, err)
	assert.Equal(t, rcpt.Outcome, stored.Outcome)
}

func TestChain_InsufficientFunds(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	rcpt, err := submit(t, c, send(alice, domain.NewReceivingRef(bob), 11))

	var terr *domain.TransferError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.Amount(10), terr.Available)
	assert.Equal(t, domain.OutcomeRevertedInsufficientFunds, rcpt.Outcome)
	assert.Equal(t, domain.Amount(10), balance(t, c, alice))
	assert.Zero(t, balance(t, c, bob))
}

func TestChain_RecipientCannotAccept(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Deploy(inert, refusing{}))
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	target := domain.Promote(domain.NewOpaqueRef(inert))
	rcpt, err := submit(t, c, send(alice, target, 5))

	assert.ErrorIs(t, err, domain.ErrRecipientCannotAccept)
	assert.Equal(t, domain.OutcomeRevertedRecipientCannotAccept, rcpt.Outcome)
	assert.Empty(t, rcpt.Postings)
	assert.Equal(t, domain.Amount(10), balance(t, c, alice))
	assert.Zero(t, balance(t, c, inert))
}

func TestChain_PayableCodeIsCredited(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Deploy(sink, payable{}))
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	_, err := submit(t, c, send(alice, domain.NewReceivingRef(sink), 4))
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(4), balance(t, c, sink))
}

func TestChain_FailedAcceptRevertsWholeOperation(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Deploy(relayer, payable{}))
	require.NoError(t, c.Deploy(sink, picky{limit: 5}))
	require.NoError(t, c.Mint(context.Background(), alice, 20))
	require.NoError(t, c.Mint(context.Background(), relayer, 1))

	// The relayer's code forwards more than it holds.
	_, err := submit(t, c, ports.Call{
		Caller: alice,
		Target: relayer,
		Label:  "pay-and-forward",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			return tx.Transfer(domain.NewReceivingRef(sink), 6)
		},
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	// Same, but the relayer first receives value inside the operation.
	_, err = submit(t, c, ports.Call{
		Caller: alice,
		Target: alice,
		Label:  "fund-then-fail",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			if err := tx.Transfer(domain.NewReceivingRef(relayer), 10); err != nil {
				return err
			}
			return errors.New("operation aborted after funding")
		},
	})
	require.Error(t, err)

	assert.Equal(t, domain.Amount(20), balance(t, c, alice))
	assert.Equal(t, domain.Amount(1), balance(t, c, relayer), "value received in a reverted attempt must not stick")
	assert.Zero(t, balance(t, c, sink))
}

func TestChain_CaughtNestedFailureRollsBackOnlyItsSegment(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Deploy(sink, picky{limit: 5}))
	require.NoError(t, c.Mint(context.Background(), alice, 20))

	rcpt, err := submit(t, c, ports.Call{
		Caller: alice,
		Target: alice,
		Label:  "best-effort",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			if err := tx.Transfer(domain.NewReceivingRef(bob), 3); err != nil {
				return err
			}
			// Rejected by picky; the caller chooses to continue.
			_ = tx.Transfer(domain.NewReceivingRef(sink), 9)

			bal, err := tx.Balance(alice)
			if err != nil {
				return err
			}
			if bal != 17 {
				return errors.New("rolled back transfer still visible")
			}
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCommitted, rcpt.Outcome)
	assert.Equal(t, domain.Amount(17), balance(t, c, alice))
	assert.Equal(t, domain.Amount(3), balance(t, c, bob))
	assert.Zero(t, balance(t, c, sink))
}

func TestChain_TargetWithoutCode(t *testing.T) {
	c := newChain(t)

	_, err := submit(t, c, ports.Call{
		Caller: alice,
		Target: bob,
		Label:  "impersonate",
		Invoke: func(tx ports.Tx, caller domain.Address) error { return nil },
	})
	assert.ErrorIs(t, err, domain.ErrNoCode)
}

func TestChain_QueryIsReadOnly(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	var seen domain.Amount
	err := c.Query(context.Background(), alice, func(tx ports.Tx) error {
		var err error
		seen, err = tx.Balance(tx.Self())
		if err != nil {
			return err
		}
		return tx.Transfer(domain.NewReceivingRef(bob), 1)
	})
	assert.ErrorIs(t, err, domain.ErrReadOnly)
	assert.Equal(t, domain.Amount(10), seen)
	assert.Equal(t, domain.Amount(10), balance(t, c, alice))
}

func TestChain_DeployConflicts(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Deploy(sink, payable{}))

	assert.ErrorIs(t, c.Deploy(sink, payable{}), domain.ErrAddressInUse)
	assert.ErrorIs(t, c.Deploy(domain.ZeroAddress, payable{}), domain.ErrInvalidAddress)
	assert.Error(t, c.Deploy(bob, nil))

	code, ok := c.CodeAt(sink)
	assert.True(t, ok)
	assert.IsType(t, payable{}, code)
}

func TestChain_ObservationTimeoutThenRequery(t *testing.T) {
	c := newChain(t, chain.WithFinalityDelay(200*time.Millisecond))
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	p, err := c.Submit(context.Background(), send(alice, domain.NewReceivingRef(bob), 1))
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rcpt, err := p.Wait(waitCtx)
	assert.ErrorIs(t, err, domain.ErrObservationTimeout)
	assert.Equal(t, domain.OutcomeRequested, rcpt.Outcome)

	_, err = c.Receipt(context.Background(), p.ID())
	assert.ErrorIs(t, err, domain.ErrReceiptNotFound, "not final yet")

	require.Eventually(t, func() bool {
		r, err := c.Receipt(context.Background(), p.ID())
		return err == nil && r.Outcome == domain.OutcomeCommitted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChain_CloseAbortsAndRejects(t *testing.T) {
	c := chain.New(memory.NewStore())
	require.NoError(t, c.Close())

	_, err := c.Submit(context.Background(), send(alice, domain.NewReceivingRef(bob), 1))
	assert.ErrorIs(t, err, chain.ErrClosed)
	assert.ErrorIs(t, c.Mint(context.Background(), alice, 1), chain.ErrClosed)
	assert.NoError(t, c.Close(), "Close is idempotent")
}

func TestChain_CloseRacingSubmitNeverStrandsWork(t *testing.T) {
	for i := 0; i < 200; i++ {
		c := chain.New(memory.NewStore(), chain.WithQueueSize(1))
		done := make(chan error, 2)
		go func() { done <- c.Mint(context.Background(), alice, 1) }()
		go func() {
			p, err := c.Submit(context.Background(), send(alice, domain.NewReceivingRef(bob), 1))
			if err == nil {
				_, err = p.Wait(context.Background())
			}
			done <- err
		}()
		require.NoError(t, c.Close())

		for range 2 {
			select {
			case err := <-done:
				if err != nil {
					assert.True(t, errors.Is(err, chain.ErrClosed) || errors.Is(err, domain.ErrInsufficientFunds), "unexpected error: %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("iteration %d: operation stranded after Close", i)
			}
		}
	}
}

func TestChain_FramesCarryCallerIdentity(t *testing.T) {
	c := newChain(t)
	rec := &recorder{}
	require.NoError(t, c.Deploy(sink, rec))
	require.NoError(t, c.Deploy(relayer, forwarder{to: domain.NewReceivingRef(sink)}))
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	_, err := submit(t, c, send(alice, domain.NewReceivingRef(relayer), 3))
	require.NoError(t, err)

	// relayer forwards inside its Accept: the nested frame is called by relayer.
	assert.Equal(t, sink, rec.self)
	assert.Equal(t, relayer, rec.caller)

	var top, query domain.Address
	_, err = submit(t, c, ports.Call{
		Caller: alice,
		Target: relayer,
		Label:  "inspect",
		Invoke: func(tx ports.Tx, _ domain.Address) error {
			top = tx.Caller()
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, alice, top)

	require.NoError(t, c.Query(context.Background(), relayer, func(tx ports.Tx) error {
		query = tx.Caller()
		return nil
	}))
	assert.True(t, query.IsZero())
}

func TestChain_Conservation(t *testing.T) {
	c := newChain(t)
	require.NoError(t, c.Deploy(sink, picky{limit: 7}))
	require.NoError(t, c.Deploy(inert, refusing{}))
	ctx := context.Background()
	require.NoError(t, c.Mint(ctx, alice, 50))
	require.NoError(t, c.Mint(ctx, bob, 25))

	targets := []domain.ReceivingRef{
		domain.NewReceivingRef(bob),
		domain.NewReceivingRef(alice),
		domain.NewReceivingRef(sink),
		domain.Promote(domain.NewOpaqueRef(inert)),
	}
	for i := 0; i < 40; i++ {
		from := alice
		if i%3 == 0 {
			from = bob
		}
		_, _ = submit(t, c, send(from, targets[i%len(targets)], domain.Amount(i%11)))
	}

	var total domain.Amount
	for _, addr := range []domain.Address{alice, bob, sink, inert} {
		total += balance(t, c, addr)
	}
	assert.Equal(t, c.Supply(), total)
	assert.Equal(t, domain.Amount(75), total)
	assert.Zero(t, balance(t, c, inert))
}

func TestChain_Metrics(t *testing.T) {
	m := chain.NewMetrics(prometheus.NewRegistry())
	c := newChain(t, chain.WithMetrics(m))
	require.NoError(t, c.Mint(context.Background(), alice, 10))

	_, err := submit(t, c, send(alice, domain.NewReceivingRef(bob), 4))
	require.NoError(t, err)
	_, err = submit(t, c, send(alice, domain.NewReceivingRef(bob), 40))
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsVec().WithLabelValues("send", string(domain.OutcomeCommitted))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsVec().WithLabelValues("send", string(domain.OutcomeRevertedInsufficientFunds))))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.MovedCounter()))
}

func TestChain_FinalizeHook(t *testing.T) {
	seen := make(chan domain.Receipt, 2)
	c := newChain(t, chain.WithFinalizeHook(func(r domain.Receipt) { seen <- r }))
	require.NoError(t, c.Mint(context.Background(), alice, 5))

	_, err := submit(t, c, send(alice, domain.NewReceivingRef(bob), 2))
	require.NoError(t, err)
	_, err = submit(t, c, send(alice, domain.NewReceivingRef(bob), 9))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	var outcomes []domain.Outcome
	for range 2 {
		select {
		case r := <-seen:
			outcomes = append(outcomes, r.Outcome)
		case <-time.After(time.Second):
			t.Fatal("hook not called")
		}
	}
	assert.Equal(t, []domain.Outcome{domain.OutcomeCommitted, domain.OutcomeRevertedInsufficientFunds}, outcomes)
}
