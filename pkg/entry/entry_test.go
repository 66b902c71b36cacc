package entry_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/chain"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/entry"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	funder        = domain.MustParseAddress("0x00000000000000000000000000000000000f00d0")
	custodianAddr = domain.MustParseAddress("0x000000000000000000000000000000000000c057")
	receiverAddr  = domain.MustParseAddress("0x000000000000000000000000000000000000bece")
	ownerAddr     = domain.MustParseAddress("0x0000000000000000000000000000000000000e0e")
)

type fixture struct {
	chain     *chain.Chain
	custodian *entry.Custodian
	receiver  *entry.Receiver
	owner     *entry.Holder
}

func setup(t *testing.T) *fixture {
	t.Helper()
	c := chain.New(memory.NewStore())
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{
		chain:    c,
		receiver: entry.NewReceiver(receiverAddr),
		owner:    entry.NewHolder(ownerAddr, "owner"),
	}
	f.custodian = entry.NewCustodian(custodianAddr, funder, f.owner.Ref(), f.receiver.Ref())

	require.NoError(t, c.Deploy(receiverAddr, f.receiver))
	require.NoError(t, c.Deploy(ownerAddr, f.owner))
	require.NoError(t, c.Deploy(custodianAddr, f.custodian))
	require.NoError(t, c.Mint(context.Background(), funder, domain.MustParseAmount("1")))
	return f
}

func (f *fixture) fund(t *testing.T, amount domain.Amount) {
	t.Helper()
	ctx := context.Background()
	p, err := f.chain.Submit(ctx, ports.Call{
		Caller: funder,
		Target: funder,
		Label:  "fund",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			return tx.Transfer(f.custodian.Ref(), amount)
		},
	})
	require.NoError(t, err)
	_, err = p.Wait(ctx)
	require.NoError(t, err)
}

func (f *fixture) forward(t *testing.T, caller domain.Address, op func(ports.Tx, domain.Address, domain.Amount) error, amount domain.Amount) (domain.Receipt, error) {
	t.Helper()
	ctx := context.Background()
	p, err := f.chain.Submit(ctx, ports.Call{
		Caller: caller,
		Target: custodianAddr,
		Label:  "forward",
		Invoke: func(tx ports.Tx, caller domain.Address) error {
			return op(tx, caller, amount)
		},
	})
	require.NoError(t, err)
	return p.Wait(ctx)
}

func (f *fixture) balances(t *testing.T) (custodian, receiver domain.Amount) {
	t.Helper()
	ctx := context.Background()
	custodian, err := f.chain.BalanceOf(ctx, custodianAddr)
	require.NoError(t, err)
	receiver, err = f.chain.BalanceOf(ctx, receiverAddr)
	require.NoError(t, err)
	return custodian, receiver
}

func (f *fixture) reported(t *testing.T) domain.Amount {
	t.Helper()
	var bal domain.Amount
	err := f.chain.Query(context.Background(), receiverAddr, func(tx ports.Tx) error {
		var err error
		bal, err = f.receiver.ReportBalance(tx)
		return err
	})
	require.NoError(t, err)
	return bal
}

func TestCustodian_ForwardViaReceivingRef(t *testing.T) {
	f := setup(t)
	f.fund(t, domain.MustParseAmount("0.02"))

	c, r := f.balances(t)
	assert.Equal(t, "0.02", c.String())
	assert.Zero(t, r)

	rcpt, err := f.forward(t, funder, f.custodian.ForwardViaReceivingRef, domain.MustParseAmount("0.01"))
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCommitted, rcpt.Outcome)

	c, r = f.balances(t)
	assert.Equal(t, "0.01", c.String())
	assert.Equal(t, "0.01", r.String())
	assert.Equal(t, r, f.reported(t), "ledger and self-reported balances must agree")
}

func TestCustodian_InsufficientFundsLeavesBalances(t *testing.T) {
	f := setup(t)
	f.fund(t, domain.MustParseAmount("0.01"))

	rcpt, err := f.forward(t, funder, f.custodian.ForwardViaReceivingRef, domain.MustParseAmount("0.02"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.OutcomeRevertedInsufficientFunds, rcpt.Outcome)

	c, r := f.balances(t)
	assert.Equal(t, "0.01", c.String())
	assert.Zero(t, r)
}

func TestCustodian_PromotedRefRevertsAtRuntime(t *testing.T) {
	f := setup(t)
	f.fund(t, domain.MustParseAmount("0.02"))

	rcpt, err := f.forward(t, funder, f.custodian.ForwardViaPromotedRef, domain.MustParseAmount("0.01"))
	assert.ErrorIs(t, err, domain.ErrRecipientCannotAccept)
	assert.Equal(t, domain.OutcomeRevertedRecipientCannotAccept, rcpt.Outcome)

	c, _ := f.balances(t)
	owner, err := f.chain.BalanceOf(context.Background(), ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, "0.02", c.String())
	assert.Zero(t, owner)
}

func TestCustodian_PromotedRefToPayableCommits(t *testing.T) {
	f := setup(t)
	// The opaque reference happens to point at a payable entry this time.
	c := entry.NewCustodian(domain.MustParseAddress("0x000000000000000000000000000000000000c058"),
		funder, f.receiver.Ref().Opaque(), f.receiver.Ref())
	require.NoError(t, f.chain.Deploy(c.Address(), c))

	ctx := context.Background()
	p, err := f.chain.Submit(ctx, ports.Call{
		Caller: funder, Target: funder, Label: "fund",
		Invoke: func(tx ports.Tx, _ domain.Address) error { return tx.Transfer(c.Ref(), 10) },
	})
	require.NoError(t, err)
	_, err = p.Wait(ctx)
	require.NoError(t, err)

	p, err = f.chain.Submit(ctx, ports.Call{
		Caller: funder, Target: c.Address(), Label: "forward",
		Invoke: func(tx ports.Tx, caller domain.Address) error { return c.ForwardViaPromotedRef(tx, caller, 10) },
	})
	require.NoError(t, err)
	_, err = p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(10), f.reported(t))
}

func TestCustodian_OnlyControllerForwards(t *testing.T) {
	f := setup(t)
	f.fund(t, 100)

	stranger := domain.MustParseAddress("0x0000000000000000000000000000000000000bad")
	rcpt, err := f.forward(t, stranger, f.custodian.ForwardViaReceivingRef, 1)
	assert.ErrorIs(t, err, domain.ErrNotController)
	assert.Equal(t, domain.OutcomeReverted, rcpt.Outcome)

	c, _ := f.balances(t)
	assert.Equal(t, domain.Amount(100), c)
}

func TestCustodian_ForwardRejectsForeignFrame(t *testing.T) {
	f := setup(t)
	f.fund(t, 100)
	ctx := context.Background()
	before, err := f.chain.BalanceOf(ctx, funder)
	require.NoError(t, err)

	// The controller runs custodian code in its own account frame.
	for name, op := range map[string]func(ports.Tx, domain.Address, domain.Amount) error{
		"receiving": f.custodian.ForwardViaReceivingRef,
		"promoted":  f.custodian.ForwardViaPromotedRef,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := f.chain.Submit(ctx, ports.Call{
				Caller: funder,
				Target: funder,
				Label:  "forward",
				Invoke: func(tx ports.Tx, caller domain.Address) error {
					return op(tx, caller, 40)
				},
			})
			require.NoError(t, err)
			rcpt, err := p.Wait(ctx)
			assert.ErrorIs(t, err, domain.ErrWrongFrame)
			assert.Equal(t, domain.OutcomeReverted, rcpt.Outcome)
		})
	}

	c, r := f.balances(t)
	assert.Equal(t, domain.Amount(100), c)
	assert.Zero(t, r)
	after, err := f.chain.BalanceOf(ctx, funder)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCustodian_SpoofedCallerIsRejected(t *testing.T) {
	f := setup(t)
	f.fund(t, 100)

	stranger := domain.MustParseAddress("0x0000000000000000000000000000000000000bad")
	p, err := f.chain.Submit(context.Background(), ports.Call{
		Caller: stranger,
		Target: custodianAddr,
		Label:  "forward",
		Invoke: func(tx ports.Tx, _ domain.Address) error {
			return f.custodian.ForwardViaReceivingRef(tx, funder, 40)
		},
	})
	require.NoError(t, err)
	rcpt, err := p.Wait(context.Background())
	assert.ErrorIs(t, err, domain.ErrNotController)
	assert.Equal(t, domain.OutcomeReverted, rcpt.Outcome)

	c, r := f.balances(t)
	assert.Equal(t, domain.Amount(100), c)
	assert.Zero(t, r)
}

func TestReportBalance_RequiresOwnFrame(t *testing.T) {
	f := setup(t)
	f.fund(t, 100)

	err := f.chain.Query(context.Background(), custodianAddr, func(tx ports.Tx) error {
		_, err := f.receiver.ReportBalance(tx)
		return err
	})
	assert.ErrorIs(t, err, domain.ErrWrongFrame)

	var bal domain.Amount
	err = f.chain.Query(context.Background(), custodianAddr, func(tx ports.Tx) error {
		var err error
		bal, err = f.custodian.ReportBalance(tx)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(100), bal)
}

func TestCustodian_ReferencesAreImmutable(t *testing.T) {
	f := setup(t)
	assert.Equal(t, ownerAddr, f.custodian.Owner().Address())
	assert.Equal(t, domain.CapabilityOpaque, f.custodian.Owner().Capability())
	assert.Equal(t, receiverAddr, f.custodian.Receiver().Address())
	assert.Equal(t, domain.CapabilityReceiving, f.custodian.Receiver().Capability())

	typ := reflect.TypeOf(f.custodian)
	for i := 0; i < typ.NumMethod(); i++ {
		name := typ.Method(i).Name
		assert.NotContains(t, name, "Set", "no setter may exist")
	}
	_, hasOpaqueForward := typ.MethodByName("ForwardViaOpaqueRef")
	assert.False(t, hasOpaqueForward, "forwarding through an opaque reference must not be expressible")
}

func TestTransfer_AcceptsOnlyReceivingRefs(t *testing.T) {
	transfer, ok := reflect.TypeOf((*ports.Tx)(nil)).Elem().MethodByName("Transfer")
	require.True(t, ok)

	target := transfer.Type.In(0)
	assert.Equal(t, reflect.TypeOf(domain.ReceivingRef{}), target)
	assert.False(t, reflect.TypeOf(domain.OpaqueRef{}).AssignableTo(target))
	assert.False(t, reflect.TypeOf(domain.OpaqueRef{}).ConvertibleTo(target))
}

func TestReceiver_AcceptNeverFails(t *testing.T) {
	r := entry.NewReceiver(receiverAddr)
	for _, amount := range []domain.Amount{0, 1, domain.Unit} {
		assert.NoError(t, r.Accept(nil, funder, amount))
	}
}

func TestHolder_RefIsOpaque(t *testing.T) {
	h := entry.NewHolder(ownerAddr, "owner")
	assert.Equal(t, domain.CapabilityOpaque, h.Ref().Capability())
	assert.Equal(t, "owner", h.Label())
}
