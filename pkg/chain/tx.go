package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// MaxCallDepth bounds nested Accept calls.
const MaxCallDepth = 64

// ErrCallDepth is returned when nested transfers exceed MaxCallDepth.
var ErrCallDepth = errors.New("call depth exceeded")

// movement is one staged transfer.
type movement struct {
	from   domain.Address
	to     domain.Address
	amount domain.Amount
}

// journal is shared by every frame of one operation.
type journal struct {
	base    map[domain.Address]domain.Amount
	entries []movement
}

// tx implements ports.Tx.
type tx struct {
	ctx      context.Context
	chain    *Chain
	self     domain.Address
	caller   domain.Address
	readOnly bool
	depth    int
	journal  *journal
}

var _ ports.Tx = (*tx)(nil)

func newTx(ctx context.Context, c *Chain, self, caller domain.Address, readOnly bool) *tx {
	return &tx{
		ctx:      ctx,
		chain:    c,
		self:     self,
		caller:   caller,
		readOnly: readOnly,
		journal:  &journal{base: make(map[domain.Address]domain.Amount)},
	}
}

func (t *tx) Context() context.Context { return t.ctx }

func (t *tx) Self() domain.Address { return t.self }

func (t *tx) Caller() domain.Address { return t.caller }

// Balance folds the staged movements over the committed balance.
func (t *tx) Balance(addr domain.Address) (domain.Amount, error) {
	base, ok := t.journal.base[addr]
	if !ok {
		var err error
		base, err = t.chain.store.Balance(t.ctx, addr)
		if err != nil {
			return 0, err
		}
		t.journal.base[addr] = base
	}

	bal := base
	for _, m := range t.journal.entries {
		var err error
		if m.to == addr {
			if bal, err = bal.Add(m.amount); err != nil {
				return 0, err
			}
		}
		if m.from == addr {
			if bal, err = bal.Sub(m.amount); err != nil {
				return 0, err
			}
		}
	}
	return bal, nil
}

// Transfer stages a movement from Self to the referenced entry and runs its
// Accept hook. On any failure the journal is truncated back to where it was.
func (t *tx) Transfer(to domain.ReceivingRef, amount domain.Amount) error {
	fail := func(available domain.Amount, err error) error {
		return &domain.TransferError{
			From:      t.self,
			To:        to.Address(),
			Amount:    amount,
			Available: available,
			Err:       err,
		}
	}

	if t.readOnly {
		return fail(0, domain.ErrReadOnly)
	}
	if t.depth >= MaxCallDepth {
		return fail(0, ErrCallDepth)
	}

	available, err := t.Balance(t.self)
	if err != nil {
		return fail(0, err)
	}
	if available < amount {
		return fail(available, domain.ErrInsufficientFunds)
	}

	mark := len(t.journal.entries)
	t.journal.entries = append(t.journal.entries, movement{from: t.self, to: to.Address(), amount: amount})

	code, hasCode := t.chain.CodeAt(to.Address())
	if !hasCode {
		// Externally owned account.
		return nil
	}

	payable, ok := code.(ports.Payable)
	if !ok {
		t.journal.entries = t.journal.entries[:mark]
		return fail(available, domain.ErrRecipientCannotAccept)
	}

	frame := &tx{
		ctx:     t.ctx,
		chain:   t.chain,
		self:    to.Address(),
		caller:  t.self,
		depth:   t.depth + 1,
		journal: t.journal,
	}
	if err := payable.Accept(frame, t.self, amount); err != nil {
		t.journal.entries = t.journal.entries[:mark]
		return fail(available, fmt.Errorf("accept: %w", err))
	}
	return nil
}

// postings nets the journal per account, ordered by address.
func (t *tx) postings() ([]domain.Posting, error) {
	debits := make(map[domain.Address]domain.Amount)
	credits := make(map[domain.Address]domain.Amount)
	for _, m := range t.journal.entries {
		var err error
		if debits[m.from], err = debits[m.from].Add(m.amount); err != nil {
			return nil, err
		}
		if credits[m.to], err = credits[m.to].Add(m.amount); err != nil {
			return nil, err
		}
	}

	seen := make(map[domain.Address]struct{}, len(debits)+len(credits))
	var postings []domain.Posting
	add := func(addr domain.Address) {
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		d, c := debits[addr], credits[addr]
		switch {
		case c > d:
			postings = append(postings, domain.Posting{Account: addr, Credit: c - d})
		case d > c:
			postings = append(postings, domain.Posting{Account: addr, Debit: d - c})
		}
	}
	for addr := range debits {
		add(addr)
	}
	for addr := range credits {
		add(addr)
	}

	sort.Slice(postings, func(i, j int) bool {
		return bytes.Compare(postings[i].Account[:], postings[j].Account[:]) < 0
	})
	return postings, nil
}
