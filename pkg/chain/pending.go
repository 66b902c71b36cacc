package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/relay/pkg/domain"
)

// pending implements ports.Pending.
type pending struct {
	id   string
	done chan struct{}
	once sync.Once

	receipt domain.Receipt
	err     error
}

func newPending(id string) *pending {
	return &pending{id: id, done: make(chan struct{})}
}

func (p *pending) ID() string { return p.id }

func (p *pending) finalize(rcpt domain.Receipt, err error) {
	p.once.Do(func() {
		p.receipt = rcpt
		p.err = err
		close(p.done)
	})
}

// Wait blocks until the operation is final or ctx is done.
func (p *pending) Wait(ctx context.Context) (domain.Receipt, error) {
	select {
	case <-p.done:
		return p.receipt, p.err
	case <-ctx.Done():
		return domain.Receipt{ID: p.id, Outcome: domain.OutcomeRequested},
			fmt.Errorf("%w: operation %s: %v", domain.ErrObservationTimeout, p.id, ctx.Err())
	}
}
