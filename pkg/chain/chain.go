package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/google/uuid"
)

// ErrClosed is returned for operations submitted to, or abandoned by, a closed Chain.
var ErrClosed = errors.New("chain closed")

// Chain implements ports.Ledger.
type Chain struct {
	store   ports.BalanceStore
	locker  ports.DistributedLocker
	lockKey string
	lockTTL time.Duration
	logger  *slog.Logger
	metrics *Metrics

	finalityDelay time.Duration
	queueSize     int
	hooks         []func(domain.Receipt)

	mu       sync.RWMutex
	code     map[domain.Address]any
	receipts map[string]domain.Receipt
	supply   domain.Amount

	// closeMu orders enqueue against Close: once closed is set no job
	// can reach jobs, so the worker's final drain sees every queued job.
	closeMu   sync.RWMutex
	closed    bool
	jobs      chan job
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ ports.Ledger = (*Chain)(nil)

// job is a unit of work for the worker goroutine.
type job struct {
	run   func()
	abort func(error)
}

// Option configures the Chain.
type Option func(*Chain)

// WithLogger configures a logger for the Chain.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

// WithMetrics enables prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(c *Chain) {
		c.metrics = m
	}
}

// WithLocker serializes execution with other processes sharing the same store.
func WithLocker(locker ports.DistributedLocker, key string, ttl time.Duration) Option {
	return func(c *Chain) {
		c.locker = locker
		c.lockKey = key
		c.lockTTL = ttl
	}
}

// WithFinalityDelay holds back finality of each operation by d after it commits.
// It models confirmation latency; later operations queue behind it.
func WithFinalityDelay(d time.Duration) Option {
	return func(c *Chain) {
		c.finalityDelay = d
	}
}

// WithFinalizeHook registers fn to be called with every finalized receipt.
// Hooks run on the worker and must not block.
func WithFinalizeHook(fn func(domain.Receipt)) Option {
	return func(c *Chain) {
		c.hooks = append(c.hooks, fn)
	}
}

// WithQueueSize sets how many submitted operations may wait for the worker.
func WithQueueSize(n int) Option {
	return func(c *Chain) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

// New creates a Chain on top of store and starts its worker.
// Close must be called to stop it.
func New(store ports.BalanceStore, opts ...Option) *Chain {
	c := &Chain{
		store:     store,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		lockKey:   "ledger",
		lockTTL:   30 * time.Second,
		queueSize: 64,
		code:      make(map[domain.Address]any),
		receipts:  make(map[string]domain.Receipt),
		quit:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.jobs = make(chan job, c.queueSize)

	c.wg.Add(1)
	go c.loop()
	return c
}

func (c *Chain) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.quit:
			for {
				select {
				case j := <-c.jobs:
					j.abort(ErrClosed)
				default:
					return
				}
			}
		case j := <-c.jobs:
			j.run()
		}
	}
}

func (c *Chain) enqueue(ctx context.Context, j job) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Queued operations are aborted with ErrClosed.
func (c *Chain) Close() error {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		close(c.quit)
		c.closeMu.Unlock()
	})
	c.wg.Wait()
	return nil
}

// Deploy installs entry code at addr.
func (c *Chain) Deploy(addr domain.Address, code any) error {
	if addr.IsZero() {
		return fmt.Errorf("%w: cannot deploy to the zero address", domain.ErrInvalidAddress)
	}
	if code == nil {
		return fmt.Errorf("deploy %s: nil code", addr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.code[addr]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAddressInUse, addr)
	}
	c.code[addr] = code
	c.logger.Debug("code deployed", "address", addr.String(), "type", fmt.Sprintf("%T", code))
	return nil
}

// CodeAt returns the code installed at addr, if any.
func (c *Chain) CodeAt(addr domain.Address) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	code, ok := c.code[addr]
	return code, ok
}

// Mint credits amount to addr from outside the system.
// It is serialized with every other operation.
func (c *Chain) Mint(ctx context.Context, to domain.Address, amount domain.Amount) error {
	done := make(chan error, 1)
	execCtx := context.WithoutCancel(ctx)
	err := c.enqueue(ctx, job{
		run: func() {
			c.mu.Lock()
			supply, err := c.supply.Add(amount)
			c.mu.Unlock()
			if err == nil {
				err = c.store.Commit(execCtx, []domain.Posting{{Account: to, Credit: amount}})
			}
			if err == nil {
				c.mu.Lock()
				c.supply = supply
				c.mu.Unlock()
			}
			done <- err
		},
		abort: func(err error) { done <- err },
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mint %s to %s: %w", amount, to, err)
		}
		c.logger.Info("minted", "to", to.String(), "amount", amount.String())
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: mint: %v", domain.ErrObservationTimeout, ctx.Err())
	}
}

// Supply returns the total value minted through this Chain.
func (c *Chain) Supply() domain.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.supply
}

// BalanceOf reads the committed balance straight from the store.
func (c *Chain) BalanceOf(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	return c.store.Balance(ctx, addr)
}

// Submit enqueues call and returns a handle to wait for its finality.
func (c *Chain) Submit(ctx context.Context, call ports.Call) (ports.Pending, error) {
	if call.Invoke == nil {
		return nil, fmt.Errorf("submit %q: nil Invoke", call.Label)
	}

	p := newPending(uuid.NewString())
	submitted := time.Now()
	// Once queued, an operation runs to finality even if the submitter stops waiting.
	execCtx := context.WithoutCancel(ctx)

	err := c.enqueue(ctx, job{
		run: func() {
			rcpt, err := c.execute(execCtx, p.id, submitted, call)
			if c.finalityDelay > 0 {
				timer := time.NewTimer(c.finalityDelay)
				select {
				case <-timer.C:
				case <-c.quit:
					timer.Stop()
				}
			}
			rcpt.FinalizedAt = time.Now()

			c.mu.Lock()
			c.receipts[rcpt.ID] = rcpt
			c.mu.Unlock()

			p.finalize(rcpt, err)
			for _, fn := range c.hooks {
				fn(rcpt)
			}
		},
		abort: func(err error) {
			p.finalize(domain.Receipt{
				ID:          p.id,
				Label:       call.Label,
				Caller:      call.Caller,
				Target:      call.Target,
				Outcome:     domain.OutcomeOf(err),
				Error:       err.Error(),
				SubmittedAt: submitted,
				FinalizedAt: time.Now(),
			}, err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("submit %q: %w", call.Label, err)
	}
	return p, nil
}

// Query runs fn inside a read-only frame of target.
func (c *Chain) Query(ctx context.Context, target domain.Address, fn func(tx ports.Tx) error) error {
	done := make(chan error, 1)
	err := c.enqueue(ctx, job{
		run: func() {
			done <- fn(newTx(ctx, c, target, domain.ZeroAddress, true))
		},
		abort: func(err error) { done <- err },
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("%w: query %s: %v", domain.ErrObservationTimeout, target, ctx.Err())
	}
}

// Receipt returns the receipt of a finalized operation.
func (c *Chain) Receipt(ctx context.Context, id string) (domain.Receipt, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rcpt, ok := c.receipts[id]
	if !ok {
		return domain.Receipt{}, fmt.Errorf("%w: %s", domain.ErrReceiptNotFound, id)
	}
	return rcpt, nil
}

// execute runs call and commits its postings. Runs on the worker only.
func (c *Chain) execute(ctx context.Context, id string, submitted time.Time, call ports.Call) (domain.Receipt, error) {
	start := time.Now()
	rcpt := domain.Receipt{
		ID:          id,
		Label:       call.Label,
		Caller:      call.Caller,
		Target:      call.Target,
		Outcome:     domain.OutcomeRequested,
		SubmittedAt: submitted,
	}

	err := c.withLock(ctx, func(ctx context.Context) error {
		if err := c.authorize(call); err != nil {
			return err
		}

		t := newTx(ctx, c, call.Target, call.Caller, false)
		if err := call.Invoke(t, call.Caller); err != nil {
			return err
		}

		postings, err := t.postings()
		if err != nil {
			return err
		}
		if err := c.store.Commit(ctx, postings); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		rcpt.Postings = postings
		return nil
	})

	rcpt.Outcome = domain.OutcomeOf(err)
	if err != nil {
		rcpt.Error = err.Error()
		c.logger.Warn("operation reverted",
			"id", id,
			"label", call.Label,
			"outcome", string(rcpt.Outcome),
			"err", err,
		)
	} else {
		c.logger.Info("operation committed",
			"id", id,
			"label", call.Label,
			"postings", len(rcpt.Postings),
		)
	}
	c.metrics.observe(call.Label, rcpt.Outcome, time.Since(start), rcpt.Postings)
	return rcpt, err
}

// authorize allows an externally owned account to act on itself and anyone to
// call deployed code.
func (c *Chain) authorize(call ports.Call) error {
	if call.Target == call.Caller {
		return nil
	}
	if _, ok := c.CodeAt(call.Target); !ok {
		return fmt.Errorf("%w: %s", domain.ErrNoCode, call.Target)
	}
	return nil
}

func (c *Chain) withLock(ctx context.Context, fn func(context.Context) error) error {
	if c.locker == nil {
		return fn(ctx)
	}

	unlock, err := c.locker.Lock(ctx, c.lockKey, c.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire distributed lock: %w", err)
	}
	defer func() {
		if err := unlock(ctx); err != nil {
			c.logger.Warn("Failed to release distributed lock (will expire via TTL)",
				"key", c.lockKey,
				"err", err,
			)
		}
	}()

	return fn(ctx)
}
