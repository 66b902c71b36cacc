package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	httpAdapter "github.com/aretw0/relay/pkg/adapters/http"
	"github.com/aretw0/relay/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/relay/pkg/adapters/redis"
	"github.com/aretw0/relay/pkg/chain"
	"github.com/aretw0/relay/pkg/config"
	"github.com/aretw0/relay/pkg/entry"
	"github.com/aretw0/relay/pkg/harness"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/aretw0/relay/pkg/wallet"
	"github.com/prometheus/client_golang/prometheus"
)

// Relay is a deployed custodian/receiver pair on a ledger, plus the
// funding wallet that feeds it.
type Relay struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	feed     *httpAdapter.Feed

	store  ports.BalanceStore
	closer io.Closer
	chain  *chain.Chain

	owner     *entry.Holder
	receiver  *entry.Receiver
	custodian *entry.Custodian
	wallet    *wallet.Wallet
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithStore injects a balance store, bypassing cfg.Store.
func WithStore(store ports.BalanceStore) Option {
	return func(r *Relay) {
		r.store = store
	}
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Relay) {
		r.registry = reg
	}
}

// New deploys the relay described by cfg.
//
// The funding account receives cfg.GenesisBalance only while it is empty, so
// reopening a persistent store does not mint twice.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Relay{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = prometheus.NewRegistry()
	}
	r.feed = httpAdapter.NewFeed(r.logger)

	chainOpts := []chain.Option{
		chain.WithLogger(r.logger),
		chain.WithMetrics(chain.NewMetrics(r.registry)),
		chain.WithFinalityDelay(cfg.FinalityDelay),
		chain.WithFinalizeHook(r.feed.Publish),
	}

	if r.store == nil {
		switch cfg.Store.Driver {
		case config.DriverRedis:
			var storeOpts []redisAdapter.Option
			prefix := "relay:ledger:"
			if cfg.Store.Prefix != "" {
				prefix = cfg.Store.Prefix
				storeOpts = append(storeOpts, redisAdapter.WithPrefix(prefix))
			}
			store := redisAdapter.New(cfg.Store.Addr, cfg.Store.Password, cfg.Store.DB, storeOpts...)
			if err := store.Client().Ping(ctx).Err(); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Store.Addr, err)
			}
			r.store = store
			r.closer = store
			// Other processes may share the store; serialize commits across them.
			chainOpts = append(chainOpts, chain.WithLocker(redisAdapter.NewLocker(store.Client(), prefix), "ledger", 30*time.Second))
		default:
			r.store = memory.NewStore()
		}
	}

	r.chain = chain.New(r.store, chainOpts...)
	if err := r.deploy(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Relay) deploy(ctx context.Context) error {
	cfg := r.cfg
	r.owner = entry.NewHolder(cfg.OwnerAddress, "owner")
	r.receiver = entry.NewReceiver(cfg.ReceivingAddress)
	r.custodian = entry.NewCustodian(cfg.CustodianAddress, cfg.FundingAddress, r.owner.Ref(), r.receiver.Ref())
	r.wallet = wallet.New(r.chain, cfg.FundingAddress)

	if err := r.chain.Deploy(cfg.OwnerAddress, r.owner); err != nil {
		return fmt.Errorf("deploy owner: %w", err)
	}
	if err := r.chain.Deploy(cfg.ReceivingAddress, r.receiver); err != nil {
		return fmt.Errorf("deploy receiver: %w", err)
	}
	if err := r.chain.Deploy(cfg.CustodianAddress, r.custodian); err != nil {
		return fmt.Errorf("deploy custodian: %w", err)
	}

	bal, err := r.wallet.Balance(ctx)
	if err != nil {
		return fmt.Errorf("read funding balance: %w", err)
	}
	if bal == 0 && cfg.GenesisBalance > 0 {
		if err := r.chain.Mint(ctx, cfg.FundingAddress, cfg.GenesisBalance); err != nil {
			return fmt.Errorf("mint genesis balance: %w", err)
		}
		r.logger.Info("genesis balance minted", "account", cfg.FundingAddress, "amount", cfg.GenesisBalance)
	}

	r.logger.Debug("relay deployed",
		"custodian", cfg.CustodianAddress,
		"receiver", cfg.ReceivingAddress,
		"owner", cfg.OwnerAddress,
		"controller", cfg.FundingAddress)
	return nil
}

// Plan builds the harness plan from the configuration.
func (r *Relay) Plan() harness.Plan {
	plan := harness.Plan{FundingAmount: r.cfg.FundingAmount}
	for _, name := range r.cfg.Scenarios {
		kind := harness.Kind(name)
		amount := r.cfg.ForwardAmount
		if kind == harness.KindOverdraw {
			amount = r.cfg.OverdrawAmount
		}
		plan.Scenarios = append(plan.Scenarios, harness.NewScenario(kind, amount))
	}
	return plan
}

// Harness returns a harness bound to this relay. opts override the
// configured timeouts.
func (r *Relay) Harness(opts ...harness.Option) *harness.Harness {
	base := []harness.Option{
		harness.WithLogger(r.logger),
		harness.WithFinalityTimeout(r.cfg.FinalityTimeout),
		harness.WithRequery(r.cfg.RequeryTimeout, 0),
	}
	return harness.New(r.chain, r.wallet, r.custodian, r.receiver, append(base, opts...)...)
}

// Run executes the configured plan.
func (r *Relay) Run(ctx context.Context) (*harness.Report, error) {
	return r.Harness().Run(ctx, r.Plan())
}

// Handler returns the HTTP inspection API of the relay.
func (r *Relay) Handler() http.Handler {
	return httpAdapter.NewHandler(r.chain,
		httpAdapter.WithFeed(r.feed),
		httpAdapter.WithGatherer(r.registry),
		httpAdapter.WithVersion(Version),
		httpAdapter.WithQueryTimeout(r.cfg.FinalityTimeout),
		httpAdapter.WithLogger(r.logger),
	)
}

// Config returns the configuration the relay was deployed with.
func (r *Relay) Config() config.Config { return r.cfg }

// Ledger returns the ledger environment.
func (r *Relay) Ledger() *chain.Chain { return r.chain }

// Custodian returns the deployed custodian entry.
func (r *Relay) Custodian() *entry.Custodian { return r.custodian }

// Receiver returns the deployed receiving entry.
func (r *Relay) Receiver() *entry.Receiver { return r.receiver }

// Wallet returns the funding source.
func (r *Relay) Wallet() *wallet.Wallet { return r.wallet }

// Registry returns the prometheus registry holding the relay metrics.
func (r *Relay) Registry() *prometheus.Registry { return r.registry }

// Close stops the ledger and releases the store.
func (r *Relay) Close() error {
	var err error
	if r.chain != nil {
		err = r.chain.Close()
	}
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
