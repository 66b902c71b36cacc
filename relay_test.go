package relay_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/relay"
	"github.com/aretw0/relay/pkg/adapters/memory"
	"github.com/aretw0/relay/pkg/config"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/harness"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelay_DefaultRun(t *testing.T) {
	ctx := context.Background()
	r, err := relay.New(ctx, config.Default())
	require.NoError(t, err)
	defer r.Close()

	report, err := r.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), report.Markdown())

	assert.Equal(t, "0.01", report.Final.Custodian.String())
	assert.Equal(t, "0.01", report.Final.Receiver.String())

	// Conservation: everything minted is still somewhere.
	var total domain.Amount
	for _, bal := range []domain.Amount{report.Final.Custodian, report.Final.Receiver, report.Final.Source} {
		total += bal
	}
	assert.Equal(t, r.Ledger().Supply(), total)
}

func TestRelay_Plan(t *testing.T) {
	cfg := config.Default()
	cfg.Scenarios = []string{"overdraw", "forward"}
	r, err := relay.New(context.Background(), cfg)
	require.NoError(t, err)
	defer r.Close()

	plan := r.Plan()
	require.Len(t, plan.Scenarios, 2)
	assert.Equal(t, harness.KindOverdraw, plan.Scenarios[0].Kind)
	assert.Equal(t, cfg.OverdrawAmount, plan.Scenarios[0].Amount)
	assert.Equal(t, domain.OutcomeRevertedInsufficientFunds, plan.Scenarios[0].Expect)
	assert.Equal(t, cfg.ForwardAmount, plan.Scenarios[1].Amount)
}

func TestRelay_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.ReceivingAddress = cfg.CustodianAddress
	_, err := relay.New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRelay_GenesisMintedOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cfg := config.Default()

	first, err := relay.New(ctx, cfg, relay.WithStore(store))
	require.NoError(t, err)
	_, err = first.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := relay.New(ctx, cfg, relay.WithStore(store))
	require.NoError(t, err)
	defer second.Close()

	bal, err := second.Wallet().Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0.98", bal.String())
}

func TestRelay_InsufficientFundingSource(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.GenesisBalance = domain.MustParseAmount("0.01")
	r, err := relay.New(ctx, cfg)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Run(ctx)
	assert.ErrorIs(t, err, domain.ErrInsufficientFundingSource)
}

func TestRelay_RedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverRedis, Addr: s.Addr(), Prefix: "test:"}

	ctx := context.Background()
	r, err := relay.New(ctx, cfg)
	require.NoError(t, err)
	defer r.Close()

	report, err := r.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.OK(), report.Markdown())

	raw, err := s.Get("test:balance:" + cfg.ReceivingAddress.String())
	require.NoError(t, err)
	assert.Equal(t, "10000000", raw)
	assert.False(t, s.Exists("test:lock:ledger"), "lock released")
}

func TestRelay_RedisUnavailable(t *testing.T) {
	s := miniredis.RunT(t)
	addr := s.Addr()
	s.Close()

	cfg := config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverRedis, Addr: addr}
	_, err := relay.New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRelay_Handler(t *testing.T) {
	ctx := context.Background()
	r, err := relay.New(ctx, config.Default())
	require.NoError(t, err)
	defer r.Close()
	_, err = r.Run(ctx)
	require.NoError(t, err)

	h := r.Handler()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/entries/"+r.Receiver().Address().String()+"/balance", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0.01", body.Balance)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, w.Body.String(), "relay_operations_total")
}
