package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger is the read side of the ledger environment served over HTTP.
type Ledger interface {
	BalanceOf(ctx context.Context, addr domain.Address) (domain.Amount, error)
	Query(ctx context.Context, target domain.Address, fn func(tx ports.Tx) error) error
	Receipt(ctx context.Context, id string) (domain.Receipt, error)
	CodeAt(addr domain.Address) (any, bool)
}

// Server serves the read-only inspection API.
type Server struct {
	Ledger  Ledger
	Feed    *Feed
	Version string

	gatherer     prometheus.Gatherer
	queryTimeout time.Duration
	logger       *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithFeed streams finalized receipts on GET /events.
func WithFeed(feed *Feed) Option {
	return func(s *Server) {
		s.Feed = feed
	}
}

// WithGatherer exposes g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// WithQueryTimeout bounds self-report queries.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.queryTimeout = d
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates the HTTP handler for ledger.
func NewHandler(ledger Ledger, opts ...Option) http.Handler {
	s := &Server{
		Ledger:       ledger,
		Version:      "dev",
		queryTimeout: 5 * time.Second,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/balances/{address}", s.GetBalance)
	r.Get("/entries/{address}/balance", s.GetReportedBalance)
	r.Get("/receipts/{id}", s.GetReceipt)
	if s.Feed != nil {
		r.Get("/events", s.SubscribeEvents)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BalanceResponse is the body of both balance endpoints.
type BalanceResponse struct {
	Address   domain.Address `json:"address"`
	Balance   domain.Amount  `json:"balance"`
	BaseUnits uint64         `json:"base_units"`
	Source    string         `json:"source"`
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"app":      "relay-http",
		"version":  s.Version,
		"decimals": domain.Decimals,
	})
}

// GetBalance handles GET /balances/{address} through the ledger path.
func (s *Server) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	bal, err := s.Ledger.BalanceOf(r.Context(), addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{Address: addr, Balance: bal, BaseUnits: uint64(bal), Source: "ledger"})
}

// GetReportedBalance handles GET /entries/{address}/balance by asking the
// entry itself.
func (s *Server) GetReportedBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	code, ok := s.Ledger.CodeAt(addr)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: %s", domain.ErrNoCode, addr))
		return
	}
	reporter, ok := code.(ports.Reporter)
	if !ok {
		http.Error(w, fmt.Sprintf("entry %s does not report its balance", addr), http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.queryTimeout)
	defer cancel()
	var bal domain.Amount
	err = s.Ledger.Query(ctx, addr, func(tx ports.Tx) error {
		var err error
		bal, err = reporter.ReportBalance(tx)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, BalanceResponse{Address: addr, Balance: bal, BaseUnits: uint64(bal), Source: "self-report"})
}

// GetReceipt handles GET /receipts/{id}.
func (s *Server) GetReceipt(w http.ResponseWriter, r *http.Request) {
	rcpt, err := s.Ledger.Receipt(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rcpt)
}

// SubscribeEvents handles the GET /events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Feed.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: receipt\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrReceiptNotFound), errors.Is(err, domain.ErrNoCode):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrObservationTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
