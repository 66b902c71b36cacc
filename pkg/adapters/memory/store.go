package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aretw0/relay/pkg/domain"
)

// Store implements ports.BalanceStore in memory.
// Safe for concurrent use.
type Store struct {
	balances map[domain.Address]domain.Amount
	mu       sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		balances: make(map[domain.Address]domain.Amount),
	}
}

// Balance returns the committed balance of addr.
func (s *Store) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[addr], nil
}

// Commit validates every posting against a scratch copy before touching the
// live map, so a failing posting leaves all balances unchanged.
func (s *Store) Commit(ctx context.Context, postings []domain.Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[domain.Address]domain.Amount, len(postings))
	for _, p := range postings {
		cur, ok := next[p.Account]
		if !ok {
			cur = s.balances[p.Account]
		}
		updated, err := apply(cur, p)
		if err != nil {
			return err
		}
		next[p.Account] = updated
	}

	for addr, bal := range next {
		s.balances[addr] = bal
	}
	return nil
}

// Accounts returns every address the store knows about.
func (s *Store) Accounts(ctx context.Context) ([]domain.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.Address, 0, len(s.balances))
	for addr := range s.balances {
		accounts = append(accounts, addr)
	}
	return accounts, nil
}

func apply(cur domain.Amount, p domain.Posting) (domain.Amount, error) {
	credited, err := cur.Add(p.Credit)
	if err != nil {
		return 0, fmt.Errorf("credit %s to %s: %w", p.Credit, p.Account, err)
	}
	debited, err := credited.Sub(p.Debit)
	if err != nil {
		return 0, fmt.Errorf("debit %s from %s (balance %s): %w", p.Debit, p.Account, credited, err)
	}
	return debited, nil
}
