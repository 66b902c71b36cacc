package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aretw0/relay/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// ErrCommitContention is returned when optimistic commits keep losing the race
// for the watched balance keys.
var ErrCommitContention = errors.New("redis commit retries exhausted")

// Store implements ports.BalanceStore using Redis.
// Balances are decimal strings of base units, one key per account, plus a set
// indexing every account ever credited.
type Store struct {
	client     *backend.Client
	prefix     string
	maxRetries int
}

type Option func(*Store)

// WithPrefix sets the key prefix for balances.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithMaxRetries bounds optimistic commit retries under contention.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client:     client,
		prefix:     "relay:ledger:",
		maxRetries: 16,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(addr domain.Address) string {
	return s.prefix + "balance:" + addr.String()
}

func (s *Store) indexKey() string {
	return s.prefix + "accounts"
}

// Balance reads the committed balance of addr.
func (s *Store) Balance(ctx context.Context, addr domain.Address) (domain.Amount, error) {
	return s.read(ctx, s.client, addr)
}

type getter interface {
	Get(ctx context.Context, key string) *backend.StringCmd
}

func (s *Store) read(ctx context.Context, c getter, addr domain.Address) (domain.Amount, error) {
	v, err := c.Get(ctx, s.key(addr)).Uint64()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read balance of %s: %w", addr, err)
	}
	return domain.Amount(v), nil
}

// Commit applies postings inside a WATCH/MULTI transaction.
// Balances are validated in Go so arithmetic stays exact for the full uint64 range.
func (s *Store) Commit(ctx context.Context, postings []domain.Posting) error {
	if len(postings) == 0 {
		return nil
	}

	keys := make([]string, 0, len(postings))
	for _, p := range postings {
		keys = append(keys, s.key(p.Account))
	}

	txf := func(tx *backend.Tx) error {
		next := make(map[domain.Address]domain.Amount, len(postings))
		for _, p := range postings {
			cur, ok := next[p.Account]
			if !ok {
				var err error
				if cur, err = s.read(ctx, tx, p.Account); err != nil {
					return err
				}
			}
			credited, err := cur.Add(p.Credit)
			if err != nil {
				return fmt.Errorf("credit %s to %s: %w", p.Credit, p.Account, err)
			}
			debited, err := credited.Sub(p.Debit)
			if err != nil {
				return fmt.Errorf("debit %s from %s (balance %s): %w", p.Debit, p.Account, credited, err)
			}
			next[p.Account] = debited
		}

		_, err := tx.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
			for addr, bal := range next {
				pipe.Set(ctx, s.key(addr), strconv.FormatUint(uint64(bal), 10), 0)
				pipe.SAdd(ctx, s.indexKey(), addr.String())
			}
			return nil
		})
		return err
	}

	for i := 0; i < s.maxRetries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if err == nil {
			return nil
		}
		if errors.Is(err, backend.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrCommitContention
}

// Accounts lists every address in the index.
func (s *Store) Accounts(ctx context.Context) ([]domain.Address, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]domain.Address, 0, len(members))
	for _, m := range members {
		addr, err := domain.ParseAddress(m)
		if err != nil {
			return nil, fmt.Errorf("corrupt account index entry: %w", err)
		}
		accounts = append(accounts, addr)
	}
	return accounts, nil
}

// Client exposes the underlying client so a Locker can share it.
func (s *Store) Client() *backend.Client {
	return s.client
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
