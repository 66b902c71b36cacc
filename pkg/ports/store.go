package ports

import (
	"context"

	"github.com/aretw0/relay/pkg/domain"
)

// BalanceStore persists the native account-balance model.
type BalanceStore interface {
	// Balance returns the committed balance of addr.
	// Unknown addresses hold zero; this is not an error.
	Balance(ctx context.Context, addr domain.Address) (domain.Amount, error)

	// Commit applies all postings atomically.
	// If any account would go negative nothing is applied and the error wraps
	// domain.ErrInsufficientFunds.
	Commit(ctx context.Context, postings []domain.Posting) error

	// Accounts lists every address that has ever been credited.
	Accounts(ctx context.Context) ([]domain.Address, error)
}
