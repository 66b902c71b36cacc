package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/aretw0/relay"
	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// Balance prints the ledger balance of address and, when the entry reports
// its own balance, the self-reported one next to it.
func Balance(ctx context.Context, w io.Writer, r *relay.Relay, address string) error {
	addr, err := domain.ParseAddress(address)
	if err != nil {
		return err
	}

	ledger := r.Ledger()
	bal, err := ledger.BalanceOf(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s ledger      %s\n", addr, bal)

	code, ok := ledger.CodeAt(addr)
	if !ok {
		return nil
	}
	reporter, ok := code.(ports.Reporter)
	if !ok {
		return nil
	}
	var reported domain.Amount
	err = ledger.Query(ctx, addr, func(tx ports.Tx) error {
		var err error
		reported, err = reporter.ReportBalance(tx)
		return err
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s self-report %s\n", addr, reported)
	if reported != bal {
		return fmt.Errorf("%w: ledger %s, self-report %s", domain.ErrBalanceMismatch, bal, reported)
	}
	return nil
}
