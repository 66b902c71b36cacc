package entry

import (
	"fmt"

	"github.com/aretw0/relay/pkg/domain"
	"github.com/aretw0/relay/pkg/ports"
)

// ownFrame fails unless tx runs the code deployed at self. Transfers debit
// tx.Self(), so entry code in any other frame would spend someone else's value.
func ownFrame(tx ports.Tx, self domain.Address) error {
	if tx.Self() != self {
		return fmt.Errorf("%w: frame of %s, entry at %s", domain.ErrWrongFrame, tx.Self(), self)
	}
	return nil
}
