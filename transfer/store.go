package transfer

import (
	"context"

	"github.com/xraph/custody/id"
)

type Store interface {
	// ApplyDebit checks available funds, decrements the sender's balance
	// and inserts d (state unconfirmed) in one atomic unit. Insufficient
	// funds leave the ledger untouched and no debit row behind.
	ApplyDebit(ctx context.Context, d *Debit) error

	// ApplyCredit increments the recipient's balance and inserts c in one
	// atomic unit.
	ApplyCredit(ctx context.Context, c *Credit) error

	UpdateDebitState(ctx context.Context, debitID id.DebitID, state State, refID string) error
	GetDebit(ctx context.Context, debitID id.DebitID) (*Debit, error)
	ListDebits(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Debit, error)
	ListCredits(ctx context.Context, userID id.UserID, opts ListOpts) ([]*Credit, error)
}
