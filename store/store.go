package store

import (
	"context"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/address"
	"github.com/xraph/custody/balance"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// Store is the unified storage interface for all Custody entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Every method is atomic with respect to concurrent callers: either all of
// its writes commit or none do.
type Store interface {
	// Account methods
	//
	// CreateAccount provisions user, key and the zero balances in one
	// atomic unit. A username or key conflict surfaces as a duplicate
	// error from the driver and leaves no partial state behind.
	CreateAccount(ctx context.Context, user *account.User, key *account.UserKey, balances []*balance.Balance) error
	GetUser(ctx context.Context, userID id.UserID) (*account.User, error)
	GetUserByUsername(ctx context.Context, username string) (*account.User, error)
	GetUserByKey(ctx context.Context, pubkey string) (*account.User, error)

	// ConsumeNonce atomically advances the key's last_nonce to nonce iff
	// nonce is strictly greater, returning the prior value. A replayed
	// nonce or unknown key leaves last_nonce untouched.
	ConsumeNonce(ctx context.Context, pubkey string, nonce int64) (int64, error)

	// Balance methods
	LatestBalance(ctx context.Context, userID id.UserID, currency string) (*balance.Balance, error)
	ListBalances(ctx context.Context, userID id.UserID) ([]*balance.Balance, error)
	CreditBalance(ctx context.Context, userID id.UserID, amount types.Money, reference string) (*balance.Balance, error)

	// Address methods
	CreateAddress(ctx context.Context, a *address.Address) error
	GetAddress(ctx context.Context, value string, currency string) (*address.Address, error)
	ListAddresses(ctx context.Context, userID id.UserID, opts address.ListOpts) ([]*address.Address, error)

	// Transfer methods
	ApplyDebit(ctx context.Context, d *transfer.Debit) error
	ApplyCredit(ctx context.Context, c *transfer.Credit) error
	UpdateDebitState(ctx context.Context, debitID id.DebitID, state transfer.State, refID string) error
	GetDebit(ctx context.Context, debitID id.DebitID) (*transfer.Debit, error)
	ListDebits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Debit, error)
	ListCredits(ctx context.Context, userID id.UserID, opts transfer.ListOpts) ([]*transfer.Credit, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
